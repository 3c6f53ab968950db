// Package memory is an in-process implementation of every domain store.
// Transactions are serialized behind one mutex and rolled back through an
// undo log, which gives the same all-or-nothing behavior as the PostgreSQL
// store within a single process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xenking/kart-commerce/internal/domain/auth"
	"github.com/xenking/kart-commerce/internal/domain/cart"
	"github.com/xenking/kart-commerce/internal/domain/coupon"
	"github.com/xenking/kart-commerce/internal/domain/order"
	"github.com/xenking/kart-commerce/internal/domain/payment"
	"github.com/xenking/kart-commerce/internal/domain/product"
	"github.com/xenking/kart-commerce/internal/domain/txn"
	"github.com/xenking/kart-commerce/internal/domain/user"
)

type grantKey struct {
	userID   int64
	couponID int64
}

// Store holds all entities in maps keyed by ID.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	seq int64

	products     map[int64]product.Product
	carts        map[int64]cart.Cart // by user ID
	orders       map[int64]order.Order
	orderNumbers map[string]int64
	coupons      map[int64]coupon.Coupon
	grants       map[grantKey]coupon.Grant
	payments     map[int64]payment.Payment
	users        map[int64]user.User
	apikeys      map[string]auth.APIKeyInfo // by hash
}

var (
	_ txn.Transactor     = (*Store)(nil)
	_ product.Repository = (*ProductRepository)(nil)
	_ cart.Repository    = (*CartRepository)(nil)
	_ order.Repository   = (*OrderRepository)(nil)
	_ coupon.Repository  = (*CouponRepository)(nil)
	_ payment.Repository = (*PaymentRepository)(nil)
	_ user.Repository    = (*UserRepository)(nil)
	_ auth.Repository    = (*APIKeyRepository)(nil)
)

// Repositories sharing one Store see each other's writes and join the same
// transactions.
type (
	ProductRepository struct{ *Store }
	CartRepository    struct{ *Store }
	OrderRepository   struct{ *Store }
	CouponRepository  struct{ *Store }
	PaymentRepository struct{ *Store }
	UserRepository    struct{ *Store }
	APIKeyRepository  struct{ *Store }
)

func (s *Store) Products() *ProductRepository { return &ProductRepository{s} }
func (s *Store) Carts() *CartRepository       { return &CartRepository{s} }
func (s *Store) Orders() *OrderRepository     { return &OrderRepository{s} }
func (s *Store) Coupons() *CouponRepository   { return &CouponRepository{s} }
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s} }
func (s *Store) Users() *UserRepository       { return &UserRepository{s} }
func (s *Store) APIKeys() *APIKeyRepository   { return &APIKeyRepository{s} }

// New returns an empty Store. now stamps created and updated times; nil
// means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:          now,
		products:     make(map[int64]product.Product),
		carts:        make(map[int64]cart.Cart),
		orders:       make(map[int64]order.Order),
		orderNumbers: make(map[string]int64),
		coupons:      make(map[int64]coupon.Coupon),
		grants:       make(map[grantKey]coupon.Grant),
		payments:     make(map[int64]payment.Payment),
		users:        make(map[int64]user.User),
		apikeys:      make(map[string]auth.APIKeyInfo),
	}
}

type tx struct {
	store *Store
	undo  []func()
}

type txKey struct{}

func (s *Store) txFrom(ctx context.Context) *tx {
	t, ok := ctx.Value(txKey{}).(*tx)
	if !ok || t.store != s {
		return nil
	}
	return t
}

// WithinTx runs fn holding the store lock. If fn fails or panics every
// change made through ctx is undone in reverse order; a panic is then
// re-raised. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{store: s}
	committed := false
	defer func() {
		if committed {
			return
		}
		p := recover()
		t.rollback()
		if p != nil {
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	committed = true
	return nil
}

func (t *tx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

// lock acquires the store lock unless ctx already runs in a transaction of
// this store, which holds it.
func (s *Store) lock(ctx context.Context) func() {
	if s.txFrom(ctx) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// onRollback registers undo to run if the surrounding transaction fails.
func (s *Store) onRollback(ctx context.Context, undo func()) {
	if t := s.txFrom(ctx); t != nil {
		t.undo = append(t.undo, undo)
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// restore returns an undo func putting m[k] back to its state before a
// write.
func restore[K comparable, V any](m map[K]V, k K) func() {
	prev, existed := m[k]
	return func() {
		if existed {
			m[k] = prev
		} else {
			delete(m, k)
		}
	}
}

package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-commerce/internal/domain/cart"
)

const (
	getCartByUserSQL  = `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`
	lockCartByUserSQL = getCartByUserSQL + ` FOR UPDATE`

	ensureCartSQL = `INSERT INTO carts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`

	listCartItemsSQL = `SELECT product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY position`

	upsertCartSQL = `INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = now()
		RETURNING id, created_at, updated_at`

	deleteCartItemsSQL = `DELETE FROM cart_items WHERE cart_id = $1`

	insertCartItemSQL = `INSERT INTO cart_items (cart_id, product_id, quantity, position) VALUES ($1, $2, $3, $4)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	db *DB
}

// NewCartRepository returns a CartRepository that uses db.
func NewCartRepository(db *DB) *CartRepository {
	return &CartRepository{db: db}
}

// FindByUserID returns the user's cart with its items in insertion order.
// Inside a transaction the cart row is created if missing and locked, so
// concurrent writers of one user's cart are serialized until commit.
func (r *CartRepository) FindByUserID(ctx context.Context, userID int64) (*cart.Cart, error) {
	q := r.db.conn(ctx)

	sql := getCartByUserSQL
	if inTx(ctx) {
		if _, err := q.Exec(ctx, ensureCartSQL, userID); err != nil {
			return nil, fmt.Errorf("ensuring cart of user %d: %w", userID, err)
		}
		sql = lockCartByUserSQL
	}

	var c cart.Cart
	err := q.QueryRow(ctx, sql, userID).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, fmt.Errorf("getting cart of user %d: %w", userID, err)
	}

	rows, err := q.Query(ctx, listCartItemsSQL, c.ID)
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	c.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Item, error) {
		var it cart.Item
		err := row.Scan(&it.ProductID, &it.Quantity)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("listing cart items: %w", err)
	}
	return &c, nil
}

// Save creates the user's cart if needed and replaces its items.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) (*cart.Cart, error) {
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		q := r.db.conn(ctx)
		if err := q.QueryRow(ctx, upsertCartSQL, c.UserID).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return fmt.Errorf("upserting cart of user %d: %w", c.UserID, err)
		}

		b := &pgx.Batch{}
		b.Queue(deleteCartItemsSQL, c.ID)
		for i, it := range c.Items {
			b.Queue(insertCartItemSQL, c.ID, it.ProductID, it.Quantity, i)
		}
		if err := sendBatch(ctx, q, b); err != nil {
			return fmt.Errorf("replacing cart items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/xenking/kart-commerce/internal/domain/order"
)

func (s *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	defer s.lock(ctx)()

	if o.ID == 0 {
		if _, taken := s.orderNumbers[o.Number]; taken {
			return order.ErrDuplicateNumber
		}
		o.ID = s.nextID()
		if o.CreatedAt.IsZero() {
			o.CreatedAt = s.now()
		}
		o.UpdatedAt = o.CreatedAt

		s.onRollback(ctx, restore(s.orderNumbers, o.Number))
		s.orderNumbers[o.Number] = o.ID
		s.onRollback(ctx, restore(s.orders, o.ID))
		s.orders[o.ID] = cloneOrder(*o)
		return nil
	}

	stored, ok := s.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	s.onRollback(ctx, restore(s.orders, o.ID))
	stored.DiscountAmount = o.DiscountAmount
	stored.FinalAmount = o.FinalAmount
	stored.CouponID = o.CouponID
	stored.Status = o.Status
	stored.UpdatedAt = o.UpdatedAt
	s.orders[o.ID] = stored
	return nil
}

func (s *OrderRepository) FindByID(ctx context.Context, id int64) (*order.Order, error) {
	defer s.lock(ctx)()
	return s.find(func(o order.Order) bool { return o.ID == id })
}

func (s *OrderRepository) FindByUserAndID(ctx context.Context, userID, id int64) (*order.Order, error) {
	defer s.lock(ctx)()
	return s.find(func(o order.Order) bool { return o.ID == id && o.UserID == userID })
}

// LockByID is FindByID: transactions are already serialized.
func (s *OrderRepository) LockByID(ctx context.Context, id int64) (*order.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *OrderRepository) LockByUserAndID(ctx context.Context, userID, id int64) (*order.Order, error) {
	return s.FindByUserAndID(ctx, userID, id)
}

func (s *OrderRepository) FindByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	return s.List(ctx, order.Filter{UserID: userID})
}

func (s *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	defer s.lock(ctx)()

	out := make([]order.Order, 0)
	for _, o := range s.orders {
		switch {
		case f.UserID != 0 && o.UserID != f.UserID:
			continue
		case f.Status != "" && o.Status != f.Status:
			continue
		case !f.From.IsZero() && o.CreatedAt.Before(f.From):
			continue
		case !f.To.IsZero() && o.CreatedAt.After(f.To):
			continue
		}
		out = append(out, cloneOrder(o))
	}
	slices.SortFunc(out, func(a, b order.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *OrderRepository) find(match func(order.Order) bool) (*order.Order, error) {
	for _, o := range s.orders {
		if match(o) {
			c := cloneOrder(o)
			return &c, nil
		}
	}
	return nil, order.ErrNotFound
}

func cloneOrder(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

package memory

import (
	"context"
	"slices"

	"github.com/xenking/kart-commerce/internal/domain/cart"
)

func (s *CartRepository) FindByUserID(ctx context.Context, userID int64) (*cart.Cart, error) {
	defer s.lock(ctx)()

	c, ok := s.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	c.Items = slices.Clone(c.Items)
	return &c, nil
}

func (s *CartRepository) Save(ctx context.Context, c *cart.Cart) (*cart.Cart, error) {
	defer s.lock(ctx)()

	now := s.now()
	if existing, ok := s.carts[c.UserID]; ok {
		c.ID = existing.ID
		c.CreatedAt = existing.CreatedAt
	} else {
		c.ID = s.nextID()
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	stored := *c
	stored.Items = slices.Clone(c.Items)
	s.onRollback(ctx, restore(s.carts, c.UserID))
	s.carts[c.UserID] = stored

	out := stored
	out.Items = slices.Clone(stored.Items)
	return &out, nil
}

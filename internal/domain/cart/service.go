package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-commerce/internal/domain/product"
	"github.com/xenking/kart-commerce/internal/domain/txn"
)

// Service implements the cart endpoints.
type Service struct {
	carts    Repository
	products product.Repository
	tx       txn.Transactor
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, tx txn.Transactor) *Service {
	return &Service{carts: carts, products: products, tx: tx}
}

// Get returns the user's cart, or an empty unsaved cart when none exists.
func (s *Service) Get(ctx context.Context, userID int64) (*Cart, error) {
	c, err := s.carts.FindByUserID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return New(userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	return c, nil
}

// AddItem adds a product to the user's cart, creating the cart on first add.
func (s *Service) AddItem(ctx context.Context, userID, productID int64, qty int) (*Cart, error) {
	if err := validate(productID, qty); err != nil {
		return nil, err
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, &product.NotFoundError{IDs: []int64{productID}}
		}
		return nil, errors.Wrap(err, "get product")
	}
	return s.mutate(ctx, userID, func(c *Cart) error {
		return c.AddItem(productID, qty)
	})
}

// UpdateItem sets the quantity of a product already in the cart.
func (s *Service) UpdateItem(ctx context.Context, userID, productID int64, qty int) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		return c.UpdateItemQuantity(productID, qty)
	})
}

// RemoveItem removes a product from the cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID int64) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		return c.RemoveItem(productID)
	})
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID int64) (*Cart, error) {
	return s.mutate(ctx, userID, func(c *Cart) error {
		c.Clear()
		return nil
	})
}

func (s *Service) mutate(ctx context.Context, userID int64, fn func(c *Cart) error) (*Cart, error) {
	var saved *Cart
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.Get(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		saved, err = s.carts.Save(ctx, c)
		if err != nil {
			return errors.Wrap(err, "save cart")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	zctx.From(ctx).Debug("Cart updated",
		zap.Int64("user_id", userID),
		zap.Int("item_count", saved.ItemCount()),
	)
	return saved, nil
}

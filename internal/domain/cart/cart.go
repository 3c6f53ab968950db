// Package cart holds the per-user shopping cart aggregate.
package cart

import (
	"context"
	"math"
	"time"

	"github.com/xenking/kart-commerce/internal/domain/errs"
)

var (
	// ErrNotFound is returned by the store when the user has no cart yet.
	ErrNotFound = errs.NotFound("CART_NOT_FOUND", "cart not found")
	// ErrItemNotFound is returned when a product is not in the cart.
	ErrItemNotFound = errs.NotFound("ITEM_NOT_FOUND", "product is not in the cart")
	// ErrInvalidUser is returned for a non-positive user ID.
	ErrInvalidUser = errs.Validation("INVALID_USER", "user id must be greater than 0")
	// ErrInvalidProduct is returned for a non-positive product ID.
	ErrInvalidProduct = errs.Validation("INVALID_PRODUCT_ID", "product id must be greater than 0")
	// ErrInvalidQuantity is returned for a quantity outside [1, MaxQuantity].
	ErrInvalidQuantity = errs.Validation("INVALID_QUANTITY", "quantity must be between 1 and 2147483647")
)

// MaxQuantity bounds an item quantity, including merged ones. It matches the
// INTEGER quantity column.
const MaxQuantity = math.MaxInt32

// Item is one product line in a cart. It has no lifecycle outside its cart.
type Item struct {
	ProductID int64
	Quantity  int
}

// Cart is a user's mutable collection of items, at most one item per product.
type Cart struct {
	ID        int64
	UserID    int64
	Items     []Item
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New returns an empty, unsaved cart for userID.
func New(userID int64) (*Cart, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	return &Cart{UserID: userID}, nil
}

// AddItem adds qty units of productID, merging into an existing item.
func (c *Cart) AddItem(productID int64, qty int) error {
	if err := validate(productID, qty); err != nil {
		return err
	}
	if i := c.indexOf(productID); i >= 0 {
		if c.Items[i].Quantity > MaxQuantity-qty {
			return ErrInvalidQuantity
		}
		c.Items[i].Quantity += qty
		return nil
	}
	c.Items = append(c.Items, Item{ProductID: productID, Quantity: qty})
	return nil
}

// UpdateItemQuantity replaces the quantity of an existing item.
func (c *Cart) UpdateItemQuantity(productID int64, qty int) error {
	if err := validate(productID, qty); err != nil {
		return err
	}
	i := c.indexOf(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items[i].Quantity = qty
	return nil
}

// RemoveItem deletes the item for productID.
func (c *Cart) RemoveItem(productID int64) error {
	if productID <= 0 {
		return ErrInvalidProduct
	}
	i := c.indexOf(productID)
	if i < 0 {
		return ErrItemNotFound
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return nil
}

// Clear empties the cart. The cart itself stays persisted.
func (c *Cart) Clear() {
	c.Items = c.Items[:0]
}

// ItemCount is the sum of all item quantities.
func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// IsEmpty reports whether the cart has no items.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) indexOf(productID int64) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

func validate(productID int64, qty int) error {
	if productID <= 0 {
		return ErrInvalidProduct
	}
	if qty <= 0 || qty > MaxQuantity {
		return ErrInvalidQuantity
	}
	return nil
}

// Repository is the cart store.
type Repository interface {
	// FindByUserID returns ErrNotFound when the user has no cart.
	FindByUserID(ctx context.Context, userID int64) (*Cart, error)
	// Save inserts the cart when ID is zero, otherwise replaces its items.
	Save(ctx context.Context, c *Cart) (*Cart, error)
}

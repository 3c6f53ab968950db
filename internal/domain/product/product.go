package product

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-commerce/internal/domain/errs"
	"github.com/xenking/kart-commerce/internal/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errs.NotFound("PRODUCT_NOT_FOUND", "product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID            int64
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Category      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Params holds the validated input for NewProduct.
type Params struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Category      string
}

// NewProduct validates p and returns an unsaved Product.
func NewProduct(p Params) (*Product, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, errs.Validation("INVALID_PRODUCT", "product name is required")
	}
	if !money.IsPositive(p.Price) {
		return nil, errs.Validation("INVALID_PRODUCT", "product price must be greater than 0")
	}
	if !money.InScale(p.Price) {
		return nil, errs.Validation("INVALID_PRODUCT", "product price must have at most 2 decimal places")
	}
	if p.StockQuantity < 0 {
		return nil, errs.Validation("INVALID_PRODUCT", "stock quantity must not be negative")
	}
	return &Product{
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		StockQuantity: p.StockQuantity,
		Category:      p.Category,
	}, nil
}

// IsAvailable reports whether qty units can be taken from stock.
func (p *Product) IsAvailable(qty int) bool {
	return qty <= p.StockQuantity
}

// NotFoundError names the product IDs that have no backing record.
type NotFoundError struct {
	IDs []int64
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) == 1 {
		return fmt.Sprintf("product %d not found", e.IDs[0])
	}
	return fmt.Sprintf("products %v not found", e.IDs)
}

func (e *NotFoundError) Kind() errs.Kind { return errs.KindNotFound }
func (e *NotFoundError) Code() string    { return "PRODUCT_NOT_FOUND" }

// InsufficientStockError indicates a request for more units than are on hand.
// Available is -1 when the shortage was detected by the atomic decrement and
// the current stock level is unknown.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	if e.Available < 0 {
		return fmt.Sprintf("insufficient stock for product %q (id %d): requested %d",
			e.Name, e.ProductID, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %q (id %d): requested %d, available %d",
		e.Name, e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Kind() errs.Kind { return errs.KindConflict }
func (e *InsufficientStockError) Code() string    { return "INSUFFICIENT_STOCK" }

// Filter narrows a catalog listing. Zero values disable a criterion.
type Filter struct {
	Category      string
	Keyword       string
	AvailableOnly bool
}

// Repository is the product store.
type Repository interface {
	List(ctx context.Context, f Filter) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	// GetByIDs returns the products that exist among ids, in no particular
	// order. Missing IDs are silently skipped.
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Upsert(ctx context.Context, p *Product) error
	// DecreaseStock subtracts qty only if the current stock is at least qty,
	// as one atomic conditional update. It returns the number of rows
	// affected: 0 means the product is missing or the stock was insufficient.
	DecreaseStock(ctx context.Context, id int64, qty int) (int64, error)
	// IncreaseStock adds qty unconditionally.
	IncreaseStock(ctx context.Context, id int64, qty int) error
}

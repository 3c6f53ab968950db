// Package order holds the order aggregate and the placement workflow that
// turns a cart or an explicit item list into a persisted, stock-reserved
// order.
package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-commerce/internal/domain/errs"
	"github.com/xenking/kart-commerce/internal/money"
)

// MaxQuantity bounds a line item quantity, after duplicates are merged.
const MaxQuantity = math.MaxInt32

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// CanCancel reports whether an order in status s may be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusConfirmed
}

var (
	// ErrNotFound is returned when an order does not exist or belongs to
	// another user.
	ErrNotFound = errs.NotFound("ORDER_NOT_FOUND", "order not found")
	// ErrEmptyItems is returned when an order is built without line items.
	ErrEmptyItems = errs.Validation("EMPTY_ORDER_ITEMS", "order must contain at least one item")
	// ErrInvalidUser is returned for a non-positive user ID.
	ErrInvalidUser = errs.Validation("INVALID_USER", "user id must be greater than 0")
	// ErrInvalidProduct is returned for a non-positive product ID.
	ErrInvalidProduct = errs.Validation("INVALID_PRODUCT_ID", "product id must be greater than 0")
	// ErrInvalidQuantity is returned for a quantity outside [1, MaxQuantity].
	ErrInvalidQuantity = errs.Validation("INVALID_QUANTITY", "quantity must be between 1 and 2147483647")
	// ErrInvalidPrice is returned for a non-positive unit price.
	ErrInvalidPrice = errs.Validation("INVALID_PRICE", "unit price must be greater than 0")
	// ErrInvalidCoupon is returned for a negative coupon ID.
	ErrInvalidCoupon = errs.Validation("INVALID_COUPON_ID", "coupon id must not be negative")
	// ErrCartEmpty is returned when checking out a cart without items.
	ErrCartEmpty = errs.Validation("CART_EMPTY", "cart is empty")
	// ErrDuplicateNumber is returned by the store when an order number is
	// already taken.
	ErrDuplicateNumber = errs.Conflict("DUPLICATE_ORDER_NUMBER", "order number already exists")

	errInvalidRange = errs.Validation("INVALID_DATE_RANGE", "from must not be after to")
)

func errInvalidStatus(s Status) error {
	return errs.Validation("INVALID_STATUS", "unknown order status %q", s)
}

// InvalidDiscountError is returned when a discount is negative or larger
// than the order total.
type InvalidDiscountError struct {
	Discount decimal.Decimal
	Total    decimal.Decimal
}

func (e *InvalidDiscountError) Error() string {
	return fmt.Sprintf("discount %s must be between 0 and the order total %s",
		money.Format(e.Discount), money.Format(e.Total))
}

func (e *InvalidDiscountError) Kind() errs.Kind { return errs.KindValidation }
func (e *InvalidDiscountError) Code() string    { return "INVALID_DISCOUNT" }

// InvalidStateError is returned for an illegal status transition.
type InvalidStateError struct {
	Status Status
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s an order in status %s", e.Action, e.Status)
}

func (e *InvalidStateError) Kind() errs.Kind { return errs.KindConflict }
func (e *InvalidStateError) Code() string    { return "INVALID_ORDER_STATE" }

// LineItemSpec is a resolved line of a new order: the caller has already
// looked up the product and snapshotted its price.
type LineItemSpec struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// LineItem is an immutable price snapshot of one product within an order.
type LineItem struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
}

// NewLineItem validates spec and computes the line total.
func NewLineItem(spec LineItemSpec) (LineItem, error) {
	switch {
	case spec.ProductID <= 0:
		return LineItem{}, ErrInvalidProduct
	case spec.Quantity <= 0 || spec.Quantity > MaxQuantity:
		return LineItem{}, ErrInvalidQuantity
	case !money.IsPositive(spec.UnitPrice):
		return LineItem{}, ErrInvalidPrice
	}
	return LineItem{
		ProductID:   spec.ProductID,
		ProductName: spec.ProductName,
		Quantity:    spec.Quantity,
		UnitPrice:   spec.UnitPrice,
		TotalPrice:  money.LineTotal(spec.UnitPrice, spec.Quantity),
	}, nil
}

// Order is the order aggregate. Items never change after construction;
// only the discount and the status do.
type Order struct {
	ID             int64
	UserID         int64
	Number         string
	Items          []LineItem
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Status         Status
	// CouponID is 0 when no coupon was applied.
	CouponID  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a PENDING order for userID from specs. TotalAmount is the sum
// of line totals and no discount is applied.
func New(userID int64, specs []LineItemSpec, number string, now time.Time) (*Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	if len(specs) == 0 {
		return nil, ErrEmptyItems
	}

	items := make([]LineItem, 0, len(specs))
	totals := make([]decimal.Decimal, 0, len(specs))
	for _, spec := range specs {
		li, err := NewLineItem(spec)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
		totals = append(totals, li.TotalPrice)
	}

	total := money.Sum(totals...)
	return &Order{
		UserID:         userID,
		Number:         number,
		Items:          items,
		TotalAmount:    total,
		DiscountAmount: money.Zero,
		FinalAmount:    total,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ApplyCoupon sets the discount granted by couponID. A second call replaces
// the previous discount.
func (o *Order) ApplyCoupon(couponID int64, discount decimal.Decimal) error {
	if discount.IsNegative() || discount.GreaterThan(o.TotalAmount) {
		return &InvalidDiscountError{Discount: discount, Total: o.TotalAmount}
	}
	o.CouponID = couponID
	o.DiscountAmount = discount
	o.FinalAmount = o.TotalAmount.Sub(discount)
	return nil
}

// Confirm moves a PENDING order to CONFIRMED.
func (o *Order) Confirm(now time.Time) error {
	if o.Status != StatusPending {
		return &InvalidStateError{Status: o.Status, Action: "confirm"}
	}
	o.Status = StatusConfirmed
	o.UpdatedAt = now
	return nil
}

// Cancel moves a PENDING or CONFIRMED order to CANCELLED.
func (o *Order) Cancel(now time.Time) error {
	if !o.Status.CanCancel() {
		return &InvalidStateError{Status: o.Status, Action: "cancel"}
	}
	o.Status = StatusCancelled
	o.UpdatedAt = now
	return nil
}

// ItemCount is the total number of units across all lines.
func (o *Order) ItemCount() int {
	n := 0
	for _, li := range o.Items {
		n += li.Quantity
	}
	return n
}

// Filter narrows an order listing. Zero values disable a criterion; From
// and To bound CreatedAt inclusively.
type Filter struct {
	UserID int64
	Status Status
	From   time.Time
	To     time.Time
}

// Repository is the order store.
type Repository interface {
	// Save inserts the order with its items when ID is zero and sets ID.
	// Otherwise it updates the mutable fields: discount, status, coupon and
	// UpdatedAt. A taken order number yields ErrDuplicateNumber.
	Save(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id int64) (*Order, error)
	// FindByUserAndID returns ErrNotFound when the order belongs to another
	// user.
	FindByUserAndID(ctx context.Context, userID, id int64) (*Order, error)
	// LockByID and LockByUserAndID load the order for mutation, holding a
	// row lock until the surrounding transaction ends.
	LockByID(ctx context.Context, id int64) (*Order, error)
	LockByUserAndID(ctx context.Context, userID, id int64) (*Order, error)
	// FindByUser returns the user's orders, newest first.
	FindByUser(ctx context.Context, userID int64) ([]Order, error)
	// List returns orders matching f, newest first.
	List(ctx context.Context, f Filter) ([]Order, error)
}

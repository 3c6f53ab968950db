package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-commerce/internal/domain/errs"
	"github.com/xenking/kart-commerce/internal/money"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage takes DiscountValue percent off the order amount.
	DiscountPercentage DiscountType = "PERCENTAGE"
	// DiscountFixed takes DiscountValue off the order amount.
	DiscountFixed DiscountType = "FIXED_AMOUNT"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

var (
	// ErrNotFound is returned when a coupon does not exist.
	ErrNotFound = errs.NotFound("COUPON_NOT_FOUND", "coupon not found")
	// ErrNotUsable is returned when a coupon is inactive, outside its
	// validity window, or has exhausted its usage count.
	ErrNotUsable = errs.Conflict("COUPON_NOT_USABLE", "coupon cannot be used")
	// ErrInvalidCoupon is returned when coupon parameters fail validation.
	ErrInvalidCoupon = errs.Validation("INVALID_COUPON", "invalid coupon")
)

// MinOrderAmountError is returned when the order amount is below the
// coupon's minimum.
type MinOrderAmountError struct {
	Min    decimal.Decimal
	Amount decimal.Decimal
}

func (e *MinOrderAmountError) Error() string {
	return "order amount " + money.Format(e.Amount) + " is below the coupon minimum " + money.Format(e.Min)
}

func (e *MinOrderAmountError) Kind() errs.Kind { return errs.KindConflict }
func (e *MinOrderAmountError) Code() string    { return "MIN_ORDER_AMOUNT_NOT_MET" }

// Coupon is a discount definition with usage and validity constraints.
type Coupon struct {
	ID                int64
	Name              string
	Code              string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MinOrderAmount    decimal.Decimal
	MaxDiscountAmount decimal.NullDecimal
	ValidFrom         time.Time
	ValidTo           time.Time
	MaxUsageCount     int
	CurrentUsageCount int
	Active            bool
}

// Params holds the input for New.
type Params struct {
	Name              string
	Code              string
	DiscountType      DiscountType
	DiscountValue     decimal.Decimal
	MinOrderAmount    decimal.Decimal
	MaxDiscountAmount decimal.NullDecimal
	ValidFrom         time.Time
	ValidTo           time.Time
	MaxUsageCount     int
}

// New validates p and returns an active coupon with zero usage.
func New(p Params) (*Coupon, error) {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "coupon name is required")
	case strings.TrimSpace(p.Code) == "":
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "coupon code is required")
	case !p.DiscountType.Valid():
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "unsupported discount type %q", p.DiscountType)
	case !money.IsPositive(p.DiscountValue):
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "discount value must be greater than 0")
	case p.DiscountType == DiscountPercentage && p.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "percentage discount must not exceed 100")
	case !money.InScale(p.DiscountValue) || !money.InScale(p.MinOrderAmount) ||
		(p.MaxDiscountAmount.Valid && !money.InScale(p.MaxDiscountAmount.Decimal)):
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "amounts must have at most 2 decimal places")
	case p.MinOrderAmount.IsNegative():
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "minimum order amount must not be negative")
	case p.MaxDiscountAmount.Valid && !money.IsPositive(p.MaxDiscountAmount.Decimal):
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "maximum discount must be greater than 0")
	case p.ValidFrom.IsZero() || p.ValidTo.IsZero():
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "validity period is required")
	case p.ValidFrom.After(p.ValidTo):
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "valid from must not be after valid to")
	case p.MaxUsageCount <= 0:
		return nil, errs.Validation(ErrInvalidCoupon.Code(), "max usage count must be greater than 0")
	}
	return &Coupon{
		Name:              p.Name,
		Code:              strings.ToUpper(p.Code),
		DiscountType:      p.DiscountType,
		DiscountValue:     p.DiscountValue,
		MinOrderAmount:    p.MinOrderAmount,
		MaxDiscountAmount: p.MaxDiscountAmount,
		ValidFrom:         p.ValidFrom,
		ValidTo:           p.ValidTo,
		MaxUsageCount:     p.MaxUsageCount,
		Active:            true,
	}, nil
}

// IsExpired reports whether now falls outside [ValidFrom, ValidTo].
func (c *Coupon) IsExpired(now time.Time) bool {
	return now.Before(c.ValidFrom) || now.After(c.ValidTo)
}

// CanUse reports whether the coupon is active, within its validity window
// and below its usage limit.
func (c *Coupon) CanUse(now time.Time) bool {
	return c.Active && !c.IsExpired(now) && c.CurrentUsageCount < c.MaxUsageCount
}

// CalculateDiscountAmount returns the discount for orderAmount. The result
// never exceeds MaxDiscountAmount (when set) nor orderAmount. Usage is not
// recorded.
func (c *Coupon) CalculateDiscountAmount(orderAmount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !c.CanUse(now) {
		return decimal.Zero, ErrNotUsable
	}
	if orderAmount.LessThan(c.MinOrderAmount) {
		return decimal.Zero, &MinOrderAmountError{Min: c.MinOrderAmount, Amount: orderAmount}
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = money.Percentage(orderAmount, c.DiscountValue)
	default:
		discount = c.DiscountValue
	}
	if c.MaxDiscountAmount.Valid {
		discount = money.Min(discount, c.MaxDiscountAmount.Decimal)
	}
	discount = money.Min(discount, orderAmount)
	return money.FloorAtZero(discount), nil
}

// Use records one application of the coupon.
func (c *Coupon) Use(now time.Time) error {
	if !c.CanUse(now) {
		return ErrNotUsable
	}
	c.CurrentUsageCount++
	return nil
}

// Deactivate disables the coupon.
func (c *Coupon) Deactivate() { c.Active = false }

// Activate re-enables the coupon.
func (c *Coupon) Activate() { c.Active = true }

// Repository is the coupon and coupon-grant store.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Coupon, error)
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// Upsert inserts or updates a coupon keyed by its code and sets c.ID.
	Upsert(ctx context.Context, c *Coupon) error
	// IncrementUsage bumps the usage counter only while it is below the
	// maximum, as one atomic conditional update. It returns rows affected.
	IncrementUsage(ctx context.Context, couponID int64) (int64, error)

	// FindGrant returns ErrGrantNotFound when the user holds no grant for
	// the coupon. Inside a transaction the grant row is locked.
	FindGrant(ctx context.Context, userID, couponID int64) (*Grant, error)
	ListGrants(ctx context.Context, userID int64) ([]Grant, error)
	// IssueGrant creates an AVAILABLE grant unless the user already holds
	// one for the coupon. It reports whether a grant was created.
	IssueGrant(ctx context.Context, userID, couponID int64, issuedAt time.Time) (bool, error)
	// MarkGrantUsed persists a grant transitioned by Grant.Use. It returns
	// rows affected: 0 means the grant was no longer AVAILABLE.
	MarkGrantUsed(ctx context.Context, g *Grant) (int64, error)
}

package coupon

import (
	"time"

	"github.com/xenking/kart-commerce/internal/domain/errs"
)

// GrantStatus is the lifecycle state of a user's coupon grant.
type GrantStatus string

const (
	GrantAvailable GrantStatus = "AVAILABLE"
	GrantUsed      GrantStatus = "USED"
	GrantExpired   GrantStatus = "EXPIRED"
)

var (
	// ErrGrantNotFound is returned when the user holds no grant for a coupon.
	ErrGrantNotFound = errs.NotFound("COUPON_GRANT_NOT_FOUND", "coupon is not granted to the user")
	// ErrGrantNotAvailable is returned when a grant was already used or expired.
	ErrGrantNotAvailable = errs.Conflict("COUPON_NOT_USABLE", "coupon grant is not available")
)

// Grant is a coupon held by a user. Each grant is usable for one order.
type Grant struct {
	ID       int64
	UserID   int64
	CouponID int64
	OrderID  int64
	Status   GrantStatus
	IssuedAt time.Time
	UsedAt   *time.Time
}

// NewGrant returns an AVAILABLE grant of couponID to userID.
func NewGrant(userID, couponID int64, now time.Time) (*Grant, error) {
	if userID <= 0 {
		return nil, errs.Validation("INVALID_USER", "user id must be greater than 0")
	}
	if couponID <= 0 {
		return nil, errs.Validation("INVALID_COUPON_ID", "coupon id must be greater than 0")
	}
	return &Grant{
		UserID:   userID,
		CouponID: couponID,
		Status:   GrantAvailable,
		IssuedAt: now,
	}, nil
}

// CanUse reports whether the grant is still AVAILABLE.
func (g *Grant) CanUse() bool {
	return g.Status == GrantAvailable
}

// Use marks the grant as spent on orderID.
func (g *Grant) Use(orderID int64, now time.Time) error {
	if orderID <= 0 {
		return errs.Validation("INVALID_ORDER_ID", "order id must be greater than 0")
	}
	if !g.CanUse() {
		return ErrGrantNotAvailable
	}
	g.OrderID = orderID
	g.Status = GrantUsed
	g.UsedAt = &now
	return nil
}

// Expire marks an AVAILABLE grant as expired.
func (g *Grant) Expire() error {
	if !g.CanUse() {
		return ErrGrantNotAvailable
	}
	g.Status = GrantExpired
	return nil
}

package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Owned pairs a user's grant with the coupon it refers to.
type Owned struct {
	Grant  Grant
	Coupon Coupon
}

// Service computes and redeems coupon discounts for users.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a coupon Service backed by repo. now supplies the
// current time for validity checks; nil means time.Now.
func NewService(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// ListForUser returns every grant the user holds with its coupon.
func (s *Service) ListForUser(ctx context.Context, userID int64) ([]Owned, error) {
	grants, err := s.repo.ListGrants(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list grants")
	}
	out := make([]Owned, 0, len(grants))
	for _, g := range grants {
		c, err := s.repo.GetByID(ctx, g.CouponID)
		if err != nil {
			return nil, errors.Wrapf(err, "get coupon %d", g.CouponID)
		}
		out = append(out, Owned{Grant: g, Coupon: *c})
	}
	return out, nil
}

// Discount returns the discount the user's grant of couponID yields on
// amount without recording any usage.
func (s *Service) Discount(ctx context.Context, userID, couponID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	_, c, err := s.load(ctx, userID, couponID)
	if err != nil {
		return decimal.Zero, err
	}
	return c.CalculateDiscountAmount(amount, s.now())
}

// Redeem records that the user's grant of couponID was spent on orderID and
// bumps the coupon usage counter. It must run in the same transaction that
// persisted the order.
func (s *Service) Redeem(ctx context.Context, userID, couponID, orderID int64) error {
	g, c, err := s.load(ctx, userID, couponID)
	if err != nil {
		return err
	}
	now := s.now()

	if err := c.Use(now); err != nil {
		return err
	}
	n, err := s.repo.IncrementUsage(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "increment coupon usage")
	}
	if n == 0 {
		return ErrNotUsable
	}

	if err := g.Use(orderID, now); err != nil {
		return err
	}
	n, err = s.repo.MarkGrantUsed(ctx, g)
	if err != nil {
		return errors.Wrap(err, "mark grant used")
	}
	if n == 0 {
		return ErrGrantNotAvailable
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID, couponID int64) (*Grant, *Coupon, error) {
	g, err := s.repo.FindGrant(ctx, userID, couponID)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return nil, nil, ErrGrantNotFound
		}
		return nil, nil, errors.Wrap(err, "find grant")
	}
	if !g.CanUse() {
		return nil, nil, ErrGrantNotAvailable
	}
	c, err := s.repo.GetByID(ctx, couponID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, errors.Wrap(err, "get coupon")
	}
	return g, c, nil
}

package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/xenking/kart-commerce/internal/domain/coupon"
)

func (s *CouponRepository) GetByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	defer s.lock(ctx)()

	c, ok := s.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return &c, nil
}

func (s *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	defer s.lock(ctx)()

	for _, c := range s.coupons {
		if strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

// Upsert matches an existing coupon by code. The usage counter of an
// existing coupon is preserved.
func (s *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	defer s.lock(ctx)()

	for id, existing := range s.coupons {
		if strings.EqualFold(existing.Code, c.Code) {
			c.ID = id
			c.CurrentUsageCount = existing.CurrentUsageCount
			break
		}
	}
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	s.onRollback(ctx, restore(s.coupons, c.ID))
	s.coupons[c.ID] = *c
	return nil
}

func (s *CouponRepository) IncrementUsage(ctx context.Context, couponID int64) (int64, error) {
	defer s.lock(ctx)()

	c, ok := s.coupons[couponID]
	if !ok || c.CurrentUsageCount >= c.MaxUsageCount {
		return 0, nil
	}
	s.onRollback(ctx, restore(s.coupons, couponID))
	c.CurrentUsageCount++
	s.coupons[couponID] = c
	return 1, nil
}

func (s *CouponRepository) FindGrant(ctx context.Context, userID, couponID int64) (*coupon.Grant, error) {
	defer s.lock(ctx)()

	g, ok := s.grants[grantKey{userID, couponID}]
	if !ok {
		return nil, coupon.ErrGrantNotFound
	}
	return &g, nil
}

func (s *CouponRepository) ListGrants(ctx context.Context, userID int64) ([]coupon.Grant, error) {
	defer s.lock(ctx)()

	var out []coupon.Grant
	for k, g := range s.grants {
		if k.userID == userID {
			out = append(out, g)
		}
	}
	slices.SortFunc(out, func(a, b coupon.Grant) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *CouponRepository) IssueGrant(ctx context.Context, userID, couponID int64, issuedAt time.Time) (bool, error) {
	defer s.lock(ctx)()

	k := grantKey{userID, couponID}
	if _, ok := s.grants[k]; ok {
		return false, nil
	}
	if _, ok := s.coupons[couponID]; !ok {
		return false, coupon.ErrNotFound
	}
	g, err := coupon.NewGrant(userID, couponID, issuedAt)
	if err != nil {
		return false, err
	}
	g.ID = s.nextID()
	s.onRollback(ctx, restore(s.grants, k))
	s.grants[k] = *g
	return true, nil
}

func (s *CouponRepository) MarkGrantUsed(ctx context.Context, g *coupon.Grant) (int64, error) {
	defer s.lock(ctx)()

	k := grantKey{g.UserID, g.CouponID}
	stored, ok := s.grants[k]
	if !ok || stored.Status != coupon.GrantAvailable {
		return 0, nil
	}
	s.onRollback(ctx, restore(s.grants, k))
	stored.Status = g.Status
	stored.OrderID = g.OrderID
	stored.UsedAt = g.UsedAt
	s.grants[k] = stored
	return 1, nil
}

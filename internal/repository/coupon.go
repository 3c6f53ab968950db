package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-commerce/internal/domain/coupon"
)

const (
	couponColumns = `id, name, code, discount_type, discount_value, min_order_amount, max_discount_amount,
		valid_from, valid_to, max_usage_count, current_usage_count, active`

	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`

	upsertCouponSQL = `INSERT INTO coupons (name, code, discount_type, discount_value, min_order_amount,
			max_discount_amount, valid_from, valid_to, max_usage_count, active)
		VALUES ($1, UPPER($2), $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			min_order_amount = EXCLUDED.min_order_amount,
			max_discount_amount = EXCLUDED.max_discount_amount,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			max_usage_count = EXCLUDED.max_usage_count,
			active = EXCLUDED.active
		RETURNING id, current_usage_count`

	incrementCouponUsageSQL = `UPDATE coupons SET current_usage_count = current_usage_count + 1
		WHERE id = $1 AND current_usage_count < max_usage_count`

	grantColumns = `id, user_id, coupon_id, order_id, status, issued_at, used_at`

	getGrantSQL      = `SELECT ` + grantColumns + ` FROM user_coupons WHERE user_id = $1 AND coupon_id = $2`
	lockGrantSQL     = getGrantSQL + ` FOR UPDATE`
	listGrantsSQL    = `SELECT ` + grantColumns + ` FROM user_coupons WHERE user_id = $1 ORDER BY id`
	issueGrantSQL    = `INSERT INTO user_coupons (user_id, coupon_id, status, issued_at)
		VALUES ($1, $2, 'AVAILABLE', $3)
		ON CONFLICT (user_id, coupon_id) DO NOTHING`
	markGrantUsedSQL = `UPDATE user_coupons SET status = $3, order_id = $4, used_at = $5
		WHERE user_id = $1 AND coupon_id = $2 AND status = 'AVAILABLE'`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	db *DB
}

// NewCouponRepository returns a CouponRepository that uses db.
func NewCouponRepository(db *DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetByID returns the coupon with id.
func (r *CouponRepository) GetByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponByIDSQL, id)
}

// FindByCode looks up a coupon by its code (case-insensitive).
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.one(ctx, getCouponByCodeSQL, code)
}

// Upsert inserts or updates c keyed by code. The usage counter of an
// existing coupon is kept.
func (r *CouponRepository) Upsert(ctx context.Context, c *coupon.Coupon) error {
	err := r.db.conn(ctx).QueryRow(ctx, upsertCouponSQL,
		c.Name, c.Code, string(c.DiscountType), c.DiscountValue, c.MinOrderAmount,
		c.MaxDiscountAmount, c.ValidFrom, c.ValidTo, c.MaxUsageCount, c.Active,
	).Scan(&c.ID, &c.CurrentUsageCount)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", c.Code, err)
	}
	return nil
}

// IncrementUsage atomically bumps the usage counter while it is below the
// maximum.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID int64) (int64, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, incrementCouponUsageSQL, couponID)
	if err != nil {
		return 0, fmt.Errorf("incrementing usage of coupon %d: %w", couponID, err)
	}
	return tag.RowsAffected(), nil
}

// FindGrant returns the user's grant of couponID, locking it when called
// inside a transaction.
func (r *CouponRepository) FindGrant(ctx context.Context, userID, couponID int64) (*coupon.Grant, error) {
	sql := getGrantSQL
	if inTx(ctx) {
		sql = lockGrantSQL
	}
	rows, err := r.db.conn(ctx).Query(ctx, sql, userID, couponID)
	if err != nil {
		return nil, fmt.Errorf("getting grant: %w", err)
	}
	g, err := pgx.CollectExactlyOneRow(rows, scanGrant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrGrantNotFound
		}
		return nil, fmt.Errorf("getting grant: %w", err)
	}
	return &g, nil
}

// ListGrants returns every grant held by userID.
func (r *CouponRepository) ListGrants(ctx context.Context, userID int64) ([]coupon.Grant, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listGrantsSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing grants of user %d: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanGrant)
}

// IssueGrant creates an AVAILABLE grant unless one already exists.
func (r *CouponRepository) IssueGrant(ctx context.Context, userID, couponID int64, issuedAt time.Time) (bool, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, issueGrantSQL, userID, couponID, issuedAt)
	if err != nil {
		if isViolation(err, foreignKeyViolation, "") {
			return false, coupon.ErrNotFound
		}
		return false, fmt.Errorf("issuing coupon %d to user %d: %w", couponID, userID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkGrantUsed persists a used grant if it is still AVAILABLE.
func (r *CouponRepository) MarkGrantUsed(ctx context.Context, g *coupon.Grant) (int64, error) {
	tag, err := r.db.conn(ctx).Exec(ctx, markGrantUsedSQL,
		g.UserID, g.CouponID, string(g.Status), nullID(g.OrderID), g.UsedAt)
	if err != nil {
		return 0, fmt.Errorf("marking grant %d used: %w", g.ID, err)
	}
	return tag.RowsAffected(), nil
}

func (r *CouponRepository) one(ctx context.Context, sql string, arg any) (*coupon.Coupon, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting coupon %v: %w", arg, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("getting coupon %v: %w", arg, err)
	}
	return &c, nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Code, &discountType, &c.DiscountValue, &c.MinOrderAmount,
		&c.MaxDiscountAmount, &c.ValidFrom, &c.ValidTo, &c.MaxUsageCount, &c.CurrentUsageCount, &c.Active,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}

func scanGrant(row pgx.CollectableRow) (coupon.Grant, error) {
	var (
		g       coupon.Grant
		orderID *int64
		status  string
	)
	err := row.Scan(&g.ID, &g.UserID, &g.CouponID, &orderID, &status, &g.IssuedAt, &g.UsedAt)
	g.Status = coupon.GrantStatus(status)
	if orderID != nil {
		g.OrderID = *orderID
	}
	return g, err
}

// Package seed loads the demo catalog, user, API key and coupons into any
// set of stores.
package seed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-commerce/internal/domain/auth"
	"github.com/xenking/kart-commerce/internal/domain/coupon"
	"github.com/xenking/kart-commerce/internal/domain/product"
	"github.com/xenking/kart-commerce/internal/domain/user"
)

// Stores are the repositories written by Run.
type Stores struct {
	Products product.Repository
	Users    user.Repository
	APIKeys  auth.Repository
	Coupons  coupon.Repository
}

// Options controls what Run creates.
type Options struct {
	// Catalog is a JSON array of products.
	Catalog []byte
	// APIKey is the raw key issued to the demo user. Empty skips the key.
	APIKey string
	Pepper []byte
	Email  string
	Now    time.Time
}

// Result summarizes a seeding run.
type Result struct {
	Products int
	Coupons  int
	UserID   int64
	KeyID    int64
}

type productJSON struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    string          `json:"category"`
}

// Run upserts everything described by opts. It is safe to run repeatedly.
func Run(ctx context.Context, s Stores, opts Options) (Result, error) {
	var res Result
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Email == "" {
		opts.Email = "demo@kart.local"
	}

	n, err := seedProducts(ctx, s.Products, opts.Catalog)
	if err != nil {
		return res, errors.Wrap(err, "seed products")
	}
	res.Products = n

	u, err := user.New(user.Params{Email: opts.Email, Name: "Demo User", Role: user.RoleGeneral})
	if err != nil {
		return res, errors.Wrap(err, "demo user")
	}
	if err := s.Users.Upsert(ctx, u); err != nil {
		return res, errors.Wrap(err, "seed user")
	}
	res.UserID = u.ID

	if opts.APIKey != "" {
		info := &auth.APIKeyInfo{
			UserID:  u.ID,
			KeyHash: auth.Hash(opts.Pepper, opts.APIKey),
			Name:    "Default demo key",
			Scopes:  []string{"create_order"},
		}
		if err := s.APIKeys.Upsert(ctx, info); err != nil {
			return res, errors.Wrap(err, "seed api key")
		}
		res.KeyID = info.ID
	}

	n, err = seedCoupons(ctx, s.Coupons, u.ID, opts.Now)
	if err != nil {
		return res, errors.Wrap(err, "seed coupons")
	}
	res.Coupons = n

	return res, nil
}

func seedProducts(ctx context.Context, repo product.Repository, catalog []byte) (int, error) {
	var items []productJSON
	if err := json.Unmarshal(catalog, &items); err != nil {
		return 0, errors.Wrap(err, "parse catalog")
	}
	for _, it := range items {
		p, err := product.NewProduct(product.Params{
			Name:          it.Name,
			Description:   it.Description,
			Price:         it.Price,
			StockQuantity: it.Stock,
			Category:      it.Category,
		})
		if err != nil {
			return 0, errors.Wrapf(err, "product %q", it.Name)
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return 0, errors.Wrapf(err, "upsert product %q", it.Name)
		}
	}
	return len(items), nil
}

// Coupons returns the demo coupon set valid for a year from now.
func Coupons(now time.Time) []coupon.Params {
	from := now.Add(-24 * time.Hour)
	to := now.AddDate(1, 0, 0)
	return []coupon.Params{
		{
			Name:              "Welcome 10% off",
			Code:              "WELCOME10",
			DiscountType:      coupon.DiscountPercentage,
			DiscountValue:     decimal.NewFromInt(10),
			MaxDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
			ValidFrom:         from,
			ValidTo:           to,
			MaxUsageCount:     1000,
		},
		{
			Name:           "5.00 off orders over 50.00",
			Code:           "FIVEOFF",
			DiscountType:   coupon.DiscountFixed,
			DiscountValue:  decimal.NewFromInt(5),
			MinOrderAmount: decimal.NewFromInt(50),
			ValidFrom:      from,
			ValidTo:        to,
			MaxUsageCount:  500,
		},
	}
}

func seedCoupons(ctx context.Context, repo coupon.Repository, userID int64, now time.Time) (int, error) {
	params := Coupons(now)
	for _, p := range params {
		c, err := coupon.New(p)
		if err != nil {
			return 0, errors.Wrapf(err, "coupon %s", p.Code)
		}
		if err := repo.Upsert(ctx, c); err != nil {
			return 0, errors.Wrapf(err, "upsert coupon %s", p.Code)
		}
		if _, err := repo.IssueGrant(ctx, userID, c.ID, now); err != nil {
			return 0, errors.Wrapf(err, "grant coupon %s", p.Code)
		}
	}
	return len(params), nil
}

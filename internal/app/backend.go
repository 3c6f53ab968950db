package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/kart-commerce/db"
	"github.com/xenking/kart-commerce/internal/domain/auth"
	"github.com/xenking/kart-commerce/internal/domain/cart"
	"github.com/xenking/kart-commerce/internal/domain/coupon"
	"github.com/xenking/kart-commerce/internal/domain/order"
	"github.com/xenking/kart-commerce/internal/domain/payment"
	"github.com/xenking/kart-commerce/internal/domain/product"
	"github.com/xenking/kart-commerce/internal/domain/txn"
	"github.com/xenking/kart-commerce/internal/domain/user"
	"github.com/xenking/kart-commerce/internal/idempotency"
	"github.com/xenking/kart-commerce/internal/repository"
	"github.com/xenking/kart-commerce/internal/seed"
	"github.com/xenking/kart-commerce/internal/storage/memory"
	"github.com/xenking/kart-commerce/pkg/health"
)

// backend is the set of stores the services run on.
type backend struct {
	products product.Repository
	carts    cart.Repository
	orders   order.Repository
	coupons  coupon.Repository
	payments payment.Repository
	users    user.Repository
	apiKeys  auth.Repository
	tx       txn.Transactor

	// ping is nil for the memory backend.
	ping  health.Pinger
	close func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	if cfg.Storage == StorageMemory {
		return openMemory(ctx, lg, cfg)
	}
	return openPostgres(ctx, cfg)
}

func openPostgres(ctx context.Context, cfg *Config) (*backend, error) {
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := repository.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	d := repository.NewDB(pool)
	return &backend{
		products: repository.NewProductRepository(d),
		carts:    repository.NewCartRepository(d),
		orders:   repository.NewOrderRepository(d),
		coupons:  repository.NewCouponRepository(d),
		payments: repository.NewPaymentRepository(d),
		users:    repository.NewUserRepository(d),
		apiKeys:  repository.NewAPIKeyRepository(d),
		tx:       d,
		ping:     d,
		close:    pool.Close,
	}, nil
}

// openMemory returns a process-local store seeded with the bundled catalog,
// a demo user and its API key.
func openMemory(ctx context.Context, lg *zap.Logger, cfg *Config) (*backend, error) {
	st := memory.New(nil)

	key := cfg.SeedAPIKey
	if key == "" {
		key = uuid.NewString()
		lg.Warn("Generated demo API key", zap.String("api_key", key))
	}
	res, err := seed.Run(ctx, seed.Stores{
		Products: st.Products(),
		Users:    st.Users(),
		APIKeys:  st.APIKeys(),
		Coupons:  st.Coupons(),
	}, seed.Options{
		Catalog: db.Products,
		APIKey:  key,
		Pepper:  []byte(cfg.APIKeyPepper),
		Now:     time.Now(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "seed memory store")
	}
	lg.Info("Seeded memory store",
		zap.Int("products", res.Products),
		zap.Int("coupons", res.Coupons),
		zap.Int64("user_id", res.UserID),
	)

	return &backend{
		products: st.Products(),
		carts:    st.Carts(),
		orders:   st.Orders(),
		coupons:  st.Coupons(),
		payments: st.Payments(),
		users:    st.Users(),
		apiKeys:  st.APIKeys(),
		tx:       st,
		close:    func() {},
	}, nil
}

// openIdempotency returns the shared Redis store when configured and an
// in-process store otherwise. The in-process store is swept every TTL until
// ctx is done.
func openIdempotency(ctx context.Context, cfg *Config) (idempotency.Store, health.Pinger, func(), error) {
	if cfg.RedisURL != "" {
		s, err := idempotency.NewRedisStore(ctx, cfg.RedisURL, cfg.IdempotencyTTL)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "connect redis")
		}
		return s, s, func() { _ = s.Close() }, nil
	}

	s := idempotency.NewMemoryStore(cfg.IdempotencyTTL, nil)
	go func() {
		ticker := time.NewTicker(cfg.IdempotencyTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep()
			}
		}
	}()
	return s, nil, func() {}, nil
}

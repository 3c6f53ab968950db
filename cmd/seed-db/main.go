package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-commerce/db"
	"github.com/xenking/kart-commerce/internal/repository"
	"github.com/xenking/kart-commerce/internal/seed"
)

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
		email        string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "", "path to products JSON file (embedded catalog when empty)")
	flag.StringVar(&apiKey, "api-key", "", "API key to seed (or KART_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or KART_API_KEY_PEPPER env)")
	flag.StringVar(&email, "email", "demo@kart.local", "email of the demo user owning the API key")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("KART_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or KART_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("KART_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	opts := seed.Options{
		Catalog: db.Products,
		APIKey:  apiKey,
		Pepper:  []byte(apiKeyPepper),
		Email:   email,
	}
	if err := run(ctx, databaseURL, productsFile, opts); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string, opts seed.Options) error {
	if productsFile != "" {
		slog.Info("reading products file", slog.String("path", productsFile))
		data, err := os.ReadFile(productsFile)
		if err != nil {
			return errors.Wrap(err, "read products file")
		}
		opts.Catalog = data
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := repository.NewDB(pool)
	res, err := seed.Run(ctx, seed.Stores{
		Products: repository.NewProductRepository(store),
		Users:    repository.NewUserRepository(store),
		APIKeys:  repository.NewAPIKeyRepository(store),
		Coupons:  repository.NewCouponRepository(store),
	}, opts)
	if err != nil {
		return err
	}

	slog.Info("seeded",
		slog.Int("products", res.Products),
		slog.Int("coupons", res.Coupons),
		slog.Int64("user_id", res.UserID),
		slog.Int64("api_key_id", res.KeyID),
	)
	return nil
}

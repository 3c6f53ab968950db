package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-commerce/internal/campaign"
	"github.com/xenking/kart-commerce/internal/repository"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		couponCode  string
		minFiles    int
		capacity    uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz user activity exports")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponCode, "coupon", "", "code of the coupon to grant")
	flag.IntVar(&minFiles, "min-files", 2, "minimum number of exports a user must appear in")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected user IDs per export")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if couponCode == "" {
		slog.Error("coupon code is required: set --coupon")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := campaign.Config{MinFiles: minFiles, Capacity: capacity, Logger: slog.Default()}
	if err := run(ctx, dataDir, databaseURL, couponCode, cfg); err != nil {
		slog.Error("coupon grant failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon grant completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL, code string, cfg campaign.Config) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list exports")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files in %s", dataDir)
	}
	cfg.Files = files

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	coupons := repository.NewCouponRepository(repository.NewDB(pool))
	c, err := coupons.FindByCode(ctx, code)
	if err != nil {
		return errors.Wrapf(err, "find coupon %s", code)
	}
	cfg.CouponID = c.ID

	res, err := campaign.Run(ctx, cfg, coupons)
	if err != nil {
		return err
	}

	slog.Info("grants issued",
		slog.String("coupon", c.Code),
		slog.Int("eligible", res.Eligible),
		slog.Int("issued", res.Issued),
		slog.Int("skipped", res.Skipped),
	)
	return nil
}

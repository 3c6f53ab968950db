// Package campaign finds users active across several gzip-compressed
// exports and grants them a coupon.
package campaign

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxFiles bounds the number of exports, one bit per file.
	MaxFiles = 64

	defaultCapacity = 1_000_000
	defaultFPR      = 0.001
	progressEvery   = 1_000_000
)

// Granter issues a coupon grant. It reports false when the user already
// holds one.
type Granter interface {
	IssueGrant(ctx context.Context, userID, couponID int64, issuedAt time.Time) (bool, error)
}

// Config describes one campaign run.
type Config struct {
	Files    []string
	MinFiles int
	CouponID int64
	// Capacity is the expected number of user IDs per file.
	Capacity uint
	FPR      float64
	Now      func() time.Time
	Logger   *slog.Logger
}

// Result summarizes a run.
type Result struct {
	Eligible int
	Issued   int
	Skipped  int
}

func (c *Config) validate() error {
	switch {
	case len(c.Files) == 0:
		return errors.New("no input files")
	case len(c.Files) > MaxFiles:
		return errors.Errorf("at most %d files are supported, got %d", MaxFiles, len(c.Files))
	case c.MinFiles < 1 || c.MinFiles > len(c.Files):
		return errors.Errorf("min files must be in [1, %d], got %d", len(c.Files), c.MinFiles)
	}
	if c.Capacity == 0 {
		c.Capacity = defaultCapacity
	}
	if c.FPR <= 0 || c.FPR >= 1 {
		c.FPR = defaultFPR
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Run finds eligible users and grants each of them the coupon.
func Run(ctx context.Context, cfg Config, g Granter) (Result, error) {
	var res Result
	if cfg.CouponID <= 0 {
		return res, errors.New("coupon id must be greater than 0")
	}
	if err := cfg.validate(); err != nil {
		return res, err
	}

	users, err := Eligible(ctx, cfg)
	if err != nil {
		return res, err
	}
	res.Eligible = len(users)

	now := cfg.Now()
	for i, id := range users {
		issued, err := g.IssueGrant(ctx, id, cfg.CouponID, now)
		if err != nil {
			return res, errors.Wrapf(err, "grant coupon %d to user %d", cfg.CouponID, id)
		}
		if issued {
			res.Issued++
		} else {
			res.Skipped++
		}
		if (i+1)%1000 == 0 || i+1 == len(users) {
			cfg.Logger.Info("grant progress", slog.Int("done", i+1), slog.Int("total", len(users)))
		}
	}
	return res, nil
}

// Eligible returns the sorted IDs of users present in at least MinFiles
// files.
func Eligible(ctx context.Context, cfg Config) ([]int64, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	for _, f := range cfg.Files {
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "check file %s", f)
		}
	}

	cfg.Logger.Info("pass 1: building bloom filters", slog.Int("files", len(cfg.Files)))
	filters, err := buildFilters(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	cfg.Logger.Info("pass 2: collecting candidates")
	masks, err := collectCandidates(ctx, cfg, filters)
	if err != nil {
		return nil, errors.Wrap(err, "collect candidates")
	}

	// A bit is set only by the file that contains the user.
	merged := make(map[int64]uint64)
	for _, m := range masks {
		for id, mask := range m {
			merged[id] |= mask
		}
	}
	var users []int64
	for id, mask := range merged {
		if bits.OnesCount64(mask) >= cfg.MinFiles {
			users = append(users, id)
		}
	}
	slices.Sort(users)

	cfg.Logger.Info("eligible users found", slog.Int("count", len(users)))
	return users, nil
}

func buildFilters(ctx context.Context, cfg Config) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(cfg.Files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range cfg.Files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(cfg.Capacity, cfg.FPR)
			var count uint64
			var buf [8]byte
			err := streamIDs(ctx, path, func(id int64) {
				filter.Add(key(&buf, id))
				count++
				if count%progressEvery == 0 {
					cfg.Logger.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("ids", count))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			cfg.Logger.Info("pass 1 complete", slog.Int("file", i+1), slog.Uint64("total_ids", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func collectCandidates(ctx context.Context, cfg Config, filters []*bloom.BloomFilter) ([]map[int64]uint64, error) {
	results := make([]map[int64]uint64, len(cfg.Files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range cfg.Files {
		g.Go(func() error {
			candidates := make(map[int64]uint64)
			bit := uint64(1) << uint(i)
			var buf [8]byte
			err := streamIDs(ctx, path, func(id int64) {
				k := key(&buf, id)
				seen := 1
				for j, f := range filters {
					if j != i && f.Test(k) {
						seen++
					}
				}
				if seen >= cfg.MinFiles {
					candidates[id] |= bit
				}
			})
			if err != nil {
				return errors.Wrapf(err, "file %d", i+1)
			}
			cfg.Logger.Info("pass 2 complete", slog.Int("file", i+1), slog.Int("candidates", len(candidates)))
			results[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func key(buf *[8]byte, id int64) []byte {
	return strconv.AppendInt(buf[:0], id, 10)
}

// streamIDs calls fn for every positive user ID in a gzip file. Blank and
// malformed lines are skipped.
func streamIDs(ctx context.Context, path string, fn func(id int64)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(scanner.Text()), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		fn(id)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

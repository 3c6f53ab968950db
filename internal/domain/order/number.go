package order

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// NumberGenerator issues human-readable order numbers of the form
// ORD-<yyyymmddHHMMSS>-<6 digit sequence>-<8 hex>. The sequence is
// monotonic per generator and the suffix is random, so numbers from one
// process never repeat within the sequence period and collisions across
// processes are left to the store's uniqueness constraint.
type NumberGenerator struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewNumberGenerator returns a generator using now for the timestamp part.
// nil means time.Now.
func NewNumberGenerator(now func() time.Time) *NumberGenerator {
	if now == nil {
		now = time.Now
	}
	return &NumberGenerator{now: now}
}

// Next returns a new order number. Safe for concurrent use.
func (g *NumberGenerator) Next() string {
	n := g.seq.Add(1) % 1_000_000
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("ORD-%s-%06d-%s", g.now().UTC().Format("20060102150405"), n, suffix)
}

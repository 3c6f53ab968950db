package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func pass(context.Context) error { return nil }

func failWith(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type probe struct {
	Code   int
	Status string
	Checks map[string]string
}

func get(t *testing.T, h http.Handler, path string) probe {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	p := probe{Code: w.Code, Checks: map[string]string{}}
	err := jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			s, err := d.Str()
			p.Status = s
			return err
		case "checks":
			return d.Obj(func(d *jx.Decoder, name string) error {
				msg, err := d.Str()
				p.Checks[name] = msg
				return err
			})
		default:
			return d.Skip()
		}
	})
	require.NoError(t, err)
	return p
}

func router(h *Health) http.Handler {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

// runN drives every check of the given set n times.
func runN(checks []*check, n int) {
	for _, c := range checks {
		for range n {
			c.run(context.Background())
		}
	}
}

func TestEndpoints(t *testing.T) {
	for _, tt := range []struct {
		name      string
		setup     func(h *Health)
		runs      int
		path      string
		code      int
		status    string
		failed    []string
		notFailed []string
	}{
		{
			name:   "LiveNoChecks",
			setup:  func(*Health) {},
			path:   "/livez",
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name: "LivePassing",
			setup: func(h *Health) {
				h.AddLivenessCheck("goroutines", time.Second, pass)
			},
			runs:   1,
			path:   "/livez",
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name: "LiveBelowThreshold",
			setup: func(h *Health) {
				h.AddLivenessCheck("flaky", time.Second, failWith("blip"))
			},
			runs:   2,
			path:   "/livez",
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name: "LiveFailing",
			setup: func(h *Health) {
				h.AddLivenessCheck("goroutines", time.Second, failWith("too many"))
			},
			runs:   3,
			path:   "/livez",
			code:   http.StatusServiceUnavailable,
			status: "unhealthy",
			failed: []string{"goroutines"},
		},
		{
			name: "LiveCustomThreshold",
			setup: func(h *Health) {
				h.AddLivenessCheck("strict", time.Second, failWith("down"), WithFailureThreshold(1))
			},
			runs:   1,
			path:   "/livez",
			code:   http.StatusServiceUnavailable,
			status: "unhealthy",
			failed: []string{"strict"},
		},
		{
			name: "ReadyNotMarked",
			setup: func(h *Health) {
				h.AddReadinessCheck("db", time.Second, pass)
			},
			runs:   1,
			path:   "/readyz",
			code:   http.StatusServiceUnavailable,
			status: "unhealthy",
			failed: []string{"_readiness"},
		},
		{
			name:   "ReadyNoChecks",
			setup:  func(h *Health) { h.SetReady(true) },
			path:   "/readyz",
			code:   http.StatusOK,
			status: "ok",
		},
		{
			name: "ReadyOneFailing",
			setup: func(h *Health) {
				h.AddReadinessCheck("db", time.Second, PingCheck(pinger{}))
				h.AddReadinessCheck("redis", time.Second, PingCheck(pinger{err: errors.New("refused")}))
				h.SetReady(true)
			},
			runs:      3,
			path:      "/readyz",
			code:      http.StatusServiceUnavailable,
			status:    "unhealthy",
			failed:    []string{"redis"},
			notFailed: []string{"db", "_readiness"},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			tt.setup(h)
			runN(h.liveness, tt.runs)
			runN(h.readiness, tt.runs)

			got := get(t, router(h), tt.path)
			assert.Equal(t, tt.code, got.Code)
			assert.Equal(t, tt.status, got.Status)
			for _, name := range tt.failed {
				assert.Contains(t, got.Checks, name)
			}
			for _, name := range tt.notFailed {
				assert.NotContains(t, got.Checks, name)
			}
		})
	}
}

func TestFailureMessage(t *testing.T) {
	h := New()
	h.AddReadinessCheck("redis", time.Second, PingCheck(pinger{err: errors.New("refused")}), WithFailureThreshold(1))
	h.SetReady(true)
	runN(h.readiness, 1)

	got := get(t, router(h), "/readyz")
	assert.Equal(t, "ping: refused", got.Checks["redis"])
}

func TestIsReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("db", time.Second, failWith("down"))
	assert.False(t, h.IsReady(), "not marked ready")

	h.SetReady(true)
	assert.True(t, h.IsReady(), "failures below threshold")

	runN(h.readiness, 3)
	assert.False(t, h.IsReady(), "failing check")

	h.SetReady(false)
	assert.False(t, h.IsReady())
}

func TestRecovery(t *testing.T) {
	var (
		mu   sync.Mutex
		down = true
	)
	h := New()
	h.AddLivenessCheck("flaky", time.Second, func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if down {
			return errors.New("down")
		}
		return nil
	}, WithSuccessThreshold(2))
	c := h.liveness[0]

	runN(h.liveness, 3)
	_, failed := c.failure()
	require.True(t, failed)

	mu.Lock()
	down = false
	mu.Unlock()

	runN(h.liveness, 1)
	_, failed = c.failure()
	assert.True(t, failed, "one success is below the threshold")

	runN(h.liveness, 1)
	_, failed = c.failure()
	assert.False(t, failed)
}

func TestCheckTimeout(t *testing.T) {
	h := New()
	h.AddLivenessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, WithFailureThreshold(1))
	runN(h.liveness, 1)

	msg, failed := h.liveness[0].failure()
	require.True(t, failed)
	assert.Equal(t, context.DeadlineExceeded.Error(), msg)
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(100000))
	h.AddReadinessCheck("db", time.Second, PingCheck(pinger{}))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	srv := router(h)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				for _, path := range []string{"/livez", "/readyz"} {
					w := httptest.NewRecorder()
					srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
					assert.Equal(t, http.StatusOK, w.Code, path)
				}
			}
		}()
	}
	wg.Wait()

	h.Stop()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
	assert.NoError(t, PingCheck(pinger{})(ctx))
	assert.ErrorContains(t, PingCheck(pinger{err: errors.New("refused")})(ctx), "refused")
}

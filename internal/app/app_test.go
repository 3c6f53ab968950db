package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xenking/kart-commerce/internal/handler"
	"github.com/xenking/kart-commerce/pkg/health"
	"github.com/xenking/kart-commerce/pkg/httpmiddleware"
)

const demoKey = "demo-key"

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }
func (noopTelemetry) TextMapPropagator() propagation.TextMapPropagator {
	return propagation.TraceContext{}
}

func newTestServer(t *testing.T, ctx context.Context, rateMax int) (http.Handler, *health.Health) {
	t.Helper()
	cfg := validConfig()
	cfg.SeedAPIKey = demoKey
	cfg.APIKeyPepper = "pepper"
	cfg.CORS.Origins = []string{"*"}
	cfg.RateLimit.Max = rateMax
	require.NoError(t, cfg.Validate())

	b, err := openBackend(ctx, zap.NewNop(), &cfg)
	require.NoError(t, err)
	t.Cleanup(b.close)
	assert.Nil(t, b.ping)

	idem, ping, closeIdem, err := openIdempotency(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(closeIdem)
	assert.Nil(t, ping)

	hs := health.New()
	h, err := newHandler(ctx, &cfg, b, idem, hs, noopTelemetry{})
	require.NoError(t, err)
	return h, hs
}

func serve(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerWiring(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, hs := newTestServer(t, ctx, 100)

	rec := serve(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	hs.SetReady(true)
	rec = serve(h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = serve(h, http.MethodGet, "/livez", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(httpmiddleware.RequestIDHeader))
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))

	rec = serve(h, http.MethodGet, "/api/users/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = serve(h, http.MethodGet, "/api/users/me", "", handler.APIKeyHeader, demoKey)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodPost, "/api/orders", `{"items":[{"productId":1,"quantity":1}]}`,
		handler.APIKeyHeader, demoKey,
		"Content-Type", "application/json",
	)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = serve(h, http.MethodOptions, "/api/orders", "",
		"Origin", "https://shop.example",
		"Access-Control-Request-Method", http.MethodPost,
	)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), handler.IdempotencyKeyHeader)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), handler.APIKeyHeader)
}

func TestHandlerRateLimitPerKey(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h, _ := newTestServer(t, ctx, 2)

	for range 2 {
		rec := serve(h, http.MethodGet, "/api/products", "", handler.APIKeyHeader, demoKey)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := serve(h, http.MethodGet, "/api/products", "", handler.APIKeyHeader, demoKey)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Another key has its own window.
	rec = serve(h, http.MethodGet, "/api/products", "", handler.APIKeyHeader, "other")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIdempotencySweeperStops(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())

	cfg := validConfig()
	cfg.IdempotencyTTL = time.Millisecond
	_, _, closeIdem, err := openIdempotency(ctx, &cfg)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	cancel()
	closeIdem()
}

//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestLivez(t *testing.T) {
	body := expectStatus[healthResponse](t, doGet(t, "/livez"), http.StatusOK)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

func TestReadyz(t *testing.T) {
	// Readiness covers both postgres and redis.
	body := expectStatus[healthResponse](t, doGet(t, "/readyz"), http.StatusOK)
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q (checks: %v)", body.Status, body.Checks)
	}
}

package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/auth"
)

func newRateLimitedEcho(cfg RateLimitConfig, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.Use(RateLimit(cfg, logger))
	e.GET("/api/v1/patients", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func requestAs(e *echo.Echo, user, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.RemoteAddr = ip + ":1234"
	if user != "" {
		req = req.WithContext(auth.WithUser(context.Background(), user, []string{auth.RoleReceptionist}))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_WithinBurst(t *testing.T) {
	e := newRateLimitedEcho(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 5}, zerolog.Nop())

	for i := 0; i < 5; i++ {
		rec := requestAs(e, "", "10.0.0.1")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "10" {
			t.Errorf("request %d: expected X-RateLimit-Limit 10, got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsBurst(t *testing.T) {
	var buf bytes.Buffer
	e := newRateLimitedEcho(RateLimitConfig{RequestsPerSecond: 0.5, BurstSize: 2}, zerolog.New(&buf))

	for i := 0; i < 2; i++ {
		if rec := requestAs(e, "", "10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := requestAs(e, "", "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("expected Retry-After 2, got %q", got)
	}
	if !strings.Contains(buf.String(), "rate limit exceeded") {
		t.Errorf("expected denial to be logged, got %q", buf.String())
	}
}

func TestRateLimit_SeparateBucketsPerUser(t *testing.T) {
	e := newRateLimitedEcho(RateLimitConfig{RequestsPerSecond: 0.1, BurstSize: 1}, zerolog.Nop())

	if rec := requestAs(e, "alice", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("alice first: expected 200, got %d", rec.Code)
	}
	if rec := requestAs(e, "alice", "10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("alice second: expected 429, got %d", rec.Code)
	}
	if rec := requestAs(e, "bob", "10.0.0.1"); rec.Code != http.StatusOK {
		t.Errorf("bob shares alice's address but not her bucket, got %d", rec.Code)
	}
	if rec := requestAs(e, "", "10.0.0.2"); rec.Code != http.StatusOK {
		t.Errorf("anonymous caller from another address, got %d", rec.Code)
	}
}

func TestRateLimit_InvalidConfigFallsBackToDefault(t *testing.T) {
	e := newRateLimitedEcho(RateLimitConfig{}, zerolog.Nop())

	rec := requestAs(e, "", "10.0.0.1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Errorf("expected default limit 100, got %q", got)
	}
}

func TestRateLimitKey(t *testing.T) {
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	key, _ := RateLimitKey(e.NewContext(req, httptest.NewRecorder()))
	if key != "192.0.2.7" {
		t.Errorf("anonymous key: got %q", key)
	}

	req = req.WithContext(auth.WithUser(context.Background(), "u1", nil))
	key, _ = RateLimitKey(e.NewContext(req, httptest.NewRecorder()))
	if key != "u1@192.0.2.7" {
		t.Errorf("user key: got %q", key)
	}
}

package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/clinic/clinic/internal/platform/auth"
)

// RateLimitConfig is a token bucket per caller.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// ExpiresIn drops idle buckets; zero uses echo's default of three minutes.
	ExpiresIn time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// RateLimitKey identifies the caller: the authenticated user at a given
// address, or the address alone for anonymous requests.
func RateLimitKey(c echo.Context) (string, error) {
	key := c.RealIP()
	if userID := auth.UserIDFromContext(c.Request().Context()); userID != "" {
		key = userID + "@" + key
	}
	return key, nil
}

// RateLimit rejects callers that exceed cfg with 429 and a Retry-After
// header. It must run after the auth middleware so users get their own
// buckets.
func RateLimit(cfg RateLimitConfig, logger zerolog.Logger) echo.MiddlewareFunc {
	if cfg.RequestsPerSecond <= 0 || cfg.BurstSize <= 0 {
		cfg = DefaultRateLimitConfig()
	}
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)
	retryAfter := strconv.Itoa(int(math.Max(1, math.Ceil(1/cfg.RequestsPerSecond))))

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		BeforeFunc: func(c echo.Context) {
			c.Response().Header().Set("X-RateLimit-Limit", limit)
		},
		IdentifierExtractor: RateLimitKey,
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RequestsPerSecond),
			Burst:     cfg.BurstSize,
			ExpiresIn: cfg.ExpiresIn,
		}),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logger.Warn().
				Str("caller", identifier).
				Str("path", c.Request().URL.Path).
				Msg("rate limit exceeded")
			c.Response().Header().Set("Retry-After", retryAfter)
			return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
		},
	})
}

package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/cache"
)

// RateLimiter checks token buckets keyed by user or client IP.
type RateLimiter interface {
	CheckUserRateLimit(ctx context.Context, scope, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, scope, ip string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig configures one rate-limited route group.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter
	Enabled bool
	Scope   string
	RPM     int
	Burst   int
}

// RateLimitUser limits requests per authenticated user. Must run after Auth.
func RateLimitUser(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		return passthrough
	}
	return rateLimit(cfg, "user", func(r *http.Request) (string, bool) {
		id := auth.UserIDFromContext(r.Context())
		return id, id != ""
	}, cfg.Limiter.CheckUserRateLimit)
}

// RateLimitIP limits requests per client IP. Used on the unauthenticated
// login and register routes.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.Limiter == nil {
		return passthrough
	}
	return rateLimit(cfg, "ip", func(r *http.Request) (string, bool) {
		return getClientIP(r), true
	}, cfg.Limiter.CheckIPRateLimit)
}

func passthrough(next http.Handler) http.Handler { return next }

type checkFunc func(ctx context.Context, scope, subject string, rpm, burst int) (*cache.RateLimitResult, error)

func rateLimit(cfg RateLimitConfig, kind string, subjectOf func(*http.Request) (string, bool), check checkFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := subjectOf(r)
			if !cfg.Enabled || cfg.RPM <= 0 || !ok {
				next.ServeHTTP(w, r)
				return
			}

			result, err := check(r.Context(), cfg.Scope, subject, cfg.RPM, cfg.Burst)
			if err != nil {
				// Fail open.
				cfg.Logger.Error("rate limit check failed",
					slog.String("error", err.Error()),
					slog.String("scope", cfg.Scope),
					slog.String("type", kind),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, cfg.RPM, result.Remaining, result.ResetAt)

			if !result.Allowed {
				cfg.Logger.Warn("rate limit exceeded",
					slog.String("scope", cfg.Scope),
					slog.String("type", kind),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(result.RetryAfter)))
				writeRateLimitError(w, result.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, remaining int64, resetAt time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func retrySeconds(d time.Duration) int {
	s := int(d.Seconds())
	if s < 1 {
		s = 1
	}
	return s
}

func writeRateLimitError(w http.ResponseWriter, retryAfter time.Duration) {
	writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		fmt.Sprintf("Too many requests. Retry after %d seconds.", retrySeconds(retryAfter)))
}

// getClientIP returns the caller's address. chi's RealIP middleware runs
// first and has already applied X-Forwarded-For / X-Real-IP.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quickgpt/quickgpt/internal/auth"
	"github.com/quickgpt/quickgpt/internal/model"
	"github.com/quickgpt/quickgpt/internal/service"
)

// TokenCookie is the cookie the browser client sends the session token in.
const TokenCookie = "token"

// Authenticator resolves a session token to the caller.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.AuthContext, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger        *slog.Logger
	Authenticator Authenticator
}

// Auth rejects requests without a valid session and injects the caller
// into the request context. The user record is loaded on every request, so
// handlers always see the current credit balance.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				logAuthFailure(cfg.Logger, r, "missing_token")
				writeAuthError(w)
				return
			}

			ac, err := cfg.Authenticator.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, service.ErrUnauthorized) {
					logAuthFailure(cfg.Logger, r, err.Error())
					writeAuthError(w)
					return
				}
				// Revocation store or database unavailable.
				cfg.Logger.Error("authentication unavailable",
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeJSONError(w, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication temporarily unavailable")
				return
			}

			publishUserID(r.Context(), ac.UserID)
			ctx := auth.ContextWithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken reads the session token from the cookie, falling back to an
// Authorization bearer header for non-browser clients.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}

func logAuthFailure(logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", getClientIP(r)),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
}

// writeAuthError uses one message for every failure.
func writeAuthError(w http.ResponseWriter) {
	writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized, please log in")
}

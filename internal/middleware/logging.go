package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// statusRecorder captures the status code written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// Logger writes one "http request" record per request. Headers, cookies
// and bodies are never logged; prompts and tokens stay out of the logs.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Auth runs further down the chain, so the handler publishes the
			// caller through this holder.
			var userID string
			r = r.WithContext(withUserIDSink(r.Context(), &userID))

			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", rec.status),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
				slog.String("remote_addr", getClientIP(r)),
				slog.String("user_agent", r.UserAgent()),
			}
			if userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			switch {
			case rec.status >= 500:
				level = slog.LevelError
			case rec.status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}

const userIDSinkKey contextKey = "user_id_sink"

func withUserIDSink(ctx context.Context, sink *string) context.Context {
	return context.WithValue(ctx, userIDSinkKey, sink)
}

// publishUserID records the authenticated caller for the request log.
func publishUserID(ctx context.Context, userID string) {
	if sink, ok := ctx.Value(userIDSinkKey).(*string); ok {
		*sink = userID
	}
}

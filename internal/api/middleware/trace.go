// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/paperdesk/paperdesk-api/internal/api/shared"
	"github.com/paperdesk/paperdesk-api/internal/platform/logger"
)

// Trace attaches a trace ID and a trace-scoped logger to every request
// context, so downstream log lines and error responses correlate.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			ctx = logger.WithContext(ctx, base.With("trace_id", shared.GetTraceID(ctx)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

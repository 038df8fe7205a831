package adminapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/gunes1hakan/feature-flags/internal/logger"
	"github.com/gunes1hakan/feature-flags/internal/observability"
)

// adminKeyHeader carries the operator credential on every admin request.
const adminKeyHeader = "X-Admin-Key"

// RequestLogger creates a middleware that logs the start and end of each request.
// It integrates with slog to provide structured logs including RequestID, Method, Path, Status, and Duration.
// The derived logger is injected into the context so handlers can correlate their own log lines.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Get RequestID set by Chi's RequestID middleware
		reqID := middleware.GetReqID(r.Context())

		reqLogger := slog.Default().With(slog.String("request_id", reqID))
		ctx := logger.WithContext(r.Context(), reqLogger)

		// Wrap the ResponseWriter to capture the status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// Process the request
		next.ServeHTTP(ww, r.WithContext(ctx))

		// Calculate duration
		duration := time.Since(start)

		// Log the completed request
		// We use Info level for success, Warn for 4xx, Error for 5xx
		level := slog.LevelInfo
		status := ww.Status()

		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		reqLogger.Log(ctx, level, "HTTP request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", duration.String(),
			"remote_ip", r.RemoteAddr,
		)
	})
}

// RequestMetrics records Prometheus metrics for every request.
// Labels use the Chi route pattern, never the raw path: raw paths would blow
// up label cardinality the moment a scanner walks random URLs.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// The route pattern is only known after routing has happened.
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			// Unmatched routes collapse into a single label value.
			route = "not_found"
		}

		observability.AdminPlaneReqDuration.WithLabelValues(r.Method, route).
			Observe(time.Since(start).Seconds())
		observability.AdminPlaneReqTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Inc()
	})
}

// authenticateAdminKey guards the /admin/v1 routes. Only the SHA-256 hash of
// the admin key is configured; the presented key is hashed and compared in
// constant time, so neither the plaintext nor timing leaks.
func (a *API) authenticateAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipAuth {
			next.ServeHTTP(w, r)
			return
		}

		presented := r.Header.Get(adminKeyHeader)
		if presented == "" {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_UNAUTHORIZED",
				Message: "Missing admin key",
			})
			return
		}

		sum := sha256.Sum256([]byte(presented))
		presentedHash := hex.EncodeToString(sum[:])

		if subtle.ConstantTimeCompare([]byte(presentedHash), []byte(a.adminKeyHash)) != 1 {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_UNAUTHORIZED",
				Message: "Invalid admin key",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Package sdkapi implements the REST API for the SDK-facing data plane.
// It serves the high-performance read path: flag listing and full evaluation.
package sdkapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/gunes1hakan/feature-flags/internal/engine"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// EnvironmentResolver translates the credentials of an SDK request into the
// project/environment pair the evaluation session works with. SDK requests
// never carry numeric ids, only a key and an environment name.
type EnvironmentResolver interface {
	// ResolveSDKKey returns the environment an unrevoked key is bound to.
	ResolveSDKKey(ctx context.Context, sdkKey string) (*store.Environment, error)

	// GetEnvironmentByName looks up an environment by its per-project name.
	GetEnvironmentByName(ctx context.Context, projectID int64, name string) (*store.Environment, error)
}

// Compile-time check: the Postgres store backs the resolver in production.
var _ EnvironmentResolver = (*store.PostgresStore)(nil)

// API is the main struct that holds dependencies and the router for the SDK plane.
// It follows the Dependency Injection pattern to facilitate testing.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	// session runs authentication, flag evaluation and config resolution.
	session *engine.Session

	// envs resolves SDK keys and environment names to ids.
	envs EnvironmentResolver
}

// NewAPI creates a new SDK plane API instance.
// Panics if session or envs are nil.
func NewAPI(session *engine.Session, envs EnvironmentResolver) *API {
	if session == nil {
		panic("sdkapi: evaluation session cannot be nil")
	}
	if envs == nil {
		panic("sdkapi: environment resolver cannot be nil")
	}

	api := &API{
		Router:  chi.NewRouter(),
		session: session,
		envs:    envs,
	}

	api.configureRoutes()
	return api
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// 1. Global Middleware Stack
	// RequestID: Adds a unique ID to each request context (essential for tracing).
	a.Router.Use(middleware.RequestID)
	// RealIP: correctly sets the IP if behind a proxy/LB.
	a.Router.Use(middleware.RealIP)
	// Logger: Logs request method, path, status, and duration.
	a.Router.Use(RequestLogger)
	// Recoverer: Prevents the server from crashing on panics, returning 500 instead.
	a.Router.Use(middleware.Recoverer)
	// Metrics: Records request counts and latencies with route-pattern labels.
	a.Router.Use(RequestMetrics)
	// Content-Type: Forces JSON content type for API responses.
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	// 2. Public Routes
	a.Router.Get("/health", a.handleHealthCheck)

	// 3. SDK V1 Routes (authenticated per-request via X-SDK-Key)
	a.Router.Route("/sdk/v1", func(r chi.Router) {
		r.Get("/flags", a.handleListFlags)
		r.Post("/evaluate", a.handleEvaluate)
	})
}

// handleHealthCheck reports whether the HTTP layer is serving. Deep checks
// (database, Redis) live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// Package adminapi implements the REST API for the admin control plane.
// It handles HTTP routing, request decoding, validation, and response formatting
// for every stored entity: projects, environments, SDK keys, flags, variants,
// rules and remote configs.
package adminapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/gunes1hakan/feature-flags/internal/cache"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// Store aggregates the repositories the admin plane writes through.
// The Postgres store implements all of them; tests substitute fakes.
type Store interface {
	store.ProjectRepository
	store.FlagRepository
	store.ConfigRepository
	store.SDKKeyRepository
}

// Compile-time check: the production store satisfies the aggregate.
var _ Store = (*store.PostgresStore)(nil)

// API is the main struct that holds dependencies and the router for the admin plane.
// It follows the Dependency Injection pattern to facilitate testing.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	// store is the data access layer for all admin entities.
	store Store

	// invalidator drops cached snapshots of a project after a mutation.
	invalidator cache.Invalidator

	// adminKeyHash is the SHA-256 hash of the valid admin key.
	// Used for authentication in production environments.
	adminKeyHash string

	// skipAuth disables authentication when true (test/dev environments only).
	// Production environments should always set this to false.
	skipAuth bool
}

// NewAPI creates a new API instance with authentication enabled by default.
// The adminKeyHash parameter must be the SHA-256 hash of the admin key.
func NewAPI(repo Store, invalidator cache.Invalidator, adminKeyHash string) *API {
	return NewAPIWithConfig(repo, invalidator, adminKeyHash, false)
}

// NewAPIWithConfig creates a new API instance with explicit control over
// authentication. This constructor is primarily used in tests to disable it.
//
// Panics if:
//   - repo or invalidator are nil
//   - adminKeyHash is empty when skipAuth is false
func NewAPIWithConfig(repo Store, invalidator cache.Invalidator, adminKeyHash string, skipAuth bool) *API {
	// We check the interface explicitly.
	// An interface is only nil if it has no underlying type and no value.
	if repo == nil {
		panic("adminapi: store cannot be nil")
	}
	if invalidator == nil {
		panic("adminapi: cache invalidator cannot be nil")
	}

	// Validate authentication configuration
	if !skipAuth && adminKeyHash == "" {
		panic("adminapi: adminKeyHash cannot be empty when authentication is enabled")
	}

	api := &API{
		Router:       chi.NewRouter(),
		store:        repo,
		invalidator:  invalidator,
		adminKeyHash: adminKeyHash,
		skipAuth:     skipAuth,
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

	// 2. Public Routes (no authentication required)
	a.Router.Get("/health", a.handleHealthCheck)

	// 3. Protected Admin V1 Routes (authentication required)
	a.Router.Route("/admin/v1", func(r chi.Router) {
		// Apply authentication middleware to all /admin/v1/* routes
		r.Use(a.authenticateAdminKey)

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", a.handleCreateProject)
			r.Get("/", a.handleListProjects)

			r.Route("/{projectID}", func(r chi.Router) {
				r.Get("/", a.handleGetProject)
				r.Delete("/", a.handleDeleteProject)

				r.Route("/envs", func(r chi.Router) {
					r.Post("/", a.handleCreateEnvironment)
					r.Get("/", a.handleListEnvironments)
					r.Delete("/{envID}", a.handleDeleteEnvironment)
				})

				r.Route("/flags", func(r chi.Router) {
					r.Post("/", a.handleCreateFlag)
					r.Get("/", a.handleListFlags)

					r.Route("/{key}", func(r chi.Router) {
						r.Get("/", a.handleGetFlag)
						r.Patch("/", a.handleUpdateFlag)
						r.Delete("/", a.handleDeleteFlag)

						r.Route("/variants", func(r chi.Router) {
							r.Post("/", a.handleCreateVariant)
							r.Get("/", a.handleListVariants)
							r.Delete("/{name}", a.handleDeleteVariant)
						})

						r.Route("/rules", func(r chi.Router) {
							r.Post("/", a.handleCreateRule)
							r.Get("/", a.handleListRules)
							r.Delete("/{ruleID}", a.handleDeleteRule)
						})
					})
				})

				r.Route("/configs", func(r chi.Router) {
					r.Put("/", a.handleUpsertConfig)
					r.Get("/", a.handleListConfigs)
					r.Delete("/{key}", a.handleDeleteConfig)
				})
			})
		})

		r.Route("/envs/{envID}/keys", func(r chi.Router) {
			r.Post("/", a.handleCreateSDKKey)
			r.Get("/", a.handleListSDKKeys)
		})
		r.Delete("/keys/{keyID}", a.handleRevokeSDKKey)
	})
}

// handleHealthCheck verifies if the service is healthy and serving HTTP.
// Deep dependency checks live on the observability server's readiness probe.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// notifyCacheAsync invalidates a project's cached snapshots without blocking
// the HTTP response. SDK clients must not read stale data longer than the
// retry window; after that the L2 TTL is the backstop.
func (a *API) notifyCacheAsync(log *slog.Logger, projectID int64) {
	go func(id int64) {
		// Create a context disconnected from the HTTP request.
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		const maxRetries = 3
		baseDelay := 100 * time.Millisecond

		for i := 0; i <= maxRetries; i++ {
			err := a.invalidator.InvalidateProject(ctx, id)
			if err == nil {
				return
			}

			if i == maxRetries {
				log.Error("CRITICAL: failed to invalidate project cache after retries",
					slog.Int64("project_id", id),
					slog.String("error", err.Error()))
				return
			}

			// Simple exponential backoff
			log.Warn("failed to invalidate project cache, retrying...",
				slog.Int64("project_id", id),
				slog.Int("attempt", i+1),
				slog.String("error", err.Error()))

			time.Sleep(baseDelay * time.Duration(1<<i))
		}
	}(projectID)
}

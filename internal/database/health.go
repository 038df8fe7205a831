package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthChecker reports Postgres reachability to the readiness probe. Both
// planes fail readiness when the flag store is gone: the admin API cannot
// write and the SDK API cannot fill cache misses.
type HealthChecker struct {
	pool *pgxpool.Pool
}

// NewHealthChecker wraps the shared connection pool.
func NewHealthChecker(pool *pgxpool.Pool) *HealthChecker {
	return &HealthChecker{pool: pool}
}

// Name identifies this dependency in the readiness response.
func (h *HealthChecker) Name() string {
	return "postgres"
}

// Check pings the pool within the probe's deadline.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.pool == nil {
		return fmt.Errorf("database pool is not configured")
	}
	return h.pool.Ping(ctx)
}

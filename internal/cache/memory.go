package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter"

	"github.com/gunes1hakan/feature-flags/internal/engine"
	"github.com/gunes1hakan/feature-flags/internal/observability"
)

// MemoryCache acts as the L1 caching layer for project snapshots, using a
// high-performance, contention-free algorithm (S3-FIFO) provided by the
// 'otter' library. Snapshots are keyed by project id.
type MemoryCache struct {
	store otter.Cache[int64, *engine.Snapshot]
}

// NewMemoryCache initializes the in-memory cache with strict limits.
// capacity: Max number of snapshots (Hard Cap to prevent OOM).
// ttl: Time-To-Live for snapshots (Safety net for eventual consistency).
func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	builder := otter.MustBuilder[int64, *engine.Snapshot](capacity).
		WithTTL(ttl)

	cache, err := builder.Build()
	if err != nil {
		return nil, err
	}

	return &MemoryCache{store: cache}, nil
}

// Get retrieves a project snapshot from memory.
// This operation is virtually lock-free and extremely fast.
func (c *MemoryCache) Get(projectID int64) (*engine.Snapshot, bool) {
	snap, found := c.store.Get(projectID)
	if found {
		observability.CacheHits.WithLabelValues("memory").Inc()
	} else {
		observability.CacheMisses.WithLabelValues("memory").Inc()
	}
	return snap, found
}

// Set adds or updates a project snapshot in memory.
// The TTL configured in NewMemoryCache is applied automatically.
func (c *MemoryCache) Set(projectID int64, snap *engine.Snapshot) {
	c.store.Set(projectID, snap)
}

// Del removes a project snapshot from memory.
// Used primarily by the Pub/Sub listener when an invalidation event is received.
func (c *MemoryCache) Del(projectID int64) {
	c.store.Delete(projectID)
}

// RunMetricsCollector periodically publishes cache occupancy to Prometheus.
// It blocks until the context is cancelled.
func (c *MemoryCache) RunMetricsCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.CacheItems.Set(float64(c.store.Size()))
		}
	}
}

// Close gracefully shuts down the cache and its background cleanup goroutines.
func (c *MemoryCache) Close() {
	c.store.Close()
}

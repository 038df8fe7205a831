package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/gunes1hakan/feature-flags/internal/engine"
	"github.com/gunes1hakan/feature-flags/internal/observability"
)

// Compile-time check: the layered source is what evaluation sessions load from.
var _ engine.SnapshotLoader = (*SnapshotSource)(nil)

// SnapshotSource is the read-through composition of the cache layers:
// memory (L1) -> Redis (L2) -> database. Cache failures never fail a request;
// they degrade to the next layer and are logged.
type SnapshotSource struct {
	memory *MemoryCache
	redis  *SnapshotCache
	store  engine.SnapshotLoader
	logger *slog.Logger
}

// NewSnapshotSource wires the layers. memory and redis are optional (nil
// disables the layer); the store is mandatory as the source of truth.
func NewSnapshotSource(memory *MemoryCache, redis *SnapshotCache, store engine.SnapshotLoader, logger *slog.Logger) *SnapshotSource {
	if store == nil {
		panic("cache: snapshot store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotSource{memory: memory, redis: redis, store: store, logger: logger}
}

// LoadEvaluationSnapshot serves the snapshot from the fastest layer that has
// it, populating the layers above the one that answered.
func (s *SnapshotSource) LoadEvaluationSnapshot(ctx context.Context, projectID int64) (*engine.Snapshot, error) {
	// L1: in-process memory.
	if s.memory != nil {
		if snap, found := s.memory.Get(projectID); found {
			return snap, nil
		}
	}

	// L2: Redis. Failures here degrade to the database.
	if s.redis != nil {
		snap, found, err := s.redis.GetSnapshot(ctx, projectID)
		switch {
		case err != nil:
			s.logger.WarnContext(ctx, "redis snapshot read failed, falling through to database",
				slog.Int64("project_id", projectID),
				slog.String("error", err.Error()),
			)
			observability.CacheMisses.WithLabelValues("redis").Inc()
		case found:
			observability.CacheHits.WithLabelValues("redis").Inc()
			if s.memory != nil {
				s.memory.Set(projectID, snap)
			}
			return snap, nil
		default:
			observability.CacheMisses.WithLabelValues("redis").Inc()
		}
	}

	// Source of truth.
	start := time.Now()
	snap, err := s.store.LoadEvaluationSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	observability.SnapshotLoadDuration.Observe(time.Since(start).Seconds())

	// Populate the layers back-to-front; both writes are best effort.
	if s.redis != nil {
		if err := s.redis.SetSnapshot(ctx, snap); err != nil {
			s.logger.WarnContext(ctx, "failed to populate redis snapshot cache",
				slog.Int64("project_id", projectID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.memory != nil {
		s.memory.Set(projectID, snap)
	}

	return snap, nil
}

// Invalidate drops the project's L1 entry. The Pub/Sub subscriber calls this
// when an invalidation event arrives; the publisher already removed L2.
func (s *SnapshotSource) Invalidate(projectID int64) {
	if s.memory != nil {
		s.memory.Del(projectID)
	}
}

// Package cache provides the layered snapshot cache for the feature-flags
// system. An in-memory L1 (otter) sits in front of a Redis L2; the database
// remains the source of truth and Pub/Sub carries invalidation events between
// service instances.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gunes1hakan/feature-flags/internal/engine"
)

// snapshotKeyPrefix is the namespace used for snapshot keys in Redis.
// Example: "ff:snapshot:42"
const snapshotKeyPrefix = "ff:snapshot"

// Invalidator drops every cached view of a project after an admin write.
// The admin plane depends on this interface, not on Redis.
type Invalidator interface {
	// InvalidateProject removes the project's L2 entry and broadcasts the
	// invalidation so every instance drops its L1 entry too.
	InvalidateProject(ctx context.Context, projectID int64) error
}

// Compile-time check to verify that SnapshotCache implements Invalidator.
var _ Invalidator = (*SnapshotCache)(nil)

// SnapshotCache implements the L2 layer using the go-redis library. Whole
// snapshots are stored as JSON blobs under a per-project key.
type SnapshotCache struct {
	client  *redis.Client
	ttl     time.Duration
	channel string
}

// NewSnapshotCache wraps an established Redis client.
// ttl bounds staleness when an invalidation event is lost.
// channel is the Pub/Sub channel carrying invalidation events.
func NewSnapshotCache(client *redis.Client, ttl time.Duration, channel string) *SnapshotCache {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	return &SnapshotCache{client: client, ttl: ttl, channel: channel}
}

func snapshotKey(projectID int64) string {
	return fmt.Sprintf("%s:%d", snapshotKeyPrefix, projectID)
}

// GetSnapshot retrieves a project snapshot from Redis.
// A cache miss returns (nil, false, nil); errors are reserved for real failures.
func (c *SnapshotCache) GetSnapshot(ctx context.Context, projectID int64) (*engine.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, snapshotKey(projectID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get snapshot for project %d: %w", projectID, err)
	}

	var snap engine.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		// A corrupt entry is as good as a miss; the loader will overwrite it.
		return nil, false, fmt.Errorf("failed to decode cached snapshot for project %d: %w", projectID, err)
	}

	return &snap, true, nil
}

// SetSnapshot stores a project snapshot in Redis with the configured TTL.
func (c *SnapshotCache) SetSnapshot(ctx context.Context, snap *engine.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for project %d: %w", snap.ProjectID, err)
	}

	if err := c.client.Set(ctx, snapshotKey(snap.ProjectID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot for project %d: %w", snap.ProjectID, err)
	}

	return nil
}

// DeleteSnapshot removes a project snapshot from Redis.
func (c *SnapshotCache) DeleteSnapshot(ctx context.Context, projectID int64) error {
	if err := c.client.Del(ctx, snapshotKey(projectID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot for project %d: %w", projectID, err)
	}
	return nil
}

// InvalidateProject removes the L2 entry and publishes the project id on the
// invalidation channel. The order matters: the L2 delete must land before
// subscribers drop their L1 entries, or a racing reader could repopulate L1
// from the stale L2 value.
func (c *SnapshotCache) InvalidateProject(ctx context.Context, projectID int64) error {
	if err := c.DeleteSnapshot(ctx, projectID); err != nil {
		return err
	}

	payload := strconv.FormatInt(projectID, 10)
	if err := c.client.Publish(ctx, c.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish invalidation for project %d: %w", projectID, err)
	}

	return nil
}

// HealthCheck verifies the connection to the Redis server.
func (c *SnapshotCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client connection.
func (c *SnapshotCache) Close() error {
	return c.client.Close()
}

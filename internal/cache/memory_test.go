package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gunes1hakan/feature-flags/internal/cache"
	"github.com/gunes1hakan/feature-flags/internal/engine"
	"github.com/gunes1hakan/feature-flags/internal/testsupport"
)

func newTestSnapshot(projectID int64) *engine.Snapshot {
	return &engine.Snapshot{
		ProjectID: projectID,
		Flags: []engine.Flag{
			{ID: 1, ProjectID: projectID, Key: "enable_dark_mode", On: true, DefaultVariant: "off", Status: engine.StatusPublished},
		},
	}
}

func TestMemoryCache(t *testing.T) {
	mem, err := cache.NewMemoryCache(16, time.Minute)
	require.NoError(t, err)
	defer mem.Close()

	t.Run("Should miss on empty cache and count the miss", func(t *testing.T) {
		testsupport.AssertMetricDelta(t, "ff_cache_misses_total", map[string]string{"layer": "memory"}, 1, func() {
			snap, found := mem.Get(42)
			require.False(t, found)
			require.Nil(t, snap)
		})
	})

	t.Run("Should hit after set and count the hit", func(t *testing.T) {
		mem.Set(42, newTestSnapshot(42))

		testsupport.AssertMetricDelta(t, "ff_cache_hits_total", map[string]string{"layer": "memory"}, 1, func() {
			snap, found := mem.Get(42)
			require.True(t, found)
			require.Equal(t, int64(42), snap.ProjectID)
			require.Len(t, snap.Flags, 1)
		})
	})

	t.Run("Should miss after delete", func(t *testing.T) {
		mem.Set(7, newTestSnapshot(7))
		mem.Del(7)

		_, found := mem.Get(7)
		require.False(t, found)
	})

	t.Run("Should keep projects isolated by id", func(t *testing.T) {
		mem.Set(1, newTestSnapshot(1))
		mem.Set(2, newTestSnapshot(2))

		snap, found := mem.Get(1)
		require.True(t, found)
		require.Equal(t, int64(1), snap.ProjectID)

		snap, found = mem.Get(2)
		require.True(t, found)
		require.Equal(t, int64(2), snap.ProjectID)
	})
}

func TestMemoryCacheMetricsCollector(t *testing.T) {
	mem, err := cache.NewMemoryCache(16, time.Minute)
	require.NoError(t, err)
	defer mem.Close()

	mem.Set(1, newTestSnapshot(1))
	mem.Set(2, newTestSnapshot(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mem.RunMetricsCollector(ctx, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return testsupport.GetMetricValue(t, "ff_cache_memory_items_count", nil) == 2
	}, 2*time.Second, 10*time.Millisecond, "occupancy gauge should reflect stored snapshots")
}

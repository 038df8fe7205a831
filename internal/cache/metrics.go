package cache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// go-redis exposes cumulative pool statistics via PoolStats() snapshots, so
// the gauges below are refreshed by a sidecar sampler, mirroring the database
// pool monitor.
var (
	redisPoolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ff",
		Subsystem: "redis",
		Name:      "pool_connections",
		Help:      "Current Redis pool connections by state",
	}, []string{"state"}) // total, idle, stale

	redisPoolHits = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ff",
		Subsystem: "redis",
		Name:      "pool_hits_total",
		Help:      "Cumulative number of times a free connection was found in the pool",
	})

	redisPoolMisses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ff",
		Subsystem: "redis",
		Name:      "pool_misses_total",
		Help:      "Cumulative number of times a free connection was NOT found in the pool",
	})

	redisPoolTimeouts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ff",
		Subsystem: "redis",
		Name:      "pool_timeouts_total",
		Help:      "Cumulative number of times a wait for a connection timed out",
	})
)

// RunPoolMonitor samples Redis pool statistics into Prometheus gauges at the
// given interval. It blocks until the context is cancelled.
func RunPoolMonitor(ctx context.Context, client *redis.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	collect := func() {
		stats := client.PoolStats()
		redisPoolConnections.WithLabelValues("total").Set(float64(stats.TotalConns))
		redisPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns))
		redisPoolConnections.WithLabelValues("stale").Set(float64(stats.StaleConns))
		redisPoolHits.Set(float64(stats.Hits))
		redisPoolMisses.Set(float64(stats.Misses))
		redisPoolTimeouts.Set(float64(stats.Timeouts))
	}

	collect()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collect()
		}
	}
}

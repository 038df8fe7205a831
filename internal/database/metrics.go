package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pgx exposes cumulative pool statistics via Stat() snapshots rather than
// callbacks, so the gauges below are refreshed by a sidecar sampler.
var (
	poolConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ff",
		Subsystem: "database",
		Name:      "pool_connections",
		Help:      "Current database pool connections by state",
	}, []string{"state"}) // total, idle, in_use, max

	poolAcquireCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ff",
		Subsystem: "database",
		Name:      "pool_acquire_count_total",
		Help:      "Cumulative number of successful connection acquires",
	})

	poolAcquireDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ff",
		Subsystem: "database",
		Name:      "pool_acquire_duration_seconds_total",
		Help:      "Cumulative time spent acquiring connections",
	})

	poolWaitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ff",
		Subsystem: "database",
		Name:      "pool_wait_count_total",
		Help:      "Cumulative number of acquires that blocked on an exhausted pool",
	})
)

// RunPoolMonitor samples pool statistics into Prometheus gauges at the given
// interval. It blocks until the context is cancelled; run it in a goroutine
// next to the pool it observes.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	collect := func() {
		stat := pool.Stat()
		poolConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
		poolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
		poolConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))
		poolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
		poolAcquireCount.Set(float64(stat.AcquireCount()))
		poolAcquireDuration.Set(stat.AcquireDuration().Seconds())
		poolWaitCount.Set(float64(stat.EmptyAcquireCount()))
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

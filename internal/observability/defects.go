package observability

import (
	"context"

	"github.com/gunes1hakan/feature-flags/internal/engine"
)

// Compile-time check to verify that MetricsDefectReporter implements the
// engine's reporter contract.
var _ engine.DefectReporter = (*MetricsDefectReporter)(nil)

// MetricsDefectReporter counts configuration defects per kind and forwards
// them to the next reporter (usually the slog-backed one). The evaluation core
// stays free of any Prometheus dependency this way.
type MetricsDefectReporter struct {
	next engine.DefectReporter
}

// NewMetricsDefectReporter wraps the given reporter. next may be nil when only
// the counter is wanted.
func NewMetricsDefectReporter(next engine.DefectReporter) *MetricsDefectReporter {
	return &MetricsDefectReporter{next: next}
}

// ReportDefect increments the per-kind counter and delegates.
func (r *MetricsDefectReporter) ReportDefect(ctx context.Context, d engine.Defect) {
	EvalDefects.WithLabelValues(d.Kind).Inc()
	if r.next != nil {
		r.next.ReportDefect(ctx, d)
	}
}

package engine

import (
	"context"
	"log/slog"
)

// Defect kinds. Each names a stored-data quality problem that the engine
// tolerates at evaluation time.
const (
	DefectMalformedPredicate     = "malformed_predicate"
	DefectMalformedDistribution  = "malformed_distribution"
	DefectZeroWeightDistribution = "zero_weight_distribution"
	DefectDanglingVariant        = "dangling_variant_reference"
	DefectDanglingDefault        = "dangling_default_variant"
)

// Defect describes a configuration problem found in stored flag data.
// Defects are non-fatal: the affected flag degrades to its default variant
// while the rest of the batch proceeds.
type Defect struct {
	ProjectID int64
	FlagKey   string
	RuleID    int64
	Kind      string
	Detail    string
}

// DefectReporter is the observability channel for configuration defects.
// Implementations must be safe for concurrent use and must never block the
// evaluation path on I/O.
type DefectReporter interface {
	ReportDefect(ctx context.Context, d Defect)
}

// LogReporter reports defects as structured warnings. It is the baseline
// reporter; the observability package wraps it with metrics.
type LogReporter struct {
	logger *slog.Logger
}

// NewLogReporter creates a reporter backed by the given logger.
// If logger is nil, it defaults to slog.Default().
func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

// ReportDefect logs the defect at WARN level. Defects are stored-data
// problems, not request failures, so they are never surfaced to SDK clients.
func (r *LogReporter) ReportDefect(ctx context.Context, d Defect) {
	r.logger.WarnContext(ctx, "flag configuration defect",
		slog.String("kind", d.Kind),
		slog.Int64("project_id", d.ProjectID),
		slog.String("flag_key", d.FlagKey),
		slog.Int64("rule_id", d.RuleID),
		slog.String("detail", d.Detail),
	)
}

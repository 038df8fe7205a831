package engine

import (
	"context"
	"log/slog"
	"sort"
)

// Evaluator holds the cross-cutting dependencies of the pure evaluation
// functions: a logger and the defect reporting channel. It carries no request
// state and is safe for concurrent use.
type Evaluator struct {
	logger     *slog.Logger
	defects    DefectReporter
	serveDraft bool
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithServeDraftFlags makes draft flags servable to SDK clients.
// The default policy excludes them; nothing in the admin surface proves the
// opposite, so the permissive behavior is opt-in.
func WithServeDraftFlags(serve bool) Option {
	return func(e *Evaluator) { e.serveDraft = serve }
}

// NewEvaluator creates an Evaluator. A nil logger falls back to slog.Default()
// and a nil reporter falls back to logging, so the zero configuration is
// always usable in tests.
func NewEvaluator(logger *slog.Logger, defects DefectReporter, opts ...Option) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if defects == nil {
		defects = NewLogReporter(logger)
	}

	e := &Evaluator{
		logger:  logger,
		defects: defects,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveRule selects the rule that governs a flag for one environment.
//
// Rules are filtered to the requested environment, ordered by
// (priority ascending, id ascending) so evaluation order is deterministic
// regardless of storage order, and the first rule whose predicate matches
// wins. A malformed predicate is reported as a defect and skipped, exactly as
// if it had not matched.
func (e *Evaluator) ResolveRule(ctx context.Context, f Flag, rules []Rule, environmentID int64, attrs Attributes) *Rule {
	var scoped []Rule
	for _, r := range rules {
		if r.EnvironmentID == environmentID {
			scoped = append(scoped, r)
		}
	}
	if len(scoped) == 0 {
		return nil
	}

	sort.Slice(scoped, func(i, j int) bool {
		if scoped[i].Priority != scoped[j].Priority {
			return scoped[i].Priority < scoped[j].Priority
		}
		return scoped[i].ID < scoped[j].ID
	})

	for i := range scoped {
		r := &scoped[i]

		pred, err := ParsePredicate(r.Predicate)
		if err != nil {
			e.defects.ReportDefect(ctx, Defect{
				ProjectID: f.ProjectID,
				FlagKey:   f.Key,
				RuleID:    r.ID,
				Kind:      DefectMalformedPredicate,
				Detail:    err.Error(),
			})
			continue
		}

		if pred.Matches(attrs) {
			return r
		}
	}
	return nil
}

// Package engine implements the flag evaluation and config resolution core.
//
// Components 1-5 (predicate matcher, bucketing, rule resolver, flag
// evaluator, config resolver) are pure functions over supplied data. The
// Session is the per-request façade: it is the only component aware of
// authentication, snapshots, or "a request", and it never mutates stored
// entities.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Authenticator verifies that an SDK key is bound to the requested project and
// environment. It is an external collaborator; implementations live in the
// storage layer.
type Authenticator interface {
	Authenticate(ctx context.Context, sdkKey string, projectID, environmentID int64) error
}

// SnapshotLoader supplies the consistent, point-in-time view of a project's
// flags, variants, rules and configs. Implementations must never expose a
// partially written state.
type SnapshotLoader interface {
	LoadEvaluationSnapshot(ctx context.Context, projectID int64) (*Snapshot, error)
}

// Session evaluates requests against snapshots. It holds no per-request state
// and is safe for concurrent use; multiple evaluations proceed fully in
// parallel against their own snapshots.
type Session struct {
	auth      Authenticator
	snapshots SnapshotLoader
	eval      *Evaluator
	logger    *slog.Logger
}

// NewSession wires the session with its collaborators.
// All dependencies are mandatory except the logger.
func NewSession(auth Authenticator, snapshots SnapshotLoader, eval *Evaluator, logger *slog.Logger) *Session {
	if auth == nil {
		panic("engine: authenticator cannot be nil")
	}
	if snapshots == nil {
		panic("engine: snapshot loader cannot be nil")
	}
	if eval == nil {
		panic("engine: evaluator cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		auth:      auth,
		snapshots: snapshots,
		eval:      eval,
		logger:    logger,
	}
}

// EvaluateRequest carries one resolved SDK request. The HTTP layer has already
// translated the environment name into ids; the core never sees names or UI
// labels.
type EvaluateRequest struct {
	ProjectID     int64
	EnvironmentID int64
	SDKKey        string
	// Attributes is the raw user object from the request body. Nil or empty
	// means an anonymous user with no attributes.
	Attributes json.RawMessage
}

// EvaluateResult is the combined outcome of a full evaluation: every servable
// flag's decision plus the resolved config map.
type EvaluateResult struct {
	Flags   []FlagResult               `json:"flags"`
	Configs map[string]json.RawMessage `json:"configs"`
}

// Evaluate authenticates the key, loads the project snapshot, evaluates every
// servable flag and resolves the config map.
//
// Errors about the request itself (auth, malformed input, cancellation) abort
// the whole call; defects in individual stored flags degrade only those flags.
// A cancelled context never yields partial results.
func (s *Session) Evaluate(ctx context.Context, req EvaluateRequest) (*EvaluateResult, error) {
	return s.run(ctx, req, true)
}

// ListFlags is the narrower flags-only entrypoint backing the GET listing
// endpoint. The user is anonymous, so per-flag results reflect defaults and
// environment rules without user targeting.
func (s *Session) ListFlags(ctx context.Context, req EvaluateRequest) ([]FlagResult, error) {
	result, err := s.run(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return result.Flags, nil
}

func (s *Session) run(ctx context.Context, req EvaluateRequest, withConfigs bool) (*EvaluateResult, error) {
	// 1. Authentication. An unbound key never reaches the evaluation core.
	if err := s.auth.Authenticate(ctx, req.SDKKey, req.ProjectID, req.EnvironmentID); err != nil {
		return nil, err
	}

	// 2. Input validation, all-or-nothing at the request boundary.
	attrs, err := ParseAttributes(req.Attributes)
	if err != nil {
		return nil, &InputError{Err: err}
	}

	// 3. Load the immutable snapshot. This is the only I/O in the call.
	snap, err := s.snapshots.LoadEvaluationSnapshot(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}

	// 4. Evaluate every servable flag, in stable key order.
	flags := snap.SortedFlags()
	results := make([]FlagResult, 0, len(flags))
	for _, f := range flags {
		if !s.eval.Servable(f) {
			continue
		}
		results = append(results, s.eval.EvaluateFlag(ctx, snap, f, req.EnvironmentID, attrs))
	}

	// 5. The whole evaluation either completes or is discarded.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &EvaluateResult{Flags: results}
	if withConfigs {
		result.Configs = ResolveConfigs(snap.Configs, req.EnvironmentID)
	}

	s.logger.DebugContext(ctx, "evaluation completed",
		slog.Int64("project_id", req.ProjectID),
		slog.Int64("environment_id", req.EnvironmentID),
		slog.Int("flags", len(results)),
	)
	return result, nil
}

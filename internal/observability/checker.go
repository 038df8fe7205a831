package observability

import "context"

// Checker is one readiness dependency of a plane, such as the flag store or
// the snapshot cache. Implementations must be safe for concurrent use and
// must honor the context deadline.
type Checker interface {
	// Name identifies the dependency in the readiness response body.
	Name() string
	// Check returns nil when the dependency is reachable.
	Check(ctx context.Context) error
}

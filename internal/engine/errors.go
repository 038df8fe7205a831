package engine

import "fmt"

// The error taxonomy below covers request-level failures only. Data-quality
// problems in stored entities are never errors: they degrade the single
// affected flag and are reported as defects (see defect.go).

// AuthError indicates an invalid SDK key, or a key not bound to the requested
// project/environment pair. It aborts the whole session before any flag is
// touched.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// NotFoundError indicates an unknown project or environment name, surfaced
// before evaluation begins.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Name)
}

// InputError indicates that the caller-supplied user attributes are not a
// well-formed object. It is all-or-nothing: no flag is evaluated when the
// input itself is broken.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return "invalid evaluation input: " + e.Err.Error()
}

func (e *InputError) Unwrap() error { return e.Err }

package sdkapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/gunes1hakan/feature-flags/internal/engine"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// sdkKeyHeader carries the per-environment credential on every SDK request.
const sdkKeyHeader = "X-SDK-Key"

// EvaluateRequest defines the payload for the POST /sdk/v1/evaluate endpoint.
type EvaluateRequest struct {
	// Attributes is the user object targeting rules are matched against.
	// Omitted or null means an anonymous user.
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// FlagsResponse is the body of the GET /sdk/v1/flags endpoint.
type FlagsResponse struct {
	Env   string              `json:"env"`
	Flags []engine.FlagResult `json:"flags"`
}

// EvaluateResponse is the body of the POST /sdk/v1/evaluate endpoint: every
// servable flag's decision for this user plus the resolved config map.
type EvaluateResponse struct {
	Env     string                     `json:"env"`
	Flags   []engine.FlagResult        `json:"flags"`
	Configs map[string]json.RawMessage `json:"configs"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_UNAUTHORIZED").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`
}

// renderEngineError maps the evaluation error taxonomy onto HTTP statuses.
// Anything outside the taxonomy is an internal failure and stays opaque to
// the client.
func renderEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var authErr *engine.AuthError
	if errors.As(err, &authErr) {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_UNAUTHORIZED",
			Message: authErr.Error(),
		})
		return
	}

	var notFoundErr *engine.NotFoundError
	if errors.As(err, &notFoundErr) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_NOT_FOUND",
			Message: notFoundErr.Error(),
		})
		return
	}

	var inputErr *engine.InputError
	if errors.As(err, &inputErr) {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: inputErr.Error(),
		})
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_NOT_FOUND",
			Message: "resource not found",
		})
		return
	}

	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, ErrorResponse{
		Code:    "ERR_INTERNAL",
		Message: "Internal server error",
	})
}

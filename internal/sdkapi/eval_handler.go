package sdkapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/gunes1hakan/feature-flags/internal/engine"
	"github.com/gunes1hakan/feature-flags/internal/logger"
	"github.com/gunes1hakan/feature-flags/internal/observability"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// handleListFlags processes the GET /sdk/v1/flags?env= request.
//
// Responsibilities:
// 1. Resolves the SDK key and environment name into ids.
// 2. Runs the flags-only evaluation for an anonymous user.
// 3. Returns the per-flag decisions.
func (a *API) handleListFlags(w http.ResponseWriter, r *http.Request) {
	req, ok := a.resolveRequest(w, r)
	if !ok {
		return
	}

	flags, err := a.session.ListFlags(r.Context(), req.eval)
	if err != nil {
		logSessionError(r, err)
		renderEngineError(w, r, err)
		return
	}

	countEvalResults(flags)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, FlagsResponse{
		Env:   req.envName,
		Flags: flags,
	})
}

// handleEvaluate processes the POST /sdk/v1/evaluate?env= request.
//
// Responsibilities:
// 1. Resolves the SDK key and environment name into ids.
// 2. Decodes the user attributes from the body.
// 3. Runs the full evaluation: every servable flag plus the config map.
func (a *API) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	req, ok := a.resolveRequest(w, r)
	if !ok {
		return
	}

	// An empty body is a valid anonymous evaluation.
	var body EvaluateRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &body); err != nil {
			log.Warn("invalid json payload", slog.String("error", err.Error()))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_INVALID_JSON",
				Message: "Invalid JSON payload: " + err.Error(),
			})
			return
		}
	}
	req.eval.Attributes = body.Attributes

	result, err := a.session.Evaluate(r.Context(), req.eval)
	if err != nil {
		logSessionError(r, err)
		renderEngineError(w, r, err)
		return
	}

	countEvalResults(result.Flags)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, EvaluateResponse{
		Env:     req.envName,
		Flags:   result.Flags,
		Configs: result.Configs,
	})
}

// resolvedRequest pairs the engine request with the environment name echoed
// back in responses.
type resolvedRequest struct {
	envName string
	eval    engine.EvaluateRequest
}

// resolveRequest turns the (X-SDK-Key, env) pair into a fully resolved engine
// request. On failure it writes the error response and returns ok=false.
//
// The key is resolved first: it pins the project, and only then is the
// requested environment name looked up within that project. A key bound to a
// different environment of the same project is rejected as unauthorized, not
// as unknown.
func (a *API) resolveRequest(w http.ResponseWriter, r *http.Request) (resolvedRequest, bool) {
	sdkKey := r.Header.Get(sdkKeyHeader)
	envName := strings.TrimSpace(r.URL.Query().Get("env"))

	if envName == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_QUERY_PARAM",
			Message: "parameter 'env' is required",
		})
		return resolvedRequest{}, false
	}

	bound, err := a.envs.ResolveSDKKey(r.Context(), sdkKey)
	if err != nil {
		logSessionError(r, err)
		renderEngineError(w, r, err)
		return resolvedRequest{}, false
	}

	requested, err := a.envs.GetEnvironmentByName(r.Context(), bound.ProjectID, envName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			renderEngineError(w, r, &engine.NotFoundError{Resource: "environment", Name: envName})
			return resolvedRequest{}, false
		}
		logSessionError(r, err)
		renderEngineError(w, r, err)
		return resolvedRequest{}, false
	}

	if requested.ID != bound.ID {
		renderEngineError(w, r, &engine.AuthError{Reason: "sdk key is not bound to this environment"})
		return resolvedRequest{}, false
	}

	return resolvedRequest{
		envName: requested.Name,
		eval: engine.EvaluateRequest{
			ProjectID:     bound.ProjectID,
			EnvironmentID: bound.ID,
			SDKKey:        sdkKey,
		},
	}, true
}

// countEvalResults feeds the per-reason decision counter. Rule-match reasons
// carry the winning rule id ("rule_match:<id>"); they are collapsed to a
// single label value to keep cardinality bounded.
func countEvalResults(flags []engine.FlagResult) {
	for _, f := range flags {
		reason := f.Reason
		if strings.HasPrefix(reason, "rule_match:") {
			reason = "rule_match"
		}
		observability.EvalResults.WithLabelValues(reason).Inc()
	}
}

// logSessionError logs only unexpected failures. Taxonomy errors (auth, not
// found, bad input) are already reflected in the response status and logged
// by the request logger.
func logSessionError(r *http.Request, err error) {
	var (
		authErr     *engine.AuthError
		notFoundErr *engine.NotFoundError
		inputErr    *engine.InputError
	)
	if errors.As(err, &authErr) || errors.As(err, &notFoundErr) || errors.As(err, &inputErr) {
		return
	}
	logger.FromContext(r.Context()).Error("evaluation request failed", slog.String("error", err.Error()))
}

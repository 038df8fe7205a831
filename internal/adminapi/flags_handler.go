package adminapi

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/gunes1hakan/feature-flags/internal/logger"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// handleCreateFlag processes the POST /admin/v1/projects/{projectID}/flags request.
//
// Responsibilities:
// 1. Decodes the JSON payload into the CreateFlagRequest DTO.
// 2. Sanitizes and Validates the input using the DTO's business logic.
// 3. Converts the DTO to the domain model (store.Flag).
// 4. Persists the flag using the Repository layer.
// 5. Invalidates the project's cached snapshots asynchronously.
// 6. Returns the created resource with a 201 Created status.
func (a *API) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	var req CreateFlagRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderInvalidJSON(w, r, err)
		return
	}

	// We delegate this logic to the DTO to keep the handler clean and testable.
	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	// We explicitly map fields to avoid coupling the API contract directly to the DB schema.
	flag := &store.Flag{
		ProjectID:      projectID,
		Key:            req.Key,
		Description:    req.Description,
		Enabled:        req.Enabled,
		Status:         req.Status,
		DefaultVariant: req.DefaultVariant,
	}

	if err := a.store.CreateFlag(r.Context(), flag); err != nil {
		log.Error("failed to create flag in db", slog.String("error", err.Error()))
		renderStoreError(w, r, err, "flag")
		return
	}

	a.notifyCacheAsync(log, projectID)

	log.Info("flag created successfully", slog.String("flag_key", flag.Key), slog.Int64("flag_id", flag.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mapFlag(flag))
}

// handleListFlags processes the GET /admin/v1/projects/{projectID}/flags request.
//
// Responsibilities:
// 1. Parses and sanitizes pagination parameters (page, page_size).
// 2. Calls the Repository to fetch data and total count.
// 3. Maps domain models to DTOs.
// 4. Calculates pagination metadata (total pages).
// 5. Returns the PaginatedResponse.
func (a *API) handleListFlags(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	// We return 400 Bad Request if the user sends invalid types (e.g., page=banana).
	page, err := parseOptionalInt(r, "page", 1)
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	pageSize, err := parseOptionalInt(r, "page_size", 10)
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	// We silently correct out-of-bounds values to ensure system stability and UX.
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100 // Hard limit to prevent large queries
	}

	offset := (page - 1) * pageSize

	flags, totalItems, err := a.store.ListFlags(r.Context(), projectID, pageSize, offset)
	if err != nil {
		log.Error("failed to list flags from db", slog.String("error", err.Error()))
		renderStoreError(w, r, err, "flag")
		return
	}

	dtos := make([]Flag, len(flags))
	for i, f := range flags {
		dtos[i] = mapFlag(f)
	}

	totalPages := 0
	if totalItems > 0 {
		totalPages = int(math.Ceil(float64(totalItems) / float64(pageSize)))
	}

	resp := PaginatedResponse{
		Data: dtos,
		Pagination: Pagination{
			TotalItems:  totalItems,
			TotalPages:  totalPages,
			CurrentPage: page,
			PageSize:    pageSize,
		},
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// handleGetFlag processes the GET /admin/v1/projects/{projectID}/flags/{key} request.
func (a *API) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}
	key := chi.URLParam(r, "key")

	flag, err := a.store.GetFlag(r.Context(), projectID, key)
	if err != nil {
		renderStoreError(w, r, err, "flag")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapFlag(flag))
}

// handleUpdateFlag processes the PATCH /admin/v1/projects/{projectID}/flags/{key} request.
// Partial semantics: only the fields present in the body are applied, in a
// fixed order (enabled, status, default_variant). The last applied state is
// returned.
func (a *API) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}
	key := chi.URLParam(r, "key")

	var req UpdateFlagRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderInvalidJSON(w, r, err)
		return
	}
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	var flag *store.Flag
	if req.Enabled != nil {
		flag, err = a.store.SetFlagEnabled(r.Context(), projectID, key, *req.Enabled)
		if err != nil {
			renderStoreError(w, r, err, "flag")
			return
		}
	}
	if req.Status != nil {
		flag, err = a.store.SetFlagStatus(r.Context(), projectID, key, *req.Status)
		if err != nil {
			renderStoreError(w, r, err, "flag")
			return
		}
	}
	if req.DefaultVariant != nil {
		flag, err = a.store.SetFlagDefaultVariant(r.Context(), projectID, key, *req.DefaultVariant)
		if err != nil {
			renderStoreError(w, r, err, "flag")
			return
		}
	}

	a.notifyCacheAsync(log, projectID)

	log.Info("flag updated", slog.String("flag_key", key), slog.Int64("project_id", projectID))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapFlag(flag))
}

// handleDeleteFlag processes the DELETE /admin/v1/projects/{projectID}/flags/{key} request.
func (a *API) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}
	key := chi.URLParam(r, "key")

	if err := a.store.DeleteFlag(r.Context(), projectID, key); err != nil {
		renderStoreError(w, r, err, "flag")
		return
	}

	a.notifyCacheAsync(log, projectID)

	log.Info("flag deleted", slog.String("flag_key", key), slog.Int64("project_id", projectID))
	render.NoContent(w, r)
}

// handleCreateVariant processes the POST .../flags/{key}/variants request.
func (a *API) handleCreateVariant(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	flag, ok := a.resolveFlag(w, r)
	if !ok {
		return
	}

	var req CreateVariantRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderInvalidJSON(w, r, err)
		return
	}

	req.Sanitize()
	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	variant := &store.Variant{
		FlagID:  flag.ID,
		Name:    req.Name,
		Payload: req.Payload,
	}
	if err := a.store.CreateVariant(r.Context(), variant); err != nil {
		renderStoreError(w, r, err, "variant")
		return
	}

	a.notifyCacheAsync(log, flag.ProjectID)

	log.Info("variant created", slog.String("flag_key", flag.Key), slog.String("variant", variant.Name))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mapVariant(variant))
}

// handleListVariants processes the GET .../flags/{key}/variants request.
func (a *API) handleListVariants(w http.ResponseWriter, r *http.Request) {
	flag, ok := a.resolveFlag(w, r)
	if !ok {
		return
	}

	variants, err := a.store.ListVariants(r.Context(), flag.ID)
	if err != nil {
		renderStoreError(w, r, err, "variant")
		return
	}

	dtos := make([]Variant, len(variants))
	for i, v := range variants {
		dtos[i] = mapVariant(v)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, dtos)
}

// handleDeleteVariant processes the DELETE .../flags/{key}/variants/{name} request.
// Rules referencing the deleted variant are left alone on purpose: the
// evaluator tolerates dangling references and reports them as defects.
func (a *API) handleDeleteVariant(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	flag, ok := a.resolveFlag(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	if err := a.store.DeleteVariant(r.Context(), flag.ID, name); err != nil {
		renderStoreError(w, r, err, "variant")
		return
	}

	a.notifyCacheAsync(log, flag.ProjectID)

	log.Info("variant deleted", slog.String("flag_key", flag.Key), slog.String("variant", name))
	render.NoContent(w, r)
}

// handleCreateRule processes the POST .../flags/{key}/rules request.
//
// Write-time validation is strict where the evaluator is tolerant: a
// malformed predicate or a distribution naming unknown variants is rejected
// here, while an operator is still looking at the response. Data that decays
// later (deleted variants) is the evaluator's problem.
func (a *API) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	flag, ok := a.resolveFlag(w, r)
	if !ok {
		return
	}

	var req CreateRuleRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderInvalidJSON(w, r, err)
		return
	}

	if errResp := req.Validate(); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	// The environment must belong to the same project as the flag. A rule
	// scoped to a foreign environment would never be served to anyone, so it is
	// rejected while an operator is still looking at the response.
	env, err := a.store.GetEnvironment(r.Context(), req.EnvironmentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_INVALID_INPUT",
				Message: fmt.Sprintf("environment %d does not exist", req.EnvironmentID),
			})
			return
		}
		renderStoreError(w, r, err, "environment")
		return
	}
	if env.ProjectID != flag.ProjectID {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: fmt.Sprintf("environment %d belongs to another project", req.EnvironmentID),
		})
		return
	}

	// Distribution labels must name this flag's variants or its default.
	variants, err := a.store.ListVariants(r.Context(), flag.ID)
	if err != nil {
		renderStoreError(w, r, err, "variant")
		return
	}
	allowed := make(map[string]bool, len(variants)+1)
	for _, v := range variants {
		allowed[v.Name] = true
	}
	if flag.DefaultVariant != "" {
		allowed[flag.DefaultVariant] = true
	}
	if errResp := req.ValidateDistribution(allowed); errResp != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, errResp)
		return
	}

	rule := &store.Rule{
		FlagID:        flag.ID,
		EnvironmentID: req.EnvironmentID,
		Priority:      req.Priority,
		Predicate:     req.Predicate,
		Distribution:  req.Distribution,
	}
	if err := a.store.CreateRule(r.Context(), rule); err != nil {
		renderStoreError(w, r, err, "rule")
		return
	}

	a.notifyCacheAsync(log, flag.ProjectID)

	log.Info("rule created",
		slog.String("flag_key", flag.Key),
		slog.Int64("rule_id", rule.ID),
		slog.Int64("environment_id", rule.EnvironmentID),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mapRule(rule))
}

// handleListRules processes the GET .../flags/{key}/rules request.
func (a *API) handleListRules(w http.ResponseWriter, r *http.Request) {
	flag, ok := a.resolveFlag(w, r)
	if !ok {
		return
	}

	rules, err := a.store.ListRules(r.Context(), flag.ID)
	if err != nil {
		renderStoreError(w, r, err, "rule")
		return
	}

	dtos := make([]Rule, len(rules))
	for i, rl := range rules {
		dtos[i] = mapRule(rl)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, dtos)
}

// handleDeleteRule processes the DELETE .../flags/{key}/rules/{ruleID} request.
func (a *API) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	flag, ok := a.resolveFlag(w, r)
	if !ok {
		return
	}
	ruleID, err := parseIDParam(r, "ruleID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	if err := a.store.DeleteRule(r.Context(), ruleID); err != nil {
		renderStoreError(w, r, err, "rule")
		return
	}

	a.notifyCacheAsync(log, flag.ProjectID)

	log.Info("rule deleted", slog.String("flag_key", flag.Key), slog.Int64("rule_id", ruleID))
	render.NoContent(w, r)
}

// --- Private Helpers ---

// resolveFlag loads the flag addressed by the {projectID}/{key} URL pair.
// On failure it writes the error response and returns ok=false.
func (a *API) resolveFlag(w http.ResponseWriter, r *http.Request) (*store.Flag, bool) {
	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return nil, false
	}
	key := chi.URLParam(r, "key")

	flag, err := a.store.GetFlag(r.Context(), projectID, key)
	if err != nil {
		renderStoreError(w, r, err, "flag")
		return nil, false
	}
	return flag, true
}

// parseOptionalInt extracts an integer from the query string.
// If the parameter is missing, it returns the defaultValue.
// It only returns an error if the parameter is present but malformed.
func parseOptionalInt(r *http.Request, key string, defaultValue int) (int, error) {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue, nil
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return 0, fmt.Errorf("parameter '%s' must be an integer", key)
	}
	return val, nil
}

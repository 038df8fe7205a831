package adminapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/gunes1hakan/feature-flags/internal/logger"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// handleUpsertConfig processes the PUT /admin/v1/projects/{projectID}/configs request.
// The identity is (project, environment, key): writing an existing identity
// replaces the value in place, so PUT is the natural verb.
func (a *API) handleUpsertConfig(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	var req UpsertConfigRequest
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

	entry := &store.ConfigEntry{
		ProjectID:     projectID,
		EnvironmentID: req.EnvironmentID,
		Key:           req.Key,
		Value:         req.Value,
	}
	if err := a.store.UpsertConfig(r.Context(), entry); err != nil {
		log.Error("failed to upsert config", slog.String("error", err.Error()))
		renderStoreError(w, r, err, "config")
		return
	}

	a.notifyCacheAsync(log, projectID)

	log.Info("config upserted",
		slog.Int64("project_id", projectID),
		slog.String("config_key", entry.Key),
	)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapConfigEntry(entry))
}

// handleListConfigs processes the GET /admin/v1/projects/{projectID}/configs request.
// Globals come first, then environment-scoped entries.
func (a *API) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	entries, err := a.store.ListConfigs(r.Context(), projectID)
	if err != nil {
		renderStoreError(w, r, err, "config")
		return
	}

	dtos := make([]ConfigEntry, len(entries))
	for i, e := range entries {
		dtos[i] = mapConfigEntry(e)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, dtos)
}

// handleDeleteConfig processes the DELETE /admin/v1/projects/{projectID}/configs/{key} request.
// An 'environment_id' query parameter addresses a scoped entry; without it the
// GLOBAL entry is deleted.
func (a *API) handleDeleteConfig(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}
	key := chi.URLParam(r, "key")

	var environmentID *int64
	if raw := r.URL.Query().Get("environment_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, ErrorResponse{
				Code:    "ERR_INVALID_QUERY_PARAM",
				Message: "parameter 'environment_id' must be a positive integer",
			})
			return
		}
		environmentID = &id
	}

	if err := a.store.DeleteConfig(r.Context(), projectID, environmentID, key); err != nil {
		renderStoreError(w, r, err, "config")
		return
	}

	a.notifyCacheAsync(log, projectID)

	log.Info("config deleted",
		slog.Int64("project_id", projectID),
		slog.String("config_key", key),
	)
	render.NoContent(w, r)
}

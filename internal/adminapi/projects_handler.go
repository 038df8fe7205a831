package adminapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/gunes1hakan/feature-flags/internal/logger"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// parseIDParam extracts a positive int64 URL parameter.
func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("parameter '%s' must be a positive integer", name)
	}
	return id, nil
}

// renderBadParam writes the standard 400 for a malformed URL parameter.
func renderBadParam(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{
		Code:    "ERR_INVALID_QUERY_PARAM",
		Message: err.Error(),
	})
}

// renderInvalidJSON writes the standard 400 for an undecodable body.
func renderInvalidJSON(w http.ResponseWriter, r *http.Request, err error) {
	logger.FromContext(r.Context()).Warn("invalid json payload", slog.String("error", err.Error()))
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{
		Code:    "ERR_INVALID_JSON",
		Message: "Invalid JSON payload: " + err.Error(),
	})
}

// handleCreateProject processes the POST /admin/v1/projects request.
func (a *API) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req CreateProjectRequest
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

	project := &store.Project{Key: req.Key, Name: req.Name}
	if err := a.store.CreateProject(r.Context(), project); err != nil {
		log.Error("failed to create project", slog.String("error", err.Error()))
		renderStoreError(w, r, err, "project")
		return
	}

	log.Info("project created", slog.String("project_key", project.Key), slog.Int64("project_id", project.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mapProject(project))
}

// handleListProjects processes the GET /admin/v1/projects request.
func (a *API) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := a.store.ListProjects(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to list projects", slog.String("error", err.Error()))
		renderStoreError(w, r, err, "project")
		return
	}

	dtos := make([]Project, len(projects))
	for i, p := range projects {
		dtos[i] = mapProject(p)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, dtos)
}

// handleGetProject processes the GET /admin/v1/projects/{projectID} request.
func (a *API) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	project, err := a.store.GetProject(r.Context(), projectID)
	if err != nil {
		renderStoreError(w, r, err, "project")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, mapProject(project))
}

// handleDeleteProject processes the DELETE /admin/v1/projects/{projectID} request.
// Cascading constraints remove everything under the project.
func (a *API) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	if err := a.store.DeleteProject(r.Context(), projectID); err != nil {
		renderStoreError(w, r, err, "project")
		return
	}

	a.notifyCacheAsync(log, projectID)

	log.Info("project deleted", slog.Int64("project_id", projectID))
	render.NoContent(w, r)
}

// handleCreateEnvironment processes the POST /admin/v1/projects/{projectID}/envs request.
func (a *API) handleCreateEnvironment(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	var req CreateEnvironmentRequest
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

	env := &store.Environment{ProjectID: projectID, Name: req.Name}
	if err := a.store.CreateEnvironment(r.Context(), env); err != nil {
		renderStoreError(w, r, err, "environment")
		return
	}

	a.notifyCacheAsync(log, projectID)

	log.Info("environment created",
		slog.Int64("project_id", projectID),
		slog.String("environment", env.Name),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, mapEnvironment(env))
}

// handleListEnvironments processes the GET /admin/v1/projects/{projectID}/envs request.
func (a *API) handleListEnvironments(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	envs, err := a.store.ListEnvironments(r.Context(), projectID)
	if err != nil {
		renderStoreError(w, r, err, "environment")
		return
	}

	dtos := make([]Environment, len(envs))
	for i, e := range envs {
		dtos[i] = mapEnvironment(e)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, dtos)
}

// handleDeleteEnvironment processes the DELETE /admin/v1/projects/{projectID}/envs/{envID} request.
func (a *API) handleDeleteEnvironment(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	projectID, err := parseIDParam(r, "projectID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}
	envID, err := parseIDParam(r, "envID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	if err := a.store.DeleteEnvironment(r.Context(), envID); err != nil {
		renderStoreError(w, r, err, "environment")
		return
	}

	a.notifyCacheAsync(log, projectID)

	log.Info("environment deleted", slog.Int64("environment_id", envID))
	render.NoContent(w, r)
}

// handleCreateSDKKey processes the POST /admin/v1/envs/{envID}/keys request.
// The plaintext key is generated server-side, returned exactly once, and only
// its hash is persisted. No cache invalidation: authentication always reads
// the database, never a snapshot.
func (a *API) handleCreateSDKKey(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	envID, err := parseIDParam(r, "envID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	var req CreateSDKKeyRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			renderInvalidJSON(w, r, err)
			return
		}
	}
	req.Sanitize()

	plaintext := "sdk-" + uuid.NewString()
	key := &store.SDKKey{
		EnvironmentID: envID,
		KeyHash:       store.HashSDKKey(plaintext),
		Label:         req.Label,
	}

	if err := a.store.CreateSDKKey(r.Context(), key); err != nil {
		renderStoreError(w, r, err, "sdk key")
		return
	}

	log.Info("sdk key issued", slog.Int64("environment_id", envID), slog.Int64("key_id", key.ID))
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SDKKeyCreated{
		ID:            key.ID,
		EnvironmentID: key.EnvironmentID,
		Label:         key.Label,
		Key:           plaintext,
		CreatedAt:     key.CreatedAt,
	})
}

// handleListSDKKeys processes the GET /admin/v1/envs/{envID}/keys request.
func (a *API) handleListSDKKeys(w http.ResponseWriter, r *http.Request) {
	envID, err := parseIDParam(r, "envID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	keys, err := a.store.ListSDKKeys(r.Context(), envID)
	if err != nil {
		renderStoreError(w, r, err, "sdk key")
		return
	}

	dtos := make([]SDKKey, len(keys))
	for i, k := range keys {
		dtos[i] = mapSDKKey(k)
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, dtos)
}

// handleRevokeSDKKey processes the DELETE /admin/v1/keys/{keyID} request.
// Revocation is soft: the key row survives but never authenticates again.
func (a *API) handleRevokeSDKKey(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	keyID, err := parseIDParam(r, "keyID")
	if err != nil {
		renderBadParam(w, r, err)
		return
	}

	if err := a.store.RevokeSDKKey(r.Context(), keyID); err != nil {
		renderStoreError(w, r, err, "sdk key")
		return
	}

	log.Info("sdk key revoked", slog.Int64("key_id", keyID))
	render.NoContent(w, r)
}

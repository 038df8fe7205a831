package adminapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/render"

	"github.com/gunes1hakan/feature-flags/internal/engine"
	"github.com/gunes1hakan/feature-flags/internal/store"
)

// slugRegex ensures keys and names are URL-safe slugs (lowercase, numbers,
// hyphens, underscores). We compile it once at package initialization.
var slugRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

// validateSlug enforces the format and length rules for natural keys
// (project keys, flag keys, environment names, config keys).
func validateSlug(field, value string) *ErrorResponse {
	if value == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: field + " is required",
		}
	}
	if len(value) > 255 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: field + " must be less than 255 characters",
		}
	}
	if !slugRegex.MatchString(value) {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: field + " must contain only lowercase letters, numbers, hyphens and underscores",
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Projects & Environments
// -----------------------------------------------------------------------------

// CreateProjectRequest defines the payload for creating a new project.
type CreateProjectRequest struct {
	// Key is required and immutable. Matches '^[a-z0-9_-]+$'.
	Key string `json:"key"`

	// Name is the human-readable label. Defaults to Key if omitted.
	Name string `json:"name"`
}

// Sanitize cleans up input data by trimming whitespace and normalizing case.
func (r *CreateProjectRequest) Sanitize() {
	r.Key = strings.ToLower(strings.TrimSpace(r.Key))
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = r.Key
	}
}

// Validate checks if the request data adheres to business rules.
func (r *CreateProjectRequest) Validate() *ErrorResponse {
	return validateSlug("key", r.Key)
}

// Project represents the project resource in API responses.
type Project struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func mapProject(p *store.Project) Project {
	return Project{
		ID:        p.ID,
		Key:       p.Key,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// CreateEnvironmentRequest defines the payload for creating an environment.
type CreateEnvironmentRequest struct {
	// Name is the per-project unique environment name (e.g., prod, staging).
	Name string `json:"name"`
}

// Sanitize trims and lowercases the environment name.
func (r *CreateEnvironmentRequest) Sanitize() {
	r.Name = strings.ToLower(strings.TrimSpace(r.Name))
}

// Validate checks if the request data adheres to business rules.
func (r *CreateEnvironmentRequest) Validate() *ErrorResponse {
	return validateSlug("name", r.Name)
}

// Environment represents the environment resource in API responses.
type Environment struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func mapEnvironment(e *store.Environment) Environment {
	return Environment{
		ID:        e.ID,
		ProjectID: e.ProjectID,
		Name:      e.Name,
		CreatedAt: e.CreatedAt,
	}
}

// -----------------------------------------------------------------------------
// SDK Keys
// -----------------------------------------------------------------------------

// CreateSDKKeyRequest defines the payload for issuing a new SDK key.
type CreateSDKKeyRequest struct {
	// Label is a human-readable note about the key's purpose (optional).
	Label string `json:"label"`
}

// Sanitize trims the label.
func (r *CreateSDKKeyRequest) Sanitize() {
	r.Label = strings.TrimSpace(r.Label)
}

// SDKKeyCreated is the one-time response to key creation: it is the only
// moment the plaintext key is visible. Only its hash is persisted.
type SDKKeyCreated struct {
	ID            int64     `json:"id"`
	EnvironmentID int64     `json:"environment_id"`
	Label         string    `json:"label"`
	Key           string    `json:"key"`
	CreatedAt     time.Time `json:"created_at"`
}

// SDKKey represents a stored key in list responses. The plaintext is never
// recoverable; only metadata is exposed.
type SDKKey struct {
	ID            int64      `json:"id"`
	EnvironmentID int64      `json:"environment_id"`
	Label         string     `json:"label"`
	CreatedAt     time.Time  `json:"created_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

func mapSDKKey(k *store.SDKKey) SDKKey {
	return SDKKey{
		ID:            k.ID,
		EnvironmentID: k.EnvironmentID,
		Label:         k.Label,
		CreatedAt:     k.CreatedAt,
		RevokedAt:     k.RevokedAt,
	}
}

// -----------------------------------------------------------------------------
// Flags, Variants, Rules
// -----------------------------------------------------------------------------

// CreateFlagRequest defines the payload for creating a new flag.
type CreateFlagRequest struct {
	// Key is required and immutable. Matches '^[a-z0-9_-]+$'.
	Key string `json:"key"`

	// Description is optional.
	Description string `json:"description,omitempty"`

	// Enabled defaults to false if omitted (Secure by Default).
	Enabled bool `json:"enabled"`

	// Status defaults to "draft" if omitted. Draft flags are not served to
	// SDK clients until promoted.
	Status string `json:"status,omitempty"`

	// DefaultVariant names the variant served when the flag is off or no
	// rule matches. Optional; empty means "no variant".
	DefaultVariant string `json:"default_variant,omitempty"`
}

// Sanitize cleans up input data by trimming whitespace and normalizing case.
func (r *CreateFlagRequest) Sanitize() {
	r.Key = strings.ToLower(strings.TrimSpace(r.Key))
	r.Description = strings.TrimSpace(r.Description)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
	r.DefaultVariant = strings.TrimSpace(r.DefaultVariant)
	if r.Status == "" {
		r.Status = string(engine.StatusDraft)
	}
}

// Validate checks if the request data adheres to business rules.
func (r *CreateFlagRequest) Validate() *ErrorResponse {
	if err := validateSlug("key", r.Key); err != nil {
		return err
	}
	if !engine.KnownStatus(engine.FlagStatus(r.Status)) {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "status must be one of: draft, active, published",
		}
	}
	return nil
}

// UpdateFlagRequest defines the payload for partial updates (PATCH).
// Pointers are used to distinguish between "missing field" (do nothing)
// and "false value" (explicit update to false).
type UpdateFlagRequest struct {
	Enabled        *bool   `json:"enabled,omitempty"`
	Status         *string `json:"status,omitempty"`
	DefaultVariant *string `json:"default_variant,omitempty"`
}

// Validate checks if the provided fields adhere to business rules.
func (r *UpdateFlagRequest) Validate() *ErrorResponse {
	if r.Enabled == nil && r.Status == nil && r.DefaultVariant == nil {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "at least one of enabled, status, default_variant is required",
		}
	}
	if r.Status != nil && !engine.KnownStatus(engine.FlagStatus(*r.Status)) {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "status must be one of: draft, active, published",
		}
	}
	return nil
}

// Flag represents the feature flag resource in API responses.
type Flag struct {
	ID             int64     `json:"id"`
	ProjectID      int64     `json:"project_id"`
	Key            string    `json:"key"`
	Description    string    `json:"description"`
	Enabled        bool      `json:"enabled"`
	Status         string    `json:"status"`
	DefaultVariant string    `json:"default_variant"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func mapFlag(f *store.Flag) Flag {
	return Flag{
		ID:             f.ID,
		ProjectID:      f.ProjectID,
		Key:            f.Key,
		Description:    f.Description,
		Enabled:        f.Enabled,
		Status:         f.Status,
		DefaultVariant: f.DefaultVariant,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

// CreateVariantRequest defines the payload for adding a variant to a flag.
type CreateVariantRequest struct {
	// Name is the per-flag unique variant label.
	Name string `json:"name"`

	// Payload is an arbitrary JSON document served with this variant.
	// Defaults to an empty object.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Sanitize trims the variant name.
func (r *CreateVariantRequest) Sanitize() {
	r.Name = strings.TrimSpace(r.Name)
}

// Validate checks if the request data adheres to business rules.
func (r *CreateVariantRequest) Validate() *ErrorResponse {
	if r.Name == "" {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Variant name is required",
		}
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Payload must be valid JSON",
		}
	}
	return nil
}

// Variant represents the variant resource in API responses.
type Variant struct {
	ID        int64           `json:"id"`
	FlagID    int64           `json:"flag_id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func mapVariant(v *store.Variant) Variant {
	payload := v.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return Variant{
		ID:        v.ID,
		FlagID:    v.FlagID,
		Name:      v.Name,
		Payload:   payload,
		CreatedAt: v.CreatedAt,
	}
}

// CreateRuleRequest defines the payload for adding a targeting rule to a flag.
type CreateRuleRequest struct {
	// EnvironmentID scopes the rule to one environment of the project.
	EnvironmentID int64 `json:"environment_id"`

	// Priority orders rules within a flag; lower wins first.
	Priority int `json:"priority"`

	// Predicate is the targeting condition {attr, op, value}.
	Predicate json.RawMessage `json:"predicate"`

	// Distribution maps variant labels to integer percentages.
	Distribution map[string]int64 `json:"distribution"`
}

// Validate checks the predicate shape at write time. A predicate that fails
// here would silently match nobody at evaluation time, so it is rejected
// while an operator is still looking at the response.
func (r *CreateRuleRequest) Validate() *ErrorResponse {
	if r.EnvironmentID <= 0 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "environment_id is required",
		}
	}
	if _, err := engine.ParsePredicate(r.Predicate); err != nil {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "Invalid predicate: " + err.Error(),
		}
	}
	return nil
}

// ValidateDistribution checks the weights against the labels that may legally
// appear in a distribution: the flag's variants and its default variant.
func (r *CreateRuleRequest) ValidateDistribution(allowed map[string]bool) *ErrorResponse {
	if len(r.Distribution) == 0 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "distribution must be a non-empty object",
		}
	}

	var total int64
	for label, weight := range r.Distribution {
		if !allowed[label] {
			return &ErrorResponse{
				Code:    "ERR_INVALID_INPUT",
				Message: "distribution label '" + label + "' does not name an existing variant",
			}
		}
		if weight < 0 || weight > 100 {
			return &ErrorResponse{
				Code:    "ERR_INVALID_INPUT",
				Message: "distribution values must be integers in [0,100]",
			}
		}
		total += weight
	}

	if total != 100 {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "distribution must sum to 100",
		}
	}
	return nil
}

// Rule represents the rule resource in API responses.
type Rule struct {
	ID            int64            `json:"id"`
	FlagID        int64            `json:"flag_id"`
	EnvironmentID int64            `json:"environment_id"`
	Priority      int              `json:"priority"`
	Predicate     json.RawMessage  `json:"predicate"`
	Distribution  map[string]int64 `json:"distribution"`
	CreatedAt     time.Time        `json:"created_at"`
}

func mapRule(r *store.Rule) Rule {
	return Rule{
		ID:            r.ID,
		FlagID:        r.FlagID,
		EnvironmentID: r.EnvironmentID,
		Priority:      r.Priority,
		Predicate:     r.Predicate,
		Distribution:  r.Distribution,
		CreatedAt:     r.CreatedAt,
	}
}

// -----------------------------------------------------------------------------
// Remote Configs
// -----------------------------------------------------------------------------

// UpsertConfigRequest defines the payload for creating or replacing a config
// entry. A nil EnvironmentID writes the GLOBAL entry for the key.
type UpsertConfigRequest struct {
	Key           string          `json:"key"`
	EnvironmentID *int64          `json:"environment_id,omitempty"`
	Value         json.RawMessage `json:"value"`
}

// Sanitize trims and lowercases the config key.
func (r *UpsertConfigRequest) Sanitize() {
	r.Key = strings.ToLower(strings.TrimSpace(r.Key))
}

// Validate checks if the request data adheres to business rules.
func (r *UpsertConfigRequest) Validate() *ErrorResponse {
	if err := validateSlug("key", r.Key); err != nil {
		return err
	}
	if len(r.Value) == 0 || !json.Valid(r.Value) {
		return &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: "value must be valid JSON",
		}
	}
	return nil
}

// ConfigEntry represents the config resource in API responses.
type ConfigEntry struct {
	ID            int64           `json:"id"`
	ProjectID     int64           `json:"project_id"`
	EnvironmentID *int64          `json:"environment_id"`
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func mapConfigEntry(e *store.ConfigEntry) ConfigEntry {
	return ConfigEntry{
		ID:            e.ID,
		ProjectID:     e.ProjectID,
		EnvironmentID: e.EnvironmentID,
		Key:           e.Key,
		Value:         e.Value,
		UpdatedAt:     e.UpdatedAt,
	}
}

// -----------------------------------------------------------------------------
// Shared response envelopes
// -----------------------------------------------------------------------------

// PaginatedResponse is a standard wrapper for list endpoints to support offset pagination.
type PaginatedResponse struct {
	// Data holds the list of resources (e.g., []Flag).
	Data interface{} `json:"data"`

	// Pagination contains pagination metadata.
	Pagination Pagination `json:"pagination"`
}

// Pagination metadata for the frontend pager.
type Pagination struct {
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`
}

// renderStoreError maps the typed store errors onto HTTP statuses. resource
// names the entity for the client-facing message.
func renderStoreError(w http.ResponseWriter, r *http.Request, err error, resource string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_NOT_FOUND",
			Message: resource + " not found",
		})
	case errors.Is(err, store.ErrDuplicate):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_CONFLICT",
			Message: "A " + resource + " with this identity already exists",
		})
	default:
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, ErrorResponse{
			Code:    "ERR_INTERNAL",
			Message: "Internal server error",
		})
	}
}

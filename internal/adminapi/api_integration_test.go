//go:build integration

package adminapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gunes1hakan/feature-flags/internal/adminapi"
	"github.com/gunes1hakan/feature-flags/internal/cache"
	"github.com/gunes1hakan/feature-flags/internal/store"
	"github.com/gunes1hakan/feature-flags/internal/testsupport"
)

func TestAdminAPI_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgCtr, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgCtr.Terminate(context.Background()) })

	redisCtr, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCtr.Terminate(context.Background()) })

	repo := store.NewPostgresStore(pgCtr.DB)
	invalidator := cache.NewSnapshotCache(redisCtr.Client, time.Minute, "ff:invalidate:admin-test")
	api := adminapi.NewAPIWithConfig(repo, invalidator, "", true)

	do := func(method, path string, body string) *httptest.ResponseRecorder {
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		api.Router.ServeHTTP(rr, req)
		return rr
	}

	decode := func(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
		t.Helper()
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst))
	}

	// State threaded through the scenario. A unique project key keeps reruns
	// against a shared database from colliding.
	projectKey := fmt.Sprintf("shop-%d", time.Now().UnixNano())
	var projectID, prodEnvID, stagingEnvID int64
	var keyID int64

	t.Run("Should create a project", func(t *testing.T) {
		rr := do(http.MethodPost, "/admin/v1/projects", fmt.Sprintf(`{"key":%q,"name":"Shop"}`, projectKey))
		require.Equal(t, http.StatusCreated, rr.Code)

		var p adminapi.Project
		decode(t, rr, &p)
		require.NotZero(t, p.ID)
		assert.Equal(t, projectKey, p.Key)
		projectID = p.ID
	})

	t.Run("Should reject a duplicate project key", func(t *testing.T) {
		rr := do(http.MethodPost, "/admin/v1/projects", fmt.Sprintf(`{"key":%q}`, projectKey))
		require.Equal(t, http.StatusConflict, rr.Code)
		assert.Contains(t, rr.Body.String(), "ERR_CONFLICT")
	})

	t.Run("Should create environments", func(t *testing.T) {
		envsPath := fmt.Sprintf("/admin/v1/projects/%d/envs", projectID)

		rr := do(http.MethodPost, envsPath, `{"name":"prod"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		var prod adminapi.Environment
		decode(t, rr, &prod)
		prodEnvID = prod.ID

		rr = do(http.MethodPost, envsPath, `{"name":"staging"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		var staging adminapi.Environment
		decode(t, rr, &staging)
		stagingEnvID = staging.ID

		rr = do(http.MethodGet, envsPath, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var envs []adminapi.Environment
		decode(t, rr, &envs)
		assert.Len(t, envs, 2)
	})

	t.Run("Should issue an sdk key and return the plaintext once", func(t *testing.T) {
		rr := do(http.MethodPost, fmt.Sprintf("/admin/v1/envs/%d/keys", prodEnvID), `{"label":"backend"}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		var created adminapi.SDKKeyCreated
		decode(t, rr, &created)
		require.NotZero(t, created.ID)
		assert.True(t, strings.HasPrefix(created.Key, "sdk-"), "plaintext key should carry the sdk- prefix")
		keyID = created.ID

		// The list endpoint must never expose the plaintext again.
		rr = do(http.MethodGet, fmt.Sprintf("/admin/v1/envs/%d/keys", prodEnvID), "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), created.Key)
	})

	t.Run("Should revoke an sdk key", func(t *testing.T) {
		rr := do(http.MethodDelete, fmt.Sprintf("/admin/v1/keys/%d", keyID), "")
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr = do(http.MethodGet, fmt.Sprintf("/admin/v1/envs/%d/keys", prodEnvID), "")
		require.Equal(t, http.StatusOK, rr.Code)
		var keys []adminapi.SDKKey
		decode(t, rr, &keys)
		require.Len(t, keys, 1)
		assert.NotNil(t, keys[0].RevokedAt)
	})

	flagsPath := fmt.Sprintf("/admin/v1/projects/%d/flags", projectID)

	t.Run("Should create a flag with variants", func(t *testing.T) {
		rr := do(http.MethodPost, flagsPath,
			`{"key":"enable_dark_mode","enabled":true,"default_variant":"off"}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		var f adminapi.Flag
		decode(t, rr, &f)
		assert.Equal(t, "draft", f.Status)
		assert.Equal(t, "off", f.DefaultVariant)

		variantsPath := flagsPath + "/enable_dark_mode/variants"
		rr = do(http.MethodPost, variantsPath, `{"name":"off"}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		rr = do(http.MethodPost, variantsPath, `{"name":"on","payload":{"theme":"dark"}}`)
		require.Equal(t, http.StatusCreated, rr.Code)

		rr = do(http.MethodGet, variantsPath, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var variants []adminapi.Variant
		decode(t, rr, &variants)
		assert.Len(t, variants, 2)
	})

	t.Run("Should reject a duplicate flag key", func(t *testing.T) {
		rr := do(http.MethodPost, flagsPath, `{"key":"enable_dark_mode"}`)
		require.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("Should promote a flag via patch", func(t *testing.T) {
		rr := do(http.MethodPatch, flagsPath+"/enable_dark_mode", `{"status":"published"}`)
		require.Equal(t, http.StatusOK, rr.Code)

		var f adminapi.Flag
		decode(t, rr, &f)
		assert.Equal(t, "published", f.Status)
		assert.True(t, f.Enabled)
	})

	t.Run("Should reject an empty patch", func(t *testing.T) {
		rr := do(http.MethodPatch, flagsPath+"/enable_dark_mode", `{}`)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "ERR_INVALID_INPUT")
	})

	t.Run("Should paginate the flag list", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			rr := do(http.MethodPost, flagsPath, fmt.Sprintf(`{"key":"filler_%d"}`, i))
			require.Equal(t, http.StatusCreated, rr.Code)
		}

		rr := do(http.MethodGet, flagsPath+"?page=1&page_size=2", "")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Data       []adminapi.Flag     `json:"data"`
			Pagination adminapi.Pagination `json:"pagination"`
		}
		decode(t, rr, &resp)
		assert.Len(t, resp.Data, 2)
		assert.Equal(t, int64(4), resp.Pagination.TotalItems)
		assert.Equal(t, 2, resp.Pagination.TotalPages)
	})

	rulesPath := flagsPath + "/enable_dark_mode/rules"

	t.Run("Should reject a rule referencing an unknown variant", func(t *testing.T) {
		body := fmt.Sprintf(
			`{"environment_id":%d,"priority":1,"predicate":{"attr":"country","op":"==","value":"TR"},"distribution":{"blue":100}}`,
			prodEnvID)
		rr := do(http.MethodPost, rulesPath, body)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "does not name an existing variant")
	})

	t.Run("Should reject a rule whose weights do not sum to 100", func(t *testing.T) {
		body := fmt.Sprintf(
			`{"environment_id":%d,"priority":1,"predicate":{"attr":"country","op":"==","value":"TR"},"distribution":{"on":30,"off":30}}`,
			prodEnvID)
		rr := do(http.MethodPost, rulesPath, body)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "sum to 100")
	})

	t.Run("Should reject a rule scoped to another project's environment", func(t *testing.T) {
		otherKey := fmt.Sprintf("other-%d", time.Now().UnixNano())
		rr := do(http.MethodPost, "/admin/v1/projects", fmt.Sprintf(`{"key":%q}`, otherKey))
		require.Equal(t, http.StatusCreated, rr.Code)
		var other adminapi.Project
		decode(t, rr, &other)

		rr = do(http.MethodPost, fmt.Sprintf("/admin/v1/projects/%d/envs", other.ID), `{"name":"prod"}`)
		require.Equal(t, http.StatusCreated, rr.Code)
		var foreignEnv adminapi.Environment
		decode(t, rr, &foreignEnv)

		body := fmt.Sprintf(
			`{"environment_id":%d,"priority":1,"predicate":{"attr":"country","op":"==","value":"TR"},"distribution":{"on":100}}`,
			foreignEnv.ID)
		rr = do(http.MethodPost, rulesPath, body)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "belongs to another project")
	})

	t.Run("Should reject a rule scoped to an unknown environment", func(t *testing.T) {
		body := `{"environment_id":999999,"priority":1,"predicate":{"attr":"country","op":"==","value":"TR"},"distribution":{"on":100}}`
		rr := do(http.MethodPost, rulesPath, body)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "does not exist")
	})

	t.Run("Should create and delete a rule", func(t *testing.T) {
		body := fmt.Sprintf(
			`{"environment_id":%d,"priority":1,"predicate":{"attr":"country","op":"==","value":"TR"},"distribution":{"on":30,"off":70}}`,
			prodEnvID)
		rr := do(http.MethodPost, rulesPath, body)
		require.Equal(t, http.StatusCreated, rr.Code)

		var rule adminapi.Rule
		decode(t, rr, &rule)
		require.NotZero(t, rule.ID)
		assert.Equal(t, int64(30), rule.Distribution["on"])

		rr = do(http.MethodDelete, fmt.Sprintf("%s/%d", rulesPath, rule.ID), "")
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr = do(http.MethodGet, rulesPath, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var rules []adminapi.Rule
		decode(t, rr, &rules)
		assert.Empty(t, rules)
	})

	configsPath := fmt.Sprintf("/admin/v1/projects/%d/configs", projectID)

	t.Run("Should upsert and list configs with globals first", func(t *testing.T) {
		body := fmt.Sprintf(`{"key":"api_timeout_ms","environment_id":%d,"value":3000}`, stagingEnvID)
		rr := do(http.MethodPut, configsPath, body)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = do(http.MethodPut, configsPath, `{"key":"api_timeout_ms","value":1500}`)
		require.Equal(t, http.StatusOK, rr.Code)

		// Replacing an existing identity must not create a second row.
		rr = do(http.MethodPut, configsPath, `{"key":"api_timeout_ms","value":2000}`)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = do(http.MethodGet, configsPath, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var entries []adminapi.ConfigEntry
		decode(t, rr, &entries)
		require.Len(t, entries, 2)
		assert.Nil(t, entries[0].EnvironmentID)
		assert.Equal(t, json.RawMessage(`2000`), entries[0].Value)
	})

	t.Run("Should delete a scoped config without touching the global", func(t *testing.T) {
		rr := do(http.MethodDelete,
			fmt.Sprintf("%s/api_timeout_ms?environment_id=%d", configsPath, stagingEnvID), "")
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr = do(http.MethodGet, configsPath, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var entries []adminapi.ConfigEntry
		decode(t, rr, &entries)
		require.Len(t, entries, 1)
		assert.Nil(t, entries[0].EnvironmentID)
	})

	t.Run("Should invalidate the project snapshot after a mutation", func(t *testing.T) {
		snapshotKey := fmt.Sprintf("ff:snapshot:%d", projectID)
		require.NoError(t, redisCtr.Client.Set(ctx, snapshotKey, `{"stale":true}`, time.Minute).Err())

		rr := do(http.MethodPatch, flagsPath+"/enable_dark_mode", `{"enabled":false}`)
		require.Equal(t, http.StatusOK, rr.Code)

		// Invalidation runs on a detached goroutine after the response.
		require.Eventually(t, func() bool {
			n, err := redisCtr.Client.Exists(ctx, snapshotKey).Result()
			return err == nil && n == 0
		}, 5*time.Second, 50*time.Millisecond, "stale snapshot should be deleted")
	})

	t.Run("Should return 404 for an unknown flag", func(t *testing.T) {
		rr := do(http.MethodGet, flagsPath+"/no_such_flag", "")
		require.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), "ERR_NOT_FOUND")
	})

	t.Run("Should delete the project and cascade", func(t *testing.T) {
		rr := do(http.MethodDelete, fmt.Sprintf("/admin/v1/projects/%d", projectID), "")
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr = do(http.MethodGet, fmt.Sprintf("/admin/v1/projects/%d", projectID), "")
		require.Equal(t, http.StatusNotFound, rr.Code)
	})
}

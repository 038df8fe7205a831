package config

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimalRequiredConfig provides database and Redis config needed for all tests
func minimalRequiredConfig() map[string]string {
	return map[string]string{
		"FF_DB_HOST":        "localhost",
		"FF_DB_PORT":        "5432",
		"FF_DB_NAME":        "ff_test",
		"FF_DB_USER":        "test_user",
		"FF_DB_PASSWORD":    "test_pass",
		"FF_REDIS_HOST":     "localhost",
		"FF_REDIS_PORT":     "6379",
		"FF_REDIS_PASSWORD": "redis_password_123",
	}
}

// mergeEnvVars merges additional env vars with minimal required config
func mergeEnvVars(additional map[string]string) map[string]string {
	result := minimalRequiredConfig()
	maps.Copy(result, additional)
	return result
}

// validProductionConfig returns a complete valid production configuration
// with all required database, Redis, and admin plane settings for production tests
func validProductionConfig() map[string]string {
	return map[string]string{
		// App
		"FF_APP_ENV": "production",

		// Database
		"FF_DB_HOST":     "prod-db.example.com",
		"FF_DB_PORT":     "5432",
		"FF_DB_NAME":     "ff_prod",
		"FF_DB_USER":     "prod_user",
		"FF_DB_PASSWORD": "SuperSecure123!",
		"FF_DB_SSL_MODE": "require",

		// Redis
		"FF_REDIS_HOST":        "prod-redis.example.com",
		"FF_REDIS_PORT":        "6379",
		"FF_REDIS_PASSWORD":    "RedisSecure123!",
		"FF_REDIS_TLS_ENABLED": "true",

		// Admin Plane
		"FF_SERVER_ADMIN_ADMIN_KEY_HASH": "5dec7e1c36e8ec7f526cfa8ff6dc788daad76f6dd34467662eb47990dca6b55d",
		"FF_SERVER_ADMIN_TLS_ENABLED":    "true",
		"FF_SERVER_ADMIN_TLS_CERT_FILE":  "/certs/admin-cert.pem",
		"FF_SERVER_ADMIN_TLS_KEY_FILE":   "/certs/admin-key.pem",
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should use defaults when no env vars are set",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "feature-flags", cfg.App.Name)
				assert.Equal(t, "dev", cfg.App.Version)
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "info", cfg.App.LogLevel)
				assert.Equal(t, "text", cfg.App.LogFormat)
				assert.Equal(t, 30*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "8080", cfg.Server.Admin.Port)
				assert.Equal(t, "8081", cfg.Server.SDK.Port)
				assert.False(t, cfg.Evaluation.ServeDraftFlags)
				assert.Equal(t, 1024, cfg.Cache.MemoryCapacity)
				assert.Equal(t, "ff:invalidate", cfg.Cache.InvalidationChannel)
			},
			wantErr: false,
		},
		{
			name: "Should load all custom environment variables correctly",
			envVars: mergeEnvVars(map[string]string{
				"FF_APP_NAME":               "test-app",
				"FF_APP_VERSION":            "1.0.0",
				"FF_APP_ENV":                "staging",
				"FF_APP_LOG_LEVEL":          "debug",
				"FF_APP_LOG_FORMAT":         "json",
				"FF_APP_SHUTDOWN_TIMEOUT":   "60s",
				"FF_SERVER_ADMIN_PORT":      "9090",
				"FF_SERVER_SDK_PORT":        "9091",
				"FF_EVAL_SERVE_DRAFT_FLAGS": "true",
				"FF_CACHE_MEMORY_TTL":       "10s",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "test-app", cfg.App.Name)
				assert.Equal(t, "1.0.0", cfg.App.Version)
				assert.Equal(t, "staging", cfg.App.Environment)
				assert.Equal(t, "debug", cfg.App.LogLevel)
				assert.Equal(t, "json", cfg.App.LogFormat)
				assert.Equal(t, 60*time.Second, cfg.App.ShutdownTimeout)
				assert.Equal(t, "9090", cfg.Server.Admin.Port)
				assert.Equal(t, "9091", cfg.Server.SDK.Port)
				assert.True(t, cfg.Evaluation.ServeDraftFlags)
				assert.Equal(t, 10*time.Second, cfg.Cache.MemoryTTL)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation on invalid environment value",
			envVars: mergeEnvVars(map[string]string{
				"FF_APP_ENV": "invalid",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid log level",
			envVars: mergeEnvVars(map[string]string{
				"FF_APP_LOG_LEVEL": "trace",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on invalid log format",
			envVars: mergeEnvVars(map[string]string{
				"FF_APP_LOG_FORMAT": "xml",
			}),
			wantErr: true,
		},
		{
			name: "Should fail validation on a non-positive cache capacity",
			envVars: mergeEnvVars(map[string]string{
				"FF_CACHE_MEMORY_CAPACITY": "0",
			}),
			wantErr: true,
		},
		{
			name: "Should pass validation in staging environment",
			envVars: mergeEnvVars(map[string]string{
				"FF_APP_ENV": "staging",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "staging", cfg.App.Environment)
			},
			wantErr: false,
		},
		{
			name: "Should allow missing passwords in non-production environments",
			envVars: mergeEnvVars(map[string]string{
				"FF_APP_ENV":        "development",
				"FF_DB_PASSWORD":    "", // Empty password OK in development
				"FF_REDIS_PASSWORD": "", // Empty password OK in development
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.App.Environment)
				assert.Equal(t, "", cfg.Database.Password)
				assert.Equal(t, "", cfg.Redis.Password)
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Setup: Set environment variables for this test
			// t.Setenv automatically prevents parallel execution and cleans up after the test
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			// Execute
			cfg, err := Load()

			// Assert
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}

func TestAdminPlaneProductionValidation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr string
	}{
		{
			name:    "Should accept a complete production configuration",
			envVars: validProductionConfig(),
		},
		{
			name: "Should require the admin key hash in production",
			envVars: mergeEnvVars(map[string]string{
				"FF_APP_ENV":                     validProductionConfig()["FF_APP_ENV"],
				"FF_DB_SSL_MODE":                 "require",
				"FF_REDIS_TLS_ENABLED":           "true",
				"FF_SERVER_ADMIN_ADMIN_KEY_HASH": "",
			}),
			wantErr: "admin key hash is required",
		},
		{
			name: "Should reject a malformed admin key hash",
			envVars: func() map[string]string {
				env := validProductionConfig()
				env["FF_SERVER_ADMIN_ADMIN_KEY_HASH"] = "not-a-sha256-hash"
				return env
			}(),
			wantErr: "invalid admin key hash",
		},
		{
			name: "Should require TLS in production",
			envVars: func() map[string]string {
				env := validProductionConfig()
				env["FF_SERVER_ADMIN_TLS_ENABLED"] = "false"
				return env
			}(),
			wantErr: "TLS must be enabled",
		},
		{
			name: "Should require cert and key files when TLS is enabled",
			envVars: func() map[string]string {
				env := validProductionConfig()
				env["FF_SERVER_ADMIN_TLS_CERT_FILE"] = ""
				return env
			}(),
			wantErr: "cert or key file not specified",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			_, err := Load()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

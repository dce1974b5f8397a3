package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `{
	"webhook": {"verify_token": "tok"},
	"whatsapp": {"api_base_url": "https://graph.example.com/v19.0", "phone_number_id": "12345"},
	"database": {"path": "/tmp/campuswatch.db"},
	"media": {"cache_dir": "/tmp/media"}
}`

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8082, cfg.Server.Port)
	assert.Greater(t, cfg.Server.MaxWebhookBodyBytes, 0)
	assert.Greater(t, cfg.Media.MaxSizeBytes, int64(0))
	assert.Equal(t, []string{"openai", "anthropic", "google", "mock"}, cfg.AI.Priority)
	assert.Equal(t, "campuswatch", cfg.Tracing.ServiceName)
	assert.Greater(t, cfg.AI.Limits.RequestsPerMinute, 0)
	assert.Greater(t, cfg.AI.Limits.CostPerDayUSD, 0.0)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "missing verify token",
			content: `{"whatsapp": {"api_base_url": "x", "phone_number_id": "y"}, "database": {"path": "z"}, "media": {"cache_dir": "m"}}`,
			wantErr: ErrMissingVerifyToken,
		},
		{
			name:    "missing api base url",
			content: `{"webhook": {"verify_token": "tok"}, "whatsapp": {"phone_number_id": "y"}, "database": {"path": "z"}, "media": {"cache_dir": "m"}}`,
			wantErr: ErrMissingAPIBaseURL,
		},
		{
			name:    "missing phone number id",
			content: `{"webhook": {"verify_token": "tok"}, "whatsapp": {"api_base_url": "x"}, "database": {"path": "z"}, "media": {"cache_dir": "m"}}`,
			wantErr: ErrMissingPhoneID,
		},
		{
			name:    "missing database path",
			content: `{"webhook": {"verify_token": "tok"}, "whatsapp": {"api_base_url": "x", "phone_number_id": "y"}, "media": {"cache_dir": "m"}}`,
			wantErr: ErrMissingDBPath,
		},
		{
			name:    "missing media dir",
			content: `{"webhook": {"verify_token": "tok"}, "whatsapp": {"api_base_url": "x", "phone_number_id": "y"}, "database": {"path": "z"}}`,
			wantErr: ErrMissingMediaDir,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadConfig(path)
			assert.Equal(t, tt.wantErr, err)
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CAMPUSWATCH_VERIFY_TOKEN", "env-token")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "env-access")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("DB_PATH", "/env/campuswatch.db")

	path := writeConfig(t, minimalConfig)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Webhook.VerifyToken)
	assert.Equal(t, "env-access", cfg.WhatsApp.AccessToken)
	assert.Equal(t, "sk-env", cfg.AI.OpenAI.APIKey)
	assert.Equal(t, "/env/campuswatch.db", cfg.Database.Path)
}

func TestLoadConfig_ProductionRequiresAppSecret(t *testing.T) {
	t.Setenv("CAMPUSWATCH_ENV", "production")
	t.Setenv("CAMPUSWATCH_APP_SECRET", "")

	path := writeConfig(t, minimalConfig)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "app secret is required in production")
}

func TestLoadConfig_ProductionRejectsDebugLogging(t *testing.T) {
	t.Setenv("CAMPUSWATCH_ENV", "production")
	t.Setenv("CAMPUSWATCH_APP_SECRET", "secret")

	path := writeConfig(t, `{
		"webhook": {"verify_token": "tok"},
		"whatsapp": {"api_base_url": "x", "phone_number_id": "y"},
		"database": {"path": "z"},
		"media": {"cache_dir": "m"},
		"log_level": "debug"
	}`)
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "debug logging")
}

package config

import (
	"encoding/json"
	"fmt"
	"os"

	"campuswatch/internal/constants"
	"campuswatch/internal/models"
)

var (
	ErrMissingVerifyToken = models.ConfigError{Message: "missing webhook verify token"}
	ErrMissingAPIBaseURL  = models.ConfigError{Message: "missing WhatsApp API base URL"}
	ErrMissingPhoneID     = models.ConfigError{Message: "missing WhatsApp phone number ID"}
	ErrMissingDBPath      = models.ConfigError{Message: "missing database path"}
	ErrMissingMediaDir    = models.ConfigError{Message: "missing media cache directory"}
)

// LoadConfig reads the JSON config file, applies environment overrides for
// secrets, validates, and fills defaults. Vendor API keys are env-only by
// convention; a missing key disables that vendor's adapter, never the
// process.
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - path comes from the -config flag
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Webhook.VerifyToken == "" {
		return ErrMissingVerifyToken
	}
	if c.WhatsApp.APIBaseURL == "" {
		return ErrMissingAPIBaseURL
	}
	if c.WhatsApp.PhoneNumberID == "" {
		return ErrMissingPhoneID
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Media.CacheDir == "" {
		return ErrMissingMediaDir
	}

	if isProduction() && c.Webhook.AppSecret == "" {
		return models.ConfigError{Message: "webhook app secret is required in production (set CAMPUSWATCH_APP_SECRET)"}
	}
	if isProduction() && c.LogLevel == "debug" {
		return models.ConfigError{Message: "debug logging should not be used in production"}
	}

	applyDefaults(c)
	return nil
}

func applyDefaults(c *models.Config) {
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeoutSec <= 0 {
		c.Server.ReadTimeoutSec = constants.DefaultServerReadTimeoutSec
	}
	if c.Server.WriteTimeoutSec <= 0 {
		c.Server.WriteTimeoutSec = constants.DefaultServerWriteTimeoutSec
	}
	if c.Server.IdleTimeoutSec <= 0 {
		c.Server.IdleTimeoutSec = constants.DefaultServerIdleTimeoutSec
	}
	if c.Server.MaxWebhookBodyBytes <= 0 {
		c.Server.MaxWebhookBodyBytes = constants.DefaultMaxWebhookBodyBytes
	}
	if c.WhatsApp.TimeoutSec <= 0 {
		c.WhatsApp.TimeoutSec = constants.DefaultMediaHTTPTimeoutSec
	}
	if c.WhatsApp.RetryCount <= 0 {
		c.WhatsApp.RetryCount = constants.DefaultMaxAttempts
	}
	if c.Media.MaxSizeBytes <= 0 {
		c.Media.MaxSizeBytes = constants.DefaultMaxMediaSizeBytes
	}
	if c.Media.TimeoutSec <= 0 {
		c.Media.TimeoutSec = constants.DefaultMediaHTTPTimeoutSec
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultBackoffMaxMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultMaxAttempts
	}

	applyLimitDefaults(&c.AI.Limits)

	if len(c.AI.Priority) == 0 {
		c.AI.Priority = []string{"openai", "anthropic", "google", "mock"}
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "campuswatch"
	}
	if c.Tracing.SampleRate <= 0 {
		c.Tracing.SampleRate = 0.1
	}
}

func applyLimitDefaults(l *models.RateLimitConfig) {
	if l.RequestsPerMinute <= 0 {
		l.RequestsPerMinute = constants.DefaultRequestsPerMinute
	}
	if l.RequestsPerHour <= 0 {
		l.RequestsPerHour = constants.DefaultRequestsPerHour
	}
	if l.TokensPerMinute <= 0 {
		l.TokensPerMinute = constants.DefaultTokensPerMinute
	}
	if l.TokensPerDay <= 0 {
		l.TokensPerDay = constants.DefaultTokensPerDay
	}
	if l.CostPerHourUSD <= 0 {
		l.CostPerHourUSD = constants.DefaultCostPerHourUSD
	}
	if l.CostPerDayUSD <= 0 {
		l.CostPerDayUSD = constants.DefaultCostPerDayUSD
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	// SECURITY: secrets come from the environment, never the config file
	if token := os.Getenv("CAMPUSWATCH_VERIFY_TOKEN"); token != "" {
		c.Webhook.VerifyToken = token
	}
	if secret := os.Getenv("CAMPUSWATCH_APP_SECRET"); secret != "" {
		c.Webhook.AppSecret = secret
	}
	if token := os.Getenv("WHATSAPP_ACCESS_TOKEN"); token != "" {
		c.WhatsApp.AccessToken = token
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.AI.OpenAI.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.AI.Anthropic.APIKey = key
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
		c.AI.Google.APIKey = key
	}

	if url := os.Getenv("WHATSAPP_API_URL"); url != "" {
		c.WhatsApp.APIBaseURL = url
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if dir := os.Getenv("MEDIA_DIR"); dir != "" {
		c.Media.CacheDir = dir
	}
}

func isProduction() bool {
	return os.Getenv("CAMPUSWATCH_ENV") == "production"
}

// Describe returns a one-line summary safe for startup logging.
func Describe(c *models.Config) string {
	return fmt.Sprintf("port=%d db=%s providers=%v", c.Server.Port, c.Database.Path, c.AI.Priority)
}

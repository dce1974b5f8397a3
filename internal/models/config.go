package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Webhook  WebhookConfig  `json:"webhook"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Database DatabaseConfig `json:"database"`
	Media    MediaConfig    `json:"media"`
	AI       AIConfig       `json:"ai"`
	Retry    RetryConfig    `json:"retry"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                int `json:"port"`
	ReadTimeoutSec      int `json:"readTimeoutSec"`
	WriteTimeoutSec     int `json:"writeTimeoutSec"`
	IdleTimeoutSec      int `json:"idleTimeoutSec"`
	MaxWebhookBodyBytes int `json:"maxWebhookBodyBytes"`
}

// WebhookConfig holds inbound webhook verification settings
type WebhookConfig struct {
	VerifyToken string `json:"verify_token"`
	AppSecret   string `json:"app_secret"`
}

// WhatsAppConfig holds messaging platform transport settings
type WhatsAppConfig struct {
	APIBaseURL    string `json:"api_base_url"`
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
	TimeoutSec    int    `json:"timeoutSec"`
	RetryCount    int    `json:"retry_count"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MediaConfig holds media download settings
type MediaConfig struct {
	CacheDir     string `json:"cache_dir"`
	MaxSizeBytes int64  `json:"maxSizeBytes"`
	TimeoutSec   int    `json:"timeoutSec"`
}

// AIConfig holds the provider priority order and per-vendor settings
type AIConfig struct {
	Priority  []string         `json:"priority"`
	OpenAI    ProviderConfig   `json:"openai"`
	Anthropic ProviderConfig   `json:"anthropic"`
	Google    ProviderConfig   `json:"google"`
	Limits    RateLimitConfig  `json:"limits"`
}

// ProviderConfig holds one AI vendor's adapter settings. APIKey is normally
// injected from the environment; an empty key disables the adapter.
type ProviderConfig struct {
	APIKey          string  `json:"api_key"`
	BaseURL         string  `json:"base_url"`
	Model           string  `json:"model"`
	InputCostPer1K  float64 `json:"inputCostPer1K"`
	OutputCostPer1K float64 `json:"outputCostPer1K"`
}

// RateLimitConfig holds per-provider admission thresholds
type RateLimitConfig struct {
	RequestsPerMinute int     `json:"requestsPerMinute"`
	RequestsPerHour   int     `json:"requestsPerHour"`
	TokensPerMinute   int     `json:"tokensPerMinute"`
	TokensPerDay      int     `json:"tokensPerDay"`
	CostPerHourUSD    float64 `json:"costPerHourUSD"`
	CostPerDayUSD     float64 `json:"costPerDayUSD"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

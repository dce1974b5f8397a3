package constants

// Default server configuration values
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	DefaultMaxWebhookBodyBytes   = 1 << 20 // 1 MiB
)

// Default database configuration values
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultDatabaseBusyTimeoutMs = 5000
)

// Default retry/backoff values
const (
	DefaultBackoffInitialMs = 500
	DefaultBackoffMaxMs     = 60000
	DefaultMaxAttempts      = 5
)

// Default media configuration values
const (
	DefaultMaxMediaSizeBytes   = 16 << 20 // hard ceiling per platform media limits
	DefaultMediaHTTPTimeoutSec = 30
)

// Default AI provider timeout values
const (
	DefaultAISyncTimeoutSec   = 30
	DefaultAIStreamTimeoutSec = 60
	DefaultAIProbeTimeoutSec  = 5
)

// Circuit breaker defaults, applied per provider
const (
	DefaultBreakerMaxFailures = 5
	DefaultBreakerTimeoutSec  = 60
)

// Token estimate used for admission control when a call sets no MaxTokens
const (
	DefaultEstimatedCompletionTokens = 512
)

// Default rate limit thresholds, applied per provider
const (
	DefaultRequestsPerMinute = 15
	DefaultRequestsPerHour   = 250
	DefaultTokensPerMinute   = 32000
	DefaultTokensPerDay      = 1000000
	DefaultCostPerHourUSD    = 1.0
	DefaultCostPerDayUSD     = 10.0
)

// Classification field limits
const (
	MaxSubcategoryLength = 100
	MaxLocationLength    = 100
	MaxNotesLength       = 500
	MaxSubcategoryTitle  = 35
)

// Classification defaults used when a field is missing or invalid
const (
	DefaultSubcategory = "General Issue"
	DefaultLocation    = "Unknown Location"
	DefaultNotes       = "No additional details provided"
)

// Free-messaging window tracked per WhatsApp user
const (
	FreeMessagingWindowHours = 24
)

// Validation limits
const (
	MinPhoneNumberLength = 10
	MaxPhoneNumberLength = 20
	MaxMessageIDLength   = 256
	BytesPerMegabyte     = 1024 * 1024
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	ReferenceIDLength      = 8
)

// Misc channel sizes
const (
	ServerErrorChannelSize = 1
	StreamChunkBufferSize  = 16
)

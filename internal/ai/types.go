package ai

import (
	"context"
	"encoding/json"
	"time"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// Options tunes a single generation call. Zero values mean provider defaults.
type Options struct {
	SystemInstruction string
	MaxTokens         int
	Temperature       *float32
	ResponseFormat    string // "json_object" or "text"
}

// Usage reports token consumption and the derived dollar cost of one call.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Result is the outcome of a completed generation call.
type Result struct {
	Text         string
	Model        string
	Provider     string
	FinishReason string
	Usage        Usage
}

// StreamChunk is one increment of a streaming generation.
type StreamChunk struct {
	Delta        string
	FinishReason string
	Usage        *Usage // set on the final chunk when the vendor reports it
}

// StructuredResult is a schema-constrained reply plus the provider that
// served it, so callers can tell a real vendor answer from the offline mock.
type StructuredResult struct {
	Data     json.RawMessage
	Provider string
}

// Provider is a single AI vendor capable of text generation. Implementations
// must translate vendor failures into AppError codes so the selector can
// decide between retrying, failing over, and backing off.
type Provider interface {
	Name() string
	GenerateContent(ctx context.Context, prompt string, opts Options) (*Result, error)
	GenerateStructuredContent(ctx context.Context, prompt string, schema json.RawMessage, opts Options) (*StructuredResult, error)
	GenerateContentStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, <-chan error)
}

// HealthChecker is implemented by providers that support a cheap probe call.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProviderHealth is a point-in-time snapshot of one provider's recent record.
type ProviderHealth struct {
	Name             string    `json:"name"`
	Available        bool      `json:"available"`
	CircuitState     string    `json:"circuit_state"`
	TotalRequests    uint64    `json:"total_requests"`
	TotalFailures    uint64    `json:"total_failures"`
	ConsecutiveFails uint64    `json:"consecutive_failures"`
	LastSuccess      time.Time `json:"last_success,omitempty"`
	LastFailure      time.Time `json:"last_failure,omitempty"`
	TotalCostUSD     float64   `json:"total_cost_usd"`
}

// estimateTokens is a coarse pre-flight token estimate used for rate-limit
// admission. Four characters per token tracks English prose closely enough
// for budgeting.
func estimateTokens(text string) int {
	n := len(text)/4 + 1
	return n
}

// costFor converts token counts to dollars using per-1K pricing.
func costFor(promptTokens, completionTokens int, inputPer1K, outputPer1K float64) float64 {
	return float64(promptTokens)/1000*inputPer1K + float64(completionTokens)/1000*outputPer1K
}

package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"campuswatch/internal/constants"
	apperrors "campuswatch/internal/errors"
	"campuswatch/internal/models"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultMaxTok  = 1024
)

// AnthropicProvider calls the Anthropic messages API.
type AnthropicProvider struct {
	apiKey       string
	baseURL      string
	model        string
	inputPer1K   float64
	outputPer1K  float64
	client       *http.Client
	streamClient *http.Client
}

func NewAnthropicProvider(cfg models.ProviderConfig) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicProvider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        cfg.Model,
		inputPer1K:   cfg.InputCostPer1K,
		outputPer1K:  cfg.OutputCostPer1K,
		client:       &http.Client{Timeout: time.Duration(constants.DefaultAISyncTimeoutSec) * time.Second},
		streamClient: &http.Client{Timeout: time.Duration(constants.DefaultAIStreamTimeoutSec) * time.Second},
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float32  `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
}

func (p *AnthropicProvider) GenerateContent(ctx context.Context, prompt string, opts Options) (*Result, error) {
	return p.complete(ctx, []Message{{Role: "user", Content: prompt}}, opts)
}

func (p *AnthropicProvider) GenerateStructuredContent(ctx context.Context, prompt string, schema json.RawMessage, opts Options) (*StructuredResult, error) {
	// Anthropic has no native JSON mode; the schema rides in the system
	// prompt and the output is validated after the fact.
	if len(schema) > 0 {
		opts.SystemInstruction = fmt.Sprintf("%s\n\nRespond with only a JSON object matching this schema, no prose:\n%s",
			opts.SystemInstruction, schema)
	}
	result, err := p.complete(ctx, []Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		return nil, err
	}
	raw := extractJSONObject(result.Text)
	if raw == nil {
		return nil, apperrors.New(apperrors.ErrCodeProviderValidation, "anthropic returned no JSON object")
	}
	return &StructuredResult{Data: raw, Provider: p.Name()}, nil
}

func (p *AnthropicProvider) complete(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTok
	}
	reqBody := anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		System:      opts.SystemInstruction,
		Messages:    messages,
		Temperature: opts.Temperature,
	}

	resp, err := p.post(ctx, p.client, reqBody)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyHTTPError(p.Name(), resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
	}

	var apiResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderValidation, "failed to decode anthropic response")
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, apperrors.New(apperrors.ErrCodeProviderValidation, "anthropic response contained no text blocks")
	}

	return &Result{
		Text:         text.String(),
		Model:        apiResp.Model,
		Provider:     p.Name(),
		FinishReason: apiResp.StopReason,
		Usage: Usage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
			CostUSD:          costFor(apiResp.Usage.InputTokens, apiResp.Usage.OutputTokens, p.inputPer1K, p.outputPer1K),
		},
	}, nil
}

func (p *AnthropicProvider) GenerateContentStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, constants.StreamChunkBufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		maxTokens := opts.MaxTokens
		if maxTokens <= 0 {
			maxTokens = anthropicDefaultMaxTok
		}
		reqBody := anthropicRequest{
			Model:       p.model,
			MaxTokens:   maxTokens,
			System:      opts.SystemInstruction,
			Messages:    messages,
			Temperature: opts.Temperature,
			Stream:      true,
		}

		resp, err := p.post(ctx, p.streamClient, reqBody)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			errs <- classifyHTTPError(p.Name(), resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
			return
		}

		var promptTokens, completionTokens int
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}

			switch event.Type {
			case "message_start":
				promptTokens = event.Message.Usage.InputTokens
			case "content_block_delta":
				select {
				case chunks <- StreamChunk{Delta: event.Delta.Text}:
				case <-ctx.Done():
					errs <- classifyTransportError(p.Name(), ctx.Err())
					return
				}
			case "message_delta":
				completionTokens = event.Usage.OutputTokens
				if event.Delta.StopReason != "" {
					chunks <- StreamChunk{
						FinishReason: event.Delta.StopReason,
						Usage: &Usage{
							PromptTokens:     promptTokens,
							CompletionTokens: completionTokens,
							TotalTokens:      promptTokens + completionTokens,
							CostUSD:          costFor(promptTokens, completionTokens, p.inputPer1K, p.outputPer1K),
						},
					}
				}
			case "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- classifyTransportError(p.Name(), err)
		}
	}()

	return chunks, errs
}

func (p *AnthropicProvider) post(ctx context.Context, client *http.Client, body anthropicRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderValidation, "failed to marshal anthropic request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(jsonData))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderServer, "failed to create anthropic request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(p.Name(), err)
	}
	return resp, nil
}

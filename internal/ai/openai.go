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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	apiKey       string
	baseURL      string
	model        string
	inputPer1K   float64
	outputPer1K  float64
	client       *http.Client
	streamClient *http.Client
}

func NewOpenAIProvider(cfg models.ProviderConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIProvider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        cfg.Model,
		inputPer1K:   cfg.InputCostPer1K,
		outputPer1K:  cfg.OutputCostPer1K,
		client:       &http.Client{Timeout: time.Duration(constants.DefaultAISyncTimeoutSec) * time.Second},
		streamClient: &http.Client{Timeout: time.Duration(constants.DefaultAIStreamTimeoutSec) * time.Second},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

type openAIRequest struct {
	Model          string           `json:"model"`
	Messages       []Message        `json:"messages"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Temperature    *float32         `json:"temperature,omitempty"`
	Stream         bool             `json:"stream,omitempty"`
	ResponseFormat *openAIRespFmt   `json:"response_format,omitempty"`
	StreamOptions  *openAIStreamOpt `json:"stream_options,omitempty"`
}

type openAIRespFmt struct {
	Type string `json:"type"`
}

type openAIStreamOpt struct {
	IncludeUsage bool `json:"include_usage"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type openAIStreamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) buildMessages(prompt string, opts Options) []Message {
	messages := make([]Message, 0, 2)
	if opts.SystemInstruction != "" {
		messages = append(messages, Message{Role: "system", Content: opts.SystemInstruction})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})
	return messages
}

func (p *OpenAIProvider) GenerateContent(ctx context.Context, prompt string, opts Options) (*Result, error) {
	return p.complete(ctx, p.buildMessages(prompt, opts), opts)
}

func (p *OpenAIProvider) GenerateStructuredContent(ctx context.Context, prompt string, schema json.RawMessage, opts Options) (*StructuredResult, error) {
	opts.ResponseFormat = "json_object"
	if opts.SystemInstruction != "" && len(schema) > 0 {
		opts.SystemInstruction = fmt.Sprintf("%s\n\nRespond with JSON matching this schema:\n%s", opts.SystemInstruction, schema)
	}
	result, err := p.complete(ctx, p.buildMessages(prompt, opts), opts)
	if err != nil {
		return nil, err
	}
	raw := extractJSONObject(result.Text)
	if raw == nil {
		return nil, apperrors.New(apperrors.ErrCodeProviderValidation, "openai returned no JSON object")
	}
	return &StructuredResult{Data: raw, Provider: p.Name()}, nil
}

func (p *OpenAIProvider) complete(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	reqBody := openAIRequest{
		Model:       p.model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if opts.ResponseFormat == "json_object" {
		reqBody.ResponseFormat = &openAIRespFmt{Type: "json_object"}
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

	var apiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderValidation, "failed to decode openai response")
	}
	if len(apiResp.Choices) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeProviderValidation, "openai response contained no choices")
	}

	choice := apiResp.Choices[0]
	return &Result{
		Text:         choice.Message.Content,
		Model:        apiResp.Model,
		Provider:     p.Name(),
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
			CostUSD:          costFor(apiResp.Usage.PromptTokens, apiResp.Usage.CompletionTokens, p.inputPer1K, p.outputPer1K),
		},
	}, nil
}

func (p *OpenAIProvider) GenerateContentStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, constants.StreamChunkBufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		reqBody := openAIRequest{
			Model:         p.model,
			Messages:      messages,
			MaxTokens:     opts.MaxTokens,
			Temperature:   opts.Temperature,
			Stream:        true,
			StreamOptions: &openAIStreamOpt{IncludeUsage: true},
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

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var event openAIStreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}

			chunk := StreamChunk{}
			if len(event.Choices) > 0 {
				chunk.Delta = event.Choices[0].Delta.Content
				chunk.FinishReason = event.Choices[0].FinishReason
			}
			if event.Usage != nil {
				chunk.Usage = &Usage{
					PromptTokens:     event.Usage.PromptTokens,
					CompletionTokens: event.Usage.CompletionTokens,
					TotalTokens:      event.Usage.TotalTokens,
					CostUSD:          costFor(event.Usage.PromptTokens, event.Usage.CompletionTokens, p.inputPer1K, p.outputPer1K),
				}
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- classifyTransportError(p.Name(), ctx.Err())
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- classifyTransportError(p.Name(), err)
		}
	}()

	return chunks, errs
}

func (p *OpenAIProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(constants.DefaultAIProbeTimeoutSec)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeProviderServer, "failed to create probe request")
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return classifyHTTPError(p.Name(), resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
	}
	return nil
}

func (p *OpenAIProvider) post(ctx context.Context, client *http.Client, body openAIRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderValidation, "failed to marshal openai request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderServer, "failed to create openai request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(p.Name(), err)
	}
	return resp, nil
}

// extractJSONObject pulls the outermost JSON object from model output, which
// vendors sometimes wrap in code fences or prose despite JSON mode.
func extractJSONObject(text string) json.RawMessage {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return nil
	}
	return json.RawMessage(candidate)
}

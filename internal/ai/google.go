package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"campuswatch/internal/constants"
	apperrors "campuswatch/internal/errors"
	"campuswatch/internal/models"
)

const defaultGoogleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleProvider calls the Gemini generateContent API.
type GoogleProvider struct {
	apiKey       string
	baseURL      string
	model        string
	inputPer1K   float64
	outputPer1K  float64
	client       *http.Client
	streamClient *http.Client
}

func NewGoogleProvider(cfg models.ProviderConfig) *GoogleProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	return &GoogleProvider{
		apiKey:       cfg.APIKey,
		baseURL:      strings.TrimRight(baseURL, "/"),
		model:        cfg.Model,
		inputPer1K:   cfg.InputCostPer1K,
		outputPer1K:  cfg.OutputCostPer1K,
		client:       &http.Client{Timeout: time.Duration(constants.DefaultAISyncTimeoutSec) * time.Second},
		streamClient: &http.Client{Timeout: time.Duration(constants.DefaultAIStreamTimeoutSec) * time.Second},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	Temperature      *float32 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

func (p *GoogleProvider) buildRequest(messages []Message, opts Options) geminiRequest {
	req := geminiRequest{
		GenerationConfig: &geminiGenerationConfig{
			MaxOutputTokens: opts.MaxTokens,
			Temperature:     opts.Temperature,
		},
	}
	if opts.ResponseFormat == "json_object" {
		req.GenerationConfig.ResponseMimeType = "application/json"
	}
	if opts.SystemInstruction != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.SystemInstruction}}}
	}
	for _, m := range messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return req
}

func (p *GoogleProvider) GenerateContent(ctx context.Context, prompt string, opts Options) (*Result, error) {
	return p.complete(ctx, []Message{{Role: "user", Content: prompt}}, opts)
}

func (p *GoogleProvider) GenerateStructuredContent(ctx context.Context, prompt string, schema json.RawMessage, opts Options) (*StructuredResult, error) {
	opts.ResponseFormat = "json_object"
	if len(schema) > 0 {
		opts.SystemInstruction = fmt.Sprintf("%s\n\nRespond with JSON matching this schema:\n%s", opts.SystemInstruction, schema)
	}
	result, err := p.complete(ctx, []Message{{Role: "user", Content: prompt}}, opts)
	if err != nil {
		return nil, err
	}
	raw := extractJSONObject(result.Text)
	if raw == nil {
		return nil, apperrors.New(apperrors.ErrCodeProviderValidation, "google returned no JSON object")
	}
	return &StructuredResult{Data: raw, Provider: p.Name()}, nil
}

func (p *GoogleProvider) complete(ctx context.Context, messages []Message, opts Options) (*Result, error) {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, url.QueryEscape(p.apiKey))
	resp, err := p.post(ctx, p.client, endpoint, p.buildRequest(messages, opts))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classifyHTTPError(p.Name(), resp.StatusCode, string(body), resp.Header.Get("Retry-After"))
	}

	var apiResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderValidation, "failed to decode google response")
	}
	if len(apiResp.Candidates) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeProviderValidation, "google response contained no candidates")
	}

	candidate := apiResp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	model := apiResp.ModelVersion
	if model == "" {
		model = p.model
	}
	return &Result{
		Text:         text.String(),
		Model:        model,
		Provider:     p.Name(),
		FinishReason: strings.ToLower(candidate.FinishReason),
		Usage: Usage{
			PromptTokens:     apiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: apiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      apiResp.UsageMetadata.TotalTokenCount,
			CostUSD:          costFor(apiResp.UsageMetadata.PromptTokenCount, apiResp.UsageMetadata.CandidatesTokenCount, p.inputPer1K, p.outputPer1K),
		},
	}, nil
}

func (p *GoogleProvider) GenerateContentStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, constants.StreamChunkBufferSize)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", p.baseURL, p.model, url.QueryEscape(p.apiKey))
		resp, err := p.post(ctx, p.streamClient, endpoint, p.buildRequest(messages, opts))
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

			var event geminiResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}
			if len(event.Candidates) == 0 {
				continue
			}

			candidate := event.Candidates[0]
			var text strings.Builder
			for _, part := range candidate.Content.Parts {
				text.WriteString(part.Text)
			}

			chunk := StreamChunk{
				Delta:        text.String(),
				FinishReason: strings.ToLower(candidate.FinishReason),
			}
			if candidate.FinishReason != "" {
				chunk.Usage = &Usage{
					PromptTokens:     event.UsageMetadata.PromptTokenCount,
					CompletionTokens: event.UsageMetadata.CandidatesTokenCount,
					TotalTokens:      event.UsageMetadata.TotalTokenCount,
					CostUSD:          costFor(event.UsageMetadata.PromptTokenCount, event.UsageMetadata.CandidatesTokenCount, p.inputPer1K, p.outputPer1K),
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

func (p *GoogleProvider) post(ctx context.Context, client *http.Client, endpoint string, body geminiRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderValidation, "failed to marshal google request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeProviderServer, "failed to create google request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, classifyTransportError(p.Name(), err)
	}
	return resp, nil
}

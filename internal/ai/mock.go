package ai

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// MockProvider is the always-available last resort in the provider chain. It
// produces deterministic output from keyword matching, never makes a network
// call, and reports zero cost. It keeps ingestion functional when every real
// vendor is down or budget-exhausted.
type MockProvider struct{}

// MockProviderName identifies the mock in results so callers can treat its
// answers as degraded output rather than a real model classification.
const MockProviderName = "mock"

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return MockProviderName }

var mockCategoryKeywords = []struct {
	category string
	words    []string
}{
	{"maintenance", []string{"broken", "repair", "fix", "leak", "damage", "install", "not working"}},
	{"discipline", []string{"misbehav", "fight", "bullying", "disrespect", "cheat"}},
	{"sports", []string{"sport", "game", "training", "match", "tournament"}},
}

var mockLocationPattern = regexp.MustCompile(`(?i)\b(classroom\s*\w*|room\s*\w+|lab\w*|playground|office|corridor|hall\w*|grade\s*\d+\w*|cafeteria|library|gym\w*)\b`)

func mockClassify(text string) map[string]string {
	lower := strings.ToLower(text)

	category := "general"
	for _, group := range mockCategoryKeywords {
		for _, word := range group.words {
			if strings.Contains(lower, word) {
				category = group.category
				break
			}
		}
		if category != "general" {
			break
		}
	}

	location := ""
	if m := mockLocationPattern.FindString(text); m != "" {
		location = strings.TrimSpace(m)
	}

	subcategory := text
	if runes := []rune(subcategory); len(runes) > 35 {
		subcategory = string(runes[:35])
	}

	return map[string]string{
		"category_id": category,
		"subcategory": strings.TrimSpace(subcategory),
		"location":    location,
		"notes":       strings.TrimSpace(text),
	}
}

func (p *MockProvider) GenerateContent(ctx context.Context, prompt string, opts Options) (*Result, error) {
	data, _ := json.Marshal(mockClassify(prompt))
	return &Result{
		Text:         string(data),
		Model:        MockProviderName,
		Provider:     p.Name(),
		FinishReason: "stop",
		Usage:        Usage{PromptTokens: estimateTokens(prompt)},
	}, nil
}

func (p *MockProvider) GenerateStructuredContent(ctx context.Context, prompt string, schema json.RawMessage, opts Options) (*StructuredResult, error) {
	data, err := json.Marshal(mockClassify(prompt))
	if err != nil {
		return nil, err
	}
	return &StructuredResult{Data: json.RawMessage(data), Provider: p.Name()}, nil
}

func (p *MockProvider) GenerateContentStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, <-chan error) {
	chunks := make(chan StreamChunk, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		var prompt string
		if len(messages) > 0 {
			prompt = messages[len(messages)-1].Content
		}
		data, _ := json.Marshal(mockClassify(prompt))
		chunks <- StreamChunk{Delta: string(data), FinishReason: "stop", Usage: &Usage{}}
	}()

	return chunks, errs
}

func (p *MockProvider) HealthCheck(ctx context.Context) error { return nil }

package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"campuswatch/internal/ai"
	"campuswatch/internal/metrics"
	"campuswatch/internal/models"
)

const systemInstruction = `You classify incident reports from school staff into structured records.
Given a report, pick the single best matching category from the list provided,
write a short subcategory title (at most 35 characters), extract the location
if one is mentioned, and summarize any remaining details as notes.`

// classificationSchema constrains the model's JSON output shape.
var classificationSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "category_id": {"type": "string"},
    "subcategory": {"type": "string", "maxLength": 35},
    "location": {"type": "string"},
    "notes": {"type": "string"}
  },
  "required": ["category_id", "subcategory"]
}`)

// Classifier turns free-form report text into a ParsedActivityData. It never
// returns an error: any provider or parsing failure degrades to the keyword
// fallback, so a report is always classified into something reviewable.
type Classifier struct {
	provider ai.Provider
	logger   *logrus.Logger
}

func New(provider ai.Provider, logger *logrus.Logger) *Classifier {
	return &Classifier{provider: provider, logger: logger}
}

// Classify produces a sanitized classification for the report text. Results
// from the fallback path carry SourceFallback so downstream code can flag the
// activity for human review.
func (c *Classifier) Classify(ctx context.Context, text string, categories []models.Category) models.ParsedActivityData {
	res, err := c.provider.GenerateStructuredContent(ctx, buildPrompt(text, categories), classificationSchema, ai.Options{
		SystemInstruction: systemInstruction,
		MaxTokens:         512,
	})
	if err != nil {
		c.logger.WithError(err).Warn("Classification call failed, using keyword fallback")
		metrics.IncrementCounter("classifier_fallback", map[string]string{"reason": "provider_error"}, "Classifications served by keyword fallback")
		return classifyByKeywords(text, categories)
	}
	if res.Provider == ai.MockProviderName {
		// The mock only sees the assembled prompt, not the report. Keyword-
		// classify the report text directly and mark it for review.
		c.logger.Debug("Mock provider served classification, using keyword fallback")
		metrics.IncrementCounter("classifier_fallback", map[string]string{"reason": "mock_provider"}, "Classifications served by keyword fallback")
		return classifyByKeywords(text, categories)
	}

	var parsed models.ParsedActivityData
	if err := json.Unmarshal(res.Data, &parsed); err != nil {
		c.logger.WithError(err).Warn("Classification output unparsable, using keyword fallback")
		metrics.IncrementCounter("classifier_fallback", map[string]string{"reason": "bad_json"}, "Classifications served by keyword fallback")
		return classifyByKeywords(text, categories)
	}

	parsed.Source = models.SourceAI
	metrics.IncrementCounter("classifier_success", nil, "Classifications produced by an AI provider")
	return sanitize(parsed, categories)
}

// buildPrompt lists the offered categories followed by the report text.
func buildPrompt(text string, categories []models.Category) string {
	var b strings.Builder
	b.WriteString("Categories:\n")
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s: %s\n", c.ID, c.Name)
	}
	b.WriteString("\nReport:\n")
	b.WriteString(text)
	return b.String()
}

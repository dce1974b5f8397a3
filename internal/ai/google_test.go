package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "campuswatch/internal/errors"
	"campuswatch/internal/models"
)

func newTestGoogle(t *testing.T, handler http.HandlerFunc) *GoogleProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewGoogleProvider(models.ProviderConfig{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		Model:           "gemini-2.0-flash",
		InputCostPer1K:  0.1,
		OutputCostPer1K: 0.4,
	})
}

func TestGoogleGenerateContent(t *testing.T) {
	p := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.0-flash:generateContent"))
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "user", req.Contents[0].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content":      map[string]interface{}{"parts": []map[string]string{{"text": "hello"}}},
					"finishReason": "STOP",
				},
			},
			"usageMetadata": map[string]int{
				"promptTokenCount":     30,
				"candidatesTokenCount": 5,
				"totalTokenCount":      35,
			},
			"modelVersion": "gemini-2.0-flash-001",
		})
	})

	result, err := p.GenerateContent(context.Background(), "hi", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", result.Text)
	assert.Equal(t, "google", result.Provider)
	assert.Equal(t, "stop", result.FinishReason)
	assert.Equal(t, "gemini-2.0-flash-001", result.Model)
	assert.Equal(t, 35, result.Usage.TotalTokens)
}

func TestGoogleStructuredContentSetsJSONMimeType(t *testing.T) {
	p := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotNil(t, req.GenerationConfig)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content":      map[string]interface{}{"parts": []map[string]string{{"text": `{"category_id":"discipline"}`}}},
					"finishReason": "STOP",
				},
			},
		})
	})

	res, err := p.GenerateStructuredContent(context.Background(), "classify", nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, "google", res.Provider)
	assert.JSONEq(t, `{"category_id":"discipline"}`, string(res.Data))
}

func TestGoogleEmptyCandidates(t *testing.T) {
	p := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"candidates": []interface{}{}})
	})

	_, err := p.GenerateContent(context.Background(), "hi", Options{})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProviderValidation, apperrors.GetCode(err))
}

func TestGoogleAssistantRoleMapsToModel(t *testing.T) {
	p := newTestGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 2)
		assert.Equal(t, "model", req.Contents[0].Role)
		assert.Equal(t, "user", req.Contents[1].Role)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []map[string]interface{}{
				{
					"content":      map[string]interface{}{"parts": []map[string]string{{"text": "ok"}}},
					"finishReason": "STOP",
				},
			},
		})
	})

	_, err := p.complete(context.Background(), []Message{
		{Role: "assistant", Content: "earlier reply"},
		{Role: "user", Content: "hi"},
	}, Options{})
	require.NoError(t, err)
}

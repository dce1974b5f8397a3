package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "12345", "test-token", 5*time.Second)
}

func TestSendText(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req textMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "whatsapp", req.MessagingProduct)
		assert.Equal(t, "491701234567", req.To)
		assert.Equal(t, "hello there", req.Text.Body)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"messaging_product": "whatsapp",
			"messages":          []map[string]string{{"id": "wamid.abc123"}},
		})
	})

	resp, err := client.SendText(context.Background(), "491701234567", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "wamid.abc123", resp.MessageID())
}

func TestSendTextAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid recipient","type":"OAuthException","code":131026}}`))
	})

	_, err := client.SendText(context.Background(), "bad", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid recipient")
	assert.Contains(t, err.Error(), "131026")
}

func TestGetMediaURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/media-id-1", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(MediaURLResponse{
			URL:      "https://lookaside.example/media-id-1",
			MimeType: "image/jpeg",
			SHA256:   "abc",
			FileSize: 1024,
			ID:       "media-id-1",
		})
	})

	resp, err := client.GetMediaURL(context.Background(), "media-id-1")
	require.NoError(t, err)
	assert.Equal(t, "https://lookaside.example/media-id-1", resp.URL)
	assert.Equal(t, "image/jpeg", resp.MimeType)
}

func TestDownloadMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte("binary-bytes"))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "12345", "test-token", 5*time.Second)
	body, err := client.DownloadMedia(context.Background(), server.URL+"/asset")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "binary-bytes", string(data))
}

func TestDownloadMediaExpiredURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"Media url expired","code":190}}`))
	}))
	t.Cleanup(server.Close)

	client := NewClient(server.URL, "12345", "test-token", 5*time.Second)
	_, err := client.DownloadMedia(context.Background(), server.URL+"/gone")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Media url expired")
}

package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "campuswatch/internal/errors"
	"campuswatch/pkg/whatsapp"
)

// stubTransport records calls so tests can assert no network activity
// happened for rejected media.
type stubTransport struct {
	t           *testing.T
	urlCalls    int
	downloads   int
	mediaInfo   *whatsapp.MediaURLResponse
	mediaBody   string
	resolveErr  error
	downloadErr error
}

func (s *stubTransport) SendText(ctx context.Context, to, text string) (*whatsapp.SendMessageResponse, error) {
	s.t.Fatal("SendText should not be called by the fetcher")
	return nil, nil
}

func (s *stubTransport) GetMediaURL(ctx context.Context, mediaID string) (*whatsapp.MediaURLResponse, error) {
	s.urlCalls++
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return s.mediaInfo, nil
}

func (s *stubTransport) DownloadMedia(ctx context.Context, mediaURL string) (io.ReadCloser, error) {
	s.downloads++
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	return io.NopCloser(strings.NewReader(s.mediaBody)), nil
}

func newTestFetcher(t *testing.T, transport *stubTransport, maxSize int64) *Fetcher {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	f, err := NewFetcher(transport, t.TempDir(), maxSize, logger)
	require.NoError(t, err)
	return f
}

func TestFetchRejectsUnsupportedMimeBeforeNetwork(t *testing.T) {
	transport := &stubTransport{t: t}
	f := newTestFetcher(t, transport, 1024)

	_, err := f.Fetch(context.Background(), "media-1", "application/x-msdownload")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaRejected, apperrors.GetCode(err))
	assert.Equal(t, 0, transport.urlCalls)
	assert.Equal(t, 0, transport.downloads)
}

func TestFetchRejectsOversizeBeforeDownload(t *testing.T) {
	transport := &stubTransport{
		t: t,
		mediaInfo: &whatsapp.MediaURLResponse{
			URL:      "https://example/asset",
			MimeType: "image/jpeg",
			FileSize: 2048,
		},
	}
	f := newTestFetcher(t, transport, 1024)

	_, err := f.Fetch(context.Background(), "media-1", "image/jpeg")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaRejected, apperrors.GetCode(err))
	assert.Equal(t, 1, transport.urlCalls)
	assert.Equal(t, 0, transport.downloads)
}

func TestFetchStoresFileWithHash(t *testing.T) {
	body := "fake-jpeg-bytes"
	transport := &stubTransport{
		t: t,
		mediaInfo: &whatsapp.MediaURLResponse{
			URL:      "https://example/asset",
			MimeType: "image/jpeg",
			FileSize: int64(len(body)),
		},
		mediaBody: body,
	}
	f := newTestFetcher(t, transport, 1024)

	dl, err := f.Fetch(context.Background(), "media-1", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "image", dl.Class)
	assert.Equal(t, int64(len(body)), dl.Size)
	assert.True(t, strings.HasSuffix(dl.Path, ".jpg"))

	sum := sha256.Sum256([]byte(body))
	assert.Equal(t, hex.EncodeToString(sum[:]), dl.SHA256)

	stored, err := os.ReadFile(dl.Path)
	require.NoError(t, err)
	assert.Equal(t, body, string(stored))
}

func TestFetchRemovesPartialFileWhenStreamExceedsLimit(t *testing.T) {
	transport := &stubTransport{
		t: t,
		mediaInfo: &whatsapp.MediaURLResponse{
			URL:      "https://example/asset",
			MimeType: "image/png",
			FileSize: 10, // lies about its size
		},
		mediaBody: strings.Repeat("x", 100),
	}
	f := newTestFetcher(t, transport, 50)

	_, err := f.Fetch(context.Background(), "media-1", "image/png")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaRejected, apperrors.GetCode(err))

	entries, err := os.ReadDir(f.cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFetchStripsMimeParameters(t *testing.T) {
	body := "ogg-bytes"
	transport := &stubTransport{
		t: t,
		mediaInfo: &whatsapp.MediaURLResponse{
			URL:      "https://example/asset",
			MimeType: "audio/ogg",
			FileSize: int64(len(body)),
		},
		mediaBody: body,
	}
	f := newTestFetcher(t, transport, 1024)

	dl, err := f.Fetch(context.Background(), "voice-1", "audio/ogg; codecs=opus")
	require.NoError(t, err)
	assert.Equal(t, "audio", dl.Class)
	assert.True(t, strings.HasSuffix(dl.Path, ".ogg"))
}

func TestFetchWrapsResolveFailureAsRetryable(t *testing.T) {
	transport := &stubTransport{t: t, resolveErr: assert.AnError}
	f := newTestFetcher(t, transport, 1024)

	_, err := f.Fetch(context.Background(), "media-1", "image/jpeg")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMediaDownload, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

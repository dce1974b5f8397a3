package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campuswatch/internal/constants"
	apperrors "campuswatch/internal/errors"
	"campuswatch/internal/metrics"
	"campuswatch/internal/security"
	"campuswatch/pkg/whatsapp"
)

// Fetcher downloads inbound media to the local cache directory. Unsupported
// MIME types are rejected before any network call, and downloads are streamed
// against a hard size ceiling so an oversized asset never lands on disk.
type Fetcher struct {
	client       whatsapp.Client
	cacheDir     string
	maxSizeBytes int64
	logger       *logrus.Logger
}

// Download is the stored result of a completed fetch.
type Download struct {
	Path     string
	MimeType string
	Class    string // image, audio, video, document
	SHA256   string
	Size     int64
}

func NewFetcher(client whatsapp.Client, cacheDir string, maxSizeBytes int64, logger *logrus.Logger) (*Fetcher, error) {
	if maxSizeBytes <= 0 {
		maxSizeBytes = constants.DefaultMaxMediaSizeBytes
	}
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMediaDownload, "failed to create media cache directory")
	}
	return &Fetcher{
		client:       client,
		cacheDir:     cacheDir,
		maxSizeBytes: maxSizeBytes,
		logger:       logger,
	}, nil
}

// Fetch validates, resolves, and downloads one media asset by platform id.
// Voice notes arrive as "audio/ogg; codecs=opus", so MIME parameters are
// stripped before the allow-list check.
func (f *Fetcher) Fetch(ctx context.Context, mediaID, mimeType string) (*Download, error) {
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	class := constants.MediaClassForMime(mimeType)
	if class == "" {
		metrics.IncrementCounter("media_rejected", map[string]string{"reason": "mime_type"}, "Media downloads rejected")
		return nil, apperrors.New(apperrors.ErrCodeMediaRejected,
			fmt.Sprintf("unsupported media type %q", mimeType))
	}

	info, err := f.client.GetMediaURL(ctx, mediaID)
	if err != nil {
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeMediaDownload, "failed to resolve media url")
	}
	if info.FileSize > f.maxSizeBytes {
		metrics.IncrementCounter("media_rejected", map[string]string{"reason": "size"}, "Media downloads rejected")
		return nil, apperrors.New(apperrors.ErrCodeMediaRejected,
			fmt.Sprintf("media size %d exceeds limit %d", info.FileSize, f.maxSizeBytes))
	}

	body, err := f.client.DownloadMedia(ctx, info.URL)
	if err != nil {
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeMediaDownload, "failed to download media")
	}
	defer body.Close()

	return f.store(mediaID, mimeType, class, body)
}

// store streams the body to disk while hashing it and enforcing the size
// ceiling. A breach removes the partial file.
func (f *Fetcher) store(mediaID, mimeType, class string, body io.Reader) (*Download, error) {
	ext := constants.MimeTypeToExtension[mimeType]
	if ext == "" {
		ext = constants.DefaultMediaExtension
	}
	filename := fmt.Sprintf("%s_%d.%s", mediaID, time.Now().Unix(), ext)
	path := filepath.Join(f.cacheDir, filename)

	if err := security.ValidateFilePathWithBase(path, f.cacheDir); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMediaRejected, "media path failed validation")
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMediaDownload, "failed to create media file")
	}

	hasher := sha256.New()
	// One extra byte past the limit distinguishes at-limit from over-limit.
	limited := io.LimitReader(body, f.maxSizeBytes+1)
	written, err := io.Copy(io.MultiWriter(file, hasher), limited)
	closeErr := file.Close()

	if err != nil {
		os.Remove(path)
		return nil, apperrors.WrapRetryable(err, apperrors.ErrCodeMediaDownload, "failed while streaming media")
	}
	if closeErr != nil {
		os.Remove(path)
		return nil, apperrors.Wrap(closeErr, apperrors.ErrCodeMediaDownload, "failed to close media file")
	}
	if written > f.maxSizeBytes {
		os.Remove(path)
		metrics.IncrementCounter("media_rejected", map[string]string{"reason": "size"}, "Media downloads rejected")
		return nil, apperrors.New(apperrors.ErrCodeMediaRejected,
			fmt.Sprintf("media exceeded size limit %d during download", f.maxSizeBytes))
	}

	f.logger.WithFields(logrus.Fields{
		"class": class,
		"size":  written,
	}).Debug("Stored media file")
	metrics.IncrementCounter("media_downloaded", map[string]string{"class": class}, "Media files downloaded")
	metrics.AddToCounter("media_bytes_downloaded", float64(written), nil, "Total media bytes downloaded")

	return &Download{
		Path:     path,
		MimeType: mimeType,
		Class:    class,
		SHA256:   hex.EncodeToString(hasher.Sum(nil)),
		Size:     written,
	}, nil
}

package constants

// AllowedMimeTypes is the allow-list of inbound media MIME types per media
// class. Anything outside this list is rejected before any network download.
var AllowedMimeTypes = map[string][]string{
	"image":    {"image/jpeg", "image/png", "image/webp"},
	"audio":    {"audio/ogg", "audio/mpeg", "audio/mp4"},
	"video":    {"video/mp4", "video/3gpp"},
	"document": {"application/pdf", "text/plain"},
}

// MimeTypeToExtension maps accepted MIME types to their stored file extensions
var MimeTypeToExtension = map[string]string{
	"image/jpeg":      "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
	"audio/ogg":       "ogg",
	"audio/mpeg":      "mp3",
	"audio/mp4":       "m4a",
	"video/mp4":       "mp4",
	"video/3gpp":      "3gp",
	"application/pdf": "pdf",
	"text/plain":      "txt",
}

// DefaultMediaExtension is the fallback extension for accepted media whose
// MIME type carries no mapping (should not happen with the allow-list above).
const DefaultMediaExtension = "bin"

// MediaClassForMime returns the media class ("image", "audio", ...) for a
// MIME type, or "" when the type is not allowed.
func MediaClassForMime(mimeType string) string {
	for class, types := range AllowedMimeTypes {
		for _, t := range types {
			if t == mimeType {
				return class
			}
		}
	}
	return ""
}

package models

import (
	"fmt"
	"strings"
	"time"
)

// MessageType identifies the payload variant of an inbound message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
	MessageTypeLocation MessageType = "location"
	MessageTypeUnknown  MessageType = "unknown"
)

// MediaRef points at platform-hosted binary media referenced by a message.
type MediaRef struct {
	MediaID  string `json:"media_id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// LocationRef carries coordinates shared in a location message.
type LocationRef struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// InboundMessage is one externally-delivered message, normalized into a
// tagged union. The platform message ID doubles as the idempotency key.
// Immutable once constructed at the ingestion boundary.
type InboundMessage struct {
	ID        string
	From      string
	Timestamp time.Time
	Type      MessageType
	Text      string
	Media     *MediaRef
	Location  *LocationRef
}

// IsCommand reports whether the message text is a slash command.
func (m *InboundMessage) IsCommand() bool {
	return m.Type == MessageTypeText && strings.HasPrefix(strings.TrimSpace(m.Text), "/")
}

// HasMedia reports whether the message references downloadable media.
func (m *InboundMessage) HasMedia() bool {
	return m.Media != nil && m.Media.MediaID != ""
}

// FormatCoordinates renders a location reference as a human-readable string.
func (l *LocationRef) FormatCoordinates() string {
	s := fmt.Sprintf("%.6f, %.6f", l.Latitude, l.Longitude)
	if l.Name != "" {
		s = l.Name + " (" + s + ")"
	}
	if l.Address != "" {
		s += " - " + l.Address
	}
	return s
}

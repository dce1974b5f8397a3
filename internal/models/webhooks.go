package models

import (
	"strconv"
	"time"
)

// WebhookPayload is the top-level shape of an inbound platform delivery:
// entry[].changes[].value with messages and contacts arrays.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry is one account-level entry in a delivery.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange wraps one field mutation; only field=="messages" is consumed.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue carries the messages batch plus sender contact info.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         WebhookMetadata  `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts"`
	Messages         []WebhookMessage `json:"messages"`
}

// WebhookMetadata identifies the receiving business number.
type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WebhookContact resolves a wa_id to a profile name.
type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// WebhookMessage is the wire form of one message. Exactly one of the typed
// payload pointers is set, matching the Type discriminator.
type WebhookMessage struct {
	ID        string           `json:"id"`
	From      string           `json:"from"`
	Timestamp string           `json:"timestamp"`
	Type      string           `json:"type"`
	Text      *WebhookText     `json:"text,omitempty"`
	Image     *WebhookMedia    `json:"image,omitempty"`
	Voice     *WebhookMedia    `json:"voice,omitempty"`
	Audio     *WebhookMedia    `json:"audio,omitempty"`
	Video     *WebhookMedia    `json:"video,omitempty"`
	Document  *WebhookMedia    `json:"document,omitempty"`
	Location  *WebhookLocation `json:"location,omitempty"`
}

// WebhookText is the text message body.
type WebhookText struct {
	Body string `json:"body"`
}

// WebhookMedia is the wire form of a media reference.
type WebhookMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// WebhookLocation is the wire form of a shared location.
type WebhookLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ToInbound validates the wire message into the tagged-union InboundMessage.
// Unknown or inconsistent payloads degrade to MessageTypeUnknown rather than
// failing, so one malformed message never aborts a batch.
func (w *WebhookMessage) ToInbound() InboundMessage {
	msg := InboundMessage{
		ID:        w.ID,
		From:      w.From,
		Timestamp: parseEpochSeconds(w.Timestamp),
	}

	switch w.Type {
	case "text":
		msg.Type = MessageTypeText
		if w.Text != nil {
			msg.Text = w.Text.Body
		}
	case "image":
		msg.Type = MessageTypeImage
		msg.Media = mediaRefFrom(w.Image)
	case "voice":
		msg.Type = MessageTypeVoice
		msg.Media = mediaRefFrom(w.Voice)
	case "audio":
		msg.Type = MessageTypeAudio
		msg.Media = mediaRefFrom(w.Audio)
	case "video":
		msg.Type = MessageTypeVideo
		msg.Media = mediaRefFrom(w.Video)
	case "document":
		msg.Type = MessageTypeDocument
		msg.Media = mediaRefFrom(w.Document)
	case "location":
		msg.Type = MessageTypeLocation
		if w.Location != nil {
			msg.Location = &LocationRef{
				Latitude:  w.Location.Latitude,
				Longitude: w.Location.Longitude,
				Name:      w.Location.Name,
				Address:   w.Location.Address,
			}
		}
	default:
		msg.Type = MessageTypeUnknown
		msg.Text = w.Type
	}

	if msg.Media == nil && isMediaType(msg.Type) {
		// Discriminator said media but the payload was absent.
		msg.Type = MessageTypeUnknown
	}

	return msg
}

func mediaRefFrom(m *WebhookMedia) *MediaRef {
	if m == nil || m.ID == "" {
		return nil
	}
	return &MediaRef{
		MediaID:  m.ID,
		MimeType: m.MimeType,
		SHA256:   m.SHA256,
		Caption:  m.Caption,
		Filename: m.Filename,
	}
}

func isMediaType(t MessageType) bool {
	switch t {
	case MessageTypeImage, MessageTypeVoice, MessageTypeAudio, MessageTypeVideo, MessageTypeDocument:
		return true
	}
	return false
}

func parseEpochSeconds(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}

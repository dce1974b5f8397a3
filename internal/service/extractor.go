package service

import (
	"fmt"
	"strings"

	"campuswatch/internal/models"
	"campuswatch/internal/validation"
)

// ExtractedContent is the normalized tuple every message type reduces to.
// Text is always non-empty so downstream classification has input to work
// with even for bare media messages.
type ExtractedContent struct {
	Text       string
	Media      *models.MediaRef
	Location   *models.LocationRef
	SenderName string
}

// ExtractContent normalizes one inbound message. It never fails: absent
// fields degrade to placeholder strings.
func ExtractContent(msg models.InboundMessage, contacts []models.WebhookContact) ExtractedContent {
	out := ExtractedContent{
		Media:      msg.Media,
		Location:   msg.Location,
		SenderName: resolveSenderName(msg.From, contacts),
	}

	switch msg.Type {
	case models.MessageTypeText:
		out.Text = msg.Text
	case models.MessageTypeImage:
		out.Text = mediaText(msg.Media, "Image")
	case models.MessageTypeVoice:
		out.Text = mediaText(msg.Media, "Voice note")
	case models.MessageTypeAudio:
		out.Text = mediaText(msg.Media, "Audio")
	case models.MessageTypeVideo:
		out.Text = mediaText(msg.Media, "Video")
	case models.MessageTypeDocument:
		out.Text = documentText(msg.Media)
	case models.MessageTypeLocation:
		if msg.Location != nil {
			out.Text = "Location shared: " + msg.Location.FormatCoordinates()
		} else {
			out.Text = "Location shared"
		}
	default:
		out.Text = unknownText(msg)
	}

	if strings.TrimSpace(out.Text) == "" {
		out.Text = fmt.Sprintf("[%s message: %s]", msg.Type, msg.ID)
	}
	return out
}

func mediaText(media *models.MediaRef, label string) string {
	if media == nil {
		return fmt.Sprintf("[%s]", label)
	}
	if media.Caption != "" {
		return media.Caption
	}
	return fmt.Sprintf("[%s: %s]", label, media.MediaID)
}

func documentText(media *models.MediaRef) string {
	if media == nil {
		return "[Document]"
	}
	if media.Caption != "" {
		return media.Caption
	}
	if media.Filename != "" {
		return fmt.Sprintf("[Document: %s]", media.Filename)
	}
	return fmt.Sprintf("[Document: %s]", media.MediaID)
}

func unknownText(msg models.InboundMessage) string {
	label := msg.Text
	if label == "" {
		label = string(msg.Type)
	}
	return fmt.Sprintf("[%s message: %s]", label, msg.ID)
}

// resolveSenderName matches the sender's wa_id in the contacts array. Both
// sides are normalized so formatted numbers still match.
func resolveSenderName(from string, contacts []models.WebhookContact) string {
	normalized := validation.NormalizePhoneNumber(from)
	for _, c := range contacts {
		if validation.NormalizePhoneNumber(c.WaID) == normalized && c.Profile.Name != "" {
			return c.Profile.Name
		}
	}
	return fmt.Sprintf("Unknown (%s)", from)
}

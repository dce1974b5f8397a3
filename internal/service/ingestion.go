package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"campuswatch/internal/constants"
	"campuswatch/internal/metrics"
	"campuswatch/internal/models"
	"campuswatch/internal/privacy"
	"campuswatch/internal/tracing"
	"campuswatch/internal/validation"
)

// IngestionService turns webhook deliveries into incident records. One
// delivery may carry several messages; each is processed independently so a
// failure in one never drops the rest of the batch.
type IngestionService struct {
	repo        Repository
	sender      MessageSender
	media       MediaDownloader
	classifier  ActivityClassifier
	router      *CommandRouter
	notifier    *Notifier
	verifyToken string
	logger      *logrus.Logger
}

func NewIngestionService(
	repo Repository,
	sender MessageSender,
	media MediaDownloader,
	classifier ActivityClassifier,
	router *CommandRouter,
	notifier *Notifier,
	verifyToken string,
	logger *logrus.Logger,
) *IngestionService {
	return &IngestionService{
		repo:        repo,
		sender:      sender,
		media:       media,
		classifier:  classifier,
		router:      router,
		notifier:    notifier,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// VerifyToken checks the subscription handshake token in constant time.
func (s *IngestionService) VerifyToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.verifyToken)) == 1
}

// Ingest processes one webhook delivery. It never returns an error for
// per-message failures: those are logged, counted, and the batch continues.
func (s *IngestionService) Ingest(ctx context.Context, payload *models.WebhookPayload) {
	ctx, span := tracing.WithOtelTracing(ctx, "ingestion.ingest")
	defer span.End()

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for i := range change.Value.Messages {
				s.processMessage(ctx, &change.Value.Messages[i], change.Value.Contacts)
			}
		}
	}
}

func (s *IngestionService) processMessage(ctx context.Context, raw *models.WebhookMessage, contacts []models.WebhookContact) {
	ctx, span := tracing.WithOtelTracing(ctx, "ingestion.process_message")
	defer span.End()

	start := time.Now()
	msg := raw.ToInbound()

	logger := s.logger.WithFields(logrus.Fields{
		LogFieldMessageID:   privacy.MaskMessageID(msg.ID),
		LogFieldMessageType: string(msg.Type),
		"from":              privacy.MaskPhoneNumber(msg.From),
	})

	defer func() {
		if rec := recover(); rec != nil {
			logger.WithField("panic", fmt.Sprint(rec)).Error("Message processing panicked")
			metrics.IncrementCounter("ingestion_panics", nil, "Recovered ingestion panics")
		}
		metrics.RecordTimer("message_processing_duration", time.Since(start), nil, "Per-message processing time")
	}()

	if err := validation.ValidateMessageID(msg.ID); err != nil {
		logger.WithError(err).Warn("Dropping message with invalid ID")
		metrics.IncrementCounter("messages_invalid", nil, "Messages dropped for invalid IDs")
		return
	}

	// Platform deliveries are at-least-once; the message ID is the
	// idempotency key.
	first, err := s.repo.MarkMessageProcessed(ctx, msg.ID)
	if err != nil {
		logger.WithError(err).Error("Failed to record message ID")
		metrics.IncrementCounter("messages_failed", map[string]string{"stage": "dedup"}, "Messages failed during processing")
		return
	}
	if !first {
		logger.Debug("Skipping duplicate message delivery")
		metrics.IncrementCounter("messages_duplicate", nil, "Duplicate deliveries skipped")
		return
	}

	user, err := s.resolveUser(ctx, msg.From, contacts)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve sender")
		metrics.IncrementCounter("messages_failed", map[string]string{"stage": "user"}, "Messages failed during processing")
		return
	}
	if user.IsBlocked {
		logger.Info("Ignoring message from blocked sender")
		metrics.IncrementCounter("messages_blocked", nil, "Messages dropped from blocked senders")
		return
	}

	if msg.IsCommand() {
		s.router.Route(ctx, user, msg.Text)
		metrics.IncrementCounter("messages_processed", map[string]string{"kind": "command"}, "Messages processed")
		return
	}

	s.processReport(ctx, logger, user, msg, contacts)
}

// processReport turns a free-form message into a classified incident and
// confirms back to the reporter. Any failure still produces exactly one
// reply: silence is never acceptable.
func (s *IngestionService) processReport(ctx context.Context, logger *logrus.Entry, user *models.WhatsAppUser, msg models.InboundMessage, contacts []models.WebhookContact) {
	content := ExtractContent(msg, contacts)

	var mediaNote string
	if msg.HasMedia() && s.media != nil {
		download, err := s.media.Fetch(ctx, msg.Media.MediaID, msg.Media.MimeType)
		if err != nil {
			logger.WithError(err).Warn("Media download failed, continuing with text only")
			metrics.IncrementCounter("media_fetch_failures", nil, "Media downloads that failed during ingestion")
		} else {
			mediaNote = fmt.Sprintf("\n[Attachment saved: %s, %s]", download.Class, download.MimeType)
			logger.WithFields(logrus.Fields{
				LogFieldFilePath: download.Path,
				LogFieldFileSize: download.Size,
			}).Debug("Stored message attachment")
		}
	}

	categories, err := s.repo.GetCategories(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to load categories")
		s.replyError(ctx, user.PhoneNumber)
		metrics.IncrementCounter("messages_failed", map[string]string{"stage": "categories"}, "Messages failed during processing")
		return
	}

	parsed := s.classifier.Classify(ctx, content.Text, categories)
	if content.Location != nil && parsed.Location == constants.DefaultLocation {
		// A shared-location pin beats the classifier's default.
		pin := content.Location.Name
		if pin == "" {
			pin = content.Location.FormatCoordinates()
		}
		parsed.Location = validation.TruncateString(pin, constants.MaxLocationLength)
	}
	if mediaNote != "" {
		parsed.Notes = validation.TruncateString(parsed.Notes+mediaNote, constants.MaxNotesLength)
	}

	activity := buildActivity(parsed, user.PhoneNumber)
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		logger.WithError(err).Error("Failed to persist activity")
		s.replyError(ctx, user.PhoneNumber)
		metrics.IncrementCounter("messages_failed", map[string]string{"stage": "persist"}, "Messages failed during processing")
		return
	}

	update := &models.ActivityUpdate{
		ID:            uuid.NewString(),
		ActivityID:    activity.ID,
		AuthorID:      user.PhoneNumber,
		Notes:         "Report received",
		StatusContext: activity.Status,
		UpdateType:    models.UpdateTypeCreated,
	}
	if err := s.repo.AppendActivityUpdate(ctx, update); err != nil {
		logger.WithError(err).Warn("Failed to append creation update")
	}

	if result := s.notifier.NotifyConfirmation(ctx, activity); !result.Sent {
		logger.WithField("reason", result.Reason).Warn("Confirmation send failed")
		s.replyError(ctx, user.PhoneNumber)
	}

	logger.WithFields(logrus.Fields{
		LogFieldActivityID: activity.ID,
		LogFieldReference:  activity.ReferenceNumber(),
		LogFieldCategory:   activity.CategoryID,
	}).Info("Incident recorded")
	metrics.IncrementCounter("messages_processed", map[string]string{"kind": "report"}, "Messages processed")
	metrics.IncrementCounter("activities_created", map[string]string{"category": activity.CategoryID}, "Activities created from inbound reports")
}

// resolveUser upserts the sender's identity record, refreshing the display
// name and the free-messaging window counters.
func (s *IngestionService) resolveUser(ctx context.Context, phone string, contacts []models.WebhookContact) (*models.WhatsAppUser, error) {
	normalized := validation.NormalizePhoneNumber(phone)

	user, err := s.repo.GetWhatsAppUser(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user = &models.WhatsAppUser{
			PhoneNumber:     normalized,
			WindowStartTime: time.Now().UTC(),
		}
	}

	for _, c := range contacts {
		if validation.NormalizePhoneNumber(c.WaID) == normalized && c.Profile.Name != "" {
			user.DisplayName = c.Profile.Name
		}
	}

	window := time.Duration(constants.FreeMessagingWindowHours) * time.Hour
	if time.Since(user.WindowStartTime) > window {
		user.WindowStartTime = time.Now().UTC()
		user.MessagesInWindow = 0
	}
	user.MessagesInWindow++

	if err := s.repo.UpsertWhatsAppUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *IngestionService) replyError(ctx context.Context, phone string) {
	const body = "Sorry, something went wrong recording your report. Please try again in a few minutes."
	if _, err := s.sender.SendText(ctx, phone, body); err != nil {
		s.logger.WithError(err).WithField("phone", privacy.MaskPhoneNumber(phone)).Error("Failed to send error reply")
	}
}

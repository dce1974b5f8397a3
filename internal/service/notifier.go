package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"campuswatch/internal/metrics"
	"campuswatch/internal/models"
	"campuswatch/internal/privacy"
	"campuswatch/internal/validation"
)

// NotificationResult is the typed outcome of one send attempt. Dispatch
// methods never return an error: a failed notification must not unwind an
// already-persisted incident, so callers inspect the result instead.
type NotificationResult struct {
	Sent      bool
	MessageID string
	Reason    string
}

func notifyFailure(reason string) NotificationResult {
	return NotificationResult{Sent: false, Reason: reason}
}

// Notifier formats and sends outbound status, assignment, and update
// notifications through the messaging transport.
type Notifier struct {
	sender MessageSender
	logger *logrus.Logger
}

func NewNotifier(sender MessageSender, logger *logrus.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

const notesPreviewLength = 160

// NotifyConfirmation tells the reporter their report was recorded.
func (n *Notifier) NotifyConfirmation(ctx context.Context, activity *models.Activity) NotificationResult {
	body := fmt.Sprintf(
		"Your report has been recorded.\n\nReference: %s\n%s %s\nStatus: %s\nLocation: %s\n\nUse /status %s to check progress.",
		activity.ReferenceNumber(),
		activity.Status.StatusGlyph(), activity.Subcategory,
		activity.Status,
		activity.Location,
		activity.ReferenceNumber(),
	)
	return n.send(ctx, activity.ReporterPhone, body, "confirmation")
}

// NotifyAssignment tells the assignee about new work, including any
// instructions from the assigner.
func (n *Notifier) NotifyAssignment(ctx context.Context, activity *models.Activity, assigneePhone, instructions string) NotificationResult {
	var b strings.Builder
	fmt.Fprintf(&b, "You have been assigned a task.\n\nReference: %s\n%s %s\nLocation: %s\nStatus: %s",
		activity.ReferenceNumber(),
		activity.Status.StatusGlyph(), activity.Subcategory,
		activity.Location,
		activity.Status,
	)
	if instructions != "" {
		fmt.Fprintf(&b, "\n\nInstructions: %s", validation.TruncateString(instructions, notesPreviewLength))
	}
	fmt.Fprintf(&b, "\n\nUse /complete %s <notes> when done.", activity.ReferenceNumber())
	return n.send(ctx, assigneePhone, b.String(), "assignment")
}

// NotifyStatusChange tells the reporter their incident moved state.
func (n *Notifier) NotifyStatusChange(ctx context.Context, activity *models.Activity, oldStatus, newStatus models.ActivityStatus, notes string) NotificationResult {
	var b strings.Builder
	fmt.Fprintf(&b, "Update on your report %s:\n\n%s %s → %s %s",
		activity.ReferenceNumber(),
		oldStatus.StatusGlyph(), oldStatus,
		newStatus.StatusGlyph(), newStatus,
	)
	if notes != "" {
		fmt.Fprintf(&b, "\n\nNotes: %s", validation.TruncateString(notes, notesPreviewLength))
	}
	return n.send(ctx, activity.ReporterPhone, b.String(), "status_change")
}

// NotifyUpdate tells the reporter about a new comment on their incident.
func (n *Notifier) NotifyUpdate(ctx context.Context, activity *models.Activity, notes, updateType string) NotificationResult {
	body := fmt.Sprintf("New update on your report %s (%s):\n\n%s",
		activity.ReferenceNumber(),
		updateType,
		validation.TruncateString(notes, notesPreviewLength),
	)
	return n.send(ctx, activity.ReporterPhone, body, updateType)
}

// send validates the recipient and performs one transport call. Every
// failure path produces a result, never an error.
func (n *Notifier) send(ctx context.Context, toPhone, body, kind string) NotificationResult {
	normalized := validation.NormalizePhoneNumber(toPhone)
	if err := validation.ValidatePhoneNumber(normalized); err != nil {
		n.logger.WithFields(logrus.Fields{
			LogFieldOperation: "notify",
			LogFieldEvent:     kind,
			"phone":           privacy.MaskPhoneNumber(toPhone),
		}).Warn("Skipping notification, invalid recipient phone")
		metrics.IncrementCounter("notifications_failed", map[string]string{"kind": kind, "reason": "invalid_phone"}, "Failed outbound notifications")
		return notifyFailure("invalid recipient phone number")
	}

	resp, err := n.sender.SendText(ctx, normalized, body)
	if err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldOperation: "notify",
			LogFieldEvent:     kind,
			"phone":           privacy.MaskPhoneNumber(normalized),
		}).Error("Failed to send notification")
		metrics.IncrementCounter("notifications_failed", map[string]string{"kind": kind, "reason": "transport"}, "Failed outbound notifications")
		return notifyFailure(err.Error())
	}

	metrics.IncrementCounter("notifications_sent", map[string]string{"kind": kind}, "Outbound notifications sent")
	return NotificationResult{Sent: true, MessageID: resp.MessageID()}
}

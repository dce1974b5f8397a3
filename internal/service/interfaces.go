package service

import (
	"context"

	"campuswatch/internal/media"
	"campuswatch/internal/models"
	"campuswatch/pkg/whatsapp"
)

// Repository is the persistence surface the ingestion pipeline depends on.
// *database.Database satisfies it.
type Repository interface {
	GetCategories(ctx context.Context) ([]models.Category, error)
	GetWhatsAppUser(ctx context.Context, phone string) (*models.WhatsAppUser, error)
	UpsertWhatsAppUser(ctx context.Context, u *models.WhatsAppUser) error
	SetUserVerified(ctx context.Context, phone, linkedUserID string, role models.Role) error
	MarkMessageProcessed(ctx context.Context, messageID string) (bool, error)
	CreateActivity(ctx context.Context, a *models.Activity) error
	GetActivity(ctx context.Context, id string) (*models.Activity, error)
	GetActivityByReference(ctx context.Context, ref string) (*models.Activity, error)
	UpdateActivityStatus(ctx context.Context, id string, status models.ActivityStatus, resolutionNotes string) error
	AssignActivity(ctx context.Context, id, userID, instructions string) error
	ListActivitiesByReporter(ctx context.Context, phone string, limit int) ([]*models.Activity, error)
	ListActivitiesAssignedTo(ctx context.Context, userID string, limit int) ([]*models.Activity, error)
	CountActivitiesByStatus(ctx context.Context) (map[models.ActivityStatus]int, error)
	AppendActivityUpdate(ctx context.Context, u *models.ActivityUpdate) error
}

// MessageSender is the outbound transport surface. whatsapp.Client
// satisfies it.
type MessageSender interface {
	SendText(ctx context.Context, to, text string) (*whatsapp.SendMessageResponse, error)
}

// MediaDownloader fetches inbound media to local storage. *media.Fetcher
// satisfies it.
type MediaDownloader interface {
	Fetch(ctx context.Context, mediaID, mimeType string) (*media.Download, error)
}

// ActivityClassifier turns free-form report text into a sanitized incident
// record. *classifier.Classifier satisfies it.
type ActivityClassifier interface {
	Classify(ctx context.Context, text string, categories []models.Category) models.ParsedActivityData
}

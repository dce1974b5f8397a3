package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"campuswatch/internal/media"
	"campuswatch/internal/models"
	"campuswatch/pkg/whatsapp"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

// fakeRepo is an in-memory Repository with per-call error injection.
type fakeRepo struct {
	mu sync.Mutex

	categories []models.Category
	users      map[string]*models.WhatsAppUser
	activities map[string]*models.Activity
	updates    []*models.ActivityUpdate
	processed  map[string]bool

	failCreate     error
	failCategories error
	failUpsert     error
	failMark       error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		categories: []models.Category{
			{ID: "maintenance", Name: "Maintenance", IsSystem: true},
			{ID: "discipline", Name: "Discipline"},
			{ID: "sports", Name: "Sports"},
			{ID: "general", Name: "General", IsSystem: true},
		},
		users:      make(map[string]*models.WhatsAppUser),
		activities: make(map[string]*models.Activity),
		processed:  make(map[string]bool),
	}
}

func (f *fakeRepo) GetCategories(ctx context.Context) ([]models.Category, error) {
	if f.failCategories != nil {
		return nil, f.failCategories
	}
	return f.categories, nil
}

func (f *fakeRepo) GetWhatsAppUser(ctx context.Context, phone string) (*models.WhatsAppUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[phone]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (f *fakeRepo) UpsertWhatsAppUser(ctx context.Context, u *models.WhatsAppUser) error {
	if f.failUpsert != nil {
		return f.failUpsert
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *u
	f.users[u.PhoneNumber] = &copied
	return nil
}

func (f *fakeRepo) SetUserVerified(ctx context.Context, phone, linkedUserID string, role models.Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[phone]
	if !ok {
		return fmt.Errorf("no such user: %s", phone)
	}
	u.IsVerified = true
	u.LinkedUserID = linkedUserID
	u.Role = role
	return nil
}

func (f *fakeRepo) MarkMessageProcessed(ctx context.Context, messageID string) (bool, error) {
	if f.failMark != nil {
		return false, f.failMark
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.processed[messageID] {
		return false, nil
	}
	f.processed[messageID] = true
	return true, nil
}

func (f *fakeRepo) CreateActivity(ctx context.Context, a *models.Activity) error {
	if f.failCreate != nil {
		return f.failCreate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *a
	f.activities[a.ID] = &copied
	return nil
}

func (f *fakeRepo) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (f *fakeRepo) GetActivityByReference(ctx context.Context, ref string) (*models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.activities {
		if a.ReferenceNumber() == ref {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) UpdateActivityStatus(ctx context.Context, id string, status models.ActivityStatus, resolutionNotes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok {
		return fmt.Errorf("no such activity: %s", id)
	}
	a.Status = status
	a.ResolutionNotes = resolutionNotes
	return nil
}

func (f *fakeRepo) AssignActivity(ctx context.Context, id, userID, instructions string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.activities[id]
	if !ok {
		return fmt.Errorf("no such activity: %s", id)
	}
	a.AssignedToUserID = userID
	a.AssignmentInstructions = instructions
	a.Status = models.StatusInProgress
	return nil
}

func (f *fakeRepo) ListActivitiesByReporter(ctx context.Context, phone string, limit int) ([]*models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Activity
	for _, a := range f.activities {
		if a.ReporterPhone == phone {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListActivitiesAssignedTo(ctx context.Context, userID string, limit int) ([]*models.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Activity
	for _, a := range f.activities {
		if a.AssignedToUserID == userID {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountActivitiesByStatus(ctx context.Context) (map[models.ActivityStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[models.ActivityStatus]int)
	for _, a := range f.activities {
		counts[a.Status]++
	}
	return counts, nil
}

func (f *fakeRepo) AppendActivityUpdate(ctx context.Context, u *models.ActivityUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *u
	f.updates = append(f.updates, &copied)
	return nil
}

func (f *fakeRepo) activityCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.activities)
}

func (f *fakeRepo) firstActivity() *models.Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.activities {
		copied := *a
		return &copied
	}
	return nil
}

// sentMessage records one outbound transport call.
type sentMessage struct {
	To   string
	Text string
}

// fakeSender records sent messages and can fail on demand.
type fakeSender struct {
	mu       sync.Mutex
	sent     []sentMessage
	failSend error
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) (*whatsapp.SendMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil {
		return nil, f.failSend
	}
	f.sent = append(f.sent, sentMessage{To: to, Text: text})
	resp := &whatsapp.SendMessageResponse{}
	resp.Messages = append(resp.Messages, struct {
		ID string `json:"id"`
	}{ID: fmt.Sprintf("wamid.out.%d", len(f.sent))})
	return resp, nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSender) lastMessage() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

// fakeClassifier returns a fixed parse, defaulting to a maintenance hit.
type fakeClassifier struct {
	result models.ParsedActivityData
	calls  int
	lastIn string
}

func (f *fakeClassifier) Classify(ctx context.Context, text string, categories []models.Category) models.ParsedActivityData {
	f.calls++
	f.lastIn = text
	if f.result.CategoryID == "" {
		return models.ParsedActivityData{
			CategoryID:  "maintenance",
			Subcategory: "General repair",
			Location:    "Classroom B",
			Notes:       text,
			Source:      models.SourceAI,
		}
	}
	return f.result
}

// fakeFetcher satisfies MediaDownloader without touching the network.
type fakeFetcher struct {
	download *media.Download
	err      error
	calls    int
}

func (f *fakeFetcher) Fetch(ctx context.Context, mediaID, mimeType string) (*media.Download, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.download != nil {
		return f.download, nil
	}
	return &media.Download{
		Path:     "/tmp/" + mediaID,
		MimeType: mimeType,
		Class:    "image",
		Size:     42,
	}, nil
}

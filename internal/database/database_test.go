package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuswatch/internal/models"
)

func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestCategories_SeededAndUpsert(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	categories, err := db.GetCategories(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, categories, "schema seeds default categories")

	ids := make(map[string]bool)
	for _, c := range categories {
		ids[c.ID] = true
	}
	assert.True(t, ids["maintenance"])
	assert.True(t, ids["general"])

	require.NoError(t, db.UpsertCategory(ctx, &models.Category{ID: "events", Name: "Events"}))
	categories, err = db.GetCategories(ctx)
	require.NoError(t, err)

	found := false
	for _, c := range categories {
		if c.ID == "events" {
			found = true
			assert.Equal(t, "Events", c.Name)
			assert.False(t, c.IsSystem)
		}
	}
	assert.True(t, found)
}

func TestWhatsAppUser_Roundtrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	missing, err := db.GetWhatsAppUser(ctx, "15551234567")
	require.NoError(t, err)
	assert.Nil(t, missing)

	user := &models.WhatsAppUser{
		PhoneNumber:      "15551234567",
		DisplayName:      "Ms. Achieng",
		MessagesInWindow: 3,
		WindowStartTime:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.UpsertWhatsAppUser(ctx, user))

	got, err := db.GetWhatsAppUser(ctx, "15551234567")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "15551234567", got.PhoneNumber)
	assert.Equal(t, "Ms. Achieng", got.DisplayName)
	assert.Equal(t, 3, got.MessagesInWindow)
	assert.False(t, got.IsVerified)

	// upsert refreshes in place
	user.DisplayName = "A. Achieng"
	user.MessagesInWindow = 4
	require.NoError(t, db.UpsertWhatsAppUser(ctx, user))

	got, err = db.GetWhatsAppUser(ctx, "15551234567")
	require.NoError(t, err)
	assert.Equal(t, "A. Achieng", got.DisplayName)
	assert.Equal(t, 4, got.MessagesInWindow)
}

func TestSetUserVerified(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertWhatsAppUser(ctx, &models.WhatsAppUser{
		PhoneNumber:     "15551234567",
		WindowStartTime: time.Now().UTC(),
	}))

	require.NoError(t, db.SetUserVerified(ctx, "15551234567", "user-1", models.RoleMaintainer))

	got, err := db.GetWhatsAppUser(ctx, "15551234567")
	require.NoError(t, err)
	assert.True(t, got.IsVerified)
	assert.Equal(t, "user-1", got.LinkedUserID)
	assert.Equal(t, models.RoleMaintainer, got.Role)

	err = db.SetUserVerified(ctx, "15550000000", "user-2", models.RoleStaff)
	assert.ErrorContains(t, err, "user not found")
}

func TestMarkMessageProcessed_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	first, err := db.MarkMessageProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := db.MarkMessageProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, second)

	other, err := db.MarkMessageProcessed(ctx, "wamid.2")
	require.NoError(t, err)
	assert.True(t, other)
}

func seedDBActivity(t *testing.T, db *Database, id, reporterPhone string) *models.Activity {
	t.Helper()
	a := &models.Activity{
		ID:            id,
		CategoryID:    "maintenance",
		Subcategory:   "Broken window",
		Location:      "Classroom B",
		Notes:         "Broken window in Classroom B",
		Status:        models.StatusOpen,
		ReporterPhone: reporterPhone,
	}
	require.NoError(t, db.CreateActivity(context.Background(), a))
	return a
}

func TestActivity_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := seedDBActivity(t, db, "a1b2c3d4-e5f6-7890-abcd-ef1234567890", "15551234567")

	got, err := db.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.Subcategory, got.Subcategory)
	assert.Equal(t, a.ReporterPhone, got.ReporterPhone)
	assert.Equal(t, models.StatusOpen, got.Status)
	assert.False(t, got.NeedsReview)
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := db.GetActivity(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestActivity_GetByReference(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := seedDBActivity(t, db, "a1b2c3d4-e5f6-7890-abcd-ef1234567890", "15551234567")
	require.Equal(t, "MAI-a1b2c3d4", a.ReferenceNumber())

	got, err := db.GetActivityByReference(ctx, a.ReferenceNumber())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, a.ID, got.ID)

	missing, err := db.GetActivityByReference(ctx, "MAI-00000000")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestActivity_StatusAndAssignment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := seedDBActivity(t, db, "a1b2c3d4-e5f6-7890-abcd-ef1234567890", "15551234567")

	require.NoError(t, db.AssignActivity(ctx, a.ID, "user-7", "Fix before Monday"))
	got, err := db.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-7", got.AssignedToUserID)
	assert.Equal(t, "Fix before Monday", got.AssignmentInstructions)
	assert.Equal(t, models.StatusInProgress, got.Status)

	require.NoError(t, db.UpdateActivityStatus(ctx, a.ID, models.StatusResolved, "Replaced the pane"))
	got, err = db.GetActivity(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
	assert.Equal(t, "Replaced the pane", got.ResolutionNotes)

	assert.ErrorContains(t, db.UpdateActivityStatus(ctx, "nope", models.StatusOpen, ""), "activity not found")
	assert.ErrorContains(t, db.AssignActivity(ctx, "nope", "u", ""), "activity not found")
}

func TestActivity_Listings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a1 := seedDBActivity(t, db, "a1b2c3d4-0000-0000-0000-000000000000", "15551234567")
	seedDBActivity(t, db, "b2c3d4e5-0000-0000-0000-000000000000", "15559876543")
	a3 := seedDBActivity(t, db, "c3d4e5f6-0000-0000-0000-000000000000", "15551234567")

	mine, err := db.ListActivitiesByReporter(ctx, "15551234567", 10)
	require.NoError(t, err)
	require.Len(t, mine, 2)

	require.NoError(t, db.AssignActivity(ctx, a1.ID, "user-7", ""))
	require.NoError(t, db.AssignActivity(ctx, a3.ID, "user-7", ""))
	require.NoError(t, db.UpdateActivityStatus(ctx, a3.ID, models.StatusResolved, "done"))

	open, err := db.ListActivitiesAssignedTo(ctx, "user-7", 10)
	require.NoError(t, err)
	require.Len(t, open, 1, "resolved tasks are excluded")
	assert.Equal(t, a1.ID, open[0].ID)

	counts, err := db.CountActivitiesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusOpen])
	assert.Equal(t, 1, counts[models.StatusInProgress])
	assert.Equal(t, 1, counts[models.StatusResolved])
}

func TestActivityUpdates_AppendOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := seedDBActivity(t, db, "a1b2c3d4-0000-0000-0000-000000000000", "15551234567")

	require.NoError(t, db.AppendActivityUpdate(ctx, &models.ActivityUpdate{
		ID:            "u1",
		ActivityID:    a.ID,
		AuthorID:      "15551234567",
		Notes:         "Report received",
		StatusContext: models.StatusOpen,
		UpdateType:    models.UpdateTypeCreated,
	}))
	require.NoError(t, db.AppendActivityUpdate(ctx, &models.ActivityUpdate{
		ID:            "u2",
		ActivityID:    a.ID,
		AuthorID:      "admin-1",
		Notes:         "Assigned to Mr. Otieno",
		StatusContext: models.StatusInProgress,
		UpdateType:    models.UpdateTypeAssignment,
	}))

	updates, err := db.GetActivityUpdates(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, models.UpdateTypeCreated, updates[0].UpdateType)
	assert.Equal(t, models.UpdateTypeAssignment, updates[1].UpdateType)
	assert.False(t, updates[0].Timestamp.IsZero())
}

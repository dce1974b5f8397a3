package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"campuswatch/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the sqlite-backed repository for categories, WhatsApp users,
// activities, the append-only update log, and the processed-message ledger
// used for inbound idempotency.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("invalid database path")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(initialSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	enc, err := NewEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: enc}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// --- categories ---

func (d *Database) UpsertCategory(ctx context.Context, c *models.Category) error {
	_, err := d.db.ExecContext(ctx, upsertCategoryQuery, c.ID, c.Name, boolToInt(c.IsSystem))
	if err != nil {
		return fmt.Errorf("failed to upsert category: %w", err)
	}
	return nil
}

func (d *Database) GetCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := d.db.QueryContext(ctx, selectCategoriesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		var isSystem int
		if err := rows.Scan(&c.ID, &c.Name, &isSystem); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.IsSystem = isSystem != 0
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// --- whatsapp users ---

func (d *Database) GetWhatsAppUser(ctx context.Context, phone string) (*models.WhatsAppUser, error) {
	hash := d.encryptor.LookupHash(phone)

	var u models.WhatsAppUser
	var phoneEnc string
	var isVerified, isBlocked int
	err := d.db.QueryRowContext(ctx, selectUserByHashQuery, hash).Scan(
		&phoneEnc, &u.DisplayName, &isVerified, &u.LinkedUserID, &u.Role,
		&u.MessagesInWindow, &u.WindowStartTime, &isBlocked, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	decrypted, err := d.encryptor.Decrypt(phoneEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone: %w", err)
	}
	u.PhoneNumber = decrypted
	u.IsVerified = isVerified != 0
	u.IsBlocked = isBlocked != 0
	return &u, nil
}

func (d *Database) UpsertWhatsAppUser(ctx context.Context, u *models.WhatsAppUser) error {
	hash := d.encryptor.LookupHash(u.PhoneNumber)
	phoneEnc, err := d.encryptor.Encrypt(u.PhoneNumber)
	if err != nil {
		return fmt.Errorf("failed to encrypt phone: %w", err)
	}

	_, err = d.db.ExecContext(ctx, upsertUserQuery,
		hash, phoneEnc, u.DisplayName, boolToInt(u.IsVerified), u.LinkedUserID, string(u.Role),
		u.MessagesInWindow, u.WindowStartTime, boolToInt(u.IsBlocked),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (d *Database) SetUserVerified(ctx context.Context, phone, linkedUserID string, role models.Role) error {
	hash := d.encryptor.LookupHash(phone)
	res, err := d.db.ExecContext(ctx, setUserVerifiedQuery, linkedUserID, string(role), hash)
	if err != nil {
		return fmt.Errorf("failed to verify user: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("user not found: %s", phone)
	}
	return nil
}

// --- idempotency ledger ---

// MarkMessageProcessed records a platform message ID in the dedup ledger.
// Returns false when the ID was already present, meaning this delivery is a
// duplicate and must be skipped.
func (d *Database) MarkMessageProcessed(ctx context.Context, messageID string) (bool, error) {
	res, err := d.db.ExecContext(ctx, insertProcessedMessageQuery, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to record message id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// --- activities ---

func (d *Database) CreateActivity(ctx context.Context, a *models.Activity) error {
	phoneEnc, err := d.encryptor.Encrypt(a.ReporterPhone)
	if err != nil {
		return fmt.Errorf("failed to encrypt reporter phone: %w", err)
	}
	phoneHash := ""
	if a.ReporterPhone != "" {
		phoneHash = d.encryptor.LookupHash(a.ReporterPhone)
	}

	_, err = d.db.ExecContext(ctx, insertActivityQuery,
		a.ID, a.CategoryID, a.Subcategory, a.Location, a.Notes, string(a.Status),
		phoneEnc, phoneHash, a.AssignedToUserID,
		a.AssignmentInstructions, a.ResolutionNotes, boolToInt(a.NeedsReview),
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

func (d *Database) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	row := d.db.QueryRowContext(ctx, selectActivityColumns+" WHERE id = ?", id)
	return d.scanActivity(row)
}

// GetActivityByReference resolves a human-facing reference number
// ("MAI-1a2b3c4d") back to an activity by its ID prefix.
func (d *Database) GetActivityByReference(ctx context.Context, ref string) (*models.Activity, error) {
	parts := strings.SplitN(ref, "-", 2)
	idPrefix := parts[len(parts)-1]
	if idPrefix == "" {
		return nil, fmt.Errorf("empty activity reference")
	}

	row := d.db.QueryRowContext(ctx,
		selectActivityColumns+" WHERE replace(id, '-', '') LIKE ? ORDER BY created_at DESC LIMIT 1",
		strings.ToLower(idPrefix)+"%")
	return d.scanActivity(row)
}

func (d *Database) UpdateActivityStatus(ctx context.Context, id string, status models.ActivityStatus, resolutionNotes string) error {
	res, err := d.db.ExecContext(ctx, updateActivityStatusQuery, string(status), resolutionNotes, id)
	if err != nil {
		return fmt.Errorf("failed to update activity status: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("activity not found: %s", id)
	}
	return nil
}

func (d *Database) AssignActivity(ctx context.Context, id, userID, instructions string) error {
	res, err := d.db.ExecContext(ctx, assignActivityQuery, userID, instructions, string(models.StatusInProgress), id)
	if err != nil {
		return fmt.Errorf("failed to assign activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("activity not found: %s", id)
	}
	return nil
}

func (d *Database) ListActivitiesByReporter(ctx context.Context, phone string, limit int) ([]*models.Activity, error) {
	hash := d.encryptor.LookupHash(phone)
	return d.listActivities(ctx,
		selectActivityColumns+" WHERE reporter_phone_hash = ? ORDER BY created_at DESC LIMIT ?", hash, limit)
}

func (d *Database) ListActivitiesAssignedTo(ctx context.Context, userID string, limit int) ([]*models.Activity, error) {
	return d.listActivities(ctx,
		selectActivityColumns+" WHERE assigned_to_user_id = ? AND status != ? ORDER BY created_at DESC LIMIT ?",
		userID, string(models.StatusResolved), limit)
}

func (d *Database) CountActivitiesByStatus(ctx context.Context) (map[models.ActivityStatus]int, error) {
	rows, err := d.db.QueryContext(ctx, countByStatusQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to count activities: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ActivityStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.ActivityStatus(status)] = count
	}
	return counts, rows.Err()
}

// --- update log ---

func (d *Database) AppendActivityUpdate(ctx context.Context, u *models.ActivityUpdate) error {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx, insertActivityUpdateQuery,
		u.ID, u.ActivityID, u.AuthorID, u.Notes, string(u.StatusContext), u.UpdateType, ts)
	if err != nil {
		return fmt.Errorf("failed to append activity update: %w", err)
	}
	return nil
}

func (d *Database) GetActivityUpdates(ctx context.Context, activityID string) ([]models.ActivityUpdate, error) {
	rows, err := d.db.QueryContext(ctx, selectActivityUpdatesQuery, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity updates: %w", err)
	}
	defer rows.Close()

	var updates []models.ActivityUpdate
	for rows.Next() {
		var u models.ActivityUpdate
		var status string
		if err := rows.Scan(&u.ID, &u.ActivityID, &u.AuthorID, &u.Notes, &status, &u.UpdateType, &u.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan activity update: %w", err)
		}
		u.StatusContext = models.ActivityStatus(status)
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (d *Database) scanActivity(row rowScanner) (*models.Activity, error) {
	var a models.Activity
	var status, phoneEnc string
	var needsReview int
	err := row.Scan(
		&a.ID, &a.CategoryID, &a.Subcategory, &a.Location, &a.Notes, &status,
		&phoneEnc, &a.AssignedToUserID, &a.AssignmentInstructions,
		&a.ResolutionNotes, &needsReview, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan activity: %w", err)
	}

	phone, err := d.encryptor.Decrypt(phoneEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt reporter phone: %w", err)
	}
	a.ReporterPhone = phone
	a.Status = models.ActivityStatus(status)
	a.NeedsReview = needsReview != 0
	return &a, nil
}

func (d *Database) listActivities(ctx context.Context, query string, args ...interface{}) ([]*models.Activity, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var out []*models.Activity
	for rows.Next() {
		a, err := d.scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

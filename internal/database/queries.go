package database

// Schema applied at startup. Tables are created idempotently; there is no
// out-of-band migration tooling for this single-schema service.
const initialSchema = `
CREATE TABLE IF NOT EXISTS categories (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	is_system  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS whatsapp_users (
	phone_hash         TEXT PRIMARY KEY,
	phone_enc          TEXT NOT NULL,
	display_name       TEXT NOT NULL DEFAULT '',
	is_verified        INTEGER NOT NULL DEFAULT 0,
	linked_user_id     TEXT NOT NULL DEFAULT '',
	role               TEXT NOT NULL DEFAULT '',
	messages_in_window INTEGER NOT NULL DEFAULT 0,
	window_start_time  TIMESTAMP NOT NULL,
	is_blocked         INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS activities (
	id                      TEXT PRIMARY KEY,
	category_id             TEXT NOT NULL,
	subcategory             TEXT NOT NULL,
	location                TEXT NOT NULL,
	notes                   TEXT NOT NULL,
	status                  TEXT NOT NULL,
	reporter_phone_enc      TEXT NOT NULL DEFAULT '',
	reporter_phone_hash     TEXT NOT NULL DEFAULT '',
	assigned_to_user_id     TEXT NOT NULL DEFAULT '',
	assignment_instructions TEXT NOT NULL DEFAULT '',
	resolution_notes        TEXT NOT NULL DEFAULT '',
	needs_review            INTEGER NOT NULL DEFAULT 0,
	created_at              TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at              TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_activities_reporter ON activities(reporter_phone_hash);
CREATE INDEX IF NOT EXISTS idx_activities_assignee ON activities(assigned_to_user_id);
CREATE INDEX IF NOT EXISTS idx_activities_status   ON activities(status);

CREATE TABLE IF NOT EXISTS activity_updates (
	id             TEXT PRIMARY KEY,
	activity_id    TEXT NOT NULL REFERENCES activities(id),
	author_id      TEXT NOT NULL DEFAULT '',
	notes          TEXT NOT NULL DEFAULT '',
	status_context TEXT NOT NULL DEFAULT '',
	update_type    TEXT NOT NULL,
	timestamp      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_updates_activity ON activity_updates(activity_id);

CREATE TABLE IF NOT EXISTS processed_messages (
	message_id   TEXT PRIMARY KEY,
	processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT OR IGNORE INTO categories (id, name, is_system) VALUES
	('maintenance', 'Maintenance', 1),
	('discipline',  'Discipline',  1),
	('sports',      'Sports',      1),
	('general',     'General',     1);
`

const (
	upsertCategoryQuery = `
		INSERT INTO categories (id, name, is_system) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_system = excluded.is_system
	`

	selectCategoriesQuery = `SELECT id, name, is_system FROM categories ORDER BY name`

	selectUserByHashQuery = `
		SELECT phone_enc, display_name, is_verified, linked_user_id, role,
		       messages_in_window, window_start_time, is_blocked, created_at, updated_at
		FROM whatsapp_users
		WHERE phone_hash = ?
	`

	upsertUserQuery = `
		INSERT INTO whatsapp_users (
			phone_hash, phone_enc, display_name, is_verified, linked_user_id, role,
			messages_in_window, window_start_time, is_blocked, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(phone_hash) DO UPDATE SET
			display_name = excluded.display_name,
			messages_in_window = excluded.messages_in_window,
			window_start_time = excluded.window_start_time,
			updated_at = CURRENT_TIMESTAMP
	`

	setUserVerifiedQuery = `
		UPDATE whatsapp_users
		SET is_verified = 1, linked_user_id = ?, role = ?, updated_at = CURRENT_TIMESTAMP
		WHERE phone_hash = ?
	`

	insertActivityQuery = `
		INSERT INTO activities (
			id, category_id, subcategory, location, notes, status,
			reporter_phone_enc, reporter_phone_hash, assigned_to_user_id,
			assignment_instructions, resolution_notes, needs_review
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectActivityColumns = `
		SELECT id, category_id, subcategory, location, notes, status,
		       reporter_phone_enc, assigned_to_user_id, assignment_instructions,
		       resolution_notes, needs_review, created_at, updated_at
		FROM activities
	`

	updateActivityStatusQuery = `
		UPDATE activities
		SET status = ?, resolution_notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	assignActivityQuery = `
		UPDATE activities
		SET assigned_to_user_id = ?, assignment_instructions = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	insertActivityUpdateQuery = `
		INSERT INTO activity_updates (id, activity_id, author_id, notes, status_context, update_type, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	selectActivityUpdatesQuery = `
		SELECT id, activity_id, author_id, notes, status_context, update_type, timestamp
		FROM activity_updates
		WHERE activity_id = ?
		ORDER BY timestamp ASC
	`

	insertProcessedMessageQuery = `
		INSERT OR IGNORE INTO processed_messages (message_id) VALUES (?)
	`

	countByStatusQuery = `SELECT status, COUNT(*) FROM activities GROUP BY status`
)

package db

import (
	"context"

	"courseflow/internal/types"
)

// schemaStatements is the idempotent DDL applied at startup. Statements use
// IF NOT EXISTS so running them against an existing database is a no-op.
//
// The partial unique index on outbox_jobs is the idempotency guarantee: at most
// one pending or sent row per (user_id, job_key). Failed and cancelled rows are
// excluded so a retry after an admin edit can enqueue the same key again.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT PRIMARY KEY,
		username      TEXT NOT NULL DEFAULT '',
		display_name  TEXT NOT NULL DEFAULT '',
		timezone      TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS enrollments (
		user_id       BIGINT PRIMARY KEY REFERENCES users(id),
		delivery_time TEXT NOT NULL,
		enrolled_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		is_active     BOOLEAN NOT NULL DEFAULT TRUE
	)`,

	`CREATE TABLE IF NOT EXISTS lessons (
		id            BIGSERIAL PRIMARY KEY,
		day_index     INT NOT NULL UNIQUE,
		title         TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		video_url     TEXT NOT NULL DEFAULT '',
		points_viewed INT NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS quests (
		id            BIGSERIAL PRIMARY KEY,
		day_index     INT NOT NULL UNIQUE,
		prompt        TEXT NOT NULL,
		points        INT NOT NULL DEFAULT 0,
		photo_file_id TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS questionnaires (
		id            BIGSERIAL PRIMARY KEY,
		question      TEXT NOT NULL,
		qtype         TEXT NOT NULL DEFAULT 'manual',
		day_index     INT,
		use_in_charts BOOLEAN NOT NULL DEFAULT FALSE,
		points        INT NOT NULL DEFAULT 0,
		created_by    BIGINT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS questionnaire_responses (
		id               BIGSERIAL PRIMARY KEY,
		questionnaire_id BIGINT NOT NULL REFERENCES questionnaires(id),
		user_id          BIGINT NOT NULL,
		answer           TEXT NOT NULL DEFAULT '',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (questionnaire_id, user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS outbox_jobs (
		id         BIGSERIAL PRIMARY KEY,
		user_id    BIGINT NOT NULL,
		job_key    TEXT NOT NULL,
		kind       TEXT NOT NULL,
		run_at     TIMESTAMPTZ NOT NULL,
		payload    JSONB NOT NULL,
		status     TEXT NOT NULL DEFAULT 'pending',
		attempts   INT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS outbox_jobs_user_key_live
		ON outbox_jobs (user_id, job_key)
		WHERE status IN ('pending', 'sent')`,

	`CREATE INDEX IF NOT EXISTS outbox_jobs_due
		ON outbox_jobs (run_at)
		WHERE status = 'pending'`,

	`CREATE TABLE IF NOT EXISTS sent_jobs (
		user_id      BIGINT NOT NULL,
		content_type TEXT NOT NULL,
		day_index    INT NOT NULL,
		for_date     DATE NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, content_type, day_index, for_date)
	)`,

	`CREATE TABLE IF NOT EXISTS deliveries (
		user_id    BIGINT NOT NULL,
		day_index  INT NOT NULL,
		item_type  TEXT NOT NULL,
		sent_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, day_index, item_type)
	)`,

	`CREATE TABLE IF NOT EXISTS progress (
		user_id    BIGINT NOT NULL,
		day_index  INT NOT NULL,
		item_type  TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'sent',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, day_index, item_type)
	)`,

	`CREATE TABLE IF NOT EXISTS habits (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL,
		title       TEXT NOT NULL,
		remind_time TEXT NOT NULL,
		frequency   TEXT NOT NULL DEFAULT 'daily',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS habit_occurrences (
		id           BIGSERIAL PRIMARY KEY,
		habit_id     BIGINT NOT NULL REFERENCES habits(id),
		user_id      BIGINT NOT NULL,
		scheduled_at TIMESTAMPTZ NOT NULL,
		status       TEXT NOT NULL DEFAULT 'planned',
		action_at    TIMESTAMPTZ,
		UNIQUE (habit_id, scheduled_at)
	)`,

	`CREATE TABLE IF NOT EXISTS personal_reminders (
		id          BIGSERIAL PRIMARY KEY,
		user_id     BIGINT NOT NULL,
		text        TEXT NOT NULL,
		start_at    TIMESTAMPTZ NOT NULL,
		remind_time TEXT NOT NULL DEFAULT '',
		is_active   BOOLEAN NOT NULL DEFAULT TRUE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema applies the embedded DDL. Safe to call on every startup.
func EnsureSchema(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
		}
	}
	return nil
}

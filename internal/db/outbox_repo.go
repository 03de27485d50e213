package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"courseflow/internal/types"
)

// maxLastErrorLen bounds the stored failure message so a huge transport error
// cannot bloat the row.
const maxLastErrorLen = 1000

// OutboxRepository provides data access for the outbox_jobs table. The table
// is append-and-update only: rows are never deleted, so the pending/sent
// history doubles as the idempotency record across restarts.
type OutboxRepository struct {
	db DBTX
}

// NewOutboxRepository creates a new OutboxRepository backed by the given
// database connection (pool or transaction).
func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create inserts a new pending job. It reports whether a row was actually
// created: a false return means a pending or sent job with the same
// (user_id, job_key) already exists and the insert was silently skipped.
// On success the job's ID, Status and CreatedAt are populated.
func (r *OutboxRepository) Create(ctx context.Context, job *types.OutboxJob) (bool, error) {
	if err := job.Payload.Validate(); err != nil {
		return false, err
	}
	row := r.db.QueryRow(ctx,
		`INSERT INTO outbox_jobs (user_id, job_key, kind, run_at, payload, status)
		 VALUES ($1, $2, $3, $4, $5, 'pending')
		 ON CONFLICT (user_id, job_key) WHERE status IN ('pending', 'sent') DO NOTHING
		 RETURNING id, created_at`,
		job.UserID,
		job.JobKey,
		string(job.Kind),
		job.RunAt,
		job.Payload,
	)
	if err := row.Scan(&job.ID, &job.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to create outbox job", err)
	}
	job.Status = types.JobPending
	return true, nil
}

// ExistsFor reports whether a pending or sent job with the given key already
// exists for the user.
func (r *OutboxRepository) ExistsFor(ctx context.Context, userID int64, jobKey string) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM outbox_jobs
			WHERE user_id = $1 AND job_key = $2 AND status IN ('pending', 'sent')
		 )`,
		userID, jobKey,
	)
	if err := row.Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check outbox job existence", err)
	}
	return exists, nil
}

// FetchDuePending returns pending jobs whose run_at is at or before now,
// oldest first, capped at limit.
func (r *OutboxRepository) FetchDuePending(ctx context.Context, now time.Time, limit int) ([]*types.OutboxJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, job_key, kind, run_at, payload, status, attempts, last_error, created_at
		 FROM outbox_jobs
		 WHERE status = 'pending' AND run_at <= $1
		 ORDER BY run_at ASC, id ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch due outbox jobs", err)
	}
	defer rows.Close()

	var jobs []*types.OutboxJob
	for rows.Next() {
		job, err := scanOutboxJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate due outbox jobs", err)
	}
	return jobs, nil
}

// MarkSent transitions a job to sent.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE outbox_jobs SET status = 'sent' WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark outbox job sent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "outbox job not found", nil)
	}
	return nil
}

// MarkFailed transitions a job to failed, increments its attempt counter and
// records the (truncated) failure message.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > maxLastErrorLen {
		errMsg = errMsg[:maxLastErrorLen]
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE outbox_jobs
		 SET status = 'failed', attempts = attempts + 1, last_error = $2
		 WHERE id = $1`,
		id, errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark outbox job failed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundJob, "outbox job not found", nil)
	}
	return nil
}

// CancelPendingKinds cancels a user's pending jobs of the given kinds whose
// run_at is at or after the given instant. Used when a user reschedules:
// queued-but-unsent day content must not fire at the old time. Returns the
// number of cancelled jobs.
func (r *OutboxRepository) CancelPendingKinds(ctx context.Context, userID int64, kinds []types.JobKind, after time.Time) (int64, error) {
	if len(kinds) == 0 {
		return 0, nil
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE outbox_jobs
		 SET status = 'cancelled'
		 WHERE user_id = $1 AND status = 'pending' AND kind = ANY($2) AND run_at >= $3`,
		userID, names, after,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel pending outbox jobs", err)
	}
	return tag.RowsAffected(), nil
}

// CancelPendingByKeyPrefix cancels a user's pending jobs whose job_key starts
// with the given prefix and whose run_at is at or after the given instant.
// Habit and personal reminder lifecycles use this to drop queued deliveries
// when the source row is edited or deactivated.
func (r *OutboxRepository) CancelPendingByKeyPrefix(ctx context.Context, userID int64, prefix string, after time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE outbox_jobs
		 SET status = 'cancelled'
		 WHERE user_id = $1 AND status = 'pending' AND job_key LIKE $2 || '%' AND run_at >= $3`,
		userID, prefix, after,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel pending outbox jobs", err)
	}
	return tag.RowsAffected(), nil
}

// ListFailed returns failed jobs, most recent first, capped at limit.
func (r *OutboxRepository) ListFailed(ctx context.Context, limit int) ([]*types.OutboxJob, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, job_key, kind, run_at, payload, status, attempts, last_error, created_at
		 FROM outbox_jobs
		 WHERE status = 'failed'
		 ORDER BY run_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list failed outbox jobs", err)
	}
	defer rows.Close()

	var jobs []*types.OutboxJob
	for rows.Next() {
		job, err := scanOutboxJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate failed outbox jobs", err)
	}
	return jobs, nil
}

func scanOutboxJob(rows pgx.Rows) (*types.OutboxJob, error) {
	var job types.OutboxJob
	var kind, status string
	if err := rows.Scan(
		&job.ID,
		&job.UserID,
		&job.JobKey,
		&kind,
		&job.RunAt,
		&job.Payload,
		&status,
		&job.Attempts,
		&job.LastError,
		&job.CreatedAt,
	); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan outbox job", err)
	}
	job.Kind = types.JobKind(kind)
	job.Status = types.JobStatus(status)
	return &job, nil
}

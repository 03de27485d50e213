package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"courseflow/internal/types"
)

// UserRepository provides data access for the users table.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given database
// connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts the user or refreshes its profile fields.
func (r *UserRepository) Upsert(ctx context.Context, u *types.User) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO users (id, username, display_name, timezone)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name
		 RETURNING created_at`,
		u.ID, u.Username, u.DisplayName, u.Timezone,
	)
	if err := row.Scan(&u.CreatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user", err)
	}
	return nil
}

// GetTimezone returns the user's stored IANA timezone name, empty when the
// user has none configured.
func (r *UserRepository) GetTimezone(ctx context.Context, userID int64) (string, error) {
	var tz string
	row := r.db.QueryRow(ctx,
		`SELECT timezone FROM users WHERE id = $1`, userID)
	err := row.Scan(&tz)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to get user timezone", err)
	}
	return tz, nil
}

// ListUserIDs returns every known user ID. Broadcast planning fans out over
// this set.
func (r *UserRepository) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list user ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate user ids", err)
	}
	return ids, nil
}

// SetTimezone updates the user's timezone.
func (r *UserRepository) SetTimezone(ctx context.Context, userID int64, tz string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET timezone = $2 WHERE id = $1`, userID, tz)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set user timezone", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// EnrollmentRepository provides data access for the enrollments table.
type EnrollmentRepository struct {
	db DBTX
}

// NewEnrollmentRepository creates a new EnrollmentRepository backed by the
// given database connection (pool or transaction).
func NewEnrollmentRepository(db DBTX) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Get returns the user's enrollment, or nil when the user is not enrolled.
func (r *EnrollmentRepository) Get(ctx context.Context, userID int64) (*types.Enrollment, error) {
	var e types.Enrollment
	row := r.db.QueryRow(ctx,
		`SELECT user_id, delivery_time, enrolled_at, is_active
		 FROM enrollments WHERE user_id = $1`,
		userID,
	)
	err := row.Scan(&e.UserID, &e.DeliveryTime, &e.EnrolledAt, &e.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get enrollment", err)
	}
	return &e, nil
}

// ListActive returns all active enrollments, oldest first. The daily pass
// iterates this set.
func (r *EnrollmentRepository) ListActive(ctx context.Context) ([]*types.Enrollment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, delivery_time, enrolled_at, is_active
		 FROM enrollments WHERE is_active ORDER BY enrolled_at ASC, user_id ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active enrollments", err)
	}
	defer rows.Close()

	var out []*types.Enrollment
	for rows.Next() {
		var e types.Enrollment
		if err := rows.Scan(&e.UserID, &e.DeliveryTime, &e.EnrolledAt, &e.IsActive); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan enrollment", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate enrollments", err)
	}
	return out, nil
}

// Upsert enrolls the user or updates the delivery time of an existing
// enrollment, reactivating it. EnrolledAt is preserved on conflict so the day
// index anchor never moves.
func (r *EnrollmentRepository) Upsert(ctx context.Context, e *types.Enrollment) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO enrollments (user_id, delivery_time, is_active)
		 VALUES ($1, $2, TRUE)
		 ON CONFLICT (user_id) DO UPDATE SET
			delivery_time = EXCLUDED.delivery_time,
			is_active = TRUE
		 RETURNING enrolled_at`,
		e.UserID, e.DeliveryTime,
	)
	if err := row.Scan(&e.EnrolledAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert enrollment", err)
	}
	e.IsActive = true
	return nil
}

// Deactivate pauses the user's enrollment.
func (r *EnrollmentRepository) Deactivate(ctx context.Context, userID int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE enrollments SET is_active = FALSE WHERE user_id = $1`, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate enrollment", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundEnrollment, "enrollment not found", nil)
	}
	return nil
}

// ProgressRepository tracks per-(user, day, item) progress: delivered, then
// viewed (lessons) or answered (quests). The backlog reconstruction compares
// this against the deliveries markers.
type ProgressRepository struct {
	db DBTX
}

// NewProgressRepository creates a new ProgressRepository backed by the given
// database connection (pool or transaction).
func NewProgressRepository(db DBTX) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// MarkSent records that the item reached the user. Never downgrades an
// existing viewed/answered row.
func (r *ProgressRepository) MarkSent(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO progress (user_id, day_index, item_type, status)
		 VALUES ($1, $2, $3, 'sent')
		 ON CONFLICT (user_id, day_index, item_type) DO NOTHING`,
		userID, dayIndex, string(itemType),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark progress sent", err)
	}
	return nil
}

// MarkCompleted upgrades the item to its terminal status: 'viewed' for
// lessons, 'answered' for quests.
func (r *ProgressRepository) MarkCompleted(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType) error {
	status := "viewed"
	if itemType == types.ItemQuest {
		status = "answered"
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO progress (user_id, day_index, item_type, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, day_index, item_type) DO UPDATE SET
			status = EXCLUDED.status, updated_at = NOW()`,
		userID, dayIndex, string(itemType), status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark progress completed", err)
	}
	return nil
}

// HasViewedLesson reports whether the user has viewed the day's lesson.
func (r *ProgressRepository) HasViewedLesson(ctx context.Context, userID int64, dayIndex int) (bool, error) {
	return r.hasStatus(ctx, userID, dayIndex, types.ItemLesson, "viewed")
}

// HasQuestAnswer reports whether the user has answered the day's quest.
func (r *ProgressRepository) HasQuestAnswer(ctx context.Context, userID int64, dayIndex int) (bool, error) {
	return r.hasStatus(ctx, userID, dayIndex, types.ItemQuest, "answered")
}

func (r *ProgressRepository) hasStatus(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType, status string) (bool, error) {
	var exists bool
	row := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM progress
			WHERE user_id = $1 AND day_index = $2 AND item_type = $3 AND status = $4
		 )`,
		userID, dayIndex, string(itemType), status,
	)
	if err := row.Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check progress", err)
	}
	return exists, nil
}

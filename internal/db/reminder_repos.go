package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"courseflow/internal/types"
)

// HabitRepository provides data access for the habits table.
type HabitRepository struct {
	db DBTX
}

// NewHabitRepository creates a new HabitRepository backed by the given
// database connection (pool or transaction).
func NewHabitRepository(db DBTX) *HabitRepository {
	return &HabitRepository{db: db}
}

// GetByID returns a habit. Returns a not-found error when the habit does not
// exist.
func (r *HabitRepository) GetByID(ctx context.Context, id int64) (*types.Habit, error) {
	var h types.Habit
	var freq string
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, title, remind_time, frequency, is_active, created_at, updated_at
		 FROM habits WHERE id = $1`,
		id,
	)
	err := row.Scan(&h.ID, &h.UserID, &h.Title, &h.RemindTime, &freq,
		&h.IsActive, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundHabit, "habit not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get habit", err)
	}
	h.Frequency = types.HabitFrequency(freq)
	return &h, nil
}

// ListActive returns all active habits across users. The planning pass
// iterates this set.
func (r *HabitRepository) ListActive(ctx context.Context) ([]*types.Habit, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, title, remind_time, frequency, is_active, created_at, updated_at
		 FROM habits WHERE is_active ORDER BY id ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list active habits", err)
	}
	defer rows.Close()

	var out []*types.Habit
	for rows.Next() {
		var h types.Habit
		var freq string
		if err := rows.Scan(&h.ID, &h.UserID, &h.Title, &h.RemindTime, &freq,
			&h.IsActive, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan habit", err)
		}
		h.Frequency = types.HabitFrequency(freq)
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate habits", err)
	}
	return out, nil
}

// Create inserts a habit and populates its ID and timestamps.
func (r *HabitRepository) Create(ctx context.Context, h *types.Habit) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO habits (user_id, title, remind_time, frequency)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, is_active, created_at, updated_at`,
		h.UserID, h.Title, h.RemindTime, string(h.Frequency),
	)
	if err := row.Scan(&h.ID, &h.IsActive, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create habit", err)
	}
	return nil
}

// Update rewrites the habit's title, remind time and frequency.
func (r *HabitRepository) Update(ctx context.Context, h *types.Habit) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE habits
		 SET title = $2, remind_time = $3, frequency = $4, updated_at = NOW()
		 WHERE id = $1`,
		h.ID, h.Title, h.RemindTime, string(h.Frequency),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update habit", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundHabit, "habit not found", nil)
	}
	return nil
}

// Deactivate turns the habit off.
func (r *HabitRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE habits SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate habit", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundHabit, "habit not found", nil)
	}
	return nil
}

// HabitOccurrenceRepository provides data access for habit_occurrences, the
// authoritative per-instance record done/skip actions resolve against.
type HabitOccurrenceRepository struct {
	db DBTX
}

// NewHabitOccurrenceRepository creates a new HabitOccurrenceRepository backed
// by the given database connection (pool or transaction).
func NewHabitOccurrenceRepository(db DBTX) *HabitOccurrenceRepository {
	return &HabitOccurrenceRepository{db: db}
}

// EnsurePlanned inserts a planned occurrence for (habitID, scheduledAt) if
// none exists and returns the occurrence ID either way.
func (r *HabitOccurrenceRepository) EnsurePlanned(ctx context.Context, habitID, userID int64, scheduledAt time.Time) (int64, error) {
	var id int64
	row := r.db.QueryRow(ctx,
		`INSERT INTO habit_occurrences (habit_id, user_id, scheduled_at, status)
		 VALUES ($1, $2, $3, 'planned')
		 ON CONFLICT (habit_id, scheduled_at) DO NOTHING
		 RETURNING id`,
		habitID, userID, scheduledAt,
	)
	err := row.Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to plan habit occurrence", err)
	}

	// Already planned on a previous pass; look the row up.
	row = r.db.QueryRow(ctx,
		`SELECT id FROM habit_occurrences WHERE habit_id = $1 AND scheduled_at = $2`,
		habitID, scheduledAt,
	)
	if err := row.Scan(&id); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to find habit occurrence", err)
	}
	return id, nil
}

// MarkSent transitions a planned occurrence to sent. A missing or already
// resolved occurrence is not an error.
func (r *HabitOccurrenceRepository) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE habit_occurrences SET status = 'sent' WHERE id = $1 AND status = 'planned'`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark habit occurrence sent", err)
	}
	return nil
}

// Resolve records the user's done/skipped action on an occurrence.
func (r *HabitOccurrenceRepository) Resolve(ctx context.Context, id int64, status types.OccurrenceStatus, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE habit_occurrences SET status = $2, action_at = $3 WHERE id = $1`,
		id, string(status), at,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to resolve habit occurrence", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundHabit, "habit occurrence not found", nil)
	}
	return nil
}

// CancelFutureForHabit cancels planned occurrences after the given instant.
// Called when a habit is edited or deactivated so the next planning pass can
// rebuild from the new definition.
func (r *HabitOccurrenceRepository) CancelFutureForHabit(ctx context.Context, habitID int64, after time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE habit_occurrences
		 SET status = 'cancelled'
		 WHERE habit_id = $1 AND status = 'planned' AND scheduled_at > $2`,
		habitID, after,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel habit occurrences", err)
	}
	return tag.RowsAffected(), nil
}

// PersonalReminderRepository provides data access for personal_reminders,
// the one-shot reminder rows.
type PersonalReminderRepository struct {
	db DBTX
}

// NewPersonalReminderRepository creates a new PersonalReminderRepository
// backed by the given database connection (pool or transaction).
func NewPersonalReminderRepository(db DBTX) *PersonalReminderRepository {
	return &PersonalReminderRepository{db: db}
}

// GetByID returns a reminder. Returns a not-found error when the reminder
// does not exist.
func (r *PersonalReminderRepository) GetByID(ctx context.Context, id int64) (*types.PersonalReminder, error) {
	var p types.PersonalReminder
	row := r.db.QueryRow(ctx,
		`SELECT id, user_id, text, start_at, remind_time, is_active, created_at, updated_at
		 FROM personal_reminders WHERE id = $1`,
		id,
	)
	err := row.Scan(&p.ID, &p.UserID, &p.Text, &p.StartAt, &p.RemindTime,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundReminder, "personal reminder not found", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get personal reminder", err)
	}
	return &p, nil
}

// ListActive returns all active reminders.
func (r *PersonalReminderRepository) ListActive(ctx context.Context) ([]*types.PersonalReminder, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, text, start_at, remind_time, is_active, created_at, updated_at
		 FROM personal_reminders WHERE is_active ORDER BY id ASC`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list personal reminders", err)
	}
	defer rows.Close()

	var out []*types.PersonalReminder
	for rows.Next() {
		var p types.PersonalReminder
		if err := rows.Scan(&p.ID, &p.UserID, &p.Text, &p.StartAt, &p.RemindTime,
			&p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan personal reminder", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate personal reminders", err)
	}
	return out, nil
}

// Create inserts a reminder and populates its ID and timestamps.
func (r *PersonalReminderRepository) Create(ctx context.Context, p *types.PersonalReminder) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO personal_reminders (user_id, text, start_at, remind_time)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, is_active, created_at, updated_at`,
		p.UserID, p.Text, p.StartAt, p.RemindTime,
	)
	if err := row.Scan(&p.ID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create personal reminder", err)
	}
	return nil
}

// Update rewrites the reminder's text and start instant, bumping updated_at.
func (r *PersonalReminderRepository) Update(ctx context.Context, p *types.PersonalReminder) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE personal_reminders
		 SET text = $2, start_at = $3, remind_time = $4, updated_at = NOW()
		 WHERE id = $1`,
		p.ID, p.Text, p.StartAt, p.RemindTime,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update personal reminder", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReminder, "personal reminder not found", nil)
	}
	return nil
}

// Deactivate turns the reminder off.
func (r *PersonalReminderRepository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE personal_reminders SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to deactivate personal reminder", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReminder, "personal reminder not found", nil)
	}
	return nil
}

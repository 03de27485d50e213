// Package scheduler implements the planning side of the delivery pipeline:
// timezone-aware computation of when each piece of content should reach each
// user, written durably into the outbox ahead of time. Schedulers only ever
// insert or cancel jobs; sending is the outbox worker's business.
//
// All methods take the current instant explicitly so planning is
// deterministic under test and a single tick uses one consistent "now"
// across every user it touches.
package scheduler

import (
	"context"
	"time"

	"courseflow/internal/types"
)

// Config carries the delivery-window knobs shared by the schedulers.
type Config struct {
	// DefaultTimezone is the IANA zone used for users without one configured
	// or with an unresolvable one.
	DefaultTimezone string

	// DeliveryGrace is how far past the delivery window today's lesson and
	// quest may still be auto-sent. Beyond it the content is skipped and left
	// to the backlog reminder.
	DeliveryGrace time.Duration

	// RemindAfter is the delay from the delivery time to the daily backlog
	// reminder.
	RemindAfter time.Duration

	// QuietHoursStart/End bound the local window ("HH:MM") in which reminders
	// must not fire. The window may cross midnight.
	QuietHoursStart string
	QuietHoursEnd   string

	// FallbackTime is the local "HH:MM" a quiet-hours reminder is moved to.
	FallbackTime string

	// HabitHorizonDays is how many days ahead habit occurrences are planned,
	// in addition to today.
	HabitHorizonDays int
}

// OutboxStore is the job store the schedulers write to. Create must be
// atomic insert-or-ignore on (user_id, job_key) over live (pending or sent)
// jobs and report whether a row was inserted.
type OutboxStore interface {
	Create(ctx context.Context, job *types.OutboxJob) (bool, error)
	CancelPendingKinds(ctx context.Context, userID int64, kinds []types.JobKind, after time.Time) (int64, error)
	CancelPendingByKeyPrefix(ctx context.Context, userID int64, prefix string, after time.Time) (int64, error)
}

// SentLedger is the per-day delivery ledger consulted before planning day
// content, so a key that rotated (content edit) cannot cause a second send
// on the same local date.
type SentLedger interface {
	WasSent(ctx context.Context, userID int64, contentType types.ContentType, dayIndex int, forDate string) (bool, error)
}

// EnrollmentStore lists the users the daily pass plans for.
type EnrollmentStore interface {
	Get(ctx context.Context, userID int64) (*types.Enrollment, error)
	ListActive(ctx context.Context) ([]*types.Enrollment, error)
}

// UserStore resolves timezones and enumerates broadcast targets.
type UserStore interface {
	GetTimezone(ctx context.Context, userID int64) (string, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// LessonStore fetches the day's lesson. A nil lesson means the day has none.
type LessonStore interface {
	GetByDay(ctx context.Context, dayIndex int) (*types.Lesson, error)
}

// QuestStore fetches the day's quest. A nil quest means the day has none.
type QuestStore interface {
	GetByDay(ctx context.Context, dayIndex int) (*types.Quest, error)
}

// QuestionnaireStore fetches the questionnaires bound to a day.
type QuestionnaireStore interface {
	ListForDay(ctx context.Context, dayIndex int) ([]*types.Questionnaire, error)
}

// HabitStore lists the active habits the habit pass plans for.
type HabitStore interface {
	ListActive(ctx context.Context) ([]*types.Habit, error)
}

// OccurrenceStore persists planned habit instances.
type OccurrenceStore interface {
	EnsurePlanned(ctx context.Context, habitID, userID int64, scheduledAt time.Time) (int64, error)
	CancelFutureForHabit(ctx context.Context, habitID int64, after time.Time) (int64, error)
}

// PersonalReminderStore lists the active one-shot reminders.
type PersonalReminderStore interface {
	ListActive(ctx context.Context) ([]*types.PersonalReminder, error)
}

package types

import (
	"fmt"
	"time"
)

// User is the messaging-platform identity a delivery targets. The ID is the
// chat ID on the transport side.
type User struct {
	ID          int64     `json:"id" db:"id"`
	Username    string    `json:"username,omitempty" db:"username"`
	DisplayName string    `json:"display_name,omitempty" db:"display_name"`
	Timezone    string    `json:"timezone,omitempty" db:"timezone"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Enrollment binds a user to the course. DeliveryTime is a local "HH:MM" wall
// clock in the user's timezone; the day index for any local date is derived
// from the local date of EnrolledAt and is never recomputed retroactively when
// delivery time or timezone changes.
type Enrollment struct {
	UserID       int64     `json:"user_id" db:"user_id"`
	DeliveryTime string    `json:"delivery_time" db:"delivery_time"`
	EnrolledAt   time.Time `json:"enrolled_at" db:"enrolled_at"`
	IsActive     bool      `json:"is_active" db:"is_active"`
}

// Lesson is the day's lecture content, unique per 1-based day index.
// UpdatedAt doubles as the content version: job keys embed its unix value so
// an admin edit invalidates queued-but-unsent plans without manual cleanup.
type Lesson struct {
	ID           int64     `json:"id" db:"id"`
	DayIndex     int       `json:"day_index" db:"day_index"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	VideoURL     string    `json:"video_url,omitempty" db:"video_url"`
	PointsViewed int       `json:"points_viewed" db:"points_viewed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Quest is the day's assignment, unique per day index.
type Quest struct {
	ID          int64     `json:"id" db:"id"`
	DayIndex    int       `json:"day_index" db:"day_index"`
	Prompt      string    `json:"prompt" db:"prompt"`
	Points      int       `json:"points" db:"points"`
	PhotoFileID string    `json:"photo_file_id,omitempty" db:"photo_file_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Questionnaire is a survey question, either bound to a day index or global.
type Questionnaire struct {
	ID          int64             `json:"id" db:"id"`
	Question    string            `json:"question" db:"question"`
	Type        QuestionnaireType `json:"qtype" db:"qtype"`
	DayIndex    *int              `json:"day_index,omitempty" db:"day_index"`
	UseInCharts bool              `json:"use_in_charts" db:"use_in_charts"`
	Points      int               `json:"points" db:"points"`
	CreatedBy   *int64            `json:"created_by,omitempty" db:"created_by"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// ContentVersion returns the integer version stamp for versioned content:
// the unix seconds of updatedAt, falling back to createdAt, 0 when neither
// is set.
func ContentVersion(createdAt, updatedAt time.Time) int64 {
	if !updatedAt.IsZero() {
		return updatedAt.Unix()
	}
	if !createdAt.IsZero() {
		return createdAt.Unix()
	}
	return 0
}

// QuestionnaireContentType returns the namespaced sent_jobs content type for
// a day-bound questionnaire.
func QuestionnaireContentType(questionnaireID int64) ContentType {
	return ContentType(fmt.Sprintf("questionnaire:%d", questionnaireID))
}

// OutboxJob is a single durable delivery: a target user, a UTC run time, a
// self-contained payload, and status/attempt bookkeeping. Jobs are created by
// the schedulers and mutated only by the worker; rows are never deleted so the
// idempotency history survives restarts.
//
// Invariant: at most one job per (UserID, JobKey) may exist in pending or sent
// status, enforced by a partial unique index with insert-or-ignore semantics.
type OutboxJob struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	JobKey    string    `json:"job_key" db:"job_key"`
	Kind      JobKind   `json:"kind" db:"kind"`
	RunAt     time.Time `json:"run_at" db:"run_at"`
	Payload   Payload   `json:"payload" db:"payload"`
	Status    JobStatus `json:"status" db:"status"`
	Attempts  int       `json:"attempts" db:"attempts"`
	LastError string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SentJobEntry records that a logical delivery happened for a user on a local
// calendar day. The tuple itself is the primary key, which makes marking
// naturally idempotent.
type SentJobEntry struct {
	UserID      int64       `json:"user_id" db:"user_id"`
	ContentType ContentType `json:"content_type" db:"content_type"`
	DayIndex    int         `json:"day_index" db:"day_index"`
	ForDate     string      `json:"for_date" db:"for_date"` // local calendar date, "2006-01-02"
}

// Habit is a recurring user reminder with a local wall-clock time and a
// cadence predicate.
type Habit struct {
	ID         int64          `json:"id" db:"id"`
	UserID     int64          `json:"user_id" db:"user_id"`
	Title      string         `json:"title" db:"title"`
	RemindTime string         `json:"remind_time" db:"remind_time"` // "HH:MM" local
	Frequency  HabitFrequency `json:"frequency" db:"frequency"`
	IsActive   bool           `json:"is_active" db:"is_active"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"`
}

// HabitOccurrence is one planned instance of a habit at a concrete UTC
// instant, unique per (HabitID, ScheduledAt). It is the authoritative record
// the done/skip actions resolve against.
type HabitOccurrence struct {
	ID          int64            `json:"id" db:"id"`
	HabitID     int64            `json:"habit_id" db:"habit_id"`
	UserID      int64            `json:"user_id" db:"user_id"`
	ScheduledAt time.Time        `json:"scheduled_at" db:"scheduled_at"`
	Status      OccurrenceStatus `json:"status" db:"status"`
	ActionAt    *time.Time       `json:"action_at,omitempty" db:"action_at"`
}

// PersonalReminder is a one-shot reminder at an absolute UTC instant.
// RemindTime is the local wall clock kept for display only; a missed one-shot
// is simply not sent (no catch-up).
type PersonalReminder struct {
	ID         int64     `json:"id" db:"id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	Text       string    `json:"text" db:"text"`
	StartAt    time.Time `json:"start_at" db:"start_at"`
	RemindTime string    `json:"remind_time" db:"remind_time"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Backlog is the result of reconstructing a user's unfinished items across
// all days up to a day index. The First* pointers identify the oldest
// unresolved day per category for navigation; nil means nothing is pending
// in that category.
type Backlog struct {
	Pending []string `json:"pending"`

	FirstLessonDay        *int   `json:"first_lesson_day,omitempty"`
	FirstQuestDay         *int   `json:"first_quest_day,omitempty"`
	FirstQuestionnaireDay *int   `json:"first_questionnaire_day,omitempty"`
	FirstQuestionnaireID  *int64 `json:"first_questionnaire_id,omitempty"`
}

// Empty reports whether the backlog has no unfinished items.
func (b *Backlog) Empty() bool {
	return len(b.Pending) == 0
}

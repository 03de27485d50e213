package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Payload is the tagged union carried by an outbox job. Exactly one arm must
// be non-nil and it must agree with Kind; the worker's dispatch switches on
// Kind and never inspects more than the matching arm.
//
// Day-content payloads embed the rendered fields by value so the worker never
// re-fetches content at delivery time: an admin edit after planning produces a
// new job under a new version key instead of mutating what an already-queued
// job will send.
type Payload struct {
	Kind   JobKind `json:"kind"`
	JobKey string  `json:"job_key"`

	DayLesson     *DayLessonPayload     `json:"day_lesson,omitempty"`
	DayQuest      *DayQuestPayload      `json:"day_quest,omitempty"`
	DailyReminder *DailyReminderPayload `json:"daily_reminder,omitempty"`
	Broadcast     *BroadcastPayload     `json:"broadcast,omitempty"`
	Habit         *HabitReminderPayload `json:"habit,omitempty"`
	Personal      *PersonalPayload      `json:"personal,omitempty"`
}

// DayLessonPayload carries a lesson delivery. ForDate is the user-local
// calendar date ("2006-01-02") the delivery was planned for; the worker uses
// it for the sent_jobs ledger entry.
type DayLessonPayload struct {
	DayIndex     int    `json:"day_index"`
	ForDate      string `json:"for_date,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	VideoURL     string `json:"video_url,omitempty"`
	PointsViewed int    `json:"points_viewed"`
}

// DayQuestPayload carries a quest delivery.
type DayQuestPayload struct {
	DayIndex    int    `json:"day_index"`
	ForDate     string `json:"for_date,omitempty"`
	Prompt      string `json:"prompt"`
	Points      int    `json:"points"`
	PhotoFileID string `json:"photo_file_id,omitempty"`
}

// DailyReminderPayload triggers backlog reconstruction at delivery time; the
// backlog is computed when the job runs, not when it is planned, so items the
// user finished in between silently resolve the reminder.
type DailyReminderPayload struct {
	DayIndex int    `json:"day_index"`
	ForDate  string `json:"for_date"`
}

// BroadcastPayload carries a questionnaire send. The question text is fetched
// at delivery time; a questionnaire deleted after planning degrades to a
// no-op send. DayIndex/ForDate are zero for admin-initiated broadcasts, which
// are not ledgered per day.
type BroadcastPayload struct {
	QuestionnaireID int64  `json:"questionnaire_id"`
	DayIndex        int    `json:"day_index,omitempty"`
	ForDate         string `json:"for_date,omitempty"`
	Optional        bool   `json:"optional,omitempty"`
}

// HabitReminderPayload carries a habit ping tied to a planned occurrence.
type HabitReminderPayload struct {
	HabitID      int64  `json:"habit_id"`
	OccurrenceID int64  `json:"occurrence_id"`
	Title        string `json:"title"`
	ForLocalDate string `json:"for_local_date,omitempty"`
	ForLocalTime string `json:"for_local_time,omitempty"`
}

// PersonalPayload carries a one-shot personal reminder.
type PersonalPayload struct {
	ReminderID   int64  `json:"reminder_id"`
	Text         string `json:"text"`
	ForLocalDate string `json:"for_local_date,omitempty"`
	ForLocalTime string `json:"for_local_time,omitempty"`
}

// Compile-time assertions: Payload round-trips through a JSONB column.
var (
	_ sql.Scanner   = (*Payload)(nil)
	_ driver.Valuer = Payload{}
)

// Scan implements sql.Scanner for reading the payload JSONB column.
func (p *Payload) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("payload: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, p)
}

// Value implements driver.Valuer for writing the payload JSONB column.
func (p Payload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Validate checks that the union is well formed: a known kind, a non-empty
// job key, and the arm matching Kind populated. Unknown kinds are not an
// error at read time (the worker no-ops them); Validate is for write paths.
func (p *Payload) Validate() error {
	if p.JobKey == "" {
		return NewAppError(ErrCodeValidationMissingField, "payload job_key is required", nil)
	}
	var arm any
	switch p.Kind {
	case KindDayLesson:
		arm = p.DayLesson
	case KindDayQuest:
		arm = p.DayQuest
	case KindDailyReminder:
		arm = p.DailyReminder
	case KindBroadcast:
		arm = p.Broadcast
	case KindHabitReminder:
		arm = p.Habit
	case KindPersonal:
		arm = p.Personal
	default:
		return NewAppError(ErrCodeValidationInvalidKind, fmt.Sprintf("unknown job kind %q", p.Kind), nil)
	}
	if arm == nil || isNilPointer(arm) {
		return NewAppError(ErrCodeValidationMissingField, fmt.Sprintf("payload arm for kind %q is not set", p.Kind), nil)
	}
	return nil
}

// isNilPointer reports whether the any-boxed arm is a typed nil pointer.
func isNilPointer(v any) bool {
	switch p := v.(type) {
	case *DayLessonPayload:
		return p == nil
	case *DayQuestPayload:
		return p == nil
	case *DailyReminderPayload:
		return p == nil
	case *BroadcastPayload:
		return p == nil
	case *HabitReminderPayload:
		return p == nil
	case *PersonalPayload:
		return p == nil
	}
	return false
}

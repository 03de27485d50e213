package types

// JobStatus represents the lifecycle state of an outbox job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSent      JobStatus = "sent"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// JobKind discriminates outbox payloads. The worker dispatches on this value;
// unknown kinds are acknowledged without action so a forward-incompatible job
// can never wedge the queue.
type JobKind string

const (
	KindDayLesson     JobKind = "day_lesson"
	KindDayQuest      JobKind = "day_quest"
	KindDailyReminder JobKind = "daily_reminder"
	KindBroadcast     JobKind = "questionnaire_broadcast"
	KindHabitReminder JobKind = "habit_reminder"
	KindPersonal      JobKind = "personal_reminder"
)

// ContentType labels entries in the sent_jobs ledger. Day questionnaires use
// a namespaced type ("questionnaire:<id>") produced by QuestionnaireContentType
// so several questionnaires on the same day never collide.
type ContentType string

const (
	ContentLesson        ContentType = "lesson"
	ContentQuest         ContentType = "quest"
	ContentDailyReminder ContentType = "daily_reminder"
)

// ItemType labels entries in the deliveries marker table.
type ItemType string

const (
	ItemLesson ItemType = "lesson"
	ItemQuest  ItemType = "quest"
)

// HabitFrequency selects which local calendar days a habit reminder fires on.
type HabitFrequency string

const (
	FreqDaily    HabitFrequency = "daily"
	FreqWeekdays HabitFrequency = "weekdays"
	FreqWeekends HabitFrequency = "weekends"
)

// OccurrenceStatus represents the lifecycle state of a planned habit instance.
type OccurrenceStatus string

const (
	OccurrencePlanned   OccurrenceStatus = "planned"
	OccurrenceSent      OccurrenceStatus = "sent"
	OccurrenceDone      OccurrenceStatus = "done"
	OccurrenceSkipped   OccurrenceStatus = "skipped"
	OccurrenceCancelled OccurrenceStatus = "cancelled"
)

// QuestionnaireType distinguishes day-bound questionnaires from the global
// daily broadcast kind.
type QuestionnaireType string

const (
	QuestionnaireManual QuestionnaireType = "manual"
	QuestionnaireDaily  QuestionnaireType = "daily"
)

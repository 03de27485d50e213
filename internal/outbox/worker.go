package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"courseflow/internal/types"
)

// DefaultBatchLimit caps how many due jobs one drain pass picks up.
const DefaultBatchLimit = 50

// JobStore is the outbox surface the worker drains.
type JobStore interface {
	FetchDuePending(ctx context.Context, now time.Time, limit int) ([]*types.OutboxJob, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

// SentLedger records logical deliveries per user-local day.
type SentLedger interface {
	MarkSent(ctx context.Context, entry types.SentJobEntry) (bool, error)
}

// DeliveryMarker records that a day's item physically reached the user.
type DeliveryMarker interface {
	MarkSent(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType) error
}

// ProgressMarker records the progress state a delivery opens.
type ProgressMarker interface {
	MarkSent(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType) error
}

// QuestionnaireSource resolves broadcast payloads at delivery time.
type QuestionnaireSource interface {
	GetByID(ctx context.Context, id int64) (*types.Questionnaire, error)
}

// OccurrenceMarker transitions habit occurrences on delivery.
type OccurrenceMarker interface {
	MarkSent(ctx context.Context, id int64) error
}

// ZoneSource resolves the user's timezone for payloads that predate the
// for_date field.
type ZoneSource interface {
	GetTimezone(ctx context.Context, userID int64) (string, error)
}

// Worker drains due outbox jobs into the messaging transport. Jobs are
// processed independently: one failure marks that job failed and moves on.
//
// Delivery is at-least-once by construction. The send and the sent mark are
// not atomic, so a crash between them can repeat a send after restart; the
// ledger bounds the damage to one repeat per logical delivery.
type Worker struct {
	jobs           JobStore
	ledger         SentLedger
	deliveries     DeliveryMarker
	progress       ProgressMarker
	questionnaires QuestionnaireSource
	occurrences    OccurrenceMarker
	zones          ZoneSource
	backlog        *BacklogBuilder
	sender         types.Sender
	links          types.LinkBuilder

	defaultZone string
	batchLimit  int
	logger      *slog.Logger
}

// WorkerDeps bundles the worker's collaborators.
type WorkerDeps struct {
	Jobs           JobStore
	Ledger         SentLedger
	Deliveries     DeliveryMarker
	Progress       ProgressMarker
	Questionnaires QuestionnaireSource
	Occurrences    OccurrenceMarker
	Zones          ZoneSource
	Backlog        *BacklogBuilder
	Sender         types.Sender
	Links          types.LinkBuilder
}

// NewWorker creates a Worker. batchLimit <= 0 selects DefaultBatchLimit.
func NewWorker(deps WorkerDeps, defaultZone string, batchLimit int, logger *slog.Logger) *Worker {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		jobs:           deps.Jobs,
		ledger:         deps.Ledger,
		deliveries:     deps.Deliveries,
		progress:       deps.Progress,
		questionnaires: deps.Questionnaires,
		occurrences:    deps.Occurrences,
		zones:          deps.Zones,
		backlog:        deps.Backlog,
		sender:         deps.Sender,
		links:          deps.Links,
		defaultZone:    defaultZone,
		batchLimit:     batchLimit,
		logger:         logger,
	}
}

// ProcessOutbox drains one batch of jobs due at now. Returns how many jobs
// were delivered and how many failed.
func (w *Worker) ProcessOutbox(ctx context.Context, now time.Time) (sent, failed int, err error) {
	jobs, err := w.jobs.FetchDuePending(ctx, now, w.batchLimit)
	if err != nil {
		return 0, 0, fmt.Errorf("fetching due jobs: %w", err)
	}

	for _, job := range jobs {
		if err := w.dispatch(ctx, job, now); err != nil {
			failed++
			w.logger.ErrorContext(ctx, "job delivery failed",
				"job_id", job.ID,
				"user_id", job.UserID,
				"kind", string(job.Kind),
				"job_key", job.JobKey,
				"error", err,
			)
			if markErr := w.jobs.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
				w.logger.ErrorContext(ctx, "failed to mark job failed",
					"job_id", job.ID, "error", markErr)
			}
			continue
		}
		if err := w.jobs.MarkSent(ctx, job.ID); err != nil {
			w.logger.ErrorContext(ctx, "failed to mark job sent",
				"job_id", job.ID, "error", err)
			continue
		}
		sent++
	}

	if sent > 0 || failed > 0 {
		w.logger.InfoContext(ctx, "outbox drained",
			"due", len(jobs), "sent", sent, "failed", failed)
	}
	return sent, failed, nil
}

// dispatch delivers one job. A nil return acknowledges the job, whether or
// not a message was actually sent: unknown kinds and stale references are
// acknowledged so they can never wedge the queue.
func (w *Worker) dispatch(ctx context.Context, job *types.OutboxJob, now time.Time) error {
	switch job.Kind {
	case types.KindDayLesson:
		return w.deliverLesson(ctx, job, now)
	case types.KindDayQuest:
		return w.deliverQuest(ctx, job, now)
	case types.KindDailyReminder:
		return w.deliverDailyReminder(ctx, job)
	case types.KindBroadcast:
		return w.deliverBroadcast(ctx, job)
	case types.KindHabitReminder:
		return w.deliverHabit(ctx, job)
	case types.KindPersonal:
		return w.deliverPersonal(ctx, job)
	default:
		w.logger.WarnContext(ctx, "acknowledging job of unknown kind",
			"job_id", job.ID, "kind", string(job.Kind))
		return nil
	}
}

func (w *Worker) deliverLesson(ctx context.Context, job *types.OutboxJob, now time.Time) error {
	p := job.Payload.DayLesson
	if p == nil {
		return nil
	}
	text, actions := lessonMessage(p)
	if err := w.sender.SendText(ctx, job.UserID, text, actions); err != nil {
		return fmt.Errorf("sending lesson: %w", err)
	}

	forDate := w.resolveForDate(ctx, job.UserID, p.ForDate, now)
	if _, err := w.ledger.MarkSent(ctx, types.SentJobEntry{
		UserID:      job.UserID,
		ContentType: types.ContentLesson,
		DayIndex:    p.DayIndex,
		ForDate:     forDate,
	}); err != nil {
		return err
	}
	if err := w.deliveries.MarkSent(ctx, job.UserID, p.DayIndex, types.ItemLesson); err != nil {
		return err
	}
	return w.progress.MarkSent(ctx, job.UserID, p.DayIndex, types.ItemLesson)
}

func (w *Worker) deliverQuest(ctx context.Context, job *types.OutboxJob, now time.Time) error {
	p := job.Payload.DayQuest
	if p == nil {
		return nil
	}
	text, actions := questMessage(p)
	var err error
	if p.PhotoFileID != "" {
		err = w.sender.SendPhoto(ctx, job.UserID, p.PhotoFileID, text, actions)
	} else {
		err = w.sender.SendText(ctx, job.UserID, text, actions)
	}
	if err != nil {
		return fmt.Errorf("sending quest: %w", err)
	}

	forDate := w.resolveForDate(ctx, job.UserID, p.ForDate, now)
	if _, err := w.ledger.MarkSent(ctx, types.SentJobEntry{
		UserID:      job.UserID,
		ContentType: types.ContentQuest,
		DayIndex:    p.DayIndex,
		ForDate:     forDate,
	}); err != nil {
		return err
	}
	if err := w.deliveries.MarkSent(ctx, job.UserID, p.DayIndex, types.ItemQuest); err != nil {
		return err
	}
	return w.progress.MarkSent(ctx, job.UserID, p.DayIndex, types.ItemQuest)
}

func (w *Worker) deliverDailyReminder(ctx context.Context, job *types.OutboxJob) error {
	p := job.Payload.DailyReminder
	if p == nil || p.DayIndex <= 0 {
		return nil
	}

	backlog, err := w.backlog.Collect(ctx, job.UserID, p.DayIndex)
	if err != nil {
		return fmt.Errorf("collecting backlog: %w", err)
	}

	// Nothing pending: the reminder resolves silently but is still ledgered
	// so a rotated key cannot bring it back today.
	if backlog.Empty() {
		return w.markReminderLedger(ctx, job.UserID, p)
	}

	text, actions := reminderMessage(backlog, w.links)
	if err := w.sender.SendText(ctx, job.UserID, text, actions); err != nil {
		return fmt.Errorf("sending reminder: %w", err)
	}
	return w.markReminderLedger(ctx, job.UserID, p)
}

func (w *Worker) markReminderLedger(ctx context.Context, userID int64, p *types.DailyReminderPayload) error {
	if p.ForDate == "" {
		return nil
	}
	_, err := w.ledger.MarkSent(ctx, types.SentJobEntry{
		UserID:      userID,
		ContentType: types.ContentDailyReminder,
		DayIndex:    p.DayIndex,
		ForDate:     p.ForDate,
	})
	return err
}

func (w *Worker) deliverBroadcast(ctx context.Context, job *types.OutboxJob) error {
	p := job.Payload.Broadcast
	if p == nil {
		return nil
	}

	q, err := w.questionnaires.GetByID(ctx, p.QuestionnaireID)
	if err != nil {
		// A questionnaire deleted after planning degrades to a no-op send.
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundQuestionnaire {
			w.logger.WarnContext(ctx, "questionnaire gone, acknowledging job",
				"job_id", job.ID, "questionnaire_id", p.QuestionnaireID)
			return nil
		}
		return fmt.Errorf("loading questionnaire %d: %w", p.QuestionnaireID, err)
	}

	text, actions := questionnaireMessage(q)
	if err := w.sender.SendText(ctx, job.UserID, text, actions); err != nil {
		return fmt.Errorf("sending questionnaire: %w", err)
	}

	// Only day-planned, mandatory questionnaires are ledgered per day.
	if !p.Optional && p.DayIndex > 0 && p.ForDate != "" {
		if _, err := w.ledger.MarkSent(ctx, types.SentJobEntry{
			UserID:      job.UserID,
			ContentType: types.QuestionnaireContentType(p.QuestionnaireID),
			DayIndex:    p.DayIndex,
			ForDate:     p.ForDate,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (w *Worker) deliverHabit(ctx context.Context, job *types.OutboxJob) error {
	p := job.Payload.Habit
	if p == nil || p.OccurrenceID <= 0 {
		return nil
	}

	// Best effort: the occurrence row is an audit trail, not a delivery gate.
	if err := w.occurrences.MarkSent(ctx, p.OccurrenceID); err != nil {
		w.logger.WarnContext(ctx, "failed to mark habit occurrence sent",
			"occurrence_id", p.OccurrenceID, "error", err)
	}

	text, actions := habitMessage(p)
	if err := w.sender.SendText(ctx, job.UserID, text, actions); err != nil {
		return fmt.Errorf("sending habit reminder: %w", err)
	}
	return nil
}

func (w *Worker) deliverPersonal(ctx context.Context, job *types.OutboxJob) error {
	p := job.Payload.Personal
	if p == nil {
		return nil
	}
	if err := w.sender.SendText(ctx, job.UserID, personalMessage(p), nil); err != nil {
		return fmt.Errorf("sending personal reminder: %w", err)
	}
	return nil
}

// resolveForDate returns the payload's planned local date, or the user's
// current local date for payloads that carry none (manual enqueues).
func (w *Worker) resolveForDate(ctx context.Context, userID int64, forDate string, now time.Time) string {
	if forDate != "" {
		return forDate
	}
	tz, err := w.zones.GetTimezone(ctx, userID)
	if err != nil {
		tz = ""
	}
	loc, err := time.LoadLocation(tz)
	if err != nil || tz == "" {
		if loc, err = time.LoadLocation(w.defaultZone); err != nil {
			loc = time.UTC
		}
	}
	return now.In(loc).Format("2006-01-02")
}

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"courseflow/internal/types"
)

// PersonalScheduler queues one-shot personal reminders. A reminder whose
// start instant has already passed is simply skipped: one-shots do not catch
// up.
type PersonalScheduler struct {
	cfg       Config
	outbox    OutboxStore
	reminders PersonalReminderStore
	users     UserStore
	logger    *slog.Logger
}

// NewPersonalScheduler creates a PersonalScheduler.
func NewPersonalScheduler(cfg Config, outbox OutboxStore, reminders PersonalReminderStore, users UserStore, logger *slog.Logger) *PersonalScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PersonalScheduler{
		cfg:       cfg,
		outbox:    outbox,
		reminders: reminders,
		users:     users,
		logger:    logger,
	}
}

// ScheduleDueJobs queues a job for every active reminder whose start instant
// is still in the future as of now. Returns the number of jobs created.
func (s *PersonalScheduler) ScheduleDueJobs(ctx context.Context, now time.Time) (int, error) {
	reminders, err := s.reminders.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active personal reminders: %w", err)
	}

	created := 0
	for _, r := range reminders {
		if r.StartAt.Before(now) {
			continue
		}

		startUTC := r.StartAt.UTC()
		key := fmt.Sprintf("personal_once:%d:%s", r.ID, startUTC.Format(time.RFC3339))

		loc := s.userZone(ctx, r.UserID)
		localAt := startUTC.In(loc)
		ok, err := s.outbox.Create(ctx, &types.OutboxJob{
			UserID: r.UserID,
			JobKey: key,
			Kind:   types.KindPersonal,
			RunAt:  startUTC,
			Payload: types.Payload{
				Kind:   types.KindPersonal,
				JobKey: key,
				Personal: &types.PersonalPayload{
					ReminderID:   r.ID,
					Text:         r.Text,
					ForLocalDate: FormatLocalDate(localAt),
					ForLocalTime: localAt.Format("15:04"),
				},
			},
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to queue personal reminder",
				"reminder_id", r.ID,
				"user_id", r.UserID,
				"error", err,
			)
			continue
		}
		if ok {
			created++
		}
	}

	if created > 0 {
		s.logger.InfoContext(ctx, "personal reminder planning pass complete", "created", created)
	}
	return created, nil
}

// CancelForReminder drops the reminder's queued job from now on. Called when
// the reminder is deactivated before it fires.
func (s *PersonalScheduler) CancelForReminder(ctx context.Context, r *types.PersonalReminder, now time.Time) (int64, error) {
	n, err := s.outbox.CancelPendingByKeyPrefix(ctx, r.UserID, fmt.Sprintf("personal_once:%d:", r.ID), now)
	if err != nil {
		return 0, fmt.Errorf("cancelling jobs for reminder %d: %w", r.ID, err)
	}
	return n, nil
}

func (s *PersonalScheduler) userZone(ctx context.Context, userID int64) *time.Location {
	tz, err := s.users.GetTimezone(ctx, userID)
	if err != nil {
		tz = ""
	}
	return ResolveZone(tz, s.cfg.DefaultTimezone)
}

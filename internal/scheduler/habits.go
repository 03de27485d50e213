package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"courseflow/internal/types"
)

// DefaultHabitTime is the wall clock assumed when a habit carries no usable
// remind time.
const DefaultHabitTime = "09:00"

// habitPastTolerance is how far in the past an occurrence may still be
// planned. A tick that runs a few minutes late must not drop the slot it was
// late for, but hours-old slots are skipped rather than delivered stale.
const habitPastTolerance = 5 * time.Minute

// HabitScheduler plans habit occurrences over a rolling horizon and queues a
// reminder job per occurrence. Idempotency is two-layer: the occurrence table
// is unique on (habit_id, scheduled_at) and the outbox is unique on the
// per-occurrence job key.
type HabitScheduler struct {
	cfg         Config
	outbox      OutboxStore
	habits      HabitStore
	occurrences OccurrenceStore
	users       UserStore
	logger      *slog.Logger
}

// NewHabitScheduler creates a HabitScheduler.
func NewHabitScheduler(cfg Config, outbox OutboxStore, habits HabitStore, occurrences OccurrenceStore, users UserStore, logger *slog.Logger) *HabitScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HabitScheduler{
		cfg:         cfg,
		outbox:      outbox,
		habits:      habits,
		occurrences: occurrences,
		users:       users,
		logger:      logger,
	}
}

// ScheduleDueJobs plans occurrences and reminder jobs for every active habit
// from today through the configured horizon, as of now. Returns the number of
// jobs created.
func (s *HabitScheduler) ScheduleDueJobs(ctx context.Context, now time.Time) (int, error) {
	habits, err := s.habits.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active habits: %w", err)
	}

	byUser := make(map[int64][]*types.Habit)
	for _, h := range habits {
		byUser[h.UserID] = append(byUser[h.UserID], h)
	}

	created := 0
	for userID, userHabits := range byUser {
		loc := s.userZone(ctx, userID)
		todayLocal := now.In(loc)

		for i := 0; i <= s.cfg.HabitHorizonDays; i++ {
			dayLocal := todayLocal.AddDate(0, 0, i)
			for _, h := range userHabits {
				n, err := s.planOccurrence(ctx, h, dayLocal, loc, now)
				if err != nil {
					s.logger.ErrorContext(ctx, "failed to plan habit occurrence",
						"habit_id", h.ID,
						"user_id", userID,
						"error", err,
					)
					continue
				}
				created += n
			}
		}
	}

	if created > 0 {
		s.logger.InfoContext(ctx, "habit planning pass complete", "created", created)
	}
	return created, nil
}

func (s *HabitScheduler) planOccurrence(ctx context.Context, h *types.Habit, dayLocal time.Time, loc *time.Location, now time.Time) (int, error) {
	if !matchesFrequency(dayLocal, h.Frequency) {
		return 0, nil
	}

	hh, mm := ParseHHMM(h.RemindTime, DefaultHabitTime)
	localAt := CombineLocal(dayLocal, hh, mm, loc)
	runAt := localAt.UTC()

	if runAt.Before(now.Add(-habitPastTolerance)) {
		return 0, nil
	}

	occurrenceID, err := s.occurrences.EnsurePlanned(ctx, h.ID, h.UserID, runAt)
	if err != nil {
		return 0, err
	}

	key := fmt.Sprintf("habit:%d:%d", h.ID, occurrenceID)
	ok, err := s.outbox.Create(ctx, &types.OutboxJob{
		UserID: h.UserID,
		JobKey: key,
		Kind:   types.KindHabitReminder,
		RunAt:  runAt,
		Payload: types.Payload{
			Kind:   types.KindHabitReminder,
			JobKey: key,
			Habit: &types.HabitReminderPayload{
				HabitID:      h.ID,
				OccurrenceID: occurrenceID,
				Title:        h.Title,
				ForLocalDate: FormatLocalDate(dayLocal),
				ForLocalTime: fmt.Sprintf("%02d:%02d", hh, mm),
			},
		},
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return 1, nil
}

// CancelFutureForHabit drops the habit's planned occurrences and queued
// reminder jobs from now on. Called when the habit is edited or deactivated;
// the next planning pass rebuilds from the new definition if it is still
// active.
func (s *HabitScheduler) CancelFutureForHabit(ctx context.Context, h *types.Habit, now time.Time) (int64, error) {
	occCancelled, err := s.occurrences.CancelFutureForHabit(ctx, h.ID, now)
	if err != nil {
		return 0, fmt.Errorf("cancelling occurrences for habit %d: %w", h.ID, err)
	}
	jobCancelled, err := s.outbox.CancelPendingByKeyPrefix(ctx, h.UserID, fmt.Sprintf("habit:%d:", h.ID), now)
	if err != nil {
		return occCancelled, fmt.Errorf("cancelling jobs for habit %d: %w", h.ID, err)
	}

	s.logger.InfoContext(ctx, "habit plans cancelled",
		"habit_id", h.ID,
		"user_id", h.UserID,
		"occurrences", occCancelled,
		"jobs", jobCancelled,
	)
	return occCancelled + jobCancelled, nil
}

func (s *HabitScheduler) userZone(ctx context.Context, userID int64) *time.Location {
	tz, err := s.users.GetTimezone(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load user timezone, using default",
			"user_id", userID,
			"error", err,
		)
		tz = ""
	}
	return ResolveZone(tz, s.cfg.DefaultTimezone)
}

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"courseflow/internal/types"
)

// DefaultDeliveryTime is the wall clock assumed when an enrollment carries no
// usable delivery time.
const DefaultDeliveryTime = "21:00"

// lookaheadDays is how many local calendar days each pass plans: today plus
// tomorrow, so a job exists before its window opens even if a tick is missed.
const lookaheadDays = 1

// dailyPipelineKinds are the kinds a reschedule cancels. Broadcast jobs also
// flow through the outbox but are cancelled by key prefix since admin
// broadcasts share their kind with day questionnaires.
var dailyPipelineKinds = []types.JobKind{
	types.KindDayLesson,
	types.KindDayQuest,
	types.KindDailyReminder,
}

// Scheduler plans the daily course pipeline: lessons, quests, day
// questionnaires and the backlog reminder.
type Scheduler struct {
	cfg            Config
	outbox         OutboxStore
	ledger         SentLedger
	enrollments    EnrollmentStore
	users          UserStore
	lessons        LessonStore
	quests         QuestStore
	questionnaires QuestionnaireStore
	logger         *slog.Logger
}

// NewScheduler creates a daily Scheduler.
func NewScheduler(
	cfg Config,
	outbox OutboxStore,
	ledger SentLedger,
	enrollments EnrollmentStore,
	users UserStore,
	lessons LessonStore,
	quests QuestStore,
	questionnaires QuestionnaireStore,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:            cfg,
		outbox:         outbox,
		ledger:         ledger,
		enrollments:    enrollments,
		users:          users,
		lessons:        lessons,
		quests:         quests,
		questionnaires: questionnaires,
		logger:         logger,
	}
}

// ScheduleDueJobs runs one planning pass over all active enrollments as of
// now, creating any outbox jobs for today and tomorrow that do not exist yet.
// A failure for one user does not block the rest; it is logged and the user
// is retried on the next tick. Returns the number of jobs created.
func (s *Scheduler) ScheduleDueJobs(ctx context.Context, now time.Time) (int, error) {
	enrollments, err := s.enrollments.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active enrollments: %w", err)
	}

	created := 0
	for _, e := range enrollments {
		n, err := s.scheduleForUser(ctx, now, e)
		created += n
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to plan user",
				"user_id", e.UserID,
				"error", err,
			)
			continue
		}
	}

	if created > 0 {
		s.logger.InfoContext(ctx, "daily planning pass complete",
			"users", len(enrollments),
			"created", created,
		)
	}
	return created, nil
}

// RescheduleUser cancels the user's future pending daily-pipeline jobs and
// plans today and tomorrow again under the current delivery settings.
// Returns the number of jobs created.
func (s *Scheduler) RescheduleUser(ctx context.Context, userID int64, now time.Time) (int, error) {
	cancelled, err := s.outbox.CancelPendingKinds(ctx, userID, dailyPipelineKinds, now)
	if err != nil {
		return 0, fmt.Errorf("cancelling daily jobs for user %d: %w", userID, err)
	}
	// Day questionnaires share kind questionnaire_broadcast with admin
	// broadcasts; only day-planned ones (job_key "questionnaire:...") go.
	n, err := s.outbox.CancelPendingByKeyPrefix(ctx, userID, "questionnaire:", now)
	if err != nil {
		return 0, fmt.Errorf("cancelling day questionnaire jobs for user %d: %w", userID, err)
	}
	cancelled += n

	e, err := s.enrollments.Get(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("loading enrollment for user %d: %w", userID, err)
	}
	created := 0
	if e != nil {
		if created, err = s.scheduleForUser(ctx, now, e); err != nil {
			return created, err
		}
	}

	s.logger.InfoContext(ctx, "user rescheduled",
		"user_id", userID,
		"cancelled", cancelled,
		"created", created,
	)
	return created, nil
}

// scheduleForUser plans today and tomorrow for one enrollment. Each candidate
// job passes two guards before insertion: the sent_jobs ledger (was this
// logical delivery already made on this date, under any key) and the outbox
// unique index (does a live job with this exact key exist).
func (s *Scheduler) scheduleForUser(ctx context.Context, now time.Time, e *types.Enrollment) (int, error) {
	loc := s.userZone(ctx, e.UserID)
	nowLocal := now.In(loc)
	hh, mm := ParseHHMM(e.DeliveryTime, DefaultDeliveryTime)

	created := 0
	for offset := 0; offset <= lookaheadDays; offset++ {
		forDate := nowLocal.AddDate(0, 0, offset)
		forDateStr := FormatLocalDate(forDate)
		dayIndex := DayIndex(e.EnrolledAt, forDate, loc)
		deliveryLocal := CombineLocal(forDate, hh, mm, loc)
		runAt := deliveryLocal.UTC()

		lesson, err := s.lessons.GetByDay(ctx, dayIndex)
		if err != nil {
			return created, err
		}
		quest, err := s.quests.GetByDay(ctx, dayIndex)
		if err != nil {
			return created, err
		}
		questionnaires, err := s.questionnaires.ListForDay(ctx, dayIndex)
		if err != nil {
			return created, err
		}
		if lesson == nil && quest == nil && len(questionnaires) == 0 {
			continue
		}

		// Past the grace window, today's lesson/quest is not auto-sent; the
		// backlog reminder picks it up instead. Tomorrow is always plannable.
		tooLate := nowLocal.After(deliveryLocal.Add(s.cfg.DeliveryGrace))
		canAutosend := !tooLate || offset > 0

		if canAutosend {
			if lesson != nil {
				n, err := s.planLesson(ctx, e.UserID, lesson, dayIndex, forDateStr, runAt)
				if err != nil {
					return created, err
				}
				created += n
			}
			if quest != nil {
				n, err := s.planQuest(ctx, e.UserID, quest, dayIndex, forDateStr, runAt)
				if err != nil {
					return created, err
				}
				created += n
			}
			for _, q := range questionnaires {
				n, err := s.planDayQuestionnaire(ctx, e.UserID, q.ID, dayIndex, forDateStr, runAt)
				if err != nil {
					return created, err
				}
				created += n
			}
		}

		// The backlog reminder is planned even past the grace window: a
		// missed delivery is exactly what it exists to catch.
		n, err := s.planDailyReminder(ctx, e.UserID, dayIndex, forDateStr, deliveryLocal)
		if err != nil {
			return created, err
		}
		created += n
	}
	return created, nil
}

func (s *Scheduler) planLesson(ctx context.Context, userID int64, lesson *types.Lesson, dayIndex int, forDate string, runAt time.Time) (int, error) {
	sent, err := s.ledger.WasSent(ctx, userID, types.ContentLesson, dayIndex, forDate)
	if err != nil || sent {
		return 0, err
	}
	key := dayJobKey(dayIndex, lesson.ID, 0, types.ContentVersion(lesson.CreatedAt, lesson.UpdatedAt))
	ok, err := s.outbox.Create(ctx, &types.OutboxJob{
		UserID: userID,
		JobKey: key,
		Kind:   types.KindDayLesson,
		RunAt:  runAt,
		Payload: types.Payload{
			Kind:   types.KindDayLesson,
			JobKey: key,
			DayLesson: &types.DayLessonPayload{
				DayIndex:     dayIndex,
				ForDate:      forDate,
				Title:        lesson.Title,
				Description:  lesson.Description,
				VideoURL:     lesson.VideoURL,
				PointsViewed: lesson.PointsViewed,
			},
		},
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	s.logJob(ctx, userID, types.KindDayLesson, key, forDate, runAt)
	return 1, nil
}

func (s *Scheduler) planQuest(ctx context.Context, userID int64, quest *types.Quest, dayIndex int, forDate string, runAt time.Time) (int, error) {
	sent, err := s.ledger.WasSent(ctx, userID, types.ContentQuest, dayIndex, forDate)
	if err != nil || sent {
		return 0, err
	}
	key := dayJobKey(dayIndex, 0, quest.ID, types.ContentVersion(quest.CreatedAt, quest.UpdatedAt))
	ok, err := s.outbox.Create(ctx, &types.OutboxJob{
		UserID: userID,
		JobKey: key,
		Kind:   types.KindDayQuest,
		RunAt:  runAt,
		Payload: types.Payload{
			Kind:   types.KindDayQuest,
			JobKey: key,
			DayQuest: &types.DayQuestPayload{
				DayIndex:    dayIndex,
				ForDate:     forDate,
				Prompt:      quest.Prompt,
				Points:      quest.Points,
				PhotoFileID: quest.PhotoFileID,
			},
		},
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	s.logJob(ctx, userID, types.KindDayQuest, key, forDate, runAt)
	return 1, nil
}

func (s *Scheduler) planDayQuestionnaire(ctx context.Context, userID, questionnaireID int64, dayIndex int, forDate string, runAt time.Time) (int, error) {
	sent, err := s.ledger.WasSent(ctx, userID, types.QuestionnaireContentType(questionnaireID), dayIndex, forDate)
	if err != nil || sent {
		return 0, err
	}
	key := fmt.Sprintf("questionnaire:%d:day=%d:date=%s", questionnaireID, dayIndex, forDate)
	ok, err := s.outbox.Create(ctx, &types.OutboxJob{
		UserID: userID,
		JobKey: key,
		Kind:   types.KindBroadcast,
		RunAt:  runAt,
		Payload: types.Payload{
			Kind:   types.KindBroadcast,
			JobKey: key,
			Broadcast: &types.BroadcastPayload{
				QuestionnaireID: questionnaireID,
				DayIndex:        dayIndex,
				ForDate:         forDate,
			},
		},
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	s.logJob(ctx, userID, types.KindBroadcast, key, forDate, runAt)
	return 1, nil
}

func (s *Scheduler) planDailyReminder(ctx context.Context, userID int64, dayIndex int, forDate string, deliveryLocal time.Time) (int, error) {
	sent, err := s.ledger.WasSent(ctx, userID, types.ContentDailyReminder, dayIndex, forDate)
	if err != nil || sent {
		return 0, err
	}
	reminderLocal := s.cfg.ReminderRunLocal(deliveryLocal)
	runAt := reminderLocal.UTC()
	key := fmt.Sprintf("daily_reminder:day=%d:date=%s", dayIndex, forDate)
	ok, err := s.outbox.Create(ctx, &types.OutboxJob{
		UserID: userID,
		JobKey: key,
		Kind:   types.KindDailyReminder,
		RunAt:  runAt,
		Payload: types.Payload{
			Kind:          types.KindDailyReminder,
			JobKey:        key,
			DailyReminder: &types.DailyReminderPayload{DayIndex: dayIndex, ForDate: forDate},
		},
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	s.logger.InfoContext(ctx, "planned reminder",
		"user_id", userID,
		"day_index", dayIndex,
		"for_date", forDate,
		"delivery_local", deliveryLocal.Format(time.RFC3339),
		"reminder_local", reminderLocal.Format(time.RFC3339),
		"run_at", runAt.Format(time.RFC3339),
	)
	return 1, nil
}

// EnqueueDayNow queues a day's content for immediate delivery, bypassing the
// delivery window and the sent ledger. The outbox key guard still applies, so
// repeating the call while the jobs are live is a no-op.
func (s *Scheduler) EnqueueDayNow(ctx context.Context, userID int64, dayIndex int, now time.Time) (int, error) {
	lesson, err := s.lessons.GetByDay(ctx, dayIndex)
	if err != nil {
		return 0, err
	}
	quest, err := s.quests.GetByDay(ctx, dayIndex)
	if err != nil {
		return 0, err
	}
	questionnaires, err := s.questionnaires.ListForDay(ctx, dayIndex)
	if err != nil {
		return 0, err
	}
	if lesson == nil && quest == nil && len(questionnaires) == 0 {
		return 0, nil
	}

	loc := s.userZone(ctx, userID)
	forDate := FormatLocalDate(now.In(loc))
	created := 0

	if lesson != nil {
		key := dayJobKey(dayIndex, lesson.ID, 0, types.ContentVersion(lesson.CreatedAt, lesson.UpdatedAt))
		ok, err := s.outbox.Create(ctx, &types.OutboxJob{
			UserID: userID,
			JobKey: key,
			Kind:   types.KindDayLesson,
			RunAt:  now,
			Payload: types.Payload{
				Kind:   types.KindDayLesson,
				JobKey: key,
				DayLesson: &types.DayLessonPayload{
					DayIndex:     dayIndex,
					Title:        lesson.Title,
					Description:  lesson.Description,
					VideoURL:     lesson.VideoURL,
					PointsViewed: lesson.PointsViewed,
				},
			},
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}

	if quest != nil {
		key := dayJobKey(dayIndex, 0, quest.ID, types.ContentVersion(quest.CreatedAt, quest.UpdatedAt))
		ok, err := s.outbox.Create(ctx, &types.OutboxJob{
			UserID: userID,
			JobKey: key,
			Kind:   types.KindDayQuest,
			RunAt:  now,
			Payload: types.Payload{
				Kind:   types.KindDayQuest,
				JobKey: key,
				DayQuest: &types.DayQuestPayload{
					DayIndex:    dayIndex,
					Prompt:      quest.Prompt,
					Points:      quest.Points,
					PhotoFileID: quest.PhotoFileID,
				},
			},
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}

	for _, q := range questionnaires {
		key := fmt.Sprintf("questionnaire:%d:day=%d:date=%s", q.ID, dayIndex, forDate)
		ok, err := s.outbox.Create(ctx, &types.OutboxJob{
			UserID: userID,
			JobKey: key,
			Kind:   types.KindBroadcast,
			RunAt:  now,
			Payload: types.Payload{
				Kind:   types.KindBroadcast,
				JobKey: key,
				Broadcast: &types.BroadcastPayload{
					QuestionnaireID: q.ID,
					DayIndex:        dayIndex,
					ForDate:         forDate,
				},
			},
		})
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// ScheduleQuestionnaireBroadcast queues a questionnaire to every known user
// at the given local wall clock. A user whose clock has already passed it
// today gets the job a few seconds into the future instead of a backdated
// run_at. Returns the number of jobs created.
func (s *Scheduler) ScheduleQuestionnaireBroadcast(ctx context.Context, questionnaireID int64, hhmm string, optional bool, now time.Time) (int, error) {
	hh, mm, err := parseStrictHHMM(hhmm)
	if err != nil {
		return 0, err
	}

	userIDs, err := s.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing broadcast targets: %w", err)
	}

	created := 0
	for _, userID := range userIDs {
		loc := s.userZone(ctx, userID)
		nowLocal := now.In(loc)
		targetLocal := CombineLocal(nowLocal, hh, mm, loc)
		if targetLocal.Before(nowLocal) {
			targetLocal = nowLocal.Add(5 * time.Second)
		}

		// Keyed by the user-local date so users across the date line get their
		// own delivery per local day.
		key := fmt.Sprintf("qcast:%d:%s:%s", questionnaireID, FormatLocalDate(targetLocal), hhmm)
		ok, err := s.outbox.Create(ctx, &types.OutboxJob{
			UserID: userID,
			JobKey: key,
			Kind:   types.KindBroadcast,
			RunAt:  targetLocal.UTC(),
			Payload: types.Payload{
				Kind:   types.KindBroadcast,
				JobKey: key,
				Broadcast: &types.BroadcastPayload{
					QuestionnaireID: questionnaireID,
					Optional:        optional,
				},
			},
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to queue broadcast",
				"user_id", userID,
				"questionnaire_id", questionnaireID,
				"error", err,
			)
			continue
		}
		if ok {
			created++
		}
	}

	s.logger.InfoContext(ctx, "questionnaire broadcast planned",
		"questionnaire_id", questionnaireID,
		"at", hhmm,
		"created", created,
	)
	return created, nil
}

// userZone resolves the user's zone, falling back to the configured default.
// Lookup failures degrade to the default rather than blocking planning.
func (s *Scheduler) userZone(ctx context.Context, userID int64) *time.Location {
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

func (s *Scheduler) logJob(ctx context.Context, userID int64, kind types.JobKind, key, forDate string, runAt time.Time) {
	s.logger.InfoContext(ctx, "planned job",
		"user_id", userID,
		"kind", string(kind),
		"job_key", key,
		"for_date", forDate,
		"run_at", runAt.Format(time.RFC3339),
	)
}

// parseStrictHHMM parses a "HH:MM" string without clamping; admin input is
// rejected rather than coerced.
func parseStrictHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, types.NewAppError(types.ErrCodeValidationInvalidTime, fmt.Sprintf("invalid time %q, want HH:MM", s), nil)
	}
	hh, err1 := strconv.Atoi(parts[0])
	mm, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, 0, types.NewAppError(types.ErrCodeValidationInvalidTime, fmt.Sprintf("invalid time %q, want HH:MM", s), nil)
	}
	return hh, mm, nil
}

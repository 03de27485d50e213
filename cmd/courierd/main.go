// Package main is the Courseflow tick daemon. Each tick runs one planning
// pass (daily content, habits, personal reminders) followed by an outbox
// drain, all against a single consistent instant. Planning is idempotent, so
// overlapping restarts and repeated ticks are harmless; overlapping ticks
// within one process are skipped.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"courseflow/internal/config"
	"courseflow/internal/db"
	"courseflow/internal/outbox"
	"courseflow/internal/scheduler"
	"courseflow/internal/transport/telegram"
	"courseflow/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("courierd starting",
		"environment", cfg.Environment,
		"tick_interval", cfg.Worker.TickInterval.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	sender, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.SendTimeout, logger)
	if err != nil {
		return fmt.Errorf("initializing telegram transport: %w", err)
	}

	tick := buildPipeline(cfg, pool, sender, logger)

	// First pass immediately so a restart does not wait out a full interval.
	tick.run(ctx)

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %ds", int(cfg.Worker.TickInterval.Seconds()))
	if _, err := c.AddFunc(spec, func() { tick.run(ctx) }); err != nil {
		return fmt.Errorf("registering tick: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Start()
		<-ctx.Done()
		logger.Info("shutdown signal received, draining tick")
		stopCtx := c.Stop()
		<-stopCtx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("courierd stopped cleanly")
	return nil
}

// pipeline holds the planners and the worker one tick drives.
type pipeline struct {
	daily    *scheduler.Scheduler
	habits   *scheduler.HabitScheduler
	personal *scheduler.PersonalScheduler
	worker   *outbox.Worker
	logger   *slog.Logger
}

// run executes one full pass. Failures are logged, never fatal: the next tick
// starts from durable state.
func (p *pipeline) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	now := time.Now().UTC()
	runID := uuid.NewString()
	log := p.logger.With("run_id", runID)

	daily, err := p.daily.ScheduleDueJobs(ctx, now)
	if err != nil {
		log.ErrorContext(ctx, "daily planning pass failed", "error", err)
	}
	habits, err := p.habits.ScheduleDueJobs(ctx, now)
	if err != nil {
		log.ErrorContext(ctx, "habit planning pass failed", "error", err)
	}
	personal, err := p.personal.ScheduleDueJobs(ctx, now)
	if err != nil {
		log.ErrorContext(ctx, "personal planning pass failed", "error", err)
	}

	sent, failed, err := p.worker.ProcessOutbox(ctx, now)
	if err != nil {
		log.ErrorContext(ctx, "outbox drain failed", "error", err)
	}

	log.InfoContext(ctx, "tick completed",
		"planned_daily", daily,
		"planned_habits", habits,
		"planned_personal", personal,
		"sent", sent,
		"failed", failed,
		"elapsed", time.Since(now).String(),
	)
}

func buildPipeline(cfg *config.Config, pool *pgxpool.Pool, sender *telegram.Sender, logger *slog.Logger) *pipeline {
	outboxRepo := db.NewOutboxRepository(pool)
	sentJobs := db.NewSentJobsRepository(pool)
	deliveries := db.NewDeliveriesRepository(pool)
	users := db.NewUserRepository(pool)
	enrollments := db.NewEnrollmentRepository(pool)
	progress := db.NewProgressRepository(pool)
	lessons := db.NewLessonRepository(pool)
	quests := db.NewQuestRepository(pool)
	questionnaires := db.NewQuestionnaireRepository(pool)
	habits := db.NewHabitRepository(pool)
	occurrences := db.NewHabitOccurrenceRepository(pool)
	personal := db.NewPersonalReminderRepository(pool)

	schedCfg := scheduler.Config{
		DefaultTimezone:  cfg.Delivery.DefaultTimezone,
		DeliveryGrace:    time.Duration(cfg.Delivery.GraceMinutes) * time.Minute,
		RemindAfter:      time.Duration(cfg.Delivery.RemindAfterHours) * time.Hour,
		QuietHoursStart:  cfg.Delivery.QuietHoursStart,
		QuietHoursEnd:    cfg.Delivery.QuietHoursEnd,
		FallbackTime:     cfg.Delivery.FallbackTime,
		HabitHorizonDays: cfg.Habits.PlanHorizonDays,
	}

	backlog := outbox.NewBacklogBuilder(
		backlogContent{lessons: lessons, quests: quests, questionnaires: questionnaires},
		backlogProgress{progress: progress, questionnaires: questionnaires},
	)

	worker := outbox.NewWorker(outbox.WorkerDeps{
		Jobs:           outboxRepo,
		Ledger:         sentJobs,
		Deliveries:     deliveries,
		Progress:       progress,
		Questionnaires: questionnaires,
		Occurrences:    occurrences,
		Zones:          users,
		Backlog:        backlog,
		Sender:         sender,
		Links:          sender,
	}, cfg.Delivery.DefaultTimezone, cfg.Worker.BatchLimit, logger)

	return &pipeline{
		daily: scheduler.NewScheduler(schedCfg, outboxRepo, sentJobs, enrollments,
			users, lessons, quests, questionnaires, logger),
		habits:   scheduler.NewHabitScheduler(schedCfg, outboxRepo, habits, occurrences, users, logger),
		personal: scheduler.NewPersonalScheduler(schedCfg, outboxRepo, personal, users, logger),
		worker:   worker,
		logger:   logger,
	}
}

// backlogContent adapts the content repositories to the backlog walker's
// day-oriented surface.
type backlogContent struct {
	lessons        *db.LessonRepository
	quests         *db.QuestRepository
	questionnaires *db.QuestionnaireRepository
}

func (c backlogContent) GetLessonByDay(ctx context.Context, dayIndex int) (*types.Lesson, error) {
	return c.lessons.GetByDay(ctx, dayIndex)
}

func (c backlogContent) GetQuestByDay(ctx context.Context, dayIndex int) (*types.Quest, error) {
	return c.quests.GetByDay(ctx, dayIndex)
}

func (c backlogContent) ListQuestionnairesForDay(ctx context.Context, dayIndex int) ([]*types.Questionnaire, error) {
	return c.questionnaires.ListForDay(ctx, dayIndex)
}

// backlogProgress adapts the progress and response reads to the backlog
// walker.
type backlogProgress struct {
	progress       *db.ProgressRepository
	questionnaires *db.QuestionnaireRepository
}

func (p backlogProgress) HasViewedLesson(ctx context.Context, userID int64, dayIndex int) (bool, error) {
	return p.progress.HasViewedLesson(ctx, userID, dayIndex)
}

func (p backlogProgress) HasQuestAnswer(ctx context.Context, userID int64, dayIndex int) (bool, error) {
	return p.progress.HasQuestAnswer(ctx, userID, dayIndex)
}

func (p backlogProgress) HasQuestionnaireResponse(ctx context.Context, questionnaireID, userID int64) (bool, error) {
	return p.questionnaires.HasResponse(ctx, questionnaireID, userID)
}

func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

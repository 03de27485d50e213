// Package main is the entry point for the Courseflow admin API server.
//
// It wires the database repositories and planners into the chi-based chassis,
// mounts the admin endpoints, and serves HTTP with graceful shutdown on
// SIGINT/SIGTERM. The API only writes plans into the outbox; actual delivery
// belongs to the courierd daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courseflow/internal/api/handlers"
	"courseflow/internal/config"
	"courseflow/internal/core"
	"courseflow/internal/db"
	"courseflow/internal/scheduler"
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
	logger.Info("admin API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
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

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{dbProbe{pool: pool}}

	registerHandlers(srv, cfg, pool, logger)
	srv.MountRoutes()

	return serveHTTP(ctx, srv, cfg, logger)
}

func registerHandlers(srv *core.Server, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) {
	outboxRepo := db.NewOutboxRepository(pool)
	sentJobs := db.NewSentJobsRepository(pool)
	users := db.NewUserRepository(pool)
	enrollments := db.NewEnrollmentRepository(pool)
	lessons := db.NewLessonRepository(pool)
	quests := db.NewQuestRepository(pool)
	questionnaires := db.NewQuestionnaireRepository(pool)
	habits := db.NewHabitRepository(pool)
	occurrences := db.NewHabitOccurrenceRepository(pool)
	personal := db.NewPersonalReminderRepository(pool)
	progress := db.NewProgressRepository(pool)
	deliveries := db.NewDeliveriesRepository(pool)

	schedCfg := scheduler.Config{
		DefaultTimezone:  cfg.Delivery.DefaultTimezone,
		DeliveryGrace:    time.Duration(cfg.Delivery.GraceMinutes) * time.Minute,
		RemindAfter:      time.Duration(cfg.Delivery.RemindAfterHours) * time.Hour,
		QuietHoursStart:  cfg.Delivery.QuietHoursStart,
		QuietHoursEnd:    cfg.Delivery.QuietHoursEnd,
		FallbackTime:     cfg.Delivery.FallbackTime,
		HabitHorizonDays: cfg.Habits.PlanHorizonDays,
	}

	daily := scheduler.NewScheduler(schedCfg, outboxRepo, sentJobs, enrollments,
		users, lessons, quests, questionnaires, logger)
	habitPlanner := scheduler.NewHabitScheduler(schedCfg, outboxRepo, habits, occurrences, users, logger)
	personalPlanner := scheduler.NewPersonalScheduler(schedCfg, outboxRepo, personal, users, logger)

	plannerHandler := handlers.NewPlannerHandler(
		daily, habitPlanner, personalPlanner, outboxRepo, srv.Validator, logger)
	contentHandler := handlers.NewContentHandler(
		lessons, quests, questionnaires, srv.Validator, logger)
	enrollmentHandler := handlers.NewEnrollmentHandler(
		users, enrollments, daily, progress, deliveries, srv.Validator, logger)
	reminderHandler := handlers.NewReminderHandler(
		habits, habitPlanner, occurrences, personal, personalPlanner, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { plannerHandler.RegisterRoutes(r) },
		func(r chi.Router) { contentHandler.RegisterRoutes(r) },
		func(r chi.Router) { enrollmentHandler.RegisterRoutes(r) },
		func(r chi.Router) { reminderHandler.RegisterRoutes(r) },
	)
}

// dbProbe checks database reachability for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p dbProbe) Name() string { return "database" }

func (p dbProbe) Check(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
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

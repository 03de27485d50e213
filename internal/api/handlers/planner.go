// Package handlers contains the HTTP handler implementations for the
// Courseflow admin API. Handlers declare narrow local interfaces for the
// services they call so tests can inject recording fakes.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"courseflow/internal/core"
	"courseflow/internal/types"
)

// defaultFailedJobsLimit bounds GET /v1/jobs/failed when no limit is given.
const defaultFailedJobsLimit = 100

// DailyPlanner is the daily content scheduling service.
type DailyPlanner interface {
	ScheduleDueJobs(ctx context.Context, now time.Time) (int, error)
	RescheduleUser(ctx context.Context, userID int64, now time.Time) (int, error)
	EnqueueDayNow(ctx context.Context, userID int64, dayIndex int, now time.Time) (int, error)
	ScheduleQuestionnaireBroadcast(ctx context.Context, questionnaireID int64, hhmm string, optional bool, now time.Time) (int, error)
}

// AuxPlanner is the shared shape of the habit and personal reminder planners.
type AuxPlanner interface {
	ScheduleDueJobs(ctx context.Context, now time.Time) (int, error)
}

// FailedJobLister reads failed outbox jobs for operator inspection.
type FailedJobLister interface {
	ListFailed(ctx context.Context, limit int) ([]*types.OutboxJob, error)
}

// PlannerHandler exposes the scheduling passes and outbox inspection over
// HTTP.
type PlannerHandler struct {
	daily     DailyPlanner
	habits    AuxPlanner
	personal  AuxPlanner
	jobs      FailedJobLister
	validator *core.Validator
	logger    *slog.Logger
}

func NewPlannerHandler(
	daily DailyPlanner,
	habits AuxPlanner,
	personal AuxPlanner,
	jobs FailedJobLister,
	val *core.Validator,
	logger *slog.Logger,
) *PlannerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlannerHandler{
		daily:     daily,
		habits:    habits,
		personal:  personal,
		jobs:      jobs,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the planner endpoints. Paths are relative to /v1.
func (h *PlannerHandler) RegisterRoutes(r chi.Router) {
	r.Post("/planner/run", h.HandleRunPlanners)
	r.Post("/users/{userID}/reschedule", h.HandleRescheduleUser)
	r.Post("/users/{userID}/enqueue-day", h.HandleEnqueueDay)
	r.Post("/broadcasts", h.HandleScheduleBroadcast)
	r.Get("/jobs/failed", h.HandleListFailedJobs)
}

// plannerRunResponse reports per-planner created-job counts for one pass.
type plannerRunResponse struct {
	RunID    string `json:"run_id"`
	Daily    int    `json:"daily_jobs_created"`
	Habits   int    `json:"habit_jobs_created"`
	Personal int    `json:"personal_jobs_created"`
}

// HandleRunPlanners triggers one scheduling pass of all three planners with a
// single consistent now. Planner errors abort the pass; partial counts up to
// the failure are lost, which is safe because planning is idempotent.
func (h *PlannerHandler) HandleRunPlanners(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	runID := uuid.NewString()

	daily, err := h.daily.ScheduleDueJobs(r.Context(), now)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	habits, err := h.habits.ScheduleDueJobs(r.Context(), now)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	personal, err := h.personal.ScheduleDueJobs(r.Context(), now)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual planning pass completed",
		"run_id", runID, "daily", daily, "habits", habits, "personal", personal)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: plannerRunResponse{
		RunID:    runID,
		Daily:    daily,
		Habits:   habits,
		Personal: personal,
	}})
}

// HandleRescheduleUser cancels the user's pending daily pipeline and replans
// from the current enrollment settings.
func (h *PlannerHandler) HandleRescheduleUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.daily.RescheduleUser(r.Context(), userID, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"user_id":      userID,
		"jobs_created": created,
	}})
}

type enqueueDayRequest struct {
	DayIndex int `json:"day_index" validate:"min=1"`
}

// HandleEnqueueDay queues the given day's content for immediate delivery,
// bypassing the ledger and the grace window.
func (h *PlannerHandler) HandleEnqueueDay(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req enqueueDayRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.daily.EnqueueDayNow(r.Context(), userID, req.DayIndex, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"user_id":      userID,
		"day_index":    req.DayIndex,
		"jobs_created": created,
	}})
}

type broadcastRequest struct {
	QuestionnaireID int64  `json:"questionnaire_id" validate:"min=1"`
	Time            string `json:"time" validate:"required,hhmm"`
	Optional        bool   `json:"optional"`
}

// HandleScheduleBroadcast plans a questionnaire broadcast at a local wall
// clock time for every known user.
func (h *PlannerHandler) HandleScheduleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.daily.ScheduleQuestionnaireBroadcast(
		r.Context(), req.QuestionnaireID, req.Time, req.Optional, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"questionnaire_id": req.QuestionnaireID,
		"jobs_created":     created,
	}})
}

// HandleListFailedJobs returns the most recent failed outbox jobs. Failed
// jobs are never retried automatically, so this is the operator's view into
// lost deliveries.
func (h *PlannerHandler) HandleListFailedJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailedJobsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 1 {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationInvalidRange,
				"limit must be a positive integer",
				nil,
			))
			return
		}
		limit = parsed
	}

	jobs, err := h.jobs.ListFailed(r.Context(), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: jobs})
}

// pathInt64 parses a chi URL parameter as a positive int64.
func pathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 1 {
		return 0, types.NewAppError(
			types.ErrCodeValidationInvalidRange,
			name+" must be a positive integer",
			nil,
		)
	}
	return v, nil
}

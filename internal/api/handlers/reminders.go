package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"courseflow/internal/core"
	"courseflow/internal/types"
)

// HabitStore persists habit lifecycle changes.
type HabitStore interface {
	GetByID(ctx context.Context, id int64) (*types.Habit, error)
	Create(ctx context.Context, h *types.Habit) error
	Update(ctx context.Context, h *types.Habit) error
	Deactivate(ctx context.Context, id int64) error
}

// HabitCanceller cancels a habit's planned future occurrences and queued
// jobs.
type HabitCanceller interface {
	CancelFutureForHabit(ctx context.Context, h *types.Habit, now time.Time) (int64, error)
}

// OccurrenceResolver records the outcome of a delivered habit occurrence.
type OccurrenceResolver interface {
	Resolve(ctx context.Context, id int64, status types.OccurrenceStatus, at time.Time) error
}

// PersonalStore persists one-shot reminder lifecycle changes.
type PersonalStore interface {
	GetByID(ctx context.Context, id int64) (*types.PersonalReminder, error)
	Create(ctx context.Context, p *types.PersonalReminder) error
	Update(ctx context.Context, p *types.PersonalReminder) error
	Deactivate(ctx context.Context, id int64) error
}

// PersonalCanceller cancels a reminder's queued job.
type PersonalCanceller interface {
	CancelForReminder(ctx context.Context, p *types.PersonalReminder, now time.Time) (int64, error)
}

// ReminderHandler exposes habit and personal reminder lifecycle over HTTP.
// Deletion cascades: the habit or reminder is deactivated first, then its
// future occurrences and queued outbox jobs are cancelled.
type ReminderHandler struct {
	habits          HabitStore
	habitPlanner    HabitCanceller
	occurrences     OccurrenceResolver
	personal        PersonalStore
	personalPlanner PersonalCanceller
	validator       *core.Validator
	logger          *slog.Logger
}

func NewReminderHandler(
	habits HabitStore,
	habitPlanner HabitCanceller,
	occurrences OccurrenceResolver,
	personal PersonalStore,
	personalPlanner PersonalCanceller,
	val *core.Validator,
	logger *slog.Logger,
) *ReminderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderHandler{
		habits:          habits,
		habitPlanner:    habitPlanner,
		occurrences:     occurrences,
		personal:        personal,
		personalPlanner: personalPlanner,
		validator:       val,
		logger:          logger,
	}
}

// RegisterRoutes mounts the reminder endpoints. Paths are relative to /v1.
func (h *ReminderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/habits", h.HandleCreateHabit)
	r.Put("/habits/{habitID}", h.HandleUpdateHabit)
	r.Delete("/habits/{habitID}", h.HandleDeactivateHabit)
	r.Post("/habits/occurrences/{occurrenceID}/resolve", h.HandleResolveOccurrence)
	r.Post("/reminders", h.HandleCreateReminder)
	r.Put("/reminders/{reminderID}", h.HandleUpdateReminder)
	r.Delete("/reminders/{reminderID}", h.HandleDeactivateReminder)
}

type habitRequest struct {
	UserID     int64  `json:"user_id" validate:"min=1"`
	Title      string `json:"title" validate:"required"`
	RemindTime string `json:"remind_time" validate:"required,hhmm"`
	Frequency  string `json:"frequency" validate:"oneof=daily weekdays weekends"`
}

func (h *ReminderHandler) HandleCreateHabit(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	habit := &types.Habit{
		UserID:     req.UserID,
		Title:      req.Title,
		RemindTime: req.RemindTime,
		Frequency:  types.HabitFrequency(req.Frequency),
		IsActive:   true,
	}
	if err := h.habits.Create(r.Context(), habit); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "habit created",
		"habit_id", habit.ID, "user_id", habit.UserID)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: habit})
}

// HandleUpdateHabit changes a habit's title, time or cadence. Future
// occurrences planned under the old settings are cancelled; the next planning
// pass replans under the new ones.
func (h *ReminderHandler) HandleUpdateHabit(w http.ResponseWriter, r *http.Request) {
	habitID, err := pathInt64(r, "habitID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req habitRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	habit, err := h.habits.GetByID(r.Context(), habitID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.habitPlanner.CancelFutureForHabit(r.Context(), habit, time.Now().UTC()); err != nil {
		core.Error(w, r, err)
		return
	}

	habit.Title = req.Title
	habit.RemindTime = req.RemindTime
	habit.Frequency = types.HabitFrequency(req.Frequency)
	if err := h.habits.Update(r.Context(), habit); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "habit updated", "habit_id", habitID)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: habit})
}

func (h *ReminderHandler) HandleDeactivateHabit(w http.ResponseWriter, r *http.Request) {
	habitID, err := pathInt64(r, "habitID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	habit, err := h.habits.GetByID(r.Context(), habitID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.habits.Deactivate(r.Context(), habitID); err != nil {
		core.Error(w, r, err)
		return
	}

	cancelled, err := h.habitPlanner.CancelFutureForHabit(r.Context(), habit, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "habit deactivated",
		"habit_id", habitID, "cancelled", cancelled)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"habit_id":  habitID,
		"cancelled": cancelled,
	}})
}

type resolveOccurrenceRequest struct {
	Action string `json:"action" validate:"oneof=done skipped"`
}

// HandleResolveOccurrence records that the user acted on a delivered habit
// reminder, marking the occurrence done or skipped.
func (h *ReminderHandler) HandleResolveOccurrence(w http.ResponseWriter, r *http.Request) {
	occurrenceID, err := pathInt64(r, "occurrenceID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req resolveOccurrenceRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	status := types.OccurrenceDone
	if req.Action == "skipped" {
		status = types.OccurrenceSkipped
	}
	if err := h.occurrences.Resolve(r.Context(), occurrenceID, status, time.Now().UTC()); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "habit occurrence resolved",
		"occurrence_id", occurrenceID, "status", string(status))
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"occurrence_id": occurrenceID,
		"status":        string(status),
	}})
}

type personalReminderRequest struct {
	UserID  int64     `json:"user_id" validate:"min=1"`
	Text    string    `json:"text" validate:"required"`
	StartAt time.Time `json:"start_at" validate:"required"`
}

func (h *ReminderHandler) HandleCreateReminder(w http.ResponseWriter, r *http.Request) {
	var req personalReminderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	if !req.StartAt.After(time.Now().UTC()) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidTime,
			"start_at must be in the future",
			nil,
		))
		return
	}

	reminder := &types.PersonalReminder{
		UserID:     req.UserID,
		Text:       req.Text,
		StartAt:    req.StartAt.UTC(),
		RemindTime: req.StartAt.UTC().Format("15:04"),
		IsActive:   true,
	}
	if err := h.personal.Create(r.Context(), reminder); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "personal reminder created",
		"reminder_id", reminder.ID, "user_id", reminder.UserID)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: reminder})
}

// HandleUpdateReminder changes a reminder's text or start instant. The job
// queued for the old instant is cancelled first so the edit reschedules
// cleanly; the next planning pass queues the new one.
func (h *ReminderHandler) HandleUpdateReminder(w http.ResponseWriter, r *http.Request) {
	reminderID, err := pathInt64(r, "reminderID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req personalReminderRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()
	if !req.StartAt.After(now) {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeValidationInvalidTime,
			"start_at must be in the future",
			nil,
		))
		return
	}

	reminder, err := h.personal.GetByID(r.Context(), reminderID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.personalPlanner.CancelForReminder(r.Context(), reminder, now); err != nil {
		core.Error(w, r, err)
		return
	}

	reminder.Text = req.Text
	reminder.StartAt = req.StartAt.UTC()
	reminder.RemindTime = req.StartAt.UTC().Format("15:04")
	if err := h.personal.Update(r.Context(), reminder); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "personal reminder updated", "reminder_id", reminderID)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reminder})
}

func (h *ReminderHandler) HandleDeactivateReminder(w http.ResponseWriter, r *http.Request) {
	reminderID, err := pathInt64(r, "reminderID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	reminder, err := h.personal.GetByID(r.Context(), reminderID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.personal.Deactivate(r.Context(), reminderID); err != nil {
		core.Error(w, r, err)
		return
	}

	cancelled, err := h.personalPlanner.CancelForReminder(r.Context(), reminder, time.Now().UTC())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "personal reminder deactivated",
		"reminder_id", reminderID, "cancelled", cancelled)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"reminder_id": reminderID,
		"cancelled":   cancelled,
	}})
}

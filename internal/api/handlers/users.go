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

// UserWriter persists user identity and timezone changes.
type UserWriter interface {
	Upsert(ctx context.Context, u *types.User) error
	SetTimezone(ctx context.Context, userID int64, tz string) error
}

// EnrollmentWriter persists enrollment lifecycle changes.
type EnrollmentWriter interface {
	Upsert(ctx context.Context, e *types.Enrollment) error
	Deactivate(ctx context.Context, userID int64) error
}

// UserRescheduler cancels and replans a user's pending daily pipeline.
type UserRescheduler interface {
	RescheduleUser(ctx context.Context, userID int64, now time.Time) (int, error)
}

// ProgressWriter records that a user finished a delivered item.
type ProgressWriter interface {
	MarkCompleted(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType) error
}

// DeliveryReader checks the deliveries marker table.
type DeliveryReader interface {
	WasSent(ctx context.Context, userID int64, dayIndex int, itemType types.ItemType) (bool, error)
}

// EnrollmentHandler exposes the enrollment lifecycle. Any change to delivery
// time or timezone reschedules the user so pending jobs reflect the new
// settings; deactivation runs the same pass, which cancels without
// replanning.
type EnrollmentHandler struct {
	users       UserWriter
	enrollments EnrollmentWriter
	planner     UserRescheduler
	progress    ProgressWriter
	deliveries  DeliveryReader
	validator   *core.Validator
	logger      *slog.Logger
}

func NewEnrollmentHandler(
	users UserWriter,
	enrollments EnrollmentWriter,
	planner UserRescheduler,
	progress ProgressWriter,
	deliveries DeliveryReader,
	val *core.Validator,
	logger *slog.Logger,
) *EnrollmentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrollmentHandler{
		users:       users,
		enrollments: enrollments,
		planner:     planner,
		progress:    progress,
		deliveries:  deliveries,
		validator:   val,
		logger:      logger,
	}
}

// RegisterRoutes mounts the enrollment endpoints. Paths are relative to /v1.
func (h *EnrollmentHandler) RegisterRoutes(r chi.Router) {
	r.Put("/users/{userID}/enrollment", h.HandleUpsertEnrollment)
	r.Delete("/users/{userID}/enrollment", h.HandleDeactivateEnrollment)
	r.Post("/users/{userID}/progress", h.HandleCompleteProgress)
}

type enrollmentRequest struct {
	DeliveryTime string `json:"delivery_time" validate:"required,hhmm"`
	Timezone     string `json:"timezone" validate:"omitempty,tzname"`
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
}

// HandleUpsertEnrollment enrolls the user or updates their delivery settings.
// The enrollment date is preserved on re-enrollment so the day index never
// shifts retroactively.
func (h *EnrollmentHandler) HandleUpsertEnrollment(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req enrollmentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	now := time.Now().UTC()

	user := &types.User{
		ID:          userID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Timezone:    req.Timezone,
	}
	if err := h.users.Upsert(r.Context(), user); err != nil {
		core.Error(w, r, err)
		return
	}
	if req.Timezone != "" {
		if err := h.users.SetTimezone(r.Context(), userID, req.Timezone); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	enrollment := &types.Enrollment{
		UserID:       userID,
		DeliveryTime: req.DeliveryTime,
		EnrolledAt:   now,
		IsActive:     true,
	}
	if err := h.enrollments.Upsert(r.Context(), enrollment); err != nil {
		core.Error(w, r, err)
		return
	}

	created, err := h.planner.RescheduleUser(r.Context(), userID, now)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "enrollment upserted",
		"user_id", userID, "delivery_time", req.DeliveryTime, "jobs_created", created)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"user_id":      userID,
		"jobs_created": created,
	}})
}

// HandleDeactivateEnrollment opts the user out. The reschedule pass after
// deactivation cancels their pending daily pipeline and plans nothing new.
func (h *EnrollmentHandler) HandleDeactivateEnrollment(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.enrollments.Deactivate(r.Context(), userID); err != nil {
		core.Error(w, r, err)
		return
	}

	if _, err := h.planner.RescheduleUser(r.Context(), userID, time.Now().UTC()); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "enrollment deactivated", "user_id", userID)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"user_id": userID,
	}})
}

type progressRequest struct {
	DayIndex int    `json:"day_index" validate:"min=1"`
	ItemType string `json:"item_type" validate:"oneof=lesson quest"`
}

// HandleCompleteProgress marks a delivered item as finished by the user.
// Items that were never delivered cannot be completed; the deliveries marker
// is checked first so a stale or forged request does not invent progress.
func (h *EnrollmentHandler) HandleCompleteProgress(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "userID")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req progressRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	itemType := types.ItemType(req.ItemType)

	sent, err := h.deliveries.WasSent(r.Context(), userID, req.DayIndex, itemType)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !sent {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundDelivery,
			"item was not delivered to this user", nil))
		return
	}

	if err := h.progress.MarkCompleted(r.Context(), userID, req.DayIndex, itemType); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "progress completed",
		"user_id", userID, "day_index", req.DayIndex, "item_type", req.ItemType)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: map[string]any{
		"user_id":   userID,
		"day_index": req.DayIndex,
		"item_type": req.ItemType,
	}})
}

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"courseflow/internal/core"
	"courseflow/internal/types"
)

// LessonWriter persists lesson content keyed by day index.
type LessonWriter interface {
	Upsert(ctx context.Context, l *types.Lesson) error
}

// QuestWriter persists quest content keyed by day index.
type QuestWriter interface {
	Upsert(ctx context.Context, q *types.Quest) error
}

// QuestionnaireWriter persists questionnaires.
type QuestionnaireWriter interface {
	Create(ctx context.Context, q *types.Questionnaire) error
}

// ContentHandler exposes the admin content write surface. Upserting content
// bumps its updated_at, which rotates the version embedded in day job keys,
// so queued-but-unsent plans for the old version become stale and the next
// planning pass queues the fresh content.
type ContentHandler struct {
	lessons        LessonWriter
	quests         QuestWriter
	questionnaires QuestionnaireWriter
	validator      *core.Validator
	logger         *slog.Logger
}

func NewContentHandler(
	lessons LessonWriter,
	quests QuestWriter,
	questionnaires QuestionnaireWriter,
	val *core.Validator,
	logger *slog.Logger,
) *ContentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{
		lessons:        lessons,
		quests:         quests,
		questionnaires: questionnaires,
		validator:      val,
		logger:         logger,
	}
}

// RegisterRoutes mounts the content endpoints. Paths are relative to /v1.
func (h *ContentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/content/lessons", h.HandleUpsertLesson)
	r.Post("/content/quests", h.HandleUpsertQuest)
	r.Post("/content/questionnaires", h.HandleCreateQuestionnaire)
}

type lessonRequest struct {
	DayIndex     int    `json:"day_index" validate:"min=1"`
	Title        string `json:"title" validate:"required"`
	Description  string `json:"description"`
	VideoURL     string `json:"video_url" validate:"omitempty,url"`
	PointsViewed int    `json:"points_viewed" validate:"min=0"`
}

func (h *ContentHandler) HandleUpsertLesson(w http.ResponseWriter, r *http.Request) {
	var req lessonRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	lesson := &types.Lesson{
		DayIndex:     req.DayIndex,
		Title:        req.Title,
		Description:  req.Description,
		VideoURL:     req.VideoURL,
		PointsViewed: req.PointsViewed,
	}
	if err := h.lessons.Upsert(r.Context(), lesson); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "lesson upserted", "day_index", req.DayIndex)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: lesson})
}

type questRequest struct {
	DayIndex    int    `json:"day_index" validate:"min=1"`
	Prompt      string `json:"prompt" validate:"required"`
	Points      int    `json:"points" validate:"min=0"`
	PhotoFileID string `json:"photo_file_id"`
}

func (h *ContentHandler) HandleUpsertQuest(w http.ResponseWriter, r *http.Request) {
	var req questRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	quest := &types.Quest{
		DayIndex:    req.DayIndex,
		Prompt:      req.Prompt,
		Points:      req.Points,
		PhotoFileID: req.PhotoFileID,
	}
	if err := h.quests.Upsert(r.Context(), quest); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "quest upserted", "day_index", req.DayIndex)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: quest})
}

type questionnaireRequest struct {
	Question    string `json:"question" validate:"required"`
	Type        string `json:"qtype" validate:"oneof=manual daily"`
	DayIndex    *int   `json:"day_index" validate:"omitempty,min=1"`
	UseInCharts bool   `json:"use_in_charts"`
	Points      int    `json:"points" validate:"min=0"`
}

func (h *ContentHandler) HandleCreateQuestionnaire(w http.ResponseWriter, r *http.Request) {
	var req questionnaireRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	q := &types.Questionnaire{
		Question:    req.Question,
		Type:        types.QuestionnaireType(req.Type),
		DayIndex:    req.DayIndex,
		UseInCharts: req.UseInCharts,
		Points:      req.Points,
	}
	if err := h.questionnaires.Create(r.Context(), q); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "questionnaire created", "questionnaire_id", q.ID)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: q})
}

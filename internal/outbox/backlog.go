// Package outbox implements the delivery side of the pipeline: draining due
// jobs from the durable queue into the messaging transport, and the backlog
// reconstruction the daily reminder is built from.
package outbox

import (
	"context"
	"fmt"

	"courseflow/internal/types"
)

// BacklogContent is the content surface the reconstruction walks.
type BacklogContent interface {
	GetLessonByDay(ctx context.Context, dayIndex int) (*types.Lesson, error)
	GetQuestByDay(ctx context.Context, dayIndex int) (*types.Quest, error)
	ListQuestionnairesForDay(ctx context.Context, dayIndex int) ([]*types.Questionnaire, error)
}

// BacklogProgress reports what the user has completed.
type BacklogProgress interface {
	HasViewedLesson(ctx context.Context, userID int64, dayIndex int) (bool, error)
	HasQuestAnswer(ctx context.Context, userID int64, dayIndex int) (bool, error)
	HasQuestionnaireResponse(ctx context.Context, questionnaireID, userID int64) (bool, error)
}

// BacklogBuilder reconstructs a user's unfinished items across all course
// days up to a point. It is evaluated when a reminder job runs, not when it
// is planned, so anything the user finished in between silently drops out.
type BacklogBuilder struct {
	content  BacklogContent
	progress BacklogProgress
}

// NewBacklogBuilder creates a BacklogBuilder.
func NewBacklogBuilder(content BacklogContent, progress BacklogProgress) *BacklogBuilder {
	return &BacklogBuilder{content: content, progress: progress}
}

// Collect walks days 1 through dayIndex and returns every unfinished item:
// delivered-but-unviewed lessons, unanswered quests, and unanswered day
// questionnaires. The First* pointers name the oldest unresolved day per
// category.
func (b *BacklogBuilder) Collect(ctx context.Context, userID int64, dayIndex int) (*types.Backlog, error) {
	backlog := &types.Backlog{}

	for d := 1; d <= dayIndex; d++ {
		lesson, err := b.content.GetLessonByDay(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("loading lesson for day %d: %w", d, err)
		}
		if lesson != nil {
			viewed, err := b.progress.HasViewedLesson(ctx, userID, d)
			if err != nil {
				return nil, fmt.Errorf("checking lesson progress for day %d: %w", d, err)
			}
			if !viewed {
				backlog.Pending = append(backlog.Pending, fmt.Sprintf("Day %d: lesson not marked viewed", d))
				if backlog.FirstLessonDay == nil {
					day := d
					backlog.FirstLessonDay = &day
				}
			}
		}

		quest, err := b.content.GetQuestByDay(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("loading quest for day %d: %w", d, err)
		}
		if quest != nil {
			answered, err := b.progress.HasQuestAnswer(ctx, userID, d)
			if err != nil {
				return nil, fmt.Errorf("checking quest progress for day %d: %w", d, err)
			}
			if !answered {
				backlog.Pending = append(backlog.Pending, fmt.Sprintf("Day %d: quest has no answer", d))
				if backlog.FirstQuestDay == nil {
					day := d
					backlog.FirstQuestDay = &day
				}
			}
		}

		questionnaires, err := b.content.ListQuestionnairesForDay(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("loading questionnaires for day %d: %w", d, err)
		}
		for _, q := range questionnaires {
			answered, err := b.progress.HasQuestionnaireResponse(ctx, q.ID, userID)
			if err != nil {
				return nil, fmt.Errorf("checking questionnaire %d response: %w", q.ID, err)
			}
			if !answered {
				backlog.Pending = append(backlog.Pending, fmt.Sprintf("Day %d: questionnaire has no answer", d))
				if backlog.FirstQuestionnaireDay == nil {
					day := d
					id := q.ID
					backlog.FirstQuestionnaireDay = &day
					backlog.FirstQuestionnaireID = &id
				}
				break
			}
		}
	}

	return backlog, nil
}

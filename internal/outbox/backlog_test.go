package outbox

import (
	"context"
	"testing"

	"courseflow/internal/types"
)

type fakeContent struct {
	lessons        map[int]*types.Lesson
	quests         map[int]*types.Quest
	questionnaires map[int][]*types.Questionnaire
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		lessons:        map[int]*types.Lesson{},
		quests:         map[int]*types.Quest{},
		questionnaires: map[int][]*types.Questionnaire{},
	}
}

func (f *fakeContent) GetLessonByDay(_ context.Context, day int) (*types.Lesson, error) {
	return f.lessons[day], nil
}

func (f *fakeContent) GetQuestByDay(_ context.Context, day int) (*types.Quest, error) {
	return f.quests[day], nil
}

func (f *fakeContent) ListQuestionnairesForDay(_ context.Context, day int) ([]*types.Questionnaire, error) {
	return f.questionnaires[day], nil
}

type progressKey struct {
	userID int64
	day    int
}

type fakeProgress struct {
	viewed    map[progressKey]bool
	answered  map[progressKey]bool
	responses map[int64]bool
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{
		viewed:    map[progressKey]bool{},
		answered:  map[progressKey]bool{},
		responses: map[int64]bool{},
	}
}

func (f *fakeProgress) HasViewedLesson(_ context.Context, userID int64, day int) (bool, error) {
	return f.viewed[progressKey{userID, day}], nil
}

func (f *fakeProgress) HasQuestAnswer(_ context.Context, userID int64, day int) (bool, error) {
	return f.answered[progressKey{userID, day}], nil
}

func (f *fakeProgress) HasQuestionnaireResponse(_ context.Context, questionnaireID, userID int64) (bool, error) {
	return f.responses[questionnaireID], nil
}

func TestBacklogBuilder_Collect(t *testing.T) {
	content := newFakeContent()
	progress := newFakeProgress()
	b := NewBacklogBuilder(content, progress)

	content.lessons[1] = &types.Lesson{ID: 101, DayIndex: 1}
	content.lessons[2] = &types.Lesson{ID: 102, DayIndex: 2}
	content.quests[2] = &types.Quest{ID: 202, DayIndex: 2}
	content.quests[3] = &types.Quest{ID: 203, DayIndex: 3}
	content.questionnaires[3] = []*types.Questionnaire{{ID: 9}}

	// Day 1 fully done; day 2 lesson viewed but quest unanswered; day 3
	// quest and questionnaire both open.
	progress.viewed[progressKey{42, 1}] = true
	progress.viewed[progressKey{42, 2}] = true

	backlog, err := b.Collect(context.Background(), 42, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backlog.Empty() {
		t.Fatal("backlog unexpectedly empty")
	}
	if len(backlog.Pending) != 3 {
		t.Fatalf("pending = %v, want 3 items", backlog.Pending)
	}
	if backlog.FirstLessonDay != nil {
		t.Errorf("FirstLessonDay = %v, want nil", *backlog.FirstLessonDay)
	}
	if backlog.FirstQuestDay == nil || *backlog.FirstQuestDay != 2 {
		t.Errorf("FirstQuestDay = %v, want 2", backlog.FirstQuestDay)
	}
	if backlog.FirstQuestionnaireDay == nil || *backlog.FirstQuestionnaireDay != 3 {
		t.Errorf("FirstQuestionnaireDay = %v, want 3", backlog.FirstQuestionnaireDay)
	}
	if backlog.FirstQuestionnaireID == nil || *backlog.FirstQuestionnaireID != 9 {
		t.Errorf("FirstQuestionnaireID = %v, want 9", backlog.FirstQuestionnaireID)
	}
}

func TestBacklogBuilder_Collect_AllDoneIsEmpty(t *testing.T) {
	content := newFakeContent()
	progress := newFakeProgress()
	b := NewBacklogBuilder(content, progress)

	content.lessons[1] = &types.Lesson{ID: 101, DayIndex: 1}
	content.questionnaires[1] = []*types.Questionnaire{{ID: 9}}
	progress.viewed[progressKey{42, 1}] = true
	progress.responses[9] = true

	backlog, err := b.Collect(context.Background(), 42, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !backlog.Empty() {
		t.Errorf("backlog = %v, want empty", backlog.Pending)
	}
}

func TestBacklogBuilder_Collect_DaysWithoutContentAreSkipped(t *testing.T) {
	content := newFakeContent()
	progress := newFakeProgress()
	b := NewBacklogBuilder(content, progress)

	content.lessons[5] = &types.Lesson{ID: 105, DayIndex: 5}

	backlog, err := b.Collect(context.Background(), 42, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backlog.Pending) != 1 {
		t.Fatalf("pending = %v, want 1 item", backlog.Pending)
	}
	if backlog.FirstLessonDay == nil || *backlog.FirstLessonDay != 5 {
		t.Errorf("FirstLessonDay = %v, want 5", backlog.FirstLessonDay)
	}
}

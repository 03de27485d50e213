package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"courseflow/internal/types"
)

func questionnaireScan(id int64, question, qtype string, dayIndex *int) func(dest ...any) {
	return func(dest ...any) {
		*dest[0].(*int64) = id
		*dest[1].(*string) = question
		*dest[2].(*string) = qtype
		*dest[3].(**int) = dayIndex
		*dest[4].(*bool) = false
		*dest[5].(*int) = 0
		*dest[6].(**int64) = nil
		*dest[7].(*time.Time) = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		*dest[8].(*time.Time) = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	}
}

func TestQuestionnaireRepository_ListForDay_IncludesGlobalDaily(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewQuestionnaireRepository(dbx)

	day := 3
	rows := &mockRows{scans: []func(dest ...any){
		questionnaireScan(11, "How was day 3?", "manual", &day),
		questionnaireScan(12, "How do you feel today?", "daily", nil),
	}}

	var gotSQL string
	var gotArgs []any
	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			gotSQL = args.Get(1).(string)
			gotArgs = args.Get(2).([]any)
		}).
		Return(rows, nil)

	out, err := repo.ListForDay(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, types.QuestionnaireManual, out[0].Type)
	require.NotNil(t, out[0].DayIndex)
	assert.Equal(t, 3, *out[0].DayIndex)

	assert.Equal(t, types.QuestionnaireDaily, out[1].Type)
	assert.Nil(t, out[1].DayIndex)

	// Global daily questionnaires have no day_index; the query must reach
	// them through the NULL branch, not the day-index match.
	assert.Contains(t, gotSQL, "day_index IS NULL")
	require.Len(t, gotArgs, 3)
	assert.Equal(t, 3, gotArgs[0])
	assert.ElementsMatch(t, []string{"manual", "daily"}, gotArgs[1].([]string))
}

func TestQuestionnaireRepository_GetByID_NotFound(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewQuestionnaireRepository(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), 99)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundQuestionnaire, appErr.Code)
}

func TestLessonRepository_GetByDay_MissingIsNil(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewLessonRepository(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	lesson, err := repo.GetByDay(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, lesson)
}

package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courseflow/internal/core"
	"courseflow/internal/types"
)

// --- Mocks ---

type mockHabitStore struct {
	habits      map[int64]*types.Habit
	created     []*types.Habit
	updated     []*types.Habit
	deactivated []int64
}

func newMockHabitStore(habits ...*types.Habit) *mockHabitStore {
	m := &mockHabitStore{habits: map[int64]*types.Habit{}}
	for _, h := range habits {
		m.habits[h.ID] = h
	}
	return m
}

func (m *mockHabitStore) GetByID(_ context.Context, id int64) (*types.Habit, error) {
	h, ok := m.habits[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundHabit, "habit not found", nil)
	}
	return h, nil
}

func (m *mockHabitStore) Create(_ context.Context, h *types.Habit) error {
	h.ID = int64(len(m.habits) + 1)
	m.habits[h.ID] = h
	m.created = append(m.created, h)
	return nil
}

func (m *mockHabitStore) Update(_ context.Context, h *types.Habit) error {
	m.habits[h.ID] = h
	m.updated = append(m.updated, h)
	return nil
}

func (m *mockHabitStore) Deactivate(_ context.Context, id int64) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

type mockHabitCanceller struct {
	cancelled []int64
}

func (m *mockHabitCanceller) CancelFutureForHabit(_ context.Context, h *types.Habit, _ time.Time) (int64, error) {
	m.cancelled = append(m.cancelled, h.ID)
	return 2, nil
}

type resolveCall struct {
	id     int64
	status types.OccurrenceStatus
}

type mockOccurrenceResolver struct {
	resolved []resolveCall
	err      error
}

func (m *mockOccurrenceResolver) Resolve(_ context.Context, id int64, status types.OccurrenceStatus, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.resolved = append(m.resolved, resolveCall{id: id, status: status})
	return nil
}

type mockPersonalStore struct {
	reminders   map[int64]*types.PersonalReminder
	created     []*types.PersonalReminder
	updated     []*types.PersonalReminder
	deactivated []int64
}

func newMockPersonalStore(reminders ...*types.PersonalReminder) *mockPersonalStore {
	m := &mockPersonalStore{reminders: map[int64]*types.PersonalReminder{}}
	for _, p := range reminders {
		m.reminders[p.ID] = p
	}
	return m
}

func (m *mockPersonalStore) GetByID(_ context.Context, id int64) (*types.PersonalReminder, error) {
	p, ok := m.reminders[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundReminder, "reminder not found", nil)
	}
	return p, nil
}

func (m *mockPersonalStore) Create(_ context.Context, p *types.PersonalReminder) error {
	p.ID = int64(len(m.reminders) + 1)
	m.reminders[p.ID] = p
	m.created = append(m.created, p)
	return nil
}

func (m *mockPersonalStore) Update(_ context.Context, p *types.PersonalReminder) error {
	m.reminders[p.ID] = p
	m.updated = append(m.updated, p)
	return nil
}

func (m *mockPersonalStore) Deactivate(_ context.Context, id int64) error {
	m.deactivated = append(m.deactivated, id)
	return nil
}

type mockPersonalCanceller struct {
	cancelled []int64
}

func (m *mockPersonalCanceller) CancelForReminder(_ context.Context, p *types.PersonalReminder, _ time.Time) (int64, error) {
	m.cancelled = append(m.cancelled, p.ID)
	return 1, nil
}

func makeReminderRouter(
	habits *mockHabitStore,
	habitPlanner *mockHabitCanceller,
	personal *mockPersonalStore,
	personalPlanner *mockPersonalCanceller,
) http.Handler {
	h := NewReminderHandler(habits, habitPlanner, &mockOccurrenceResolver{}, personal, personalPlanner, core.NewValidator(), testLogger())
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)
	return r
}

func makeOccurrenceRouter(resolver *mockOccurrenceResolver) http.Handler {
	h := NewReminderHandler(newMockHabitStore(), &mockHabitCanceller{}, resolver,
		newMockPersonalStore(), &mockPersonalCanceller{}, core.NewValidator(), testLogger())
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)
	return r
}

// --- Habit tests ---

func TestHandleCreateHabit(t *testing.T) {
	habits := newMockHabitStore()
	router := makeReminderRouter(habits, &mockHabitCanceller{}, newMockPersonalStore(), &mockPersonalCanceller{})

	rec := postJSON(t, router, "/v1/habits", map[string]any{
		"user_id":     42,
		"title":       "Morning stretch",
		"remind_time": "08:00",
		"frequency":   "weekdays",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, habits.created, 1)
	assert.Equal(t, types.FreqWeekdays, habits.created[0].Frequency)
	assert.True(t, habits.created[0].IsActive)
}

func TestHandleCreateHabit_RejectsBadFrequency(t *testing.T) {
	habits := newMockHabitStore()
	router := makeReminderRouter(habits, &mockHabitCanceller{}, newMockPersonalStore(), &mockPersonalCanceller{})

	rec := postJSON(t, router, "/v1/habits", map[string]any{
		"user_id":     42,
		"title":       "Morning stretch",
		"remind_time": "08:00",
		"frequency":   "fortnightly",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, habits.created)
}

func TestHandleUpdateHabit_CancelsOldPlans(t *testing.T) {
	habit := &types.Habit{ID: 5, UserID: 42, Title: "Old", RemindTime: "08:00", Frequency: types.FreqDaily, IsActive: true}
	habits := newMockHabitStore(habit)
	canceller := &mockHabitCanceller{}
	router := makeReminderRouter(habits, canceller, newMockPersonalStore(), &mockPersonalCanceller{})

	rec := requestJSON(t, router, http.MethodPut, "/v1/habits/5", map[string]any{
		"user_id":     42,
		"title":       "Evening stretch",
		"remind_time": "19:00",
		"frequency":   "daily",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{5}, canceller.cancelled)
	require.Len(t, habits.updated, 1)
	assert.Equal(t, "Evening stretch", habits.updated[0].Title)
	assert.Equal(t, "19:00", habits.updated[0].RemindTime)
}

func TestHandleDeactivateHabit_Cascades(t *testing.T) {
	habit := &types.Habit{ID: 5, UserID: 42, Title: "Stretch", RemindTime: "08:00", Frequency: types.FreqDaily, IsActive: true}
	habits := newMockHabitStore(habit)
	canceller := &mockHabitCanceller{}
	router := makeReminderRouter(habits, canceller, newMockPersonalStore(), &mockPersonalCanceller{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/habits/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{5}, habits.deactivated)
	assert.Equal(t, []int64{5}, canceller.cancelled)
}

func TestHandleDeactivateHabit_NotFound(t *testing.T) {
	router := makeReminderRouter(newMockHabitStore(), &mockHabitCanceller{}, newMockPersonalStore(), &mockPersonalCanceller{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/habits/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Occurrence tests ---

func TestHandleResolveOccurrence(t *testing.T) {
	resolver := &mockOccurrenceResolver{}
	router := makeOccurrenceRouter(resolver)

	rec := postJSON(t, router, "/v1/habits/occurrences/17/resolve", map[string]any{
		"action": "done",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resolver.resolved, 1)
	assert.Equal(t, resolveCall{id: 17, status: types.OccurrenceDone}, resolver.resolved[0])
}

func TestHandleResolveOccurrence_Skipped(t *testing.T) {
	resolver := &mockOccurrenceResolver{}
	router := makeOccurrenceRouter(resolver)

	rec := postJSON(t, router, "/v1/habits/occurrences/17/resolve", map[string]any{
		"action": "skipped",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resolver.resolved, 1)
	assert.Equal(t, types.OccurrenceSkipped, resolver.resolved[0].status)
}

func TestHandleResolveOccurrence_RejectsUnknownAction(t *testing.T) {
	resolver := &mockOccurrenceResolver{}
	router := makeOccurrenceRouter(resolver)

	rec := postJSON(t, router, "/v1/habits/occurrences/17/resolve", map[string]any{
		"action": "snoozed",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, resolver.resolved)
}

func TestHandleResolveOccurrence_NotFound(t *testing.T) {
	resolver := &mockOccurrenceResolver{
		err: types.NewAppError(types.ErrCodeNotFoundHabit, "habit occurrence not found", nil),
	}
	router := makeOccurrenceRouter(resolver)

	rec := postJSON(t, router, "/v1/habits/occurrences/99/resolve", map[string]any{
		"action": "done",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- Personal reminder tests ---

func TestHandleCreateReminder(t *testing.T) {
	personal := newMockPersonalStore()
	router := makeReminderRouter(newMockHabitStore(), &mockHabitCanceller{}, personal, &mockPersonalCanceller{})

	startAt := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Minute)
	rec := postJSON(t, router, "/v1/reminders", map[string]any{
		"user_id":  42,
		"text":     "Call the dentist",
		"start_at": startAt.Format(time.RFC3339),
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, personal.created, 1)
	assert.Equal(t, "Call the dentist", personal.created[0].Text)
	assert.True(t, personal.created[0].StartAt.Equal(startAt))
}

func TestHandleCreateReminder_RejectsPastStart(t *testing.T) {
	personal := newMockPersonalStore()
	router := makeReminderRouter(newMockHabitStore(), &mockHabitCanceller{}, personal, &mockPersonalCanceller{})

	rec := postJSON(t, router, "/v1/reminders", map[string]any{
		"user_id":  42,
		"text":     "Too late",
		"start_at": time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, personal.created)
}

func TestHandleUpdateReminder_CancelsOldJob(t *testing.T) {
	oldStart := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Minute)
	reminder := &types.PersonalReminder{ID: 3, UserID: 42, Text: "Ping", StartAt: oldStart, IsActive: true}
	personal := newMockPersonalStore(reminder)
	canceller := &mockPersonalCanceller{}
	router := makeReminderRouter(newMockHabitStore(), &mockHabitCanceller{}, personal, canceller)

	newStart := oldStart.Add(72 * time.Hour)
	rec := requestJSON(t, router, http.MethodPut, "/v1/reminders/3", map[string]any{
		"user_id":  42,
		"text":     "Call the dentist instead",
		"start_at": newStart.Format(time.RFC3339),
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3}, canceller.cancelled)
	require.Len(t, personal.updated, 1)
	assert.Equal(t, "Call the dentist instead", personal.updated[0].Text)
	assert.True(t, personal.updated[0].StartAt.Equal(newStart))
	assert.Equal(t, newStart.Format("15:04"), personal.updated[0].RemindTime)
}

func TestHandleUpdateReminder_RejectsPastStart(t *testing.T) {
	reminder := &types.PersonalReminder{ID: 3, UserID: 42, Text: "Ping", StartAt: time.Now().UTC().Add(time.Hour), IsActive: true}
	personal := newMockPersonalStore(reminder)
	canceller := &mockPersonalCanceller{}
	router := makeReminderRouter(newMockHabitStore(), &mockHabitCanceller{}, personal, canceller)

	rec := requestJSON(t, router, http.MethodPut, "/v1/reminders/3", map[string]any{
		"user_id":  42,
		"text":     "Too late",
		"start_at": time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, canceller.cancelled)
	assert.Empty(t, personal.updated)
}

func TestHandleUpdateReminder_NotFound(t *testing.T) {
	router := makeReminderRouter(newMockHabitStore(), &mockHabitCanceller{}, newMockPersonalStore(), &mockPersonalCanceller{})

	rec := requestJSON(t, router, http.MethodPut, "/v1/reminders/99", map[string]any{
		"user_id":  42,
		"text":     "Ghost",
		"start_at": time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleDeactivateReminder_Cascades(t *testing.T) {
	reminder := &types.PersonalReminder{ID: 3, UserID: 42, Text: "Ping", StartAt: time.Now().UTC().Add(time.Hour), IsActive: true}
	personal := newMockPersonalStore(reminder)
	canceller := &mockPersonalCanceller{}
	router := makeReminderRouter(newMockHabitStore(), &mockHabitCanceller{}, personal, canceller)

	req := httptest.NewRequest(http.MethodDelete, "/v1/reminders/3", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3}, personal.deactivated)
	assert.Equal(t, []int64{3}, canceller.cancelled)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
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

type mockUserWriter struct {
	upserted  []*types.User
	timezones map[int64]string
}

func (m *mockUserWriter) Upsert(_ context.Context, u *types.User) error {
	m.upserted = append(m.upserted, u)
	return nil
}

func (m *mockUserWriter) SetTimezone(_ context.Context, userID int64, tz string) error {
	if m.timezones == nil {
		m.timezones = map[int64]string{}
	}
	m.timezones[userID] = tz
	return nil
}

type mockEnrollmentWriter struct {
	upserted    []*types.Enrollment
	deactivated []int64
}

func (m *mockEnrollmentWriter) Upsert(_ context.Context, e *types.Enrollment) error {
	m.upserted = append(m.upserted, e)
	return nil
}

func (m *mockEnrollmentWriter) Deactivate(_ context.Context, userID int64) error {
	m.deactivated = append(m.deactivated, userID)
	return nil
}

type mockRescheduler struct {
	rescheduled []int64
}

func (m *mockRescheduler) RescheduleUser(_ context.Context, userID int64, _ time.Time) (int, error) {
	m.rescheduled = append(m.rescheduled, userID)
	return 4, nil
}

type progressMark struct {
	userID   int64
	dayIndex int
	itemType types.ItemType
}

type mockProgressWriter struct {
	marked []progressMark
}

func (m *mockProgressWriter) MarkCompleted(_ context.Context, userID int64, dayIndex int, itemType types.ItemType) error {
	m.marked = append(m.marked, progressMark{userID: userID, dayIndex: dayIndex, itemType: itemType})
	return nil
}

type mockDeliveryReader struct {
	sent map[progressMark]bool
}

func (m *mockDeliveryReader) WasSent(_ context.Context, userID int64, dayIndex int, itemType types.ItemType) (bool, error) {
	return m.sent[progressMark{userID: userID, dayIndex: dayIndex, itemType: itemType}], nil
}

func makeEnrollmentRouter(users *mockUserWriter, enrollments *mockEnrollmentWriter, planner *mockRescheduler) http.Handler {
	return makeProgressRouter(users, enrollments, planner, &mockProgressWriter{}, &mockDeliveryReader{})
}

func makeProgressRouter(
	users *mockUserWriter,
	enrollments *mockEnrollmentWriter,
	planner *mockRescheduler,
	progress *mockProgressWriter,
	deliveries *mockDeliveryReader,
) http.Handler {
	h := NewEnrollmentHandler(users, enrollments, planner, progress, deliveries, core.NewValidator(), testLogger())
	r := chi.NewRouter()
	r.Route("/v1", h.RegisterRoutes)
	return r
}

func requestJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestHandleUpsertEnrollment(t *testing.T) {
	users := &mockUserWriter{}
	enrollments := &mockEnrollmentWriter{}
	planner := &mockRescheduler{}
	router := makeEnrollmentRouter(users, enrollments, planner)

	rec := requestJSON(t, router, http.MethodPut, "/v1/users/42/enrollment", map[string]any{
		"delivery_time": "21:00",
		"timezone":      "Europe/Moscow",
		"username":      "anna",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, users.upserted, 1)
	assert.Equal(t, int64(42), users.upserted[0].ID)
	assert.Equal(t, "Europe/Moscow", users.timezones[42])

	require.Len(t, enrollments.upserted, 1)
	assert.Equal(t, "21:00", enrollments.upserted[0].DeliveryTime)
	assert.True(t, enrollments.upserted[0].IsActive)

	assert.Equal(t, []int64{42}, planner.rescheduled)
}

func TestHandleUpsertEnrollment_RejectsBadDeliveryTime(t *testing.T) {
	enrollments := &mockEnrollmentWriter{}
	planner := &mockRescheduler{}
	router := makeEnrollmentRouter(&mockUserWriter{}, enrollments, planner)

	rec := requestJSON(t, router, http.MethodPut, "/v1/users/42/enrollment", map[string]any{
		"delivery_time": "9pm",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, enrollments.upserted)
	assert.Empty(t, planner.rescheduled)
}

func TestHandleUpsertEnrollment_RejectsBadTimezone(t *testing.T) {
	router := makeEnrollmentRouter(&mockUserWriter{}, &mockEnrollmentWriter{}, &mockRescheduler{})

	rec := requestJSON(t, router, http.MethodPut, "/v1/users/42/enrollment", map[string]any{
		"delivery_time": "21:00",
		"timezone":      "Mars/Olympus",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleDeactivateEnrollment(t *testing.T) {
	enrollments := &mockEnrollmentWriter{}
	planner := &mockRescheduler{}
	router := makeEnrollmentRouter(&mockUserWriter{}, enrollments, planner)

	req := httptest.NewRequest(http.MethodDelete, "/v1/users/42/enrollment", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{42}, enrollments.deactivated)
	assert.Equal(t, []int64{42}, planner.rescheduled)
}

func TestHandleCompleteProgress(t *testing.T) {
	progress := &mockProgressWriter{}
	deliveries := &mockDeliveryReader{sent: map[progressMark]bool{
		{userID: 42, dayIndex: 3, itemType: types.ItemLesson}: true,
	}}
	router := makeProgressRouter(&mockUserWriter{}, &mockEnrollmentWriter{}, &mockRescheduler{}, progress, deliveries)

	rec := requestJSON(t, router, http.MethodPost, "/v1/users/42/progress", map[string]any{
		"day_index": 3,
		"item_type": "lesson",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, progress.marked, 1)
	assert.Equal(t, progressMark{userID: 42, dayIndex: 3, itemType: types.ItemLesson}, progress.marked[0])
}

func TestHandleCompleteProgress_NotDelivered(t *testing.T) {
	progress := &mockProgressWriter{}
	router := makeProgressRouter(&mockUserWriter{}, &mockEnrollmentWriter{}, &mockRescheduler{}, progress, &mockDeliveryReader{})

	rec := requestJSON(t, router, http.MethodPost, "/v1/users/42/progress", map[string]any{
		"day_index": 3,
		"item_type": "lesson",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, progress.marked)
}

func TestHandleCompleteProgress_RejectsBadItemType(t *testing.T) {
	progress := &mockProgressWriter{}
	router := makeProgressRouter(&mockUserWriter{}, &mockEnrollmentWriter{}, &mockRescheduler{}, progress, &mockDeliveryReader{})

	rec := requestJSON(t, router, http.MethodPost, "/v1/users/42/progress", map[string]any{
		"day_index": 3,
		"item_type": "habit",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, progress.marked)
}

package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProbe struct {
	name string
	err  error
}

func (p stubProbe) Name() string                  { return p.name }
func (p stubProbe) Check(_ context.Context) error { return p.err }

func TestHandleHealth_NoProbes(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()

	s.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealth_AllHealthy(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{stubProbe{name: "database"}}
	rec := httptest.NewRecorder()

	s.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
}

func TestHandleHealth_UnhealthyProbe(t *testing.T) {
	s := newTestServer(t)
	s.HealthProbes = []HealthProbe{
		stubProbe{name: "database", err: errors.New("connection refused")},
	}
	rec := httptest.NewRecorder()

	s.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "connection refused", resp.Components["database"].Message)
}

package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the combined probe runtime.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a critical dependency checked by GET /health.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all registered probes under a 2 second deadline. Any
// failing probe yields 503 with per-component detail; otherwise 200.
// This endpoint is exempt from API key auth.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	components := make(map[string]componentStatus, len(s.HealthProbes))
	allHealthy := true

	for _, probe := range s.HealthProbes {
		if err := probe.Check(ctx); err != nil {
			allHealthy = false
			components[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
		} else {
			components[probe.Name()] = componentStatus{Status: "healthy"}
		}
	}

	resp := healthResponse{Components: components}
	if allHealthy {
		resp.Status = "healthy"
		JSON(w, r, http.StatusOK, resp)
		return
	}
	resp.Status = "unhealthy"
	JSON(w, r, http.StatusServiceUnavailable, resp)
}

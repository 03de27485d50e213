// Package core provides the HTTP chassis for the Courseflow admin API.
// It builds a chi router with the cross-cutting middleware chain (panic
// recovery, request correlation, logging, API key auth) so that domain
// handlers only deal with their own request semantics.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"courseflow/internal/config"
)

// Server bundles the dependencies of the admin API. Handlers are registered
// via V1RouteRegistrars so handler packages can depend on core without a
// cycle.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are checked by GET /health. Typically just the database.
	HealthProbes []HealthProbe

	// V1RouteRegistrars attach domain handler routes under /v1.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer validates the critical dependencies and prepares the router.
// The caller mounts routes afterwards with MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying mux for tests and route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}

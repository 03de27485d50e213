package core

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the global middleware chain, the /v1 handler groups
// and the health endpoint.
//
// Middleware order matters: Recoverer first so every panic is caught,
// RequestID before the logger so log lines carry the correlation ID, and
// auth last so rejected requests are still logged.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(s.APIKeyMiddleware)

	s.router.Route("/v1", s.mountV1)

	s.router.Get("/health", s.HandleHealth)
}

func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

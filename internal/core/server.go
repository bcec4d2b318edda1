// Package core provides the HTTP chassis for the ClinicPulse trigger
// surface: a chi router with request ID propagation, structured request
// logging, panic recovery, JSON response envelopes, and request validation.
// Domain handlers mount on top of it.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clinicpulse/internal/config"
)

// Server bundles the chassis dependencies so handlers and tests can inject
// their own.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer creates the chassis and wires the base middleware chain. The
// caller mounts routes on Router() after construction.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	// Recoverer is outermost so panics anywhere in the chain are caught.
	s.router.Use(s.Recoverer)
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(logger, []string{"Authorization", "Cookie"}))

	s.router.Get("/health", s.HandleHealth)

	return s, nil
}

// Handler returns the router as an http.Handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

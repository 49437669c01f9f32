// Package core is the HTTP chassis of the runcoach API. It owns the chi
// router, the middleware chain, JSON response helpers, request validation
// and health checks. Domain handlers live in internal/api/handlers and are
// mounted under /v1 through V1RouteRegistrars.
package core

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"runcoach/internal/config"
)

// MetricsCollector records API request telemetry. route is the chi route
// pattern, not the raw path, so ids never become label values.
type MetricsCollector interface {
	RecordRequest(method, route, status string, duration time.Duration)
}

// Server carries the dependencies of the API. Optional fields may be set
// between NewServer and MountRoutes.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// Metrics may be nil.
	Metrics MetricsCollector
	// MetricsHandler is mounted at GET /metrics when non-nil.
	MetricsHandler http.Handler
	HealthProbes   []HealthProbe

	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer validates the mandatory dependencies and prepares an empty
// router. The caller mounts routes with MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router wrapped in gzip response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Router exposes the chi.Mux for tests and route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

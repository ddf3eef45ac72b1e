// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"simplane/internal/controller/handlers"
	"simplane/internal/controller/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options configures the controller's routes.
type Options struct {
	// InternalToken authenticates the monitor. Empty disables /internal.
	InternalToken string

	// SubmitRateLimit is submissions per second per client; 0 disables it.
	SubmitRateLimit float64
	SubmitRateBurst int

	// Metrics serves /metrics when set.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewRouter(h, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// NewRouter builds the route table.
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := middleware.NewRateLimiter(middleware.WithLimit(opts.SubmitRateLimit, opts.SubmitRateBurst))

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/simulations", func(r chi.Router) {
		r.With(limiter.Middleware()).Post("/", h.SubmitSimulation)

		r.Get("/queued", h.ListQueued)
		r.Get("/running", h.ListRunning)
		r.Get("/finished", h.ListFinished)
		r.Get("/min_drag/{n}", h.ListTopByScore)
		r.Get("/recent/{n}", h.ListRecent)

		r.Get("/{id}", h.GetSimulation)
		r.Get("/{id}/progress", h.GetProgress)
		r.Get("/{id}/log", h.GetLog)
		r.Put("/{id}/export", h.MarkExport)
		r.Delete("/{id}/export", h.ClearExport)
	})

	r.Get("/avatars/next", h.NextAvatar)
	r.Get("/exports/next", h.NextExport)
	r.Get("/archive", h.ListArchive)

	// Internal endpoints
	// These are called by the monitor.
	r.Route("/internal", func(r chi.Router) {
		r.Use(middleware.RequireInternalAuth(opts.InternalToken))
		r.Put("/simulations/{id}/started", h.InternalMarkStarted)
		r.Put("/simulations/{id}/result", h.InternalRecordResult)
	})

	return r
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

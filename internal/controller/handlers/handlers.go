// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"simplane/internal/avatar"
	"simplane/internal/launcher"
	"simplane/internal/logger"
	"simplane/internal/status"
	"simplane/internal/store"
	"simplane/internal/tracker"
	"simplane/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Service is the subset of the tracker the handlers need.
type Service interface {
	Submit(ctx context.Context, req tracker.SubmitRequest) (*tracker.SubmitResult, error)
	Job(ctx context.Context, id int) (*tracker.JobView, error)
	State(ctx context.Context, id int) (status.State, error)
	Progress(ctx context.Context, id int) (int, error)
	LogTail(ctx context.Context, id, n int) ([]string, error)

	Queued(ctx context.Context) ([]*store.Job, error)
	Running(ctx context.Context) ([]*store.Job, error)
	Finished(ctx context.Context) ([]*store.Job, error)
	TopByScore(ctx context.Context, n int) ([]*store.Job, error)
	MostRecent(ctx context.Context, n int) ([]*store.Job, error)
	NextAvatar(ctx context.Context) (int, error)

	MarkStarted(ctx context.Context, id int, handle string) error
	Complete(ctx context.Context, id int, score *float64) error

	MarkReadyToExport(ctx context.Context, id int) error
	ClearReadyToExport(ctx context.Context, id int) error
	NextToExport(ctx context.Context) (int, bool, error)
	Archive(ctx context.Context, limit int) ([]store.Result, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	svc      Service
	pinger   Pinger
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates a new Handlers instance. pinger may be nil when the controller
// runs without a results archive.
func New(svc Service, pinger Pinger, l *slog.Logger) *Handlers {
	if l == nil {
		l = slog.Default()
	}
	return &Handlers{
		svc:      svc,
		pinger:   pinger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   l,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, status int, code string) {
	h.respondJson(w, status, api.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// fail maps a service error to a response.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var subErr *launcher.SubmissionError
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, "Simulation not found", http.StatusNotFound, api.CodeNotFound)
	case errors.Is(err, avatar.ErrPoolExhausted):
		h.httpError(w, "Too many simulations on screen, try again later", http.StatusConflict, api.CodePoolExhausted)
	case errors.As(err, &subErr):
		logger.FromContext(r.Context(), h.logger).Error("launcher rejected submission",
			"launcher", subErr.Launcher, "output", subErr.Output, "error", subErr.Err)
		h.httpError(w, "Failed to submit simulation", http.StatusBadGateway, api.CodeSubmissionError)
	default:
		logger.FromContext(r.Context(), h.logger).Error("request failed", "path", r.URL.Path, "error", err)
		h.httpError(w, "Internal server error", http.StatusInternalServerError, "")
	}
}

// idParam parses the {id} path parameter.
func (h *Handlers) idParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		h.httpError(w, "Invalid simulation id", http.StatusBadRequest, api.CodeInvalidRequest)
		return 0, false
	}
	return id, true
}

// countParam parses a non-negative count from the named path parameter.
func (h *Handlers) countParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 0 {
		h.httpError(w, "Invalid count", http.StatusBadRequest, api.CodeInvalidRequest)
		return 0, false
	}
	return n, true
}

// queryInt reads an optional positive integer query parameter, capped at max.
func queryInt(r *http.Request, name string, def, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

func toSimulation(j *store.Job) api.Simulation {
	return api.Simulation{
		ID:        j.ID,
		Name:      j.Name,
		Contact:   j.Contact,
		AvatarID:  j.AvatarID,
		Handle:    j.ExternalHandle,
		Score:     j.Score,
		CreatedAt: j.CreatedAt,
	}
}

func toSimulations(jobs []*store.Job) []api.Simulation {
	out := make([]api.Simulation, len(jobs))
	for i, j := range jobs {
		out[i] = toSimulation(j)
	}
	return out
}

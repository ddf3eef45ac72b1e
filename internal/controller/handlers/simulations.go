package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"simplane/internal/store"
	"simplane/internal/tracker"
	"simplane/pkg/api"

	"github.com/go-playground/validator/v10"
)

const (
	defaultLogLines = 50
	maxLogLines     = 1000
)

// SubmitSimulation handles POST /simulations
// Called by the capture station with the visitor's name and outline.
func (h *Handlers) SubmitSimulation(w http.ResponseWriter, r *http.Request) {
	var req api.SubmitSimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest, api.CodeInvalidRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
			Error:   "Invalid simulation",
			Code:    api.CodeInvalidRequest,
			Details: validationDetails(err),
		})
		return
	}

	contour := make([]store.Point, len(req.Contour))
	for i, p := range req.Contour {
		contour[i] = store.Point{X: p.X, Y: p.Y}
	}

	res, err := h.svc.Submit(r.Context(), tracker.SubmitRequest{
		Name:    strings.TrimSpace(req.Name),
		Contact: strings.TrimSpace(req.Contact),
		Contour: contour,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respondJson(w, http.StatusCreated, api.SubmitSimulationResponse{
		ID:       res.ID,
		AvatarID: res.AvatarID,
		Handle:   res.Handle,
	})
}

func validationDetails(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag())
	}
	return strings.Join(msgs, "; ")
}

// GetSimulation handles GET /simulations/{id}
func (h *Handlers) GetSimulation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	view, err := h.svc.Job(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	contour := make([]api.Point, len(view.Contour))
	for i, p := range view.Contour {
		contour[i] = api.Point{X: p.X, Y: p.Y}
	}
	h.respondJson(w, http.StatusOK, api.SimulationDetail{
		Simulation:    toSimulation(view.Job),
		State:         string(view.State),
		Progress:      view.Progress,
		Nodes:         view.Nodes,
		ReadyToExport: view.ReadyToExport,
		Contour:       contour,
	})
}

// GetProgress handles GET /simulations/{id}/progress
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	pct, err := h.svc.Progress(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	state, err := h.svc.State(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.ProgressResponse{ID: id, State: string(state), Progress: pct})
}

// GetLog handles GET /simulations/{id}/log?lines=N
// Returns the last lines of the solver output.
func (h *Handlers) GetLog(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	lines, err := queryInt(r, "lines", defaultLogLines, maxLogLines)
	if err != nil {
		h.httpError(w, "Invalid lines parameter", http.StatusBadRequest, api.CodeInvalidRequest)
		return
	}

	tail, err := h.svc.LogTail(r.Context(), id, lines)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if tail == nil {
		tail = []string{}
	}

	h.respondJson(w, http.StatusOK, api.LogTailResponse{ID: id, Lines: tail})
}

// ListQueued handles GET /simulations/queued
func (h *Handlers) ListQueued(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.Queued(r.Context())
	h.list(w, r, jobs, err)
}

// ListRunning handles GET /simulations/running
func (h *Handlers) ListRunning(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.Running(r.Context())
	h.list(w, r, jobs, err)
}

// ListFinished handles GET /simulations/finished
func (h *Handlers) ListFinished(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.Finished(r.Context())
	h.list(w, r, jobs, err)
}

// ListTopByScore handles GET /simulations/min_drag/{n}
func (h *Handlers) ListTopByScore(w http.ResponseWriter, r *http.Request) {
	n, ok := h.countParam(w, r, "n")
	if !ok {
		return
	}
	jobs, err := h.svc.TopByScore(r.Context(), n)
	h.list(w, r, jobs, err)
}

// ListRecent handles GET /simulations/recent/{n}
func (h *Handlers) ListRecent(w http.ResponseWriter, r *http.Request) {
	n, ok := h.countParam(w, r, "n")
	if !ok {
		return
	}
	jobs, err := h.svc.MostRecent(r.Context(), n)
	h.list(w, r, jobs, err)
}

func (h *Handlers) list(w http.ResponseWriter, r *http.Request, jobs []*store.Job, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toSimulations(jobs))
}

// NextAvatar handles GET /avatars/next
// Previews an avatar that is currently free. Nothing is reserved.
func (h *Handlers) NextAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.NextAvatar(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.AvatarResponse{AvatarID: id})
}

package handlers

import (
	"encoding/json"
	"net/http"

	"simplane/internal/logger"
	"simplane/pkg/api"
)

// InternalMarkStarted handles PUT /internal/simulations/{id}/started
// Called by the monitor when the launcher reports the job has begun.
func (h *Handlers) InternalMarkStarted(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	var req api.MarkStartedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest, api.CodeInvalidRequest)
		return
	}

	if err := h.svc.MarkStarted(r.Context(), id, req.Handle); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InternalRecordResult handles PUT /internal/simulations/{id}/result
// Called by the monitor when the job ends, with or without a score.
func (h *Handlers) InternalRecordResult(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}

	var req api.RecordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest, api.CodeInvalidRequest)
		return
	}

	if err := h.svc.Complete(r.Context(), id, req.Score); err != nil {
		h.fail(w, r, err)
		return
	}

	if req.Score == nil {
		logger.FromContext(r.Context(), h.logger).Warn("simulation finished without a score", "simulation_id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}

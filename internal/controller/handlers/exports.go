package handlers

import (
	"net/http"

	"simplane/pkg/api"
)

const (
	defaultArchiveLimit = 100
	maxArchiveLimit     = 1000
)

// MarkExport handles PUT /simulations/{id}/export
func (h *Handlers) MarkExport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.MarkReadyToExport(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearExport handles DELETE /simulations/{id}/export
func (h *Handlers) ClearExport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.ClearReadyToExport(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NextExport handles GET /exports/next
// Returns 204 when nothing is waiting.
func (h *Handlers) NextExport(w http.ResponseWriter, r *http.Request) {
	id, ok, err := h.svc.NextToExport(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.respondJson(w, http.StatusOK, api.NextExportResponse{ID: id})
}

// ListArchive handles GET /archive?limit=N
func (h *Handlers) ListArchive(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultArchiveLimit, maxArchiveLimit)
	if err != nil {
		h.httpError(w, "Invalid limit parameter", http.StatusBadRequest, api.CodeInvalidRequest)
		return
	}

	results, err := h.svc.Archive(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]api.ArchivedResult, len(results))
	for i, res := range results {
		out[i] = api.ArchivedResult{
			SimulationID: res.SimulationID,
			Name:         res.Name,
			Contact:      res.Contact,
			AvatarID:     res.AvatarID,
			Score:        res.Score,
			Handle:       res.Handle,
			FinishedAt:   res.FinishedAt,
		}
	}
	h.respondJson(w, http.StatusOK, out)
}

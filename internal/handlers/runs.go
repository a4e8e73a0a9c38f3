package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"driver-scheduler/internal/database"
)

const maxRunListLimit = 100

// RunListResponse represents the list response
type RunListResponse struct {
	Runs   []database.RunSummary `json:"runs"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

func (h *Handler) historyDisabled(w http.ResponseWriter) bool {
	if h.Runs != nil {
		return false
	}
	h.writeError(w, http.StatusNotFound, "HISTORY_DISABLED", "Run history is not enabled (set RUN_HISTORY=true)", nil)
	return true
}

// HandleListRuns handles GET /api/v1/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.historyDisabled(w) {
		return
	}

	limit := 20
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, maxRunListLimit)
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	log.Printf("[HTTP] GET /api/v1/runs: limit=%d offset=%d", limit, offset)
	runs, total, err := h.Runs.List(r.Context(), limit, offset)
	if err != nil {
		log.Printf("[ERROR] Failed to list runs: limit=%d offset=%d err=%v", limit, offset, err)
		h.handleInternalError(w, err)
		return
	}
	if runs == nil {
		runs = []database.RunSummary{}
	}

	h.writeJSON(w, http.StatusOK, RunListResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// HandleGetRun handles GET /api/v1/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.historyDisabled(w) {
		return
	}

	id := mux.Vars(r)["id"]
	log.Printf("[HTTP] GET /api/v1/runs/{id}: id=%s", id)

	result, err := h.Runs.GetByID(r.Context(), id)
	if err != nil {
		if h.checkNotFound(err) {
			h.handleNotFound(w, "Run not found")
			return
		}
		log.Printf("[ERROR] Failed to get run: id=%s err=%v", id, err)
		h.handleInternalError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

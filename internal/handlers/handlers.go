package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"driver-scheduler/internal/database"
	"driver-scheduler/internal/models"
	"driver-scheduler/internal/scheduling"
)

// Runner executes one scheduling run
type Runner interface {
	Run(ctx context.Context, req *scheduling.ScheduleRequest) (*models.ScheduleResult, error)
}

// HealthChecker reports whether backing stores respond
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler provides common handler utilities and dependencies
type Handler struct {
	Runner Runner
	Runs   database.RunRepository // nil when run history is disabled
	Health HealthChecker
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	h.writeJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// handleValidationError handles 400 errors
func (h *Handler) handleValidationError(w http.ResponseWriter, message string) {
	h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", message, nil)
}

// handleInternalError handles 500 errors
func (h *Handler) handleInternalError(w http.ResponseWriter, err error) {
	log.Printf("[ERROR] Internal error: %v", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An error occurred. Please try again.", nil)
}

func (h *Handler) checkNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

// HandleHealthCheck handles GET /api/v1/health
func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	storage := "connected"

	if h.Health != nil {
		if err := h.Health.HealthCheck(r.Context()); err != nil {
			log.Printf("[HTTP] GET /api/v1/health: degraded err=%v", err)
			status = "degraded"
			storage = "error"
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": "1.0.0",
		"storage": storage,
	})
}

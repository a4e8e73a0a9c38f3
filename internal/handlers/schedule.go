package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"driver-scheduler/internal/database"
	"driver-scheduler/internal/models"
	"driver-scheduler/internal/scheduling"
)

const maxScheduleBodyBytes = 10 << 20

// ScheduleRequestBody is the POST /api/v1/schedule payload. Availability takes
// either the flat window list or the per-driver nested form.
type ScheduleRequestBody struct {
	Drivers      []models.Driver `json:"drivers"`
	Rides        []models.Ride   `json:"rides"`
	Availability json.RawMessage `json:"availability"`
}

// HandleSchedule handles POST /api/v1/schedule
func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	var body ScheduleRequestBody

	r.Body = http.MaxBytesReader(w, r.Body, maxScheduleBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		log.Printf("[HTTP] POST /api/v1/schedule: invalid_json err=%v", err)
		h.handleValidationError(w, "Invalid request body")
		return
	}

	req := &scheduling.ScheduleRequest{
		Drivers: body.Drivers,
		Rides:   body.Rides,
	}
	if len(body.Availability) > 0 && string(body.Availability) != "null" {
		windows, err := database.ParseAvailability(body.Availability)
		if err != nil {
			log.Printf("[HTTP] POST /api/v1/schedule: invalid_availability err=%v", err)
			h.handleValidationError(w, "Invalid availability: "+err.Error())
			return
		}
		req.Availability = windows
	}

	log.Printf("[HTTP] POST /api/v1/schedule: drivers=%d rides=%d windows=%d",
		len(req.Drivers), len(req.Rides), len(req.Availability))

	result, err := h.Runner.Run(r.Context(), req)
	if err != nil {
		log.Printf("[ERROR] Scheduling failed: err=%v", err)
		h.handleInternalError(w, err)
		return
	}

	log.Printf("[HTTP] POST /api/v1/schedule: run_id=%s status=%s assigned=%d unassigned=%d total_cost=%.2f",
		result.RunID, result.Status, result.AssignedRideCount(), len(result.UnassignedRideIDs), result.TotalCost)

	h.writeJSON(w, http.StatusOK, result)
}

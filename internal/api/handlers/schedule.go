package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/scheduler"
)

// ScheduleService manages recurring scans.
type ScheduleService interface {
	Jobs() []scheduler.Job
	RunNow(id uuid.UUID) (string, error)
	EnableJob(id uuid.UUID) error
	DisableJob(id uuid.UUID) error
}

// ScheduleHandler handles schedule endpoints.
type ScheduleHandler struct {
	schedules ScheduleService
	logger    *logging.Logger
}

// NewScheduleHandler creates a schedule handler.
func NewScheduleHandler(schedules ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		logger:    logging.WithComponent("api").WithFields("handler", "schedule"),
	}
}

// ListSchedules handles GET /api/v1/schedules.
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	jobs := h.schedules.Jobs()
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"schedules": jobs,
		"total":     len(jobs),
	})
}

// RunSchedule handles POST /api/v1/schedules/{id}/run.
func (h *ScheduleHandler) RunSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	scanID, err := h.schedules.RunNow(id)
	if err != nil {
		handleError(w, r, err, "run schedule", h.logger.Logger)
		return
	}
	writeJSON(w, r, http.StatusAccepted, map[string]string{"schedule_id": id.String(), "scan_id": scanID})
}

// EnableSchedule handles POST /api/v1/schedules/{id}/enable.
func (h *ScheduleHandler) EnableSchedule(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// DisableSchedule handles POST /api/v1/schedules/{id}/disable.
func (h *ScheduleHandler) DisableSchedule(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *ScheduleHandler) toggle(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var err error
	if enabled {
		err = h.schedules.EnableJob(id)
	} else {
		err = h.schedules.DisableJob(id)
	}
	if err != nil {
		handleError(w, r, err, "update schedule", h.logger.Logger)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{"id": id.String(), "enabled": enabled})
}

func (h *ScheduleHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw, err := extractStringFromPath(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.ErrConfigInvalid("id", raw))
		return uuid.Nil, false
	}
	return id, true
}

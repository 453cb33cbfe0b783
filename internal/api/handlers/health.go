package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/anstrom/netrecon/internal/logging"
)

// DatabasePinger defines the interface for database health checking.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

const healthCheckTimeout = 5 * time.Second

// Status constants.
const (
	StatusHealthy       = "healthy"
	StatusUnhealthy     = "unhealthy"
	StatusNotConfigured = "not configured"
	StatusOK            = "ok"
)

// HealthHandler handles health check and status endpoints.
type HealthHandler struct {
	database  DatabasePinger
	scans     ScanService
	version   string
	logger    *logging.Logger
	startTime time.Time
}

// NewHealthHandler creates a health handler. database may be nil.
func NewHealthHandler(database DatabasePinger, scans ScanService, version string) *HealthHandler {
	return &HealthHandler{
		database:  database,
		scans:     scans,
		version:   version,
		logger:    logging.WithComponent("api").WithFields("handler", "health"),
		startTime: time.Now(),
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks"`
}

// StatusResponse is the service's runtime status.
type StatusResponse struct {
	Service      string    `json:"service"`
	Version      string    `json:"version"`
	StartTime    time.Time `json:"start_time"`
	Uptime       string    `json:"uptime"`
	ActiveScans  int       `json:"active_scans"`
	ScanCapacity int       `json:"scan_capacity"`
	KnownScans   int       `json:"known_scans"`
	GoVersion    string    `json:"go_version"`
	Goroutines   int       `json:"goroutines"`
	OS           string    `json:"os"`
	Architecture string    `json:"architecture"`
	Timestamp    time.Time `json:"timestamp"`
}

// Health handles GET /api/v1/health. An unreachable database makes the
// service unhealthy.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    map[string]string{"scanner": StatusOK},
	}

	if h.database == nil {
		resp.Checks["database"] = StatusNotConfigured
	} else if err := h.database.Ping(ctx); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		resp.Status = StatusUnhealthy
		resp.Checks["database"] = "failed: " + err.Error()
	} else {
		resp.Checks["database"] = StatusOK
	}

	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}

// Liveness handles GET /api/v1/liveness without checking dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Status handles GET /api/v1/status.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, StatusResponse{
		Service:      "netrecon",
		Version:      h.version,
		StartTime:    h.startTime,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		ActiveScans:  h.scans.Active(),
		ScanCapacity: h.scans.Capacity(),
		KnownScans:   len(h.scans.List()),
		GoVersion:    runtime.Version(),
		Goroutines:   runtime.NumGoroutine(),
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
		Timestamp:    time.Now().UTC(),
	})
}

// Version handles GET /api/v1/version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{
		"service": "netrecon",
		"version": h.version,
	})
}

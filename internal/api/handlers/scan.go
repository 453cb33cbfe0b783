package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/portscan"
	"github.com/anstrom/netrecon/internal/report"
	"github.com/anstrom/netrecon/internal/scanning"
	"github.com/anstrom/netrecon/internal/store"
	"github.com/anstrom/netrecon/internal/topology"
)

const (
	defaultListLimit  = 50
	maxListLimit      = 500
	scanStatusPattern = "/api/v1/scans/%s"
)

// ScanService runs scans in the background.
type ScanService interface {
	Start(ctx context.Context, cfg scanning.Config) (string, error)
	Get(id string) (scanning.Status, bool)
	List() []scanning.Status
	Cancel(id string) bool
	OnProgress(fn scanning.ProgressFunc)
	Active() int
	Capacity() int
}

// ResultStore reads persisted scans.
type ResultStore interface {
	ListScans(ctx context.Context, limit int) ([]store.ScanRecord, error)
	GetScan(ctx context.Context, id string) (*store.ScanRecord, error)
	GetHosts(ctx context.Context, scanID string) ([]hosts.Host, error)
	DeleteScan(ctx context.Context, id string) error
}

// ScanHandler handles scan-related API endpoints.
type ScanHandler struct {
	scans          ScanService
	results        ResultStore
	defaults       func(target string) scanning.Config
	validate       *validator.Validate
	maxRequestSize int64
	logger         *logging.Logger
}

// NewScanHandler creates a scan handler. results may be nil when no database
// is configured; defaults builds the base config a request overrides.
func NewScanHandler(
	scans ScanService,
	results ResultStore,
	defaults func(target string) scanning.Config,
	maxRequestSize int64,
) *ScanHandler {
	if defaults == nil {
		defaults = scanning.DefaultConfig
	}
	return &ScanHandler{
		scans:          scans,
		results:        results,
		defaults:       defaults,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		maxRequestSize: maxRequestSize,
		logger:         logging.WithComponent("api").WithFields("handler", "scan"),
	}
}

// ScanRequest starts a scan. Omitted fields keep the server's defaults.
type ScanRequest struct {
	Target           string `json:"target" validate:"required,max=255"`
	ScanType         string `json:"scan_type,omitempty" validate:"omitempty,oneof=ping port full custom"`
	Technique        string `json:"technique,omitempty" validate:"omitempty,oneof=tcp syn udp comprehensive"`
	Ports            string `json:"ports,omitempty"`
	ExtendedPorts    *bool  `json:"extended_ports,omitempty"`
	TimeoutMS        int    `json:"timeout_ms,omitempty" validate:"omitempty,min=1,max=60000"`
	Threads          int    `json:"threads,omitempty" validate:"omitempty,min=1,max=1000"`
	ResolveHostnames *bool  `json:"resolve_hostnames,omitempty"`
	DetectServices   *bool  `json:"detect_services,omitempty"`
	GrabBanners      *bool  `json:"grab_banners,omitempty"`
	DetectOS         *bool  `json:"detect_os,omitempty"`
	AssessVulns      *bool  `json:"assess_vulns,omitempty"`
	Traceroute       *bool  `json:"traceroute,omitempty"`
}

// ScanCreatedResponse acknowledges a started scan.
type ScanCreatedResponse struct {
	ID        string         `json:"id"`
	State     scanning.State `json:"state"`
	StatusURL string         `json:"status_url"`
}

// ScanResponse is a scan's status and, once finished, its result.
type ScanResponse struct {
	ID         string          `json:"id"`
	Target     string          `json:"target"`
	ScanType   string          `json:"scan_type"`
	State      string          `json:"state"`
	Progress   float64         `json:"progress"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Duration   string          `json:"duration,omitempty"`
	HostCount  int             `json:"host_count"`
	AliveCount int             `json:"alive_count"`
	Hosts      []hosts.Host    `json:"hosts,omitempty"`
	Topology   *topology.Info  `json:"topology,omitempty"`
	Notes      []string        `json:"notes,omitempty"`
	Error      string          `json:"error,omitempty"`
	Source     string          `json:"source"`
	Config     scanning.Config `json:"config"`
}

// ScanListResponse lists scans.
type ScanListResponse struct {
	Scans []ScanResponse `json:"scans"`
	Total int            `json:"total"`
}

// CreateScan handles POST /api/v1/scans.
func (h *ScanHandler) CreateScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := parseJSON(w, r, &req, h.maxRequestSize); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	cfg, err := h.requestToConfig(&req)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	id, err := h.scans.Start(r.Context(), cfg)
	if err != nil {
		handleError(w, r, err, "start scan", h.logger.Logger)
		return
	}

	h.logger.Info("Scan started via API", "scan_id", id, "target", cfg.Target, "scan_type", cfg.ScanType)
	w.Header().Set("Location", fmt.Sprintf(scanStatusPattern, id))
	writeJSON(w, r, http.StatusAccepted, ScanCreatedResponse{
		ID:        id,
		State:     scanning.Idle,
		StatusURL: fmt.Sprintf(scanStatusPattern, id),
	})
}

func (h *ScanHandler) requestToConfig(req *ScanRequest) (scanning.Config, error) {
	if err := h.validate.Struct(req); err != nil {
		return scanning.Config{}, errors.WrapScanError(errors.CodeValidation, "invalid scan request", err)
	}

	cfg := h.defaults(req.Target)
	cfg.Target = req.Target
	if req.ScanType != "" {
		cfg.ScanType = scanning.ScanType(req.ScanType)
	}
	if req.Technique != "" {
		cfg.Technique = portscan.Technique(req.Technique)
	}
	if req.Ports != "" {
		ports, err := portscan.ParsePorts(req.Ports)
		if err != nil {
			return scanning.Config{}, err
		}
		cfg.Ports = ports
	}
	if req.TimeoutMS > 0 {
		cfg.TimeoutMS = req.TimeoutMS
	}
	if req.Threads > 0 {
		cfg.Threads = req.Threads
	}

	override := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	override(&cfg.ExtendedPorts, req.ExtendedPorts)
	override(&cfg.ResolveHostnames, req.ResolveHostnames)
	override(&cfg.DetectServices, req.DetectServices)
	override(&cfg.GrabBanners, req.GrabBanners)
	override(&cfg.DetectOS, req.DetectOS)
	override(&cfg.AssessVulns, req.AssessVulns)
	override(&cfg.Traceroute, req.Traceroute)
	return cfg, nil
}

// ListScans handles GET /api/v1/scans. With ?history=true the persisted
// scans are listed instead of the ones held in memory.
func (h *ScanHandler) ListScans(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("history") == "true" {
		h.listHistory(w, r)
		return
	}

	statuses := h.scans.List()
	resp := ScanListResponse{Scans: make([]ScanResponse, 0, len(statuses)), Total: len(statuses)}
	for _, st := range statuses {
		sr := statusToResponse(st)
		sr.Hosts = nil
		resp.Scans = append(resp.Scans, sr)
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *ScanHandler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeError(w, r, http.StatusServiceUnavailable, errors.NewDatabaseError(
			errors.CodeDatabaseConnection, "scan history requires a database"))
		return
	}

	limit, err := getQueryParamInt(r, "limit", defaultListLimit)
	if err != nil || limit <= 0 || limit > maxListLimit {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", maxListLimit))
		return
	}

	records, err := h.results.ListScans(r.Context(), limit)
	if err != nil {
		handleError(w, r, err, "list scans", h.logger.Logger)
		return
	}

	resp := ScanListResponse{Scans: make([]ScanResponse, 0, len(records)), Total: len(records)}
	for i := range records {
		resp.Scans = append(resp.Scans, recordToResponse(&records[i], nil))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// GetScan handles GET /api/v1/scans/{id}.
func (h *ScanHandler) GetScan(w http.ResponseWriter, r *http.Request) {
	id, err := extractStringFromPath(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if st, ok := h.scans.Get(id); ok {
		writeJSON(w, r, http.StatusOK, statusToResponse(st))
		return
	}

	resp, err := h.loadStored(r.Context(), id)
	if err != nil {
		handleError(w, r, err, "get scan", h.logger.Logger)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// CancelScan handles DELETE /api/v1/scans/{id}. A running scan is
// cancelled; a finished scan held only in the database is deleted.
func (h *ScanHandler) CancelScan(w http.ResponseWriter, r *http.Request) {
	id, err := extractStringFromPath(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if st, ok := h.scans.Get(id); ok {
		if !h.scans.Cancel(id) {
			writeError(w, r, http.StatusConflict,
				fmt.Errorf("scan %s already finished with state %s", id, st.State))
			return
		}
		h.logger.Info("Scan cancelled via API", "scan_id", id)
		writeJSON(w, r, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
		return
	}

	if h.results == nil {
		writeError(w, r, http.StatusNotFound, scanNotFound(id))
		return
	}
	if err := h.results.DeleteScan(r.Context(), id); err != nil {
		handleError(w, r, err, "delete scan", h.logger.Logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetGraph handles GET /api/v1/scans/{id}/graph.
func (h *ScanHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	id, err := extractStringFromPath(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	var (
		hs      []hosts.Host
		gateway string
	)
	if st, ok := h.scans.Get(id); ok {
		if st.Result == nil {
			writeError(w, r, http.StatusConflict, fmt.Errorf("scan %s is still %s", id, st.State))
			return
		}
		hs = st.Result.Hosts
		if st.Result.Topology != nil {
			gateway = st.Result.Topology.Gateway
		}
	} else {
		resp, err := h.loadStored(r.Context(), id)
		if err != nil {
			handleError(w, r, err, "load scan graph", h.logger.Logger)
			return
		}
		hs = resp.Hosts
		if resp.Topology != nil {
			gateway = resp.Topology.Gateway
		}
	}

	writeJSON(w, r, http.StatusOK, report.BuildGraph(hs, gateway))
}

func (h *ScanHandler) loadStored(ctx context.Context, id string) (ScanResponse, error) {
	if h.results == nil {
		return ScanResponse{}, scanNotFound(id)
	}
	record, err := h.results.GetScan(ctx, id)
	if err != nil {
		return ScanResponse{}, err
	}
	hs, err := h.results.GetHosts(ctx, id)
	if err != nil {
		return ScanResponse{}, err
	}
	return recordToResponse(record, hs), nil
}

func scanNotFound(id string) error {
	return errors.NewScanError(errors.CodeNotFound, fmt.Sprintf("scan %s not found", id))
}

func statusToResponse(st scanning.Status) ScanResponse {
	resp := ScanResponse{
		ID:        st.ID,
		Target:    st.Config.Target,
		ScanType:  string(st.Config.ScanType),
		State:     string(st.State),
		Progress:  progressOf(st.State),
		StartedAt: st.StartedAt,
		Source:    "memory",
		Config:    st.Config,
	}
	if res := st.Result; res != nil {
		finished := res.FinishedAt
		resp.FinishedAt = &finished
		resp.Duration = res.Duration.String()
		resp.HostCount = len(res.Hosts)
		resp.AliveCount = res.AliveCount()
		resp.Hosts = res.Hosts
		resp.Topology = res.Topology
		resp.Notes = res.Notes
		resp.Error = res.Error
		if !res.StartedAt.IsZero() {
			resp.StartedAt = res.StartedAt
		}
	}
	return resp
}

func recordToResponse(rec *store.ScanRecord, hs []hosts.Host) ScanResponse {
	finished := rec.FinishedAt
	resp := ScanResponse{
		ID:         rec.ID,
		Target:     rec.Target,
		ScanType:   rec.ScanType,
		State:      rec.State,
		Progress:   1,
		StartedAt:  rec.StartedAt,
		FinishedAt: &finished,
		Duration:   (time.Duration(rec.DurationMS) * time.Millisecond).String(),
		HostCount:  rec.HostCount,
		AliveCount: rec.AliveCount,
		Hosts:      hs,
		Notes:      rec.Notes,
		Error:      rec.Error,
		Source:     "database",
	}
	if len(rec.Config) > 0 {
		_ = json.Unmarshal(rec.Config, &resp.Config)
	}
	resp.Topology = rec.TopologyInfo()
	return resp
}

// progressOf estimates the fraction done from the pipeline position.
func progressOf(state scanning.State) float64 {
	if state.Terminal() {
		return 1
	}
	if phase := state.Phase(); phase > 0 {
		return float64(phase-1) / float64(scanning.TotalPhases)
	}
	return 0
}

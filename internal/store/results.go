package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"slices"
	"time"

	"github.com/lib/pq"

	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/scanning"
	"github.com/anstrom/netrecon/internal/topology"
)

// ScanRecord is the summary row stored for each scan.
type ScanRecord struct {
	ID         string         `db:"id" json:"id"`
	Target     string         `db:"target" json:"target"`
	ScanType   string         `db:"scan_type" json:"scan_type"`
	State      string         `db:"state" json:"state"`
	HostCount  int            `db:"host_count" json:"host_count"`
	AliveCount int            `db:"alive_count" json:"alive_count"`
	Gateway    string         `db:"gateway" json:"gateway,omitempty"`
	ExternalIP string         `db:"external_ip" json:"external_ip,omitempty"`
	Notes      pq.StringArray `db:"notes" json:"notes,omitempty"`
	Error      string         `db:"error" json:"error,omitempty"`
	Config     []byte         `db:"config" json:"-"`
	Topology   []byte         `db:"topology" json:"-"`
	StartedAt  time.Time      `db:"started_at" json:"started_at"`
	FinishedAt time.Time      `db:"finished_at" json:"finished_at"`
	DurationMS int64          `db:"duration_ms" json:"duration_ms"`
}

// TopologyInfo decodes the stored topology. Rows written before the
// topology column existed yield only the gateway and external IP; nil
// means the scan recorded no topology.
func (r ScanRecord) TopologyInfo() *topology.Info {
	if len(r.Topology) > 0 {
		var info topology.Info
		if err := json.Unmarshal(r.Topology, &info); err == nil {
			return &info
		}
	}
	if r.Gateway == "" && r.ExternalIP == "" {
		return nil
	}
	return &topology.Info{Gateway: r.Gateway, ExternalIP: r.ExternalIP}
}

type hostRow struct {
	ScanID          string         `db:"scan_id"`
	IP              string         `db:"ip"`
	Hostname        string         `db:"hostname"`
	MAC             string         `db:"mac"`
	Vendor          string         `db:"vendor"`
	Alive           bool           `db:"alive"`
	ResponseTime    int64          `db:"response_time_ms"`
	OpenPorts       pq.Int64Array  `db:"open_ports"`
	Services        pq.StringArray `db:"services"`
	OS              string         `db:"os"`
	Risk            string         `db:"risk"`
	Vulnerabilities pq.StringArray `db:"vulnerabilities"`
	Traceroute      pq.StringArray `db:"traceroute"`
	X               float64        `db:"x"`
	Y               float64        `db:"y"`
}

func toRow(scanID string, h hosts.Host) hostRow {
	ports := make(pq.Int64Array, len(h.OpenPorts))
	for i, p := range h.OpenPorts {
		ports[i] = int64(p)
	}
	return hostRow{
		ScanID:          scanID,
		IP:              h.IP,
		Hostname:        h.Hostname,
		MAC:             h.MAC,
		Vendor:          h.Vendor,
		Alive:           h.Alive,
		ResponseTime:    h.ResponseTime,
		OpenPorts:       ports,
		Services:        nonNil(h.Services),
		OS:              h.OS,
		Risk:            h.Risk.String(),
		Vulnerabilities: nonNil(h.Vulnerabilities),
		Traceroute:      nonNil(h.Traceroute),
		X:               h.X,
		Y:               h.Y,
	}
}

func (r hostRow) host() hosts.Host {
	h := hosts.Host{
		IP:           r.IP,
		Hostname:     r.Hostname,
		MAC:          r.MAC,
		Vendor:       r.Vendor,
		Alive:        r.Alive,
		ResponseTime: r.ResponseTime,
		OS:           r.OS,
		X:            r.X,
		Y:            r.Y,
	}
	for _, p := range r.OpenPorts {
		h.OpenPorts = append(h.OpenPorts, int(p))
	}
	if len(r.Services) > 0 {
		h.Services = []string(r.Services)
	}
	if len(r.Vulnerabilities) > 0 {
		h.Vulnerabilities = []string(r.Vulnerabilities)
	}
	if len(r.Traceroute) > 0 {
		h.Traceroute = []string(r.Traceroute)
	}
	if tier, err := hosts.ParseRiskTier(r.Risk); err == nil {
		h.Risk = tier
	}
	return h
}

func nonNil(s []string) pq.StringArray {
	if s == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(s)
}

const upsertScan = `
	INSERT INTO scans (id, target, scan_type, state, host_count, alive_count, gateway,
	                   external_ip, notes, error, config, topology, started_at, finished_at, duration_ms)
	VALUES (:id, :target, :scan_type, :state, :host_count, :alive_count, :gateway,
	        :external_ip, :notes, :error, :config, :topology, :started_at, :finished_at, :duration_ms)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state, host_count = EXCLUDED.host_count,
		alive_count = EXCLUDED.alive_count, gateway = EXCLUDED.gateway,
		external_ip = EXCLUDED.external_ip, topology = EXCLUDED.topology, notes = EXCLUDED.notes,
		error = EXCLUDED.error, finished_at = EXCLUDED.finished_at,
		duration_ms = EXCLUDED.duration_ms`

const insertHost = `
	INSERT INTO scan_hosts (scan_id, ip, hostname, mac, vendor, alive, response_time_ms,
	                        open_ports, services, os, risk, vulnerabilities, traceroute, x, y)
	VALUES (:scan_id, :ip, :hostname, :mac, :vendor, :alive, :response_time_ms,
	        :open_ports, :services, :os, :risk, :vulnerabilities, :traceroute, :x, :y)`

// SaveResult writes a scan and replaces its host rows in one transaction.
func (s *Store) SaveResult(ctx context.Context, result *scanning.Result) error {
	config, err := json.Marshal(result.Config)
	if err != nil {
		return sanitize("encode scan config", err)
	}
	rec := ScanRecord{
		ID:         result.ID,
		Target:     result.Config.Target,
		ScanType:   string(result.Config.ScanType),
		State:      string(result.State),
		HostCount:  len(result.Hosts),
		AliveCount: result.AliveCount(),
		Notes:      nonNil(result.Notes),
		Error:      result.Error,
		Config:     config,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		DurationMS: result.Duration.Milliseconds(),
	}
	if result.Topology != nil {
		rec.Gateway = result.Topology.Gateway
		rec.ExternalIP = result.Topology.ExternalIP
		if rec.Topology, err = json.Marshal(result.Topology); err != nil {
			return sanitize("encode topology", err)
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sanitize("begin save", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.NamedExecContext(ctx, upsertScan, rec); err != nil {
		return sanitize("save scan", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scan_hosts WHERE scan_id = $1`, result.ID); err != nil {
		return sanitize("clear hosts", err)
	}
	for _, h := range result.Hosts {
		if _, err := tx.NamedExecContext(ctx, insertHost, toRow(result.ID, h)); err != nil {
			return sanitize("save host", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return sanitize("commit save", err)
	}

	s.logger.Debug("Scan result stored", "scan_id", result.ID, "hosts", len(result.Hosts))
	return nil
}

const scanColumns = `id, target, scan_type, state, host_count, alive_count, gateway,
	external_ip, notes, error, config, topology, started_at, finished_at, duration_ms`

// ListScans returns the most recent scans, newest first. limit <= 0 means 50.
func (s *Store) ListScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []ScanRecord
	query := `SELECT ` + scanColumns + ` FROM scans ORDER BY started_at DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &out, query, limit); err != nil {
		return nil, sanitize("list scans", err)
	}
	return out, nil
}

// GetScan returns one scan summary, or a NOT_FOUND error.
func (s *Store) GetScan(ctx context.Context, id string) (*ScanRecord, error) {
	var rec ScanRecord
	query := `SELECT ` + scanColumns + ` FROM scans WHERE id = $1`
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, sanitize("get scan", err)
	}
	return &rec, nil
}

// GetHosts returns the hosts stored for a scan in address order.
func (s *Store) GetHosts(ctx context.Context, scanID string) ([]hosts.Host, error) {
	var rows []hostRow
	query := `SELECT scan_id, ip, hostname, mac, vendor, alive, response_time_ms, open_ports,
		services, os, risk, vulnerabilities, traceroute, x, y
		FROM scan_hosts WHERE scan_id = $1`
	if err := s.db.SelectContext(ctx, &rows, query, scanID); err != nil {
		return nil, sanitize("get hosts", err)
	}

	out := make([]hosts.Host, len(rows))
	for i, r := range rows {
		out[i] = r.host()
	}
	slices.SortFunc(out, func(a, b hosts.Host) int { return hosts.CompareAddr(a.IP, b.IP) })
	return out, nil
}

// DeleteScan removes a scan and its hosts.
func (s *Store) DeleteScan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id = $1`, id)
	if err != nil {
		return sanitize("delete scan", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sanitize("delete scan", sql.ErrNoRows)
	}
	return nil
}

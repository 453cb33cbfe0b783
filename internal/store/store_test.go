package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	stderrors "errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/hosts"
	"github.com/anstrom/netrecon/internal/scanning"
	"github.com/anstrom/netrecon/internal/topology"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func sampleResult() *scanning.Result {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &scanning.Result{
		ID:     "7b0cf5f2-54c5-4c39-9c11-1f0b8a6f7f10",
		Config: scanning.Config{Target: "10.0.0.0/30", ScanType: scanning.PortScan},
		State:  scanning.Completed,
		Hosts: []hosts.Host{
			{IP: "10.0.0.1", Alive: true, ResponseTime: 3, OpenPorts: []int{53}, Services: []string{"DNS"}, OS: hosts.UnknownOS},
			{IP: "10.0.0.2", Alive: false, ResponseTime: hosts.NotMeasured, OS: hosts.UnknownOS},
		},
		Topology: &topology.Info{
			Gateway:    "10.0.0.1",
			ExternalIP: "203.0.113.1",
			Routes:     []topology.Route{{Destination: "0.0.0.0/0", Gateway: "10.0.0.1", Interface: "eth0"}},
			Path:       []string{"10.0.0.1", "203.0.113.1"},
		},
		StartedAt:  start,
		FinishedAt: start.Add(4 * time.Second),
		Duration:   4 * time.Second,
	}
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled())
	assert.Equal(t, 5432, cfg.Port)

	cfg.Database = "netrecon"
	cfg.Username = "scanner"
	cfg.Password = "secret"
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "host=localhost port=5432 dbname=netrecon user=scanner password=secret sslmode=disable", cfg.DSN())
}

func TestConnectRequiresConfiguration(t *testing.T) {
	_, err := Connect(context.Background(), DefaultConfig())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConfiguration))
}

func TestMigrateAppliesPending(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scans").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("001_initial", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE scans ADD COLUMN IF NOT EXISTS topology").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("002_scan_topology", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ran, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial", "002_scan_topology"}, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateSkipsApplied(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_initial").AddRow("002_scan_topology"))

	ran, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT name FROM schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scans").
		WillReturnError(stderrors.New("syntax error"))
	mock.ExpectRollback()

	_, err := s.Migrate(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDatabaseMigration))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsAreEmbedded(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, "001_initial", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "scan_hosts")
	assert.Len(t, migrations[0].Checksum, 64)
	require.Len(t, migrations, 2)
	assert.Equal(t, "002_scan_topology", migrations[1].Name)
}

func TestSaveResult(t *testing.T) {
	s, mock := newMockStore(t)
	result := sampleResult()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").
		WithArgs(result.ID, "10.0.0.0/30", "port", "completed", 2, 1, "10.0.0.1", "203.0.113.1",
			sqlmock.AnyArg(), "", sqlmock.AnyArg(), topologyArg{want: *result.Topology},
			result.StartedAt, result.FinishedAt, int64(4000)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM scan_hosts").
		WithArgs(result.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO scan_hosts").
		WithArgs(result.ID, "10.0.0.1", "", "", "", true, int64(3), "{53}", "{\"DNS\"}",
			hosts.UnknownOS, "MINIMAL", "{}", "{}", 0.0, 0.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO scan_hosts").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveResult(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveResultRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM scan_hosts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO scan_hosts").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	err := s.SaveResult(context.Background(), sampleResult())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
	assert.NotContains(t, err.Error(), "duplicate key", "driver detail stays in the cause")
	assert.NoError(t, mock.ExpectationsWereMet())
}

var hostColumns = []string{
	"scan_id", "ip", "hostname", "mac", "vendor", "alive", "response_time_ms", "open_ports",
	"services", "os", "risk", "vulnerabilities", "traceroute", "x", "y",
}

func TestGetHosts(t *testing.T) {
	s, mock := newMockStore(t)
	id := "scan-1"

	mock.ExpectQuery("SELECT scan_id, ip").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(hostColumns).
			AddRow(id, "10.0.0.10", "nas", "", "", true, int64(4), "{22,80}", "{HTTP,SSH}",
				"Linux/Unix (SSH)", "MEDIUM", `{"HTTP exposed"}`, "{}", 1.5, 2.5).
			AddRow(id, "10.0.0.9", "", "aa:bb:cc:dd:ee:ff", "Acme", true, int64(1), "{}", "{}",
				hosts.UnknownOS, "MINIMAL", "{}", "{10.0.0.1,8.8.8.8}", 0.0, 0.0))

	got, err := s.GetHosts(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "10.0.0.9", got[0].IP, "numeric address order")
	assert.Equal(t, []string{"10.0.0.1", "8.8.8.8"}, got[0].Traceroute)
	assert.Empty(t, got[0].OpenPorts)
	assert.Equal(t, "Acme", got[0].Vendor)

	nas := got[1]
	assert.Equal(t, []int{22, 80}, nas.OpenPorts)
	assert.Equal(t, []string{"HTTP", "SSH"}, nas.Services)
	assert.Equal(t, hosts.RiskMedium, nas.Risk)
	assert.Equal(t, []string{"HTTP exposed"}, nas.Vulnerabilities)
	assert.Equal(t, 1.5, nas.X)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var scanColumnNames = []string{
	"id", "target", "scan_type", "state", "host_count", "alive_count", "gateway",
	"external_ip", "notes", "error", "config", "topology", "started_at", "finished_at", "duration_ms",
}

func TestListScans(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT (.+) FROM scans ORDER BY started_at DESC").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows(scanColumnNames).
			AddRow("b", "10.0.1.0/24", "full", "completed", 12, 9, "10.0.1.1", "198.51.100.4",
				"{}", "", []byte(`{}`), []byte(`{"gateway":"10.0.1.1","external_ip":"198.51.100.4","routes":[{"destination":"0.0.0.0/0","gateway":"10.0.1.1","interface":"eth0"}],"path":["10.0.1.1","198.51.100.9"]}`),
				now, now.Add(time.Minute), int64(60000)).
			AddRow("a", "10.0.0.1", "ping", "cancelled", 1, 1, "", "",
				`{"partial"}`, "[CANCELED] scan canceled", []byte(`{}`), nil, now.Add(-time.Hour), now, int64(1000)))

	scans, err := s.ListScans(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, "b", scans[0].ID)
	assert.Equal(t, 9, scans[0].AliveCount)
	assert.Equal(t, pq.StringArray{"partial"}, scans[1].Notes)

	info := scans[0].TopologyInfo()
	require.NotNil(t, info)
	assert.Equal(t, []string{"10.0.1.1", "198.51.100.9"}, info.Path)
	require.Len(t, info.Routes, 1)
	assert.Equal(t, "eth0", info.Routes[0].Interface)
	assert.Nil(t, scans[1].TopologyInfo())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// topologyArg matches the JSON-encoded topology written by SaveResult.
type topologyArg struct {
	want topology.Info
}

func (a topologyArg) Match(v driver.Value) bool {
	data, ok := v.([]byte)
	if !ok {
		return false
	}
	var got topology.Info
	if err := json.Unmarshal(data, &got); err != nil {
		return false
	}
	return reflect.DeepEqual(a.want, got)
}

func TestTopologyInfo(t *testing.T) {
	tests := []struct {
		name string
		rec  ScanRecord
		want *topology.Info
	}{
		{
			name: "full topology",
			rec: ScanRecord{Gateway: "10.0.0.1", Topology: []byte(`{"gateway":"10.0.0.1","external_ip":"Unknown","routes":[],"path":["10.0.0.1"]}`)},
			want: &topology.Info{Gateway: "10.0.0.1", ExternalIP: "Unknown", Routes: []topology.Route{}, Path: []string{"10.0.0.1"}},
		},
		{
			name: "row without topology column",
			rec:  ScanRecord{Gateway: "10.0.0.1", ExternalIP: "203.0.113.1"},
			want: &topology.Info{Gateway: "10.0.0.1", ExternalIP: "203.0.113.1"},
		},
		{
			name: "corrupt topology falls back to columns",
			rec:  ScanRecord{Gateway: "10.0.0.1", Topology: []byte(`{`)},
			want: &topology.Info{Gateway: "10.0.0.1"},
		},
		{
			name: "no topology",
			rec:  ScanRecord{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rec.TopologyInfo())
		})
	}
}

func TestGetScanNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT (.+) FROM scans WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(scanColumnNames))

	_, err := s.GetScan(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestDeleteScan(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM scans").WithArgs("a").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM scans").WithArgs("b").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.DeleteScan(context.Background(), "a"))
	err := s.DeleteScan(context.Background(), "b")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"no rows", sql.ErrNoRows, apperrors.CodeNotFound},
		{"connection", &pq.Error{Code: "08006"}, apperrors.CodeDatabaseConnection},
		{"constraint", &pq.Error{Code: "23503"}, apperrors.CodeValidation},
		{"canceled query", &pq.Error{Code: "57014"}, apperrors.CodeCanceled},
		{"context", context.Canceled, apperrors.CodeCanceled},
		{"other", stderrors.New("boom"), apperrors.CodeDatabaseQuery},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, apperrors.GetCode(sanitize("op", tt.err)))
		})
	}
	assert.NoError(t, sanitize("op", nil))
}

func TestStoreSatisfiesResultSink(t *testing.T) {
	var _ scanning.ResultSink = (*Store)(nil)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_Recorder(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.ScanFinished("full", "completed", 2*time.Second)
	pm.ScanFinished("full", "completed", time.Second)
	pm.ScanFinished("port-scan", "cancelled", time.Second)
	pm.HostsDiscovered("arp", 4)
	pm.HostsDiscovered("arp", 2)
	pm.PortsProbed("tcp", "open", 3)
	pm.RiskAssessed("HIGH")
	pm.JobFinished("port-scan", "success", time.Millisecond)
	pm.HTTPRequest("GET", "/api/v1/health", http.StatusOK, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.scansTotal.WithLabelValues("full", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.scansTotal.WithLabelValues("port-scan", "cancelled")))
	assert.Equal(t, 6.0, testutil.ToFloat64(pm.hostsDiscovered.WithLabelValues("arp")))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.portsProbed.WithLabelValues("tcp", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.riskAssessed.WithLabelValues("HIGH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.jobsTotal.WithLabelValues("port-scan", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.httpRequests.WithLabelValues("GET", "/api/v1/health", "200")))
}

func TestPrometheusMetrics_HTTPHandlerServes(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.PhaseFinished("discovering", 150*time.Millisecond)

	rr := httptest.NewRecorder()
	pm.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "netrecon_scan_phase_duration_seconds"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))

	pm := NewPrometheusMetrics()
	assert.Same(t, pm, OrNop(pm))

	// Nop accepts every call without panicking.
	var r Recorder = Nop{}
	r.ScanFinished("full", "completed", time.Second)
	r.HTTPRequest("GET", "/", 200, 0)
}

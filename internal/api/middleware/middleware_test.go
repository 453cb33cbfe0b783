package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/anstrom/netrecon/internal/logging"
	"github.com/anstrom/netrecon/internal/metrics/mocks"
)

func createTestLogger(buf *bytes.Buffer) *logging.Logger {
	return logging.NewWithWriter(buf, logging.Config{Level: logging.LevelDebug, Format: logging.FormatText})
}

func TestLoggingSetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	handler := Logging(createTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.True(t, strings.HasPrefix(seen, "req_"))
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), "HTTP request completed")
	assert.Contains(t, buf.String(), "status_code=418")
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "unknown", GetRequestID(r))
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	ctrl := gomock.NewController(t)
	recorder := mocks.NewMockRecorder(ctrl)
	recorder.EXPECT().HTTPRequest(http.MethodGet, "/api/v1/scans/{id}", http.StatusNotFound, gomock.Any())

	router := mux.NewRouter()
	router.Use(Metrics(recorder))
	router.HandleFunc("/api/v1/scans/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/scans/abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsNilRecorder(t *testing.T) {
	handler := Metrics(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	})
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(createTestLogger(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
	assert.Contains(t, buf.String(), "panic recovered")
}

func TestContentType(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := ContentType()(next)

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{"get passes", http.MethodGet, "text/plain", http.StatusNoContent},
		{"json post", http.MethodPost, "application/json", http.StatusNoContent},
		{"json with charset", http.MethodPost, "application/json; charset=utf-8", http.StatusNoContent},
		{"no content type", http.MethodPost, "", http.StatusNoContent},
		{"form post", http.MethodPost, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType},
		{"xml put", http.MethodPut, "application/xml", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := RequestTimeout(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)

	t.Run("websocket upgrade has no deadline", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		req.Header.Set("Connection", "Upgrade")
		req.Header.Set("Upgrade", "websocket")
		handler.ServeHTTP(httptest.NewRecorder(), req)
		assert.False(t, ok)
	})

	t.Run("zero timeout disables", func(t *testing.T) {
		h := RequestTimeout(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, has := r.Context().Deadline()
			assert.False(t, has)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:5", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.3"}, "1.2.3.4:5", "10.0.0.3"},
		{"remote addr", nil, "192.168.1.5:4321", "192.168.1.5"},
		{"ipv6 remote", nil, "[fe80::1]:4321", "fe80::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)
	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, 2, rw.size)
}

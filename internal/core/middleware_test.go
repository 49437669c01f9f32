package core

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcoach/internal/types"
)

func TestRequestLogger_RedactsHeaders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := RequestLogger(logger, []string{"authorization"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/goal", nil)
	req.Header.Set("Authorization", "Bearer strava-secret")
	req.Header.Set("User-Agent", "dashboard")
	req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	assert.NotContains(t, out, "strava-secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, "dashboard")
}

func TestResponseCapture_DefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	rc := newResponseCapture(rec)

	_, err := rc.Write([]byte("ok"))
	require.NoError(t, err)
	rc.WriteHeader(http.StatusInternalServerError)

	assert.Equal(t, http.StatusOK, rc.statusCode)
	assert.Equal(t, rec, rc.Unwrap())
}

func TestMetricsMiddleware_NilCollectorPassesThrough(t *testing.T) {
	srv := &Server{}
	called := false
	h := srv.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}

func TestMetricsMiddleware_UnroutedRequest(t *testing.T) {
	metrics := &recordingMetrics{}
	srv := &Server{Metrics: metrics}
	h := srv.MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, metrics.calls, 1)
	assert.Equal(t, metricCall{"GET", "unmatched", "404"}, metrics.calls[0])
}

func TestCORSMiddleware(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		preflight   bool
		wantStatus  int
		wantAllowed string
	}{
		{"listed origin", []string{"http://localhost:8501"}, "http://localhost:8501", false, http.StatusOK, "http://localhost:8501"},
		{"unlisted origin", []string{"http://localhost:8501"}, "http://evil.test", false, http.StatusOK, ""},
		{"wildcard", []string{"*"}, "http://anything.test", false, http.StatusOK, "*"},
		{"preflight", []string{"http://localhost:8501"}, "http://localhost:8501", true, http.StatusNoContent, "http://localhost:8501"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/v1/activities", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			NewCORSMiddleware(tt.allowed)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllowed, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

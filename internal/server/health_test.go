package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, gojson.NewDecoder(w.Body).Decode(&status))
	return status
}

func TestHandler_Healthz(t *testing.T) {
	h := NewHandler(prometheus.NewRegistry(), "v1.2.3", zaptest.NewLogger(t))

	w := serve(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

	status := decodeStatus(t, w)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "v1.2.3", status.Version)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]CheckFunc
		wantCode   int
		wantStatus string
		wantFailed []string
	}{
		{
			name:       "no checks",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "all pass",
			checks: map[string]CheckFunc{
				"redis":    func(context.Context) error { return nil },
				"database": func(context.Context) error { return nil },
			},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name: "one fails",
			checks: map[string]CheckFunc{
				"redis":    func(context.Context) error { return errors.New("connection refused") },
				"database": func(context.Context) error { return nil },
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantFailed: []string{"redis"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(prometheus.NewRegistry(), "", zaptest.NewLogger(t))
			for name, check := range tt.checks {
				h.RegisterCheck(name, check)
			}

			w := serve(t, h, http.MethodGet, "/readyz")
			assert.Equal(t, tt.wantCode, w.Code)
			status := decodeStatus(t, w)
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Len(t, status.Checks, len(tt.checks))
			for _, name := range tt.wantFailed {
				assert.Equal(t, "fail", status.Checks[name].Status)
				assert.Equal(t, "connection refused", status.Checks[name].Message)
			}
		})
	}
}

func TestHandler_ReadyTimeout(t *testing.T) {
	h := NewHandler(prometheus.NewRegistry(), "", zaptest.NewLogger(t)).
		WithCheckTimeout(20 * time.Millisecond).
		RegisterCheck("slow", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})

	w := serve(t, h, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, context.DeadlineExceeded.Error(), decodeStatus(t, w).Checks["slow"].Message)
}

func TestHandler_MetricsRunsScrapeHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_open_connections"})
	reg.MustRegister(gauge)

	scrapes := 0
	h := NewHandler(reg, "", zaptest.NewLogger(t)).OnScrape(func() {
		scrapes++
		gauge.Set(float64(scrapes * 3))
	})

	w := serve(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), "test_open_connections 3")
	assert.Equal(t, 1, scrapes)
}

func TestHandler_MethodAndPath(t *testing.T) {
	h := NewHandler(prometheus.NewRegistry(), "", zaptest.NewLogger(t))
	assert.Equal(t, http.StatusMethodNotAllowed, serve(t, h, http.MethodPost, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/nope").Code)
}

func TestHandler_ServedByManager(t *testing.T) {
	h := NewHandler(prometheus.NewRegistry(), "dev", zaptest.NewLogger(t))
	m := newTestManager(t, h)
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + m.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"version":"dev"`))
}

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// This file contains unit tests for the core and ops api handlers.

// TestStatusHandler ensures api handler can provides its status.
func TestStatusHandler(t *testing.T) {
	clock := NewMockClocker()
	api := NewAPIHandler(zap.NewNop(), nil, &Statistics{started: clock.Now()}, clock, NewMockUIDHandler("abc", true), nil)
	clock.Add(5 * time.Minute)
	w := httptest.NewRecorder()
	api.Status(w, httptest.NewRequest(http.MethodGet, "/status", nil), httprouter.Params{})
	code, m := readResponse(t, w)
	assert.Equal(t, http.StatusOK, code)

	_, ok := m["requestid"]
	assert.True(t, ok)
	assert.Equal(t, "up & running since 5 mins", m["status"])
	assert.Equal(t, "Hello. Books inventory api is available. Enjoy :)", m["message"])
}

// TestIndexHandler ensures the index redirects to the status endpoint.
func TestIndexHandler(t *testing.T) {
	api := newTestAPIHandler(nil, nil)
	w := httptest.NewRecorder()
	api.Index(w, httptest.NewRequest(http.MethodGet, "/", nil), httprouter.Params{})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/status", w.Header().Get("Location"))
}

// TestMaintenanceHandler ensures the maintenance mode can be switched and inspected.
func TestMaintenanceHandler(t *testing.T) {
	api := newTestAPIHandler(nil, nil)

	w := httptest.NewRecorder()
	api.Maintenance(w, httptest.NewRequest(http.MethodGet, "/ops/maintenance?status=enable&msg=upgrading", nil), nil)
	code, m := readResponse(t, w)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Maintenance mode enabled successfully.", m["message"])
	assert.Equal(t, "upgrading", m["maintenance.message"])
	assert.Equal(t, "Sun, 02 Jul 2023 00:00:00 UTC", m["maintenance.started"])
	assert.True(t, api.mode.enabled.Load())

	w = httptest.NewRecorder()
	api.Maintenance(w, httptest.NewRequest(http.MethodGet, "/ops/maintenance", nil), nil)
	_, m = readResponse(t, w)
	assert.Equal(t, true, m["enabled"])
	assert.Equal(t, "upgrading", m["message"])

	w = httptest.NewRecorder()
	api.Maintenance(w, httptest.NewRequest(http.MethodGet, "/ops/maintenance?status=disable", nil), nil)
	_, m = readResponse(t, w)
	assert.Equal(t, "Maintenance mode disabled successfully.", m["message"])
	assert.False(t, api.mode.enabled.Load())

	enabled, message, started := api.maintenanceState()
	assert.False(t, enabled)
	assert.Empty(t, message)
	assert.Empty(t, started)
}

// TestGetStatisticsHandler ensures ops statistics reflect the served requests.
func TestGetStatisticsHandler(t *testing.T) {
	api := newTestAPIHandler(&Config{Storage: StorageConfig{Driver: StorageDriverBoltDB}}, nil)
	api.stats.version = "v1.0.0"
	api.stats.called = 3
	api.stats.status[http.StatusOK] = 2

	w := httptest.NewRecorder()
	api.GetStatistics(w, httptest.NewRequest(http.MethodGet, "/ops/stats", nil), nil)
	code, m := readResponse(t, w)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "v1.0.0", m["app.version"])
	assert.Equal(t, "boltdb", m["app.storage"])
	assert.Equal(t, float64(2), m["called"])
	assert.Equal(t, map[string]interface{}{"200": float64(2)}, m["status"])
	assert.Equal(t, "0 mins", m["uptime"])
}

// TestGetConfigsHandler ensures credentials never leave the service.
func TestGetConfigsHandler(t *testing.T) {
	config := &Config{
		Postgres: PostgresConfig{DSN: "postgres://books:secret@db:5432/books"},
		Redis:    RedisConfig{Host: "cache", Username: "books", Password: "secret"},
	}
	api := newTestAPIHandler(config, nil)
	w := httptest.NewRecorder()
	api.GetConfigs(w, httptest.NewRequest(http.MethodGet, "/ops/configs", nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"host":"cache"`)
	assert.NotContains(t, body, "secret")
}

// TestGetMetricsHandler ensures observed requests are exposed in prometheus format.
func TestGetMetricsHandler(t *testing.T) {
	api := newTestAPIHandler(nil, nil)
	api.metrics.Observe(http.MethodGet, http.StatusOK, 20*time.Millisecond)

	w := httptest.NewRecorder()
	api.GetMetrics(w, httptest.NewRequest(http.MethodGet, "/ops/metrics", nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `books_http_requests_total{code="200",method="GET"} 1`)
	assert.Contains(t, body, "books_http_request_duration_seconds")
	assert.Contains(t, body, "go_goroutines")
}

// TestRuntimeHandlers ensures the runtime ops endpoints answer.
func TestRuntimeHandlers(t *testing.T) {
	api := newTestAPIHandler(nil, nil)

	w := httptest.NewRecorder()
	GetMemStats(w, httptest.NewRequest(http.MethodGet, "/ops/debug/vars", nil), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"goroutines"`)
	assert.Contains(t, w.Body.String(), `"memstats"`)

	w = httptest.NewRecorder()
	api.RunGC(w, httptest.NewRequest(http.MethodGet, "/ops/debug/gc", nil), nil)
	_, m := readResponse(t, w)
	assert.Equal(t, "go runtime.GC()", m["called"])

	w = httptest.NewRecorder()
	api.FreeOSMemory(w, httptest.NewRequest(http.MethodGet, "/ops/debug/fos", nil), nil)
	_, m = readResponse(t, w)
	assert.Equal(t, "go debug.FreeOSMemory()", m["called"])
}

// TestNotFoundHandler ensures unknown routes get a json answer.
func TestNotFoundHandler(t *testing.T) {
	api := newTestAPIHandler(nil, nil)
	w := httptest.NewRecorder()
	api.NotFound().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/unknown", nil))
	code, m := readResponse(t, w)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "r:abc", m["requestid"])
	assert.Equal(t, "DELETE /unknown", m["path"])
}

// TestWriteResponse_AbortedRequest ensures nothing but the status is written for gone clients.
func TestWriteResponse_AbortedRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/books", nil)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()

	w := httptest.NewRecorder()
	err := WriteResponse(ctx, w, GenericResponse("r:abc", http.StatusOK, "ok", nil, nil))
	require.Error(t, err)
	assert.Equal(t, 499, w.Code)
	assert.Empty(t, strings.TrimSpace(w.Body.String()))
}

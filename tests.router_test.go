package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiddlewareMap() *MiddlewareMap {
	return &MiddlewareMap{public: (&Middlewares{}).Chain, ops: (&Middlewares{}).Chain}
}

// TestSetupBookRoutes ensures all expected book endpoints are implemented.
func TestSetupBookRoutes(t *testing.T) {
	testCases := []struct {
		name        string
		request     *http.Request
		implemented bool
	}{
		{"index endpoint", httptest.NewRequest(http.MethodGet, "/", nil), true},
		{"status endpoint", httptest.NewRequest(http.MethodGet, "/status", nil), true},
		{"create book endpoint", httptest.NewRequest(http.MethodPost, "/books", nil), true},
		{"fetch all books endpoint", httptest.NewRequest(http.MethodGet, "/books", nil), true},
		{"fetch all books endpoint with slash", httptest.NewRequest(http.MethodGet, "/books/", nil), true},
		{"fetch single book endpoint", httptest.NewRequest(http.MethodGet, "/books/1", nil), true},
		{"update book endpoint", httptest.NewRequest(http.MethodPut, "/books/1", nil), true},
		{"delete book endpoint", httptest.NewRequest(http.MethodDelete, "/books/1", nil), true},
		{"search endpoint", httptest.NewRequest(http.MethodGet, "/books/search?keyword=go", nil), true},
		{"low stock endpoint", httptest.NewRequest(http.MethodGet, "/books/low-stock", nil), true},
		{"statistics endpoint", httptest.NewRequest(http.MethodGet, "/books/statistics", nil), true},
		{"recent endpoint", httptest.NewRequest(http.MethodGet, "/books/recent?year=2020", nil), true},
		{"price range endpoint", httptest.NewRequest(http.MethodGet, "/books/price-range?min=1&max=2", nil), true},
		{"by isbn endpoint", httptest.NewRequest(http.MethodGet, "/books/isbn/0441172717", nil), true},
		{"by title endpoint", httptest.NewRequest(http.MethodGet, "/books/title/dune", nil), true},
		{"by author endpoint", httptest.NewRequest(http.MethodGet, "/books/author/herbert", nil), true},
		{"by category endpoint", httptest.NewRequest(http.MethodGet, "/books/category/fiction", nil), true},
		{"by status endpoint", httptest.NewRequest(http.MethodGet, "/books/status/available", nil), true},
		{"add stock endpoint", httptest.NewRequest(http.MethodPost, "/books/1/add-stock?quantity=1", nil), true},
		{"reduce stock endpoint", httptest.NewRequest(http.MethodPost, "/books/1/reduce-stock?quantity=1", nil), true},
		{"unknown stock action", httptest.NewRequest(http.MethodPost, "/books/1/sell?quantity=1", nil), false},
		{"unknown lookup attribute", httptest.NewRequest(http.MethodGet, "/books/color/red", nil), false},
		{"invalid api endpoint", httptest.NewRequest(http.MethodGet, "/v1", nil), false},
		{"invalid books endpoint", httptest.NewRequest(http.MethodGet, "/v1/books", nil), false},
	}

	api := newTestAPIHandler(nil, newTestBoltStore(t))
	_, err := api.bookService.Add(context.Background(), BookRequest{Title: "Dune", Author: "Frank Herbert", ISBN: strPtr("0441172717")})
	require.NoError(t, err)
	router := httprouter.New()
	router.NotFound = api.NotFound()
	api.SetupBookRoutes(router, newTestMiddlewareMap())

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tc.request)
			if tc.implemented {
				assert.NotEqual(t, 404, w.Code)
			} else {
				assert.Equal(t, 404, w.Code)
			}
		})
	}
}

// TestSetupOpsRoutes ensures all expected operations endpoints are implemented.
func TestSetupOpsRoutes(t *testing.T) {
	testCases := []struct {
		name        string
		profiler    bool
		request     *http.Request
		implemented bool
	}{
		{"fetch configs endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/configs", nil), true},
		{"fetch stats endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/stats", nil), true},
		{"maintenance mode endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/maintenance", nil), true},
		{"metrics endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/metrics", nil), true},
		{"memory stats endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/debug/vars", nil), true},
		{"invalid ops endpoint", false, httptest.NewRequest(http.MethodGet, "/ops", nil), false},
		{"unknown ops endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/unknown", nil), false},
		{"disabled profiler endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/", nil), false},
		{"enabled profiler endpoint", true, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/", nil), true},
		{"enabled profiler heap endpoint", true, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/heap", nil), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := &Config{ProfilerEndpointsEnable: tc.profiler}
			api := newTestAPIHandler(config, nil)
			router := httprouter.New()
			api.SetupOpsRoutes(router, newTestMiddlewareMap())
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tc.request)
			if tc.implemented {
				assert.NotEqual(t, 404, w.Code)
			} else {
				assert.Equal(t, 404, w.Code)
			}
		})
	}
}

// TestSetupRoutes ensures all expected endpoints are implemented.
func TestSetupRoutes(t *testing.T) {
	testCases := []struct {
		name               string
		OpsEndpointsEnable bool
		request            *http.Request
		implemented        bool
	}{
		{"ops disable:fetch configs endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/configs", nil), false},
		{"ops enable:fetch configs endpoint", true, httptest.NewRequest(http.MethodGet, "/ops/configs", nil), true},
		{"ops enable:disabled profiler endpoint", true, httptest.NewRequest(http.MethodGet, "/ops/debug/pprof/", nil), false},
		{"ops disable:create book endpoint", false, httptest.NewRequest(http.MethodPost, "/books", nil), true},
		{"ops enable:create book endpoint", true, httptest.NewRequest(http.MethodPost, "/books", nil), true},
		{"swagger endpoint", false, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil), true},
		{"invalid ops endpoint", false, httptest.NewRequest(http.MethodGet, "/ops/", nil), false},
		{"invalid book endpoint", false, httptest.NewRequest(http.MethodGet, "/v1/books/", nil), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := &Config{OpsEndpointsEnable: tc.OpsEndpointsEnable}
			api := newTestAPIHandler(config, newTestBoltStore(t))
			router := api.SetupRoutes(httprouter.New(), newTestMiddlewareMap())
			w := httptest.NewRecorder()
			router.ServeHTTP(w, tc.request)
			if tc.implemented {
				assert.NotEqual(t, 404, w.Code)
			} else {
				assert.Equal(t, 404, w.Code)
			}
		})
	}
}

// TestSetupRoutes_NotFound ensures exact status code and json response body when a user requests an inexistant route.
func TestSetupRoutes_NotFound(t *testing.T) {
	api := newTestAPIHandler(nil, nil)
	router := api.SetupRoutes(httprouter.New(), newTestMiddlewareMap())
	r := httptest.NewRequest(http.MethodGet, "/x/books/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	res := w.Result()
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "application/json; charset=UTF-8", res.Header.Get("Content-Type"))
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	expected := `{"requestid":"r:abc", "message":"route does not exist", "path":"GET /x/books/"}`
	assert.JSONEq(t, expected, string(data))
}

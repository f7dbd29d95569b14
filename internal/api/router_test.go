package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kiranshivaraju/covergen/internal/api"
	mw "github.com/kiranshivaraju/covergen/internal/api/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "cg_router_test_token"

// --- stub counter ---

type stubCache struct{ count int64 }

func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	c.count++
	return c.count, nil
}

// --- router tests ---

func newTestRouter(limit int) http.Handler {
	named := func(name string) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(name))
		}
	}
	return api.NewRouter(api.Dependencies{
		Logger:    zerolog.Nop(),
		Auth:      mw.NewAuth(testToken, ""),
		RateLimit: mw.NewRateLimit(&stubCache{}, limit),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
		GenerateHandler:  named("generate"),
		GetJobHandler:    named("job"),
		JobStatusHandler: named("status"),
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(60)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(60)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/covers/generate"},
		{"GET", "/api/v1/covers/jobs/4f7a1f9e-5d4e-4c3b-9a61-0c1d2e3f4a5b"},
		{"GET", "/api/v1/covers/jobs/4f7a1f9e-5d4e-4c3b-9a61-0c1d2e3f4a5b/status"},
		{"POST", "/api/v1/manuscripts/4f7a1f9e-5d4e-4c3b-9a61-0c1d2e3f4a5b/cover-jobs"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_RoutesAuthenticatedRequests(t *testing.T) {
	router := newTestRouter(60)

	tests := []struct {
		method, path, want string
	}{
		{"POST", "/api/v1/covers/generate", "generate"},
		{"GET", "/api/v1/covers/jobs/abc", "job"},
		{"GET", "/api/v1/covers/jobs/abc/status", "status"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", "Bearer "+testToken)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestRouter_UnwiredHandlerIsNotImplemented(t *testing.T) {
	router := newTestRouter(60)

	req := httptest.NewRequest("POST", "/api/v1/manuscripts/abc/cover-jobs", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_RateLimited(t *testing.T) {
	router := newTestRouter(1)

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest("GET", "/api/v1/covers/jobs/abc", nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, "request %d", i)
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(60)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

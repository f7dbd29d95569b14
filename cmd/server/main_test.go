package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kiranshivaraju/covergen/internal/config"
	"github.com/kiranshivaraju/covergen/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── mock pinger ─────────────────────────────────────────────────────────────

type testPinger struct {
	pingErr error
}

func (p *testPinger) Ping(_ context.Context) error { return p.pingErr }

// ─── health handler tests ───────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(&testPinger{}, &testPinger{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "ok", data["status"])
	services := data["services"].(map[string]any)
	assert.Equal(t, "ok", services["database"])
	assert.Equal(t, "ok", services["cache"])
}

func TestHealthHandler_DatabaseDegraded(t *testing.T) {
	h := healthHandler(&testPinger{pingErr: errors.New("connection refused")}, &testPinger{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DEGRADED", errObj["code"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, "degraded", details["database"])
	assert.Equal(t, "ok", details["cache"])
}

func TestHealthHandler_CacheDegraded(t *testing.T) {
	h := healthHandler(&testPinger{}, &testPinger{pingErr: errors.New("redis down")})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	h(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// ─── object store selection ─────────────────────────────────────────────────

func TestNewObjectStore_Filesystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	st, base, err := newObjectStore(config.StorageConfig{
		Driver:    "filesystem",
		LocalPath: dir,
		PublicURL: "http://localhost:8080/uploads",
	})
	require.NoError(t, err)
	fs, ok := st.(*objectstore.FileStore)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:8080/uploads", base)
	assert.NotEmpty(t, fs.BasePath())
}

func TestNewObjectStore_R2DefaultsPublicURL(t *testing.T) {
	st, base, err := newObjectStore(config.StorageConfig{
		Driver:          "r2",
		R2AccountID:     "acct",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "bearing-uploads",
	})
	require.NoError(t, err)
	s3Store, ok := st.(*objectstore.S3Store)
	require.True(t, ok)
	assert.Equal(t, "bearing-uploads", s3Store.Bucket())
	assert.Equal(t, "https://bearing-uploads.r2.dev", base)
}

func TestNewObjectStore_UnknownDriver(t *testing.T) {
	_, _, err := newObjectStore(config.StorageConfig{Driver: "gcs"})
	require.Error(t, err)
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnMissingConfig(t *testing.T) {
	clearConfigEnv(t)

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnInvalidDatabaseURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DATABASE_URL", "not-a-valid-url")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("AUTH_TOKEN", "cg_test_token")
	t.Setenv("STORAGE_DRIVER", "filesystem")
	t.Setenv("STORAGE_LOCAL_PATH", t.TempDir())

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect database")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}

// ─── helper: clear env ──────────────────────────────────────────────────────

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATABASE_URL", "REDIS_URL", "AUTH_TOKEN", "AUTH_TOKEN_HASH",
		"STORAGE_DRIVER", "R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY",
		"R2_ENDPOINT", "VERTEX_BASE_URL", "NATS_URL",
	} {
		t.Setenv(key, "")
	}
}

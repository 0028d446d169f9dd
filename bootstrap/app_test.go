package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"formdesk/config"
	"formdesk/storage"
	"formdesk/util/goroutine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func newAppTestConfig(t *testing.T) *config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse battery staple"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{Address: "127.0.0.1:0", ShutdownTimeout: time.Second},
		Auth: config.AuthConfig{
			JWTSecret:        "k8Xq2mN7vR4tY9wB3zL6pF1sD5hJ0cGa",
			AdminUsername:    "admin",
			HashedPassword:   string(hash),
			BcryptCost:       bcrypt.MinCost,
			AccessTokenTTL:   time.Hour,
			RefreshTokenTTL:  7 * 24 * time.Hour,
			CSRFTokenTTL:     15 * time.Minute,
			MaxLoginAttempts: 5,
			LoginWindow:      15 * time.Minute,
			RedirectURL:      "/admin/dashboard",
		},
		Store:    config.StoreConfig{Driver: storage.DriverMemory, GCInterval: time.Minute},
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "data", "formdesk.db")},
		API: config.APIConfig{
			RequestTimeout:      5 * time.Second,
			StaticDir:           t.TempDir(),
			MaxRequestBodyBytes: 1 << 16,
		},
		Logging: config.LoggingConfig{Level: "debug", Format: "console"},
	}
	return cfg
}

func TestNewAppWithConfig_WiresComponents(t *testing.T) {
	cfg := newAppTestConfig(t)
	logger := zaptest.NewLogger(t)

	app, err := NewAppWithConfig(context.Background(), cfg, logger)
	require.NoError(t, err)
	defer app.Shutdown()

	require.NotNil(t, app.Storage)
	assert.Equal(t, storage.DriverMemory, app.Storage.KV.Driver())
	require.NotNil(t, app.Auth)
	require.NotNil(t, app.APIServer)

	rec := httptest.NewRecorder()
	app.APIServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestNewAppWithConfig_IssuesCSRFTokens(t *testing.T) {
	cfg := newAppTestConfig(t)
	app, err := NewAppWithConfig(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer app.Shutdown()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "9b2f3c1e-5d4a-4f6b-8c7d-1e2f3a4b5c6d"})
	rec := httptest.NewRecorder()
	app.APIServer.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewAppWithConfig_BadDriverFails(t *testing.T) {
	cfg := newAppTestConfig(t)
	cfg.Store.Driver = "etcd"

	_, err := NewAppWithConfig(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key-value store")
}

func TestShutdown_Idempotent(t *testing.T) {
	goroutine.AssertNoLeaks(t)

	cfg := newAppTestConfig(t)
	app, err := NewAppWithConfig(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	app.Shutdown()
	assert.NotPanics(t, app.Shutdown)
}

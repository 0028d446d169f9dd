package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"formdesk/auth"
	"formdesk/config"
	"formdesk/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret   = "k8Xq2mN7vR4tY9wB3zL6pF1sD5hJ0cGa"
	testUsername = "admin"
	testPassword = "correct horse battery staple"
)

type testServer struct {
	api     *API
	handler http.Handler
	mr      *miniredis.Miniredis
	store   storage.KVStore
	db      *storage.SQLite
}

func writeStaticPages(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "admin"), 0o755))
	pages := map[string]string{
		"index.html":           "<html>contact form</html>",
		"admin/login.html":     "<html>admin login</html>",
		"admin/dashboard.html": "<html>admin dashboard</html>",
		"app.js":               "console.log('ok')",
	}
	for name, body := range pages {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t).Sugar()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := storage.NewRedisStore(context.Background(), storage.RedisConfig{Addr: mr.Addr()}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	db, err := storage.NewSQLite(context.Background(), ":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	authenticator, err := auth.New(auth.Config{
		JWTSecret:         testSecret,
		AdminUsername:     testUsername,
		AdminPasswordHash: string(hash),
		MaxLoginAttempts:  5,
		LoginWindow:       15 * time.Minute,
	}, store, logger)
	require.NoError(t, err)

	cfg := &config.Config{
		API: config.APIConfig{
			RequestTimeout:      5 * time.Second,
			StaticDir:           writeStaticPages(t),
			AllowedOrigins:      []string{"https://forms.example.org"},
			MaxRequestBodyBytes: 1 << 16,
		},
	}
	for _, m := range mutate {
		m(cfg)
	}

	a := NewAPI(authenticator, storage.NewSQLiteSubmissionStorage(db),
		map[string]Pinger{"kv": store, "database": db}, cfg, logger)
	return &testServer{api: a, handler: a.Handler(), mr: mr, store: store, db: db}
}

type requestOption func(*http.Request)

func withCookie(name, value string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: name, Value: value}) }
}

func withRemoteAddr(addr string) requestOption {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func withHeader(name, value string) requestOption {
	return func(r *http.Request) { r.Header.Set(name, value) }
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}, opts ...requestOption) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func findCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "body: %s", rec.Body.String())
}

// csrfToken fetches a token bound to sessionID.
func (s *testServer) csrfToken(t *testing.T, sessionID string) string {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/v1/csrf-token", nil, withCookie(sessionIDCookie, sessionID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp csrfTokenResponse
	decodeBody(t, rec, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (s *testServer) postLogin(t *testing.T, sessionID, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	token := s.csrfToken(t, sessionID)
	return s.do(t, http.MethodPost, loginPath,
		map[string]string{"username": username, "password": password},
		withCookie(sessionIDCookie, sessionID),
		withHeader(csrfHeader, token))
}

// loginCookie performs a successful login and returns the admin session cookie value.
func (s *testServer) loginCookie(t *testing.T) string {
	t.Helper()
	rec := s.postLogin(t, "pre-login-session", testUsername, testPassword)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := findCookie(rec, adminSessionCookie)
	require.NotNil(t, c)
	return c.Value
}

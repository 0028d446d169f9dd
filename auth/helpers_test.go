package auth

import (
	"context"
	"testing"

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

type testEnv struct {
	mr    *miniredis.Miniredis
	store storage.KVStore
	auth  *Authenticator
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, storage.KVStore) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := storage.NewRedisStore(context.Background(), storage.RedisConfig{Addr: mr.Addr()}, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return mr, store
}

func testConfig(t *testing.T) Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	return Config{
		JWTSecret:         testSecret,
		AdminUsername:     testUsername,
		AdminPasswordHash: string(hash),
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, store := newTestStore(t)
	a, err := New(testConfig(t), store, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return &testEnv{mr: mr, store: store, auth: a}
}

// loginRequest issues a fresh CSRF token for sessionID and builds a request.
func (e *testEnv) loginRequest(t *testing.T, sessionID, username, password string) LoginRequest {
	t.Helper()
	token, _, err := e.auth.CSRF().CreateToken(context.Background(), sessionID)
	require.NoError(t, err)
	return LoginRequest{
		CSRFToken: token,
		SessionID: sessionID,
		Username:  username,
		Password:  password,
		SourceIP:  "203.0.113.7",
	}
}

func (e *testEnv) login(t *testing.T) *LoginResult {
	t.Helper()
	res, err := e.auth.Login(context.Background(), e.loginRequest(t, "pre-login", testUsername, testPassword))
	require.NoError(t, err)
	return res
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "error: %v", err)
}


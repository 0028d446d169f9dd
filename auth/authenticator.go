package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"formdesk/metrics"
	"formdesk/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Config holds everything the authentication core needs. It is loaded once at
// startup and passed in; nothing here reads the environment.
type Config struct {
	JWTSecret         string
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	CSRFTokenTTL      time.Duration
	MaxLoginAttempts  int
	LoginWindow       time.Duration
	AdminUsername     string
	AdminPasswordHash string
	RedirectURL       string
}

// LoginRequest carries the inputs of one login attempt. SourceIP is only logged.
type LoginRequest struct {
	CSRFToken string
	SessionID string
	Username  string
	Password  string
	SourceIP  string
}

// LoginResult is returned on success.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
	ExpiresIn    time.Duration
	RedirectURL  string
}

// CookieValue is the admin session cookie payload.
func (r *LoginResult) CookieValue() string {
	return r.AccessToken + ":" + r.RefreshToken
}

// Authenticator runs login, logout and session validation.
type Authenticator struct {
	tokens   *TokenService
	csrf     *CSRFService
	limiter  *LoginLimiter
	sessions *SessionManager

	adminUsernameDigest [32]byte
	passwordHash        []byte
	dummyHash           []byte
	compareHash         func(hash, password []byte) error

	redirectURL string
	logger      *zap.SugaredLogger
}

// New wires the token, CSRF, limiter and session components over store.
func New(cfg Config, store storage.KVStore, logger *zap.SugaredLogger) (*Authenticator, error) {
	tokens, err := NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}
	return NewAuthenticator(cfg,
		tokens,
		NewCSRFService(store, cfg.CSRFTokenTTL, logger),
		NewLoginLimiter(store, cfg.MaxLoginAttempts, cfg.LoginWindow),
		NewSessionManager(store, tokens.AccessTTL()),
		logger,
	)
}

// NewAuthenticator assembles an Authenticator from its parts.
func NewAuthenticator(cfg Config, tokens *TokenService, csrf *CSRFService, limiter *LoginLimiter, sessions *SessionManager, logger *zap.SugaredLogger) (*Authenticator, error) {
	if cfg.AdminUsername == "" {
		return nil, internal(errors.New("admin username is not configured"))
	}
	hash := []byte(cfg.AdminPasswordHash)
	cost, err := bcrypt.Cost(hash)
	if err != nil {
		return nil, internal(fmt.Errorf("admin password hash is not a bcrypt hash: %w", err))
	}
	dummy, err := dummyHash(cost)
	if err != nil {
		return nil, internal(err)
	}

	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = DefaultRedirectURL
	}

	return &Authenticator{
		tokens:              tokens,
		csrf:                csrf,
		limiter:             limiter,
		sessions:            sessions,
		adminUsernameDigest: sha256.Sum256([]byte(cfg.AdminUsername)),
		passwordHash:        hash,
		dummyHash:           dummy,
		compareHash:         bcrypt.CompareHashAndPassword,
		redirectURL:         redirect,
		logger:              logger,
	}, nil
}

// dummyHash hashes a random password at the cost of the real hash, so a wrong
// username costs the same bcrypt work as a wrong password.
func dummyHash(cost int) ([]byte, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to read random bytes: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword(secret, cost)
	if err != nil {
		return nil, fmt.Errorf("failed to build dummy hash: %w", err)
	}
	return hash, nil
}

// CSRF exposes the CSRF service for the token endpoint.
func (a *Authenticator) CSRF() *CSRFService { return a.csrf }

// AccessTTL is the session and access token lifetime.
func (a *Authenticator) AccessTTL() time.Duration { return a.tokens.AccessTTL() }

// RemainingAttempts reports failures left before username is locked out.
func (a *Authenticator) RemainingAttempts(ctx context.Context, username string) (int, error) {
	return a.limiter.Remaining(ctx, username)
}

// Login validates the CSRF token, enforces the attempt limit, checks the
// credentials and creates a session. Each step short-circuits the rest.
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if req.CSRFToken == "" || req.SessionID == "" {
		a.auditLogin(req, metrics.OutcomeInvalid, "missing_csrf")
		return nil, unauthorized(MsgMissingCSRF, nil)
	}
	if err := a.csrf.ValidateAndConsume(ctx, req.SessionID, req.CSRFToken); err != nil {
		a.auditLogin(req, metrics.OutcomeInvalid, "invalid_csrf")
		return nil, err
	}

	// Whitespace only matters for the emptiness check; the raw value is compared and counted.
	username := req.Username
	if err := a.limiter.CheckAllowed(ctx, username); err != nil {
		if KindOf(err) == KindTooManyRequests {
			a.auditLogin(req, metrics.OutcomeRateLimited, "too_many_attempts")
		}
		return nil, err
	}

	if strings.TrimSpace(username) == "" || req.Password == "" {
		if err := a.limiter.RecordFailure(ctx, username); err != nil {
			return nil, err
		}
		a.auditLogin(req, metrics.OutcomeFailure, "missing_credentials")
		return nil, badRequest(MsgCredentialsRequired)
	}

	if !a.verifyCredentials(username, req.Password) {
		if err := a.limiter.RecordFailure(ctx, username); err != nil {
			return nil, err
		}
		a.auditLogin(req, metrics.OutcomeFailure, "invalid_credentials")
		return nil, unauthorized(MsgInvalidCredentials, nil)
	}

	sessionID := uuid.New().String()
	pair, err := a.tokens.IssuePair(username, RoleAdmin, sessionID)
	if err != nil {
		return nil, err
	}

	rec := &SessionRecord{
		AdminID:      uuid.New().String(),
		Username:     username,
		Role:         RoleAdmin,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	if err := a.sessions.Create(ctx, sessionID, rec); err != nil {
		return nil, internal(err)
	}
	if err := a.limiter.Clear(ctx, username); err != nil {
		return nil, err
	}

	metrics.SessionsCreated.Inc()
	a.auditLogin(req, metrics.OutcomeSuccess, "")

	return &LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		SessionID:    sessionID,
		ExpiresIn:    a.tokens.AccessTTL(),
		RedirectURL:  a.redirectURL,
	}, nil
}

// verifyCredentials always performs exactly one bcrypt comparison.
func (a *Authenticator) verifyCredentials(username, password string) bool {
	digest := sha256.Sum256([]byte(username))
	userOK := subtle.ConstantTimeCompare(digest[:], a.adminUsernameDigest[:]) == 1

	hash := a.dummyHash
	if userOK {
		hash = a.passwordHash
	}
	passOK := a.compareHash(hash, []byte(password)) == nil
	return userOK && passOK
}

func (a *Authenticator) auditLogin(req LoginRequest, outcome, reason string) {
	metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	if outcome == metrics.OutcomeSuccess {
		a.logger.Infow("AUDIT: Admin login successful",
			"action", "login",
			"outcome", outcome,
			"username", req.Username,
			"source_ip", req.SourceIP,
			"timestamp", time.Now().UTC())
		return
	}
	a.logger.Infow("AUDIT: Admin login attempt failed",
		"action", "login",
		"outcome", outcome,
		"username", req.Username,
		"source_ip", req.SourceIP,
		"reason", reason,
		"timestamp", time.Now().UTC())
}

// Authenticate validates the admin session cookie and records activity.
// Store failures are KindInternal; everything else is KindUnauthorized.
func (a *Authenticator) Authenticate(ctx context.Context, cookieValue string) (*AdminClaims, error) {
	accessToken := accessTokenFromCookie(cookieValue)
	if accessToken == "" {
		return nil, unauthorized(MsgInvalidToken, nil)
	}

	claims, err := a.tokens.Verify(accessToken)
	if err != nil {
		return nil, err
	}

	rec, err := a.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, unauthorized(MsgSessionExpired, err)
	}
	if err != nil {
		return nil, internal(err)
	}
	// A refresh token carries the same session id; only the stored access token opens the session.
	if subtle.ConstantTimeCompare([]byte(rec.AccessToken), []byte(accessToken)) != 1 {
		return nil, unauthorized(MsgInvalidToken, errors.New("token does not belong to session"))
	}

	if err := a.sessions.Touch(ctx, claims.SessionID, rec); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, unauthorized(MsgSessionExpired, err)
		}
		return nil, internal(err)
	}
	return claims, nil
}

// CurrentSession returns the Session Record behind verified claims.
func (a *Authenticator) CurrentSession(ctx context.Context, claims *AdminClaims) (*SessionRecord, error) {
	if claims == nil {
		return nil, unauthorized(MsgInvalidToken, nil)
	}
	rec, err := a.sessions.Get(ctx, claims.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, unauthorized(MsgSessionExpired, err)
	}
	if err != nil {
		return nil, internal(err)
	}
	return rec, nil
}

// Logout deletes the session behind cookieValue. Undecodable cookies are
// ignored so logout always succeeds for the client; only store failures are
// returned.
func (a *Authenticator) Logout(ctx context.Context, cookieValue, sourceIP string) error {
	accessToken := accessTokenFromCookie(cookieValue)
	if accessToken == "" {
		return nil
	}

	var sessionID, username string
	if claims, err := a.tokens.Decode(accessToken); err == nil {
		sessionID, username = claims.SessionID, claims.Subject
	} else {
		a.logger.Debugw("Could not decode token for logout", "error", err)
		id, lookupErr := a.sessions.LookupByToken(ctx, accessToken)
		if errors.Is(lookupErr, ErrSessionNotFound) {
			return nil
		}
		if lookupErr != nil {
			return internal(lookupErr)
		}
		sessionID = id
	}

	// The record knows the indexed token even when the cookie carried a stale one.
	indexed := accessToken
	if rec, err := a.sessions.Get(ctx, sessionID); err == nil {
		indexed = rec.AccessToken
		if username == "" {
			username = rec.Username
		}
	} else if !errors.Is(err, ErrSessionNotFound) {
		return internal(err)
	}

	if err := a.sessions.Delete(ctx, sessionID, indexed); err != nil {
		return internal(err)
	}
	if indexed != accessToken {
		if err := a.sessions.Delete(ctx, sessionID, accessToken); err != nil {
			return internal(err)
		}
	}

	a.logger.Infow("AUDIT: Admin logout",
		"action", "logout",
		"outcome", metrics.OutcomeSuccess,
		"username", username,
		"source_ip", sourceIP,
		"timestamp", time.Now().UTC())
	return nil
}

// accessTokenFromCookie returns the part before the first ':'.
func accessTokenFromCookie(value string) string {
	access, _, _ := strings.Cut(value, ":")
	return access
}

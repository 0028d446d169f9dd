package auth

import "time"

// Store key namespaces.
const (
	sessionKeyPrefix    = "admin_session:"
	tokenIndexKeyPrefix = "token_session:"
	csrfKeyPrefix       = "csrf:"
	loginAttemptsPrefix = "login_attempts:"
)

// Defaults used when a Config field is left zero.
const (
	DefaultAccessTokenTTL   = time.Hour
	DefaultRefreshTokenTTL  = 7 * 24 * time.Hour
	DefaultCSRFTokenTTL     = 900 * time.Second
	DefaultMaxLoginAttempts = 5
	DefaultLoginWindow      = 900 * time.Second
	DefaultRedirectURL      = "/admin/dashboard"
)

// RoleAdmin is the only role issued; there is a single configured admin.
const RoleAdmin = "admin"

func sessionKey(sessionID string) string { return sessionKeyPrefix + sessionID }

func tokenIndexKey(accessToken string) string { return tokenIndexKeyPrefix + accessToken }

func csrfKey(sessionID, token string) string { return csrfKeyPrefix + sessionID + ":" + token }

func loginAttemptsKey(username string) string { return loginAttemptsPrefix + username }

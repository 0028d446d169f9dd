package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"formdesk/auth"

	"github.com/google/uuid"
)

// loginRequest is the body of POST /admin/login. Emptiness is judged by the
// authenticator so that it counts against the attempt limit.
type loginRequest struct {
	Username string `json:"username" validate:"max=256"`
	Password string `json:"password" validate:"max=1024"`
}

// loginResponse tells the login page where to go next.
type loginResponse struct {
	RedirectURL string `json:"redirect_url"`
	ExpiresIn   int    `json:"expires_in"`
}

type csrfTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// sessionResponse describes the current admin session. Tokens are never echoed.
type sessionResponse struct {
	Username     string `json:"username"`
	Role         string `json:"role"`
	SessionID    string `json:"session_id"`
	CreatedAt    int64  `json:"created_at"`
	LastActivity int64  `json:"last_activity"`
	ExpiresAt    int64  `json:"expires_at"`
}

func adminSessionCookieWith(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     adminSessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   true, // __Secure- prefix requires it
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	}
}

// loginPage serves the login form and seeds the pre-login session_id cookie
// the CSRF token is bound to.
func (a *API) loginPage(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionIDCookie); err != nil || c.Value == "" {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionIDCookie,
			Value:    uuid.New().String(),
			Path:     "/",
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteStrictMode,
		})
	}
	a.servePage(w, r, filepath.Join("admin", "login.html"))
}

// getCSRFToken issues a single-use token bound to the session_id cookie.
func (a *API) getCSRFToken(w http.ResponseWriter, r *http.Request) {
	missing := codedResponse{Message: "Missing or invalid session_id", Code: "MISSING_SESSION"}

	c, err := r.Cookie(sessionIDCookie)
	if err != nil || c.Value == "" {
		a.respondJSON(w, missing, http.StatusUnauthorized)
		return
	}

	token, ttl, err := a.auth.CSRF().CreateToken(r.Context(), c.Value)
	if err != nil {
		if auth.KindOf(err) == auth.KindUnauthorized {
			a.respondJSON(w, missing, http.StatusUnauthorized)
			return
		}
		a.writeAuthError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	a.respondJSON(w, csrfTokenResponse{Token: token, ExpiresIn: int(ttl.Seconds())}, http.StatusOK)
}

// login handles POST /admin/login. The CSRF header and session cookie are
// checked for presence before the body is read.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	req := auth.LoginRequest{
		CSRFToken: r.Header.Get(csrfHeader),
		SourceIP:  a.clientIP(r),
	}
	if c, err := r.Cookie(sessionIDCookie); err == nil {
		req.SessionID = c.Value
	}

	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

	if req.CSRFToken == "" || req.SessionID == "" {
		// Login rejects and audits the attempt without touching the store.
		_, err := a.auth.Login(r.Context(), req)
		a.writeAuthError(w, r, err)
		return
	}

	var body loginRequest
	if err := a.decodeJSONBodyWithLimit(w, r, &body, a.maxBodyBytes()); err != nil {
		return
	}
	if err := a.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid login request format", err, a.logger)
		return
	}
	req.Username = body.Username
	req.Password = body.Password

	res, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.setRemainingAttempts(w, r, body.Username, err)
		a.writeAuthError(w, r, err)
		return
	}

	expiresIn := int(res.ExpiresIn.Seconds())
	http.SetCookie(w, adminSessionCookieWith(res.CookieValue(), expiresIn))
	a.respondJSON(w, loginResponse{RedirectURL: res.RedirectURL, ExpiresIn: expiresIn}, http.StatusOK)
}

// setRemainingAttempts adds X-RateLimit-Remaining to credential failures.
func (a *API) setRemainingAttempts(w http.ResponseWriter, r *http.Request, username string, err error) {
	if strings.TrimSpace(username) == "" {
		return
	}
	switch auth.KindOf(err) {
	case auth.KindBadRequest, auth.KindUnauthorized, auth.KindTooManyRequests:
	default:
		return
	}
	remaining, rerr := a.auth.RemainingAttempts(r.Context(), username)
	if rerr != nil {
		return
	}
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
}

// logout always clears the client cookie and redirects, even when the
// server-side session could not be removed.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(adminSessionCookie); err == nil && c.Value != "" {
		if err := a.auth.Logout(r.Context(), c.Value, a.clientIP(r)); err != nil {
			a.logger.Errorw("Failed to delete admin session on logout",
				"error", err,
				"request_id", GetRequestIDOrDefault(r.Context()))
		}
	}

	http.SetCookie(w, adminSessionCookieWith("", -1))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, loginPath, http.StatusFound)
}

func (a *API) getCurrentSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, auth.MsgInvalidToken, nil, a.logger)
		return
	}
	rec, err := a.auth.CurrentSession(r.Context(), claims)
	if err != nil {
		a.writeAuthError(w, r, err)
		return
	}

	a.respondJSON(w, sessionResponse{
		Username:     rec.Username,
		Role:         rec.Role,
		SessionID:    claims.SessionID,
		CreatedAt:    rec.CreatedAt,
		LastActivity: rec.LastActivity,
		ExpiresAt:    rec.LastActivity + int64(a.auth.AccessTTL().Seconds()),
	}, http.StatusOK)
}

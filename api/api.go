// Package api exposes the formdesk HTTP surface: the public contact form,
// the admin login flow and the guarded admin area.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"formdesk/auth"
	"formdesk/config"
	"formdesk/storage"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	loginPath     = "/admin/login"
	logoutPath    = "/admin/logout"
	dashboardPath = "/admin/dashboard"

	adminSessionCookie = "__Secure-admin-session"
	sessionIDCookie    = "session_id"
	csrfHeader         = "X-CSRF-Token"

	defaultRequestTimeout = 30 * time.Second
	defaultMaxBodyBytes   = 1 << 20
)

// Pinger is implemented by every backing store reported on /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API holds the API server
type API struct {
	router      *mux.Router
	server      *http.Server
	auth        *auth.Authenticator
	submissions storage.SubmissionStorer
	checks      map[string]Pinger
	validate    *validator.Validate
	config      *config.Config
	logger      *zap.SugaredLogger

	intakeLimiter *ipRateLimiter
}

// NewAPI creates a new API server. checks maps a component name to the store
// pinged by the health endpoint.
func NewAPI(authenticator *auth.Authenticator, submissions storage.SubmissionStorer, checks map[string]Pinger, config *config.Config, logger *zap.SugaredLogger) *API {
	api := &API{
		router:      mux.NewRouter(),
		auth:        authenticator,
		submissions: submissions,
		checks:      checks,
		validate:    newValidator(),
		config:      config,
		logger:      logger,
	}
	limiter, err := newIPRateLimiter(config.API.IntakeRateLimit)
	if err != nil {
		logger.Warnw("Submission rate limiting disabled", "error", err)
	}
	api.intakeLimiter = limiter

	api.setupRoutes()
	return api
}

// setupRoutes sets up the API routes
func (a *API) setupRoutes() {
	a.router.Use(a.requestIDMiddleware)
	a.router.Use(a.errorRecoveryMiddleware)
	a.router.Use(a.loggingMiddleware)
	a.router.Use(a.securityHeadersMiddleware)
	a.router.Use(a.corsMiddleware)

	a.router.HandleFunc("/", a.indexPage).Methods("GET")
	a.router.HandleFunc("/health", a.healthCheck).Methods("GET")
	a.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	a.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(a.config.API.StaticDir)))).Methods("GET")

	a.router.HandleFunc("/api/v1/csrf-token", a.getCSRFToken).Methods("GET")
	a.router.HandleFunc("/api/v1/contact-submissions", a.intakeRateLimit(a.createContactSubmission)).Methods("POST", "OPTIONS")

	// Login and logout sit outside the guard; everything else under /admin is behind it.
	a.router.HandleFunc(loginPath, a.loginPage).Methods("GET")
	a.router.HandleFunc(loginPath, a.login).Methods("POST")
	a.router.HandleFunc(logoutPath, a.logout).Methods("GET", "POST")
	a.router.Handle("/admin", http.RedirectHandler(dashboardPath, http.StatusFound))

	admin := a.router.PathPrefix("/admin").Subrouter()
	admin.Use(a.adminAuthMiddleware)
	admin.HandleFunc("/dashboard", a.dashboardPage).Methods("GET")

	adminAPI := admin.PathPrefix("/api/v1").Subrouter()
	adminAPI.HandleFunc("/session", a.getCurrentSession).Methods("GET")
	adminAPI.HandleFunc("/stats", a.getStatistics).Methods("GET")
	adminAPI.HandleFunc("/submissions", a.listSubmissions).Methods("GET")
	adminAPI.HandleFunc("/submissions", a.createAdminSubmission).Methods("POST")
	adminAPI.HandleFunc("/submissions/status", a.updateSubmissionStatus).Methods("PUT")
	adminAPI.HandleFunc("/submissions/{id}/comments", a.listComments).Methods("GET")
	adminAPI.HandleFunc("/submissions/{id}/comments", a.addComment).Methods("POST")

	// Unknown admin paths still pass through the guard before answering 404.
	admin.PathPrefix("/").HandlerFunc(a.notFound)
}

// Handler returns the router wrapped in the request deadline.
func (a *API) Handler() http.Handler {
	timeout := a.config.API.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return http.TimeoutHandler(a.router, timeout, `{"error":"Request timed out"}`)
}

// Start starts the API server
func (a *API) Start(addr string) error {
	a.server = &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}
	return a.server.ListenAndServe()
}

// Stop stops the API server
func (a *API) Stop(ctx context.Context) error {
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

func (a *API) maxBodyBytes() int64 {
	if a.config.API.MaxRequestBodyBytes > 0 {
		return a.config.API.MaxRequestBodyBytes
	}
	return defaultMaxBodyBytes
}

func (a *API) clientIP(r *http.Request) string {
	return getRealIP(r, a.config.API.TrustProxy, a.config.API.TrustedProxyNetworks)
}

// isAPIPath reports whether path serves JSON rather than pages.
func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/admin/api/")
}

package api

import (
	"net/http"

	"formdesk/auth"
	"formdesk/metrics"
)

// adminAuthMiddleware admits requests carrying a live admin session. Every
// failure redirects to the login page; store failures are logged at error level.
func (a *API) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(adminSessionCookie)
		if err != nil || cookie.Value == "" {
			metrics.GuardDecisions.WithLabelValues(metrics.ResultDenied).Inc()
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}

		claims, err := a.auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if auth.KindOf(err) == auth.KindInternal {
				metrics.GuardDecisions.WithLabelValues(metrics.ResultError).Inc()
				a.logger.Errorw("Admin session validation failed",
					"error", err,
					"path", r.URL.Path,
					"request_id", GetRequestIDOrDefault(r.Context()))
			} else {
				metrics.GuardDecisions.WithLabelValues(metrics.ResultDenied).Inc()
				a.logger.Debugw("Admin session rejected",
					"error", err,
					"path", r.URL.Path,
					"request_id", GetRequestIDOrDefault(r.Context()))
			}
			http.Redirect(w, r, loginPath, http.StatusFound)
			return
		}

		metrics.GuardDecisions.WithLabelValues(metrics.ResultAllowed).Inc()
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"time"
)

// respondJSON writes a JSON response with proper error handling
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// servePage serves an HTML file from the static directory.
func (a *API) servePage(w http.ResponseWriter, r *http.Request, name string) {
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, filepath.Join(a.config.API.StaticDir, name))
}

func (a *API) indexPage(w http.ResponseWriter, r *http.Request) {
	a.servePage(w, r, "index.html")
}

func (a *API) dashboardPage(w http.ResponseWriter, r *http.Request) {
	a.servePage(w, r, filepath.Join("admin", "dashboard.html"))
}

func (a *API) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found", nil, nil)
}

// healthCheck pings every backing store. Any failure answers 503.
func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(a.checks))
	for name, check := range a.checks {
		if err := check.Ping(ctx); err != nil {
			a.logger.Warnw("Health check failed", "component", name, "error", err)
			components[name] = "unavailable"
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	a.respondJSON(w, map[string]interface{}{
		"status":     status,
		"components": components,
		"time":       time.Now().UTC().Format(time.RFC3339),
	}, code)
}

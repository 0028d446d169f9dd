package api

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"
)

// securityHeadersMiddleware adds Content Security Policy and related headers.
// JSON endpoints get a policy that forbids loading anything.
func (a *API) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		csp := "default-src 'self'; " +
			"object-src 'none'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'"
		if isAPIPath(r.URL.Path) {
			csp = "default-src 'none'; " +
				"frame-ancestors 'none'; " +
				"base-uri 'none'; " +
				"form-action 'none'"
		}

		w.Header().Set("Content-Security-Policy", csp)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Cross-Origin-Resource-Policy", "same-origin")

		next.ServeHTTP(w, r)
	})
}

// errorRecoveryMiddleware turns a handler panic into a 500. The stack trace
// is logged server-side only.
func (a *API) errorRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				stackBuf := make([]byte, 4096)
				stackLen := runtime.Stack(stackBuf, false)

				a.logger.Errorw("PANIC RECOVERED",
					"error", fmt.Sprintf("%v", err),
					"request_id", GetRequestIDOrDefault(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"client_ip", a.clientIP(r),
					"stack_trace", string(stackBuf[:stackLen]),
				)

				writeError(w, http.StatusInternalServerError, "Internal server error", nil, nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// getRealIP extracts the real client IP from the request, considering proxy trust settings
func getRealIP(r *http.Request, trustProxy bool, trustedNetworks []string) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	if !trustProxy || !isTrustedProxy(directIP, trustedNetworks) {
		return directIP
	}

	// X-Forwarded-For can contain multiple IPs, take the first one (original client)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}

	// X-Real-IP header (used by nginx)
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	return directIP
}

// isTrustedProxy checks if an IP address is in the list of trusted proxy networks
func isTrustedProxy(ip string, trustedNetworks []string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, network := range trustedNetworks {
		if strings.Contains(network, "/") {
			_, ipNet, err := net.ParseCIDR(network)
			if err == nil && ipNet.Contains(parsedIP) {
				return true
			}
		} else if network == ip {
			return true
		}
	}

	return false
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID if crypto rand fails
		return fmt.Sprintf("req_%d_%d", time.Now().UnixNano(), os.Getpid())
	}
	return base64.RawURLEncoding.EncodeToString(bytes)
}

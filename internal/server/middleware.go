package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/route"
)

// Auth rejects requests that do not carry the configured credentials. A
// bearer token and basic credentials may both be configured; either is
// accepted.
func Auth(auth config.AuthConfig, next http.Handler) http.Handler {
	if !auth.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authorized(auth, r) {
			next.ServeHTTP(w, r)
			return
		}
		if auth.Username != "" {
			w.Header().Set("WWW-Authenticate", `Basic realm="resquel"`)
		}
		WriteError(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", r.URL.Query().Get("requestId"))
	})
}

func authorized(auth config.AuthConfig, r *http.Request) bool {
	if auth.BearerToken != "" {
		parts := strings.Fields(r.Header.Get("Authorization"))
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && secureEqual(parts[1], auth.BearerToken) {
			return true
		}
	}
	if auth.Username != "" && auth.Password != "" {
		user, pass, ok := r.BasicAuth()
		if ok && secureEqual(user, auth.Username) && secureEqual(pass, auth.Password) {
			return true
		}
	}
	return false
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MethodOverride lets a POST request act as another route method through
// the X-HTTP-Method-Override header. It must wrap the router.
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if override := r.Header.Get("X-HTTP-Method-Override"); override != "" {
				m := route.Method(override)
				if m.Valid() {
					r.Method = string(m.Canonical())
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Logging writes one access log record per request.
func Logging(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		status := rw.Status()
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration", time.Since(start).Truncate(time.Millisecond),
		}
		// Requests rejected before reaching a route have no generated id.
		requestID := rw.requestID
		if requestID == "" {
			requestID = r.URL.Query().Get("requestId")
		}
		if requestID != "" {
			attrs = append(attrs, "request_id", requestID)
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	})
}

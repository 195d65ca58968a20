// SPDX-License-Identifier: MIT

package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/httprate"

	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/ratelimit"
)

// Layered applies the global, per-class and per-client token buckets
// to every request. Probe and scrape endpoints bypass the limiter so a
// flooded API never reports dead to its own orchestrator.
func Layered(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}

			ip := ratelimit.GetClientIP(r)
			class := ClassForRequest(r)
			if !limiter.Allow(ip, class) {
				logger := log.WithComponentFromContext(r.Context(), "api")
				logger.Warn().
					Str("event", "ratelimit.rejected").
					Str("remote", ip).
					Str("class", class).
					Str("path", r.URL.Path).
					Msg("request rejected by rate limiter")
				writeTooManyRequests(w, 1)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClassForRequest maps a request to its rate limit class. Capture and
// stream routes get the tightest budgets because each accepted request
// touches the device or pins an encoder fanout.
func ClassForRequest(r *http.Request) string {
	path := r.URL.Path
	switch {
	case path == "/api/v1/stream":
		return ratelimit.ClassStream
	case path == "/api/v1/photos" && r.Method == http.MethodPost:
		return ratelimit.ClassCapture
	case strings.HasPrefix(path, "/api/v1/session/"),
		strings.HasPrefix(path, "/api/v1/permission/"):
		return ratelimit.ClassControl
	default:
		return ratelimit.ClassRead
	}
}

// PerClient returns an httprate sliding-window limiter keyed by client
// IP, for routes that need a tighter per-client budget than the layered
// default.
func PerClient(requestLimit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeTooManyRequests(w, int(window.Seconds()))
		}),
	)
}

func writeTooManyRequests(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"rate_limit_exceeded","detail":"too many requests"}`))
}

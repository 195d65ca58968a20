// SPDX-License-Identifier: MIT

// Package middleware provides the HTTP ingress stack for the capture
// API: panic recovery, request correlation, metrics, tracing, access
// logging and rate limiting, applied in one canonical order.
package middleware

import (
	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/camwatch/internal/ratelimit"
)

// StackConfig configures the canonical ingress middleware stack.
type StackConfig struct {
	// TracingService names the otelhttp instrumentation; empty
	// disables tracing.
	TracingService string

	EnableMetrics bool
	EnableLogging bool

	// Limiter applies the layered global/per-IP/per-class budgets.
	// Nil disables rate limiting.
	Limiter *ratelimit.Limiter
}

// NewRouter constructs a chi router with the canonical stack applied.
func NewRouter(cfg StackConfig) *chi.Mux {
	r := chi.NewRouter()
	ApplyStack(r, cfg)
	return r
}

// ApplyStack applies the canonical middleware stack to r. Order
// matters: the recoverer is outermost so a panic anywhere below still
// produces a response, and the limiter is innermost so rejected
// requests are still logged and counted.
func ApplyStack(r chi.Router, cfg StackConfig) {
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	if cfg.EnableMetrics {
		r.Use(Metrics())
	}
	if cfg.TracingService != "" {
		r.Use(Tracing(cfg.TracingService))
	}
	if cfg.EnableLogging {
		r.Use(AccessLog())
	}
	if cfg.Limiter != nil {
		r.Use(Layered(cfg.Limiter))
	}
}

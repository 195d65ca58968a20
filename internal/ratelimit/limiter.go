// SPDX-License-Identifier: MIT

// Package ratelimit bounds request rates across the capture API. Limits
// stack in three layers: a global ceiling, a per-endpoint-class budget
// and a per-client budget.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Endpoint classes. Capture touches hardware, stream holds a connection
// open, control mutates session state, read only observes.
const (
	ClassStream  = "stream"
	ClassCapture = "capture"
	ClassControl = "control"
	ClassRead    = "read"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "camwatch",
			Name:      "ratelimit_exceeded_total",
			Help:      "Total rate limit rejections",
		},
		[]string{"limit_type", "class"},
	)
)

// Config holds rate limiting configuration
type Config struct {
	// Global limits
	GlobalRate  rate.Limit // requests per second
	GlobalBurst int        // max burst size

	// Per-client limits
	PerIPRate  rate.Limit
	PerIPBurst int

	// Per-class limits
	ClassRates map[string]rate.Limit
	ClassBurst map[string]int

	// Cleanup interval for per-IP limiters
	CleanupInterval time.Duration
}

// DefaultConfig returns limits sized for a single-camera daemon.
func DefaultConfig() Config {
	return Config{
		GlobalRate:  50,
		GlobalBurst: 100,

		PerIPRate:  10,
		PerIPBurst: 20,

		ClassRates: map[string]rate.Limit{
			ClassRead:    30, // status polling is cheap
			ClassStream:  5,  // each accepted request pins an encoder fanout
			ClassControl: 5,  // session lifecycle commands
			ClassCapture: 2,  // full-quality stills hit the device
		},
		ClassBurst: map[string]int{
			ClassRead:    60,
			ClassStream:  10,
			ClassControl: 10,
			ClassCapture: 5,
		},

		CleanupInterval: 5 * time.Minute,
	}
}

// ConfigForRate derives the per-client budget from a requests-per-minute
// figure, keeping the global and per-class defaults. Non-positive values
// fall back to the defaults unchanged.
func ConfigForRate(perMinute int) Config {
	cfg := DefaultConfig()
	if perMinute <= 0 {
		return cfg
	}
	cfg.PerIPRate = rate.Limit(float64(perMinute) / 60.0)
	burst := perMinute / 3
	if burst < 5 {
		burst = 5
	}
	cfg.PerIPBurst = burst
	return cfg
}

// Limiter manages layered rate limits for the API.
type Limiter struct {
	config Config

	global   *rate.Limiter
	perIP    map[string]*rate.Limiter
	perClass map[string]*rate.Limiter
	mu       sync.RWMutex

	lastCleanup time.Time
}

// New creates a rate limiter with the given config.
func New(config Config) *Limiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	l := &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		perClass:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}

	for class, classRate := range config.ClassRates {
		burst := config.ClassBurst[class]
		l.perClass[class] = rate.NewLimiter(classRate, burst)
	}

	return l
}

// Allow checks a request against all three layers. An endpoint class
// without a configured budget only faces the global and per-client
// limits.
func (l *Limiter) Allow(clientIP, class string) bool {
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global", class).Inc()
		return false
	}

	l.mu.RLock()
	classLimiter, exists := l.perClass[class]
	l.mu.RUnlock()

	if exists && !classLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_class", class).Inc()
		return false
	}

	// Sweep before registering this client so the sweep can never drop
	// the bucket it is about to charge.
	l.maybeCleanup()

	ipLimiter := l.getIPLimiter(clientIP)
	if !ipLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_ip", class).Inc()
		return false
	}

	return true
}

func (l *Limiter) getIPLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perIP[ip]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}

	return limiter
}

// maybeCleanup drops all per-IP limiters once the interval has passed.
// Dropping everything loses at most one interval of accumulated debt,
// which is acceptable for a LAN-facing daemon.
func (l *Limiter) maybeCleanup() {
	l.mu.RLock()
	due := time.Since(l.lastCleanup) >= l.config.CleanupInterval
	l.mu.RUnlock()
	if !due {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// Another request may have cleaned up between the two locks.
	if time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}
	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// GetClientIP extracts the real client IP from the request.
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can hold a chain; the first entry is the client.
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if first != "" {
			return first
		}
	}

	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SPDX-License-Identifier: MIT

// Package httpx builds the outbound HTTP clients the daemon uses for
// webhook delivery and ops probes. Egress clients never follow
// redirects: webhook targets pass SSRF validation before delivery, and
// a redirect would move the request to a host that was never checked.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const (
	defaultEgressTimeout  = 5 * time.Second
	dialTimeoutCap        = 3 * time.Second
	headerTimeoutCap      = 3 * time.Second
	idleConnTimeout       = 30 * time.Second
	expectContinueTimeout = 1 * time.Second

	// Deliveries fan out to a handful of configured targets, so the
	// idle pool stays small.
	maxIdleConns        = 16
	maxIdleConnsPerHost = 4
)

// NewClient returns the hardened egress client. The overall timeout
// also caps the dial and response-header phases so a target that
// accepts connections but never answers cannot hold a delivery worker
// for the full budget.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultEgressTimeout
	}

	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: capped(timeout, dialTimeoutCap), KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          maxIdleConns,
			MaxIdleConnsPerHost:   maxIdleConnsPerHost,
			IdleConnTimeout:       idleConnTimeout,
			TLSHandshakeTimeout:   capped(timeout, dialTimeoutCap),
			ResponseHeaderTimeout: capped(timeout, headerTimeoutCap),
			ExpectContinueTimeout: expectContinueTimeout,
		},
	}
}

func capped(d, cap time.Duration) time.Duration {
	if d > cap {
		return cap
	}
	return d
}

// SPDX-License-Identifier: MIT

package middleware

import "net/http"

// SecurityHeaders sets conservative response headers for a LAN-facing
// daemon. The API serves JSON and JPEG bytes, never HTML, so sniffing
// and framing are both refused outright.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/ManuGH/camwatch/internal/log"
)

// AccessLog emits one structured line per completed request. Server
// errors log at error level, client errors at warn, the rest at debug
// so steady status polling stays out of the default output.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger := log.WithComponentFromContext(r.Context(), "api")
			evt := logger.Debug()
			switch {
			case ww.Status() >= 500:
				evt = logger.Error()
			case ww.Status() >= 400:
				evt = logger.Warn()
			}
			evt.
				Str("event", "http.request").
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote", r.RemoteAddr).
				Msg("request served")
		})
	}
}

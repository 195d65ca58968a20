// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/ManuGH/camwatch/internal/log"
)

const streamBoundary = "camwatchframe"

var (
	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camwatch",
		Name:      "stream_clients",
		Help:      "Currently connected MJPEG stream clients",
	})
	streamFramesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camwatch",
		Name:      "stream_frames_sent_total",
		Help:      "Frames written to MJPEG stream clients",
	})
)

// handleStream serves an MJPEG multipart stream of the live frames.
// Each client gets its own rate limiter so a fast consumer cannot pull
// frames faster than the configured FPS cap, and a slow one simply
// skips to the newest frame on its next wait.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorCode(w, http.StatusInternalServerError, "streaming_unsupported", "response writer cannot flush")
		return
	}

	fpsCap := s.holder.Get().API.StreamFPSCap
	if fpsCap <= 0 {
		fpsCap = 10
	}
	if v := r.URL.Query().Get("fps"); v != "" {
		requested, err := strconv.Atoi(v)
		if err != nil || requested <= 0 {
			writeErrorCode(w, http.StatusBadRequest, "invalid_fps", "fps must be a positive integer")
			return
		}
		if requested < fpsCap {
			fpsCap = requested
		}
	}

	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str("event", "stream.client.connected").
		Str("remote", r.RemoteAddr).
		Int("fps_cap", fpsCap).
		Msg("MJPEG client connected")

	streamClients.Inc()
	defer streamClients.Dec()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	limiter := rate.NewLimiter(rate.Limit(fpsCap), 1)
	ctx := r.Context()

	var lastSeq uint64
	frameCount := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		snap, err := s.frames.Wait(ctx, lastSeq)
		if err != nil {
			break
		}
		lastSeq = snap.Seq

		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: %s\r\nContent-Length: %d\r\n\r\n",
			streamBoundary, snap.ContentType, len(snap.Data)); err != nil {
			break
		}
		if _, err := w.Write(snap.Data); err != nil {
			break
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			break
		}
		flusher.Flush()
		streamFramesSent.Inc()
		frameCount++
	}

	logger.Info().
		Str("event", "stream.client.disconnected").
		Str("remote", r.RemoteAddr).
		Int("frames", frameCount).
		Msg("MJPEG client disconnected")
}

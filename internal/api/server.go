// SPDX-License-Identifier: MIT

// Package api exposes the capture daemon over HTTP: session lifecycle
// commands, live frames, photo capture and retrieval, the event
// journal and the usual probe endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apimw "github.com/ManuGH/camwatch/internal/api/middleware"
	"github.com/ManuGH/camwatch/internal/config"
	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/frames"
	"github.com/ManuGH/camwatch/internal/health"
	"github.com/ManuGH/camwatch/internal/journal"
	"github.com/ManuGH/camwatch/internal/photo"
	"github.com/ManuGH/camwatch/internal/ratelimit"
	"github.com/ManuGH/camwatch/internal/session"
	"github.com/ManuGH/camwatch/internal/storage"
)

// SessionControl is the slice of the lifecycle controller the API
// drives. All methods are safe to call from request goroutines; they
// enqueue onto the session queue and wait.
type SessionControl interface {
	Status() session.Status
	Start(ctx context.Context, requirePermission bool) error
	PauseStream(ctx context.Context) error
	ResumeStream(ctx context.Context) error
	AskForPermission(ctx context.Context) (device.AccessState, error)
}

// PhotoCapturer requests stills. The returned channel resolves exactly
// once.
type PhotoCapturer interface {
	Capture(ctx context.Context, settings photo.Settings) <-chan photo.Result
}

// EventTailer serves the most recent journal rows.
type EventTailer interface {
	Tail(ctx context.Context, n int) ([]journal.Entry, error)
}

// Options carries the server dependencies. Session, Frames and Holder
// are required; the rest degrade to 404/503 responses when absent.
type Options struct {
	Holder  *config.Holder
	Session SessionControl
	Photos  PhotoCapturer
	Journal EventTailer
	Index   storage.Index
	Frames  *frames.Holder
	Health  *health.Manager
	Bus     events.Bus
	Limiter *ratelimit.Limiter
}

// Server is the HTTP surface of the capture daemon.
type Server struct {
	holder  *config.Holder
	session SessionControl
	photos  PhotoCapturer
	journal EventTailer
	index   storage.Index
	frames  *frames.Holder
	health  *health.Manager
	bus     events.Bus
	limiter *ratelimit.Limiter

	startedAt time.Time
	handler   http.Handler
}

// New wires the server and builds its router once.
func New(opts Options) (*Server, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("api: session control is required")
	}
	if opts.Frames == nil {
		return nil, fmt.Errorf("api: frame holder is required")
	}
	if opts.Holder == nil {
		return nil, fmt.Errorf("api: config holder is required")
	}

	s := &Server{
		holder:    opts.Holder,
		session:   opts.Session,
		photos:    opts.Photos,
		journal:   opts.Journal,
		index:     opts.Index,
		frames:    opts.Frames,
		health:    opts.Health,
		bus:       opts.Bus,
		limiter:   opts.Limiter,
		startedAt: time.Now(),
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	cfg := s.holder.Get()

	r := apimw.NewRouter(apimw.StackConfig{
		TracingService: "camwatch-api",
		EnableMetrics:  true,
		EnableLogging:  true,
		Limiter:        s.limiter,
	})

	s.registerProbeRoutes(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/session", func(r chi.Router) {
			r.Post("/start", s.handleSessionStart)
			r.Post("/pause", s.handleSessionPause)
			r.Post("/resume", s.handleSessionResume)
			r.Post("/release", s.handleSessionRelease)
			r.Post("/acquire", s.handleSessionAcquire)
		})

		r.Post("/permission/request", s.handlePermissionRequest)

		r.Get("/frame", s.handleFrame)
		r.Get("/stream", s.handleStream)

		r.Route("/photos", func(r chi.Router) {
			capturePerClient := apimw.PerClient(perClientCaptureLimit(cfg), time.Minute)
			r.With(capturePerClient).Post("/", s.handlePhotoCapture)
			r.Get("/", s.handlePhotoList)
			r.Get("/{name}", s.handlePhotoDownload)
		})

		r.Get("/events", s.handleEvents)
		r.Get("/logs", s.handleLogs)
	})

	return r
}

func (s *Server) registerProbeRoutes(r chi.Router) {
	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	r.Handle("/metrics", promhttp.Handler())
}

// perClientCaptureLimit derives the per-client photo budget from the
// configured per-minute API rate, with a floor so one client can never
// be locked out entirely.
func perClientCaptureLimit(cfg config.Config) int {
	limit := cfg.API.RateLimit / 4
	if limit < 2 {
		limit = 2
	}
	return limit
}

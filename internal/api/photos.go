// SPDX-License-Identifier: MIT

package api

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/text/unicode/norm"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/photo"
	"github.com/ManuGH/camwatch/internal/storage"
)

var photoDownloadDenied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "camwatch",
	Name:      "photo_download_denied_total",
	Help:      "Photo download requests refused, by reason",
}, []string{"reason"})

// captureRequest is the optional body of POST /api/v1/photos.
type captureRequest struct {
	// Quality overrides the pressure-derived JPEG quality when > 0.
	Quality int `json:"quality"`
	// Orientation tags the capture: portrait, portrait_upside_down,
	// landscape_left or landscape_right.
	Orientation string `json:"orientation"`
}

// photoListResponse wraps the index listing.
type photoListResponse struct {
	Photos []storage.Record `json:"photos"`
	Count  int              `json:"count"`
}

func (s *Server) handlePhotoCapture(w http.ResponseWriter, r *http.Request) {
	if s.photos == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "capture_unavailable", "photo capture is not wired")
		return
	}

	var req captureRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Quality < 0 || req.Quality > 100 {
		writeErrorCode(w, http.StatusBadRequest, "invalid_quality", "quality must be between 0 and 100")
		return
	}

	settings := photo.Settings{
		Quality:     req.Quality,
		Orientation: device.Orientation(req.Orientation),
	}

	select {
	case result := <-s.photos.Capture(r.Context(), settings):
		if result.Err != nil {
			writeDomainError(w, result.Err, "")
			return
		}
		writeJSON(w, http.StatusCreated, result.Record)
	case <-r.Context().Done():
		writeErrorCode(w, http.StatusRequestTimeout, "request_canceled", r.Context().Err().Error())
	}
}

func (s *Server) handlePhotoList(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		writeErrorCode(w, http.StatusServiceUnavailable, "index_unavailable", "photo index is not wired")
		return
	}

	records, err := s.index.List(r.Context())
	if err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "index_error", err.Error())
		return
	}

	if records == nil {
		records = make([]storage.Record, 0)
	}
	writeJSON(w, http.StatusOK, photoListResponse{Photos: records, Count: len(records)})
}

// handlePhotoDownload serves one photo file. The name goes through
// Unicode normalization and a traversal check before it ever touches
// the filesystem, and the resolved path must stay inside the photo
// directory even through symlinks.
func (s *Server) handlePhotoDownload(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	raw := chi.URLParam(r, "name")
	name, err := url.PathUnescape(raw)
	if err != nil {
		name = raw
	}
	name = norm.NFC.String(name)

	if isUnsafeName(name) {
		logger.Warn().
			Str("event", "photo.download.denied").
			Str("name", raw).
			Str("reason", "unsafe_name").
			Msg("photo name failed safety checks")
		photoDownloadDenied.WithLabelValues("unsafe_name").Inc()
		writeErrorCode(w, http.StatusForbidden, "forbidden", "photo name is not allowed")
		return
	}

	dir, err := filepath.Abs(s.holder.Get().Photo.Dir)
	if err != nil {
		photoDownloadDenied.WithLabelValues("internal_error").Inc()
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", "photo directory unavailable")
		return
	}

	fullPath := filepath.Join(dir, name)
	realPath, err := filepath.EvalSymlinks(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			photoDownloadDenied.WithLabelValues("not_found").Inc()
			writeErrorCode(w, http.StatusNotFound, "not_found", "photo does not exist")
			return
		}
		photoDownloadDenied.WithLabelValues("internal_error").Inc()
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	realDir, err := filepath.EvalSymlinks(dir)
	if err != nil {
		photoDownloadDenied.WithLabelValues("internal_error").Inc()
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	rel, err := filepath.Rel(realDir, realPath)
	if err != nil || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		logger.Warn().
			Str("event", "photo.download.denied").
			Str("name", raw).
			Str("resolved", realPath).
			Str("reason", "path_escape").
			Msg("photo path escapes the photo directory")
		photoDownloadDenied.WithLabelValues("path_escape").Inc()
		writeErrorCode(w, http.StatusForbidden, "forbidden", "photo name is not allowed")
		return
	}

	// #nosec G304 -- realPath is contained in the photo directory
	f, err := os.Open(realPath)
	if err != nil {
		photoDownloadDenied.WithLabelValues("internal_error").Inc()
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			logger.Warn().Err(err).Str("path", realPath).Msg("failed to close photo file")
		}
	}()

	info, err := f.Stat()
	if err != nil {
		photoDownloadDenied.WithLabelValues("internal_error").Inc()
		writeErrorCode(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if info.IsDir() {
		photoDownloadDenied.WithLabelValues("directory").Inc()
		writeErrorCode(w, http.StatusForbidden, "forbidden", "photo name is not allowed")
		return
	}

	etag := fmt.Sprintf(`W/"%x-%x"`, info.ModTime().UnixNano(), info.Size())
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// isUnsafeName rejects anything but a bare file name: separators,
// parent references, hidden files and NUL bytes all fail.
func isUnsafeName(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return true
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return true
	}
	if strings.Contains(name, "..") {
		return true
	}
	return filepath.Base(name) != name
}

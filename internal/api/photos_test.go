// SPDX-License-Identifier: MIT

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/camwatch/internal/photo"
	"github.com/ManuGH/camwatch/internal/storage"
)

func TestPhotoCapture_Created(t *testing.T) {
	fx := newTestServer(t)
	fx.photos.result = photo.Result{Record: storage.Record{
		ID:        "id-1",
		Name:      "photo-20260825T101500-id-1.jpg",
		Bytes:     2048,
		Width:     1280,
		Height:    720,
		Profile:   "normal",
		Quality:   85,
		CreatedAt: time.Now(),
	}}

	rr := fx.do(http.MethodPost, "/api/v1/photos", `{"quality":90}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	got := decodeBody[storage.Record](t, rr)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, 2048, got.Bytes)
}

func TestPhotoCapture_SessionNotRunning(t *testing.T) {
	fx := newTestServer(t)
	fx.photos.result = photo.Result{Err: photo.ErrSessionNotRunning}

	rr := fx.do(http.MethodPost, "/api/v1/photos", "")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "session_not_running", decodeBody[errorResponse](t, rr).Error)
}

func TestPhotoCapture_CaptureFailed(t *testing.T) {
	fx := newTestServer(t)
	fx.photos.result = photo.Result{Err: photo.ErrCaptureFailed}

	rr := fx.do(http.MethodPost, "/api/v1/photos", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "capture_failed", decodeBody[errorResponse](t, rr).Error)
}

func TestPhotoCapture_InvalidQuality(t *testing.T) {
	fx := newTestServer(t)

	rr := fx.do(http.MethodPost, "/api/v1/photos", `{"quality":150}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_quality", decodeBody[errorResponse](t, rr).Error)
}

func TestPhotoList(t *testing.T) {
	fx := newTestServer(t)
	ctx := context.Background()

	older := storage.Record{ID: "a", Name: "a.jpg", CreatedAt: time.Now().Add(-time.Hour)}
	newer := storage.Record{ID: "b", Name: "b.jpg", CreatedAt: time.Now()}
	require.NoError(t, fx.index.Put(ctx, older))
	require.NoError(t, fx.index.Put(ctx, newer))

	rr := fx.do(http.MethodGet, "/api/v1/photos", "")
	require.Equal(t, http.StatusOK, rr.Code)

	got := decodeBody[photoListResponse](t, rr)
	require.Equal(t, 2, got.Count)
	assert.Equal(t, "b.jpg", got.Photos[0].Name, "newest first")
}

func TestPhotoList_Empty(t *testing.T) {
	fx := newTestServer(t)

	rr := fx.do(http.MethodGet, "/api/v1/photos", "")
	require.Equal(t, http.StatusOK, rr.Code)

	got := decodeBody[photoListResponse](t, rr)
	assert.Equal(t, 0, got.Count)
	assert.NotNil(t, got.Photos)
}

func TestPhotoDownload_ServesFileWithETag(t *testing.T) {
	fx := newTestServer(t)
	name := "photo-20260825T101500-abc.jpg"
	path := filepath.Join(fx.cfg.Photo.Dir, name)
	require.NoError(t, os.WriteFile(path, []byte("jpeg-data"), 0o600))

	rr := fx.do(http.MethodGet, "/api/v1/photos/"+name, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg-data", rr.Body.String())
	assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))

	etag := rr.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos/"+name, nil)
	req.Header.Set("If-None-Match", etag)
	cached := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(cached, req)
	assert.Equal(t, http.StatusNotModified, cached.Code)
}

func TestPhotoDownload_NotFound(t *testing.T) {
	fx := newTestServer(t)

	rr := fx.do(http.MethodGet, "/api/v1/photos/missing.jpg", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPhotoDownload_TraversalDenied(t *testing.T) {
	fx := newTestServer(t)

	// A file outside the photo dir that must stay unreachable.
	outside := filepath.Join(filepath.Dir(fx.cfg.Photo.Dir), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	for _, name := range []string{
		"..%2Fsecret.txt",
		"%2e%2e%2fsecret.txt",
		"..\\secret.txt",
		".hidden.jpg",
	} {
		rr := fx.do(http.MethodGet, "/api/v1/photos/"+name, "")
		assert.Equal(t, http.StatusForbidden, rr.Code, name)
		assert.NotContains(t, rr.Body.String(), "secret", name)
	}
}

func TestPhotoDownload_SymlinkEscapeDenied(t *testing.T) {
	fx := newTestServer(t)

	outside := filepath.Join(filepath.Dir(fx.cfg.Photo.Dir), "escape.jpg")
	require.NoError(t, os.WriteFile(outside, []byte("outside"), 0o600))
	link := filepath.Join(fx.cfg.Photo.Dir, "link.jpg")
	require.NoError(t, os.Symlink(outside, link))

	rr := fx.do(http.MethodGet, "/api/v1/photos/link.jpg", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestIsUnsafeName(t *testing.T) {
	tests := []struct {
		name   string
		unsafe bool
	}{
		{"photo-20260825T101500-abc.jpg", false},
		{"käse.jpg", false},
		{"", true},
		{".hidden", true},
		{"../escape.jpg", true},
		{"a/b.jpg", true},
		{"a\\b.jpg", true},
		{"null\x00.jpg", true},
		{"..", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.unsafe, isUnsafeName(tt.name), "%q", tt.name)
	}
}

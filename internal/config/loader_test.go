// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader("", "test-version")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() with defaults failed: %v", err)
	}

	if cfg.Listen != DefaultListen {
		t.Errorf("expected listen %q, got %q", DefaultListen, cfg.Listen)
	}
	if cfg.Session.MaxAge != 30*time.Minute {
		t.Errorf("expected max_age 30m, got %s", cfg.Session.MaxAge)
	}
	if cfg.Session.PermissionPollInterval != 2*time.Second {
		t.Errorf("expected permission poll 2s, got %s", cfg.Session.PermissionPollInterval)
	}
	if cfg.Motion.IdleTimeout != 30*time.Second {
		t.Errorf("expected idle timeout 30s, got %s", cfg.Motion.IdleTimeout)
	}
	if cfg.Motion.Threshold != 1.01 {
		t.Errorf("expected motion threshold 1.01, got %g", cfg.Motion.Threshold)
	}
	if cfg.Motion.SampleRateHz != 10 {
		t.Errorf("expected sample rate 10, got %d", cfg.Motion.SampleRateHz)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected version from binary, got %q", cfg.Version)
	}

	// Derived paths hang off DataDir
	if cfg.Photo.Dir != filepath.Join(cfg.DataDir, "photos") {
		t.Errorf("expected derived photo dir, got %q", cfg.Photo.Dir)
	}
	if cfg.Journal.Path != filepath.Join(cfg.DataDir, "journal.db") {
		t.Errorf("expected derived journal path, got %q", cfg.Journal.Path)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
listen: ":9000"
device:
  backend: fake
  strategy: prefer-integrated
motion:
  idle_timeout: 45s
  threshold: 1.05
photo:
  quality: 80
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, "v")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Listen != ":9000" {
		t.Errorf("expected listen :9000, got %q", cfg.Listen)
	}
	if cfg.Device.Backend != "fake" {
		t.Errorf("expected backend fake, got %q", cfg.Device.Backend)
	}
	if cfg.Motion.IdleTimeout != 45*time.Second {
		t.Errorf("expected idle timeout 45s, got %s", cfg.Motion.IdleTimeout)
	}
	if cfg.Motion.Threshold != 1.05 {
		t.Errorf("expected threshold 1.05, got %g", cfg.Motion.Threshold)
	}
	if cfg.Photo.Quality != 80 {
		t.Errorf("expected quality 80, got %d", cfg.Photo.Quality)
	}
	// Untouched keys keep defaults
	if cfg.Photo.QualityConstrained != DefaultPhotoQualityLow {
		t.Errorf("expected default constrained quality, got %d", cfg.Photo.QualityConstrained)
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "listen: \":9000\"\nmotion:\n  idle_timeout: 45s\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(EnvListen, ":9100")
	t.Setenv(EnvIdleTimeout, "60s")

	loader := NewLoader(path, "v")
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Listen != ":9100" {
		t.Errorf("env should beat file: expected :9100, got %q", cfg.Listen)
	}
	if cfg.Motion.IdleTimeout != 60*time.Second {
		t.Errorf("env should beat file: expected 60s, got %s", cfg.Motion.IdleTimeout)
	}

	// Loader tracked the consumed keys
	if _, ok := loader.ConsumedEnvKeys[EnvListen]; !ok {
		t.Error("expected EnvListen in ConsumedEnvKeys")
	}
	if _, ok := loader.ConsumedEnvKeys[EnvIdleTimeout]; !ok {
		t.Error("expected EnvIdleTimeout in ConsumedEnvKeys")
	}
}

func TestLoadStrictRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "listen: \":9000\"\nbouquets:\n  - oops\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, "v")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected strict parse error for unknown key, got nil")
	}
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "listen: \":9000\"\n---\nlisten: \":9001\"\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, "v")
	_, err := loader.Load()
	if err == nil {
		t.Fatal("expected error for multiple documents, got nil")
	}
	if !strings.Contains(err.Error(), "multiple documents") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadRejectsNonYAMLExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	loader := NewLoader(path, "v")
	if _, err := loader.Load(); err == nil {
		t.Fatal("expected error for non-YAML extension, got nil")
	}
}

func TestLoadIsDeterministic(t *testing.T) {
	l1 := NewLoader("", "v")
	l2 := NewLoader("", "v")

	a, err := l1.Load()
	if err != nil {
		t.Fatalf("first Load() failed: %v", err)
	}
	b, err := l2.Load()
	if err != nil {
		t.Fatalf("second Load() failed: %v", err)
	}

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("two default loads differ (-first +second):\n%s", diff)
	}
}

// SPDX-License-Identifier: MIT

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oasdiff/yaml"
)

// Test helper: create a minimal valid config file
func writeValidConfig(t *testing.T, path string, listen string) {
	t.Helper()
	// Use map/struct to marshal correct YAML to avoid indentation issues
	cfg := map[string]interface{}{
		"listen":   listen,
		"data_dir": "/tmp/camwatch-test",
		"device": map[string]interface{}{
			"backend": "fake",
		},
		"motion": map[string]interface{}{
			"idle_timeout": "30s",
		},
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		t.Fatalf("failed to marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

// TestNewHolder tests the Holder constructor.
func TestNewHolder(t *testing.T) {
	initial := Config{
		Listen:  ":9000",
		DataDir: "/tmp/camwatch-test",
	}

	loader := NewLoader("", "test-version")
	holder := NewHolder(initial, loader, "/path/to/config.yaml")

	if holder == nil {
		t.Fatal("expected Holder, got nil")
	}

	got := holder.Get()
	if got.Listen != initial.Listen {
		t.Errorf("expected Listen %q, got %q", initial.Listen, got.Listen)
	}
	if got.DataDir != initial.DataDir {
		t.Errorf("expected DataDir %q, got %q", initial.DataDir, got.DataDir)
	}
}

func TestHolderReloadSwapsConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeValidConfig(t, path, ":9000")

	loader := NewLoader(path, "v")
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	holder := NewHolder(initial, loader, path)

	// Change the file, then reload explicitly
	writeValidConfig(t, path, ":9001")
	if err := holder.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}

	if got := holder.Get().Listen; got != ":9001" {
		t.Errorf("expected listen :9001 after reload, got %q", got)
	}
}

func TestHolderReloadKeepsOldConfigOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeValidConfig(t, path, ":9000")

	loader := NewLoader(path, "v")
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	holder := NewHolder(initial, loader, path)

	// Break the file with an unknown key; strict parsing must reject it
	if err := os.WriteFile(path, []byte("listen: \":9001\"\nbouquets: [oops]\n"), 0600); err != nil {
		t.Fatalf("write broken config: %v", err)
	}

	if err := holder.Reload(context.Background()); err == nil {
		t.Fatal("expected reload error for broken config, got nil")
	}

	if got := holder.Get().Listen; got != ":9000" {
		t.Errorf("old config must survive failed reload, got listen %q", got)
	}
}

func TestHolderNotifiesListeners(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeValidConfig(t, path, ":9000")

	loader := NewLoader(path, "v")
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	holder := NewHolder(initial, loader, path)

	ch := make(chan Config, 1)
	holder.RegisterListener(ch)

	writeValidConfig(t, path, ":9002")
	if err := holder.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.Listen != ":9002" {
			t.Errorf("listener got listen %q, want :9002", got.Listen)
		}
	case <-time.After(time.Second):
		t.Fatal("listener was not notified within 1s")
	}
}

func TestHolderWatcherReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeValidConfig(t, path, ":9000")

	loader := NewLoader(path, "v")
	initial, err := loader.Load()
	if err != nil {
		t.Fatalf("initial load: %v", err)
	}
	holder := NewHolder(initial, loader, path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := holder.StartWatcher(ctx); err != nil {
		t.Fatalf("StartWatcher() failed: %v", err)
	}

	writeValidConfig(t, path, ":9003")

	// Debounce is 500ms; give the watcher a generous deadline
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if holder.Get().Listen == ":9003" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("watcher did not apply file change, listen still %q", holder.Get().Listen)
}

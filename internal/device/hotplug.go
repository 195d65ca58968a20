// SPDX-License-Identifier: MIT

package device

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ManuGH/camwatch/internal/events"
	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
)

const hotplugPublishTimeout = 2 * time.Second

// HotplugWatcher observes the device directory and publishes attach
// and detach events so the controller can react to cameras coming and
// going while a session runs.
type HotplugWatcher struct {
	dir     string
	pattern string
	bus     events.Bus

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewHotplugWatcher watches dir for nodes matching pattern
// (e.g. "video*").
func NewHotplugWatcher(dir, pattern string, bus events.Bus) *HotplugWatcher {
	return &HotplugWatcher{dir: dir, pattern: pattern, bus: bus}
}

func (h *HotplugWatcher) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create hotplug watcher: %w", err)
	}
	if err := watcher.Add(h.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", h.dir, err)
	}

	h.watcher = watcher
	h.done = make(chan struct{})
	go h.loop(watcher, h.done)

	log.WithComponent("hotplug").Info().
		Str(log.FieldPath, h.dir).
		Msg("hotplug watcher started")
	return nil
}

func (h *HotplugWatcher) loop(watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	logger := log.WithComponent("hotplug")

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			matched, err := filepath.Match(h.pattern, filepath.Base(event.Name))
			if err != nil || !matched {
				continue
			}

			var op string
			switch {
			case event.Op&fsnotify.Create != 0:
				op = "attach"
			case event.Op&fsnotify.Remove != 0:
				op = "detach"
			default:
				continue
			}

			metrics.IncDeviceHotplug(op)
			logger.Info().
				Str(log.FieldDevice, event.Name).
				Str("op", op).
				Str("event", "device.hotplug").
				Msg("capture device change")

			ctx, cancel := context.WithTimeout(context.Background(), hotplugPublishTimeout)
			err = h.bus.Publish(ctx, events.TopicDevice, events.DeviceChange{Op: op, Path: event.Name})
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("failed to publish hotplug event")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("hotplug watcher error")
		}
	}
}

func (h *HotplugWatcher) Stop() {
	h.mu.Lock()
	watcher := h.watcher
	done := h.done
	h.watcher = nil
	h.mu.Unlock()

	if watcher == nil {
		return
	}
	_ = watcher.Close()
	<-done
	log.WithComponent("hotplug").Debug().Msg("hotplug watcher stopped")
}

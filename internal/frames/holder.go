// SPDX-License-Identifier: MIT

package frames

import (
	"context"
	"sync"
)

// Holder stores the latest snapshot. Store replaces unconditionally;
// Wait blocks until a snapshot newer than a given sequence arrives.
type Holder struct {
	mu     sync.Mutex
	latest *Snapshot
	notify chan struct{}
}

func NewHolder() *Holder {
	return &Holder{notify: make(chan struct{})}
}

// Store replaces the held snapshot and wakes all waiters.
func (h *Holder) Store(s Snapshot) {
	h.mu.Lock()
	h.latest = &s
	close(h.notify)
	h.notify = make(chan struct{})
	h.mu.Unlock()
}

// Latest returns the held snapshot, if any.
func (h *Holder) Latest() (Snapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.latest == nil {
		return Snapshot{}, false
	}
	return *h.latest, true
}

// Wait returns the first snapshot with Seq > afterSeq, blocking until
// one arrives or the context ends. Pass 0 to get any frame at all.
func (h *Holder) Wait(ctx context.Context, afterSeq uint64) (Snapshot, error) {
	for {
		h.mu.Lock()
		if h.latest != nil && h.latest.Seq > afterSeq {
			s := *h.latest
			h.mu.Unlock()
			return s, nil
		}
		notify := h.notify
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-notify:
		}
	}
}

// Clear drops the held snapshot. Called on session teardown so a new
// session never serves a stale frame.
func (h *Holder) Clear() {
	h.mu.Lock()
	h.latest = nil
	h.mu.Unlock()
}

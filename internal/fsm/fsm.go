// SPDX-License-Identifier: MIT

// Package fsm provides the strict transition table behind the session
// lifecycle. Firing an event either follows a declared edge or reports
// a miss without moving the state, so callers can treat idempotent
// repeats (pause while paused, stop while stopped) as benign no-ops.
package fsm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrTransitionNotFound reports an event that has no edge from the
// current state.
var ErrTransitionNotFound = errors.New("transition not found")

// Transition is one edge of the table.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
}

// Machine walks a fixed transition table. It is safe for concurrent
// use, though the session controller drives it from a single run-loop
// goroutine.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	index map[string]S
}

// New builds a machine in the initial state. Duplicate edges are a
// construction error, not a runtime surprise.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	idx := make(map[string]S, len(transitions))
	for _, t := range transitions {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t.To
	}
	return &Machine[S, E]{state: initial, index: idx}, nil
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire follows the edge for event. On a miss the state stays put and
// the current state comes back alongside ErrTransitionNotFound.
func (m *Machine[S, E]) Fire(event E) (S, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	to, ok := m.index[key(m.state, event)]
	if !ok {
		return m.state, fmt.Errorf("%w: state=%s event=%s", ErrTransitionNotFound, m.state, event)
	}
	m.state = to
	return to, nil
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}

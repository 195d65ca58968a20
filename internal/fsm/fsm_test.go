// SPDX-License-Identifier: MIT

package fsm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testState string

type testEvent string

const (
	stateIdle   testState = "idle"
	stateActive testState = "active"
	statePaused testState = "paused"

	eventStart   testEvent = "start"
	eventPause   testEvent = "pause"
	eventResume  testEvent = "resume"
	eventUnknown testEvent = "unknown"
)

func newTestMachine(t *testing.T) *Machine[testState, testEvent] {
	t.Helper()
	m, err := New(stateIdle, []Transition[testState, testEvent]{
		{From: stateIdle, Event: eventStart, To: stateActive},
		{From: stateActive, Event: eventPause, To: statePaused},
		{From: statePaused, Event: eventResume, To: stateActive},
	})
	require.NoError(t, err)
	return m
}

func TestFireAppliesTransition(t *testing.T) {
	m := newTestMachine(t)

	got, err := m.Fire(eventStart)
	require.NoError(t, err)
	require.Equal(t, stateActive, got)
	require.Equal(t, stateActive, m.State())
}

func TestFireUnknownTransition(t *testing.T) {
	m := newTestMachine(t)

	got, err := m.Fire(eventUnknown)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTransitionNotFound)
	require.Equal(t, stateIdle, got, "state must not move on a miss")
}

func TestFireWalksDeclaredPath(t *testing.T) {
	m := newTestMachine(t)

	for _, step := range []struct {
		event testEvent
		want  testState
	}{
		{eventStart, stateActive},
		{eventPause, statePaused},
		{eventResume, stateActive},
		{eventPause, statePaused},
	} {
		got, err := m.Fire(step.event)
		require.NoError(t, err)
		require.Equal(t, step.want, got)
	}

	// A repeat of the last event has no edge from paused.
	_, err := m.Fire(eventPause)
	require.ErrorIs(t, err, ErrTransitionNotFound)
	require.Equal(t, statePaused, m.State())
}

func TestNewRejectsDuplicateEdges(t *testing.T) {
	_, err := New(stateIdle, []Transition[testState, testEvent]{
		{From: stateIdle, Event: eventStart, To: stateActive},
		{From: stateIdle, Event: eventStart, To: statePaused},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate transition")
}

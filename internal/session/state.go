// SPDX-License-Identifier: MIT

package session

import (
	"time"

	"github.com/ManuGH/camwatch/internal/device"
	"github.com/ManuGH/camwatch/internal/fsm"
)

// RunState is the lifecycle state of the capture session.
type RunState string

const (
	StateStopped     RunState = "stopped"
	StateConfiguring RunState = "configuring"
	StateRunning     RunState = "running"
	StatePaused      RunState = "paused"
	StateRestarting  RunState = "restarting"
)

func (s RunState) String() string { return string(s) }

// Ordinal returns a stable numeric code for the run state gauge.
func (s RunState) Ordinal() int {
	switch s {
	case StateStopped:
		return 0
	case StateConfiguring:
		return 1
	case StateRunning:
		return 2
	case StatePaused:
		return 3
	case StateRestarting:
		return 4
	default:
		return -1
	}
}

// EventKind names a lifecycle trigger.
type EventKind string

const (
	EventStart             EventKind = "start"
	EventConfigured        EventKind = "configured"
	EventConfigureFailed   EventKind = "configure_failed"
	EventPause             EventKind = "pause"
	EventResume            EventKind = "resume"
	EventIdleTimeout       EventKind = "idle_timeout"
	EventActivity          EventKind = "activity"
	EventBackground        EventKind = "background"
	EventMaxAge            EventKind = "max_age"
	EventPermissionLost    EventKind = "permission_lost"
	EventPressureHigh      EventKind = "pressure_high"
	EventPressureEmergency EventKind = "pressure_emergency"
	EventStop              EventKind = "stop"
	EventDeviceLost        EventKind = "device_lost"
)

// lifecycle returns the transition table for the session machine.
// Configuring and Restarting only exist while the run loop is inside a
// configure pass, so stop-class events never observe them.
func lifecycle() []fsm.Transition[RunState, EventKind] {
	ts := []fsm.Transition[RunState, EventKind]{
		{From: StateStopped, Event: EventStart, To: StateConfiguring},
		{From: StateConfiguring, Event: EventConfigured, To: StateRunning},
		{From: StateConfiguring, Event: EventConfigureFailed, To: StateStopped},
		{From: StatePaused, Event: EventResume, To: StateConfiguring},
		{From: StatePaused, Event: EventActivity, To: StateConfiguring},
		{From: StateRunning, Event: EventMaxAge, To: StateRestarting},
		{From: StateRestarting, Event: EventConfigured, To: StateRunning},
		{From: StateRestarting, Event: EventConfigureFailed, To: StateStopped},
	}
	for _, ev := range []EventKind{EventPause, EventIdleTimeout, EventPressureHigh, EventPressureEmergency} {
		ts = append(ts, fsm.Transition[RunState, EventKind]{From: StateRunning, Event: ev, To: StatePaused})
	}
	for _, ev := range []EventKind{EventStop, EventBackground, EventPermissionLost, EventDeviceLost} {
		ts = append(ts,
			fsm.Transition[RunState, EventKind]{From: StateRunning, Event: ev, To: StateStopped},
			fsm.Transition[RunState, EventKind]{From: StatePaused, Event: ev, To: StateStopped},
		)
	}
	return ts
}

// Health is a point-in-time liveness snapshot of the session.
type Health struct {
	StartedAt    time.Time `json:"startedAt"`
	LastFrameAt  time.Time `json:"lastFrameAt"`
	LastMotionAt time.Time `json:"lastMotionAt"`
}

// Status is the externally observable session snapshot. The controller
// publishes a fresh value after every mutation, so a reader always sees
// one consistent state, never a torn mix of two.
type Status struct {
	State       RunState              `json:"state"`
	SessionID   string                `json:"sessionId,omitempty"`
	Profile     device.QualityProfile `json:"profile"`
	Orientation device.Orientation    `json:"orientation"`
	Permission  device.AccessState    `json:"permission"`
	Hint        string                `json:"hint,omitempty"`
	Paused      bool                  `json:"paused"`
	Health      Health                `json:"health"`
	LastError   string                `json:"lastError,omitempty"`
}

// Running reports whether the capture graph is live.
func (s Status) Running() bool { return s.State == StateRunning }

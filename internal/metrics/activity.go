// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionPolls counts device access probes.
	PermissionPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_permission_polls_total",
		Help: "Total device access permission probes",
	})

	// PermissionTransitions counts observed permission state edges.
	PermissionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_permission_transitions_total",
		Help: "Total permission state transitions by from/to state",
	}, []string{"from", "to"})

	// MotionSamples counts accelerometer samples processed.
	MotionSamples = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_motion_samples_total",
		Help: "Total motion samples processed",
	})

	// MotionActivity counts samples that exceeded the activity threshold.
	MotionActivity = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_motion_activity_total",
		Help: "Total motion samples above the activity threshold",
	})

	// IdleTimeouts counts watchdog-triggered idle pauses.
	IdleTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_idle_timeouts_total",
		Help: "Total idle timeouts fired by the activity watchdog",
	})

	// PressureEvents counts memory pressure notifications by level.
	PressureEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_pressure_events_total",
		Help: "Total memory pressure events by level",
	}, []string{"level"})
)

// IncPermissionPoll records one access probe.
func IncPermissionPoll() {
	PermissionPolls.Inc()
}

// IncPermissionTransition records an observed permission edge.
func IncPermissionTransition(from, to string) {
	PermissionTransitions.WithLabelValues(from, to).Inc()
}

// IncMotionSample records a processed motion sample.
func IncMotionSample(active bool) {
	MotionSamples.Inc()
	if active {
		MotionActivity.Inc()
	}
}

// IncIdleTimeout records a fired idle timeout.
func IncIdleTimeout() {
	IdleTimeouts.Inc()
}

// IncPressureEvent records a memory pressure notification.
func IncPressureEvent(level string) {
	PressureEvents.WithLabelValues(level).Inc()
}

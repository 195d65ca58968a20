// SPDX-License-Identifier: MIT

// Package metrics defines the Prometheus collectors for the capture daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// StateTransitions tracks every lifecycle transition by edge and reason.
	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_state_transitions_total",
		Help: "Total lifecycle state transitions by from/to state and reason",
	}, []string{"from", "to", "reason"})

	// ConfigureDuration tracks how long a full configuration bracket takes.
	ConfigureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camwatch_configure_duration_seconds",
		Help:    "Duration of graph configuration brackets",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"result"})

	// ConfigureTotal tracks configuration attempts by outcome.
	ConfigureTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_configure_total",
		Help: "Total graph configuration attempts by result",
	}, []string{"result"})

	// SessionRestarts tracks forced session restarts.
	SessionRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_session_restarts_total",
		Help: "Total forced session restarts by reason",
	}, []string{"reason"})

	// SessionAge reports the age of the running session in seconds.
	SessionAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camwatch_session_age_seconds",
		Help: "Age of the current running session",
	})

	// RunState reports the lifecycle state as an ordinal
	// (0 stopped, 1 configuring, 2 running, 3 paused, 4 restarting).
	RunState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camwatch_run_state",
		Help: "Current lifecycle state ordinal",
	})
)

// IncStateTransition records one lifecycle transition.
func IncStateTransition(from, to, reason string) {
	StateTransitions.WithLabelValues(from, to, reason).Inc()
}

// ObserveConfigure records the outcome and duration of a configuration bracket.
func ObserveConfigure(result string, duration time.Duration) {
	ConfigureTotal.WithLabelValues(result).Inc()
	ConfigureDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// IncSessionRestart records a forced restart.
func IncSessionRestart(reason string) {
	SessionRestarts.WithLabelValues(reason).Inc()
}

// SetSessionAge updates the session age gauge.
func SetSessionAge(age time.Duration) {
	SessionAge.Set(age.Seconds())
}

// SetRunState updates the lifecycle state ordinal gauge.
func SetRunState(ordinal int) {
	RunState.Set(float64(ordinal))
}

// GetSessionRestarts returns the current restart count for a reason (for testing).
func GetSessionRestarts(reason string) float64 {
	var m dto.Metric
	if err := SessionRestarts.WithLabelValues(reason).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GetConfigures returns the configure attempt count for a result (for testing).
func GetConfigures(result string) float64 {
	var m dto.Metric
	if err := ConfigureTotal.WithLabelValues(result).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GetStateTransitions returns the transition count for one edge (for testing).
func GetStateTransitions(from, to, reason string) float64 {
	var m dto.Metric
	if err := StateTransitions.WithLabelValues(from, to, reason).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

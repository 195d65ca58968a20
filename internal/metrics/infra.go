// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// JournalWrites counts session journal appends by outcome.
	JournalWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_journal_writes_total",
		Help: "Total session journal writes by result",
	}, []string{"result"})

	// MirrorPublishes counts state/frame pushes to the mirror by outcome.
	MirrorPublishes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_mirror_publishes_total",
		Help: "Total mirror publishes by result",
	}, []string{"result"})

	// WebhookDeliveries counts webhook notification attempts by outcome.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_webhook_deliveries_total",
		Help: "Total webhook deliveries by result",
	}, []string{"result"})

	// DeviceHotplugEvents counts camera attach/detach observations.
	DeviceHotplugEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_device_hotplug_events_total",
		Help: "Total device hotplug events by operation",
	}, []string{"op"})

	// BusDropped counts event bus publishes abandoned mid-delivery.
	BusDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_bus_dropped_total",
		Help: "Total event bus messages dropped by topic and reason",
	}, []string{"topic", "reason"})
)

// IncJournalWrite records a journal append outcome.
func IncJournalWrite(result string) {
	JournalWrites.WithLabelValues(result).Inc()
}

// IncMirrorPublish records a mirror publish outcome.
func IncMirrorPublish(result string) {
	MirrorPublishes.WithLabelValues(result).Inc()
}

// IncWebhookDelivery records a webhook delivery outcome.
func IncWebhookDelivery(result string) {
	WebhookDeliveries.WithLabelValues(result).Inc()
}

// IncDeviceHotplug records an attach or detach observation.
func IncDeviceHotplug(op string) {
	DeviceHotplugEvents.WithLabelValues(op).Inc()
}

// IncBusDrop records an abandoned bus publish.
func IncBusDrop(topic, reason string) {
	BusDropped.WithLabelValues(topic, reason).Inc()
}

// GetWebhookDeliveries returns the delivery count for a result (for testing).
func GetWebhookDeliveries(result string) float64 {
	var m dto.Metric
	if err := WebhookDeliveries.WithLabelValues(result).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GetMirrorPublishes returns the publish count for a result (for testing).
func GetMirrorPublishes(result string) float64 {
	var m dto.Metric
	if err := MirrorPublishes.WithLabelValues(result).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

var (
	// FramesDelivered counts frames handed to the latest-frame holder.
	FramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_frames_delivered_total",
		Help: "Total frames delivered to the latest-frame holder",
	})

	// FramesDropped counts frames discarded before delivery.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_frames_dropped_total",
		Help: "Total frames dropped before delivery by reason",
	}, []string{"reason"})

	// FrameConversionFailures counts frames that failed pixel conversion.
	FrameConversionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_frames_conversion_failures_total",
		Help: "Total frames dropped due to conversion failure",
	})

	// LatestFrameAge reports the age of the most recent frame in seconds.
	LatestFrameAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camwatch_latest_frame_age_seconds",
		Help: "Age of the most recently delivered frame",
	})

	// PhotoCaptures counts still captures by outcome.
	PhotoCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camwatch_photo_captures_total",
		Help: "Total still photo captures by result",
	}, []string{"result"})

	// PhotoCaptureDuration tracks end-to-end still capture latency.
	PhotoCaptureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "camwatch_photo_capture_duration_seconds",
		Help:    "Duration of still photo captures",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	// PhotoOutputAttachFailures counts failed photo output attachments.
	// Attachment failure is tolerated at configure time, so this is the
	// only trace it leaves besides a log line.
	PhotoOutputAttachFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camwatch_photo_output_attach_failures_total",
		Help: "Total photo output attach failures during configuration",
	})
)

// IncFrameDelivered records one delivered frame.
func IncFrameDelivered() {
	FramesDelivered.Inc()
}

// IncFrameDropped records one dropped frame.
func IncFrameDropped(reason string) {
	FramesDropped.WithLabelValues(reason).Inc()
}

// IncFrameConversionFailure records a conversion failure drop.
func IncFrameConversionFailure() {
	FrameConversionFailures.Inc()
	FramesDropped.WithLabelValues("conversion").Inc()
}

// SetLatestFrameAge updates the latest frame age gauge.
func SetLatestFrameAge(age time.Duration) {
	LatestFrameAge.Set(age.Seconds())
}

// ObservePhotoCapture records the outcome and duration of a still capture.
func ObservePhotoCapture(result string, duration time.Duration) {
	PhotoCaptures.WithLabelValues(result).Inc()
	PhotoCaptureDuration.Observe(duration.Seconds())
}

// IncPhotoOutputAttachFailure records a tolerated attach failure.
func IncPhotoOutputAttachFailure() {
	PhotoOutputAttachFailures.Inc()
}

// GetFramesDelivered returns the delivered frame count (for testing).
func GetFramesDelivered() float64 {
	var m dto.Metric
	if err := FramesDelivered.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GetPhotoCaptures returns the capture count for a result label (for testing).
func GetPhotoCaptures(result string) float64 {
	var m dto.Metric
	if err := PhotoCaptures.WithLabelValues(result).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// GetPhotoOutputAttachFailures returns the attach failure count (for testing).
func GetPhotoOutputAttachFailures() float64 {
	var m dto.Metric
	if err := PhotoOutputAttachFailures.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// SPDX-License-Identifier: MIT
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Detection metrics
	OnsetsDetected *prometheus.CounterVec
	BeatsEmitted   *prometheus.CounterVec

	// Capture metrics
	SamplesDropped prometheus.Counter
	InvalidFrames  prometheus.Counter

	// Session metrics
	SessionResets   prometheus.Counter
	ParamRejections prometheus.Counter
	TrackerActive   prometheus.Gauge
	CurrentBPM      prometheus.Gauge
)

// InitMetrics builds and registers all metrics. Safe to call more than
// once; only the first call takes effect.
func InitMetrics(log *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		OnsetsDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blinky_onsets_detected_total",
				Help: "Onset impulses emitted by the detector ensemble",
			},
			[]string{"mode"},
		)
		BeatsEmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blinky_beats_emitted_total",
				Help: "Beat events emitted by the beat tracker",
			},
			[]string{"kind"}, // real | virtual
		)
		SamplesDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blinky_capture_samples_dropped_total",
			Help: "Sample blocks dropped by the capture ring on overflow",
		})
		InvalidFrames = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blinky_invalid_frames_total",
			Help: "Audio frames rejected for non-finite or out-of-range energy",
		})
		SessionResets = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blinky_session_resets_total",
			Help: "Full analysis session resets",
		})
		ParamRejections = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blinky_param_rejections_total",
			Help: "Parameter sets rejected by whole-set validation",
		})
		TrackerActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blinky_beat_tracker_active",
			Help: "1 while the beat tracker is in the Active state",
		})
		CurrentBPM = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "blinky_current_bpm",
			Help: "Beat tracker tempo estimate",
		})

		registry.MustRegister(
			OnsetsDetected,
			BeatsEmitted,
			SamplesDropped,
			InvalidFrames,
			SessionResets,
			ParamRejections,
			TrackerActive,
			CurrentBPM,
		)

		if log != nil {
			log.Debug("telemetry metrics registered")
		}
	})
}

// MetricsHandler returns the Prometheus scrape handler, or nil if
// InitMetrics has not run.
func MetricsHandler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		Registry: registry,
	})
}

// Package metrics exposes Prometheus instrumentation for the recognition pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "soundmeta"

type Metrics struct {
	Requests        *prometheus.CounterVec
	ProviderLookups *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	AudioDuration   prometheus.Histogram
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recognition_requests_total",
			Help:      "Recognition requests by outcome kind and source.",
		}, []string{"outcome", "source"}),
		ProviderLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_lookups_total",
			Help:      "Provider lookups by provider and result.",
		}, []string{"provider", "result"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"stage"}),
		AudioDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_duration_seconds",
			Help:      "Duration of admitted clips.",
			Buckets:   []float64{3, 5, 8, 10, 12, 15, 20, 30, 60},
		}),
	}
}

// All methods are safe on a nil *Metrics.

func (m *Metrics) ObserveRequest(outcome, source string) {
	if m == nil {
		return
	}
	if source == "" {
		source = "none"
	}
	m.Requests.WithLabelValues(outcome, source).Inc()
}

func (m *Metrics) ObserveLookup(provider, result string) {
	if m == nil {
		return
	}
	m.ProviderLookups.WithLabelValues(provider, result).Inc()
}

// StageTimer starts timing stage; call the returned func when it ends.
func (m *Metrics) StageTimer(stage string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ObserveAudio(seconds float64) {
	if m == nil {
		return
	}
	m.AudioDuration.Observe(seconds)
}

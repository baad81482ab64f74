// Package metrics exposes batch progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one batch run.
type Metrics struct {
	registry *prometheus.Registry

	ImagesProcessed prometheus.Counter
	ImagesFailed    prometheus.Counter
	Objects         *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
}

// New registers the batch collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ImagesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coloc3dcells",
			Name:      "images_processed_total",
			Help:      "Images whose results were written.",
		}),
		ImagesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coloc3dcells",
			Name:      "images_failed_total",
			Help:      "Images skipped after an error.",
		}),
		Objects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coloc3dcells",
			Name:      "objects_total",
			Help:      "Objects kept after filtering, by population.",
		}, []string{"population"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coloc3dcells",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each per-image stage.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
	}
	m.registry.MustRegister(m.ImagesProcessed, m.ImagesFailed, m.Objects, m.StageDuration)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records the time elapsed since start for stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// AddObjects adds n objects to the count of population.
func (m *Metrics) AddObjects(population string, n int) {
	if m == nil {
		return
	}
	m.Objects.WithLabelValues(population).Add(float64(n))
}

// ImageDone counts a finished image, failed or not.
func (m *Metrics) ImageDone(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ImagesFailed.Inc()
		return
	}
	m.ImagesProcessed.Inc()
}

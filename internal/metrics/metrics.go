// Package metrics provides Prometheus metrics for predictions and zone analysis.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the service's Prometheus collectors.
type Metrics struct {
	PredictionTotal    *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec
	ModelLoadedGauge   *prometheus.GaugeVec
	ZoneAnalysisTotal  *prometheus.CounterVec
	DatasetUploads     *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates the metrics and registers them with registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}

	m.PredictionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishmate_predictions_total",
			Help: "Total number of fish prediction requests",
		},
		[]string{"mode", "status"},
	)
	m.PredictionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fishmate_prediction_duration_seconds",
			Help:    "Time taken to perform a fish prediction",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"mode"},
	)
	m.ModelLoadedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fishmate_model_loaded",
			Help: "Set to 1 for the predictor mode in use",
		},
		[]string{"mode"},
	)
	m.ZoneAnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishmate_zone_analyses_total",
			Help: "Total number of zone analysis and heat-map requests",
		},
		[]string{"kind", "status"},
	)
	m.DatasetUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishmate_datasets_uploaded_total",
			Help: "Total number of dataset uploads",
		},
		[]string{"status"},
	)

	for _, c := range []prometheus.Collector{
		m.PredictionTotal,
		m.PredictionDuration,
		m.ModelLoadedGauge,
		m.ZoneAnalysisTotal,
		m.DatasetUploads,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry the metrics were registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPrediction counts a prediction and its duration. mode is the backend
// mode; status is "success" or "error".
func (m *Metrics) RecordPrediction(mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PredictionTotal.WithLabelValues(mode, status).Inc()
	m.PredictionDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// SetModelMode marks which predictor mode is active.
func (m *Metrics) SetModelMode(mode string) {
	if m == nil {
		return
	}
	m.ModelLoadedGauge.Reset()
	m.ModelLoadedGauge.WithLabelValues(mode).Set(1)
}

func (m *Metrics) RecordZoneAnalysis(kind, status string) {
	if m == nil {
		return
	}
	m.ZoneAnalysisTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordUpload(status string) {
	if m == nil {
		return
	}
	m.DatasetUploads.WithLabelValues(status).Inc()
}

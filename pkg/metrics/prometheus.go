package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrediction *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	servingState   *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equicast_predictions_total",
				Help: "Total number of predictions by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "equicast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrediction: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "equicast_last_prediction",
				Help: "Last predicted next-day close for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "equicast_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		servingState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "equicast_serving_state",
				Help: "Serving state machine state (1 for the current state)",
			},
			[]string{"state"},
		),
	}
}

// RecordPrediction records one prediction attempt by outcome ("ok" or "error").
func (r *Recorder) RecordPrediction(symbol, outcome string) {
	r.predictions.WithLabelValues(symbol, outcome).Inc()
}

// RecordPredictionValue records the last predicted price for a symbol.
func (r *Recorder) RecordPredictionValue(symbol string, price float64) {
	r.lastPrediction.WithLabelValues(symbol).Set(price)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordServingState marks the given state as current and clears the others.
func (r *Recorder) RecordServingState(state string) {
	for _, s := range []string{"uninitialized", "loading", "ready", "reloading", "failed", "shutdown"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.servingState.WithLabelValues(s).Set(v)
	}
}

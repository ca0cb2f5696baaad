package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"FusionTrader/internal/domain/models"
	domrepo "FusionTrader/internal/domain/repository"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions      *prometheus.CounterVec
	lastConfidence *prometheus.GaugeVec
	orders         *prometheus.CounterVec
	tunes          *prometheus.CounterVec
	weights        *prometheus.GaugeVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New registers the recorder's collectors with the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers with reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusiontrader_decisions_total",
				Help: "Fused decisions by symbol and action",
			},
			[]string{"symbol", "action"},
		),
		lastConfidence: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fusiontrader_last_confidence",
				Help: "Confidence of the latest decision per symbol",
			},
			[]string{"symbol"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusiontrader_orders_total",
				Help: "Order submissions by symbol and result",
			},
			[]string{"symbol", "result"},
		),
		tunes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusiontrader_tune_runs_total",
				Help: "Weight tuning passes by outcome",
			},
			[]string{"outcome"},
		),
		weights: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fusiontrader_strategy_weight",
				Help: "Current weight per analyzer",
			},
			[]string{"analyzer"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fusiontrader_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fusiontrader_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordDecision(symbol string, action models.Action, confidence float64) {
	r.decisions.WithLabelValues(symbol, string(action)).Inc()
	r.lastConfidence.WithLabelValues(symbol).Set(confidence)
}

func (r *Recorder) RecordOrder(symbol string, success bool) {
	result := "filled"
	if !success {
		result = "failed"
	}
	r.orders.WithLabelValues(symbol, result).Inc()
}

func (r *Recorder) RecordTune(outcome string) {
	r.tunes.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordWeights(ws models.WeightSet) {
	for name, w := range ws {
		r.weights.WithLabelValues(name).Set(w)
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

var _ domrepo.Metrics = (*Recorder)(nil)

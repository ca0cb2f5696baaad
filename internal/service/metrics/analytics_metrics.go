package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	AnalyzerLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fusiontrader",
			Subsystem: "analyzer",
			Name:      "latency_seconds",
			Help:      "Latency of signal source scoring",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"analyzer"},
	)

	AnalyzerResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusiontrader",
			Subsystem: "analyzer",
			Name:      "results_total",
			Help:      "Signal source results by status",
		},
		[]string{"analyzer", "status"},
	)

	AnalyzerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusiontrader",
			Subsystem: "analyzer",
			Name:      "errors_total",
			Help:      "Backend call failures by signal source",
		},
		[]string{"analyzer"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(AnalyzerLatency, AnalyzerResults, AnalyzerErrors)
	})
}

// ObserveScore records one scoring call.
func ObserveScore(analyzer, status string, started time.Time) {
	AnalyzerLatency.WithLabelValues(analyzer).Observe(time.Since(started).Seconds())
	AnalyzerResults.WithLabelValues(analyzer, status).Inc()
}

package matching

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tender_matcher"

// Metrics is safe to use through a nil pointer, in which case nothing is recorded.
type Metrics struct {
	PairsEvaluated *prometheus.CounterVec
	AIRequests     *prometheus.CounterVec
	AIDuration     prometheus.Histogram
	Runs           *prometheus.CounterVec
	PairsActive    prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PairsEvaluated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pairs_evaluated_total",
				Help:      "Total number of tender/client pairs scored",
			},
			[]string{"outcome"},
		),
		AIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_requests_total",
				Help:      "Total number of AI analysis requests by result",
			},
			[]string{"result"},
		),
		AIDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ai_request_duration_seconds",
				Help:      "Duration of AI analysis requests in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of matching runs by outcome",
			},
			[]string{"outcome"},
		),
		PairsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pairs_active",
				Help:      "Number of pairs currently being evaluated",
			},
		),
	}
}

func (m *Metrics) pairEvaluated(outcome string) {
	if m == nil {
		return
	}
	m.PairsEvaluated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) aiRequest(result string, started time.Time) {
	if m == nil {
		return
	}
	m.AIRequests.WithLabelValues(result).Inc()
	m.AIDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) run(outcome Outcome) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) pairStarted() {
	if m == nil {
		return
	}
	m.PairsActive.Inc()
}

func (m *Metrics) pairFinished() {
	if m == nil {
		return
	}
	m.PairsActive.Dec()
}

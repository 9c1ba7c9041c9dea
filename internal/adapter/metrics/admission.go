package metrics

import "github.com/prometheus/client_golang/prometheus"

// AdmissionMetrics holds Prometheus metrics for the handshake admission gate.
type AdmissionMetrics struct {
	Decisions         *prometheus.CounterVec
	EvaluationSeconds prometheus.Histogram
	BreakerState      prometheus.Gauge
}

func NewAdmissionMetrics(reg prometheus.Registerer) *AdmissionMetrics {
	m := &AdmissionMetrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by reason (none means allowed).",
		}, []string{"reason"}),
		EvaluationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating the admission policy.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "admission",
			Name:      "breaker_state",
			Help:      "Policy backend circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(m.Decisions, m.EvaluationSeconds, m.BreakerState)
	return m
}

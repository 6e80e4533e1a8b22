package retry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics prometheus collectors for the executor, nil-safe
type Metrics struct {
	Attempts     *prometheus.CounterVec
	Retries      *prometheus.CounterVec
	Successes    *prometheus.CounterVec
	Exhausted    *prometheus.CounterVec
	NonRetryable *prometheus.CounterVec
	Delay        *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on reg
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retry", Name: "attempts_total",
			Help: "Operation attempts, first tries included",
		}, []string{"service"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retry", Name: "retries_total",
			Help: "Attempts made after a retryable failure",
		}, []string{"service", "category"}),
		Successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retry", Name: "success_total",
			Help: "Executions that eventually succeeded",
		}, []string{"service"}),
		Exhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retry", Name: "exhausted_total",
			Help: "Executions that ran out of retries",
		}, []string{"service"}),
		NonRetryable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "retry", Name: "non_retryable_total",
			Help: "Executions stopped by a non-retryable error",
		}, []string{"service", "category"}),
		Delay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "retry", Name: "backoff_seconds",
			Help:    "Backoff waits between attempts",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"service"}),
	}
	if reg != nil {
		reg.MustRegister(m.Attempts, m.Retries, m.Successes, m.Exhausted, m.NonRetryable, m.Delay)
	}
	return m
}

func (m *Metrics) attempt(service string) {
	if m != nil {
		m.Attempts.WithLabelValues(service).Inc()
	}
}

func (m *Metrics) retry(service string, c Category, delaySeconds float64) {
	if m != nil {
		m.Retries.WithLabelValues(service, c.String()).Inc()
		m.Delay.WithLabelValues(service).Observe(delaySeconds)
	}
}

func (m *Metrics) success(service string) {
	if m != nil {
		m.Successes.WithLabelValues(service).Inc()
	}
}

func (m *Metrics) exhausted(service string) {
	if m != nil {
		m.Exhausted.WithLabelValues(service).Inc()
	}
}

func (m *Metrics) nonRetryable(service string, c Category) {
	if m != nil {
		m.NonRetryable.WithLabelValues(service, c.String()).Inc()
	}
}

package scaling

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors prometheus collectors for the engine, nil-safe
type Collectors struct {
	Instances      *prometheus.GaugeVec
	Actions        *prometheus.CounterVec
	Evaluations    *prometheus.CounterVec
	CooldownSkips  *prometheus.CounterVec
	EffectFailures *prometheus.CounterVec
	Samples        *prometheus.GaugeVec
}

// NewCollectors creates and registers the collectors on reg
func NewCollectors(namespace string, reg prometheus.Registerer) *Collectors {
	m := &Collectors{
		Instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scaling", Name: "instances",
			Help: "Tracked instance count per service",
		}, []string{"service"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scaling", Name: "actions_total",
			Help: "Dispatched rule actions",
		}, []string{"service", "action"}),
		Evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scaling", Name: "evaluations_total",
			Help: "Metric samples evaluated",
		}, []string{"service"}),
		CooldownSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scaling", Name: "cooldown_skips_total",
			Help: "Triggered rules skipped by their cooldown",
		}, []string{"service", "rule"}),
		EffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "scaling", Name: "effect_failures_total",
			Help: "Capacity changes that failed and were not committed",
		}, []string{"service"}),
		Samples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "scaling", Name: "last_sample",
			Help: "Most recent metric sample value",
		}, []string{"service", "metric"}),
	}
	if reg != nil {
		reg.MustRegister(m.Instances, m.Actions, m.Evaluations, m.CooldownSkips, m.EffectFailures, m.Samples)
	}
	return m
}

func (m *Collectors) instances(service string, n int) {
	if m != nil {
		m.Instances.WithLabelValues(service).Set(float64(n))
	}
}

func (m *Collectors) action(service string, a Action) {
	if m != nil {
		m.Actions.WithLabelValues(service, string(a)).Inc()
	}
}

func (m *Collectors) sample(service string, s Metrics) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(service).Inc()
	for _, name := range allMetrics {
		metric := name.(Metric)
		m.Samples.WithLabelValues(service, string(metric)).Set(s.Value(metric))
	}
}

func (m *Collectors) cooldownSkip(service, rule string) {
	if m != nil {
		m.CooldownSkips.WithLabelValues(service, rule).Inc()
	}
}

func (m *Collectors) effectFailure(service string) {
	if m != nil {
		m.EffectFailures.WithLabelValues(service).Inc()
	}
}

package breaker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics breaker instruments on an OpenTelemetry meter
type OTelMetrics struct {
	calls       metric.Int64Counter
	rejections  metric.Int64Counter
	transitions metric.Int64Counter
	latency     metric.Float64Histogram
	state       metric.Int64ObservableGauge
	reg         metric.Registration
}

// NewOTelMetrics creates the instruments; the state gauge observes m on every collection
func NewOTelMetrics(meter metric.Meter, m *Manager) (*OTelMetrics, error) {
	om := &OTelMetrics{}
	var err error

	if om.calls, err = meter.Int64Counter("breaker_calls_total",
		metric.WithDescription("Calls evaluated by the circuit breaker"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if om.rejections, err = meter.Int64Counter("breaker_rejections_total",
		metric.WithDescription("Calls refused while open or at the half-open limit"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if om.transitions, err = meter.Int64Counter("breaker_transitions_total",
		metric.WithDescription("Circuit state transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if om.latency, err = meter.Float64Histogram("breaker_call_duration_seconds",
		metric.WithDescription("Duration of admitted calls"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if om.state, err = meter.Int64ObservableGauge("breaker_state",
		metric.WithDescription("Circuit state (0=closed, 1=open, 2=half-open)")); err != nil {
		return nil, err
	}

	if m != nil {
		om.reg, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			for service, snap := range m.States() {
				o.ObserveInt64(om.state, int64(snap.State), metric.WithAttributes(attribute.String("service", service)))
			}
			return nil
		}, om.state)
		if err != nil {
			return nil, err
		}
	}
	return om, nil
}

// Unregister stops the state gauge callback
func (om *OTelMetrics) Unregister() error {
	if om == nil || om.reg == nil {
		return nil
	}
	return om.reg.Unregister()
}

func (om *OTelMetrics) recordCall(ctx context.Context, service, result string, seconds float64) {
	if om == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("service", service), attribute.String("result", result))
	om.calls.Add(ctx, 1, attrs)
	if seconds >= 0 {
		om.latency.Record(ctx, seconds, metric.WithAttributes(attribute.String("service", service)))
	}
}

func (om *OTelMetrics) recordRejection(ctx context.Context, service string, state State) {
	if om == nil {
		return
	}
	om.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service), attribute.String("state", state.String())))
	om.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service), attribute.String("result", "rejected")))
}

func (om *OTelMetrics) recordTransition(ctx context.Context, service string, from, to State) {
	if om == nil {
		return
	}
	om.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("from", from.String()),
		attribute.String("to", to.String())))
}

package breaker

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/KOMKZ/go-yogan-guard/logger"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, kv ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, m.Name)
	want := attribute.NewSet(kv...)
	var total int64
	for _, dp := range sum.DataPoints {
		match := true
		for _, a := range want.ToSlice() {
			if v, found := dp.Attributes.Value(a.Key); !found || v != a.Value {
				match = false
			}
		}
		if match {
			total += dp.Value
		}
	}
	return total
}

func TestOTelMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	clock := clockwork.NewFakeClock()
	m, err := NewManager(testConfig(),
		WithClock(clock),
		WithLogger(logger.NewNopLogger()),
		WithMeter(provider.Meter("guard/breaker")))
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	_, _ = m.Execute(ctx, "svc", ok, nil)
	tripOpen(t, m, "svc", 3)
	_, _ = m.Execute(ctx, "svc", ok, nil)
	clock.Advance(time.Minute)

	got := collect(t, reader)
	svc := attribute.String("service", "svc")
	assert.Equal(t, int64(1), sumFor(t, got["breaker_calls_total"], svc, attribute.String("result", "success")))
	assert.Equal(t, int64(3), sumFor(t, got["breaker_calls_total"], svc, attribute.String("result", "failure")))
	assert.Equal(t, int64(1), sumFor(t, got["breaker_rejections_total"], svc))
	assert.Equal(t, int64(1), sumFor(t, got["breaker_transitions_total"], svc))

	gauge, isGauge := got["breaker_state"].Data.(metricdata.Gauge[int64])
	require.True(t, isGauge)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(StateOpen), gauge.DataPoints[0].Value)
}

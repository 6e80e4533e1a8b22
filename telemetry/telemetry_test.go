package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/KOMKZ/go-yogan-guard/breaker"
)

type mockExporter struct {
	mu    sync.Mutex
	fail  bool
	calls int
	spans int
}

func (m *mockExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.spans += len(spans)
	if m.fail {
		return errors.New("collector unreachable")
	}
	return nil
}

func (m *mockExporter) Shutdown(context.Context) error { return nil }

func (m *mockExporter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newGuard(t *testing.T, clock clockwork.Clock) *breaker.Manager {
	t.Helper()
	cfg := breaker.DefaultConfig()
	cfg.Services = map[string]breaker.ResourceConfig{
		"telemetry-exporter": {FailureThreshold: 2, RecoveryTimeout: time.Minute, HalfOpenMaxCalls: 1},
	}
	m, err := breaker.NewManager(cfg, breaker.WithClock(clock))
	require.NoError(t, err)
	return m
}

func TestGuardedExporter(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	guard := newGuard(t, clock)
	primary := &mockExporter{fail: true}
	fallback := &mockExporter{}
	exp := NewGuardedExporter(guard, "telemetry-exporter", primary, fallback)

	// failures are absorbed by the fallback
	require.NoError(t, exp.ExportSpans(ctx, nil))
	require.NoError(t, exp.ExportSpans(ctx, nil))
	assert.Equal(t, 2, primary.count())
	assert.Equal(t, 2, fallback.count())

	snap, ok := guard.State("telemetry-exporter")
	require.True(t, ok)
	assert.Equal(t, breaker.StateOpen, snap.State)

	// open circuit skips the primary
	require.NoError(t, exp.ExportSpans(ctx, nil))
	assert.Equal(t, 2, primary.count())
	assert.Equal(t, 3, fallback.count())

	// a recovered primary closes the circuit
	primary.mu.Lock()
	primary.fail = false
	primary.mu.Unlock()
	clock.Advance(time.Minute)
	require.NoError(t, exp.ExportSpans(ctx, nil))
	assert.Equal(t, 3, primary.count())
	snap, _ = guard.State("telemetry-exporter")
	assert.Equal(t, breaker.StateClosed, snap.State)
}

func TestGuardedExporter_NilFallback(t *testing.T) {
	guard := newGuard(t, clockwork.NewFakeClock())
	exp := NewGuardedExporter(guard, "telemetry-exporter", &mockExporter{fail: true}, nil)
	assert.NoError(t, exp.ExportSpans(context.Background(), nil))
	assert.NoError(t, exp.Shutdown(context.Background()))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Enabled = true
	assert.NoError(t, cfg.Validate())

	cfg.Exporter.Type = "jaeger"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.Exporter.Endpoint = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.Sampler = SamplerConfig{Type: "trace_id_ratio", Ratio: 1.5}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Enabled = true
	cfg.Guard.Fallback = "otlp"
	assert.Error(t, cfg.Validate())
}

func TestProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		p, err := New(ctx, DefaultConfig(), WithoutGlobal())
		require.NoError(t, err)
		assert.False(t, p.Enabled())
		assert.NotNil(t, p.Tracer("x"))
		assert.NoError(t, p.Shutdown(ctx))
	})

	t.Run("noop exporter with guard", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.Exporter.Type = ExporterNoop
		cfg.Batch.Enabled = false
		cfg.Metrics.Enabled = true
		cfg.ResourceAttrs = map[string]interface{}{"deployment": map[string]interface{}{"env": "test"}}

		p, err := New(ctx, cfg, WithoutGlobal(), WithBreaker(newGuard(t, clockwork.NewFakeClock())))
		require.NoError(t, err)
		assert.True(t, p.Enabled())

		_, span := p.Tracer("test").Start(ctx, "op")
		span.End()
		counter, err := p.Meter("test").Int64Counter("ops")
		require.NoError(t, err)
		counter.Add(ctx, 1)

		assert.NoError(t, p.Shutdown(ctx))
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Enabled = true
		cfg.ServiceName = ""
		_, err := New(ctx, cfg)
		assert.Error(t, err)
	})
}

func TestFlattenMap(t *testing.T) {
	got := flattenMap(map[string]interface{}{
		"team": "sre",
		"deployment": map[string]interface{}{
			"env":     "prod",
			"replica": 3,
		},
	}, "")
	assert.Equal(t, map[string]string{
		"team":               "sre",
		"deployment.env":     "prod",
		"deployment.replica": "3",
	}, got)
}

package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/store"
)

var errBoom = errors.New("boom")

type recordSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (s *recordSink) Emit(r audit.Record) {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
}

func (s *recordSink) byKind(k audit.Kind) []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Record
	for _, r := range s.records {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	return out
}

func testConfig() Config {
	return Config{
		Default: ResourceConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  30 * time.Second,
			MonitoringPeriod: 5 * time.Second,
			HalfOpenMaxCalls: 2,
		},
		Services: map[string]ResourceConfig{
			"database": Presets()["database"],
		},
	}
}

func newTestManager(t *testing.T) (*Manager, *clockwork.FakeClock, *recordSink) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sink := &recordSink{}
	m, err := NewManager(testConfig(), WithClock(clock), WithSink(sink), WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	return m, clock, sink
}

func ok(ctx context.Context) (any, error)   { return "ok", nil }
func fail(ctx context.Context) (any, error) { return nil, errBoom }

func tripOpen(t *testing.T, m *Manager, service string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := m.Execute(context.Background(), service, fail, nil)
		require.ErrorIs(t, err, errBoom)
	}
}

func TestManager_OpensAtThreshold(t *testing.T) {
	m, clock, sink := newTestManager(t)
	ctx := context.Background()

	tripOpen(t, m, "payments", 2)
	s, found := m.State("payments")
	require.True(t, found)
	assert.Equal(t, StateClosed, s.State)
	assert.Equal(t, 2, s.FailureCount)

	tripOpen(t, m, "payments", 1)
	s, _ = m.State("payments")
	assert.Equal(t, StateOpen, s.State)
	assert.Equal(t, 3, s.FailureCount)
	assert.Equal(t, clock.Now().Add(30*time.Second).UnixMilli(), s.NextAttemptTimestamp)
	assert.Greater(t, s.NextAttemptTimestamp, s.LastFailureTimestamp)

	_, err := m.Execute(ctx, "payments", ok, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	got, err := m.Execute(ctx, "payments", ok, func(ctx context.Context, err error) (any, error) {
		assert.ErrorIs(t, err, ErrCircuitOpen)
		return "cached", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", got)

	s, _ = m.State("payments")
	assert.Equal(t, int64(5), s.TotalCalls)

	transitions := sink.byKind(audit.KindCircuitTransition)
	require.Len(t, transitions, 1)
	assert.Equal(t, "CLOSED", transitions[0].FromState)
	assert.Equal(t, "OPEN", transitions[0].ToState)
	assert.Len(t, sink.byKind(audit.KindCircuitSnapshot), 5)
}

func TestManager_SuccessDecaysFailures(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	tripOpen(t, m, "svc", 2)
	_, err := m.Execute(ctx, "svc", ok, nil)
	require.NoError(t, err)
	s, _ := m.State("svc")
	assert.Equal(t, 1, s.FailureCount)

	for i := 0; i < 3; i++ {
		_, _ = m.Execute(ctx, "svc", ok, nil)
	}
	s, _ = m.State("svc")
	assert.Equal(t, 0, s.FailureCount)
	assert.Equal(t, StateClosed, s.State)
}

func TestManager_HalfOpenRecovery(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()
	tripOpen(t, m, "svc", 3)

	clock.Advance(29 * time.Second)
	_, err := m.Execute(ctx, "svc", ok, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)

	clock.Advance(time.Second)
	_, err = m.Execute(ctx, "svc", ok, nil)
	require.NoError(t, err)
	s, _ := m.State("svc")
	assert.Equal(t, StateHalfOpen, s.State)
	assert.Equal(t, 1, s.SuccessCount)

	_, err = m.Execute(ctx, "svc", ok, nil)
	require.NoError(t, err)
	s, _ = m.State("svc")
	assert.Equal(t, StateClosed, s.State)
	assert.Equal(t, 0, s.FailureCount)
}

func TestManager_HalfOpenFailureReopens(t *testing.T) {
	m, clock, sink := newTestManager(t)
	ctx := context.Background()
	tripOpen(t, m, "svc", 3)

	clock.Advance(31 * time.Second)
	_, err := m.Execute(ctx, "svc", fail, nil)
	assert.ErrorIs(t, err, errBoom)

	s, _ := m.State("svc")
	assert.Equal(t, StateOpen, s.State)
	assert.Equal(t, clock.Now().Add(30*time.Second).UnixMilli(), s.NextAttemptTimestamp)

	var path []string
	for _, r := range sink.byKind(audit.KindCircuitTransition) {
		path = append(path, r.FromState+">"+r.ToState)
	}
	assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>OPEN"}, path)
}

func TestManager_HalfOpenLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m, err := NewManager(DefaultConfig(), WithClock(clock), WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	ctx := context.Background()
	cfg := m.ConfigFor("svc")
	require.Equal(t, 3, cfg.HalfOpenMaxCalls)
	tripOpen(t, m, "svc", cfg.FailureThreshold)
	clock.Advance(cfg.RecoveryTimeout)

	var admittedCalls, limited atomic.Int32
	release := make(chan struct{})
	blocking := func(ctx context.Context) (any, error) {
		admittedCalls.Add(1)
		<-release
		return "ok", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Execute(ctx, "svc", blocking, nil); errors.Is(err, ErrHalfOpenLimit) {
				limited.Add(1)
			}
		}()
	}

	// one trial call at a time, whatever the quota
	require.Eventually(t, func() bool { return limited.Load() == 9 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), admittedCalls.Load())
	s, _ := m.State("svc")
	assert.Equal(t, 1, s.HalfOpenInFlight)

	close(release)
	wg.Wait()
	s, _ = m.State("svc")
	assert.Equal(t, StateHalfOpen, s.State)
	assert.Equal(t, 1, s.SuccessCount)
	assert.Equal(t, 0, s.HalfOpenInFlight)

	// sequential trial calls fill the success quota
	for i := 0; i < 2; i++ {
		_, err := m.Execute(ctx, "svc", ok, nil)
		require.NoError(t, err)
	}
	s, _ = m.State("svc")
	assert.Equal(t, StateClosed, s.State)
	assert.Equal(t, 0, s.FailureCount)
}

func TestManager_SingleTrialOnTransition(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()
	tripOpen(t, m, "database", 5)
	s, _ := m.State("database")
	require.Equal(t, StateOpen, s.State)
	clock.Advance(120 * time.Second)

	var admittedCalls, refused atomic.Int32
	release := make(chan struct{})
	op := func(ctx context.Context) (any, error) {
		admittedCalls.Add(1)
		<-release
		return "ok", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Execute(ctx, "database", op, nil); err != nil {
				refused.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return refused.Load() == 9 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), admittedCalls.Load())
	close(release)
	wg.Wait()

	s, _ = m.State("database")
	assert.Equal(t, StateClosed, s.State)
	assert.Equal(t, int64(15), s.TotalCalls)
}

func TestManager_FallbackOnFailure(t *testing.T) {
	m, _, _ := newTestManager(t)
	got, err := m.Execute(context.Background(), "svc", fail, func(ctx context.Context, err error) (any, error) {
		assert.ErrorIs(t, err, errBoom)
		return "degraded", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "degraded", got)

	s, _ := m.State("svc")
	assert.Equal(t, 1, s.FailureCount)
}

func TestManager_FallbackErrorOnRefusal(t *testing.T) {
	m, _, _ := newTestManager(t)
	tripOpen(t, m, "svc", 3)

	fbErr := errors.New("no cache")
	_, err := m.Execute(context.Background(), "svc", ok, func(ctx context.Context, err error) (any, error) {
		return nil, fbErr
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, fbErr)
}

func TestManager_StateUnknown(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, found := m.State("never-called")
	assert.False(t, found)
	assert.Empty(t, m.States())
	assert.False(t, m.Reset(context.Background(), "never-called"))
}

func TestManager_Reset(t *testing.T) {
	m, _, sink := newTestManager(t)
	ctx := context.Background()
	tripOpen(t, m, "svc", 3)

	assert.True(t, m.Reset(ctx, "svc"))
	s, _ := m.State("svc")
	assert.Equal(t, StateClosed, s.State)
	assert.Zero(t, s.FailureCount)
	assert.Zero(t, s.NextAttemptTimestamp)
	assert.Equal(t, int64(3), s.TotalCalls)

	_, err := m.Execute(ctx, "svc", ok, nil)
	assert.NoError(t, err)
	assert.Len(t, sink.byKind(audit.KindCircuitReset), 1)
}

func TestManager_ConfigCopyOnWrite(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	assert.Equal(t, 1, m.ConfigFor("database").HalfOpenMaxCalls)
	assert.Equal(t, 3, m.ConfigFor("other").FailureThreshold)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Execute(ctx, "svc", func(ctx context.Context) (any, error) {
			close(started)
			<-release
			return nil, errBoom
		}, nil)
	}()
	<-started

	require.NoError(t, m.SetConfig("svc", ResourceConfig{FailureThreshold: 1, RecoveryTimeout: time.Second, HalfOpenMaxCalls: 1}))
	close(release)
	<-done

	// the in-flight call kept threshold 3
	s, _ := m.State("svc")
	assert.Equal(t, StateClosed, s.State)

	tripOpen(t, m, "svc", 1)
	s, _ = m.State("svc")
	assert.Equal(t, StateOpen, s.State)

	assert.ErrorIs(t, m.SetConfig("svc", ResourceConfig{}), ErrInvalidConfig)
	assert.ErrorIs(t, m.SetDefaultConfig(ResourceConfig{FailureThreshold: 1}), ErrInvalidConfig)
	assert.Contains(t, m.Configs(), "")
}

func TestManager_StatsAndHealth(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	_, _ = m.Execute(ctx, "a", ok, nil)
	tripOpen(t, m, "b", 3)
	tripOpen(t, m, "c", 3)
	clock.Advance(30 * time.Second)
	_, _ = m.Execute(ctx, "c", ok, nil)

	st := m.Stats()
	assert.Equal(t, 3, st.TotalCircuits)
	assert.Equal(t, Summary{Closed: 1, Open: 1, HalfOpen: 1}, st.Summary)

	h := m.Health()
	assert.Equal(t, HealthDegraded, h.Status)
	assert.Equal(t, 3, h.CircuitsCount)
	assert.Equal(t, 1, h.OpenCircuits)
	assert.Equal(t, []string{"b"}, h.OpenServices)

	m.Reset(ctx, "b")
	assert.Equal(t, HealthHealthy, m.Health().Status)
}

func TestManager_Restore(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore(100)
	defer s.Close()

	m1, clock, sink := newTestManager(t)
	tripOpen(t, m1, "payments", 3)
	w := audit.NewStoreWriter(s)
	require.NoError(t, w.Write(ctx, sink.byKind(audit.KindCircuitSnapshot)))
	require.NoError(t, s.Set(ctx, audit.SnapshotKeyPrefix+"legacy", []byte(`{"schemaVersion":0,"service":"legacy"}`), 0))

	m2, err := NewManager(testConfig(), WithClock(clock), WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	n, err := m2.Restore(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	want, _ := m1.State("payments")
	got, found := m2.State("payments")
	require.True(t, found)
	assert.Equal(t, want, got)

	_, err = m2.Execute(ctx, "payments", ok, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestManager_Listener(t *testing.T) {
	var seen []Transition
	m, err := NewManager(testConfig(),
		WithClock(clockwork.NewFakeClock()),
		WithLogger(logger.NewNopLogger()),
		WithListener(func(tr Transition) { seen = append(seen, tr) }))
	require.NoError(t, err)

	tripOpen(t, m, "svc", 3)
	require.Len(t, seen, 1)
	assert.Equal(t, StateOpen, seen[0].To)
	assert.Equal(t, "failure threshold reached", seen[0].Reason)
}

func TestNewManager_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Services["bad"] = ResourceConfig{FailureThreshold: 0}
	_, err := NewManager(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// Package breaker keeps one circuit per service and decides, for every call,
// whether the downstream may be tried.
//
//	CLOSED    calls flow; failures accumulate, successes decay them
//	OPEN      calls are refused until the recovery timeout elapses
//	HALF_OPEN sequential trial calls decide between CLOSED and OPEN
package breaker

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/store"
)

// Operation guarded call
type Operation func(ctx context.Context) (any, error)

// Fallback produces a substitute result; err is the refusal or the operation failure
type Fallback func(ctx context.Context, err error) (any, error)

// Transition observed state change
type Transition struct {
	Service string    `json:"service"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// Manager registry of circuits keyed by service name.
// The map lock only guards membership; each circuit has its own lock,
// so different services never contend.
type Manager struct {
	mu       sync.RWMutex
	circuits map[string]*circuit

	defaults atomic.Pointer[ResourceConfig]
	configs  atomic.Pointer[map[string]ResourceConfig]
	cfgMu    sync.Mutex

	clock     clockwork.Clock
	sink      audit.Sink
	log       *logger.CtxZapLogger
	meter     metric.Meter
	metrics   *OTelMetrics
	listeners []func(Transition)
}

// Option configures a Manager
type Option func(*Manager)

// WithClock injects the time source
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithSink receives snapshots and transition records
func WithSink(s audit.Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithLogger sets the manager logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(m *Manager) { m.log = l }
}

// WithMeter enables OpenTelemetry instruments
func WithMeter(meter metric.Meter) Option {
	return func(m *Manager) { m.meter = meter }
}

// WithListener is called synchronously after every transition, outside the circuit lock
func WithListener(fn func(Transition)) Option {
	return func(m *Manager) { m.listeners = append(m.listeners, fn) }
}

// NewManager creates a manager; configs are validated up front
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ErrInvalidConfig.Wrap(err)
	}
	m := &Manager{
		circuits: make(map[string]*circuit),
		clock:    clockwork.NewRealClock(),
		sink:     audit.NopSink{},
		log:      logger.GetLogger("breaker"),
	}
	for _, opt := range opts {
		opt(m)
	}

	def := cfg.Default
	m.defaults.Store(&def)
	services := make(map[string]ResourceConfig, len(cfg.Services))
	for k, v := range cfg.Services {
		services[k] = v
	}
	m.configs.Store(&services)

	if m.meter != nil {
		om, err := NewOTelMetrics(m.meter, m)
		if err != nil {
			return nil, err
		}
		m.metrics = om
	}
	return m, nil
}

// Execute runs op behind the service's circuit.
// Refused calls use fallback when given, otherwise return ErrCircuitOpen or ErrHalfOpenLimit.
// A failed op is recorded first; fallback then supplies the result if given.
func (m *Manager) Execute(ctx context.Context, service string, op Operation, fallback Fallback) (any, error) {
	cfg := m.ConfigFor(service)
	c := m.getOrCreate(service)

	c.mu.Lock()
	now := m.clock.Now()
	dec, tk, tr := c.admit(now, cfg)
	snap := c.snapshot(service)
	c.mu.Unlock()

	// admitted calls persist their snapshot once the result is recorded
	m.afterChange(ctx, service, tr, snap, now, dec != admitted)

	if dec != admitted {
		return m.refuse(ctx, service, dec, snap, fallback)
	}

	start := m.clock.Now()
	result, err := op(ctx)
	end := m.clock.Now()

	c.mu.Lock()
	if err != nil {
		tr = c.onFailure(tk, end, cfg)
	} else {
		tr = c.onSuccess(tk, cfg)
	}
	snap = c.snapshot(service)
	c.mu.Unlock()

	m.afterChange(ctx, service, tr, snap, end, true)

	if err == nil {
		m.metrics.recordCall(ctx, service, "success", end.Sub(start).Seconds())
		return result, nil
	}

	m.metrics.recordCall(ctx, service, "failure", end.Sub(start).Seconds())
	m.log.WarnCtx(ctx, "[CircuitBreaker] call failed",
		zap.String("service", service),
		zap.String("state", snap.State.String()),
		zap.Int("failure_count", snap.FailureCount),
		zap.Error(err))
	if fallback != nil {
		m.log.InfoCtx(ctx, "[CircuitBreaker] using fallback", zap.String("service", service))
		return fallback(ctx, err)
	}
	return nil, err
}

func (m *Manager) refuse(ctx context.Context, service string, dec decision, snap Snapshot, fallback Fallback) (any, error) {
	var refusal error
	if dec == refusedOpen {
		refusal = ErrCircuitOpen.WithMsgf("circuit breaker is open for %s", service).
			WithData("service", service).
			WithData("next_attempt", snap.NextAttempt())
	} else {
		refusal = ErrHalfOpenLimit.WithMsgf("circuit breaker half-open limit reached for %s", service).
			WithData("service", service)
	}

	m.metrics.recordRejection(ctx, service, snap.State)
	m.log.WarnCtx(ctx, "⛔ [CircuitBreaker] call refused",
		zap.String("service", service),
		zap.String("state", snap.State.String()),
		zap.Bool("fallback", fallback != nil))

	if fallback == nil {
		return nil, refusal
	}
	result, err := fallback(ctx, refusal)
	if err != nil {
		le := ErrCircuitOpen
		if dec == refusedHalfOpen {
			le = ErrHalfOpenLimit
		}
		return nil, le.WithData("service", service).Wrap(err)
	}
	return result, nil
}

// afterChange logs and emits a transition if any, then optionally the snapshot
func (m *Manager) afterChange(ctx context.Context, service string, tr *transition, snap Snapshot, at time.Time, persist bool) {
	if tr != nil {
		m.log.InfoCtx(ctx, "🔄 [CircuitBreaker] state changed",
			zap.String("service", service),
			zap.String("from", tr.from.String()),
			zap.String("to", tr.to.String()),
			zap.String("reason", tr.reason),
			zap.Int("failure_count", snap.FailureCount))
		m.metrics.recordTransition(ctx, service, tr.from, tr.to)
		m.sink.Emit(audit.Record{
			Kind:      audit.KindCircuitTransition,
			Service:   service,
			FromState: tr.from.String(),
			ToState:   tr.to.String(),
			Reason:    tr.reason,
			Timestamp: at,
		})
		t := Transition{Service: service, From: tr.from, To: tr.to, Reason: tr.reason, At: at}
		for _, fn := range m.listeners {
			fn(t)
		}
	}
	if persist {
		m.emitSnapshot(service, snap, at)
	}
}

func (m *Manager) emitSnapshot(service string, snap Snapshot, at time.Time) {
	m.sink.Emit(audit.Record{
		Kind:      audit.KindCircuitSnapshot,
		Service:   service,
		ToState:   snap.State.String(),
		Timestamp: at,
	}.WithPayload(snap))
}

func (m *Manager) getOrCreate(service string) *circuit {
	m.mu.RLock()
	c, ok := m.circuits[service]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok = m.circuits[service]; ok {
		return c
	}
	c = &circuit{state: StateClosed}
	m.circuits[service] = c
	return c
}

func (m *Manager) lookup(service string) (*circuit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.circuits[service]
	return c, ok
}

// State snapshot of one circuit; a service never called has no circuit
func (m *Manager) State(service string) (Snapshot, bool) {
	c, ok := m.lookup(service)
	if !ok {
		return Snapshot{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(service), true
}

// States snapshots of every circuit
func (m *Manager) States() map[string]Snapshot {
	m.mu.RLock()
	names := make([]string, 0, len(m.circuits))
	circuits := make([]*circuit, 0, len(m.circuits))
	for name, c := range m.circuits {
		names = append(names, name)
		circuits = append(circuits, c)
	}
	m.mu.RUnlock()

	out := make(map[string]Snapshot, len(names))
	for i, c := range circuits {
		c.mu.Lock()
		out[names[i]] = c.snapshot(names[i])
		c.mu.Unlock()
	}
	return out
}

// Services sorted names of known circuits
func (m *Manager) Services() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.circuits))
	for name := range m.circuits {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Reset forces the circuit CLOSED and zeroes its counters; false if unknown
func (m *Manager) Reset(ctx context.Context, service string) bool {
	c, ok := m.lookup(service)
	if !ok {
		return false
	}
	c.mu.Lock()
	from := c.state
	tr := c.reset()
	snap := c.snapshot(service)
	c.mu.Unlock()

	now := m.clock.Now()
	m.log.InfoCtx(ctx, "[CircuitBreaker] circuit reset",
		zap.String("service", service), zap.String("from", from.String()))
	m.sink.Emit(audit.Record{
		Kind:      audit.KindCircuitReset,
		Service:   service,
		FromState: from.String(),
		ToState:   StateClosed.String(),
		Reason:    "manual reset",
		Timestamp: now,
	})
	m.afterChange(ctx, service, tr, snap, now, true)
	return true
}

// ConfigFor thresholds in effect for service
func (m *Manager) ConfigFor(service string) ResourceConfig {
	if rc, ok := (*m.configs.Load())[service]; ok {
		return rc
	}
	return *m.defaults.Load()
}

// Configs per-service overrides plus the default under ""
func (m *Manager) Configs() map[string]ResourceConfig {
	current := *m.configs.Load()
	out := make(map[string]ResourceConfig, len(current)+1)
	for k, v := range current {
		out[k] = v
	}
	out[""] = *m.defaults.Load()
	return out
}

// SetConfig replaces the thresholds of one service.
// Calls already evaluating keep the config they started with.
func (m *Manager) SetConfig(service string, rc ResourceConfig) error {
	if err := rc.Validate(); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	current := *m.configs.Load()
	next := make(map[string]ResourceConfig, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[service] = rc
	m.configs.Store(&next)

	m.log.Info("[CircuitBreaker] config updated",
		zap.String("service", service),
		zap.Int("failure_threshold", rc.FailureThreshold),
		zap.Duration("recovery_timeout", rc.RecoveryTimeout),
		zap.Int("half_open_max_calls", rc.HalfOpenMaxCalls))
	return nil
}

// SetDefaultConfig replaces the fallback thresholds
func (m *Manager) SetDefaultConfig(rc ResourceConfig) error {
	if err := rc.Validate(); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	m.defaults.Store(&rc)
	return nil
}

// Close releases metric callbacks
func (m *Manager) Close() error {
	return m.metrics.Unregister()
}

// Restore rehydrates circuits from snapshots kept in s.
// Unreadable or foreign-version snapshots are skipped and logged.
func (m *Manager) Restore(ctx context.Context, s store.Store) (int, error) {
	keys, err := s.Keys(ctx, audit.SnapshotKeyPrefix)
	if err != nil {
		return 0, err
	}
	restored := 0
	for _, key := range keys {
		data, err := s.Get(ctx, key)
		if err != nil {
			continue
		}
		snap, err := DecodeSnapshot(data)
		if err != nil {
			m.log.WarnCtx(ctx, "[CircuitBreaker] skipping snapshot", zap.String("key", key), zap.Error(err))
			continue
		}
		if snap.Service == "" {
			continue
		}
		c := m.getOrCreate(snap.Service)
		c.mu.Lock()
		c.restore(snap)
		c.mu.Unlock()
		restored++
	}
	if restored > 0 {
		m.log.InfoCtx(ctx, "[CircuitBreaker] circuits restored", zap.Int("count", restored))
	}
	return restored, nil
}

// Package scaling evaluates metric samples against declarative rules and
// moves each service's instance count one step at a time, gated by per-rule
// cooldowns.
package scaling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/logger"
)

// Outcome what happened to one applicable rule during an evaluation
type Outcome string

const (
	OutcomeNotTriggered    Outcome = "not_triggered"
	OutcomeSkippedCooldown Outcome = "skipped_cooldown"
	OutcomeScaled          Outcome = "scaled"
	OutcomeAtLimit         Outcome = "at_limit"
	OutcomeAlerted         Outcome = "alerted"
	OutcomeEffectFailed    Outcome = "effect_failed"
)

// RuleResult outcome of one rule
type RuleResult struct {
	Rule          string  `json:"rule"`
	Metric        Metric  `json:"metric"`
	Value         float64 `json:"value"`
	Threshold     float64 `json:"threshold"`
	Action        Action  `json:"action"`
	Outcome       Outcome `json:"outcome"`
	FromInstances int     `json:"fromInstances"`
	ToInstances   int     `json:"toInstances"`
	Error         string  `json:"error,omitempty"`
	err           error
}

// Evaluation result of one Evaluate call
type Evaluation struct {
	Service       string       `json:"service"`
	Timestamp     time.Time    `json:"timestamp"`
	FromInstances int          `json:"fromInstances"`
	ToInstances   int          `json:"toInstances"`
	Results       []RuleResult `json:"results"`
}

// Dispatched number of actions taken (scale steps and alerts)
func (e Evaluation) Dispatched() int {
	n := 0
	for _, r := range e.Results {
		if r.Outcome == OutcomeScaled || r.Outcome == OutcomeAlerted {
			n++
		}
	}
	return n
}

// Err joins the effect failures of the evaluation, nil when none
func (e Evaluation) Err() error {
	var errs []error
	for _, r := range e.Results {
		if r.err != nil {
			errs = append(errs, r.err)
		}
	}
	return errors.Join(errs...)
}

// serviceState runtime state of one service, guarded by mu
type serviceState struct {
	mu         sync.Mutex
	instances  int
	lastAction map[string]time.Time
}

// Stats aggregate counters
type Stats struct {
	TotalRules     int            `json:"totalRules"`
	Services       int            `json:"services"`
	TotalInstances int            `json:"totalInstances"`
	Instances      map[string]int `json:"instances"`
	Evaluations    int64          `json:"evaluations"`
	ScaleUps       int64          `json:"scaleUps"`
	ScaleDowns     int64          `json:"scaleDowns"`
	Alerts         int64          `json:"alerts"`
	CooldownSkips  int64          `json:"cooldownSkips"`
	EffectFailures int64          `json:"effectFailures"`
}

// Engine rule registry plus per-service runtime state.
// Rules are copy-on-write: an evaluation walks the list it started with.
type Engine struct {
	rules   atomic.Pointer[[]Rule]
	rulesMu sync.Mutex

	mu       sync.RWMutex
	services map[string]*serviceState

	initial   int
	sampleTTL time.Duration

	clock      clockwork.Clock
	scaler     Scaler
	sink       audit.Sink
	log        *logger.CtxZapLogger
	collectors *Collectors

	evaluations    atomic.Int64
	scaleUps       atomic.Int64
	scaleDowns     atomic.Int64
	alerts         atomic.Int64
	cooldownSkips  atomic.Int64
	effectFailures atomic.Int64
}

// Option configures an Engine
type Option func(*Engine)

// WithClock injects the time source
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithScaler replaces the simulated capacity effect
func WithScaler(s Scaler) Option {
	return func(e *Engine) { e.scaler = s }
}

// WithSink receives action, alert and sample records
func WithSink(s audit.Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithLogger sets the engine logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithCollectors records prometheus metrics
func WithCollectors(c *Collectors) Option {
	return func(e *Engine) { e.collectors = c }
}

// NewEngine creates an engine and registers cfg.Rules in order
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ErrRuleEvaluation.Wrap(err)
	}
	e := &Engine{
		services:  make(map[string]*serviceState),
		initial:   cfg.InitialInstances,
		sampleTTL: cfg.SampleTTL,
		clock:     clockwork.NewRealClock(),
		sink:      audit.NopSink{},
		log:       logger.GetLogger("scaling"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.scaler == nil {
		e.scaler = NewSimulatedScaler(e.log)
	}

	rules := make([]Rule, len(cfg.Rules))
	copy(rules, cfg.Rules)
	e.rules.Store(&rules)
	return e, nil
}

// AddRule validates r and appends it to the evaluation order
func (e *Engine) AddRule(r Rule) error {
	if err := r.Validate(); err != nil {
		return ErrRuleEvaluation.WithData("rule", r.Name).Wrap(err)
	}
	e.rulesMu.Lock()
	defer e.rulesMu.Unlock()

	current := *e.rules.Load()
	for _, existing := range current {
		if existing.Name == r.Name {
			return ErrRuleEvaluation.WithMsgf("scaling rule %q already exists", r.Name)
		}
	}
	next := make([]Rule, len(current), len(current)+1)
	copy(next, current)
	next = append(next, r)
	e.rules.Store(&next)

	e.log.Info("[Scaling] rule added",
		zap.String("rule", r.Name),
		zap.String("metric", string(r.Metric)),
		zap.String("operator", string(r.Operator)),
		zap.Float64("threshold", r.Threshold),
		zap.String("action", string(r.Action)))
	return nil
}

// RemoveRule deletes the named rule; false when absent.
// Cooldown timestamps of the rule are dropped with it.
func (e *Engine) RemoveRule(name string) bool {
	e.rulesMu.Lock()
	current := *e.rules.Load()
	idx := -1
	for i, r := range current {
		if r.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.rulesMu.Unlock()
		return false
	}
	next := make([]Rule, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)
	e.rules.Store(&next)
	e.rulesMu.Unlock()

	for _, st := range e.states() {
		st.mu.Lock()
		delete(st.lastAction, name)
		st.mu.Unlock()
	}
	e.log.Info("[Scaling] rule removed", zap.String("rule", name))
	return true
}

// Rules copy of the rule list in evaluation order
func (e *Engine) Rules() []Rule {
	current := *e.rules.Load()
	out := make([]Rule, len(current))
	copy(out, current)
	return out
}

// Rule looks up one rule by name
func (e *Engine) Rule(name string) (Rule, error) {
	for _, r := range *e.rules.Load() {
		if r.Name == name {
			return r, nil
		}
	}
	return Rule{}, ErrRuleNotFound.WithData("rule", name)
}

// CurrentInstances tracked count; a service never seen reports the initial count
func (e *Engine) CurrentInstances(service string) int {
	st, ok := e.lookup(service)
	if !ok {
		return e.initial
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.instances
}

// Instances tracked counts of every known service
func (e *Engine) Instances() map[string]int {
	e.mu.RLock()
	names := make([]string, 0, len(e.services))
	for name := range e.services {
		names = append(names, name)
	}
	e.mu.RUnlock()

	out := make(map[string]int, len(names))
	for _, name := range names {
		out[name] = e.CurrentInstances(name)
	}
	return out
}

// SetCurrentInstances administrative override of the tracked count.
// No capacity effect runs and cooldowns are left untouched.
func (e *Engine) SetCurrentInstances(ctx context.Context, service string, n int) error {
	if n < 0 {
		return ErrInvalidInstances.WithData("instances", n)
	}
	st := e.getOrCreate(service)
	st.mu.Lock()
	from := st.instances
	st.instances = n
	st.mu.Unlock()

	e.collectors.instances(service, n)
	e.log.InfoCtx(ctx, "[Scaling] instances overridden",
		zap.String("service", service), zap.Int("from", from), zap.Int("to", n))
	e.sink.Emit(audit.Record{
		Kind:          audit.KindScalingAction,
		Service:       service,
		Action:        "override",
		FromInstances: from,
		ToInstances:   n,
		Reason:        "administrative override",
		Timestamp:     e.clock.Now(),
	})
	return nil
}

// Stats aggregate view of rules, services and counters
func (e *Engine) Stats() Stats {
	instances := e.Instances()
	st := Stats{
		TotalRules:     len(*e.rules.Load()),
		Services:       len(instances),
		Instances:      instances,
		Evaluations:    e.evaluations.Load(),
		ScaleUps:       e.scaleUps.Load(),
		ScaleDowns:     e.scaleDowns.Load(),
		Alerts:         e.alerts.Load(),
		CooldownSkips:  e.cooldownSkips.Load(),
		EffectFailures: e.effectFailures.Load(),
	}
	for _, n := range instances {
		st.TotalInstances += n
	}
	return st
}

// Services sorted names of services with runtime state
func (e *Engine) Services() []string {
	e.mu.RLock()
	names := make([]string, 0, len(e.services))
	for name := range e.services {
		names = append(names, name)
	}
	e.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Evaluate runs every applicable rule, in order, against sample m.
// All triggered rules outside their cooldown fire in the same pass.
// Concurrent evaluations of one service are serialized; different services do not contend.
func (e *Engine) Evaluate(ctx context.Context, service string, m Metrics) Evaluation {
	now := e.clock.Now()
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	rules := *e.rules.Load()
	st := e.getOrCreate(service)
	e.evaluations.Add(1)

	st.mu.Lock()
	ev := Evaluation{Service: service, Timestamp: now, FromInstances: st.instances}
	for _, r := range rules {
		if !r.AppliesTo(service) {
			continue
		}
		ev.Results = append(ev.Results, e.apply(ctx, service, st, r, m, now))
	}
	ev.ToInstances = st.instances
	st.mu.Unlock()

	e.collectors.sample(service, m)
	e.collectors.instances(service, ev.ToInstances)
	e.sink.Emit(audit.Record{
		Kind:      audit.KindScalingMetrics,
		Service:   service,
		Timestamp: now,
		TTL:       e.sampleTTL,
	}.WithPayload(m))
	return ev
}

// apply evaluates one rule; st.mu is held
func (e *Engine) apply(ctx context.Context, service string, st *serviceState, r Rule, m Metrics, now time.Time) RuleResult {
	value := m.Value(r.Metric)
	res := RuleResult{
		Rule:          r.Name,
		Metric:        r.Metric,
		Value:         value,
		Threshold:     r.Threshold,
		Action:        r.Action,
		FromInstances: st.instances,
		ToInstances:   st.instances,
	}
	fields := []zap.Field{
		zap.String("service", service),
		zap.String("rule", r.Name),
		zap.String("metric", string(r.Metric)),
		zap.Float64("value", value),
		zap.Float64("threshold", r.Threshold),
	}

	if !r.Operator.Compare(value, r.Threshold) {
		res.Outcome = OutcomeNotTriggered
		return res
	}
	if last, ok := st.lastAction[r.Name]; ok && now.Sub(last) < r.Cooldown {
		res.Outcome = OutcomeSkippedCooldown
		e.cooldownSkips.Add(1)
		e.collectors.cooldownSkip(service, r.Name)
		e.log.DebugCtx(ctx, "[Scaling] rule in cooldown",
			append(fields, zap.Duration("remaining", r.Cooldown-now.Sub(last)))...)
		return res
	}

	switch r.Action {
	case ActionScaleUp:
		if st.instances >= r.MaxInstances {
			res.Outcome = OutcomeAtLimit
			e.log.WarnCtx(ctx, "[Scaling] cannot scale up, at max",
				append(fields, zap.Int("instances", st.instances), zap.Int("max", r.MaxInstances))...)
			return res
		}
		return e.step(ctx, service, st, r, res, st.instances+1, now, fields)

	case ActionScaleDown:
		if st.instances <= r.MinInstances {
			res.Outcome = OutcomeAtLimit
			e.log.InfoCtx(ctx, "[Scaling] cannot scale down, at min",
				append(fields, zap.Int("instances", st.instances), zap.Int("min", r.MinInstances))...)
			return res
		}
		return e.step(ctx, service, st, r, res, st.instances-1, now, fields)

	default:
		res.Outcome = OutcomeAlerted
		st.lastAction[r.Name] = now
		e.alerts.Add(1)
		e.collectors.action(service, r.Action)
		e.log.WarnCtx(ctx, "🚨 [Scaling] alert", fields...)
		e.emitAction(audit.KindScalingAlert, service, r, res, now)
		return res
	}
}

// step runs the capacity effect and commits the count only when it succeeds
func (e *Engine) step(ctx context.Context, service string, st *serviceState, r Rule, res RuleResult, to int, now time.Time, fields []zap.Field) RuleResult {
	from := st.instances
	if err := e.scaler.Scale(ctx, service, from, to); err != nil {
		res.Outcome = OutcomeEffectFailed
		res.err = ErrScaleEffect.WithData("service", service).WithData("rule", r.Name).Wrap(err)
		res.Error = err.Error()
		e.effectFailures.Add(1)
		e.collectors.effectFailure(service)
		e.log.ErrorCtx(ctx, "❌ [Scaling] capacity change failed",
			append(fields, zap.Int("from", from), zap.Int("to", to), zap.Error(err))...)
		return res
	}

	st.instances = to
	st.lastAction[r.Name] = now
	res.Outcome = OutcomeScaled
	res.ToInstances = to
	if r.Action == ActionScaleUp {
		e.scaleUps.Add(1)
	} else {
		e.scaleDowns.Add(1)
	}
	e.collectors.action(service, r.Action)
	e.log.InfoCtx(ctx, "📈 [Scaling] scaled",
		append(fields, zap.String("action", string(r.Action)), zap.Int("from", from), zap.Int("to", to))...)
	e.emitAction(audit.KindScalingAction, service, r, res, now)
	return res
}

func (e *Engine) emitAction(kind audit.Kind, service string, r Rule, res RuleResult, now time.Time) {
	e.sink.Emit(audit.Record{
		Kind:          kind,
		Service:       service,
		Action:        string(r.Action),
		FromInstances: res.FromInstances,
		ToInstances:   res.ToInstances,
		Rule:          r.Name,
		Metric:        string(r.Metric),
		Threshold:     r.Threshold,
		Value:         res.Value,
		Timestamp:     now,
	})
}

func (e *Engine) lookup(service string) (*serviceState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.services[service]
	return st, ok
}

func (e *Engine) getOrCreate(service string) *serviceState {
	if st, ok := e.lookup(service); ok {
		return st
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.services[service]; ok {
		return st
	}
	st := &serviceState{instances: e.initial, lastAction: make(map[string]time.Time)}
	e.services[service] = st
	return st
}

func (e *Engine) states() []*serviceState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*serviceState, 0, len(e.services))
	for _, st := range e.services {
		out = append(out, st)
	}
	return out
}

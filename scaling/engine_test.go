package scaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/logger"
)

type captureSink struct {
	mu      sync.Mutex
	records []audit.Record
}

func (s *captureSink) Emit(r audit.Record) {
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
}

func (s *captureSink) kind(k audit.Kind) []audit.Record {
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

var cpuHigh = Rule{
	Name:         "cpu-high",
	Metric:       MetricCPUUsage,
	Threshold:    80,
	Operator:     OpGreater,
	Action:       ActionScaleUp,
	Cooldown:     300 * time.Second,
	MinInstances: 1,
	MaxInstances: 10,
}

func newEngine(t *testing.T, rules []Rule, opts ...Option) (*Engine, *clockwork.FakeClock, *captureSink) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sink := &captureSink{}
	cfg := DefaultConfig()
	cfg.Rules = rules
	base := []Option{WithClock(clock), WithSink(sink), WithLogger(logger.NewNopLogger())}
	e, err := NewEngine(cfg, append(base, opts...)...)
	require.NoError(t, err)
	return e, clock, sink
}

func TestEvaluate_CooldownGatesScaleUp(t *testing.T) {
	e, clock, sink := newEngine(t, []Rule{cpuHigh})
	ctx := context.Background()
	require.NoError(t, e.SetCurrentInstances(ctx, "api", 3))
	sample := Metrics{CPUUsage: 85}

	ev := e.Evaluate(ctx, "api", sample)
	assert.Equal(t, 4, e.CurrentInstances("api"))
	require.Len(t, ev.Results, 1)
	assert.Equal(t, OutcomeScaled, ev.Results[0].Outcome)
	assert.Equal(t, 3, ev.FromInstances)
	assert.Equal(t, 4, ev.ToInstances)

	clock.Advance(10 * time.Second)
	ev = e.Evaluate(ctx, "api", sample)
	assert.Equal(t, 4, e.CurrentInstances("api"))
	assert.Equal(t, OutcomeSkippedCooldown, ev.Results[0].Outcome)

	clock.Advance(291 * time.Second)
	e.Evaluate(ctx, "api", sample)
	assert.Equal(t, 5, e.CurrentInstances("api"))

	actions := sink.kind(audit.KindScalingAction)
	require.Len(t, actions, 3)
	assert.Equal(t, "override", actions[0].Action)
	assert.Equal(t, "scale_up", actions[1].Action)
	assert.Equal(t, 3, actions[1].FromInstances)
	assert.Equal(t, 4, actions[1].ToInstances)
	assert.Equal(t, "cpu-high", actions[1].Rule)
	assert.Equal(t, "cpuUsage", actions[1].Metric)
	assert.Equal(t, float64(80), actions[1].Threshold)

	samples := sink.kind(audit.KindScalingMetrics)
	assert.Len(t, samples, 3)
	assert.Equal(t, 5*time.Minute, samples[0].TTL)
	var stored Metrics
	require.NoError(t, json.Unmarshal(samples[0].Payload, &stored))
	assert.Equal(t, 85.0, stored.CPUUsage)
	assert.True(t, stored.Timestamp.Equal(samples[0].Timestamp))

	st := e.Stats()
	assert.Equal(t, int64(3), st.Evaluations)
	assert.Equal(t, int64(2), st.ScaleUps)
	assert.Equal(t, int64(1), st.CooldownSkips)
}

func TestEvaluate_Bounds(t *testing.T) {
	down := Rule{
		Name: "cpu-low", Metric: MetricCPUUsage, Threshold: 20, Operator: OpLess,
		Action: ActionScaleDown, MinInstances: 2, MaxInstances: 10,
	}
	up := cpuHigh
	up.Cooldown = 0
	up.MaxInstances = 3
	e, _, sink := newEngine(t, []Rule{up, down})
	ctx := context.Background()
	require.NoError(t, e.SetCurrentInstances(ctx, "api", 2))

	for i := 0; i < 5; i++ {
		e.Evaluate(ctx, "api", Metrics{CPUUsage: 95})
	}
	assert.Equal(t, 3, e.CurrentInstances("api"))

	ev := e.Evaluate(ctx, "api", Metrics{CPUUsage: 95})
	assert.Equal(t, OutcomeAtLimit, ev.Results[0].Outcome)
	assert.Equal(t, OutcomeNotTriggered, ev.Results[1].Outcome)

	for i := 0; i < 5; i++ {
		e.Evaluate(ctx, "api", Metrics{CPUUsage: 5})
	}
	assert.Equal(t, 2, e.CurrentInstances("api"))

	// at-limit evaluations leave no audit trail
	assert.Len(t, sink.kind(audit.KindScalingAction), 3)
}

func TestEvaluate_AtLimitDoesNotStartCooldown(t *testing.T) {
	rule := cpuHigh
	rule.MaxInstances = 1
	e, clock, _ := newEngine(t, []Rule{rule})
	ctx := context.Background()

	ev := e.Evaluate(ctx, "api", Metrics{CPUUsage: 90})
	assert.Equal(t, OutcomeAtLimit, ev.Results[0].Outcome)

	require.True(t, e.RemoveRule("cpu-high"))
	rule.MaxInstances = 5
	require.NoError(t, e.AddRule(rule))
	clock.Advance(time.Second)

	ev = e.Evaluate(ctx, "api", Metrics{CPUUsage: 90})
	assert.Equal(t, OutcomeScaled, ev.Results[0].Outcome)
}

func TestEvaluate_AllMatchingRulesFire(t *testing.T) {
	alert := Rule{
		Name: "errors", Metric: MetricErrorRate, Threshold: 5, Operator: OpGreaterEqual,
		Action: ActionAlert, Cooldown: time.Minute,
	}
	e, _, sink := newEngine(t, []Rule{cpuHigh, alert})
	ev := e.Evaluate(context.Background(), "api", Metrics{CPUUsage: 81, ErrorRate: 5})

	require.Len(t, ev.Results, 2)
	assert.Equal(t, OutcomeScaled, ev.Results[0].Outcome)
	assert.Equal(t, OutcomeAlerted, ev.Results[1].Outcome)
	assert.Equal(t, 2, ev.Dispatched())
	assert.Equal(t, 2, e.CurrentInstances("api"))

	alerts := sink.kind(audit.KindScalingAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, 2, alerts[0].FromInstances)
	assert.Equal(t, 2, alerts[0].ToInstances)

	ev = e.Evaluate(context.Background(), "api", Metrics{CPUUsage: 81, ErrorRate: 9})
	assert.Equal(t, OutcomeSkippedCooldown, ev.Results[1].Outcome)
}

func TestEvaluate_EffectFailureNotCommitted(t *testing.T) {
	failing := true
	scaler := ScalerFunc(func(ctx context.Context, service string, from, to int) error {
		if failing {
			return errors.New("orchestrator unavailable")
		}
		return nil
	})
	e, clock, sink := newEngine(t, []Rule{cpuHigh}, WithScaler(scaler))
	ctx := context.Background()

	ev := e.Evaluate(ctx, "api", Metrics{CPUUsage: 99})
	assert.Equal(t, OutcomeEffectFailed, ev.Results[0].Outcome)
	assert.Equal(t, 1, e.CurrentInstances("api"))
	assert.ErrorIs(t, ev.Err(), ErrScaleEffect)
	assert.Empty(t, sink.kind(audit.KindScalingAction))

	failing = false
	clock.Advance(time.Second)
	ev = e.Evaluate(ctx, "api", Metrics{CPUUsage: 99})
	assert.Equal(t, OutcomeScaled, ev.Results[0].Outcome)
	assert.NoError(t, ev.Err())
	assert.Equal(t, int64(1), e.Stats().EffectFailures)
}

func TestEvaluate_ServiceScopedRule(t *testing.T) {
	scoped := cpuHigh
	scoped.Service = "billing"
	e, _, _ := newEngine(t, []Rule{scoped})

	ev := e.Evaluate(context.Background(), "api", Metrics{CPUUsage: 99})
	assert.Empty(t, ev.Results)
	assert.Equal(t, 1, e.CurrentInstances("api"))

	e.Evaluate(context.Background(), "billing", Metrics{CPUUsage: 99})
	assert.Equal(t, 2, e.CurrentInstances("billing"))
}

func TestEvaluate_CooldownPerService(t *testing.T) {
	e, _, _ := newEngine(t, []Rule{cpuHigh})
	ctx := context.Background()
	e.Evaluate(ctx, "a", Metrics{CPUUsage: 90})
	e.Evaluate(ctx, "b", Metrics{CPUUsage: 90})
	assert.Equal(t, map[string]int{"a": 2, "b": 2}, e.Instances())
}

func TestEvaluate_ConcurrentSameService(t *testing.T) {
	rule := cpuHigh
	rule.Cooldown = 0
	rule.MaxInstances = 1000
	e, _, _ := newEngine(t, []Rule{rule})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Evaluate(context.Background(), "api", Metrics{CPUUsage: 90})
		}()
	}
	wg.Wait()
	assert.Equal(t, 51, e.CurrentInstances("api"))
}

func TestOperatorCompare(t *testing.T) {
	cases := []struct {
		op   Operator
		v    float64
		want bool
	}{
		{OpGreater, 80, false},
		{OpGreater, 80.1, true},
		{OpGreaterEqual, 80, true},
		{OpLess, 79.9, true},
		{OpLessEqual, 80, true},
		{OpLessEqual, 80.1, false},
		{OpEqual, 80, true},
		{Operator("ne"), 1, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.op.Compare(c.v, 80), "%s %v", c.op, c.v)
	}
}

func TestAddRule_Validation(t *testing.T) {
	e, _, _ := newEngine(t, nil)

	bad := cpuHigh
	bad.MinInstances = 5
	bad.MaxInstances = 2
	assert.ErrorIs(t, e.AddRule(bad), ErrRuleEvaluation)

	bad = cpuHigh
	bad.Metric = "diskUsage"
	assert.ErrorIs(t, e.AddRule(bad), ErrRuleEvaluation)

	bad = cpuHigh
	bad.Operator = "ne"
	assert.ErrorIs(t, e.AddRule(bad), ErrRuleEvaluation)

	bad = cpuHigh
	bad.Cooldown = -time.Second
	assert.ErrorIs(t, e.AddRule(bad), ErrRuleEvaluation)

	bad = cpuHigh
	bad.Name = ""
	assert.ErrorIs(t, e.AddRule(bad), ErrRuleEvaluation)

	require.NoError(t, e.AddRule(cpuHigh))
	assert.ErrorIs(t, e.AddRule(cpuHigh), ErrRuleEvaluation)

	alert := Rule{Name: "lat", Metric: MetricResponseTime, Threshold: 500, Operator: OpGreater, Action: ActionAlert}
	require.NoError(t, e.AddRule(alert))
	assert.Equal(t, []string{"cpu-high", "lat"}, ruleNames(e.Rules()))

	assert.True(t, e.RemoveRule("cpu-high"))
	assert.False(t, e.RemoveRule("cpu-high"))
	_, err := e.Rule("cpu-high")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func ruleNames(rules []Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Name
	}
	return out
}

func TestNewEngine_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = []Rule{cpuHigh, cpuHigh}
	_, err := NewEngine(cfg)
	assert.ErrorIs(t, err, ErrRuleEvaluation)

	cfg.Rules = DefaultRules()
	assert.NoError(t, cfg.Validate())
}

func TestSetCurrentInstances(t *testing.T) {
	e, _, _ := newEngine(t, nil)
	assert.Equal(t, 1, e.CurrentInstances("unknown"))
	assert.ErrorIs(t, e.SetCurrentInstances(context.Background(), "api", -1), ErrInvalidInstances)
	require.NoError(t, e.SetCurrentInstances(context.Background(), "api", 7))
	assert.Equal(t, 7, e.CurrentInstances("api"))
	assert.Equal(t, 7, e.Stats().TotalInstances)
	assert.Equal(t, []string{"api"}, e.Services())
}

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollectors("guard", reg)
	e, _, _ := newEngine(t, []Rule{cpuHigh}, WithCollectors(c))

	e.Evaluate(context.Background(), "api", Metrics{CPUUsage: 90, MemoryUsage: 40})
	e.Evaluate(context.Background(), "api", Metrics{CPUUsage: 90})

	assert.Equal(t, float64(2), testutil.ToFloat64(c.Instances.WithLabelValues("api")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.Actions.WithLabelValues("api", "scale_up")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.Evaluations.WithLabelValues("api")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.CooldownSkips.WithLabelValues("api", "cpu-high")))
	assert.Equal(t, float64(90), testutil.ToFloat64(c.Samples.WithLabelValues("api", "cpuUsage")))
}

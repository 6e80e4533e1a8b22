package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/breaker"
	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/store"
)

func check(name string, err error) Checker {
	return CheckerFunc{ID: name, Fn: func(context.Context) error { return err }}
}

func TestAggregator_Check(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", []Checker{check("db", nil), check("store", nil)}, StatusHealthy},
		{"one degraded", []Checker{check("db", nil), check("circuits", Degraded("1 open"))}, StatusDegraded},
		{"unhealthy wins", []Checker{check("circuits", Degraded("1 open")), check("store", errors.New("down"))}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(time.Second)
			agg.Register(tt.checkers...)

			resp := agg.Check(context.Background())
			assert.Equal(t, tt.want, resp.Status)
			assert.Len(t, resp.Checks, len(tt.checkers))
		})
	}
}

func TestAggregator_ResultDetail(t *testing.T) {
	agg := NewAggregator(0)
	agg.Register(check("store", errors.New("connection refused")), check("circuits", Degraded("payments open")))
	agg.SetMetadata("version", "1.0.0")

	resp := agg.Check(context.Background())
	assert.Equal(t, "connection refused", resp.Checks["store"].Error)
	assert.Equal(t, "payments open", resp.Checks["circuits"].Message)
	assert.Empty(t, resp.Checks["circuits"].Error)
	assert.Equal(t, "1.0.0", resp.Metadata["version"])
	assert.False(t, resp.IsHealthy())
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(20 * time.Millisecond)
	agg.Register(CheckerFunc{ID: "slow", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	resp := agg.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestBreakerChecker(t *testing.T) {
	m, err := breaker.NewManager(breaker.DefaultConfig(),
		breaker.WithClock(clockwork.NewFakeClock()),
		breaker.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	c := BreakerChecker(m)
	assert.NoError(t, c.Check(context.Background()))

	fail := func(ctx context.Context) (any, error) { return nil, errors.New("down") }
	for i := 0; i < 3; i++ {
		_, _ = m.Execute(context.Background(), "api-gateway", fail, nil)
	}
	err = c.Check(context.Background())
	assert.True(t, IsDegraded(err))
	assert.Contains(t, err.Error(), "api-gateway")
}

func TestPingChecker(t *testing.T) {
	s := store.NewMemoryStore(10)
	defer s.Close()
	assert.NoError(t, PingChecker("store", s).Check(context.Background()))
	assert.Equal(t, "store", PingChecker("store", s).Name())
}

func TestAuditChecker(t *testing.T) {
	cfg := audit.DefaultConfig()
	cfg.BufferSize = 1
	d, err := audit.NewDispatcher(cfg, audit.WithLogger(logger.NewNopLogger()))
	require.NoError(t, err)
	c := AuditChecker(d)
	assert.NoError(t, c.Check(context.Background()))

	require.NoError(t, d.Close(context.Background()))
	d.Emit(audit.Record{Kind: audit.KindCircuitTransition, Service: "x"})
	assert.True(t, IsDegraded(c.Check(context.Background())))
}

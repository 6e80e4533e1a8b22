package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/KOMKZ/go-yogan-guard/logger"
)

type recordingSleep struct {
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func noJitter() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second, BackoffMultiplier: 2}
}

func newTestExecutor(t *testing.T, rec *recordingSleep, opts ...Option) *Executor {
	t.Helper()
	settings := DefaultSettings()
	settings.Default = noJitter()
	opts = append([]Option{WithSleep(rec.sleep), WithSeed(42), WithLogger(logger.NewNopLogger())}, opts...)
	return NewExecutor(settings, opts...)
}

func TestDelay(t *testing.T) {
	t.Run("exponential capped", func(t *testing.T) {
		cfg := noJitter()
		var got []time.Duration
		for attempt := 1; attempt <= 5; attempt++ {
			got = append(got, Delay(cfg, attempt, nil))
		}
		assert.Equal(t, []time.Duration{
			time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second,
		}, got)
	})

	t.Run("fractional multiplier floors to milliseconds", func(t *testing.T) {
		cfg := Presets()["database"]
		cfg.Jitter = false
		assert.Equal(t, 500*time.Millisecond, Delay(cfg, 1, nil))
		assert.Equal(t, 750*time.Millisecond, Delay(cfg, 2, nil))
		assert.Equal(t, 1125*time.Millisecond, Delay(cfg, 3, nil))
		assert.Equal(t, 5*time.Second, Delay(cfg, 10, nil))
	})

	t.Run("jitter stays within half to full", func(t *testing.T) {
		cfg := noJitter()
		cfg.Jitter = true
		rnd := newLockedRand(7)
		for attempt := 1; attempt <= 6; attempt++ {
			ceiling := Delay(noJitter(), attempt, nil)
			d := Delay(cfg, attempt, rnd.Float64)
			assert.GreaterOrEqual(t, d, ceiling/2)
			assert.LessOrEqual(t, d, ceiling)
		}
	})

	t.Run("same seed same delays", func(t *testing.T) {
		cfg := noJitter()
		cfg.Jitter = true
		a, b := newLockedRand(99), newLockedRand(99)
		for attempt := 1; attempt <= 4; attempt++ {
			assert.Equal(t, Delay(cfg, attempt, a.Float64), Delay(cfg, attempt, b.Float64))
		}
	})
}

func TestExecutor_Exhausted(t *testing.T) {
	rec := &recordingSleep{}
	e := newTestExecutor(t, rec)

	calls := 0
	last := errors.New("connection timeout")
	_, err := e.Execute(context.Background(), "payments", func(ctx context.Context) (any, error) {
		calls++
		if calls == 4 {
			return nil, last
		}
		return nil, NewStatusError(503, "unavailable")
	})

	assert.Equal(t, 4, calls)
	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 4, exhausted.Attempts)
	assert.Len(t, exhausted.Errors, 4)
	assert.ErrorIs(t, err, last)
	assert.ErrorIs(t, err, ErrRetryExhausted)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestExecutor_NonRetryable(t *testing.T) {
	rec := &recordingSleep{}
	e := newTestExecutor(t, rec)

	calls := 0
	bad := NewStatusError(400, "bad request")
	_, err := e.Execute(context.Background(), "payments", func(ctx context.Context) (any, error) {
		calls++
		return nil, bad
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, bad, err)
	assert.Empty(t, rec.delays)
}

func TestExecutor_EventualSuccess(t *testing.T) {
	rec := &recordingSleep{}
	reg := prometheus.NewRegistry()
	m := NewMetrics("guard", reg)
	e := newTestExecutor(t, rec, WithMetrics(m))

	calls := 0
	got, err := Do(context.Background(), e, "inventory", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ECONNREFUSED
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Attempts.WithLabelValues("inventory")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Successes.WithLabelValues("inventory")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Retries.WithLabelValues("inventory", "network_transient")))
}

func TestExecutor_ZeroRetries(t *testing.T) {
	rec := &recordingSleep{}
	e := newTestExecutor(t, rec)

	calls := 0
	_, err := e.Execute(context.Background(), "x", func(ctx context.Context) (any, error) {
		calls++
		return nil, NewStatusError(502, "")
	}, WithMaxRetries(0))

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrRetryExhausted)
}

func TestExecutor_InvalidOverride(t *testing.T) {
	e := newTestExecutor(t, &recordingSleep{})

	for name, opt := range map[string]CallOption{
		"negative retries": WithMaxRetries(-1),
		"flat multiplier":  WithConfig(Config{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: time.Second, BackoffMultiplier: 1}),
		"max below base":   WithConfig(Config{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: time.Millisecond, BackoffMultiplier: 2}),
	} {
		t.Run(name, func(t *testing.T) {
			calls := 0
			_, err := e.Execute(context.Background(), "x", func(ctx context.Context) (any, error) {
				calls++
				return "ok", nil
			}, opt)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.NotErrorIs(t, err, ErrRetryExhausted)
			assert.Zero(t, calls)
		})
	}
}

func TestExecutor_ContextCancelledDuringWait(t *testing.T) {
	settings := DefaultSettings()
	settings.Default = noJitter()
	e := NewExecutor(settings, WithLogger(logger.NewNopLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(ctx, "slow", func(ctx context.Context) (any, error) {
			calls++
			return nil, NewStatusError(500, "")
		})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not observe cancellation")
	}
}

func TestExecutor_Configs(t *testing.T) {
	e := newTestExecutor(t, &recordingSleep{})

	assert.Equal(t, 5, e.ConfigFor("database").MaxRetries)
	assert.Equal(t, 3, e.ConfigFor("unknown").MaxRetries)

	cfg := noJitter()
	cfg.MaxRetries = 1
	require.NoError(t, e.SetConfig("unknown", cfg))
	assert.Equal(t, 1, e.ConfigFor("unknown").MaxRetries)

	cfg.BackoffMultiplier = 1
	assert.ErrorIs(t, e.SetConfig("unknown", cfg), ErrInvalidConfig)
	assert.Error(t, e.SetDefaultConfig(Config{MaxRetries: -1, BackoffMultiplier: 2}))

	assert.NoError(t, DefaultSettings().Validate())
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestDefaultClassifier(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"conn refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, CategoryNetworkTransient},
		{"dns", &net.DNSError{Err: "no such host", Name: "db"}, CategoryNetworkTransient},
		{"net timeout", timeoutErr{}, CategoryNetworkTransient},
		{"deadline", context.DeadlineExceeded, CategoryNetworkTransient},
		{"message timeout", errors.New("upstream timeout"), CategoryNetworkTransient},
		{"message econnrefused", errors.New("connect ECONNREFUSED 127.0.0.1:5432"), CategoryNetworkTransient},
		{"429", NewStatusError(429, ""), CategoryRateLimited},
		{"503 wrapped", fmt.Errorf("call: %w", NewStatusError(503, "")), CategoryServerError},
		{"404", NewStatusError(404, ""), CategoryClientError},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), CategoryNetworkTransient},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "slow down"), CategoryRateLimited},
		{"grpc internal", status.Error(codes.Internal, "bug"), CategoryServerError},
		{"grpc invalid", status.Error(codes.InvalidArgument, "bad"), CategoryClientError},
		{"explicit", Categorize(errors.New("x"), CategoryRateLimited), CategoryRateLimited},
		{"canceled", context.Canceled, CategoryOther},
		{"plain", errors.New("validation failed"), CategoryOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DefaultClassifier.Classify(tc.err)
			assert.Equal(t, tc.want, got, got.String())
		})
	}

	assert.True(t, CategoryServerError.Retryable())
	assert.False(t, CategoryClientError.Retryable())
	assert.False(t, CategoryOther.Retryable())
	assert.Nil(t, Categorize(nil, CategoryOther))
}

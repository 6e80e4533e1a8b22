// Package retry runs an operation with exponential backoff, retrying only
// failures whose category is retryable.
package retry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/logger"
)

// Operation unit of work guarded by the executor
type Operation func(ctx context.Context) (any, error)

// SleepFunc waits d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Executor retry runner with per-service policies.
// Policies are copy-on-write: a running Execute keeps the policy it started with.
type Executor struct {
	defaults   atomic.Pointer[Config]
	services   atomic.Pointer[map[string]Config]
	writeMu    sync.Mutex
	classifier Classifier
	sleep      SleepFunc
	rnd        *lockedRand
	metrics    *Metrics
	log        *logger.CtxZapLogger
}

// Option configures an Executor
type Option func(*Executor)

// WithClassifier replaces DefaultClassifier
func WithClassifier(c Classifier) Option {
	return func(e *Executor) { e.classifier = c }
}

// WithSleep replaces the timer based wait, used by tests
func WithSleep(fn SleepFunc) Option {
	return func(e *Executor) { e.sleep = fn }
}

// WithSeed makes jitter reproducible
func WithSeed(seed int64) Option {
	return func(e *Executor) { e.rnd = newLockedRand(seed) }
}

// WithMetrics records prometheus counters
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the executor logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(e *Executor) { e.log = l }
}

// NewExecutor creates an executor from settings
func NewExecutor(settings Settings, opts ...Option) *Executor {
	e := &Executor{
		classifier: DefaultClassifier,
		sleep:      sleepCtx,
		log:        logger.GetLogger("retry"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rnd == nil {
		e.rnd = newLockedRand(settings.Seed)
	}

	def := settings.Default
	e.defaults.Store(&def)
	services := make(map[string]Config, len(settings.Services))
	for k, v := range settings.Services {
		services[k] = v
	}
	e.services.Store(&services)
	return e
}

// ConfigFor the policy applied to service
func (e *Executor) ConfigFor(service string) Config {
	if c, ok := (*e.services.Load())[service]; ok {
		return c
	}
	return *e.defaults.Load()
}

// SetConfig replaces the policy of one service
func (e *Executor) SetConfig(service string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	current := *e.services.Load()
	next := make(map[string]Config, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[service] = cfg
	e.services.Store(&next)
	return nil
}

// SetDefaultConfig replaces the fallback policy
func (e *Executor) SetDefaultConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return ErrInvalidConfig.Wrap(err)
	}
	e.defaults.Store(&cfg)
	return nil
}

// CallOption adjusts a single Execute call
type CallOption func(*Config)

// WithConfig replaces the policy for this call
func WithConfig(cfg Config) CallOption {
	return func(c *Config) { *c = cfg }
}

// WithMaxRetries overrides only the retry count for this call
func WithMaxRetries(n int) CallOption {
	return func(c *Config) { c.MaxRetries = n }
}

// Execute runs op, retrying retryable failures.
// A non-retryable error is returned unchanged after one call.
// When every attempt fails the result is a *RetryExhaustedError.
// Cancelling ctx during a wait returns ctx.Err().
// Call options producing an invalid policy fail with ErrInvalidConfig before op runs.
func (e *Executor) Execute(ctx context.Context, service string, op Operation, opts ...CallOption) (any, error) {
	cfg := e.ConfigFor(service)
	if len(opts) > 0 {
		for _, opt := range opts {
			opt(&cfg)
		}
		if err := cfg.Validate(); err != nil {
			return nil, ErrInvalidConfig.WithMsgf("invalid retry override for %s", service).Wrap(err)
		}
	}

	var errs []error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := Delay(cfg, attempt, e.rnd.Float64)
			e.log.InfoCtx(ctx, "🔄 [Retry] retrying",
				zap.String("service", service),
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", cfg.MaxRetries+1),
				zap.Duration("delay", delay))
			e.metrics.retry(service, e.classifier.Classify(errs[len(errs)-1]), delay.Seconds())
			if err := e.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		e.metrics.attempt(service)
		result, err := op(ctx)
		if err == nil {
			e.metrics.success(service)
			return result, nil
		}
		errs = append(errs, err)

		category := e.classifier.Classify(err)
		if !category.Retryable() {
			e.metrics.nonRetryable(service, category)
			e.log.WarnCtx(ctx, "⚠️ [Retry] non-retryable error",
				zap.String("service", service),
				zap.String("category", category.String()),
				zap.Error(err))
			return nil, err
		}
		e.log.WarnCtx(ctx, "[Retry] retryable error",
			zap.String("service", service),
			zap.Int("attempt", attempt+1),
			zap.String("category", category.String()),
			zap.Error(err))
	}

	e.metrics.exhausted(service)
	e.log.ErrorCtx(ctx, "❌ [Retry] retries exhausted",
		zap.String("service", service),
		zap.Int("attempts", len(errs)))
	return nil, &RetryExhaustedError{Service: service, Attempts: len(errs), Errors: errs}
}

// Do typed wrapper around Execute
func Do[T any](ctx context.Context, e *Executor, service string, op func(ctx context.Context) (T, error), opts ...CallOption) (T, error) {
	var zero T
	result, err := e.Execute(ctx, service, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, opts...)
	if err != nil {
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

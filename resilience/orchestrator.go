// Package resilience composes the circuit breaker and the retry executor:
// a whole retry sequence counts as one breaker evaluation.
package resilience

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/breaker"
	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/retry"
)

const tracerName = "github.com/KOMKZ/go-yogan-guard/resilience"

// Operation guarded unit of work
type Operation func(ctx context.Context) (any, error)

// Orchestrator runs operations behind a breaker with retries inside
type Orchestrator struct {
	breaker *breaker.Manager
	retry   *retry.Executor
	tracer  trace.Tracer
	log     *logger.CtxZapLogger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTracer overrides the global tracer provider
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithLogger sets the orchestrator logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New creates an Orchestrator
func New(b *breaker.Manager, r *retry.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		breaker: b,
		retry:   r,
		tracer:  otel.Tracer(tracerName),
		log:     logger.GetLogger("resilience"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Breaker underlying circuit registry
func (o *Orchestrator) Breaker() *breaker.Manager { return o.breaker }

// Retry underlying retry executor
func (o *Orchestrator) Retry() *retry.Executor { return o.retry }

// Execute runs op with retries as a single evaluation of the service's circuit.
// Only the final outcome of the retry sequence reaches the breaker;
// an open circuit refuses before any attempt is made.
func (o *Orchestrator) Execute(ctx context.Context, service string, op Operation, fallback breaker.Fallback, opts ...retry.CallOption) (any, error) {
	ctx, span := o.tracer.Start(ctx, "guard.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("guard.service", service)))
	defer span.End()

	attempts := 0
	usedFallback := false
	var fb breaker.Fallback
	if fallback != nil {
		fb = func(ctx context.Context, cause error) (any, error) {
			usedFallback = true
			return fallback(ctx, cause)
		}
	}
	result, err := o.breaker.Execute(ctx, service, func(ctx context.Context) (any, error) {
		return o.retry.Execute(ctx, service, func(ctx context.Context) (any, error) {
			attempts++
			return op(ctx)
		}, opts...)
	}, fb)

	span.SetAttributes(
		attribute.Int("guard.attempts", attempts),
		attribute.Bool("guard.fallback", usedFallback))
	if errors.Is(err, breaker.ErrCircuitOpen) || errors.Is(err, breaker.ErrHalfOpenLimit) {
		span.SetAttributes(attribute.Bool("guard.refused", true))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.log.DebugCtx(ctx, "[Resilience] call failed",
			zap.String("service", service),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Call typed wrapper around Execute; fallback may be nil
func Call[T any](ctx context.Context, o *Orchestrator, service string, op func(ctx context.Context) (T, error), fallback func(ctx context.Context, err error) (T, error), opts ...retry.CallOption) (T, error) {
	var fb breaker.Fallback
	if fallback != nil {
		fb = func(ctx context.Context, err error) (any, error) {
			return fallback(ctx, err)
		}
	}
	var zero T
	result, err := o.Execute(ctx, service, func(ctx context.Context) (any, error) {
		return op(ctx)
	}, fb, opts...)
	if err != nil {
		return zero, err
	}
	v, _ := result.(T)
	return v, nil
}

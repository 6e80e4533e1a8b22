package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// CtxZapLogger context-aware zap wrapper.
// The module is bound at creation, callers only pass ctx:
//
//	log := logger.GetLogger("breaker")
//	log.InfoCtx(ctx, "circuit opened", zap.String("service", name))
type CtxZapLogger struct {
	base   *zap.Logger
	module string
	config *ManagerConfig
}

// NewCtxZapLogger wraps an existing zap logger, used for tests and library integration
func NewCtxZapLogger(module string, base *zap.Logger) *CtxZapLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &CtxZapLogger{base: base.With(zap.String("module", module)), module: module}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *CtxZapLogger {
	return &CtxZapLogger{base: zap.NewNop(), module: "nop"}
}

// NewObservedLogger returns a logger recording entries in memory at debug level.
//
//	log, logs := logger.NewObservedLogger("scaling")
//	engine := scaling.NewEngine(cfg, scaling.WithLogger(log))
//	assert.Equal(t, 1, logs.FilterMessage("scaled up").Len())
func NewObservedLogger(module string) (*CtxZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewCtxZapLogger(module, zap.New(core)), logs
}

// InfoCtx logs at info level with the trace id from ctx
func (l *CtxZapLogger) InfoCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Info(msg, l.enrich(ctx, fields)...)
}

// ErrorCtx logs at error level with the trace id from ctx
func (l *CtxZapLogger) ErrorCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Error(msg, l.enrich(ctx, fields)...)
}

// DebugCtx logs at debug level with the trace id from ctx
func (l *CtxZapLogger) DebugCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.enrich(ctx, fields)...)
}

// WarnCtx logs at warn level with the trace id from ctx
func (l *CtxZapLogger) WarnCtx(ctx context.Context, msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.enrich(ctx, fields)...)
}

func (l *CtxZapLogger) Info(msg string, fields ...zap.Field) {
	l.InfoCtx(context.Background(), msg, fields...)
}

func (l *CtxZapLogger) Error(msg string, fields ...zap.Field) {
	l.ErrorCtx(context.Background(), msg, fields...)
}

func (l *CtxZapLogger) Debug(msg string, fields ...zap.Field) {
	l.DebugCtx(context.Background(), msg, fields...)
}

func (l *CtxZapLogger) Warn(msg string, fields ...zap.Field) {
	l.WarnCtx(context.Background(), msg, fields...)
}

// With returns a child logger carrying preset fields
func (l *CtxZapLogger) With(fields ...zap.Field) *CtxZapLogger {
	return &CtxZapLogger{
		base:   l.base.With(fields...),
		module: l.module,
		config: l.config,
	}
}

// Module returns the bound module name
func (l *CtxZapLogger) Module() string {
	return l.module
}

// GetZapLogger exposes the underlying *zap.Logger for third-party integration
func (l *CtxZapLogger) GetZapLogger() *zap.Logger {
	return l.base
}

func (l *CtxZapLogger) enrich(ctx context.Context, fields []zap.Field) []zap.Field {
	if l.config == nil {
		if id := traceIDFromContext(ctx); id != "" {
			return append(fields, zap.String("trace_id", id))
		}
		return fields
	}

	enriched := make([]zap.Field, 0, len(fields)+2)
	enriched = append(enriched, zap.String("app_name", l.config.AppName))
	if l.config.EnableTraceID {
		if id := traceIDFromContext(ctx); id != "" {
			enriched = append(enriched, zap.String("trace_id", id))
		}
	}
	return append(enriched, fields...)
}

type traceIDKey struct{}

// WithTraceID stores a trace id for requests without an OTel span
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// traceIDFromContext prefers the OTel span context over the plain ctx value
func traceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	if id, ok := ctx.Value(traceIDKey{}).(string); ok {
		return id
	}
	return ""
}

// TraceIDFromContext returns the trace id carried by ctx, empty if none
func TraceIDFromContext(ctx context.Context) string {
	return traceIDFromContext(ctx)
}

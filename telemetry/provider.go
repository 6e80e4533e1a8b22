// Package telemetry OTel tracer and meter providers for the guard process
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/breaker"
	"github.com/KOMKZ/go-yogan-guard/logger"
)

// Provider owns the SDK providers, a disabled config yields the global no-op ones
type Provider struct {
	cfg    Config
	log    *logger.CtxZapLogger
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	guard  *breaker.Manager
	global bool
}

type Option func(*Provider)

func WithLogger(l *logger.CtxZapLogger) Option {
	return func(p *Provider) { p.log = l }
}

// WithBreaker enables the guarded span exporter when cfg.Guard is enabled
func WithBreaker(m *breaker.Manager) Option {
	return func(p *Provider) { p.guard = m }
}

// WithoutGlobal keeps the providers out of otel.Set*Provider, used by tests
func WithoutGlobal() Option {
	return func(p *Provider) { p.global = false }
}

func New(ctx context.Context, cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("telemetry config: %w", err)
	}
	p := &Provider{cfg: cfg, log: logger.GetLogger("telemetry"), global: true}
	for _, opt := range opts {
		opt(p)
	}
	if !cfg.Enabled {
		p.log.InfoCtx(ctx, "telemetry disabled")
		return p, nil
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	if p.tp, err = p.newTracerProvider(ctx, res); err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		if p.mp, err = p.newMeterProvider(ctx, res); err != nil {
			_ = p.tp.Shutdown(ctx)
			return nil, err
		}
	}

	if p.global {
		otel.SetTracerProvider(p.tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}))
		if p.mp != nil {
			otel.SetMeterProvider(p.mp)
		}
	}
	p.log.InfoCtx(ctx, "telemetry started",
		zap.String("service_name", cfg.ServiceName),
		zap.String("exporter", cfg.Exporter.Type),
		zap.Bool("metrics", p.mp != nil),
		zap.Bool("guarded", p.guard != nil && cfg.Guard.Enabled))
	return p, nil
}

func (p *Provider) newTracerProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := newSpanExporter(ctx, p.cfg.Exporter.Type, p.cfg.Exporter)
	if err != nil {
		return nil, fmt.Errorf("create span exporter: %w", err)
	}
	if p.guard != nil && p.cfg.Guard.Enabled {
		fallback, ferr := newSpanExporter(ctx, p.cfg.Guard.Fallback, p.cfg.Exporter)
		if ferr != nil {
			p.log.WarnCtx(ctx, "fallback exporter unavailable, dropping spans while the circuit is open",
				zap.Error(ferr), zap.String("fallback", p.cfg.Guard.Fallback))
		}
		exporter = NewGuardedExporter(p.guard, p.cfg.Guard.Circuit, exporter, fallback)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(newSampler(p.cfg.Sampler)),
	}
	if p.cfg.Batch.Enabled {
		opts = append(opts, sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(p.cfg.Batch.MaxQueueSize),
			sdktrace.WithMaxExportBatchSize(p.cfg.Batch.MaxExportBatchSize),
			sdktrace.WithBatchTimeout(p.cfg.Batch.ScheduleDelay),
			sdktrace.WithExportTimeout(p.cfg.Batch.ExportTimeout)))
	} else {
		opts = append(opts, sdktrace.WithSyncer(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func (p *Provider) newMeterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	switch p.cfg.Exporter.Type {
	case ExporterOTLP:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(p.cfg.Exporter.Endpoint),
			otlpmetricgrpc.WithTimeout(p.cfg.Exporter.Timeout),
		}
		if p.cfg.Exporter.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		if len(p.cfg.Exporter.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(p.cfg.Exporter.Headers))
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	case ExporterStdout:
		exporter, err = stdoutmetric.New()
	default:
		// noop: provider without readers
		return sdkmetric.NewMeterProvider(sdkmetric.WithResource(res)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(p.cfg.Metrics.ExportInterval),
			sdkmetric.WithTimeout(p.cfg.Metrics.ExportTimeout))),
	), nil
}

func newSampler(cfg SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "trace_id_ratio":
		return sdktrace.TraceIDRatioBased(cfg.Ratio)
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// Enabled reports whether SDK providers were created
func (p *Provider) Enabled() bool { return p.tp != nil }

func (p *Provider) Tracer(name string) trace.Tracer {
	if p.tp == nil {
		return otel.GetTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

func (p *Provider) Meter(name string) metric.Meter {
	if p.mp == nil {
		return otel.GetMeterProvider().Meter(name)
	}
	return p.mp.Meter(name)
}

// Shutdown flushes pending spans and metrics
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

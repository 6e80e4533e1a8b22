package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/KOMKZ/go-yogan-guard/breaker"
)

func newSpanExporter(ctx context.Context, kind string, cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	switch kind {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.Endpoint),
			otlptracegrpc.WithTimeout(cfg.Timeout),
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterNoop:
		return noopExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", kind)
	}
}

type noopExporter struct{}

func (noopExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (noopExporter) Shutdown(context.Context) error                            { return nil }

// GuardedExporter exports through a breaker circuit.
// Failed or refused batches are handed to the fallback exporter.
type GuardedExporter struct {
	circuit  string
	breakers *breaker.Manager
	primary  sdktrace.SpanExporter
	fallback sdktrace.SpanExporter
}

func NewGuardedExporter(b *breaker.Manager, circuit string, primary, fallback sdktrace.SpanExporter) *GuardedExporter {
	if fallback == nil {
		fallback = noopExporter{}
	}
	return &GuardedExporter{circuit: circuit, breakers: b, primary: primary, fallback: fallback}
}

func (g *GuardedExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	_, err := g.breakers.Execute(ctx, g.circuit,
		func(ctx context.Context) (any, error) {
			return nil, g.primary.ExportSpans(ctx, spans)
		},
		func(ctx context.Context, _ error) (any, error) {
			return nil, g.fallback.ExportSpans(ctx, spans)
		})
	return err
}

func (g *GuardedExporter) Shutdown(ctx context.Context) error {
	err1 := g.primary.Shutdown(ctx)
	err2 := g.fallback.Shutdown(ctx)
	if err1 != nil {
		return err1
	}
	return err2
}

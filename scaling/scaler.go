package scaling

import (
	"context"

	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/logger"
)

// Scaler applies a capacity change. The engine commits the new count only
// when Scale returns nil.
type Scaler interface {
	Scale(ctx context.Context, service string, from, to int) error
}

// ScalerFunc adapts a function to Scaler
type ScalerFunc func(ctx context.Context, service string, from, to int) error

func (f ScalerFunc) Scale(ctx context.Context, service string, from, to int) error {
	return f(ctx, service, from, to)
}

// SimulatedScaler logs the change and always succeeds
type SimulatedScaler struct {
	log *logger.CtxZapLogger
}

// NewSimulatedScaler creates a SimulatedScaler; nil log uses the scaling module logger
func NewSimulatedScaler(log *logger.CtxZapLogger) *SimulatedScaler {
	if log == nil {
		log = logger.GetLogger("scaling")
	}
	return &SimulatedScaler{log: log}
}

func (s *SimulatedScaler) Scale(ctx context.Context, service string, from, to int) error {
	s.log.InfoCtx(ctx, "[Scaling] simulated capacity change",
		zap.String("service", service),
		zap.Int("from", from),
		zap.Int("to", to))
	return nil
}

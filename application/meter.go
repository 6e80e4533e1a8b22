package application

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterPrefix = "github.com/KOMKZ/go-yogan-guard/"

// otelMeter global meter; instruments follow the provider set by telemetry later
func otelMeter(component string) metric.Meter {
	return otel.Meter(meterPrefix + component)
}

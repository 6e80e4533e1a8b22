package telemetry

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNoop   = "noop"
)

// Config telemetry section
type Config struct {
	Enabled        bool                   `mapstructure:"enabled"`
	ServiceName    string                 `mapstructure:"service_name"`
	ServiceVersion string                 `mapstructure:"service_version"`
	Exporter       ExporterConfig         `mapstructure:"exporter"`
	Sampler        SamplerConfig          `mapstructure:"sampler"`
	ResourceAttrs  map[string]interface{} `mapstructure:"resource_attributes"` // nested maps are flattened with dots
	Batch          BatchConfig            `mapstructure:"batch"`
	Metrics        MetricsConfig          `mapstructure:"metrics"`
	Guard          GuardConfig            `mapstructure:"guard"`
}

// ExporterConfig where spans and metrics go
type ExporterConfig struct {
	Type     string            `mapstructure:"type"` // otlp, stdout, noop
	Endpoint string            `mapstructure:"endpoint"`
	Insecure bool              `mapstructure:"insecure"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`  // always_on, always_off, trace_id_ratio, parent_based_always_on
	Ratio float64 `mapstructure:"ratio"` // trace_id_ratio only
}

type BatchConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	ScheduleDelay      time.Duration `mapstructure:"schedule_delay"`
	ExportTimeout      time.Duration `mapstructure:"export_timeout"`
}

type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
	ExportTimeout  time.Duration `mapstructure:"export_timeout"`
}

// GuardConfig puts the span exporter behind a breaker circuit.
// While the circuit refuses, spans go to the fallback exporter.
type GuardConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Circuit  string `mapstructure:"circuit"`
	Fallback string `mapstructure:"fallback"` // stdout or noop
}

func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "guard",
		ServiceVersion: "dev",
		Exporter: ExporterConfig{
			Type:     ExporterOTLP,
			Endpoint: "localhost:4317",
			Insecure: true,
			Timeout:  10 * time.Second,
		},
		Sampler:       SamplerConfig{Type: "parent_based_always_on", Ratio: 1.0},
		ResourceAttrs: map[string]interface{}{},
		Batch: BatchConfig{
			Enabled:            true,
			MaxQueueSize:       2048,
			MaxExportBatchSize: 512,
			ScheduleDelay:      5 * time.Second,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			ExportInterval: 10 * time.Second,
			ExportTimeout:  5 * time.Second,
		},
		Guard: GuardConfig{
			Enabled:  true,
			Circuit:  "telemetry-exporter",
			Fallback: ExporterNoop,
		},
	}
}

// Validate only checks an enabled section
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.ServiceName, validation.Required),
		validation.Field(&c.Exporter),
		validation.Field(&c.Sampler),
		validation.Field(&c.Batch),
		validation.Field(&c.Metrics),
		validation.Field(&c.Guard),
	)
}

func (c ExporterConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required, validation.In(ExporterOTLP, ExporterStdout, ExporterNoop)),
		validation.Field(&c.Endpoint, validation.When(c.Type == ExporterOTLP, validation.Required)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func (c SamplerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Type, validation.Required,
			validation.In("always_on", "always_off", "trace_id_ratio", "parent_based_always_on")),
		validation.Field(&c.Ratio, validation.Min(0.0), validation.Max(1.0)),
	)
}

func (c BatchConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxQueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxExportBatchSize, validation.Required, validation.Min(1)),
	)
}

func (c MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.ExportInterval, validation.Required, validation.Min(time.Millisecond)),
	)
}

func (c GuardConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Circuit, validation.Required),
		validation.Field(&c.Fallback, validation.Required, validation.In(ExporterStdout, ExporterNoop)),
	)
}

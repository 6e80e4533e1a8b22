package breaker

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ResourceConfig thresholds for one service
type ResourceConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failureThreshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout" json:"recoveryTimeout"`
	MonitoringPeriod time.Duration `mapstructure:"monitoring_period" json:"monitoringPeriod"` // informational
	HalfOpenMaxCalls int           `mapstructure:"half_open_max_calls" json:"halfOpenMaxCalls"`
}

// DefaultResourceConfig 5 failures, 60s recovery, 3 trial calls
func DefaultResourceConfig() ResourceConfig {
	return ResourceConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		MonitoringPeriod: 10 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// Presets built-in per-service thresholds
func Presets() map[string]ResourceConfig {
	return map[string]ResourceConfig{
		"api-gateway": {
			FailureThreshold: 3,
			RecoveryTimeout:  30 * time.Second,
			MonitoringPeriod: 5 * time.Second,
			HalfOpenMaxCalls: 2,
		},
		"database": {
			FailureThreshold: 5,
			RecoveryTimeout:  120 * time.Second,
			MonitoringPeriod: 15 * time.Second,
			HalfOpenMaxCalls: 1,
		},
		"external-api": {
			FailureThreshold: 10,
			RecoveryTimeout:  300 * time.Second,
			MonitoringPeriod: 30 * time.Second,
			HalfOpenMaxCalls: 5,
		},
	}
}

func (c ResourceConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.FailureThreshold, validation.Required, validation.Min(1)),
		validation.Field(&c.RecoveryTimeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MonitoringPeriod, validation.Min(time.Duration(0))),
		validation.Field(&c.HalfOpenMaxCalls, validation.Required, validation.Min(1)),
	)
}

// Config breaker section
type Config struct {
	Default  ResourceConfig            `mapstructure:"default"`
	Services map[string]ResourceConfig `mapstructure:"services"`
}

// DefaultConfig defaults plus presets
func DefaultConfig() Config {
	return Config{Default: DefaultResourceConfig(), Services: Presets()}
}

func (c Config) Validate() error {
	if err := c.Default.Validate(); err != nil {
		return validation.Errors{"default": err}
	}
	for name, rc := range c.Services {
		if err := rc.Validate(); err != nil {
			return validation.Errors{name: err}
		}
	}
	return nil
}

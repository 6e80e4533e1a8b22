package retry

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config retry policy for one service.
// Delay before retry n (n starts at 1) is min(BaseDelay * Multiplier^(n-1), MaxDelay),
// scaled by a uniform factor in [0.5, 1.0) when Jitter is on.
type Config struct {
	MaxRetries        int           `mapstructure:"max_retries" json:"maxRetries"`
	BaseDelay         time.Duration `mapstructure:"base_delay" json:"baseDelay"`
	MaxDelay          time.Duration `mapstructure:"max_delay" json:"maxDelay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" json:"backoffMultiplier"`
	Jitter            bool          `mapstructure:"jitter" json:"jitter"`
}

// DefaultConfig 3 retries, 1s base doubling up to 10s, jittered
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		Jitter:            true,
	}
}

// Presets built-in per-service policies
func Presets() map[string]Config {
	return map[string]Config{
		"database": {
			MaxRetries:        5,
			BaseDelay:         500 * time.Millisecond,
			MaxDelay:          5 * time.Second,
			BackoffMultiplier: 1.5,
			Jitter:            true,
		},
		"external-api": {
			MaxRetries:        3,
			BaseDelay:         2 * time.Second,
			MaxDelay:          15 * time.Second,
			BackoffMultiplier: 2,
			Jitter:            true,
		},
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.BaseDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxDelay, validation.Min(c.BaseDelay).Error("must be no less than base_delay")),
		validation.Field(&c.BackoffMultiplier, validation.Min(1.0).Exclusive().Error("must be greater than 1")),
	)
}

// Settings top-level retry section
type Settings struct {
	Seed     int64             `mapstructure:"seed"` // 0 seeds from the clock
	Default  Config            `mapstructure:"default"`
	Services map[string]Config `mapstructure:"services"`
}

// DefaultSettings defaults plus presets
func DefaultSettings() Settings {
	return Settings{Default: DefaultConfig(), Services: Presets()}
}

func (s Settings) Validate() error {
	if err := s.Default.Validate(); err != nil {
		return err
	}
	for name, c := range s.Services {
		if err := c.Validate(); err != nil {
			return validation.Errors{name: err}
		}
	}
	return nil
}

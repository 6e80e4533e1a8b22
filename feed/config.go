package feed

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/KOMKZ/go-yogan-guard/scaling"
)

// Config feed section
type Config struct {
	Enabled        bool                       `mapstructure:"enabled"`
	Interval       time.Duration              `mapstructure:"interval"`
	Timeout        time.Duration              `mapstructure:"timeout"`     // per source collection
	Concurrency    int                        `mapstructure:"concurrency"` // parallel evaluations
	StorePrefix    string                     `mapstructure:"store_prefix"`
	StaticServices map[string]scaling.Metrics `mapstructure:"static"`
}

// DefaultConfig polls every 30s
func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		Concurrency: 8,
		StorePrefix: "feed:",
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Interval, validation.When(c.Enabled, validation.Required, validation.Min(10*time.Millisecond))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.StorePrefix, validation.Required),
	)
}

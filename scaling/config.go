package scaling

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config scaling section
type Config struct {
	InitialInstances int           `mapstructure:"initial_instances"` // count assumed for a service seen for the first time
	SampleTTL        time.Duration `mapstructure:"sample_ttl"`
	Rules            []Rule        `mapstructure:"rules"`
}

// DefaultConfig one instance per new service, samples kept 5 minutes, no rules
func DefaultConfig() Config {
	return Config{
		InitialInstances: 1,
		SampleTTL:        5 * time.Minute,
	}
}

// DefaultRules rule set used when the configuration lists none
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: "cpu-high", Metric: MetricCPUUsage, Operator: OpGreater, Threshold: 80,
			Action: ActionScaleUp, Cooldown: 5 * time.Minute, MinInstances: 1, MaxInstances: 10,
		},
		{
			Name: "cpu-low", Metric: MetricCPUUsage, Operator: OpLess, Threshold: 20,
			Action: ActionScaleDown, Cooldown: 10 * time.Minute, MinInstances: 1, MaxInstances: 10,
		},
		{
			Name: "error-rate", Metric: MetricErrorRate, Operator: OpGreaterEqual, Threshold: 5,
			Action: ActionAlert, Cooldown: time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.InitialInstances, validation.Min(0)),
		validation.Field(&c.SampleTTL, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if err := r.Validate(); err != nil {
			return validation.Errors{fmt.Sprintf("rules[%d]", i): err}
		}
		if seen[r.Name] {
			return validation.Errors{fmt.Sprintf("rules[%d]", i): fmt.Errorf("duplicate rule name %q", r.Name)}
		}
		seen[r.Name] = true
	}
	return nil
}

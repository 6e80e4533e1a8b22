package health

import "time"

// Config health section
type Config struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 5s overall timeout
func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second}
}

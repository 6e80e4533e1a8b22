// Package database opens the relational connection used by the SQL audit writer
package database

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config database connection settings
type Config struct {
	Driver          string        `mapstructure:"driver"` // mysql, postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// DefaultConfig local sqlite file
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		DSN:             "guard_audit.db",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		SlowThreshold:   200 * time.Millisecond,
		LogLevel:        "warn",
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverMySQL, DriverPostgres, DriverSQLite)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
		validation.Field(&c.MaxIdleConns, validation.Min(0)),
		validation.Field(&c.LogLevel, validation.In("silent", "error", "warn", "info")),
	)
}

package admin

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"

	"github.com/KOMKZ/go-yogan-guard/httpx"
)

// Config admin section
type Config struct {
	Enabled         bool                     `mapstructure:"enabled"`
	Addr            string                   `mapstructure:"addr"`
	Mode            string                   `mapstructure:"mode"` // gin mode: debug, release, test
	ShutdownTimeout time.Duration            `mapstructure:"shutdown_timeout"`
	MetricsPath     string                   `mapstructure:"metrics_path"`
	AuditLimit      int                      `mapstructure:"audit_limit"` // cap of /api/audit?limit
	ErrorLogging    httpx.ErrorLoggingConfig `mapstructure:"error_logging"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		Addr:            ":8090",
		Mode:            gin.ReleaseMode,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
		AuditLimit:      1000,
		ErrorLogging:    httpx.DefaultErrorLoggingConfig(),
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.Mode, validation.In(gin.DebugMode, gin.ReleaseMode, gin.TestMode)),
		validation.Field(&c.ShutdownTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MetricsPath, validation.Required),
		validation.Field(&c.AuditLimit, validation.Min(1)),
	)
}

package logger

import (
	"fmt"
	"path/filepath"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap/zapcore"
)

// ManagerConfig global logging configuration (shared by all modules)
type ManagerConfig struct {
	BaseLogDir    string `mapstructure:"base_log_dir"` // Root directory, one sub directory per module
	Level         string `mapstructure:"level"`
	AppName       string `mapstructure:"app_name"` // Injected into every entry
	Encoding      string `mapstructure:"encoding"` // json or console
	EnableConsole bool   `mapstructure:"enable_console"`
	EnableFile    bool   `mapstructure:"enable_file"`
	MaxSize       int    `mapstructure:"max_size"` // MB per file
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAge        int    `mapstructure:"max_age"` // days
	Compress      bool   `mapstructure:"compress"`
	EnableCaller  bool   `mapstructure:"enable_caller"`
	EnableTraceID bool   `mapstructure:"enable_trace_id"` // Extract trace_id from the OTel span in ctx
}

// DefaultManagerConfig returns the default logging configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseLogDir:    "logs",
		Level:         "info",
		AppName:       "guard",
		Encoding:      "json",
		EnableConsole: true,
		EnableFile:    false,
		MaxSize:       100,
		MaxBackups:    3,
		MaxAge:        28,
		Compress:      true,
		EnableCaller:  true,
		EnableTraceID: true,
	}
}

// ApplyDefaults fills zero-valued fields in place
func (c *ManagerConfig) ApplyDefaults() {
	d := DefaultManagerConfig()
	if c.BaseLogDir == "" {
		c.BaseLogDir = d.BaseLogDir
	}
	if c.Level == "" {
		c.Level = d.Level
	}
	if c.Encoding == "" {
		c.Encoding = d.Encoding
	}
	if c.MaxSize <= 0 {
		c.MaxSize = d.MaxSize
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = d.MaxBackups
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
}

// Validate checks level and encoding names
func (c ManagerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error", "dpanic", "panic", "fatal")),
		validation.Field(&c.Encoding, validation.In("json", "console")),
		validation.Field(&c.BaseLogDir, validation.When(c.EnableFile, validation.Required)),
	)
}

// ParseLevel converts a level name, unknown names fall back to info
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (c ManagerConfig) infoFilePath(module string) string {
	return filepath.Join(c.BaseLogDir, module, fmt.Sprintf("%s-info.log", module))
}

func (c ManagerConfig) errorFilePath(module string) string {
	return filepath.Join(c.BaseLogDir, module, fmt.Sprintf("%s-error.log", module))
}

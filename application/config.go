package application

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/KOMKZ/go-yogan-guard/admin"
	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/breaker"
	"github.com/KOMKZ/go-yogan-guard/config"
	"github.com/KOMKZ/go-yogan-guard/database"
	"github.com/KOMKZ/go-yogan-guard/feed"
	"github.com/KOMKZ/go-yogan-guard/health"
	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/retry"
	"github.com/KOMKZ/go-yogan-guard/scaling"
	"github.com/KOMKZ/go-yogan-guard/store"
	"github.com/KOMKZ/go-yogan-guard/telemetry"
)

// EnvPrefix environment variables overriding the files, e.g. GUARD_ADMIN__ADDR
const EnvPrefix = "GUARD"

// AppInfo identity of the running process
type AppInfo struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

func (a AppInfo) Validate() error {
	return validation.ValidateStruct(&a, validation.Field(&a.Name, validation.Required))
}

// Config every section of the guard process
type Config struct {
	App       AppInfo              `mapstructure:"app"`
	Logger    logger.ManagerConfig `mapstructure:"logger"`
	Store     store.Config         `mapstructure:"store"`
	Database  database.Config      `mapstructure:"database"` // used by the SQL audit writer only
	Audit     audit.Config         `mapstructure:"audit"`
	Breaker   breaker.Config       `mapstructure:"breaker"`
	Retry     retry.Settings       `mapstructure:"retry"`
	Scaling   scaling.Config       `mapstructure:"scaling"`
	Feed      feed.Config          `mapstructure:"feed"`
	Health    health.Config        `mapstructure:"health"`
	Admin     admin.Config         `mapstructure:"admin"`
	Telemetry telemetry.Config     `mapstructure:"telemetry"`
}

// DefaultConfig in-memory store, presets for breaker and retry, default rule set
func DefaultConfig() Config {
	return Config{
		App:       AppInfo{Name: "guard"},
		Logger:    logger.DefaultManagerConfig(),
		Store:     store.DefaultConfig(),
		Database:  database.DefaultConfig(),
		Audit:     audit.DefaultConfig(),
		Breaker:   breaker.DefaultConfig(),
		Retry:     retry.DefaultSettings(),
		Scaling:   scaling.DefaultConfig(),
		Feed:      feed.DefaultConfig(),
		Health:    health.DefaultConfig(),
		Admin:     admin.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

var sectionOrder = []string{
	"app", "logger", "store", "database", "audit", "breaker",
	"retry", "scaling", "feed", "admin", "telemetry",
}

// Validate checks each section; the first failure names its section
func (c Config) Validate() error {
	sections := map[string]config.Validator{
		"app":       c.App,
		"logger":    c.Logger,
		"store":     c.Store,
		"audit":     c.Audit,
		"breaker":   c.Breaker,
		"retry":     c.Retry,
		"scaling":   c.Scaling,
		"feed":      c.Feed,
		"admin":     c.Admin,
		"telemetry": c.Telemetry,
	}
	if c.Audit.SQL.Enabled {
		sections["database"] = c.Database
	}
	return config.ValidateSections(sections, sectionOrder...)
}

// LoadConfig reads <dir>/config.yaml, <dir>/<env>.yaml and GUARD_* variables over the defaults.
// Keys the Config does not declare are rejected.
func LoadConfig(dir, env string) (Config, []string, error) {
	loader := config.NewDirLoader(dir, env, EnvPrefix)
	if err := loader.Load(); err != nil {
		return Config{}, nil, err
	}
	cfg := DefaultConfig()
	if err := loader.UnmarshalExact(&cfg); err != nil {
		return Config{}, nil, err
	}
	if cfg.App.Env == "" {
		cfg.App.Env = env
	}
	if len(cfg.Scaling.Rules) == 0 {
		cfg.Scaling.Rules = scaling.DefaultRules()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, loader.LoadedFiles(), nil
}

// String one-line summary for startup logs
func (c Config) String() string {
	return fmt.Sprintf("app=%s env=%s store=%s admin=%s feed=%t telemetry=%t",
		c.App.Name, c.App.Env, c.Store.Driver, c.Admin.Addr, c.Feed.Enabled, c.Telemetry.Enabled)
}

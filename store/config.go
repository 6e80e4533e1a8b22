package store

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/redis/go-redis/v9"
)

// Drivers
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config selects and configures the backend
type Config struct {
	Driver     string      `mapstructure:"driver"`
	KeyPrefix  string      `mapstructure:"key_prefix"`
	MaxEntries int         `mapstructure:"max_entries"` // memory only
	Redis      RedisConfig `mapstructure:"redis"`
}

// RedisConfig connection settings for the redis driver
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig in-memory store
func DefaultConfig() Config {
	return Config{
		Driver:     DriverMemory,
		KeyPrefix:  "guard:",
		MaxEntries: 100000,
		Redis: RedisConfig{
			Addr:         "127.0.0.1:6379",
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverMemory, DriverRedis)),
		validation.Field(&c.MaxEntries, validation.Min(0)),
		validation.Field(&c.Redis, validation.When(c.Driver == DriverRedis, validation.By(func(interface{}) error {
			return c.Redis.validate()
		}))),
	)
}

func (c RedisConfig) validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.DB, validation.Min(0)),
		validation.Field(&c.PoolSize, validation.Min(0)),
	)
}

// New builds the configured backend
func New(cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ErrConfig.Wrap(err)
	}
	switch cfg.Driver {
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		return NewRedisStore(client, cfg.KeyPrefix, true), nil
	case DriverMemory:
		return NewMemoryStore(cfg.MaxEntries), nil
	default:
		return nil, ErrConfig.WithMsgf("unsupported store driver %q", cfg.Driver)
	}
}

// String hides the password
func (c RedisConfig) String() string {
	return fmt.Sprintf("redis://%s/%d", c.Addr, c.DB)
}

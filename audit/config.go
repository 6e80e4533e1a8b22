package audit

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config dispatcher and writer settings
type Config struct {
	BufferSize    int           `mapstructure:"buffer_size"` // queued records before dropping
	Workers       int           `mapstructure:"workers"`     // ants pool size
	BatchSize     int           `mapstructure:"batch_size"`
	JournalSize   int           `mapstructure:"journal_size"` // records kept in memory for the admin API
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	TransitionTTL time.Duration `mapstructure:"transition_ttl"`
	SnapshotTTL   time.Duration `mapstructure:"snapshot_ttl"`
	MetricsTTL    time.Duration `mapstructure:"metrics_ttl"`
	Store         StoreConfig   `mapstructure:"store"`
	Kafka         KafkaConfig   `mapstructure:"kafka"`
	SQL           SQLConfig     `mapstructure:"sql"`
}

// StoreConfig key/value writer
type StoreConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// KafkaConfig kafka writer
type KafkaConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Brokers  []string      `mapstructure:"brokers"`
	Topic    string        `mapstructure:"topic"`
	ClientID string        `mapstructure:"client_id"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Kinds    []string      `mapstructure:"kinds"` // empty = every kind
}

// SQLConfig relational writer, connection settings live in the database section
type SQLConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Kinds   []string `mapstructure:"kinds"`
}

// DefaultConfig store writer only
func DefaultConfig() Config {
	return Config{
		BufferSize:    1024,
		Workers:       4,
		BatchSize:     64,
		JournalSize:   500,
		WriteTimeout:  3 * time.Second,
		TransitionTTL: 24 * time.Hour,
		SnapshotTTL:   time.Hour,
		MetricsTTL:    5 * time.Minute,
		Store:         StoreConfig{Enabled: true},
		Kafka: KafkaConfig{
			Topic:    "guard.audit",
			ClientID: "guard",
			Timeout:  5 * time.Second,
			Kinds:    []string{string(KindCircuitTransition), string(KindCircuitReset), string(KindScalingAction), string(KindScalingAlert)},
		},
		SQL: SQLConfig{
			Kinds: []string{string(KindCircuitTransition), string(KindCircuitReset), string(KindScalingAction), string(KindScalingAlert)},
		},
	}
}

var kindNames = []interface{}{
	string(KindCircuitTransition), string(KindCircuitSnapshot), string(KindCircuitReset),
	string(KindScalingAction), string(KindScalingAlert), string(KindScalingMetrics),
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BufferSize, validation.Required, validation.Min(1)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&c.JournalSize, validation.Min(0)),
		validation.Field(&c.TransitionTTL, validation.Required),
		validation.Field(&c.SnapshotTTL, validation.Required),
		validation.Field(&c.MetricsTTL, validation.Required),
		validation.Field(&c.Kafka),
		validation.Field(&c.SQL),
	)
}

func (c KafkaConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Brokers, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Topic, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Kinds, validation.Each(validation.In(kindNames...))),
	)
}

func (c SQLConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Kinds, validation.Each(validation.In(kindNames...))),
	)
}

// ttlFor retention per kind
func (c Config) ttlFor(k Kind) time.Duration {
	switch k {
	case KindCircuitSnapshot:
		return c.SnapshotTTL
	case KindScalingMetrics:
		return c.MetricsTTL
	default:
		return c.TransitionTTL
	}
}

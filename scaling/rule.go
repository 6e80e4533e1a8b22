package scaling

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Metric name of a ScalingMetrics field
type Metric string

const (
	MetricCPUUsage          Metric = "cpuUsage"
	MetricMemoryUsage       Metric = "memoryUsage"
	MetricRequestRate       Metric = "requestRate"
	MetricResponseTime      Metric = "responseTime"
	MetricErrorRate         Metric = "errorRate"
	MetricActiveConnections Metric = "activeConnections"
)

// Operator comparison applied as value <op> threshold
type Operator string

const (
	OpGreater      Operator = "gt"
	OpLess         Operator = "lt"
	OpGreaterEqual Operator = "gte"
	OpLessEqual    Operator = "lte"
	OpEqual        Operator = "eq"
)

// Compare reports whether value satisfies the operator against threshold
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	default:
		return false
	}
}

// Action what a triggered rule does
type Action string

const (
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
	ActionAlert     Action = "alert"
)

var (
	allMetrics = []interface{}{
		MetricCPUUsage, MetricMemoryUsage, MetricRequestRate,
		MetricResponseTime, MetricErrorRate, MetricActiveConnections,
	}
	allOperators = []interface{}{OpGreater, OpLess, OpGreaterEqual, OpLessEqual, OpEqual}
	allActions   = []interface{}{ActionScaleUp, ActionScaleDown, ActionAlert}
)

// Rule declarative trigger. An empty Service applies the rule to every service.
type Rule struct {
	Name         string        `mapstructure:"name" json:"name"`
	Service      string        `mapstructure:"service" json:"service,omitempty"`
	Metric       Metric        `mapstructure:"metric" json:"metric"`
	Threshold    float64       `mapstructure:"threshold" json:"threshold"`
	Operator     Operator      `mapstructure:"operator" json:"operator"`
	Action       Action        `mapstructure:"action" json:"action"`
	Cooldown     time.Duration `mapstructure:"cooldown" json:"cooldown"`
	MinInstances int           `mapstructure:"min_instances" json:"minInstances"`
	MaxInstances int           `mapstructure:"max_instances" json:"maxInstances"`
}

// AppliesTo reports whether the rule is evaluated for service
func (r Rule) AppliesTo(service string) bool {
	return r.Service == "" || r.Service == service
}

func (r Rule) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Metric, validation.Required, validation.In(allMetrics...)),
		validation.Field(&r.Operator, validation.Required, validation.In(allOperators...)),
		validation.Field(&r.Action, validation.Required, validation.In(allActions...)),
		validation.Field(&r.Cooldown, validation.Min(time.Duration(0))),
		validation.Field(&r.MinInstances, validation.Min(0)),
		validation.Field(&r.MaxInstances,
			validation.Min(r.MinInstances).Error("must be no less than minInstances"),
			validation.When(r.Action == ActionScaleUp, validation.Min(1))),
	)
}

// Metrics one sample for one service
type Metrics struct {
	CPUUsage          float64   `mapstructure:"cpu_usage" json:"cpuUsage"`
	MemoryUsage       float64   `mapstructure:"memory_usage" json:"memoryUsage"`
	RequestRate       float64   `mapstructure:"request_rate" json:"requestRate"`
	ResponseTime      float64   `mapstructure:"response_time" json:"responseTime"` // milliseconds
	ErrorRate         float64   `mapstructure:"error_rate" json:"errorRate"`       // percent
	ActiveConnections float64   `mapstructure:"active_connections" json:"activeConnections"`
	Timestamp         time.Time `mapstructure:"-" json:"timestamp,omitempty"`
}

// Value reads the field named by m
func (s Metrics) Value(m Metric) float64 {
	switch m {
	case MetricCPUUsage:
		return s.CPUUsage
	case MetricMemoryUsage:
		return s.MemoryUsage
	case MetricRequestRate:
		return s.RequestRate
	case MetricResponseTime:
		return s.ResponseTime
	case MetricErrorRate:
		return s.ErrorRate
	case MetricActiveConnections:
		return s.ActiveConnections
	default:
		return 0
	}
}

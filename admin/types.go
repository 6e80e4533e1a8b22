package admin

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/KOMKZ/go-yogan-guard/breaker"
	"github.com/KOMKZ/go-yogan-guard/scaling"
)

type ServiceURI struct {
	Service string `uri:"service" json:"-"`
}

// CircuitView one circuit with the thresholds applied to it
type CircuitView struct {
	breaker.Snapshot
	Config ConfigView `json:"config"`
}

// ConfigView breaker.ResourceConfig with readable durations
type ConfigView struct {
	FailureThreshold int      `json:"failureThreshold"`
	RecoveryTimeout  Duration `json:"recoveryTimeout"`
	MonitoringPeriod Duration `json:"monitoringPeriod"`
	HalfOpenMaxCalls int      `json:"halfOpenMaxCalls"`
}

func toConfigView(rc breaker.ResourceConfig) ConfigView {
	return ConfigView{
		FailureThreshold: rc.FailureThreshold,
		RecoveryTimeout:  Duration(rc.RecoveryTimeout),
		MonitoringPeriod: Duration(rc.MonitoringPeriod),
		HalfOpenMaxCalls: rc.HalfOpenMaxCalls,
	}
}

func (v ConfigView) resource() breaker.ResourceConfig {
	return breaker.ResourceConfig{
		FailureThreshold: v.FailureThreshold,
		RecoveryTimeout:  time.Duration(v.RecoveryTimeout),
		MonitoringPeriod: time.Duration(v.MonitoringPeriod),
		HalfOpenMaxCalls: v.HalfOpenMaxCalls,
	}
}

type SetConfigRequest struct {
	ServiceURI
	ConfigView
}

func (r *SetConfigRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Service, validation.Required),
	)
}

// RuleView scaling.Rule with a readable cooldown
type RuleView struct {
	Name         string           `json:"name"`
	Service      string           `json:"service,omitempty"`
	Metric       scaling.Metric   `json:"metric"`
	Threshold    float64          `json:"threshold"`
	Operator     scaling.Operator `json:"operator"`
	Action       scaling.Action   `json:"action"`
	Cooldown     Duration         `json:"cooldown"`
	MinInstances int              `json:"minInstances"`
	MaxInstances int              `json:"maxInstances"`
}

func toRuleView(r scaling.Rule) RuleView {
	return RuleView{
		Name:         r.Name,
		Service:      r.Service,
		Metric:       r.Metric,
		Threshold:    r.Threshold,
		Operator:     r.Operator,
		Action:       r.Action,
		Cooldown:     Duration(r.Cooldown),
		MinInstances: r.MinInstances,
		MaxInstances: r.MaxInstances,
	}
}

func (v RuleView) rule() scaling.Rule {
	return scaling.Rule{
		Name:         v.Name,
		Service:      v.Service,
		Metric:       v.Metric,
		Threshold:    v.Threshold,
		Operator:     v.Operator,
		Action:       v.Action,
		Cooldown:     time.Duration(v.Cooldown),
		MinInstances: v.MinInstances,
		MaxInstances: v.MaxInstances,
	}
}

type RuleURI struct {
	Name string `uri:"name"`
}

type SetInstancesRequest struct {
	ServiceURI
	Instances *int `json:"instances"`
}

func (r *SetInstancesRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Instances, validation.NotNil, validation.Min(0)),
	)
}

type EvaluateRequest struct {
	ServiceURI
	scaling.Metrics
}

type AuditQuery struct {
	Limit   int    `form:"limit"`
	Service string `form:"service"`
	Kind    string `form:"kind"`
}

func (q *AuditQuery) Validate() error {
	return validation.ValidateStruct(q,
		validation.Field(&q.Limit, validation.Min(0)),
	)
}

// StatsView combined counters of every control loop
type StatsView struct {
	Breaker breaker.Stats `json:"breaker"`
	Scaling scaling.Stats `json:"scaling"`
	Audit   interface{}   `json:"audit,omitempty"`
}

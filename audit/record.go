// Package audit carries breaker transitions, scaling actions and metric samples
// from the control loops to durable backends without blocking the caller.
package audit

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind classifies a record
type Kind string

const (
	KindCircuitTransition Kind = "circuit_transition"
	KindCircuitSnapshot   Kind = "circuit_snapshot"
	KindCircuitReset      Kind = "circuit_reset"
	KindScalingAction     Kind = "scaling_action"
	KindScalingAlert      Kind = "scaling_alert"
	KindScalingMetrics    Kind = "scaling_metrics"
)

// SnapshotKeyPrefix prefix of the latest breaker snapshot per service
const SnapshotKeyPrefix = "circuit_breaker:"

// Record one auditable event
type Record struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Service       string          `json:"service"`
	Action        string          `json:"action,omitempty"`
	FromState     string          `json:"fromState,omitempty"`
	ToState       string          `json:"toState,omitempty"`
	FromInstances int             `json:"fromInstances,omitempty"`
	ToInstances   int             `json:"toInstances,omitempty"`
	Rule          string          `json:"rule,omitempty"`
	Metric        string          `json:"metric,omitempty"`
	Threshold     float64         `json:"threshold,omitempty"`
	Value         float64         `json:"value,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	// TTL retention in the key/value store, zero picks the per-kind default
	TTL time.Duration `json:"-"`
}

// StoreKey location of the record in the key/value store.
// Snapshots overwrite a single key per service; everything else is keyed by
// time and record id, so records sharing a timestamp keep separate keys.
func (r Record) StoreKey() string {
	switch r.Kind {
	case KindCircuitSnapshot:
		return SnapshotKeyPrefix + r.Service
	case KindScalingMetrics:
		return fmt.Sprintf("scaling_metrics:%s:%d:%s", r.Service, r.Timestamp.UnixMilli(), r.ID)
	default:
		return fmt.Sprintf("audit:%s:%d:%s", r.Service, r.Timestamp.UnixMilli(), r.ID)
	}
}

// WithPayload returns a copy carrying v encoded as JSON
func (r Record) WithPayload(v interface{}) Record {
	data, err := json.Marshal(v)
	if err == nil {
		r.Payload = data
	}
	return r
}

// Sink accepts records without blocking
type Sink interface {
	Emit(r Record)
}

// NopSink discards everything
type NopSink struct{}

func (NopSink) Emit(Record) {}

// SinkFunc adapts a function to Sink
type SinkFunc func(Record)

func (f SinkFunc) Emit(r Record) { f(r) }

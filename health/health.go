// Package health aggregates component checks into one status
package health

import (
	"context"
	"errors"
	"time"
)

// Status health state
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded" // serving, some dependency refused or lagging
	StatusUnhealthy Status = "unhealthy"
)

// Checker one health check item
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// DegradedError marks a check result as degraded rather than unhealthy
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string { return e.Reason }

// Degraded wraps reason as a degraded result
func Degraded(reason string) error {
	return &DegradedError{Reason: reason}
}

// IsDegraded reports whether err marks a degraded result
func IsDegraded(err error) bool {
	var de *DegradedError
	return errors.As(err, &de)
}

// CheckResult outcome of one item
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Response aggregated result
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IsHealthy overall status is healthy
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsDegraded overall status is degraded
func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}

package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator runs registered checks concurrently under one timeout.
// Any unhealthy item makes the whole unhealthy; otherwise any degraded item degrades it.
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	metadata map[string]interface{}
}

// NewAggregator creates an aggregator, timeout <= 0 means 5s
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{timeout: timeout, metadata: make(map[string]interface{})}
}

// Register adds checkers
func (a *Aggregator) Register(checkers ...Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, checkers...)
}

// SetMetadata attaches a static value to every response
func (a *Aggregator) SetMetadata(key string, value interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Check runs every checker and folds the results
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	metadata := make(map[string]interface{}, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	a.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var wg sync.WaitGroup
	for i, c := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = checkOne(ctx, c)
		}()
	}
	wg.Wait()

	checks := make(map[string]CheckResult, len(results))
	status := StatusHealthy
	for _, r := range results {
		checks[r.Name] = r
		switch {
		case r.Status == StatusUnhealthy:
			status = StatusUnhealthy
		case r.Status == StatusDegraded && status == StatusHealthy:
			status = StatusDegraded
		}
	}

	return &Response{
		Status:    status,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
}

func checkOne(ctx context.Context, c Checker) CheckResult {
	start := time.Now()
	err := c.Check(ctx)
	result := CheckResult{Name: c.Name(), Timestamp: start, Duration: time.Since(start)}

	switch {
	case err == nil:
		result.Status = StatusHealthy
		result.Message = "OK"
	case IsDegraded(err):
		result.Status = StatusDegraded
		result.Message = err.Error()
	default:
		result.Status = StatusUnhealthy
		result.Message = "health check failed"
		result.Error = err.Error()
	}
	return result
}

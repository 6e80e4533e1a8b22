package breaker

import (
	"sync"
	"time"
)

// decision outcome of admission
type decision int

const (
	admitted decision = iota
	refusedOpen
	refusedHalfOpen
)

// transition state change produced under the circuit lock
type transition struct {
	from, to State
	reason   string
}

// ticket identifies an admitted call; a result whose generation no longer
// matches the circuit is stale and only counted, never acted upon.
type ticket struct {
	generation uint64
	halfOpen   bool
}

// circuit per-service state, every field guarded by mu
type circuit struct {
	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	halfOpenInFlight int
	totalCalls       int64
	lastFailure      time.Time
	nextAttempt      time.Time
	generation       uint64
}

func (c *circuit) setState(to State, reason string) *transition {
	t := &transition{from: c.state, to: to, reason: reason}
	c.state = to
	c.generation++
	return t
}

// admit decides whether a call may run. The OPEN -> HALF_OPEN move and the
// admission of its first trial call happen in the same critical section, so exactly one
// caller observes the transition.
func (c *circuit) admit(now time.Time, cfg ResourceConfig) (decision, ticket, *transition) {
	c.totalCalls++

	var tr *transition
	switch c.state {
	case StateOpen:
		if now.Before(c.nextAttempt) {
			return refusedOpen, ticket{}, nil
		}
		tr = c.setState(StateHalfOpen, "recovery timeout elapsed")
		c.successCount = 0
		c.halfOpenInFlight = 1
		return admitted, ticket{generation: c.generation, halfOpen: true}, tr

	case StateHalfOpen:
		// one trial call at a time; the next only after the previous succeeded
		if c.halfOpenInFlight > 0 || c.successCount >= cfg.HalfOpenMaxCalls {
			return refusedHalfOpen, ticket{}, nil
		}
		c.halfOpenInFlight = 1
		return admitted, ticket{generation: c.generation, halfOpen: true}, nil

	default:
		return admitted, ticket{generation: c.generation}, nil
	}
}

func (c *circuit) onSuccess(t ticket, cfg ResourceConfig) *transition {
	if t.generation != c.generation {
		return nil
	}
	switch c.state {
	case StateHalfOpen:
		c.halfOpenInFlight = 0
		c.successCount++
		if c.successCount >= cfg.HalfOpenMaxCalls {
			tr := c.setState(StateClosed, "half-open trial calls succeeded")
			c.failureCount = 0
			c.successCount = 0
			c.halfOpenInFlight = 0
			return tr
		}
	case StateClosed:
		if c.failureCount > 0 {
			c.failureCount--
		}
	}
	return nil
}

func (c *circuit) onFailure(t ticket, now time.Time, cfg ResourceConfig) *transition {
	if t.generation != c.generation {
		return nil
	}
	switch c.state {
	case StateHalfOpen:
		c.failureCount++
		c.lastFailure = now
		c.nextAttempt = now.Add(cfg.RecoveryTimeout)
		c.halfOpenInFlight = 0
		return c.setState(StateOpen, "half-open trial call failed")
	case StateClosed:
		c.failureCount++
		c.lastFailure = now
		if c.failureCount >= cfg.FailureThreshold {
			c.nextAttempt = now.Add(cfg.RecoveryTimeout)
			return c.setState(StateOpen, "failure threshold reached")
		}
	}
	return nil
}

// reset forces CLOSED, lifetime counters survive
func (c *circuit) reset() *transition {
	var tr *transition
	if c.state != StateClosed {
		tr = c.setState(StateClosed, "manual reset")
	} else {
		c.generation++
	}
	c.failureCount = 0
	c.successCount = 0
	c.halfOpenInFlight = 0
	c.nextAttempt = time.Time{}
	return tr
}

func (c *circuit) snapshot(service string) Snapshot {
	return Snapshot{
		SchemaVersion:        SnapshotVersion,
		Service:              service,
		State:                c.state,
		FailureCount:         c.failureCount,
		SuccessCount:         c.successCount,
		TotalCalls:           c.totalCalls,
		LastFailureTimestamp: toMillis(c.lastFailure),
		NextAttemptTimestamp: toMillis(c.nextAttempt),
		HalfOpenInFlight:     c.halfOpenInFlight,
	}
}

func (c *circuit) restore(s Snapshot) {
	c.state = s.State
	c.failureCount = s.FailureCount
	c.successCount = s.SuccessCount
	c.totalCalls = s.TotalCalls
	c.lastFailure = s.LastFailure()
	c.nextAttempt = s.NextAttempt()
	// trial calls in flight belonged to the previous process
	c.halfOpenInFlight = 0
	c.generation++
}

package health

import (
	"context"
	"fmt"
	"strings"

	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/breaker"
)

// CheckerFunc named function check
type CheckerFunc struct {
	ID string
	Fn func(ctx context.Context) error
}

func (c CheckerFunc) Name() string { return c.ID }

func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Pinger anything with a context-aware Ping, such as a store
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker unhealthy when Ping fails
func PingChecker(name string, p Pinger) Checker {
	return CheckerFunc{ID: name, Fn: p.Ping}
}

// BreakerChecker degraded while any circuit is OPEN
func BreakerChecker(m *breaker.Manager) Checker {
	return CheckerFunc{ID: "circuits", Fn: func(context.Context) error {
		h := m.Health()
		if h.Status == breaker.HealthDegraded {
			return Degraded(fmt.Sprintf("%d of %d circuits open: %s",
				h.OpenCircuits, h.CircuitsCount, strings.Join(h.OpenServices, ",")))
		}
		return nil
	}}
}

// AuditChecker degraded once the dispatcher has dropped or failed writes
func AuditChecker(d *audit.Dispatcher) Checker {
	return CheckerFunc{ID: "audit", Fn: func(context.Context) error {
		st := d.Stats()
		if st.Dropped > 0 || st.Failed > 0 {
			return Degraded(fmt.Sprintf("audit dropped %d records, %d failed writes", st.Dropped, st.Failed))
		}
		return nil
	}}
}

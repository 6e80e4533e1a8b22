package breaker

// Summary count of circuits per state
type Summary struct {
	Closed   int `json:"closed"`
	Open     int `json:"open"`
	HalfOpen int `json:"halfOpen"`
}

// Stats registry-wide view
type Stats struct {
	TotalCircuits int                 `json:"totalCircuits"`
	Circuits      map[string]Snapshot `json:"circuitStates"`
	Summary       Summary             `json:"summary"`
}

// Stats snapshots every circuit and tallies states
func (m *Manager) Stats() Stats {
	states := m.States()
	st := Stats{TotalCircuits: len(states), Circuits: states}
	for _, s := range states {
		switch s.State {
		case StateOpen:
			st.Summary.Open++
		case StateHalfOpen:
			st.Summary.HalfOpen++
		default:
			st.Summary.Closed++
		}
	}
	return st
}

// Health statuses
const (
	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
)

// Health degraded while any circuit is OPEN
type Health struct {
	Status        string   `json:"status"`
	CircuitsCount int      `json:"circuitsCount"`
	OpenCircuits  int      `json:"openCircuits"`
	OpenServices  []string `json:"openServices,omitempty"`
}

// Health summarises open circuits
func (m *Manager) Health() Health {
	h := Health{Status: HealthHealthy}
	for _, name := range m.Services() {
		s, ok := m.State(name)
		if !ok {
			continue
		}
		h.CircuitsCount++
		if s.State == StateOpen {
			h.OpenCircuits++
			h.OpenServices = append(h.OpenServices, name)
		}
	}
	if h.OpenCircuits > 0 {
		h.Status = HealthDegraded
	}
	return h
}

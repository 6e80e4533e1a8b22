package breaker

import (
	"encoding/json"
	"time"
)

// SnapshotVersion current persisted schema
const SnapshotVersion = 1

// Snapshot point-in-time copy of one circuit, also the persisted form.
// Timestamps are Unix milliseconds, zero means unset.
type Snapshot struct {
	SchemaVersion        int    `json:"schemaVersion"`
	Service              string `json:"service"`
	State                State  `json:"state"`
	FailureCount         int    `json:"failureCount"`
	SuccessCount         int    `json:"successCount"`
	TotalCalls           int64  `json:"totalCalls"`
	LastFailureTimestamp int64  `json:"lastFailureTimestamp"`
	NextAttemptTimestamp int64  `json:"nextAttemptTimestamp"`
	HalfOpenInFlight     int    `json:"halfOpenInFlight,omitempty"`
}

// LastFailure as time, zero when never failed
func (s Snapshot) LastFailure() time.Time {
	return fromMillis(s.LastFailureTimestamp)
}

// NextAttempt as time, zero unless the circuit has opened
func (s Snapshot) NextAttempt() time.Time {
	return fromMillis(s.NextAttemptTimestamp)
}

// EncodeSnapshot JSON form with the current schema version
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	s.SchemaVersion = SnapshotVersion
	return json.Marshal(s)
}

// DecodeSnapshot parses data, rejecting unknown schema versions
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, err
	}
	if s.SchemaVersion != SnapshotVersion {
		return Snapshot{}, ErrSnapshotVersion.WithData("version", s.SchemaVersion)
	}
	return s, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

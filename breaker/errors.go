package breaker

import (
	"net/http"

	"github.com/KOMKZ/go-yogan-guard/errcode"
)

var (
	// ErrCircuitOpen refused because the circuit is OPEN
	ErrCircuitOpen = errcode.Register(errcode.New(errcode.ModuleBreaker, 1,
		"breaker", "error.breaker.open", "circuit breaker is open", http.StatusServiceUnavailable))

	// ErrHalfOpenLimit refused because HALF_OPEN already has a trial call in flight or met its quota
	ErrHalfOpenLimit = errcode.Register(errcode.New(errcode.ModuleBreaker, 2,
		"breaker", "error.breaker.half_open_limit", "circuit breaker half-open limit reached", http.StatusServiceUnavailable))

	// ErrInvalidConfig rejected ResourceConfig
	ErrInvalidConfig = errcode.Register(errcode.New(errcode.ModuleBreaker, 3,
		"breaker", "error.breaker.config", "invalid circuit breaker configuration", http.StatusBadRequest))

	// ErrSnapshotVersion snapshot written by an unknown schema
	ErrSnapshotVersion = errcode.Register(errcode.New(errcode.ModuleBreaker, 4,
		"breaker", "error.breaker.snapshot_version", "unsupported circuit snapshot version"))
)

package errcode

import (
	"fmt"
	"sort"
	"sync"
)

// Registry guards against two modules claiming the same code
type Registry struct {
	mu    sync.RWMutex
	codes map[int]string // code -> module:msgKey
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{codes: make(map[int]string)}
}

// Register records err in the global registry, panics on conflict
func Register(err *LayeredError) *LayeredError {
	return globalRegistry.Register(err)
}

// Register records err, re-registering the same code and key is a no-op
func (r *Registry) Register(err *LayeredError) *LayeredError {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s:%s", err.Module(), err.MsgKey())
	if existing, ok := r.codes[err.Code()]; ok && existing != key {
		panic(fmt.Sprintf("error code conflict: %d already registered as %s, cannot register as %s",
			err.Code(), existing, key))
	}
	r.codes[err.Code()] = key
	return err
}

// Codes returns registered codes in ascending order
func (r *Registry) Codes() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int, 0, len(r.codes))
	for c := range r.codes {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// Lookup returns the module:msgKey registered for code
func (r *Registry) Lookup(code int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.codes[code]
	return k, ok
}

// Global returns the process-wide registry
func Global() *Registry {
	return globalRegistry
}

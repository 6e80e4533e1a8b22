package feed

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/KOMKZ/go-yogan-guard/scaling"
	"github.com/KOMKZ/go-yogan-guard/store"
)

// Sample one service's metrics as reported by a source
type Sample struct {
	Service string
	Metrics scaling.Metrics
}

// Source produces the latest samples of the services it knows about
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]Sample, error)
}

// StaticSource fixed samples, replaceable at runtime
type StaticSource struct {
	name    string
	mu      sync.RWMutex
	samples map[string]scaling.Metrics
}

// NewStaticSource creates a StaticSource holding samples
func NewStaticSource(name string, samples map[string]scaling.Metrics) *StaticSource {
	s := &StaticSource{name: name, samples: make(map[string]scaling.Metrics, len(samples))}
	for k, v := range samples {
		s.samples[k] = v
	}
	return s
}

func (s *StaticSource) Name() string { return s.name }

// Set replaces the sample reported for service
func (s *StaticSource) Set(service string, m scaling.Metrics) {
	s.mu.Lock()
	s.samples[service] = m
	s.mu.Unlock()
}

func (s *StaticSource) Collect(context.Context) ([]Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Sample, 0, len(s.samples))
	for service, m := range s.samples {
		out = append(out, Sample{Service: service, Metrics: m})
	}
	return out, nil
}

// StoreSource reads samples that agents push into the key/value store
// under <prefix><service> as JSON.
// Published samples expire after ttl so a silent agent stops feeding the engine.
type StoreSource struct {
	store  store.Store
	prefix string
	ttl    time.Duration
}

// NewStoreSource creates a StoreSource; ttl <= 0 keeps samples until overwritten
func NewStoreSource(s store.Store, prefix string, ttl time.Duration) *StoreSource {
	if ttl < 0 {
		ttl = 0
	}
	return &StoreSource{store: s, prefix: prefix, ttl: ttl}
}

func (s *StoreSource) Name() string { return "store:" + s.prefix }

// Publish writes a sample where Collect will find it
func (s *StoreSource) Publish(ctx context.Context, service string, m scaling.Metrics) error {
	return store.SetJSON(ctx, s.store, s.prefix+service, m, s.ttl)
}

func (s *StoreSource) Collect(ctx context.Context) ([]Sample, error) {
	keys, err := s.store.Keys(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Sample, 0, len(keys))
	for _, key := range keys {
		m, err := store.GetJSON[scaling.Metrics](ctx, s.store, key)
		if err != nil {
			// expired between Keys and Get, or written by someone else
			continue
		}
		out = append(out, Sample{Service: strings.TrimPrefix(key, s.prefix), Metrics: m})
	}
	return out, nil
}

// SourceFunc adapts a function to Source
type SourceFunc struct {
	ID string
	Fn func(ctx context.Context) ([]Sample, error)
}

func (f SourceFunc) Name() string { return f.ID }

func (f SourceFunc) Collect(ctx context.Context) ([]Sample, error) { return f.Fn(ctx) }

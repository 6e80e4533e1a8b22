package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryStore in-process store with lazy expiry and a periodic sweep
type MemoryStore struct {
	data    map[string]memoryItem
	mu      sync.RWMutex
	maxSize int
	clock   clockwork.Clock
	stop    chan struct{}
	once    sync.Once
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryOption configures a MemoryStore
type MemoryOption func(*MemoryStore)

// WithClock replaces the wall clock, used by tests
func WithClock(c clockwork.Clock) MemoryOption {
	return func(s *MemoryStore) { s.clock = c }
}

// NewMemoryStore creates a memory store holding at most maxSize keys
func NewMemoryStore(maxSize int, opts ...MemoryOption) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 100000
	}
	s := &MemoryStore{
		data:    make(map[string]memoryItem),
		maxSize: maxSize,
		clock:   clockwork.NewRealClock(),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop(time.Minute)
	return s
}

func (s *MemoryStore) Name() string { return DriverMemory }

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	item, ok := s.data[key]
	s.mu.RUnlock()
	if !ok || item.expired(s.clock.Now()) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.clock.Now()
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && len(s.data) >= s.maxSize {
		s.evictLocked(now)
	}
	s.data[key] = item
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	now := s.clock.Now()
	s.mu.RLock()
	keys := make([]string, 0)
	for k, item := range s.data {
		if strings.HasPrefix(k, prefix) && !item.expired(now) {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// Len counts stored keys including expired ones not yet swept
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}

// evictLocked drops expired keys, or the key closest to expiry when none are
func (s *MemoryStore) evictLocked(now time.Time) {
	var (
		victim  string
		soonest time.Time
	)
	for k, item := range s.data {
		if item.expired(now) {
			delete(s.data, k)
			continue
		}
		if victim == "" || (!item.expiresAt.IsZero() && (soonest.IsZero() || item.expiresAt.Before(soonest))) {
			victim, soonest = k, item.expiresAt
		}
	}
	if len(s.data) >= s.maxSize && victim != "" {
		delete(s.data, victim)
	}
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.Chan():
			s.Sweep()
		}
	}
}

// Sweep removes expired keys
func (s *MemoryStore) Sweep() {
	now := s.clock.Now()
	s.mu.Lock()
	for k, item := range s.data {
		if item.expired(now) {
			delete(s.data, k)
		}
	}
	s.mu.Unlock()
}

func (i memoryItem) expired(now time.Time) bool {
	return !i.expiresAt.IsZero() && !now.Before(i.expiresAt)
}

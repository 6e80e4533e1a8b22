// Package store provides the key/value MetricsStore used for breaker snapshots,
// audit records and scaling samples. Writes are best effort for callers.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/KOMKZ/go-yogan-guard/errcode"
)

// Store key/value contract with per-key TTL
type Store interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value, ttl <= 0 means no expiry
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Keys lists live keys starting with prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

const (
	ErrCodeNotFound = 1
	ErrCodeGet      = 2
	ErrCodeSet      = 3
	ErrCodeDelete   = 4
	ErrCodeCodec    = 5
	ErrCodeConfig   = 6
)

var (
	// ErrNotFound key missing or expired
	ErrNotFound = errcode.Register(errcode.New(errcode.ModuleStore, ErrCodeNotFound,
		"store", "error.store.not_found", "key not found", http.StatusNotFound))
	ErrGet = errcode.Register(errcode.New(errcode.ModuleStore, ErrCodeGet,
		"store", "error.store.get", "store read failed"))
	ErrSet = errcode.Register(errcode.New(errcode.ModuleStore, ErrCodeSet,
		"store", "error.store.set", "store write failed"))
	ErrDelete = errcode.Register(errcode.New(errcode.ModuleStore, ErrCodeDelete,
		"store", "error.store.delete", "store delete failed"))
	ErrCodec = errcode.Register(errcode.New(errcode.ModuleStore, ErrCodeCodec,
		"store", "error.store.codec", "store value encoding failed"))
	ErrConfig = errcode.Register(errcode.New(errcode.ModuleStore, ErrCodeConfig,
		"store", "error.store.config", "invalid store configuration", http.StatusBadRequest))
)

// SetJSON encodes v as JSON and stores it
func SetJSON(ctx context.Context, s Store, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ErrCodec.Wrap(err)
	}
	return s.Set(ctx, key, data, ttl)
}

// GetJSON loads key and decodes it into T
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var out T
	data, err := s.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, ErrCodec.Wrap(fmt.Errorf("decode %s: %w", key, err))
	}
	return out, nil
}

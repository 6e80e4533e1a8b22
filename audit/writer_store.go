package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/KOMKZ/go-yogan-guard/store"
)

// StoreWriter writes records into the key/value store.
// Snapshot records store their payload so the key holds the bare snapshot.
type StoreWriter struct {
	store store.Store
}

// NewStoreWriter creates a StoreWriter
func NewStoreWriter(s store.Store) *StoreWriter {
	return &StoreWriter{store: s}
}

func (w *StoreWriter) Name() string { return "store:" + w.store.Name() }

func (w *StoreWriter) Write(ctx context.Context, records []Record) error {
	var errs []error
	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		value := []byte(r.Payload)
		if r.Kind != KindCircuitSnapshot || len(value) == 0 {
			data, err := json.Marshal(r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			value = data
		}
		if err := w.store.Set(ctx, r.StoreKey(), value, r.TTL); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return ErrWrite.Wrap(errors.Join(errs...))
	}
	return nil
}

// Close leaves the store open, it is shared with other components
func (w *StoreWriter) Close() error { return nil }

// FilterWriter forwards only the listed kinds
type FilterWriter struct {
	next  Writer
	kinds map[Kind]bool
}

// Only wraps w so it sees the given kinds, no kinds passes everything
func Only(w Writer, kinds ...string) Writer {
	if len(kinds) == 0 {
		return w
	}
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[Kind(k)] = true
	}
	return &FilterWriter{next: w, kinds: set}
}

func (f *FilterWriter) Name() string { return f.next.Name() }

func (f *FilterWriter) Write(ctx context.Context, records []Record) error {
	kept := make([]Record, 0, len(records))
	for _, r := range records {
		if f.kinds[r.Kind] {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return f.next.Write(ctx, kept)
}

func (f *FilterWriter) Close() error { return f.next.Close() }

package audit

import "sync"

// Journal fixed-size ring of the most recent records
type Journal struct {
	mu    sync.RWMutex
	buf   []Record
	next  int
	count int
}

// NewJournal keeps at most size records, size 0 keeps nothing
func NewJournal(size int) *Journal {
	return &Journal{buf: make([]Record, size)}
}

// Add appends r, overwriting the oldest entry when full
func (j *Journal) Add(r Record) {
	if len(j.buf) == 0 {
		return
	}
	j.mu.Lock()
	j.buf[j.next] = r
	j.next = (j.next + 1) % len(j.buf)
	if j.count < len(j.buf) {
		j.count++
	}
	j.mu.Unlock()
}

// Filter narrows List results, zero values match everything
type Filter struct {
	Service string
	Kind    Kind
	Limit   int
}

// List returns matching records, newest first
func (j *Journal) List(f Filter) []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Record, 0)
	for i := 0; i < j.count; i++ {
		idx := (j.next - 1 - i + len(j.buf)) % len(j.buf)
		r := j.buf[idx]
		if f.Service != "" && r.Service != f.Service {
			continue
		}
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len number of records held
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}

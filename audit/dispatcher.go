package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/logger"
)

// Writer durable backend for records
type Writer interface {
	Name() string
	Write(ctx context.Context, records []Record) error
	Close() error
}

// Stats dispatcher counters
type Stats struct {
	Emitted uint64 `json:"emitted"`
	Dropped uint64 `json:"dropped"`
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Queued  int    `json:"queued"`
}

// Dispatcher Sink that queues records and fans batches out to writers on an ants pool.
// Emit never blocks: when the queue is full the record is dropped and counted.
// Batches are written one at a time so each writer sees records in emission order.
type Dispatcher struct {
	cfg     Config
	queue   chan Record
	writers []Writer
	journal *Journal
	pool    *ants.Pool
	log     *logger.CtxZapLogger
	clock   clockwork.Clock

	emitted atomic.Uint64
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64

	mu     sync.RWMutex // guards closed against concurrent Emit/Close
	closed bool
	done   chan struct{}
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithWriters adds backends
func WithWriters(w ...Writer) Option {
	return func(d *Dispatcher) { d.writers = append(d.writers, w...) }
}

// WithLogger sets the dispatcher logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithClock sets the clock stamping records
func WithClock(c clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// NewDispatcher starts the dispatch loop
func NewDispatcher(cfg Config, opts ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ErrConfig.Wrap(err)
	}
	d := &Dispatcher{
		cfg:     cfg,
		queue:   make(chan Record, cfg.BufferSize),
		journal: NewJournal(cfg.JournalSize),
		log:     logger.GetLogger("audit"),
		clock:   clockwork.NewRealClock(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, ErrConfig.Wrap(err)
	}
	d.pool = pool

	go d.run()
	return d, nil
}

// Emit stamps and enqueues r
func (d *Dispatcher) Emit(r Record) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = d.clock.Now()
	}
	if r.TTL <= 0 {
		r.TTL = d.cfg.ttlFor(r.Kind)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	d.emitted.Add(1)
	if r.Kind != KindCircuitSnapshot && r.Kind != KindScalingMetrics {
		d.journal.Add(r)
	}

	select {
	case d.queue <- r:
	default:
		d.dropped.Add(1)
		d.log.Warn("audit queue full, record dropped",
			zap.String("kind", string(r.Kind)), zap.String("service", r.Service))
	}
}

// Journal recent transition and action records
func (d *Dispatcher) Journal() *Journal {
	return d.journal
}

// Stats returns a snapshot of the counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Emitted: d.emitted.Load(),
		Dropped: d.dropped.Load(),
		Written: d.written.Load(),
		Failed:  d.failed.Load(),
		Queued:  len(d.queue),
	}
}

// Close stops accepting records, drains the queue and closes the writers
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	var errs []error
	select {
	case <-d.done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	d.pool.Release()

	for _, w := range d.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) run() {
	defer close(d.done)
	batch := make([]Record, 0, d.cfg.BatchSize)
	for r := range d.queue {
		batch = append(batch, r)
	fill:
		for len(batch) < d.cfg.BatchSize {
			select {
			case next, ok := <-d.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		d.flush(batch)
		batch = batch[:0]
	}
}

// flush hands the batch to every writer in parallel and waits for all of them
func (d *Dispatcher) flush(batch []Record) {
	if len(d.writers) == 0 {
		return
	}
	records := append([]Record(nil), batch...)

	var wg sync.WaitGroup
	for _, w := range d.writers {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			d.write(w, records)
		}
		if err := d.pool.Submit(task); err != nil {
			// pool closed or overloaded, write inline
			task()
		}
	}
	wg.Wait()
}

func (d *Dispatcher) write(w Writer, records []Record) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.WriteTimeout)
	defer cancel()

	if err := w.Write(ctx, records); err != nil {
		d.failed.Add(uint64(len(records)))
		d.log.Warn("audit write failed",
			zap.String("writer", w.Name()), zap.Int("records", len(records)), zap.Error(err))
		return
	}
	d.written.Add(uint64(len(records)))
}

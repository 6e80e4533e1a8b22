// Package feed collects metric samples from sources on a schedule and pushes
// them into the scaling engine.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/scaling"
)

// Evaluator consumes samples, satisfied by *scaling.Engine
type Evaluator interface {
	Evaluate(ctx context.Context, service string, m scaling.Metrics) scaling.Evaluation
}

// Report outcome of one poll
type Report struct {
	At           time.Time         `json:"at"`
	Services     []string          `json:"services"`
	Dispatched   int               `json:"dispatched"`
	SourceErrors map[string]string `json:"sourceErrors,omitempty"`
}

// Poller periodic collector
type Poller struct {
	cfg     Config
	sources []Source
	engine  Evaluator
	clock   clockwork.Clock
	log     *logger.CtxZapLogger

	scheduler gocron.Scheduler
	flight    singleflight.Group
	last      atomic.Pointer[Report]
	mu        sync.Mutex
}

// Option configures a Poller
type Option func(*Poller)

// WithLogger sets the poller logger
func WithLogger(l *logger.CtxZapLogger) Option {
	return func(p *Poller) { p.log = l }
}

// WithClock injects the time source stamped on reports
func WithClock(c clockwork.Clock) Option {
	return func(p *Poller) { p.clock = c }
}

// NewPoller creates a poller; Start schedules it
func NewPoller(cfg Config, engine Evaluator, sources []Source, opts ...Option) (*Poller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("feed config: %w", err)
	}
	p := &Poller{
		cfg:     cfg,
		sources: sources,
		engine:  engine,
		clock:   clockwork.NewRealClock(),
		log:     logger.GetLogger("feed"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start schedules Poll every interval, the first run immediately
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scheduler != nil {
		return nil
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(p.cfg.Interval),
		gocron.NewTask(func(ctx context.Context) {
			if _, err := p.Poll(ctx); err != nil {
				p.log.WarnCtx(ctx, "[Feed] poll finished with errors", zap.Error(err))
			}
		}),
		gocron.WithName("scaling-feed"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule feed: %w", err)
	}
	s.Start()
	p.scheduler = s
	p.log.Info("[Feed] poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Int("sources", len(p.sources)))
	return nil
}

// Stop shuts the scheduler down, waiting for a running poll
func (p *Poller) Stop() error {
	p.mu.Lock()
	s := p.scheduler
	p.scheduler = nil
	p.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Shutdown()
}

// LastReport result of the most recent poll
func (p *Poller) LastReport() (Report, bool) {
	r := p.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// Poll collects from every source concurrently, then evaluates each service.
// Overlapping calls share one run. Failing sources are reported; the samples
// of the others are still evaluated.
func (p *Poller) Poll(ctx context.Context) (Report, error) {
	v, err, _ := p.flight.Do("poll", func() (interface{}, error) {
		return p.poll(ctx)
	})
	if v == nil {
		return Report{}, err
	}
	return v.(Report), err
}

func (p *Poller) poll(ctx context.Context) (Report, error) {
	collected := make([][]Sample, len(p.sources))
	failures := make([]error, len(p.sources))

	var g errgroup.Group
	for i, src := range p.sources {
		g.Go(func() error {
			cctx := ctx
			if p.cfg.Timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
				defer cancel()
			}
			samples, err := src.Collect(cctx)
			if err != nil {
				failures[i] = fmt.Errorf("source %s: %w", src.Name(), err)
				return nil
			}
			collected[i] = samples
			return nil
		})
	}
	_ = g.Wait()

	// later sources override earlier ones for the same service
	merged := make(map[string]scaling.Metrics)
	for _, samples := range collected {
		for _, s := range samples {
			merged[s.Service] = s.Metrics
		}
	}

	report := Report{At: p.clock.Now(), Services: make([]string, 0, len(merged))}
	for service := range merged {
		report.Services = append(report.Services, service)
	}
	sort.Strings(report.Services)

	var dispatched atomic.Int64
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(p.cfg.Concurrency)
	for _, service := range report.Services {
		m := merged[service]
		eg.Go(func() error {
			ev := p.engine.Evaluate(ectx, service, m)
			dispatched.Add(int64(ev.Dispatched()))
			return nil
		})
	}
	_ = eg.Wait()
	report.Dispatched = int(dispatched.Load())

	var errs []error
	for i, err := range failures {
		if err == nil {
			continue
		}
		if report.SourceErrors == nil {
			report.SourceErrors = make(map[string]string)
		}
		report.SourceErrors[p.sources[i].Name()] = err.Error()
		errs = append(errs, err)
	}
	p.last.Store(&report)

	p.log.DebugCtx(ctx, "[Feed] poll complete",
		zap.Int("services", len(report.Services)),
		zap.Int("dispatched", report.Dispatched),
		zap.Int("source_errors", len(errs)))
	return report, errors.Join(errs...)
}

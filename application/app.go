// Package application wires the guard components into one process:
// construction through a samber/do container, ordered start and shutdown.
package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KOMKZ/go-yogan-guard/admin"
	"github.com/KOMKZ/go-yogan-guard/audit"
	"github.com/KOMKZ/go-yogan-guard/breaker"
	"github.com/KOMKZ/go-yogan-guard/database"
	"github.com/KOMKZ/go-yogan-guard/feed"
	"github.com/KOMKZ/go-yogan-guard/health"
	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/resilience"
	"github.com/KOMKZ/go-yogan-guard/retry"
	"github.com/KOMKZ/go-yogan-guard/scaling"
	"github.com/KOMKZ/go-yogan-guard/store"
	"github.com/KOMKZ/go-yogan-guard/telemetry"
)

// State lifecycle of an App
type State int

const (
	StateInit State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// App the guard process
type App struct {
	cfg      Config
	injector *do.RootScope
	log      *logger.CtxZapLogger
	clock    clockwork.Clock
	scaler   scaling.Scaler
	sources  []feed.Source
	producer sarama.SyncProducer
	db       *gorm.DB

	mu    sync.Mutex
	state State
	stops []stopFunc
}

type stopFunc struct {
	name string
	fn   func(ctx context.Context) error
}

type Option func(*App)

func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithScaler replaces the simulated capacity effect
func WithScaler(s scaling.Scaler) Option {
	return func(a *App) { a.scaler = s }
}

// WithSources adds metric sources to the feed, after the configured ones
func WithSources(s ...feed.Source) Option {
	return func(a *App) { a.sources = append(a.sources, s...) }
}

// WithKafkaProducer injects the producer used by the Kafka audit writer
func WithKafkaProducer(p sarama.SyncProducer) Option {
	return func(a *App) { a.producer = p }
}

// New validates cfg and registers every component provider.
// Nothing is built until Start.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{
		cfg:      cfg,
		injector: do.New(),
		log:      logger.GetLogger("app"),
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.register()
	return a, nil
}

func (a *App) register() {
	i := a.injector
	do.ProvideValue(i, a.cfg)
	do.Provide(i, a.provideRegistry)
	do.Provide(i, a.provideStore)
	do.Provide(i, a.provideDispatcher)
	do.Provide(i, a.provideBreaker)
	do.Provide(i, a.provideRetry)
	do.Provide(i, a.provideTelemetry)
	do.Provide(i, a.provideOrchestrator)
	do.Provide(i, a.provideEngine)
	do.Provide(i, a.providePoller)
	do.Provide(i, a.provideHealth)
	do.Provide(i, a.provideAdmin)
}

func (a *App) provideRegistry(do.Injector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, nil
}

func (a *App) provideStore(do.Injector) (store.Store, error) {
	s, err := store.New(a.cfg.Store)
	if err != nil {
		return nil, err
	}
	a.onStop("store", func(context.Context) error { return s.Close() })
	return s, nil
}

func (a *App) provideDispatcher(i do.Injector) (*audit.Dispatcher, error) {
	cfg := a.cfg.Audit
	var writers []audit.Writer

	if cfg.Store.Enabled {
		s, err := do.Invoke[store.Store](i)
		if err != nil {
			return nil, err
		}
		writers = append(writers, audit.NewStoreWriter(s))
	}
	if cfg.Kafka.Enabled {
		producer := a.producer
		if producer == nil {
			var err error
			if producer, err = audit.NewKafkaProducer(cfg.Kafka); err != nil {
				return nil, err
			}
		}
		writers = append(writers, audit.Only(audit.NewKafkaWriter(producer, cfg.Kafka.Topic), cfg.Kafka.Kinds...))
	}
	if cfg.SQL.Enabled {
		db, err := database.Open(a.cfg.Database, logger.GetLogger("sql"))
		if err != nil {
			return nil, err
		}
		a.db = db
		w, err := audit.NewSQLWriter(db)
		if err != nil {
			_ = database.Close(db)
			return nil, err
		}
		writers = append(writers, audit.Only(w, cfg.SQL.Kinds...))
		a.onStop("database", func(context.Context) error { return database.Close(db) })
	}

	d, err := audit.NewDispatcher(cfg,
		audit.WithWriters(writers...),
		audit.WithClock(a.clock),
		audit.WithLogger(logger.GetLogger("audit")))
	if err != nil {
		return nil, err
	}
	a.onStop("audit", d.Close)
	return d, nil
}

func (a *App) provideBreaker(i do.Injector) (*breaker.Manager, error) {
	d, err := do.Invoke[*audit.Dispatcher](i)
	if err != nil {
		return nil, err
	}
	m, err := breaker.NewManager(a.cfg.Breaker,
		breaker.WithClock(a.clock),
		breaker.WithSink(d),
		breaker.WithLogger(logger.GetLogger("breaker")),
		breaker.WithMeter(otelMeter("breaker")))
	if err != nil {
		return nil, err
	}
	a.onStop("breaker", func(context.Context) error { return m.Close() })
	return m, nil
}

func (a *App) provideRetry(i do.Injector) (*retry.Executor, error) {
	reg, err := do.Invoke[*prometheus.Registry](i)
	if err != nil {
		return nil, err
	}
	return retry.NewExecutor(a.cfg.Retry,
		retry.WithMetrics(retry.NewMetrics("guard", reg)),
		retry.WithLogger(logger.GetLogger("retry"))), nil
}

// provideTelemetry guards the span exporter with the shared breaker registry
func (a *App) provideTelemetry(i do.Injector) (*telemetry.Provider, error) {
	b, err := do.Invoke[*breaker.Manager](i)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg.Telemetry
	if cfg.ServiceName == "" {
		cfg.ServiceName = a.cfg.App.Name
	}
	p, err := telemetry.New(context.Background(), cfg,
		telemetry.WithBreaker(b),
		telemetry.WithLogger(logger.GetLogger("telemetry")))
	if err != nil {
		return nil, err
	}
	a.onStop("telemetry", p.Shutdown)
	return p, nil
}

func (a *App) provideOrchestrator(i do.Injector) (*resilience.Orchestrator, error) {
	b, err := do.Invoke[*breaker.Manager](i)
	if err != nil {
		return nil, err
	}
	r, err := do.Invoke[*retry.Executor](i)
	if err != nil {
		return nil, err
	}
	tp, err := do.Invoke[*telemetry.Provider](i)
	if err != nil {
		return nil, err
	}
	return resilience.New(b, r,
		resilience.WithTracer(tp.Tracer("guard/resilience")),
		resilience.WithLogger(logger.GetLogger("resilience"))), nil
}

func (a *App) provideEngine(i do.Injector) (*scaling.Engine, error) {
	d, err := do.Invoke[*audit.Dispatcher](i)
	if err != nil {
		return nil, err
	}
	reg, err := do.Invoke[*prometheus.Registry](i)
	if err != nil {
		return nil, err
	}
	opts := []scaling.Option{
		scaling.WithClock(a.clock),
		scaling.WithSink(d),
		scaling.WithLogger(logger.GetLogger("scaling")),
		scaling.WithCollectors(scaling.NewCollectors("guard", reg)),
	}
	if a.scaler != nil {
		opts = append(opts, scaling.WithScaler(a.scaler))
	}
	return scaling.NewEngine(a.cfg.Scaling, opts...)
}

func (a *App) providePoller(i do.Injector) (*feed.Poller, error) {
	engine, err := do.Invoke[*scaling.Engine](i)
	if err != nil {
		return nil, err
	}
	s, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}

	var sources []feed.Source
	if len(a.cfg.Feed.StaticServices) > 0 {
		sources = append(sources, feed.NewStaticSource("static", a.cfg.Feed.StaticServices))
	}
	sources = append(sources, feed.NewStoreSource(s, a.cfg.Feed.StorePrefix, a.cfg.Feed.Interval*3))
	sources = append(sources, a.sources...)

	p, err := feed.NewPoller(a.cfg.Feed, engine, sources,
		feed.WithClock(a.clock),
		feed.WithLogger(logger.GetLogger("feed")))
	if err != nil {
		return nil, err
	}
	a.onStop("feed", func(context.Context) error { return p.Stop() })
	return p, nil
}

func (a *App) provideHealth(i do.Injector) (*health.Aggregator, error) {
	b, err := do.Invoke[*breaker.Manager](i)
	if err != nil {
		return nil, err
	}
	d, err := do.Invoke[*audit.Dispatcher](i)
	if err != nil {
		return nil, err
	}
	s, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}

	agg := health.NewAggregator(a.cfg.Health.Timeout)
	agg.Register(
		health.BreakerChecker(b),
		health.AuditChecker(d),
		health.PingChecker("store", s),
	)
	if db := a.db; db != nil {
		agg.Register(health.CheckerFunc{ID: "database", Fn: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		}})
	}
	agg.SetMetadata("app", a.cfg.App.Name)
	agg.SetMetadata("env", a.cfg.App.Env)
	return agg, nil
}

func (a *App) provideAdmin(i do.Injector) (*admin.Server, error) {
	deps := admin.Deps{}
	var err error
	if deps.Breaker, err = do.Invoke[*breaker.Manager](i); err != nil {
		return nil, err
	}
	if deps.Scaling, err = do.Invoke[*scaling.Engine](i); err != nil {
		return nil, err
	}
	if deps.Dispatcher, err = do.Invoke[*audit.Dispatcher](i); err != nil {
		return nil, err
	}
	deps.Journal = deps.Dispatcher.Journal()
	if deps.Health, err = do.Invoke[*health.Aggregator](i); err != nil {
		return nil, err
	}
	reg, err := do.Invoke[*prometheus.Registry](i)
	if err != nil {
		return nil, err
	}
	tp, err := do.Invoke[*telemetry.Provider](i)
	if err != nil {
		return nil, err
	}

	opts := []admin.Option{admin.WithRegistry(reg), admin.WithLogger(logger.GetLogger("admin"))}
	if tp.Enabled() {
		opts = append(opts, admin.WithTracing(a.cfg.App.Name))
	}
	srv := admin.NewServer(a.cfg.Admin, deps, opts...)
	a.onStop("admin", srv.Shutdown)
	return srv, nil
}

// onStop queues fn; Shutdown runs the queue in reverse order of registration
func (a *App) onStop(name string, fn func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops = append(a.stops, stopFunc{name: name, fn: fn})
}

// Start builds the components, restores persisted circuits, then starts
// the feed and the admin server as configured.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateInit {
		a.mu.Unlock()
		return fmt.Errorf("app already %s", a.state)
	}
	a.mu.Unlock()

	a.log.InfoCtx(ctx, "starting", zap.Stringer("config", a.cfg))

	// telemetry first; the breaker it pulls in meters through the global delegating provider
	if _, err := do.Invoke[*telemetry.Provider](a.injector); err != nil {
		return a.abort(ctx, err)
	}
	b, err := do.Invoke[*breaker.Manager](a.injector)
	if err != nil {
		return a.abort(ctx, err)
	}
	s, err := do.Invoke[store.Store](a.injector)
	if err != nil {
		return a.abort(ctx, err)
	}
	if n, err := b.Restore(ctx, s); err != nil {
		a.log.WarnCtx(ctx, "circuit restore failed", zap.Error(err))
	} else if n > 0 {
		a.log.InfoCtx(ctx, "circuits restored", zap.Int("count", n))
	}

	if _, err := do.Invoke[*resilience.Orchestrator](a.injector); err != nil {
		return a.abort(ctx, err)
	}
	poller, err := do.Invoke[*feed.Poller](a.injector)
	if err != nil {
		return a.abort(ctx, err)
	}
	if a.cfg.Feed.Enabled {
		if err := poller.Start(); err != nil {
			return a.abort(ctx, err)
		}
	}
	if a.cfg.Admin.Enabled {
		srv, err := do.Invoke[*admin.Server](a.injector)
		if err != nil {
			return a.abort(ctx, err)
		}
		if err := srv.Start(); err != nil {
			return a.abort(ctx, err)
		}
	}

	a.mu.Lock()
	a.state = StateRunning
	a.mu.Unlock()
	a.log.InfoCtx(ctx, "started")
	return nil
}

func (a *App) abort(ctx context.Context, err error) error {
	a.log.ErrorCtx(ctx, "start failed", zap.Error(err))
	if serr := a.Shutdown(ctx); serr != nil {
		return errors.Join(err, serr)
	}
	return err
}

// Run starts the app and blocks until ctx ends or SIGINT/SIGTERM arrives
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	a.log.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Admin.ShutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops components in reverse build order: admin before feed,
// feed before the audit flush, telemetry last among the consumers.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateStopping || a.state == StateStopped {
		a.mu.Unlock()
		return nil
	}
	a.state = StateStopping
	stops := a.stops
	a.stops = nil
	a.mu.Unlock()

	var errs []error
	for idx := len(stops) - 1; idx >= 0; idx-- {
		s := stops[idx]
		if err := s.fn(ctx); err != nil {
			a.log.WarnCtx(ctx, "stop failed", zap.String("component", s.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	a.mu.Lock()
	a.state = StateStopped
	a.mu.Unlock()
	a.log.InfoCtx(ctx, "stopped")
	return errors.Join(errs...)
}

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) Config() Config { return a.cfg }

// Invoke resolves a component from the container, building it on first use
func Invoke[T any](a *App) (T, error) {
	return do.Invoke[T](a.injector)
}

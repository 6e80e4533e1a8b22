// Package admin HTTP surface over the breaker registry, the scaling engine
// and the audit journal.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/KOMKZ/go-yogan-guard/httpx"
	"github.com/KOMKZ/go-yogan-guard/logger"
	"github.com/KOMKZ/go-yogan-guard/middleware"
)

// Server gin engine plus its http.Server
type Server struct {
	cfg    Config
	engine *gin.Engine
	log    *logger.CtxZapLogger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

type options struct {
	tracing     string
	registry    *prometheus.Registry
	log         *logger.CtxZapLogger
	httpMetrics bool
}

type Option func(*options)

// WithTracing wraps every request in an otelgin span named after service
func WithTracing(service string) Option {
	return func(o *options) { o.tracing = service }
}

// WithRegistry serves reg on the metrics path and records request metrics into it
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
		o.httpMetrics = true
	}
}

func WithLogger(l *logger.CtxZapLogger) Option {
	return func(o *options) { o.log = l }
}

// NewServer builds the engine and registers every route backed by a non-nil dependency
func NewServer(cfg Config, deps Deps, opts ...Option) *Server {
	o := options{log: logger.GetLogger("admin")}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.NoRoute(httpx.NoRouteHandler())
	engine.NoMethod(httpx.NoMethodHandler())

	// order: spans first so the trace id and logs see them
	engine.Use(middleware.Recovery())
	if o.tracing != "" {
		engine.Use(otelgin.Middleware(o.tracing))
	}
	engine.Use(middleware.TraceID())
	engine.Use(middleware.RequestLog(cfg.MetricsPath, "/health"))
	if o.httpMetrics {
		engine.Use(middleware.NewHTTPMetrics("guard", o.registry).Handler())
	}
	engine.Use(httpx.ErrorLoggingMiddleware(cfg.ErrorLogging))

	limit := cfg.AuditLimit
	if limit <= 0 {
		limit = DefaultConfig().AuditLimit
	}
	h := &handlers{deps: deps, auditLimit: limit}
	h.register(engine)

	if o.registry != nil {
		engine.GET(cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})))
	}

	return &Server{cfg: cfg, engine: engine, log: o.log}
}

// Handler the gin engine, for tests and embedding
func (s *Server) Handler() http.Handler { return s.engine }

// Start binds the address and serves in the background.
// Bind errors are returned synchronously.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("admin listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server stopped", zap.Error(err))
		}
	}()
	s.log.Info("admin server started", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr bound address, empty before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin shutdown: %w", err)
	}
	s.log.Info("admin server stopped")
	return nil
}

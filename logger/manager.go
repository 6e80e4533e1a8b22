package logger

import (
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager owns one zap logger per module and the file writers behind them
type Manager struct {
	cfg     ManagerConfig
	loggers map[string]*CtxZapLogger
	writers []*lumberjack.Logger
	mu      sync.RWMutex
}

var (
	globalManager *Manager
	globalMu      sync.RWMutex
)

// NewManager creates an independent Manager, zero fields get defaults
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		cfg:     cfg,
		loggers: make(map[string]*CtxZapLogger),
	}
}

// InitManager replaces the global manager, the previous one is closed
func InitManager(cfg ManagerConfig) {
	m := NewManager(cfg)
	globalMu.Lock()
	prev := globalManager
	globalManager = m
	globalMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

// GetLogger returns the module logger from the global manager.
// Before InitManager is called a console-only default manager is used.
func GetLogger(module string) *CtxZapLogger {
	globalMu.RLock()
	m := globalManager
	globalMu.RUnlock()
	if m == nil {
		globalMu.Lock()
		if globalManager == nil {
			globalManager = NewManager(DefaultManagerConfig())
		}
		m = globalManager
		globalMu.Unlock()
	}
	return m.GetLogger(module)
}

// CloseManager flushes and closes the global manager
func CloseManager() error {
	globalMu.Lock()
	m := globalManager
	globalManager = nil
	globalMu.Unlock()
	if m == nil {
		return nil
	}
	return m.Close()
}

// GetLogger returns the logger bound to module, created on first use
func (m *Manager) GetLogger(module string) *CtxZapLogger {
	m.mu.RLock()
	if l, ok := m.loggers[module]; ok {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.loggers[module]; ok {
		return l
	}

	base := m.build(module).With(zap.String("module", module))
	l := &CtxZapLogger{
		base:   base.WithOptions(zap.AddCallerSkip(1)),
		module: module,
		config: &m.cfg,
	}
	m.loggers[module] = l
	return l
}

// build assembles console and rolling-file cores for one module
func (m *Manager) build(module string) *zap.Logger {
	encoder := newEncoder(m.cfg.Encoding)
	level := ParseLevel(m.cfg.Level)
	var cores []zapcore.Core

	if m.cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
	}

	if m.cfg.EnableFile {
		info := m.rolling(m.cfg.infoFilePath(module))
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(info),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= level && lvl < zapcore.ErrorLevel
			})))

		errW := m.rolling(m.cfg.errorFilePath(module))
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(errW),
			zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl >= zapcore.ErrorLevel && lvl >= level
			})))
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}

	var opts []zap.Option
	if m.cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(zapcore.NewTee(cores...), opts...)
}

func (m *Manager) rolling(path string) *lumberjack.Logger {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    m.cfg.MaxSize,
		MaxBackups: m.cfg.MaxBackups,
		MaxAge:     m.cfg.MaxAge,
		Compress:   m.cfg.Compress,
	}
	m.writers = append(m.writers, w)
	return w
}

// Close syncs every logger and closes the file writers
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, l := range m.loggers {
		// Sync on stdout returns EINVAL on some platforms, ignore it
		_ = l.base.Sync()
	}
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.loggers = make(map[string]*CtxZapLogger)
	m.writers = nil
	return errors.Join(errs...)
}

func newEncoder(encoding string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	if encoding == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vpntrail/vpntrail/internal/logging"
)

// Manager handles graceful shutdown of the daemon. Registered functions
// run sequentially in reverse registration order, so the scheduler stops
// and saves its state before the sink it writes to is closed.
type Manager struct {
	logger        *logging.Logger
	timeout       time.Duration
	shutdownFuncs []namedFunc
	mu            sync.Mutex
	shutdownCh    chan struct{}
	shutdownOnce  sync.Once
}

type namedFunc struct {
	name string
	fn   ShutdownFunc
}

// ShutdownFunc is a function that performs cleanup during shutdown
type ShutdownFunc func(context.Context) error

// Config holds shutdown manager configuration
type Config struct {
	Timeout time.Duration
	Logger  *logging.Logger
}

// New creates a new shutdown manager
func New(cfg Config) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Manager{
		logger:     cfg.Logger.WithComponent("shutdown"),
		timeout:    cfg.Timeout,
		shutdownCh: make(chan struct{}),
	}
}

// RegisterFunc registers a shutdown function to be called during shutdown
func (m *Manager) RegisterFunc(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Debug().Str("component", name).Msg("Registered shutdown function")
	m.shutdownFuncs = append(m.shutdownFuncs, namedFunc{name: name, fn: fn})
}

// WaitForSignal blocks until a shutdown signal is received
func (m *Manager) WaitForSignal(signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		m.logger.Info().
			Str("signal", sig.String()).
			Msg("Shutdown signal received")
		m.Shutdown()
	case <-m.shutdownCh:
	}
}

// Shutdown initiates graceful shutdown. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		close(m.shutdownCh)
		m.performShutdown()
	})
}

func (m *Manager) performShutdown() {
	m.mu.Lock()
	funcs := make([]namedFunc, len(m.shutdownFuncs))
	copy(funcs, m.shutdownFuncs)
	m.mu.Unlock()

	m.logger.Info().
		Dur("timeout", m.timeout).
		Int("functions", len(funcs)).
		Msg("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var errorCount int
	for i := len(funcs) - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			m.logger.Warn().
				Dur("timeout", m.timeout).
				Str("component", funcs[i].name).
				Msg("Shutdown timed out before this component")
			errorCount++
			continue
		}

		if err := funcs[i].fn(ctx); err != nil {
			m.logger.Error().
				Err(err).
				Str("component", funcs[i].name).
				Msg("Shutdown function failed")
			errorCount++
		} else {
			m.logger.Debug().
				Str("component", funcs[i].name).
				Msg("Shutdown function completed")
		}
	}

	if errorCount > 0 {
		m.logger.Warn().
			Int("errors", errorCount).
			Msg("Graceful shutdown completed with errors")
	} else {
		m.logger.Info().Msg("Graceful shutdown completed successfully")
	}
}

// Done returns a channel closed when shutdown has been initiated.
func (m *Manager) Done() <-chan struct{} {
	return m.shutdownCh
}

package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/StanleyZhang1992/stayd/pkg/logging"
)

// Manager coordinates graceful shutdown. Registered functions run in reverse
// order (LIFO) under a shared timeout.
type Manager struct {
	mu            sync.Mutex
	shutdownFuncs []func(context.Context) error
	timeout       time.Duration
	doneChan      chan struct{}
	once          sync.Once
	logger        *logging.Logger
}

// New creates a shutdown manager with the given drain timeout.
func New(timeout time.Duration, logger *logging.Logger) *Manager {
	return &Manager{
		shutdownFuncs: make([]func(context.Context) error, 0),
		timeout:       timeout,
		doneChan:      make(chan struct{}),
		logger:        logger,
	}
}

// Register adds a shutdown function. Functions run LIFO.
func (m *Manager) Register(fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFuncs = append(m.shutdownFuncs, fn)
}

// Done returns a channel closed when shutdown has been initiated.
func (m *Manager) Done() <-chan struct{} {
	return m.doneChan
}

// Trigger initiates shutdown without a signal (e.g. a worker exited).
func (m *Manager) Trigger() {
	m.once.Do(func() {
		close(m.doneChan)
	})
}

// Wait blocks until SIGTERM/SIGINT arrives or Trigger is called, then runs the
// registered shutdown functions. Returns the signal that caused shutdown, or
// nil when triggered internally.
func (m *Manager) Wait() os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	var sig os.Signal
	select {
	case sig = <-sigChan:
		m.logger.Info("received signal, initiating graceful shutdown",
			map[string]interface{}{"signal": sig.String()})
		m.Trigger()
	case <-m.doneChan:
		m.logger.Info("shutdown triggered")
	}

	m.Shutdown()
	return sig
}

// Shutdown executes all registered shutdown functions in LIFO order.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	for i := len(m.shutdownFuncs) - 1; i >= 0; i-- {
		if err := m.shutdownFuncs[i](ctx); err != nil {
			m.logger.Error("shutdown function failed",
				map[string]interface{}{"index": i, "error": err.Error()})
		}
	}

	m.logger.Info("graceful shutdown complete")
}

// StopHTTPServer wraps an http.Server-style Shutdown into a shutdown function.
func StopHTTPServer(server interface{ Shutdown(context.Context) error }, name string, logger *logging.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		logger.Info("stopping HTTP server", map[string]interface{}{"server": name})
		return server.Shutdown(ctx)
	}
}

// CloseResource wraps an io.Closer into a shutdown function.
func CloseResource(closer interface{ Close() error }, name string, logger *logging.Logger) func(context.Context) error {
	return func(ctx context.Context) error {
		logger.Info("closing resource", map[string]interface{}{"resource": name})
		return closer.Close()
	}
}

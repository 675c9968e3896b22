package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownHook releases one resource during shutdown.
type ShutdownHook func(context.Context) error

type namedHook struct {
	name string
	fn   ShutdownHook
}

// ShutdownManager drains the HTTP server and then runs registered hooks in
// reverse registration order, so dependents stop before their dependencies.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	hooks []namedHook
}

// NewShutdownManager creates a shutdown manager with the given overall
// timeout. A zero timeout defaults to 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// OnShutdown registers a named hook. Hooks run LIFO.
func (sm *ShutdownManager) OnShutdown(name string, fn ShutdownHook) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, namedHook{name: name, fn: fn})
}

// WaitForSignal blocks until SIGINT or SIGTERM, then shuts down.
func (sm *ShutdownManager) WaitForSignal() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	return sm.Shutdown(ctx)
}

// Shutdown drains the server and runs all hooks. It keeps going past hook
// failures and reports how many failed.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.logger.Info("HTTP server shutdown complete")
	}

	sm.mu.Lock()
	hooks := make([]namedHook, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.mu.Unlock()

	var failed int
	for i := len(hooks) - 1; i >= 0; i-- {
		hook := hooks[i]
		if err := ctx.Err(); err != nil {
			sm.logger.Warnf("Shutdown timeout reached, skipping %q", hook.name)
			return fmt.Errorf("shutdown timed out with %d hooks remaining: %w", i+1, err)
		}
		if err := hook.fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown hook %q failed", hook.name)
			failed++
			continue
		}
		sm.logger.Infof("Shutdown hook %q complete", hook.name)
	}

	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d failed hooks", failed)
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}

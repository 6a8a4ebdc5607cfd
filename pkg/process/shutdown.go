package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/billm/baaaht/mpchan/internal/logger"
	"github.com/billm/baaaht/mpchan/pkg/types"
)

// DefaultShutdownTimeout bounds the whole shutdown sequence
const DefaultShutdownTimeout = 10 * time.Second

// ShutdownHook releases one resource during shutdown
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// ShutdownManager runs registered hooks once, in reverse registration order,
// when the process is asked to stop
type ShutdownManager struct {
	mu      sync.Mutex
	hooks   []namedHook
	timeout time.Duration
	logger  *logger.Logger
	once    sync.Once
	done    chan struct{}
	reason  string
	err     error
}

// NewShutdownManager creates a shutdown manager
func NewShutdownManager(timeout time.Duration, log *logger.Logger) *ShutdownManager {
	if log == nil {
		log = logger.Global()
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &ShutdownManager{
		timeout: timeout,
		logger:  log.With("component", "shutdown_manager"),
		done:    make(chan struct{}),
	}
}

// AddHook registers a hook. Hooks added later run first, so resources are
// released in the opposite order they were acquired.
func (sm *ShutdownManager) AddHook(name string, hook ShutdownHook) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, namedHook{name: name, hook: hook})
}

// Shutdown runs every hook. Only the first call does any work; later calls
// wait for it and return its result.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	sm.once.Do(func() {
		start := time.Now()
		sm.logger.Info("Shutdown initiated", "reason", reason)

		ctx, cancel := context.WithTimeout(ctx, sm.timeout)
		defer cancel()

		sm.mu.Lock()
		hooks := make([]namedHook, len(sm.hooks))
		copy(hooks, sm.hooks)
		sm.mu.Unlock()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.hook(ctx); err != nil {
				sm.logger.Error("Shutdown hook failed", "hook", h.name, "error", err)
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			}
		}

		sm.mu.Lock()
		sm.reason = reason
		if len(errs) > 0 {
			sm.err = types.WrapError(types.ErrCodeInternal, "shutdown incomplete", errors.Join(errs...))
		}
		sm.mu.Unlock()
		close(sm.done)

		sm.logger.Info("Shutdown complete", "reason", reason, "duration", time.Since(start).String())
	})

	<-sm.done
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.err
}

// WaitForSignal blocks until SIGINT, SIGTERM or the end of ctx, then shuts down
func (sm *ShutdownManager) WaitForSignal(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
	case <-sm.done:
		return sm.Shutdown(context.Background(), "")
	}

	reason := "signal received"
	if ctx.Err() != nil {
		reason = ctx.Err().Error()
	}
	return sm.Shutdown(context.Background(), reason)
}

// Done is closed once shutdown completes
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// Reason returns why shutdown happened, empty while running
func (sm *ShutdownManager) Reason() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.reason
}

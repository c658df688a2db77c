// Package shutdown provides scoped teardown of external collaborators.
package shutdown

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler manages ordered release of acquired resources. Cleanup functions
// run in LIFO order so collaborators are released in reverse acquisition
// order on every exit path, including error paths.
type Handler struct {
	logger   *slog.Logger
	timeout  time.Duration
	cleanups []namedCleanup
	mu       sync.Mutex
	done     bool
}

// CleanupFunc is a function called during teardown.
type CleanupFunc func(ctx context.Context) error

type namedCleanup struct {
	name string
	fn   CleanupFunc
}

// New creates a new shutdown handler.
func New(logger *slog.Logger, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:  logger,
		timeout: timeout,
	}
}

// Register adds a named cleanup function. Cleanups run in LIFO order.
func (h *Handler) Register(name string, fn CleanupFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, namedCleanup{name: name, fn: fn})
}

// Shutdown runs all registered cleanups. It is safe to call more than once;
// later calls are no-ops.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.done = true
	cleanups := make([]namedCleanup, len(h.cleanups))
	copy(cleanups, h.cleanups)
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	for i := len(cleanups) - 1; i >= 0; i-- {
		c := cleanups[i]
		if err := c.fn(ctx); err != nil {
			h.logger.Error("cleanup failed", "component", c.name, "error", err)
			continue
		}
		h.logger.Debug("component released", "component", c.name)
	}
}

package task

import (
	"context"
	"sync"
	"time"
)

type state int

const (
	stateRunning state = iota
	stateCompleted
	stateFailed
	stateCancelled
)

// Handle is the caller's proxy to a running or finished task.
//
// The scheduler's controller goroutine is the single writer of the terminal
// state; the handle only observes and, on Join, drains it.
type Handle struct {
	id      uint64
	name    string
	started time.Time
	bodyCtx context.Context
	cancel  context.CancelCauseFunc

	done chan struct{}

	mu      sync.Mutex
	st      state
	value   any
	err     error
	elapsed time.Duration // frozen at the terminal transition
	joined  bool
	grouped bool
}

// ID returns the task's process-unique identifier. It is valid immediately
// after spawn and never changes.
func (h *Handle) ID() uint64 { return h.id }

// Name returns the configured name (empty when unnamed).
func (h *Handle) Name() string { return h.name }

// Elapsed returns time since the task started. While the task is running
// this is live wall-clock time; once the task is terminal it returns the
// duration frozen at that transition, forever after.
func (h *Handle) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.st == stateRunning {
		return time.Since(h.started)
	}
	return h.elapsed
}

// IsFinished reports whether the task reached a terminal state.
func (h *Handle) IsFinished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Abort requests cooperative cancellation and returns immediately.
// It is idempotent and has no effect on a terminal task. The task stops at
// its next suspension point, not instantaneously.
func (h *Handle) Abort() {
	h.cancel(errAbortRequested)
}

// Join blocks until the task is terminal, then drains and returns its
// outcome: (value, nil) on success, (nil, err) on failure, abort, or
// timeout. The result can be drained once; a second Join fails with
// ErrAlreadyJoined without blocking. If ctx ends first, Join returns ctx's
// error and the result stays drainable.
func (h *Handle) Join(ctx context.Context) (any, error) {
	if h.grouped {
		return nil, ErrGroupedTask
	}
	h.mu.Lock()
	joined := h.joined
	h.mu.Unlock()
	if joined {
		return nil, ErrAlreadyJoined
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
	}
	return h.drain()
}

// drain consumes the result slot. Callers must know the task is terminal.
func (h *Handle) drain() (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.joined {
		return nil, ErrAlreadyJoined
	}
	h.joined = true
	v, err := h.value, h.err
	h.value = nil
	return v, err
}

// resolve freezes the terminal state. Only the controller goroutine calls
// it, and only once; late calls (e.g. a body result arriving after a
// timeout already resolved the task) are dropped.
func (h *Handle) resolve(st state, value any, err error) bool {
	h.mu.Lock()
	if h.st != stateRunning {
		h.mu.Unlock()
		return false
	}
	h.st = st
	h.value = value
	h.err = err
	h.elapsed = time.Since(h.started)
	h.mu.Unlock()
	close(h.done)
	return true
}

func (h *Handle) terminalState() state {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.st
}

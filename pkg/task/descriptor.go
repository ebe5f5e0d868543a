package task

import (
	"context"
	"time"
)

// Func is the body of a task. Arguments are captured by closure; the context
// is the task's cancellation scope and must be threaded through blocking
// calls for Abort and timeouts to take effect.
type Func func(ctx context.Context) (any, error)

// Options configures a Descriptor. Both fields are independently optional.
type Options struct {
	// Name is an optional label; empty means unnamed.
	Name string
	// Timeout bounds one execution of the body (one tick, for recurring
	// tasks). Zero disables the timeout.
	Timeout time.Duration
}

// Descriptor is an immutable record of a unit of work: body, optional name,
// optional timeout. Building a descriptor does not start execution.
type Descriptor struct {
	fn      Func
	name    string
	timeout time.Duration
}

// Create builds a descriptor without starting execution.
func Create(fn Func, opts Options) *Descriptor {
	return &Descriptor{fn: fn, name: opts.Name, timeout: opts.Timeout}
}

// Name returns the configured name (empty when unnamed).
func (d *Descriptor) Name() string { return d.name }

// Timeout returns the configured per-execution timeout (zero when unset).
func (d *Descriptor) Timeout() time.Duration { return d.timeout }

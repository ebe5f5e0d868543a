package task

import (
	"context"
	"runtime"
	"time"

	"taskd/pkg/duration"
)

// Sleep suspends the caller for d, or less if ctx ends first (in which case
// it returns ctx's error). Inside a task body it is a cancellation-check
// point: an aborted or timed-out task wakes immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return Yield(ctx)
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}

// SleepFor is Sleep with a duration string ("10ms", "5s"). A malformed
// string fails synchronously with an invalid-duration error before any
// suspension happens.
func SleepFor(ctx context.Context, s string) error {
	d, err := duration.Parse(s)
	if err != nil {
		return err
	}
	return Sleep(ctx, d)
}

// Yield is a single suspension point with no minimum delay. It reports the
// ctx error when cancellation already took effect.
func Yield(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		runtime.Gosched()
		return nil
	}
}

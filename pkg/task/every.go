package task

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"taskd/pkg/duration"
)

// SpawnEvery re-invokes the descriptor's body every period until aborted,
// behind a single handle whose lifecycle spans all ticks. The first tick
// happens one full period after spawn.
//
// A per-tick timeout (Descriptor.Timeout) is fatal: a tick that exceeds it
// cancels the whole recurring task, and Join reports the timeout. A tick
// that returns an error likewise ends the recurring task as failed.
func (s *Scheduler) SpawnEvery(period time.Duration, d *Descriptor) (*Handle, error) {
	if period <= 0 {
		return nil, fmt.Errorf("task: period must be > 0, got %v", period)
	}
	return s.spawnRecurring(d, func() time.Duration { return period }), nil
}

// SpawnEveryFor is SpawnEvery with a duration string for the period.
func (s *Scheduler) SpawnEveryFor(period string, d *Descriptor) (*Handle, error) {
	p, err := duration.Parse(period)
	if err != nil {
		return nil, err
	}
	return s.SpawnEvery(p, d)
}

// SpawnCron re-invokes the descriptor's body on a standard 5-field cron
// schedule (descriptors like "@hourly" and "@every 5m" are accepted too).
// The handle contract is the same as SpawnEvery's. An invalid spec fails
// synchronously.
func (s *Scheduler) SpawnCron(spec string, d *Descriptor) (*Handle, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("task: invalid cron spec %q: %w", spec, err)
	}
	return s.spawnRecurring(d, func() time.Duration {
		return time.Until(sched.Next(time.Now()))
	}), nil
}

func (s *Scheduler) spawnRecurring(d *Descriptor, nextDelay func() time.Duration) *Handle {
	h := s.newHandle(d.name)
	if h.terminalState() != stateRunning {
		return h
	}
	s.sup.Go(goroutineName(d.name), func(context.Context) error {
		s.runRecurring(h, d, nextDelay)
		return nil
	})
	return h
}

// runRecurring drives one recurring task: wait for the next tick, run one
// instance of the body, repeat until a tick (or an abort) ends it.
func (s *Scheduler) runRecurring(h *Handle, d *Descriptor, nextDelay func() time.Duration) {
	s.active.Add(1)
	defer s.active.Add(-1)
	defer h.cancel(nil)

	s.publishStarted(h)

	for {
		tm := time.NewTimer(nextDelay())
		select {
		case <-h.bodyCtx.Done():
			tm.Stop()
			s.finishCancelled(h)
			return
		case <-tm.C:
		}
		if done := s.runTick(h, d); done {
			return
		}
	}
}

// runTick executes one instance of the body and reports whether the
// recurring task reached a terminal state.
func (s *Scheduler) runTick(h *Handle, d *Descriptor) bool {
	resCh := s.runBody(h, d, h.bodyCtx)

	var timerC <-chan time.Time
	if d.timeout > 0 {
		tm := time.NewTimer(d.timeout)
		defer tm.Stop()
		timerC = tm.C
	}

	select {
	case out := <-resCh:
		return s.finishTick(h, out, false)
	case <-timerC:
		// Per-tick timeout is fatal to the whole recurring task.
		h.cancel(ErrTimeout)
		s.finishTimeout(h)
		return true
	case <-h.bodyCtx.Done():
		select {
		case out := <-resCh:
			return s.finishTick(h, out, true)
		case <-timerC:
			s.finishTimeout(h)
			return true
		}
	}
}

// finishTick resolves a tick outcome: success keeps the recurring task
// alive; an error or a cooperative stop ends it.
func (s *Scheduler) finishTick(h *Handle, out outcome, abortRequested bool) bool {
	if abortRequested {
		// Abort landed: even a tick that completed cleanly does not
		// outlive it, since no further ticks may run.
		if out.err == nil || stoppedOnCancel(out.err) {
			s.finishCancelled(h)
			return true
		}
		s.finishFailed(h, out.err)
		return true
	}
	if out.err != nil {
		s.finishFailed(h, out.err)
		return true
	}
	return false
}

package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"taskd/internal/eventbus"
	"taskd/internal/supervisor"
	"taskd/pkg/logx"
)

// errAbortRequested is the cancel cause recorded by Handle.Abort.
var errAbortRequested = errors.New("abort requested")

// Event is the payload published on the event bus for task lifecycle events
// ("task.started", "task.completed", "task.failed", "task.cancelled").
type Event struct {
	ID       uint64        `json:"id"`
	Name     string        `json:"name,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcome  string        `json:"outcome,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Snapshot is a lightweight diagnostics view of a Scheduler.
type Snapshot struct {
	Spawned   uint64
	Active    int64
	Completed uint64
	Failed    uint64
	Cancelled uint64
	TimedOut  uint64
}

// Scheduler owns the concurrent execution substrate: it runs task bodies,
// races them against timeout timers, and delivers outcomes to their handles.
//
// The id counter is owned by the Scheduler instance and incremented
// atomically, so ids stay unique under concurrent spawns.
type Scheduler struct {
	log logx.Logger
	bus *eventbus.Bus

	sup   *supervisor.Supervisor
	idSeq atomic.Uint64

	closed atomic.Bool

	spawned   atomic.Uint64
	active    atomic.Int64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	timedOut  atomic.Uint64
}

type SchedulerOption func(*Scheduler)

func WithLogger(log logx.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// WithBus makes the scheduler publish task lifecycle events.
func WithBus(bus *eventbus.Bus) SchedulerOption {
	return func(s *Scheduler) { s.bus = bus }
}

func New(opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{log: logx.Nop()}
	for _, o := range opts {
		o(s)
	}
	s.sup = supervisor.New(context.Background(),
		supervisor.WithLogger(s.log),
		// A failing task must never take down its siblings.
		supervisor.WithCancelOnError(false),
	)
	return s
}

// Spawn starts fn with a default (unnamed, no timeout) descriptor and
// returns its handle immediately.
func (s *Scheduler) Spawn(fn Func) *Handle {
	return s.SpawnTask(Create(fn, Options{}))
}

// SpawnTask starts one execution of the descriptor and returns its handle
// immediately.
func (s *Scheduler) SpawnTask(d *Descriptor) *Handle {
	return s.spawnTask(d, false)
}

func (s *Scheduler) spawnTask(d *Descriptor, grouped bool) *Handle {
	h := s.newHandle(d.name)
	h.grouped = grouped
	if h.terminalState() != stateRunning {
		return h
	}
	// Stats aggregate by name, so the per-goroutine bookkeeping stays
	// bounded by the set of task names, not the spawn count.
	s.sup.Go(goroutineName(d.name), func(context.Context) error {
		s.runOne(h, d)
		return nil
	})
	return h
}

// newHandle allocates an id and a running handle. Tasks spawned after Close
// come back already failed with ErrClosed.
func (s *Scheduler) newHandle(name string) *Handle {
	id := s.idSeq.Add(1)
	bodyCtx, cancel := context.WithCancelCause(s.sup.Context())
	h := &Handle{
		id:      id,
		name:    name,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	h.bodyCtx = bodyCtx
	s.spawned.Add(1)
	if s.closed.Load() {
		h.resolve(stateFailed, nil, ErrClosed)
		// No controller will run for this handle; release its context.
		cancel(nil)
	}
	return h
}

func goroutineName(taskName string) string {
	if taskName == "" {
		return "task"
	}
	return "task:" + taskName
}

type outcome struct {
	value any
	err   error
}

// runBody executes the descriptor body on its own goroutine with panic
// capture and delivers the outcome on the returned channel. The channel is
// buffered so an abandoned body (timeout) can still unwind.
func (s *Scheduler) runBody(h *Handle, d *Descriptor, ctx context.Context) <-chan outcome {
	resCh := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("task.panic", logx.Uint64("id", h.id), logx.String("name", h.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				resCh <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		v, err := d.fn(ctx)
		resCh <- outcome{value: v, err: err}
	}()
	return resCh
}

// runOne drives a one-shot task: the body races against abort and, when
// configured, a timeout timer. First of the three wins.
func (s *Scheduler) runOne(h *Handle, d *Descriptor) {
	s.active.Add(1)
	defer s.active.Add(-1)
	// Release the context even when the body completed on its own.
	defer h.cancel(nil)

	s.publishStarted(h)

	resCh := s.runBody(h, d, h.bodyCtx)

	var timerC <-chan time.Time
	if d.timeout > 0 {
		tm := time.NewTimer(d.timeout)
		defer tm.Stop()
		timerC = tm.C
	}

	select {
	case out := <-resCh:
		s.finishOne(h, out, false)
	case <-timerC:
		// Timer won: resolve now so elapsed freezes near the timeout;
		// the body unwinds in the background.
		h.cancel(ErrTimeout)
		s.finishTimeout(h)
	case <-h.bodyCtx.Done():
		// Abort (or scheduler shutdown) requested: cancellation is
		// cooperative, so wait for the body to reach a check point.
		// A configured timeout still wins if it fires first.
		select {
		case out := <-resCh:
			s.finishOne(h, out, true)
		case <-timerC:
			s.finishTimeout(h)
		}
	}
}

// finishOne resolves a naturally-returned body outcome. When an abort was
// requested and the body stopped on its context, the task is cancelled; a
// body that completed on its own terms (including one that never reached
// another check point) keeps its natural outcome.
func (s *Scheduler) finishOne(h *Handle, out outcome, abortRequested bool) {
	if abortRequested && stoppedOnCancel(out.err) {
		s.finishCancelled(h)
		return
	}
	if out.err != nil {
		s.finishFailed(h, out.err)
		return
	}
	// Counters bump before resolve so a Join that returns immediately
	// observes a consistent snapshot.
	s.completed.Add(1)
	h.resolve(stateCompleted, out.value, nil)
	s.publish("task.completed", h, "completed", nil)
	s.log.Debug("task.completed", logx.Uint64("id", h.id), logx.String("name", h.name), logx.Duration("dur", h.Elapsed()))
}

func (s *Scheduler) finishFailed(h *Handle, err error) {
	s.failed.Add(1)
	h.resolve(stateFailed, nil, err)
	s.publish("task.failed", h, "failed", err)
	s.log.Warn("task.failed", logx.Uint64("id", h.id), logx.String("name", h.name), logx.Duration("dur", h.Elapsed()), logx.Err(err))
}

func (s *Scheduler) publishStarted(h *Handle) {
	s.publish("task.started", h, "", nil)
	s.log.Debug("task.started", logx.Uint64("id", h.id), logx.String("name", h.name))
}

func (s *Scheduler) finishCancelled(h *Handle) {
	s.cancelled.Add(1)
	h.resolve(stateCancelled, nil, &CancelledError{ID: h.id})
	s.publish("task.cancelled", h, "cancelled", nil)
	s.log.Debug("task.cancelled", logx.Uint64("id", h.id), logx.String("name", h.name), logx.Duration("dur", h.Elapsed()))
}

func (s *Scheduler) finishTimeout(h *Handle) {
	s.timedOut.Add(1)
	h.resolve(stateCancelled, nil, &TimeoutError{ID: h.id})
	s.publish("task.cancelled", h, "timeout", nil)
	s.log.Warn("task.timeout", logx.Uint64("id", h.id), logx.String("name", h.name), logx.Duration("dur", h.Elapsed()))
}

// stoppedOnCancel reports whether the body returned because its context was
// cancelled (the cooperative stop path) rather than completing or failing
// on its own.
func stoppedOnCancel(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, errAbortRequested)
}

func (s *Scheduler) publish(typ string, h *Handle, outcome string, err error) {
	if s.bus == nil {
		return
	}
	e := Event{ID: h.id, Name: h.name, Started: h.started, Duration: h.Elapsed(), Outcome: outcome}
	if err != nil {
		e.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: e})
}

// SnapshotNow returns point-in-time scheduler counters.
func (s *Scheduler) SnapshotNow() Snapshot {
	return Snapshot{
		Spawned:   s.spawned.Load(),
		Active:    s.active.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Cancelled: s.cancelled.Load(),
		TimedOut:  s.timedOut.Load(),
	}
}

// Close aborts every running task and waits (bounded by ctx) for their
// controllers to finish. Tasks spawned afterwards fail with ErrClosed.
func (s *Scheduler) Close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.closed.Store(true)
	s.sup.Cancel()
	return s.sup.Wait(ctx)
}

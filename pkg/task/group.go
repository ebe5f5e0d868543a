package task

import (
	"context"
	"sync"
)

// Result is one collected task outcome: exactly one of Value and Err is
// populated.
type Result struct {
	Value any
	Err   error
}

// Group is an ordered, growable collection of task handles. Order is spawn
// order; JoinAll returns outcomes in that order and drains the group empty.
//
// Handles spawned through a group are owned by it: their individual Join
// fails with ErrGroupedTask (the group's JoinAll owns the result), while
// id, name, elapsed, is-finished, and abort all behave normally.
type Group struct {
	s *Scheduler

	mu      sync.Mutex
	handles []*Handle
}

// Group returns a new, empty task group bound to this scheduler.
func (s *Scheduler) Group() *Group {
	return &Group{s: s}
}

// Spawn starts fn with a default descriptor and appends its handle to the
// group.
func (g *Group) Spawn(fn Func) *Handle {
	return g.SpawnTask(Create(fn, Options{}))
}

// SpawnTask starts one execution of the descriptor and appends its handle
// to the group.
func (g *Group) SpawnTask(d *Descriptor) *Handle {
	h := g.s.spawnTask(d, true)
	g.mu.Lock()
	g.handles = append(g.handles, h)
	g.mu.Unlock()
	return h
}

// Len reports the number of handles currently held (spawned and not yet
// drained by JoinAll).
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}

// AbortAll requests cooperative cancellation of every held task. The
// handles stay in the group; a later JoinAll collects the cancellations.
func (g *Group) AbortAll() {
	g.mu.Lock()
	hs := append([]*Handle(nil), g.handles...)
	g.mu.Unlock()
	for _, h := range hs {
		h.Abort()
	}
}

// JoinNext waits for whichever held task finishes first, removes it from
// the group, and returns its drained outcome with ok=true. On an empty
// group it returns (nil, false, nil) without blocking. Completion order,
// not spawn order, decides which member comes back.
//
// Like JoinAll, JoinNext assumes a single consumer; interleave the two
// freely, but not from concurrent goroutines.
//
// If ctx ends first, JoinNext returns ctx's error and the group keeps all
// its handles.
func (g *Group) JoinNext(ctx context.Context) (*Result, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	g.mu.Lock()
	hs := append([]*Handle(nil), g.handles...)
	g.mu.Unlock()
	if len(hs) == 0 {
		return nil, false, nil
	}

	// Fast path: a member may already be terminal.
	for _, h := range hs {
		if h.IsFinished() {
			return g.takeResult(h)
		}
	}

	winner := make(chan *Handle, len(hs))
	stop := make(chan struct{})
	defer close(stop)
	for _, h := range hs {
		go func(h *Handle) {
			select {
			case <-h.done:
				winner <- h
			case <-stop:
			}
		}(h)
	}

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case h := <-winner:
		return g.takeResult(h)
	}
}

// takeResult removes h from the group and drains it.
func (g *Group) takeResult(h *Handle) (*Result, bool, error) {
	g.mu.Lock()
	for i, x := range g.handles {
		if x == h {
			g.handles = append(g.handles[:i], g.handles[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	v, err := h.drain()
	return &Result{Value: v, Err: err}, true, nil
}

// DetachAll empties the group without waiting: the tasks keep running to
// their natural end, but their results are never collected.
func (g *Group) DetachAll() {
	g.mu.Lock()
	g.handles = nil
	g.mu.Unlock()
}

// JoinAll waits for every held task to reach a terminal state (members run
// concurrently; no completion order is imposed), then returns their
// outcomes in spawn order and empties the group.
//
// If ctx ends first, JoinAll returns ctx's error and the group keeps all
// its handles; nothing is drained.
func (g *Group) JoinAll(ctx context.Context) ([]Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	g.mu.Lock()
	hs := g.handles
	g.handles = nil
	g.mu.Unlock()

	// Wait first, drain after: a ctx failure mid-wait must not leave the
	// group half-consumed.
	for _, h := range hs {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			g.handles = append(hs, g.handles...)
			g.mu.Unlock()
			return nil, ctx.Err()
		case <-h.done:
		}
	}

	results := make([]Result, len(hs))
	for i, h := range hs {
		v, err := h.drain()
		results[i] = Result{Value: v, Err: err}
	}
	return results, nil
}

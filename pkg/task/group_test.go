package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJoinAllReturnsSpawnOrder(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	// A finishes last on purpose: collection order must stay spawn order.
	g.Spawn(func(ctx context.Context) (any, error) {
		return "a", Sleep(ctx, 60*time.Millisecond)
	})
	g.Spawn(func(ctx context.Context) (any, error) {
		return "b", Sleep(ctx, 10*time.Millisecond)
	})
	g.Spawn(func(ctx context.Context) (any, error) {
		return nil, errors.New("c failed")
	})

	if got := g.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3", got)
	}

	results, err := g.JoinAll(context.Background())
	if err != nil {
		t.Fatalf("JoinAll error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Value != "a" || results[0].Err != nil {
		t.Fatalf("results[0] = %+v, want a", results[0])
	}
	if results[1].Value != "b" || results[1].Err != nil {
		t.Fatalf("results[1] = %+v, want b", results[1])
	}
	if results[2].Err == nil || results[2].Err.Error() != "c failed" {
		t.Fatalf("results[2] = %+v, want failure", results[2])
	}

	if got := g.Len(); got != 0 {
		t.Fatalf("Len = %d after JoinAll, want 0", got)
	}
}

func TestGroupedHandleRefusesJoin(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	h := g.Spawn(func(ctx context.Context) (any, error) { return nil, nil })

	if _, err := h.Join(context.Background()); !errors.Is(err, ErrGroupedTask) {
		t.Fatalf("err = %v, want ErrGroupedTask", err)
	}

	// The group can still collect it.
	results, err := g.JoinAll(context.Background())
	if err != nil || len(results) != 1 {
		t.Fatalf("JoinAll = (%v, %v)", results, err)
	}
}

func TestAbortAll(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	for i := 0; i < 3; i++ {
		g.Spawn(func(ctx context.Context) (any, error) {
			return nil, Sleep(ctx, 10*time.Second)
		})
	}

	g.AbortAll()
	if got := g.Len(); got != 3 {
		t.Fatalf("Len = %d after AbortAll, want 3 (handles stay until drained)", got)
	}

	results, err := g.JoinAll(context.Background())
	if err != nil {
		t.Fatalf("JoinAll error: %v", err)
	}
	for i, r := range results {
		if !IsCancelled(r.Err) {
			t.Fatalf("results[%d].Err = %v, want cancelled", i, r.Err)
		}
	}
}

func TestJoinAllCallerContextKeepsGroupIntact(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	g.Spawn(func(ctx context.Context) (any, error) {
		return "slow", Sleep(ctx, 10*time.Second)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.JoinAll(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if got := g.Len(); got != 1 {
		t.Fatalf("Len = %d after failed JoinAll, want 1", got)
	}

	g.AbortAll()
	results, err := g.JoinAll(context.Background())
	if err != nil || len(results) != 1 {
		t.Fatalf("JoinAll = (%v, %v)", results, err)
	}
	if !IsCancelled(results[0].Err) {
		t.Fatalf("results[0].Err = %v, want cancelled", results[0].Err)
	}
}

func TestJoinNextReturnsFirstFinished(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	// Spawn the slow member first: JoinNext must follow completion order,
	// not spawn order.
	g.Spawn(func(ctx context.Context) (any, error) {
		return "slow", Sleep(ctx, 80*time.Millisecond)
	})
	g.Spawn(func(ctx context.Context) (any, error) {
		return "fast", Sleep(ctx, 10*time.Millisecond)
	})

	r, ok, err := g.JoinNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("JoinNext = (%v, %v, %v)", r, ok, err)
	}
	if r.Value != "fast" || r.Err != nil {
		t.Fatalf("first result = %+v, want fast", r)
	}
	if got := g.Len(); got != 1 {
		t.Fatalf("Len = %d after first JoinNext, want 1", got)
	}

	r, ok, err = g.JoinNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("JoinNext = (%v, %v, %v)", r, ok, err)
	}
	if r.Value != "slow" || r.Err != nil {
		t.Fatalf("second result = %+v, want slow", r)
	}

	// Drained empty: no more members, no blocking.
	r, ok, err = g.JoinNext(context.Background())
	if r != nil || ok || err != nil {
		t.Fatalf("JoinNext on empty = (%v, %v, %v), want (nil, false, nil)", r, ok, err)
	}
}

func TestJoinNextCallerContextKeepsGroupIntact(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	g.Spawn(func(ctx context.Context) (any, error) {
		return nil, Sleep(ctx, 10*time.Second)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok, err := g.JoinNext(ctx); ok || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("JoinNext = (ok=%v, %v), want deadline exceeded", ok, err)
	}
	if got := g.Len(); got != 1 {
		t.Fatalf("Len = %d after failed JoinNext, want 1", got)
	}

	g.AbortAll()
	r, ok, err := g.JoinNext(context.Background())
	if err != nil || !ok {
		t.Fatalf("JoinNext = (%v, %v, %v)", r, ok, err)
	}
	if !IsCancelled(r.Err) {
		t.Fatalf("r.Err = %v, want cancelled", r.Err)
	}
}

func TestDetachAll(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	for i := 0; i < 2; i++ {
		g.Spawn(func(ctx context.Context) (any, error) {
			return nil, Sleep(ctx, 10*time.Millisecond)
		})
	}

	g.DetachAll()
	if got := g.Len(); got != 0 {
		t.Fatalf("Len = %d after DetachAll, want 0", got)
	}
	if r, ok, err := g.JoinNext(context.Background()); r != nil || ok || err != nil {
		t.Fatalf("JoinNext after DetachAll = (%v, %v, %v), want empty", r, ok, err)
	}

	// Detached tasks still run to completion on the scheduler.
	deadline := time.Now().Add(5 * time.Second)
	for s.SnapshotNow().Completed < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("detached tasks never completed: %+v", s.SnapshotNow())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEmptyGroupJoinAll(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	results, err := g.JoinAll(context.Background())
	if err != nil {
		t.Fatalf("JoinAll error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %v, want empty", results)
	}
}

func TestGroupWithDescriptors(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	g := s.Group()
	h := g.SpawnTask(Create(func(ctx context.Context) (any, error) {
		return nil, Sleep(ctx, 10*time.Second)
	}, Options{Name: "bounded", Timeout: 30 * time.Millisecond}))
	if h.Name() != "bounded" {
		t.Fatalf("Name = %q, want bounded", h.Name())
	}

	results, err := g.JoinAll(context.Background())
	if err != nil {
		t.Fatalf("JoinAll error: %v", err)
	}
	if !IsTimeout(results[0].Err) {
		t.Fatalf("results[0].Err = %v, want timeout", results[0].Err)
	}
}

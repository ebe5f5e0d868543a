package task

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// waitFinished polls IsFinished with a deadline so timing-sensitive tests
// don't flake on slow machines.
func waitFinished(t *testing.T, h *Handle, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if h.IsFinished() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %d not finished within %v", h.ID(), within)
}

func TestSpawnCompletes(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	h := s.Spawn(func(ctx context.Context) (any, error) {
		if err := Sleep(ctx, 10*time.Millisecond); err != nil {
			return nil, err
		}
		return "done", nil
	})

	if h.ID() == 0 {
		t.Fatal("id must be assigned immediately")
	}
	if h.IsFinished() {
		t.Fatal("task finished before its body could run")
	}

	waitFinished(t, h, 2*time.Second)

	v, err := h.Join(context.Background())
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if v != "done" {
		t.Fatalf("Join value = %v, want done", v)
	}
}

func TestIDsUniqueUnderConcurrentSpawns(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	const n = 64
	var mu sync.Mutex
	ids := make(map[uint64]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := s.Spawn(func(ctx context.Context) (any, error) { return nil, nil })
			mu.Lock()
			if ids[h.ID()] {
				t.Errorf("duplicate id %d", h.ID())
			}
			ids[h.ID()] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(ids) != n {
		t.Fatalf("got %d distinct ids, want %d", len(ids), n)
	}
}

func TestBodyErrorSurfacesOnJoin(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	boom := errors.New("boom")
	h := s.Spawn(func(ctx context.Context) (any, error) { return nil, boom })

	v, err := h.Join(context.Background())
	if v != nil {
		t.Fatalf("value = %v, want nil", v)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestBodyPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	h := s.Spawn(func(ctx context.Context) (any, error) { panic("kaboom") })

	_, err := h.Join(context.Background())
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v, want panic failure", err)
	}
	if IsCancelled(err) || IsTimeout(err) {
		t.Fatalf("panic failure misclassified: %v", err)
	}
}

func TestTimeoutWinsOverSlowBody(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	h := s.SpawnTask(Create(func(ctx context.Context) (any, error) {
		if err := Sleep(ctx, 2*time.Second); err != nil {
			return nil, err
		}
		return "too late", nil
	}, Options{Name: "slow", Timeout: 50 * time.Millisecond}))

	v, err := h.Join(context.Background())
	if v != nil {
		t.Fatalf("value = %v, want nil", v)
	}
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want timeout", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.ID != h.ID() {
		t.Fatalf("timeout error does not carry task id: %v", err)
	}
	if err.Error() != "task exceeded timeout" {
		t.Fatalf("message = %q", err.Error())
	}
	// Elapsed froze near the timeout, not near the body's sleep.
	if e := h.Elapsed(); e < 50*time.Millisecond || e > time.Second {
		t.Fatalf("elapsed = %v, want ≈50ms", e)
	}
}

func TestAbortCancelsAtSuspensionPoint(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	h := s.Spawn(func(ctx context.Context) (any, error) {
		if err := Sleep(ctx, 5*time.Second); err != nil {
			return nil, err
		}
		return "slept", nil
	})

	time.Sleep(20 * time.Millisecond)
	h.Abort()
	waitFinished(t, h, 2*time.Second)

	_, err := h.Join(context.Background())
	if !IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
	var ce *CancelledError
	if !errors.As(err, &ce) || ce.ID != h.ID() {
		t.Fatalf("cancelled error does not carry task id: %v", err)
	}
	want := "task " + strconv.FormatUint(h.ID(), 10) + " was cancelled"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
	if e := h.Elapsed(); e >= 5*time.Second {
		t.Fatalf("elapsed = %v, want well under the body's sleep", e)
	}
}

func TestAbortIdempotentAndInertWhenFinished(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	h := s.Spawn(func(ctx context.Context) (any, error) { return 7, nil })
	waitFinished(t, h, 2*time.Second)

	e1 := h.Elapsed()
	h.Abort()
	h.Abort()
	e2 := h.Elapsed()

	if e1 != e2 {
		t.Fatalf("elapsed changed after abort: %v != %v", e1, e2)
	}
	v, err := h.Join(context.Background())
	if err != nil || v != 7 {
		t.Fatalf("Join = (%v, %v), want (7, nil)", v, err)
	}
}

func TestNonSuspendingBodyOutlivesAbort(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	started := make(chan struct{})
	h := s.Spawn(func(ctx context.Context) (any, error) {
		close(started)
		// No suspension point: nothing for the abort to hook into.
		n := 0
		for i := 0; i < 1_000_000; i++ {
			n += i
		}
		return n, nil
	})
	<-started
	h.Abort()

	v, err := h.Join(context.Background())
	if err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if v == nil {
		t.Fatal("natural completion should keep its value")
	}
}

func TestDoubleJoin(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	h := s.Spawn(func(ctx context.Context) (any, error) { return "once", nil })

	if _, err := h.Join(context.Background()); err != nil {
		t.Fatalf("first Join error: %v", err)
	}

	start := time.Now()
	_, err := h.Join(context.Background())
	if !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("second Join err = %v, want ErrAlreadyJoined", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("second Join must not block")
	}
}

func TestJoinRespectsCallerContext(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	release := make(chan struct{})
	h := s.Spawn(func(ctx context.Context) (any, error) {
		<-release
		return "ok", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	// The result slot was not consumed by the failed wait.
	close(release)
	v, err := h.Join(context.Background())
	if err != nil || v != "ok" {
		t.Fatalf("Join = (%v, %v), want (ok, nil)", v, err)
	}
}

func TestElapsedFreezesAtTerminalState(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	h := s.Spawn(func(ctx context.Context) (any, error) {
		return nil, Sleep(ctx, 10*time.Millisecond)
	})
	waitFinished(t, h, 2*time.Second)

	e1 := h.Elapsed()
	time.Sleep(30 * time.Millisecond)
	e2 := h.Elapsed()
	if e1 != e2 {
		t.Fatalf("elapsed not frozen: %v != %v", e1, e2)
	}
	if e1 <= 0 {
		t.Fatalf("elapsed = %v, want > 0", e1)
	}
}

func TestElapsedGrowsWhileRunning(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	release := make(chan struct{})
	h := s.Spawn(func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	defer close(release)

	e1 := h.Elapsed()
	time.Sleep(20 * time.Millisecond)
	e2 := h.Elapsed()
	if e2 < e1 {
		t.Fatalf("elapsed went backwards: %v then %v", e1, e2)
	}
	if e2 == 0 {
		t.Fatal("elapsed = 0 while running")
	}
}

func TestSpawnAfterCloseFails(t *testing.T) {
	t.Parallel()
	s := New()
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	h := s.Spawn(func(ctx context.Context) (any, error) { return "never", nil })
	if !h.IsFinished() {
		t.Fatal("post-close handle must be terminal immediately")
	}
	_, err := h.Join(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestCloseCancelsRunningTasks(t *testing.T) {
	t.Parallel()
	s := New()

	h := s.Spawn(func(ctx context.Context) (any, error) {
		return nil, Sleep(ctx, 10*time.Second)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	if !h.IsFinished() {
		t.Fatal("task still running after Close")
	}
	_, err := h.Join(context.Background())
	if !IsCancelled(err) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestSnapshotCounters(t *testing.T) {
	t.Parallel()
	s := New()
	defer s.Close(context.Background())

	ok := s.Spawn(func(ctx context.Context) (any, error) { return nil, nil })
	bad := s.Spawn(func(ctx context.Context) (any, error) { return nil, errors.New("no") })
	if _, err := ok.Join(context.Background()); err != nil {
		t.Fatalf("Join error: %v", err)
	}
	if _, err := bad.Join(context.Background()); err == nil {
		t.Fatal("expected failure")
	}

	snap := s.SnapshotNow()
	if snap.Spawned != 2 || snap.Completed != 1 || snap.Failed != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

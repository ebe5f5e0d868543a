package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"taskd/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("Open = (%v, %v), want (nil, nil)", st, err)
	}
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestMemoryRing(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "memory", Keep: 3}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		r := Run{TaskID: uint64(i), Name: "job", Started: time.Now(), Outcome: "completed"}
		if err := st.AppendRun(ctx, r); err != nil {
			t.Fatalf("AppendRun error: %v", err)
		}
	}

	runs, err := st.RecentRuns(ctx, 0)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3 (ring bound)", len(runs))
	}
	// Newest first.
	if runs[0].TaskID != 5 || runs[2].TaskID != 3 {
		t.Fatalf("ring order wrong: %+v", runs)
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.db")
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Millisecond)
	want := Run{
		TaskID:   42,
		Name:     "backup",
		Started:  started,
		Duration: 1500 * time.Millisecond,
		Outcome:  "failed",
		Error:    "exit status 1",
	}
	if err := st.AppendRun(ctx, want); err != nil {
		t.Fatalf("AppendRun error: %v", err)
	}
	if err := st.AppendRun(ctx, Run{TaskID: 43, Outcome: "completed"}); err != nil {
		t.Fatalf("AppendRun error: %v", err)
	}

	runs, err := st.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	got := runs[1] // newest first, so ours is last
	if got.TaskID != want.TaskID || got.Name != want.Name || got.Outcome != want.Outcome || got.Error != want.Error {
		t.Fatalf("run = %+v, want %+v", got, want)
	}
	if got.Duration != want.Duration {
		t.Fatalf("Duration = %v, want %v", got.Duration, want.Duration)
	}
	if !got.Started.Equal(started) {
		t.Fatalf("Started = %v, want %v", got.Started, started)
	}
}

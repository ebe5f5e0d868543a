package history

import (
	"context"
	"sync"
)

// memoryStore keeps the most recent runs in a bounded ring.
type memoryStore struct {
	mu   sync.Mutex
	runs []Run
	keep int
}

func openMemory(cfg Config) Store {
	keep := cfg.Keep
	if keep <= 0 {
		keep = 200
	}
	return &memoryStore{keep: keep}
}

func (s *memoryStore) AppendRun(_ context.Context, r Run) error {
	s.mu.Lock()
	s.runs = append(s.runs, r)
	if len(s.runs) > s.keep {
		s.runs = s.runs[len(s.runs)-s.keep:]
	}
	s.mu.Unlock()
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *memoryStore) RecentRuns(_ context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.runs) {
		limit = len(s.runs)
	}
	out := make([]Run, 0, limit)
	for i := len(s.runs) - 1; i >= len(s.runs)-limit; i-- {
		out = append(out, s.runs[i])
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }

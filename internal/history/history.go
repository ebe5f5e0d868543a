// Package history records finished task runs for operators.
//
// It is an observability log, not task state: nothing is ever read back to
// resume or re-run a task.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskd/pkg/logx"
)

// ErrDisabled is returned by store methods after Close or when the
// backing database is gone.
var ErrDisabled = errors.New("history disabled")

// Run is one finished task execution.
// Keep it compact and schema-stable.
type Run struct {
	TaskID   uint64
	Name     string
	Started  time.Time
	Duration time.Duration
	Outcome  string // completed | failed | cancelled | timeout
	Error    string
}

// Store is the minimal run-history API.
type Store interface {
	AppendRun(ctx context.Context, r Run) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}

// Config configures history storage.
//
// Driver values:
//   - "memory": bounded in-process ring
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string        // sqlite only
	Keep        int           // memory only; ring size, 0 means default
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
// It returns (nil, nil) if history is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "memory":
		return openMemory(cfg), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}

package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// History controls the optional run-history store.
	// If the whole section is omitted, history is disabled.
	History *HistoryConfig `json:"history,omitempty"`

	// StatusEvery is a Go duration string (e.g. "1m"). When set, the daemon
	// logs a scheduler snapshot at this interval. Use "0s" to disable.
	StatusEvery string `json:"status_every,omitempty"`

	Jobs []JobSpec `json:"jobs"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Alert   LoggingAlert `json:"alert"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingAlert struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// HistoryConfig controls the run-history store.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./taskd.db" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	Keep        int    `json:"keep,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// JobSpec describes one scheduled job.
//
// Exactly one trigger must be set: every (fixed interval), cron (standard
// 5-field cron expression, @every and @hourly style descriptors accepted),
// or once (run a single time at startup).
type JobSpec struct {
	Name string `json:"name"`
	// Run is the shell command executed for each run of the job.
	Run string `json:"run"`

	Every string `json:"every,omitempty"` // Go duration string
	Cron  string `json:"cron,omitempty"`
	Once  bool   `json:"once,omitempty"`

	// Timeout bounds a single run. Empty or "0s" means unbounded.
	Timeout string `json:"timeout,omitempty"`
}

func (j JobSpec) triggerCount() int {
	n := 0
	if strings.TrimSpace(j.Every) != "" {
		n++
	}
	if strings.TrimSpace(j.Cron) != "" {
		n++
	}
	if j.Once {
		n++
	}
	return n
}

// Validate checks structural invariants that the strict decoder cannot:
// unique non-empty job names, a command per job, exactly one trigger,
// and parseable duration fields.
func (c *Config) Validate() error {
	if _, err := ParseDurationField("status_every", c.StatusEvery); err != nil {
		return err
	}
	if c.History != nil {
		if _, err := ParseDurationField("history.busy_timeout", c.History.BusyTimeout); err != nil {
			return err
		}
	}

	seen := make(map[string]struct{}, len(c.Jobs))
	for i, j := range c.Jobs {
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("jobs[%d]: name is required", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("jobs[%d]: duplicate name %q", i, name)
		}
		seen[name] = struct{}{}

		if strings.TrimSpace(j.Run) == "" {
			return fmt.Errorf("job %q: run is required", name)
		}
		switch j.triggerCount() {
		case 0:
			return fmt.Errorf("job %q: one of every/cron/once is required", name)
		case 1:
		default:
			return fmt.Errorf("job %q: every/cron/once are mutually exclusive", name)
		}
		if _, err := ParseDurationField("job "+name+": every", j.Every); err != nil {
			return err
		}
		if _, err := ParseDurationField("job "+name+": timeout", j.Timeout); err != nil {
			return err
		}
	}
	return nil
}

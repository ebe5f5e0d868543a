package config

import (
	"sort"
	"strings"

	logx "taskd/pkg/logx"
)

// JobDiff describes which jobs appeared, disappeared, or changed between
// two job files. The runner uses it to reconcile running tasks on reload.
type JobDiff struct {
	Added   []JobSpec
	Removed []string
	Changed []JobSpec
}

func (d JobDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffJobs compares job lists by name. A job with the same name but a
// different command, trigger, or timeout counts as changed.
func DiffJobs(oldJobs, newJobs []JobSpec) JobDiff {
	oldByName := make(map[string]JobSpec, len(oldJobs))
	for _, j := range oldJobs {
		oldByName[strings.TrimSpace(j.Name)] = j
	}

	var d JobDiff
	seen := make(map[string]struct{}, len(newJobs))
	for _, j := range newJobs {
		name := strings.TrimSpace(j.Name)
		seen[name] = struct{}{}
		old, ok := oldByName[name]
		switch {
		case !ok:
			d.Added = append(d.Added, j)
		case old != j:
			d.Changed = append(d.Changed, j)
		}
	}
	for _, j := range oldJobs {
		name := strings.TrimSpace(j.Name)
		if _, ok := seen[name]; !ok {
			d.Removed = append(d.Removed, name)
		}
	}
	sort.Strings(d.Removed)
	return d
}

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging, and the job-level diff.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field, JobDiff) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 4)
	attrs := make([]logx.Field, 0, 12)

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}

	// History. Nil means disabled.
	oldH, newH := derefHistory(oldCfg.History), derefHistory(newCfg.History)
	if oldH != newH {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(newH.Driver)),
			logx.Bool("history.path_set", strings.TrimSpace(newH.Path) != ""),
			logx.Int("history.keep", newH.Keep),
		)
	}

	if strings.TrimSpace(oldCfg.StatusEvery) != strings.TrimSpace(newCfg.StatusEvery) {
		changed = append(changed, "status_every")
		attrs = append(attrs, logx.String("status_every", strings.TrimSpace(newCfg.StatusEvery)))
	}

	diff := DiffJobs(oldCfg.Jobs, newCfg.Jobs)
	if !diff.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.added", len(diff.Added)),
			logx.Int("jobs.removed", len(diff.Removed)),
			logx.Int("jobs.changed", len(diff.Changed)),
			logx.Int("jobs.total", len(newCfg.Jobs)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, diff
}

func derefHistory(h *HistoryConfig) HistoryConfig {
	if h == nil {
		return HistoryConfig{}
	}
	return *h
}

// Package runner maps job specs from the job file onto scheduler tasks.
//
// Each job becomes one task: interval jobs via SpawnEvery, cron jobs via
// SpawnCron, one-shot jobs via SpawnTask. On reload the runner diffs the
// new job list against what is running, aborts removed or changed jobs,
// and spawns the new ones.
package runner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"taskd/internal/config"
	"taskd/pkg/logx"
	"taskd/pkg/task"
)

// maxOutputBytes caps the command output kept as a task result so a chatty
// job cannot bloat logs or history.
const maxOutputBytes = 4096

type Runner struct {
	log   logx.Logger
	sched *task.Scheduler

	mu   sync.Mutex
	jobs map[string]*runningJob

	wg sync.WaitGroup
}

type runningJob struct {
	spec      config.JobSpec
	handle    *task.Handle
	recurring bool
}

func New(sched *task.Scheduler, log logx.Logger) *Runner {
	return &Runner{
		log:   log,
		sched: sched,
		jobs:  map[string]*runningJob{},
	}
}

// Apply reconciles the running jobs with the given config: removed and
// changed jobs are aborted, new and changed jobs are spawned. Unchanged
// jobs keep their running task (a completed one-shot is not re-run).
func (r *Runner) Apply(cfg *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make([]config.JobSpec, 0, len(r.jobs))
	for _, rj := range r.jobs {
		current = append(current, rj.spec)
	}
	diff := config.DiffJobs(current, cfg.Jobs)

	for _, name := range diff.Removed {
		r.stopLocked(name)
	}
	for _, j := range diff.Changed {
		r.stopLocked(j.Name)
		r.spawnLocked(j)
	}
	for _, j := range diff.Added {
		r.spawnLocked(j)
	}
}

func (r *Runner) spawnLocked(j config.JobSpec) {
	timeout, err := config.ParseDurationField("timeout", j.Timeout)
	if err != nil {
		// Validate() catches this before Apply; a failure here means the
		// config was mutated after validation.
		r.log.Error("job has invalid timeout; skipping", logx.String("job", j.Name), logx.Err(err))
		return
	}
	d := task.Create(commandBody(j.Run), task.Options{Name: j.Name, Timeout: timeout})

	var (
		h         *task.Handle
		recurring bool
	)
	switch {
	case strings.TrimSpace(j.Every) != "":
		h, err = r.sched.SpawnEveryFor(j.Every, d)
		recurring = true
	case strings.TrimSpace(j.Cron) != "":
		h, err = r.sched.SpawnCron(j.Cron, d)
		recurring = true
	default:
		h = r.sched.SpawnTask(d)
		r.drainAsync(h)
	}
	if err != nil {
		r.log.Error("job spawn failed", logx.String("job", j.Name), logx.Err(err))
		return
	}

	r.jobs[j.Name] = &runningJob{spec: j, handle: h, recurring: recurring}
	r.log.Info("job started",
		logx.String("job", j.Name),
		logx.Uint64("task_id", h.ID()),
		logx.Bool("recurring", recurring),
	)
}

func (r *Runner) stopLocked(name string) {
	rj, ok := r.jobs[name]
	if !ok {
		return
	}
	delete(r.jobs, name)
	rj.handle.Abort()
	if rj.recurring {
		// One-shot handles are drained by the goroutine started at spawn.
		r.drainAsync(rj.handle)
	}
	r.log.Info("job stopped", logx.String("job", name), logx.Uint64("task_id", rj.handle.ID()))
}

// drainAsync consumes the task result exactly once so every run's outcome
// reaches the log even when nothing else joins the handle.
func (r *Runner) drainAsync(h *task.Handle) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		v, err := h.Join(context.Background())
		switch {
		case err == nil:
			out, _ := v.(string)
			r.log.Debug("job run finished", logx.Uint64("task_id", h.ID()), logx.String("name", h.Name()), logx.String("output", out))
		case task.IsCancelled(err):
			r.log.Debug("job run cancelled", logx.Uint64("task_id", h.ID()), logx.String("name", h.Name()))
		case task.IsTimeout(err):
			r.log.Warn("job run timed out", logx.Uint64("task_id", h.ID()), logx.String("name", h.Name()), logx.Duration("elapsed", h.Elapsed()))
		default:
			r.log.Warn("job run failed", logx.Uint64("task_id", h.ID()), logx.String("name", h.Name()), logx.Err(err))
		}
	}()
}

// Stop aborts all jobs and waits for their results to drain.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	for _, name := range names {
		r.stopLocked(name)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports how many jobs the runner currently tracks.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// commandBody wraps a shell command as a task body. The command inherits
// the task context, so abort and timeout kill the process.
func commandBody(command string) task.Func {
	return func(ctx context.Context) (any, error) {
		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		out, err := cmd.CombinedOutput()
		text := strings.TrimSpace(string(out))
		if len(text) > maxOutputBytes {
			text = text[:maxOutputBytes]
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if text != "" {
				return nil, fmt.Errorf("%w: %s", err, text)
			}
			return nil, err
		}
		return text, nil
	}
}

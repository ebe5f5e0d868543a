package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"taskd/internal/config"
	"taskd/internal/eventbus"
	"taskd/internal/history"
	"taskd/internal/runner"
	"taskd/internal/supervisor"
	"taskd/pkg/logx"
	"taskd/pkg/task"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./taskd.yaml", "path to job file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return fmt.Errorf("load %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logConfig(cfg.Logging), nil)
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	hist, err := history.Open(historyConfig(cfg.History), log.With(logx.String("comp", "history")))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if hist != nil {
		defer hist.Close()
	}

	bus := eventbus.New()
	sched := task.New(
		task.WithLogger(log.With(logx.String("comp", "sched"))),
		task.WithBus(bus),
	)
	jobs := runner.New(sched, log.With(logx.String("comp", "runner")))

	sup := supervisor.New(ctx, supervisor.WithLogger(log.With(logx.String("comp", "supervisor"))))
	sup.Go("config.watch", mgr.Watch)
	if hist != nil {
		rec := runner.NewRecorder(bus, hist, log.With(logx.String("comp", "history")))
		sup.Go("history.recorder", rec.Run)
	}

	d := &daemon{log: log, logSvc: logSvc, sched: sched, jobs: jobs}
	jobs.Apply(cfg)
	d.applyStatus(cfg.StatusEvery)

	updates := mgr.Subscribe(4)
	defer mgr.Unsubscribe(updates)
	sup.Go("config.reload", func(c context.Context) error {
		prev := cfg
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-updates:
				if !ok {
					return nil
				}
				d.reload(prev, next)
				prev = next
			}
		}
	})

	notifyReady(log)
	log.Info("taskd started",
		logx.String("config", cfgPath),
		logx.Int("jobs", len(cfg.Jobs)),
		logx.Bool("history", hist != nil),
	)

	<-ctx.Done()
	notifyStopping(log)
	log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := jobs.Stop(stopCtx); err != nil {
		log.Warn("job shutdown incomplete", logx.Err(err))
	}
	if err := sched.Close(stopCtx); err != nil {
		log.Warn("scheduler shutdown incomplete", logx.Err(err))
	}
	return sup.Stop(stopCtx)
}

// daemon holds the pieces a config reload has to touch.
type daemon struct {
	log    logx.Logger
	logSvc *logx.Service
	sched  *task.Scheduler
	jobs   *runner.Runner

	statusHandle *task.Handle
	statusEvery  string
}

func (d *daemon) reload(oldCfg, newCfg *config.Config) {
	changed, attrs, _ := config.SummarizeChange(oldCfg, newCfg)
	if len(changed) == 0 {
		return
	}
	d.log.Info("config reloaded",
		append([]logx.Field{logx.String("sections", strings.Join(changed, ","))}, attrs...)...,
	)

	for _, section := range changed {
		switch section {
		case "logging":
			d.logSvc.Apply(logConfig(newCfg.Logging))
		case "history":
			// The history store is opened once at startup.
			d.log.Warn("history settings changed; restart to apply")
		case "status_every":
			d.applyStatus(newCfg.StatusEvery)
		case "jobs":
			d.jobs.Apply(newCfg)
		}
	}
}

// applyStatus (re)starts the periodic snapshot logger as a recurring task
// on the scheduler itself.
func (d *daemon) applyStatus(every string) {
	if every == d.statusEvery && d.statusHandle != nil {
		return
	}
	if d.statusHandle != nil {
		d.statusHandle.Abort()
		d.statusHandle = nil
	}
	d.statusEvery = every

	period, err := config.ParseDurationField("status_every", every)
	if err != nil || period <= 0 {
		return
	}
	body := func(ctx context.Context) (any, error) {
		snap := d.sched.SnapshotNow()
		d.log.Info("scheduler status",
			logx.Int("jobs", d.jobs.Len()),
			logx.Uint64("spawned", snap.Spawned),
			logx.Int64("active", snap.Active),
			logx.Uint64("completed", snap.Completed),
			logx.Uint64("failed", snap.Failed),
			logx.Uint64("cancelled", snap.Cancelled),
			logx.Uint64("timed_out", snap.TimedOut),
		)
		return nil, nil
	}
	h, err := d.sched.SpawnEvery(period, task.Create(body, task.Options{Name: "status"}))
	if err != nil {
		d.log.Warn("status task spawn failed", logx.Err(err))
		return
	}
	d.statusHandle = h
}

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    c.Alert.Enabled,
			MinLevel:   c.Alert.MinLevel,
			RatePerSec: c.Alert.RatePerSec,
		},
	}
}

func historyConfig(c *config.HistoryConfig) history.Config {
	if c == nil {
		return history.Config{}
	}
	busy, _ := config.ParseDurationOrDefault("history.busy_timeout", c.BusyTimeout, 5*time.Second)
	return history.Config{
		Driver:      c.Driver,
		Path:        c.Path,
		Keep:        c.Keep,
		BusyTimeout: busy,
	}
}

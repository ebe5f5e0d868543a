package runner

import (
	"context"
	"time"

	"taskd/internal/eventbus"
	"taskd/internal/history"
	"taskd/pkg/logx"
	"taskd/pkg/task"
)

// Recorder subscribes to task lifecycle events and appends terminal
// outcomes to the run-history store. Start events carry no outcome and
// are skipped.
type Recorder struct {
	bus   *eventbus.Bus
	store history.Store
	log   logx.Logger
}

func NewRecorder(bus *eventbus.Bus, store history.Store, log logx.Logger) *Recorder {
	return &Recorder{bus: bus, store: store, log: log}
}

func (r *Recorder) Run(ctx context.Context) error {
	ch, unsub := r.bus.Subscribe(128)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			ev, ok := e.Data.(task.Event)
			if !ok || ev.Outcome == "" {
				continue
			}
			run := history.Run{
				TaskID:   ev.ID,
				Name:     ev.Name,
				Started:  ev.Started,
				Duration: ev.Duration,
				Outcome:  ev.Outcome,
				Error:    ev.Error,
			}
			wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := r.store.AppendRun(wctx, run)
			cancel()
			if err != nil {
				r.log.Warn("history append failed",
					logx.Uint64("task_id", run.TaskID),
					logx.String("name", run.Name),
					logx.Err(err),
				)
			}
		}
	}
}

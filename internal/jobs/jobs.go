// Package jobs runs the periodic background work (series extension) on
// cron schedules.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"

	appLog "seriesd/internal/log"
)

// Runner wraps a cron scheduler with a shared base context and logging
// around each job invocation.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

func NewRunner(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(),
		baseCtx: baseCtx,
	}
}

// Add schedules job under the standard 5-field cron spec.
func (r *Runner) Add(spec, name string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		appLog.Debug("job starting", "job", name)
		if err := job(r.baseCtx); err != nil {
			appLog.Error("job failed", err, "job", name)
			return
		}
		appLog.Debug("job finished", "job", name)
	})
}

func (r *Runner) Start() {
	appLog.Info("cron runner started")
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	appLog.Info("cron runner stopped")
}

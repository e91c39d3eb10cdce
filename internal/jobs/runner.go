package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/observability"
	"go.uber.org/zap"
)

type Job func(ctx context.Context) error

type Runner struct {
	ctx context.Context
	log *zap.Logger
}

func New(ctx context.Context, log *zap.Logger) *Runner {
	return &Runner{ctx: ctx, log: logging.OrNop(log)}
}

// Every runs fn on a ticker until the runner's context is done.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				_ = r.Once(name, fn)
			}
		}
	}()
}

// Once runs fn a single time with the same metrics, logging and panic guard as Every.
func (r *Runner) Once(name string, fn Job) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in job %s: %v", name, p)
		}
		if err != nil {
			jobErrors.WithLabelValues(name).Inc()
			observability.CaptureOpErr(err, "job:"+name, 0)
			r.log.Error("job failed", zap.String("job", name), zap.Error(err))
		}
		jobRuns.WithLabelValues(name).Inc()
		jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	return fn(r.ctx)
}

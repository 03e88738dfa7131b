// Package scheduler triggers periodic ShopPipe jobs, such as the cart
// recovery automation run, from cron expressions.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a single job invocation.
const DefaultJobTimeout = 10 * time.Minute

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
}

// Opts holds optional scheduler configuration.
type Opts struct {
	JobTimeout time.Duration
}

// Option configures a Scheduler.
type Option func(*Opts)

// WithJobTimeout overrides DefaultJobTimeout.
func WithJobTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.JobTimeout = d
	}
}

// NewScheduler creates and starts a cron scheduler. Jobs recover from panics
// and a job still running when its next tick fires is skipped.
func NewScheduler(opts ...Option) *Scheduler {
	o := Opts{JobTimeout: DefaultJobTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	logger := slogLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()
	return &Scheduler{cron: c, timeout: o.JobTimeout}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// AddContextJob schedules a task that receives a context bounded by the job
// timeout. Errors are logged with the job name.
func (s *Scheduler) AddContextJob(name, expr string, task func(context.Context) error) error {
	return s.AddJob(expr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		start := time.Now()
		if err := task(ctx); err != nil {
			slog.Error("Scheduler.job: failed", "job", name, "error", err, "duration", time.Since(start))
			return
		}
		slog.Debug("Scheduler.job: completed", "job", name, "duration", time.Since(start))
	})
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// slogLogger adapts slog to cron.Logger.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "0 * * * *"

// Runner fires Dispatcher ticks on a cron schedule. A tick still running when
// the next one is due causes that next one to be skipped.
type Runner struct {
	dispatcher *Dispatcher
	cron       *cron.Cron
	log        *slog.Logger
	timeout    time.Duration
	now        func() time.Time

	baseCtx context.Context
}

func NewRunner(d *Dispatcher, schedule string, loc *time.Location, timeout time.Duration, log *slog.Logger) (*Runner, error) {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	log = log.With(slog.String("component", "reminder_runner"))
	cronLog := cronLogger{log: log}

	r := &Runner{
		dispatcher: d,
		log:        log,
		timeout:    timeout,
		now:        time.Now,
		baseCtx:    context.Background(),
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("parse reminder schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Run starts the schedule and blocks until ctx is done, then waits for a
// running tick to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.baseCtx = ctx
	r.cron.Start()
	r.log.InfoContext(ctx, "reminder runner started")

	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	r.log.Info("reminder runner stopped")
	return nil
}

func (r *Runner) tick() {
	ctx := r.baseCtx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if _, err := r.dispatcher.RunTick(ctx, r.now()); err != nil {
		r.log.ErrorContext(ctx, "reminder tick failed", slog.String("error", err.Error()))
	}
}

type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"

	"github.com/robfig/cron/v3"
)

const DefaultTickInterval = 5 * time.Second

// Drives Dispatcher.Tick on a fixed interval. A tick that is still running when the next is due causes that next one to be skipped, so ticks never overlap.
type Runner struct {
	Dispatcher *Dispatcher
	Clock      chat.Clock
	Interval   time.Duration

	cron *cron.Cron
}

func NewRunner(d *Dispatcher, clock chat.Clock, interval time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	logger := cronLogger{d.Logger}
	return &Runner{
		Dispatcher: d,
		Clock:      clock,
		Interval:   interval,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}
}

// Schedules the periodic tick and starts the cron goroutine. Returns immediately.
func (r *Runner) Start() error {
	_, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.Interval), func() {
		r.Dispatcher.Tick(context.Background(), r.Clock.Now())
	})
	if err != nil {
		return fmt.Errorf("scheduling dispatcher tick: %w", err)
	}
	r.cron.Start()
	return nil
}

// Stops scheduling new ticks and waits (up to ctx) for an in-flight tick to finish.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// adapts slog to the cron library's logger interface
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}

// Package scheduling clears time bound caches at a fixed wall clock time.
package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/inlandnav/euris-resources/internal/logging"
)

type Invalidator interface {
	InvalidateAll()
}

// DailyInvalidator calls InvalidateAll on one cache once per day.
type DailyInvalidator struct {
	scheduler gocron.Scheduler
	job       gocron.Job
	logger    *slog.Logger
	stopOnce  sync.Once
	stopErr   error
}

func NewDailyInvalidator(
	name string,
	target Invalidator,
	hour, minute int,
	location *time.Location,
	logger *slog.Logger,
) (*DailyInvalidator, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid reset time %02d:%02d", hour, minute)
	}
	if location == nil {
		location = time.Local
	}
	logger = logging.Default(logger).With("job", name)

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(location))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	job, err := scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0))),
		gocron.NewTask(func() {
			target.InvalidateAll()
			logger.Info("cleared daily cache")
		}),
		gocron.WithName(name),
	)
	if err != nil {
		// Ignore the shutdown error, the job error is the interesting one
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("create daily job %s: %w", name, err)
	}

	return &DailyInvalidator{
		scheduler: scheduler,
		job:       job,
		logger:    logger,
	}, nil
}

func (d *DailyInvalidator) Start() {
	d.scheduler.Start()
	d.logger.Info("daily invalidator started", "nextRun", d.NextRun())
}

// RunNow clears the cache immediately without affecting the daily schedule.
func (d *DailyInvalidator) RunNow() error {
	return d.job.RunNow()
}

// NextRun is the zero time until the invalidator has been started.
func (d *DailyInvalidator) NextRun() time.Time {
	next, err := d.job.NextRun()
	if err != nil {
		return time.Time{}
	}
	return next
}

// Stop cancels the daily job and waits for a running invalidation to finish.
func (d *DailyInvalidator) Stop() error {
	d.stopOnce.Do(func() {
		d.stopErr = d.scheduler.Shutdown()
		d.logger.Info("daily invalidator stopped")
	})
	return d.stopErr
}

// StopOnDone stops the invalidator when ctx ends. The returned channel is
// closed once it has stopped.
func (d *DailyInvalidator) StopOnDone(ctx context.Context) <-chan struct{} {
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		if err := d.Stop(); err != nil {
			d.logger.Warn("failed to stop daily invalidator", "error", err.Error())
		}
	}()
	return stopped
}

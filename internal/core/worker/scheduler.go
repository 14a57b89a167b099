package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Job is the unit of work a Scheduler triggers.
type Job func(ctx context.Context) error

// TimeOfDay is a wall-clock trigger in the scheduler's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Next returns the first trigger strictly after now, in now's location.
func (t TimeOfDay) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Scheduler runs a job once a day at a fixed time, bounding each run by a
// maximum runtime.
type Scheduler struct {
	name       string
	at         TimeOfDay
	maxRuntime time.Duration
	job        Job
	log        *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler creates a daily scheduler. maxRuntime <= 0 means unbounded.
func NewScheduler(name string, at TimeOfDay, maxRuntime time.Duration, job Job) *Scheduler {
	return &Scheduler{
		name:       name,
		at:         at,
		maxRuntime: maxRuntime,
		job:        job,
		log:        slog.Default().With("component", "scheduler", "task", name),
		now:        time.Now,
		after:      time.After,
	}
}

// Start blocks, triggering the job every day until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for {
		next := s.at.Next(s.now())
		s.log.Info("Next run scheduled", "at", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	runCtx := ctx
	if s.maxRuntime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.maxRuntime)
		defer cancel()
	}

	start := s.now()
	err := s.job(runCtx)
	switch {
	case err == nil:
		s.log.Info("Scheduled run finished", "duration", s.now().Sub(start))
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn("Scheduled run hit max runtime", "max_runtime", s.maxRuntime)
	default:
		s.log.Error("Scheduled run failed", "error", err)
	}
}

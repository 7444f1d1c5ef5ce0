package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ellavondegurechaff/slotkeeper/internal/domain/slots"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/logger"
	"github.com/ellavondegurechaff/slotkeeper/slotkeeper/platform"
)

// Job is a periodic task. Next returns the first run time strictly after now.
type Job struct {
	Name string
	Next func(now time.Time) time.Time
	Run  func(ctx context.Context) error
}

// Every schedules a job at a fixed interval.
func Every(d time.Duration) func(time.Time) time.Time {
	return func(now time.Time) time.Time { return now.Add(d) }
}

// Daily schedules a job at a wall-clock time in loc.
func Daily(hour, minute int, loc *time.Location) func(time.Time) time.Time {
	return func(now time.Time) time.Time { return NextDailyRun(now, hour, minute, loc) }
}

// NextDailyRun returns the next instant after now at which the wall clock in
// loc reads hour:minute. Days on which that time does not exist (DST gaps)
// run at the normalised instant time.Date produces.
func NextDailyRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Scheduler runs each job in its own goroutine. Runs of one job never overlap.
type Scheduler struct {
	now  func() time.Time
	jobs []Job

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(jobs []Job, opts ...Option) *Scheduler {
	s := &Scheduler{now: time.Now, jobs: jobs}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	logger.LogSystem("Scheduler started", slog.Int("jobs", len(s.jobs)))
}

// Stop cancels the loops and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	logger.LogSystem("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	for {
		now := s.now()
		next := job.Next(now)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.run(ctx, job)
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Scheduled job panicked",
				slog.String("type", "sweep"),
				slog.String("job", job.Name),
				slog.Any("panic", r),
			)
		}
	}()
	if err := job.Run(ctx); err != nil && ctx.Err() == nil {
		logger.LogError("Scheduled job failed", err, slog.String("job", job.Name))
	}
}

// Sweeper is the part of the slot controller the timed sweeps drive.
type Sweeper interface {
	ExpireDue(ctx context.Context) (*slots.SweepResult, error)
	WarnExpiring(ctx context.Context) (*slots.SweepResult, error)
	ResetAllQuotas(ctx context.Context, manual bool, actorID string) (*slots.SweepResult, error)
}

type Applier interface {
	Apply(ctx context.Context, batches ...slots.Batch) (platform.Report, error)
}

// Schedule holds the timing of the three slot sweeps.
type Schedule struct {
	ExpiryInterval  time.Duration
	WarningInterval time.Duration
	ResetHour       int
	ResetMinute     int
	ResetLocation   *time.Location
}

// SlotJobs builds the expiry, warning and daily quota reset jobs.
func SlotJobs(c Sweeper, x Applier, sch Schedule) []Job {
	loc := sch.ResetLocation
	if loc == nil {
		loc = time.UTC
	}
	return []Job{
		{
			Name: "expire",
			Next: Every(sch.ExpiryInterval),
			Run:  sweepJob("expire", x, c.ExpireDue),
		},
		{
			Name: "warn",
			Next: Every(sch.WarningInterval),
			Run:  sweepJob("warn", x, c.WarnExpiring),
		},
		{
			Name: "reset",
			Next: Daily(sch.ResetHour, sch.ResetMinute, loc),
			Run: sweepJob("reset", x, func(ctx context.Context) (*slots.SweepResult, error) {
				return c.ResetAllQuotas(ctx, false, "")
			}),
		},
	}
}

func sweepJob(name string, x Applier, sweep func(context.Context) (*slots.SweepResult, error)) func(context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		res, err := sweep(ctx)
		if err != nil {
			return err
		}
		logger.LogSweep(name, res.Processed, res.Failed, time.Since(start))
		if len(res.Batches) == 0 {
			return nil
		}
		report, err := x.Apply(ctx, res.Batches...)
		if report.Failed > 0 {
			slog.Warn("Some sweep effects failed",
				slog.String("type", "sweep"),
				slog.String("sweep", name),
				slog.Int("applied", report.Applied),
				slog.Int("failed", report.Failed),
			)
		}
		return err
	}
}

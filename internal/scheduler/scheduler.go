// Package scheduler runs LeadPipe's periodic maintenance jobs.
//
// Jobs are registered with cron expressions or "@every" descriptors.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Default maintenance schedules.
const (
	DefaultSessionSweepSpec = "@every 10m"
	DefaultDedupPruneSpec   = "0 3 * * *"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a scheduler. Jobs run once Start is called.
func NewScheduler() *Scheduler {
	// Standard 5-field cron plus descriptors such as @hourly and @every 5m
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{cron: c}
}

// AddJob schedules task under name using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr, name string, task func()) error {
	_, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		task()
		slog.Debug("Scheduler: job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		slog.Error("Scheduler.AddJob: invalid schedule", "job", name, "expr", expr, "error", err)
		return err
	}
	slog.Info("Scheduler.AddJob: job scheduled", "job", name, "expr", expr)
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		slog.Warn("Scheduler.Stop: jobs still running at shutdown")
	}
}

// Sweeper drops expired entries from an in-memory store.
type Sweeper interface {
	Sweep() int
}

// Pruner deletes records older than a cutoff.
type Pruner interface {
	PruneInbound(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweepJob returns a job sweeping every store.
func SweepJob(stores ...Sweeper) func() {
	return func() {
		total := 0
		for _, st := range stores {
			total += st.Sweep()
		}
		if total > 0 {
			slog.Info("Scheduler.SweepJob: expired sessions removed", "removed", total)
		}
	}
}

// PruneJob returns a job deleting dedup records older than retention.
func PruneJob(p Pruner, retention, timeout time.Duration) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		n, err := p.PruneInbound(ctx, time.Now().Add(-retention))
		if err != nil {
			slog.Error("Scheduler.PruneJob: prune failed", "error", err)
			return
		}
		slog.Info("Scheduler.PruneJob: dedup records pruned", "removed", n, "retention", retention)
	}
}

package effects

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// Dispatcher defaults.
const (
	DefaultTaskTimeout = 15 * time.Second
	DefaultMaxInFlight = 64
)

// Dispatcher runs side-effect tasks detached from the conversation that
// triggered them. Each task gets its own deadline; a failing or panicking
// task is logged and counted and never reaches the user.
type Dispatcher struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*dispatcherConfig)

type dispatcherConfig struct {
	timeout     time.Duration
	maxInFlight int64
	metrics     *metrics.Metrics
}

// WithTaskTimeout sets the per-task deadline.
func WithTaskTimeout(d time.Duration) DispatcherOption {
	return func(c *dispatcherConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxInFlight bounds concurrently running tasks.
func WithMaxInFlight(n int) DispatcherOption {
	return func(c *dispatcherConfig) {
		if n > 0 {
			c.maxInFlight = int64(n)
		}
	}
}

// WithDispatcherMetrics records task outcomes.
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(c *dispatcherConfig) { c.metrics = m }
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	cfg := dispatcherConfig{timeout: DefaultTaskTimeout, maxInFlight: DefaultMaxInFlight}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher{
		sem:     semaphore.NewWeighted(cfg.maxInFlight),
		timeout: cfg.timeout,
		metrics: cfg.metrics,
	}
}

// Go starts task in the background and returns immediately.
func (d *Dispatcher) Go(name string, task func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// Tasks outlive the request that spawned them.
		if err := d.sem.Acquire(context.Background(), 1); err != nil {
			slog.Error("Dispatcher.Go: acquire failed", "task", name, "error", err)
			return
		}
		defer d.sem.Release(1)
		d.run(name, task)
	}()
}

func (d *Dispatcher) run(name string, task func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Dispatcher.run: task panicked", "task", name, "panic", fmt.Sprint(r))
			d.metrics.ObservePanic(name)
		}
	}()

	start := time.Now()
	err := task(ctx)
	d.metrics.ObserveEffect(name, err)
	if err != nil {
		slog.Error("Dispatcher.run: task failed", "task", name, "error", err, "duration", time.Since(start))
		return
	}
	slog.Debug("Dispatcher.run: task done", "task", name, "duration", time.Since(start))
}

// Wait blocks until every started task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for running tasks until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("side effects still running: %w", ctx.Err())
	}
}

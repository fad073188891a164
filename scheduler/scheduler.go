// Package scheduler runs the engine's batch execution on a fixed interval.
// It is the periodic driver behind expiration notifications: every tick it
// asks the engine to evaluate all active flows against all known items.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NeonInsuranceBrockers/freshsaver-sub000/engine"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/errors"
	"github.com/NeonInsuranceBrockers/freshsaver-sub000/metric"
)

// BatchRunner is the engine operation the scheduler drives
type BatchRunner interface {
	RunBatch(ctx context.Context) (*engine.BatchSummary, error)
}

// Scheduler triggers batch runs on a ticker
type Scheduler struct {
	mu sync.Mutex

	runner   BatchRunner
	interval time.Duration
	logger   *slog.Logger

	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	runs     *prometheus.CounterVec
	lastTick prometheus.Gauge
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger.With("component", "scheduler")
		}
	}
}

// WithMetricsRegistry enables scheduler metrics on the given registry
func WithMetricsRegistry(registry *metric.Registry) Option {
	return func(s *Scheduler) {
		if registry == nil {
			return
		}

		runs := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "freshsaver",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of scheduled batch runs by status",
		}, []string{"status"})
		lastTick := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "freshsaver",
			Subsystem: "scheduler",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last scheduled batch run",
		})

		if err := registry.Register("scheduler", "runs", runs); err != nil {
			s.logger.Warn("Scheduler metrics disabled", "error", err)
			return
		}
		if err := registry.Register("scheduler", "last_run", lastTick); err != nil {
			s.logger.Warn("Scheduler metrics disabled", "error", err)
			return
		}
		s.runs = runs
		s.lastTick = lastTick
	}
}

// New creates a scheduler driving the given runner every interval
func New(runner BatchRunner, interval time.Duration, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("runner is nil"), "scheduler", "New", "validate input")
	}
	if interval <= 0 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("interval must be positive, got %s", interval),
			"scheduler", "New", "validate input")
	}

	s := &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   slog.Default().With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the ticker loop. The first batch runs after one full
// interval, not immediately, so service startup stays fast.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.WrapInvalid(
			fmt.Errorf("scheduler already started"), "scheduler", "Start", "validate state")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(runCtx)
	}()

	s.logger.Info("Scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the ticker loop and waits for an in-flight run to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// RunOnce triggers a single batch run outside the schedule
func (s *Scheduler) RunOnce(ctx context.Context) (*engine.BatchSummary, error) {
	return s.run(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.run(ctx); err != nil {
				s.logger.Error("Scheduled batch run failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) run(ctx context.Context) (*engine.BatchSummary, error) {
	started := time.Now()
	summary, err := s.runner.RunBatch(ctx)

	if s.lastTick != nil {
		s.lastTick.Set(float64(started.Unix()))
	}
	if err != nil {
		s.recordRun("failed")
		return nil, err
	}

	s.recordRun("completed")
	s.logger.Info("Scheduled batch run finished",
		"matched", summary.Matched, "completed", summary.Completed,
		"failed", summary.Failed, "duration", time.Since(started))
	return summary, nil
}

func (s *Scheduler) recordRun(status string) {
	if s.runs != nil {
		s.runs.WithLabelValues(status).Inc()
	}
}

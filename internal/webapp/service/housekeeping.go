package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes expired records and reports how many went.
// credcache.Cache (via Purge) and session.MemoryStore qualify.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// SweepFunc adapts a function to Sweeper.
type SweepFunc func(ctx context.Context) (int64, error)

func (f SweepFunc) Sweep(ctx context.Context) (int64, error) { return f(ctx) }

// HousekeepingService periodically purges expired credential cache entries
// and in-process sessions so neither grows without bound.
type HousekeepingService struct {
	Tasks    map[string]Sweeper
	Logger   *slog.Logger
	Interval time.Duration

	// OnSwept is told how many records each task removed.
	OnSwept func(task string, n int64)

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. If interval is 0
// or negative, it defaults to 15 minutes.
func NewHousekeepingService(tasks map[string]Sweeper, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HousekeepingService{
		Tasks:    tasks,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "tasks", len(s.Tasks))
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce sweeps every task. A failing task does not stop the others.
func (s *HousekeepingService) RunOnce(ctx context.Context) {
	var total int64
	for name, task := range s.Tasks {
		n, err := task.Sweep(ctx)
		if err != nil {
			s.Logger.Error("housekeeping task failed", "task", name, "err", err)
			continue
		}
		total += n
		if s.OnSwept != nil {
			s.OnSwept(name, n)
		}
		s.Logger.Debug("housekeeping task completed", "task", name, "removed", n)
	}
	s.Logger.Info("housekeeping completed", "removed", total)
}

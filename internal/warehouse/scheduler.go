package warehouse

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler runs load cycles on a fixed interval. A failed cycle is
// logged and the schedule continues; the watermark ensures the next
// cycle retries the same window.
type Scheduler struct {
	logger    *slog.Logger
	loader    *Loader
	interval  time.Duration
	cancelCtx context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(loader *Loader, interval time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if loader == nil {
		return nil, errors.New("loader cannot be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Scheduler{
		logger:   logger,
		loader:   loader,
		interval: interval,
		done:     make(chan struct{}),
	}, nil
}

// Start runs an immediate cycle, then one per interval, until the
// context is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelCtx = cancel

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("load scheduler started", "interval", s.interval)
		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("load scheduler stopped")
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// Stop cancels the schedule and waits for the current cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancelCtx != nil {
		s.cancelCtx()
	}
	<-s.done
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.loader.RunCycle(ctx); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			s.logger.Warn("skipping cycle, previous cycle still running")
			return
		}
		s.logger.Error("load cycle failed", "error", err)
	}
}

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultSweepInterval = 5 * time.Second
	errorBackoff         = time.Second
	stopTimeout          = 10 * time.Second
)

// Scheduler periodically sweeps all pending orders through the engine.
// Start and Stop are idempotent; the loop never exits on a failed
// sweep, it backs off and tries again.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler creates a Scheduler. A non-positive interval falls back
// to the default.
func NewScheduler(engine *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("scheduler already running")
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
}

// Stop signals the loop to exit and waits for it, bounded by a timeout
// so a stuck sweep cannot hang shutdown. Calling Stop on a stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
	case <-time.After(stopTimeout):
		s.logger.Warn("scheduler did not stop in time")
	}
}

// Running reports whether the sweep loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.tick(); err != nil {
				s.logger.Error("pending sweep failed", slog.String("error", err.Error()))
				// Brief pause so a persistent failure does not spin.
				select {
				case <-stop:
					return
				case <-time.After(errorBackoff):
				}
			}
		}
	}
}

func (s *Scheduler) tick() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	_, _, err := s.engine.ProcessAllPending(ctx)
	return err
}

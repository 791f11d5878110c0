package session

import (
	"context"
	"sync"
	"time"

	"github.com/authkeeper/authkeeper/internal/logger"
)

// scheduler runs the proactive token refresh on a fixed period. One active
// timer at most: Start cancels any previous run before installing a new one,
// and a failed refresh ends the run instead of retrying a known-bad token
// on the next tick.
type scheduler struct {
	refresh func(ctx context.Context) error
	logger  logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newScheduler(refresh func(ctx context.Context) error, l logger.Logger) *scheduler {
	return &scheduler{
		refresh: refresh,
		logger:  l,
	}
}

// Start installs the periodic refresh. Idempotent: a running timer is
// cancelled and waited out first, so two Starts never leave two tickers.
// Must not be called from the refresh callback itself.
func (s *scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.logger.Debug("Starting refresh scheduler", "interval", interval)
	go s.run(ctx, interval, done)
}

// Stop cancels the pending timer. Safe to call when already stopped and safe
// to call from any goroutine, including the refresh callback: it does not
// wait for the run loop to exit.
func (s *scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
}

func (s *scheduler) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Refresh scheduler stopped")
			return

		case <-ticker.C:
			if err := s.refresh(ctx); err != nil {
				s.logger.Warn("Scheduled refresh failed, stopping scheduler", "error", err)
				return
			}
			s.logger.Debug("Scheduled refresh succeeded")
		}
	}
}

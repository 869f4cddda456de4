// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Start launches a poll chain unless one is already running. It reports
// whether a new chain was started. The chain ends when the switch is off or
// ctx is done. No overlap. No retries.
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	return true
}

// Running reports whether a chain is alive.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the current chain, if any, has ended.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if !s.keepGoing(ctx) {
			return
		}

		res := s.PollOnce(ctx)
		if res.Err != nil {
			s.cfg.Logger.Warn("poll tick failed", "err", res.Err, "took", res.Duration)
		}
		if s.cfg.Results != nil {
			select {
			case s.cfg.Results <- res:
			case <-ctx.Done():
			}
		}

		if !s.keepGoing(ctx) {
			return
		}

		timer.Reset(s.cfg.Interval)
		select {
		case <-ctx.Done():
			s.stop()
			return
		case <-timer.C:
		}
	}
}

// keepGoing checks the switch and marks the chain stopped in the same
// critical section as Start, so a concurrent Start never sees a dying chain
// as running.
func (s *Scheduler) keepGoing(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() == nil && s.cfg.Switch.AutoRefresh() {
		return true
	}
	s.running = false
	return false
}

func (s *Scheduler) stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Config is the runtime config of a Scheduler.
type Config struct {
	// Interval between ticks.
	// Default: DefaultInterval
	Interval time.Duration

	Switch Switch
	Tick   Tick

	// Results, when set, receives every PollResult.
	Results chan<- PollResult

	Logger *slog.Logger
}

// Scheduler is a cooperative, self-rescheduling poll chain.
//
// At most one chain runs at a time. A chain checks the switch at the top of
// each tick and again after it, and ends on its own once the switch is off.
// Start may be called again afterwards.
type Scheduler struct {
	cfg Config

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// New creates a scheduler with immutable config.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Switch == nil {
		return nil, errors.New("poller: switch required")
	}
	if cfg.Tick == nil {
		return nil, errors.New("poller: tick required")
	}
	if cfg.Interval < 0 {
		return nil, errors.New("poller: interval must be >= 0")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Scheduler{cfg: cfg}, nil
}

// Interval returns the effective tick interval.
func (s *Scheduler) Interval() time.Duration { return s.cfg.Interval }

// PollOnce performs exactly one tick.
func (s *Scheduler) PollOnce(ctx context.Context) PollResult {
	start := time.Now()
	err := s.cfg.Tick(ctx)
	return PollResult{
		At:       start,
		Duration: time.Since(start),
		Err:      err,
	}
}

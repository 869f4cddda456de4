// internal/poller/types.go
package poller

import (
	"context"
	"time"
)

// DefaultInterval is the delay between the end of one tick and the start of
// the next.
const DefaultInterval = 200 * time.Millisecond

// Switch is the auto-refresh flag the scheduler obeys. It is read before and
// after every tick.
type Switch interface {
	AutoRefresh() bool
}

// Tick performs one poll round-trip. Its error only ends the chain if the
// switch was turned off as a consequence.
type Tick func(ctx context.Context) error

// PollResult is the outcome of one tick.
type PollResult struct {
	At       time.Time
	Duration time.Duration
	Err      error // non-nil means the tick failed
}

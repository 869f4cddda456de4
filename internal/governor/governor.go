// internal/governor/governor.go
package governor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tamzrod/procimg-watch/internal/metrics"
	"github.com/tamzrod/procimg-watch/internal/status"
)

// DefaultThreshold is the number of failures that trips the breaker.
const DefaultThreshold = 25

var (
	// ErrTooManyFailures is the terminal breaker condition. Polling stays off
	// until the session is rebuilt.
	ErrTooManyFailures = errors.New("governor: too many errors while reading io data")

	// ErrAutoRefreshOff is returned when write intent is requested without auto-refresh.
	ErrAutoRefreshOff = errors.New("governor: auto-refresh is off")
)

// Config configures a Governor.
type Config struct {
	// Threshold is the failure count that trips the breaker.
	// Default: DefaultThreshold
	Threshold int

	// OnTrip is called exactly once, synchronously, when the breaker trips.
	OnTrip func(err error)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Governor counts fetch failures and owns the session mode flags
// (auto-refresh and write intent) that a trip forces off.
//
// Unlike a classic circuit breaker it never half-opens.
type Governor struct {
	cfg Config

	mu          sync.Mutex
	failures    int
	tripped     bool
	auto        bool
	writeIntent bool
	seen        bool
	lastErr     error
	errorSince  time.Time
}

// New creates a governor with auto-refresh off.
func New(cfg Config) *Governor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Governor{cfg: cfg}
}

// AutoRefresh reports whether polling should keep running.
func (g *Governor) AutoRefresh() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.auto
}

// SetAutoRefresh flips the polling flag. Turning it off also clears write intent.
// A tripped governor refuses to turn it back on.
func (g *Governor) SetAutoRefresh(on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if on && g.tripped {
		return ErrTooManyFailures
	}
	g.auto = on
	if !on {
		g.writeIntent = false
	}
	return nil
}

// WriteIntent reports whether polling pushes UI values back to the device.
func (g *Governor) WriteIntent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writeIntent
}

// SetWriteIntent sets the write-during-poll flag. It needs auto-refresh on.
func (g *Governor) SetWriteIntent(on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if on {
		if g.tripped {
			return ErrTooManyFailures
		}
		if !g.auto {
			return ErrAutoRefreshOff
		}
	}
	g.writeIntent = on
	return nil
}

// Tripped reports whether the breaker has tripped.
func (g *Governor) Tripped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped
}

// RecordSuccess resets the failure counter.
func (g *Governor) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seen = true
	if g.tripped {
		return
	}
	if g.failures > 0 {
		g.cfg.Logger.Info("process image fetch recovered", "after_failures", g.failures)
	}
	g.failures = 0
	g.lastErr = nil
	g.errorSince = time.Time{}
	g.cfg.Metrics.SetConsecutiveFailures(0)
}

// RecordFailure accounts one failed fetch.
//
// With auto-refresh on the counter grows by one; with it off a single failure
// is fatal and the counter jumps to the threshold. It returns nil while the
// failure is absorbed and an error wrapping ErrTooManyFailures once tripped.
func (g *Governor) RecordFailure(cause error) error {
	g.mu.Lock()

	g.seen = true
	if g.tripped {
		g.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrTooManyFailures, cause)
	}

	if g.auto {
		g.failures++
	} else {
		g.failures = g.cfg.Threshold
	}
	g.lastErr = cause
	if g.errorSince.IsZero() {
		g.errorSince = time.Now()
	}
	g.cfg.Metrics.SetConsecutiveFailures(g.failures)

	if g.failures < g.cfg.Threshold {
		g.cfg.Logger.Debug("process image fetch failed", "failures", g.failures, "threshold", g.cfg.Threshold, "err", cause)
		g.mu.Unlock()
		return nil
	}

	g.tripped = true
	g.auto = false
	g.writeIntent = false
	g.cfg.Metrics.BreakerTripped()
	onTrip := g.cfg.OnTrip
	g.mu.Unlock()

	err := fmt.Errorf("%w: %v", ErrTooManyFailures, cause)
	g.cfg.Logger.Error("breaker tripped, watch disabled", "threshold", g.cfg.Threshold, "err", cause)
	if onTrip != nil {
		onTrip(err)
	}
	return err
}

// Snapshot returns the current health view.
func (g *Governor) Snapshot() status.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := status.Snapshot{
		Failures:    g.failures,
		Threshold:   g.cfg.Threshold,
		ErrorSince:  g.errorSince,
		AutoRefresh: g.auto,
		WriteIntent: g.writeIntent,
	}
	if g.lastErr != nil {
		s.LastError = g.lastErr.Error()
	}

	switch {
	case g.tripped:
		s.Health = status.HealthTripped
	case g.failures > 0:
		s.Health = status.HealthError
	case g.seen:
		s.Health = status.HealthOK
	default:
		s.Health = status.HealthUnknown
	}
	return s
}

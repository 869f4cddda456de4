// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flag struct{ on atomic.Bool }

func (f *flag) AutoRefresh() bool { return f.on.Load() }

func newFlag(on bool) *flag {
	f := &flag{}
	f.on.Store(on)
	return f
}

func waitDone(t *testing.T, s *Scheduler) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("chain did not end")
	}
}

func TestNew_Validates(t *testing.T) {
	tick := func(context.Context) error { return nil }

	_, err := New(Config{Tick: tick})
	assert.Error(t, err)

	_, err = New(Config{Switch: newFlag(true)})
	assert.Error(t, err)

	_, err = New(Config{Switch: newFlag(true), Tick: tick, Interval: -time.Second})
	assert.Error(t, err)

	s, err := New(Config{Switch: newFlag(true), Tick: tick})
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, s.Interval())
}

func TestPollOnce_ReportsError(t *testing.T) {
	boom := errors.New("boom")
	s, err := New(Config{
		Switch: newFlag(true),
		Tick:   func(context.Context) error { return boom },
	})
	require.NoError(t, err)

	res := s.PollOnce(context.Background())
	assert.ErrorIs(t, res.Err, boom)
	assert.False(t, res.At.IsZero())
}

func TestStart_StopsAfterSwitchTurnsOffDuringTick(t *testing.T) {
	sw := newFlag(true)
	var ticks atomic.Int32

	s, err := New(Config{
		Interval: time.Millisecond,
		Switch:   sw,
		Tick: func(context.Context) error {
			if ticks.Add(1) == 3 {
				sw.on.Store(false)
			}
			return nil
		},
	})
	require.NoError(t, err)

	require.True(t, s.Start(context.Background()))
	waitDone(t, s)

	assert.Equal(t, int32(3), ticks.Load(), "no tick after the switch went off")
	assert.False(t, s.Running())
}

func TestStart_SingleChain(t *testing.T) {
	sw := newFlag(true)
	var inFlight, maxInFlight, ticks atomic.Int32

	s, err := New(Config{
		Interval: time.Millisecond,
		Switch:   sw,
		Tick: func(context.Context) error {
			n := inFlight.Add(1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			time.Sleep(time.Millisecond)
			inFlight.Add(-1)
			if ticks.Add(1) >= 10 {
				sw.on.Store(false)
			}
			return nil
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.True(t, s.Start(ctx))
	assert.False(t, s.Start(ctx))
	assert.False(t, s.Start(ctx))
	waitDone(t, s)

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestStart_SwitchOffBeforeFirstTick(t *testing.T) {
	var ticks atomic.Int32
	s, err := New(Config{
		Switch: newFlag(false),
		Tick:   func(context.Context) error { ticks.Add(1); return nil },
	})
	require.NoError(t, err)

	require.True(t, s.Start(context.Background()))
	waitDone(t, s)
	assert.Zero(t, ticks.Load())
}

func TestStart_Restartable(t *testing.T) {
	sw := newFlag(true)
	var ticks atomic.Int32

	s, err := New(Config{
		Interval: time.Millisecond,
		Switch:   sw,
		Tick: func(context.Context) error {
			ticks.Add(1)
			sw.on.Store(false)
			return nil
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.True(t, s.Start(ctx))
	waitDone(t, s)
	require.Equal(t, int32(1), ticks.Load())

	sw.on.Store(true)
	require.True(t, s.Start(ctx))
	waitDone(t, s)
	assert.Equal(t, int32(2), ticks.Load())
}

func TestStart_ContextCancelEndsChain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan PollResult, 64)

	s, err := New(Config{
		Interval: time.Hour,
		Switch:   newFlag(true),
		Tick:     func(context.Context) error { return nil },
		Results:  results,
	})
	require.NoError(t, err)

	require.True(t, s.Start(ctx))
	<-results
	cancel()
	waitDone(t, s)
	assert.False(t, s.Running())
}

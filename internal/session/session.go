// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/procimg-watch/internal/engine"
	"github.com/tamzrod/procimg-watch/internal/governor"
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/metrics"
	"github.com/tamzrod/procimg-watch/internal/poller"
	"github.com/tamzrod/procimg-watch/internal/status"
	"github.com/tamzrod/procimg-watch/internal/store"
	"github.com/tamzrod/procimg-watch/internal/transport"
)

var (
	// ErrAutoRefreshOn is returned by manual operations while polling runs.
	ErrAutoRefreshOn = errors.New("session: auto-refresh is on")

	// ErrWriteDeclined means the user did not confirm the write warning.
	ErrWriteDeclined = errors.New("session: write not confirmed")
)

// WriteWarning is shown once per session before the first write.
const WriteWarning = "You want to set outputs on the device! Note that these are set IMMEDIATELY. " +
	"If another control program is running on the device, it could interfere and reset the outputs."

// Options configures a session.
type Options struct {
	// Name labels the connection in logs.
	Name string

	Client transport.Client

	// Interval between poll ticks.
	// Default: poller.DefaultInterval
	Interval time.Duration

	// FailureThreshold trips the breaker.
	// Default: governor.DefaultThreshold
	FailureThreshold int

	// Confirm is asked once, with WriteWarning, before the first write.
	// Nil skips the confirmation.
	Confirm func(ctx context.Context, warning string) (bool, error)

	// OnTrip receives the terminal breaker condition, once.
	OnTrip func(err error)

	// OnReport receives write reports from poll ticks (rejected items, failed
	// write calls, missing write capability). Manual operations return them
	// instead.
	OnReport func(err error)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Session is one live watch of a device: catalogue, values, breaker and
// poll chain. A tripped session is not reusable; open a new one.
type Session struct {
	id   string
	opts Options

	client   transport.Client
	reg      *image.Registry
	store    *store.Store
	gov      *governor.Governor
	eng      *engine.Engine
	sched    *poller.Scheduler
	canWrite bool

	confirmMu sync.Mutex
	confirmed bool

	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

// Open starts the device, reads both catalogues and the access level, and
// performs an initial read of every IO.
//
// The session owns the client once Open succeeds. On failure the caller
// still owns it.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Client == nil {
		return nil, errors.New("session: client required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:     uuid.NewString(),
		opts:   opts,
		client: opts.Client,
	}
	s.log = opts.Logger.With("session_id", s.id)

	if st, ok := opts.Client.(transport.Starter); ok {
		if err := st.Start(ctx); err != nil {
			return nil, fmt.Errorf("session: start: %w", err)
		}
	}

	if err := s.loadCatalogue(ctx); err != nil {
		return nil, err
	}

	level, err := opts.Client.AccessLevel(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: access level: %w", err)
	}
	s.canWrite = level >= transport.WriteAccessLevel

	s.store = store.New(s.reg)
	s.gov = governor.New(governor.Config{
		Threshold: opts.FailureThreshold,
		OnTrip:    s.onTrip,
		Metrics:   opts.Metrics,
		Logger:    s.log,
	})

	s.eng, err = engine.New(engine.Config{
		Registry:     s.reg,
		Store:        s.store,
		Client:       opts.Client,
		Governor:     s.gov,
		WriteAllowed: s.canWrite,
		Metrics:      opts.Metrics,
		Logger:       s.log,
	})
	if err != nil {
		return nil, err
	}

	s.sched, err = poller.New(poller.Config{
		Interval: opts.Interval,
		Switch:   s.gov,
		Tick:     s.tick,
		Logger:   s.log,
	})
	if err != nil {
		return nil, err
	}

	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if err := s.ReadAll(ctx); err != nil {
		s.cancel()
		return nil, err
	}

	s.log.Info("session opened",
		"devices", len(s.reg.Devices()),
		"ios", s.reg.Len(),
		"access_level", level,
		"write_enabled", s.canWrite,
	)
	return s, nil
}

func (s *Session) loadCatalogue(ctx context.Context) error {
	devs, err := s.client.Devices(ctx)
	if err != nil {
		return fmt.Errorf("session: devices: %w", err)
	}
	ins, err := s.client.InputDescriptors(ctx)
	if err != nil {
		return fmt.Errorf("session: inputs: %w", err)
	}
	outs, err := s.client.OutputDescriptors(ctx)
	if err != nil {
		return fmt.Errorf("session: outputs: %w", err)
	}

	devices := make([]image.Device, 0, len(devs))
	for _, d := range devs {
		devices = append(devices, image.Device{ID: d.ID, Name: d.Name})
	}
	s.reg, err = image.NewRegistry(devices, ins, outs)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Registry returns the IO catalogue.
func (s *Session) Registry() *image.Registry { return s.reg }

// WriteEnabled reports whether the device granted write access.
func (s *Session) WriteEnabled() bool { return s.canWrite }

// Values returns every cell in catalogue order.
func (s *Session) Values() []store.Entry { return s.store.Snapshot() }

// Value returns one cell.
func (s *Session) Value(ref image.Ref) (image.Value, bool) { return s.store.Get(ref) }

// Status returns the health view.
func (s *Session) Status() status.Snapshot { return s.gov.Snapshot() }

// Bounds returns the accepted input range of an IO.
func (s *Session) Bounds(ref image.Ref) (lo, hi string, err error) { return s.eng.Bounds(ref) }

// ---- manual operations (auto-refresh off only) ----

// ReadAll refreshes every IO from the device.
func (s *Session) ReadAll(ctx context.Context) error {
	if s.gov.AutoRefresh() {
		return ErrAutoRefreshOn
	}
	return s.eng.Sync(ctx, engine.AllIOs, false)
}

// ReadInputs refreshes only the inputs.
func (s *Session) ReadInputs(ctx context.Context) error {
	if s.gov.AutoRefresh() {
		return ErrAutoRefreshOn
	}
	return s.eng.Sync(ctx, engine.InputsOnly, false)
}

// WriteOutputs pushes every output whose value differs from the device.
func (s *Session) WriteOutputs(ctx context.Context) error {
	if s.gov.AutoRefresh() {
		return ErrAutoRefreshOn
	}
	if !s.canWrite {
		return engine.ErrWriteNotPermitted
	}
	if err := s.confirmWrite(ctx); err != nil {
		return err
	}
	return s.eng.Sync(ctx, engine.OutputsOnly, true)
}

// ---- edits ----

// BeginEdit locks an output while the user types.
func (s *Session) BeginEdit(ref image.Ref) error { return s.eng.BeginEdit(ref) }

// Commit stores an edited output. With write intent on it is written to the
// device immediately.
func (s *Session) Commit(ctx context.Context, ref image.Ref, v image.Value) error {
	return s.eng.Commit(ctx, ref, v, s.gov.WriteIntent())
}

// Revert drops an edit.
func (s *Session) Revert(ref image.Ref) (image.Value, error) { return s.eng.Revert(ref) }

// ---- modes ----

// SetAutoRefresh starts or stops polling. Stopping also clears write intent.
func (s *Session) SetAutoRefresh(on bool) error {
	if err := s.gov.SetAutoRefresh(on); err != nil {
		return err
	}
	if on {
		if s.sched.Start(s.ctx) {
			s.log.Info("auto-refresh started", "interval", s.sched.Interval())
		}
		return nil
	}
	s.log.Info("auto-refresh stopped")
	return nil
}

// SetWriteIntent toggles writing during polls and on commit. It needs
// auto-refresh on, write access and, once per session, user confirmation.
func (s *Session) SetWriteIntent(ctx context.Context, on bool) error {
	if !on {
		return s.gov.SetWriteIntent(false)
	}
	if !s.canWrite {
		return engine.ErrWriteNotPermitted
	}
	if !s.gov.AutoRefresh() {
		return governor.ErrAutoRefreshOff
	}
	if err := s.confirmWrite(ctx); err != nil {
		return err
	}
	return s.gov.SetWriteIntent(true)
}

// AwaitIdle blocks until the poll chain, if any, has ended.
func (s *Session) AwaitIdle() { s.sched.Wait() }

// Close stops polling and closes the client.
func (s *Session) Close() error {
	s.CloseBestEffort()
	return s.client.Close()
}

// CloseBestEffort stops polling and waits for the last tick.
func (s *Session) CloseBestEffort() {
	_ = s.gov.SetAutoRefresh(false)
	s.cancel()
	s.sched.Wait()
}

// ---- internals ----

func (s *Session) tick(ctx context.Context) error {
	err := s.eng.Sync(ctx, engine.AllIOs, s.gov.WriteIntent())
	var fetchErr *engine.FetchError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, governor.ErrTooManyFailures):
		return err
	case errors.As(err, &fetchErr):
		// absorbed by the governor until it trips
		return nil
	default:
		if s.opts.OnReport != nil {
			s.opts.OnReport(err)
		}
		return err
	}
}

func (s *Session) onTrip(err error) {
	if s.opts.OnTrip != nil {
		s.opts.OnTrip(err)
	}
}

// confirmWrite asks the write warning once per session.
func (s *Session) confirmWrite(ctx context.Context) error {
	s.confirmMu.Lock()
	defer s.confirmMu.Unlock()

	if s.confirmed || s.opts.Confirm == nil {
		return nil
	}
	ok, err := s.opts.Confirm(ctx, WriteWarning)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWriteDeclined
	}
	s.confirmed = true
	return nil
}

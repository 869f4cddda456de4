// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tamzrod/procimg-watch/internal/codec"
	"github.com/tamzrod/procimg-watch/internal/governor"
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/metrics"
	"github.com/tamzrod/procimg-watch/internal/store"
	"github.com/tamzrod/procimg-watch/internal/transport"
	"github.com/tamzrod/procimg-watch/internal/writer"
)

// Scope selects which IOs a sync pass touches.
type Scope uint8

const (
	AllIOs Scope = iota
	InputsOnly
	OutputsOnly
)

func (s Scope) String() string {
	switch s {
	case InputsOnly:
		return "inputs"
	case OutputsOnly:
		return "outputs"
	default:
		return "all"
	}
}

func (s Scope) includes(_ image.Ref, d image.IoDescriptor) bool {
	switch s {
	case InputsOnly:
		return d.Direction == image.Input
	case OutputsOnly:
		return d.Direction == image.Output
	default:
		return true
	}
}

var (
	// ErrWriteNotPermitted means the device did not grant write access.
	ErrWriteNotPermitted = errors.New("engine: write access not granted by device")

	// ErrNotEditable is returned when editing an input or an unknown IO.
	ErrNotEditable = errors.New("engine: io is not editable")
)

// FetchError is a process image fetch that did not complete. The governor
// has already counted it.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return e.Err.Error() }

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher is the remote surface of the engine.
type Fetcher interface {
	FetchProcessImage(ctx context.Context) ([]byte, error)
	SetValues(ctx context.Context, items []transport.WriteItem) ([]transport.WriteResult, error)
}

// Config wires an Engine.
type Config struct {
	Registry *image.Registry
	Store    *store.Store
	Client   Fetcher
	Governor *governor.Governor

	// WriteAllowed is the device write capability. Without it no batch is sent.
	WriteAllowed bool

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Engine reconciles the remote process image with the value store.
//
// Every round-trip (fetch, decode, aggregated write) runs under one lock, so
// manual operations and scheduled ticks never interleave their remote calls.
type Engine struct {
	mu sync.Mutex

	reg     *image.Registry
	store   *store.Store
	client  Fetcher
	gov     *governor.Governor
	writer  *writer.Writer
	canW    bool
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New validates the wiring and creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("engine: registry required")
	}
	if cfg.Store == nil {
		return nil, errors.New("engine: store required")
	}
	if cfg.Client == nil {
		return nil, errors.New("engine: client required")
	}
	if cfg.Governor == nil {
		return nil, errors.New("engine: governor required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		reg:     cfg.Registry,
		store:   cfg.Store,
		client:  cfg.Client,
		gov:     cfg.Governor,
		writer:  writer.New(cfg.Client, cfg.Registry, cfg.Metrics),
		canW:    cfg.WriteAllowed,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}, nil
}

// withLock runs fn holding the round-trip lock. The lock is released on every
// exit path of fn.
func (e *Engine) withLock(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

// Sync fetches the process image and reconciles every IO in scope.
//
// Without writeBack each unlocked cell takes the device value. With writeBack
// an output whose UI value differs from the device is queued for writing
// instead; all queued writes leave as one aggregated call.
func (e *Engine) Sync(ctx context.Context, scope Scope, writeBack bool) error {
	return e.withLock(func() error {
		return e.syncLocked(ctx, scope.includes, writeBack)
	})
}

func (e *Engine) syncLocked(ctx context.Context, include func(image.Ref, image.IoDescriptor) bool, writeBack bool) error {
	if e.gov.Tripped() {
		return governor.ErrTooManyFailures
	}

	start := time.Now()
	raw, err := e.client.FetchProcessImage(ctx)
	e.metrics.ObserveFetch(time.Since(start), err)
	if err != nil {
		terr := transport.Wrap("fetch process image", err)
		if gerr := e.gov.RecordFailure(terr); gerr != nil {
			return gerr
		}
		return &FetchError{Err: terr}
	}
	e.gov.RecordSuccess()

	batch := &writer.Batch{}
	e.reg.Each(func(ref image.Ref, d image.IoDescriptor) {
		if !include(ref, d) || e.store.Locked(ref) {
			return
		}

		v, err := codec.Decode(raw, d)
		if err != nil {
			e.log.Debug("io not decoded", "io", ref.String(), "err", err)
			return
		}

		if writeBack && d.Direction == image.Output {
			ui, _ := e.store.Get(ref)
			if !ui.Equal(v) {
				batch.Add(ref.Device, ref.Name, ui)
				return
			}
		}
		e.store.SetDecoded(ref, v)
	})

	if batch.Len() == 0 {
		return nil
	}
	if !e.canW {
		return ErrWriteNotPermitted
	}

	e.log.Debug("dispatching aggregated write", "items", batch.Len())
	return e.writer.Dispatch(ctx, batch)
}

// BeginEdit locks an output cell on the first keystroke of a user edit.
func (e *Engine) BeginEdit(ref image.Ref) error {
	d, ok := e.reg.Lookup(ref)
	if !ok || d.Direction != image.Output {
		return fmt.Errorf("%w: %s", ErrNotEditable, ref)
	}
	return e.store.BeginEdit(ref)
}

// Commit ends a user edit.
//
// An out-of-range value is rejected and the cell reverts to the value it had
// when editing began; nothing reaches the transport. A valid value is stored
// and, with writeThrough, written to the device through the aggregated write
// path in the same locked round-trip, so no poll can clobber it in between.
func (e *Engine) Commit(ctx context.Context, ref image.Ref, v image.Value, writeThrough bool) error {
	d, ok := e.reg.Lookup(ref)
	if !ok || d.Direction != image.Output {
		return fmt.Errorf("%w: %s", ErrNotEditable, ref)
	}
	if err := codec.Validate(d, v); err != nil {
		e.RevertBestEffort(ref)
		return err
	}

	return e.withLock(func() error {
		if err := e.store.Commit(ref, v); err != nil {
			return err
		}
		if !writeThrough {
			return nil
		}
		return e.syncLocked(ctx, func(r image.Ref, _ image.IoDescriptor) bool {
			return r == ref
		}, true)
	})
}

// Revert drops a user edit and restores the value it replaced.
func (e *Engine) Revert(ref image.Ref) (image.Value, error) {
	return e.store.Revert(ref)
}

// RevertBestEffort reverts and ignores failures. The cell may already be
// unlocked or unknown, which leaves nothing to undo.
func (e *Engine) RevertBestEffort(ref image.Ref) {
	if _, err := e.store.Revert(ref); err != nil {
		e.log.Debug("revert skipped", "io", ref.String(), "err", err)
	}
}

// Bounds returns the accepted input range of an IO.
func (e *Engine) Bounds(ref image.Ref) (lo, hi string, err error) {
	d, ok := e.reg.Lookup(ref)
	if !ok {
		return "", "", fmt.Errorf("%w: %s", store.ErrUnknownIO, ref)
	}
	return codec.MinValue(d).String(), codec.MaxValue(d).String(), nil
}

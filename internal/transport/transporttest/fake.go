// internal/transport/transporttest/fake.go

// Package transporttest provides an in-memory transport.Client for tests.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/procimg-watch/internal/codec"
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/transport"
)

// Fake is a device held in memory. Successful writes are encoded into Image,
// so a later fetch observes them.
type Fake struct {
	mu sync.Mutex

	DeviceList []transport.Device
	Inputs     map[int][]image.IoDescriptor
	Outputs    map[int][]image.IoDescriptor
	Image      []byte
	Level      int

	fetchErr  error
	writeErr  error
	failItems map[image.Ref]string

	Fetches int
	Batches [][]transport.WriteItem
	Singles []transport.WriteItem
	Started bool
	Closed  bool

	// OnFetch runs inside FetchProcessImage before the image is copied.
	OnFetch func()
}

var _ transport.Client = (*Fake)(nil)
var _ transport.Starter = (*Fake)(nil)

// SetImage replaces the process image.
func (f *Fake) SetImage(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Image = append([]byte(nil), b...)
}

// CurrentImage copies the process image.
func (f *Fake) CurrentImage() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.Image...)
}

// SetFetchErr makes every fetch fail with err until cleared with nil.
func (f *Fake) SetFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

// SetWriteErr makes every aggregated write call fail with err until cleared
// with nil.
func (f *Fake) SetWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// FailItem makes writes to ref report a false status with msg.
func (f *Fake) FailItem(ref image.Ref, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failItems == nil {
		f.failItems = make(map[image.Ref]string)
	}
	f.failItems[ref] = msg
}

// FetchCount returns the number of fetch calls so far.
func (f *Fake) FetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fetches
}

// BatchCount returns the number of aggregated writes so far.
func (f *Fake) BatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Batches)
}

func (f *Fake) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started = true
	return nil
}

func (f *Fake) Devices(ctx context.Context) ([]transport.Device, error) {
	return append([]transport.Device(nil), f.DeviceList...), nil
}

func (f *Fake) InputDescriptors(ctx context.Context) (map[int][]image.IoDescriptor, error) {
	return f.Inputs, nil
}

func (f *Fake) OutputDescriptors(ctx context.Context) (map[int][]image.IoDescriptor, error) {
	return f.Outputs, nil
}

func (f *Fake) FetchProcessImage(ctx context.Context) ([]byte, error) {
	if f.OnFetch != nil {
		f.OnFetch()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Fetches++
	if f.fetchErr != nil {
		return nil, transport.Wrap("ps_values", f.fetchErr)
	}
	return append([]byte(nil), f.Image...), nil
}

func (f *Fake) SetValue(ctx context.Context, device int, io string, v image.Value) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := transport.WriteItem{Device: device, IO: io, Value: v}
	f.Singles = append(f.Singles, item)
	return f.apply(item) == nil, nil
}

func (f *Fake) SetValues(ctx context.Context, items []transport.WriteItem) ([]transport.WriteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Batches = append(f.Batches, append([]transport.WriteItem(nil), items...))
	if f.writeErr != nil {
		return nil, transport.Wrap("system.multicall", f.writeErr)
	}

	out := make([]transport.WriteResult, 0, len(items))
	for _, it := range items {
		res := transport.WriteResult{Device: it.Device, IO: it.IO, OK: true}
		if err := f.apply(it); err != nil {
			res.OK = false
			res.Message = err.Error()
		}
		out = append(out, res)
	}
	return out, nil
}

func (f *Fake) AccessLevel(ctx context.Context) (int, error) { return f.Level, nil }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *Fake) apply(it transport.WriteItem) error {
	ref := image.Ref{Device: it.Device, Name: it.IO}
	if msg, ok := f.failItems[ref]; ok {
		return errors.New(msg)
	}
	for _, d := range f.Outputs[it.Device] {
		if d.Name == it.IO {
			return codec.Encode(f.Image, d, it.Value)
		}
	}
	return fmt.Errorf("unknown output %s", ref)
}

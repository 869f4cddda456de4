// internal/store/store.go
package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tamzrod/procimg-watch/internal/image"
)

// ErrUnknownIO is returned for references the store was not built with.
var ErrUnknownIO = errors.New("store: unknown io")

type cell struct {
	value     image.Value
	locked    bool
	committed image.Value
}

// Entry is a read-only copy of one cell.
type Entry struct {
	Ref    image.Ref
	Value  image.Value
	Locked bool
}

// Store holds the last known value of every IO and its edit lock.
// It is shared between the decode path and the user-edit path.
type Store struct {
	mu    sync.RWMutex
	order []image.Ref
	cells map[image.Ref]*cell
}

// New creates one cell per registry IO, initialised to the zero value of its kind.
func New(reg *image.Registry) *Store {
	s := &Store{cells: make(map[image.Ref]*cell, reg.Len())}
	reg.Each(func(ref image.Ref, d image.IoDescriptor) {
		s.order = append(s.order, ref)
		s.cells[ref] = &cell{value: image.Zero(d)}
	})
	return s
}

func (s *Store) lookup(ref image.Ref) (*cell, error) {
	c, ok := s.cells[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIO, ref)
	}
	return c, nil
}

// Get returns the current (UI-held) value.
func (s *Store) Get(ref image.Ref) (image.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[ref]
	if !ok {
		return image.Value{}, false
	}
	return c.value, true
}

// Locked reports whether a user is editing the cell.
func (s *Store) Locked(ref image.Ref) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cells[ref]
	return ok && c.locked
}

// SetDecoded stores a value read from the device.
// Locked cells are never overwritten; the return value tells whether v was applied.
func (s *Store) SetDecoded(ref image.Ref, v image.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cells[ref]
	if !ok || c.locked {
		return false
	}
	c.value = v
	return true
}

// BeginEdit locks the cell on the first keystroke and remembers the value to
// revert to. Locking an already locked cell keeps the first revert value.
func (s *Store) BeginEdit(ref image.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(ref)
	if err != nil {
		return err
	}
	if !c.locked {
		c.locked = true
		c.committed = c.value
	}
	return nil
}

// Commit stores the user value and releases the edit lock.
func (s *Store) Commit(ref image.Ref, v image.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(ref)
	if err != nil {
		return err
	}
	c.value = v
	c.locked = false
	return nil
}

// Revert restores the value saved by BeginEdit and releases the edit lock.
// Reverting an unlocked cell is a no-op.
func (s *Store) Revert(ref image.Ref) (image.Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.lookup(ref)
	if err != nil {
		return image.Value{}, err
	}
	if c.locked {
		c.value = c.committed
		c.locked = false
	}
	return c.value, nil
}

// Snapshot copies every cell in registry order.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.order))
	for _, ref := range s.order {
		c := s.cells[ref]
		out = append(out, Entry{Ref: ref, Value: c.value, Locked: c.locked})
	}
	return out
}

// internal/transport/transport.go
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/tamzrod/procimg-watch/internal/image"
)

// WriteAccessLevel is the lowest access level that permits setting outputs.
//
// Levels, as granted by the device ACL:
//
//	0 start/stop program, read logs
//	1 + read IOs
//	2 + read properties, download program
//	3 + upload program, set outputs
//	4 + set properties
const WriteAccessLevel = 3

// Device is one entry of the remote device list.
type Device struct {
	ID   int
	Name string
}

// WriteItem is one value inside an aggregated write.
type WriteItem struct {
	Device int
	IO     string
	Value  image.Value
}

// WriteResult is the device answer for one WriteItem.
type WriteResult struct {
	Device  int
	IO      string
	OK      bool
	Message string
}

// Client is the remote surface the sync engine consumes.
// Implementations must be safe for use by one caller at a time; the engine
// serialises process image round-trips itself.
type Client interface {
	Devices(ctx context.Context) ([]Device, error)
	InputDescriptors(ctx context.Context) (map[int][]image.IoDescriptor, error)
	OutputDescriptors(ctx context.Context) (map[int][]image.IoDescriptor, error)

	FetchProcessImage(ctx context.Context) ([]byte, error)

	SetValue(ctx context.Context, device int, io string, v image.Value) (bool, error)

	// SetValues performs one aggregated write. The result has exactly one
	// entry per item, in order; a failing item never stops the others.
	SetValues(ctx context.Context, items []WriteItem) ([]WriteResult, error)

	// AccessLevel reports the capability granted to this client.
	AccessLevel(ctx context.Context) (int, error)

	Close() error
}

// Starter is implemented by clients that need a start call before the
// process image can be read.
type Starter interface {
	Start(ctx context.Context) error
}

// Error is a remote call that did not complete (network, timeout, protocol).
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transport: %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Wrap marks err as a transport failure of op. Nil stays nil and errors that
// already are transport failures are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsFailure reports whether err is a transport failure.
func IsFailure(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// internal/writer/types.go
package writer

import (
	"fmt"
	"strings"

	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/transport"
)

// DeviceNamer resolves device display names for error reports.
type DeviceNamer interface {
	DeviceName(id int) string
}

// Batch collects the writes of one sync pass. It goes out as one remote call.
type Batch struct {
	items []transport.WriteItem
}

// Add queues one value.
func (b *Batch) Add(device int, io string, v image.Value) {
	b.items = append(b.items, transport.WriteItem{Device: device, IO: io, Value: v})
}

// Len is the number of queued writes.
func (b *Batch) Len() int { return len(b.items) }

// Items returns a copy of the queued writes.
func (b *Batch) Items() []transport.WriteItem {
	return append([]transport.WriteItem(nil), b.items...)
}

// Failure is one rejected item of an aggregated write.
type Failure struct {
	Device     int
	DeviceName string
	IO         string
	Message    string
}

func (f Failure) String() string {
	return fmt.Sprintf("error set value of device %q output %q: %s", f.DeviceName, f.IO, f.Message)
}

// PartialWriteError reports every rejected item of an aggregated write.
// The other items of the batch succeeded.
type PartialWriteError struct {
	Failures []Failure
}

func (e *PartialWriteError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.String())
	}
	return "writer: " + strings.Join(msgs, " | ")
}

// internal/writer/writer.go
package writer

import (
	"context"
	"fmt"

	"github.com/tamzrod/procimg-watch/internal/metrics"
	"github.com/tamzrod/procimg-watch/internal/transport"
)

// batchClient is the exact contract the writer uses.
type batchClient interface {
	SetValues(ctx context.Context, items []transport.WriteItem) ([]transport.WriteResult, error)
}

// Writer dispatches batches and turns per-item results into a report.
type Writer struct {
	client  batchClient
	names   DeviceNamer
	metrics *metrics.Metrics
}

func New(client batchClient, names DeviceNamer, m *metrics.Metrics) *Writer {
	return &Writer{
		client:  client,
		names:   names,
		metrics: m,
	}
}

// Dispatch sends the batch as one aggregated call.
//
// A call that does not complete is a transport failure. A completed call with
// false-status items yields *PartialWriteError listing exactly those items;
// every result is inspected, none aborts the scan.
func (w *Writer) Dispatch(ctx context.Context, b *Batch) error {
	if b == nil || b.Len() == 0 {
		return nil
	}

	results, err := w.client.SetValues(ctx, b.Items())
	if err != nil {
		return transport.Wrap("set values", err)
	}
	if len(results) != b.Len() {
		return transport.Wrap("set values", fmt.Errorf(
			"result count mismatch: sent=%d got=%d",
			b.Len(), len(results),
		))
	}

	var failures []Failure
	for i, res := range results {
		if res.OK {
			continue
		}

		// The device echoes device and io; fall back to what was sent.
		dev, io := res.Device, res.IO
		if io == "" {
			dev, io = b.items[i].Device, b.items[i].IO
		}
		failures = append(failures, Failure{
			Device:     dev,
			DeviceName: w.deviceName(dev),
			IO:         io,
			Message:    res.Message,
		})
	}

	w.metrics.ObserveWrites(len(results)-len(failures), len(failures))

	if len(failures) > 0 {
		return &PartialWriteError{Failures: failures}
	}
	return nil
}

func (w *Writer) deviceName(id int) string {
	if w.names == nil {
		return fmt.Sprintf("%d", id)
	}
	return w.names.DeviceName(id)
}

// internal/cli/output.go
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/session"
)

// valueRow is one printed IO value.
type valueRow struct {
	Device    string `json:"device"`
	DeviceID  int    `json:"device_id"`
	IO        string `json:"io"`
	Direction string `json:"direction"`
	Value     string `json:"value"`
	Editing   bool   `json:"editing,omitempty"`
}

// ioRow is one catalogue entry with its accepted range.
type ioRow struct {
	Device     string `json:"device"`
	DeviceID   int    `json:"device_id"`
	IO         string `json:"io"`
	Direction  string `json:"direction"`
	ByteOffset int    `json:"byte_offset"`
	ByteLength int    `json:"byte_length"`
	Bit        *int   `json:"bit,omitempty"`
	ByteOrder  string `json:"byte_order"`
	Signed     bool   `json:"signed"`
	Min        string `json:"min"`
	Max        string `json:"max"`
}

func valueRows(s *session.Session, keep func(image.IoDescriptor) bool) []valueRow {
	reg := s.Registry()
	var rows []valueRow
	for _, e := range s.Values() {
		d, ok := reg.Lookup(e.Ref)
		if !ok || (keep != nil && !keep(d)) {
			continue
		}
		rows = append(rows, valueRow{
			Device:    reg.DeviceName(e.Ref.Device),
			DeviceID:  e.Ref.Device,
			IO:        e.Ref.Name,
			Direction: d.Direction.String(),
			Value:     e.Value.String(),
			Editing:   e.Locked,
		})
	}
	return rows
}

func catalogueRows(s *session.Session) ([]ioRow, error) {
	reg := s.Registry()
	var rows []ioRow
	var err error
	reg.Each(func(ref image.Ref, d image.IoDescriptor) {
		if err != nil {
			return
		}
		row := ioRow{
			Device:     reg.DeviceName(ref.Device),
			DeviceID:   ref.Device,
			IO:         ref.Name,
			Direction:  d.Direction.String(),
			ByteOffset: d.ByteOffset,
			ByteLength: d.ByteLength,
			ByteOrder:  d.ByteOrder.String(),
			Signed:     d.Signed,
		}
		if d.IsBit() {
			bit := d.BitOffset
			row.Bit = &bit
		}
		row.Min, row.Max, err = s.Bounds(ref)
		rows = append(rows, row)
	})
	return rows, err
}

func printValues(w io.Writer, format string, rows []valueRow) error {
	if format == "json" {
		return printJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tIO\tDIR\tVALUE")
	for _, r := range rows {
		value := r.Value
		if r.Editing {
			value += " (editing)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Device, r.IO, r.Direction, value)
	}
	return tw.Flush()
}

func printCatalogue(w io.Writer, format string, rows []ioRow) error {
	if format == "json" {
		return printJSON(w, rows)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tID\tIO\tDIR\tOFFSET\tLEN\tBIT\tORDER\tRANGE")
	for _, r := range rows {
		bit := "-"
		if r.Bit != nil {
			bit = strconv.Itoa(*r.Bit)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\t%d\t%s\t%s\t%s..%s\n",
			r.Device, r.DeviceID, r.IO, r.Direction, r.ByteOffset, r.ByteLength, bit, r.ByteOrder, r.Min, r.Max)
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// lockedWriter serializes output of concurrent watchers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

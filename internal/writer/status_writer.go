// internal/writer/status_writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tamzrod/procimg-watch/internal/status"
)

// StatusWriter is the delivery-only contract for session status.
// It receives a snapshot and publishes it.
type StatusWriter interface {
	WriteStatus(s status.Snapshot) error
}

// registerWriter is the status endpoint as seen by the status writer.
type registerWriter interface {
	WriteRegisters(address uint16, values []uint16) error
}

// StatusPlan places one connection's status block in status memory.
type StatusPlan struct {
	Name         string // published in the name slots
	BaseRegister uint16
}

var liveSlotNames = [status.SlotLiveCount]string{
	status.SlotHealthCode:     "health",
	status.SlotFailures:       "failures",
	status.SlotSecondsInError: "seconds_in_error",
	status.SlotModeFlags:      "mode",
}

// deviceStatusWriter publishes a status block to holding registers.
type deviceStatusWriter struct {
	plan StatusPlan
	cli  registerWriter
	now  func() time.Time

	needFull bool
	last     [status.SlotLiveCount]uint16
	nameRegs []uint16
}

// NewDeviceStatusWriter builds a status writer for one connection.
func NewDeviceStatusWriter(plan StatusPlan, cli registerWriter) StatusWriter {
	return newDeviceStatusWriter(plan, cli, time.Now)
}

func newDeviceStatusWriter(plan StatusPlan, cli registerWriter, now func() time.Time) *deviceStatusWriter {
	return &deviceStatusWriter{
		plan:     plan,
		cli:      cli,
		now:      now,
		needFull: true, // full re-assert on first successful write
		nameRegs: encodeNameRegs(plan.Name),
	}
}

// WriteStatus delivers a snapshot into status memory.
// On any write failure, the next call re-asserts the full block.
func (sw *deviceStatusWriter) WriteStatus(s status.Snapshot) error {
	if sw.cli == nil {
		return errors.New("status writer: no endpoint")
	}

	live := status.LiveRegisters(s, sw.now())

	// ------------------------------------------------------------
	// Full block write (identity re-assert)
	// ------------------------------------------------------------
	if sw.needFull {
		if err := sw.cli.WriteRegisters(sw.plan.BaseRegister, sw.fullBlockRegs(live)); err != nil {
			return fmt.Errorf("status writer: full block write failed: %w", err)
		}
		sw.needFull = false
		sw.last = live
		return nil
	}

	var errs []string
	for slot, v := range live {
		if sw.last[slot] == v {
			continue
		}
		if err := sw.cli.WriteRegisters(sw.plan.BaseRegister+uint16(slot), []uint16{v}); err != nil {
			errs = append(errs, fmt.Sprintf("slot%d %s write failed: %v", slot, liveSlotNames[slot], err))
			continue
		}
		sw.last[slot] = v
	}

	if len(errs) > 0 {
		sw.needFull = true
		return errors.New("status writer: " + strings.Join(errs, " | "))
	}
	return nil
}

func (sw *deviceStatusWriter) fullBlockRegs(live [status.SlotLiveCount]uint16) []uint16 {
	regs := make([]uint16, status.SlotsPerBlock)
	copy(regs, live[:])

	// Reserved slots stay zero.

	copy(regs[status.SlotNameStart:], sw.nameRegs)
	return regs
}

// encodeNameRegs packs up to 16 ASCII characters into 8 registers,
// two characters per register, high byte first.
func encodeNameRegs(name string) []uint16 {
	out := make([]uint16, status.SlotNameSlots)

	b := []byte(name)
	if len(b) > status.NameMaxChars {
		b = b[:status.NameMaxChars]
	}

	// sanitize to printable ASCII
	for i := range b {
		if b[i] < 0x20 || b[i] > 0x7E {
			b[i] = '?'
		}
	}

	for i := 0; i < status.NameMaxChars; i += 2 {
		var hi, lo byte
		if i < len(b) {
			hi = b[i]
		}
		if i+1 < len(b) {
			lo = b[i+1]
		}
		out[i/2] = uint16(hi)<<8 | uint16(lo)
	}
	return out
}

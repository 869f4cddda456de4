// internal/writer/status_writer_test.go
package writer

import (
	"errors"
	"testing"
	"time"

	"github.com/tamzrod/procimg-watch/internal/status"
)

type regWrite struct {
	addr uint16
	regs []uint16
}

type fakeRegisterWriter struct {
	writes []regWrite
	err    error
}

func (f *fakeRegisterWriter) WriteRegisters(address uint16, values []uint16) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, regWrite{addr: address, regs: append([]uint16(nil), values...)})
	return nil
}

func (f *fakeRegisterWriter) last() regWrite {
	return f.writes[len(f.writes)-1]
}

var statusNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return statusNow }

func TestNameWrittenOnFullAssertOnly(t *testing.T) {
	cli := &fakeRegisterWriter{}
	plan := StatusPlan{Name: "revpi-01", BaseRegister: 100}
	sw := newDeviceStatusWriter(plan, cli, fixedClock)

	// ---- first write: FULL ASSERT ----
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthOK, AutoRefresh: true}); err != nil {
		t.Fatalf("initial full assert failed: %v", err)
	}

	w := cli.last()
	if w.addr != 100 {
		t.Fatalf("unexpected full block addr: got=%d want=100", w.addr)
	}
	if len(w.regs) != status.SlotsPerBlock {
		t.Fatalf("expected full block write (%d regs), got %d", status.SlotsPerBlock, len(w.regs))
	}
	if w.regs[status.SlotModeFlags] != status.ModeAutoRefresh {
		t.Fatalf("mode slot mismatch: got=%d want=%d", w.regs[status.SlotModeFlags], status.ModeAutoRefresh)
	}

	expectedNameRegs := encodeNameRegs(plan.Name)
	for i := 0; i < status.SlotNameSlots; i++ {
		slot := status.SlotNameStart + i
		if w.regs[slot] != expectedNameRegs[i] {
			t.Fatalf("name slot %d mismatch: got=%d want=%d", slot, w.regs[slot], expectedNameRegs[i])
		}
	}

	// ---- second write: INCREMENTAL ONLY ----
	second := status.Snapshot{
		Health:      status.HealthError,
		Failures:    1,
		AutoRefresh: true,
		ErrorSince:  statusNow.Add(-time.Second),
	}
	before := len(cli.writes)
	if err := sw.WriteStatus(second); err != nil {
		t.Fatalf("incremental write failed: %v", err)
	}

	// health, failures, seconds_in_error changed; mode did not
	if got := len(cli.writes) - before; got != 3 {
		t.Fatalf("expected 3 single-slot writes, got %d", got)
	}
	for _, w := range cli.writes[before:] {
		if len(w.regs) != 1 {
			t.Fatalf("name should not be rewritten on incremental update")
		}
	}
}

func TestSecondsInErrorResetOnRecovery(t *testing.T) {
	cli := &fakeRegisterWriter{}
	plan := StatusPlan{Name: "revpi-01", BaseRegister: 40}
	sw := newDeviceStatusWriter(plan, cli, fixedClock)

	errSnap := status.Snapshot{
		Health:     status.HealthError,
		Failures:   3,
		ErrorSince: statusNow.Add(-3 * time.Second),
	}
	if err := sw.WriteStatus(errSnap); err != nil {
		t.Fatalf("error snapshot write failed: %v", err)
	}

	// recovery keeps the failure count until the next fetch resets it
	okSnap := status.Snapshot{Health: status.HealthOK, Failures: 3}
	before := len(cli.writes)
	if err := sw.WriteStatus(okSnap); err != nil {
		t.Fatalf("recovery snapshot write failed: %v", err)
	}

	if got := len(cli.writes) - before; got != 2 {
		t.Fatalf("expected 2 single-slot writes, got %d", got)
	}

	w := cli.last()
	expectedAddr := plan.BaseRegister + status.SlotSecondsInError
	if w.addr != expectedAddr {
		t.Fatalf("unexpected write addr: got=%d want=%d", w.addr, expectedAddr)
	}
	if w.regs[0] != 0 {
		t.Fatalf("seconds_in_error not reset: got=%d want=0", w.regs[0])
	}
}

func TestFailureForcesFullReassert(t *testing.T) {
	cli := &fakeRegisterWriter{}
	sw := newDeviceStatusWriter(StatusPlan{Name: "a"}, cli, fixedClock)

	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthOK}); err != nil {
		t.Fatalf("initial full assert failed: %v", err)
	}

	cli.err = errors.New("connection refused")
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthError, Failures: 1}); err == nil {
		t.Fatalf("expected error, got nil")
	}

	cli.err = nil
	if err := sw.WriteStatus(status.Snapshot{Health: status.HealthError, Failures: 1}); err != nil {
		t.Fatalf("write after recovery failed: %v", err)
	}
	if got := len(cli.last().regs); got != status.SlotsPerBlock {
		t.Fatalf("expected full block after failure, got %d regs", got)
	}
}

func TestUnchangedSnapshotWritesNothing(t *testing.T) {
	cli := &fakeRegisterWriter{}
	sw := newDeviceStatusWriter(StatusPlan{Name: "a"}, cli, fixedClock)

	s := status.Snapshot{Health: status.HealthOK, AutoRefresh: true, WriteIntent: true}
	for i := 0; i < 3; i++ {
		if err := sw.WriteStatus(s); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}
	if len(cli.writes) != 1 {
		t.Fatalf("expected only the full block write, got %d writes", len(cli.writes))
	}
}

func TestEncodeNameRegs(t *testing.T) {
	regs := encodeNameRegs("AB\x01CDEFGHIJKLMNOPQRS")

	if regs[0] != uint16('A')<<8|uint16('B') {
		t.Fatalf("first register mismatch: got=%#04x", regs[0])
	}
	if regs[1] != uint16('?')<<8|uint16('C') {
		t.Fatalf("non-printable not sanitized: got=%#04x", regs[1])
	}
	// 16 characters max: "...NO" ends the block, "PQRS" is dropped
	if regs[7] != uint16('N')<<8|uint16('O') {
		t.Fatalf("last register mismatch: got=%#04x", regs[7])
	}
}

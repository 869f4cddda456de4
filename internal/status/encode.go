// internal/status/encode.go
package status

import (
	"fmt"
	"strings"
	"time"
)

// Format renders a snapshot as one status line.
// No IO. No side effects.
func Format(s Snapshot, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "health=%s failures=%d/%d", HealthString(s.Health), s.Failures, s.Threshold)

	mode := "manual"
	if s.AutoRefresh {
		mode = "auto"
	}
	if s.WriteIntent {
		mode += "+write"
	}
	fmt.Fprintf(&b, " mode=%s", mode)

	if !s.ErrorSince.IsZero() {
		fmt.Fprintf(&b, " in_error=%s", now.Sub(s.ErrorSince).Truncate(time.Second))
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, " last_error=%q", s.LastError)
	}
	return b.String()
}

// LiveRegisters derives the live slots of the status block from a snapshot.
// Counters saturate instead of wrapping.
func LiveRegisters(s Snapshot, now time.Time) [SlotLiveCount]uint16 {
	var regs [SlotLiveCount]uint16

	regs[SlotHealthCode] = s.Health
	regs[SlotFailures] = saturate(int64(s.Failures))
	if !s.ErrorSince.IsZero() {
		regs[SlotSecondsInError] = saturate(int64(now.Sub(s.ErrorSince) / time.Second))
	}

	if s.AutoRefresh {
		regs[SlotModeFlags] |= ModeAutoRefresh
	}
	if s.WriteIntent {
		regs[SlotModeFlags] |= ModeWriteIntent
	}
	return regs
}

func saturate(n int64) uint16 {
	switch {
	case n < 0:
		return 0
	case n > 65535:
		return 65535
	default:
		return uint16(n)
	}
}

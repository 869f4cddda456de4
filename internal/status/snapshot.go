// internal/status/snapshot.go
package status

import "time"

// Snapshot is a point-in-time view of the failure governor.
// It contains no logic.
type Snapshot struct {
	Health      uint16
	Failures    int
	Threshold   int
	LastError   string
	ErrorSince  time.Time // zero while healthy
	AutoRefresh bool
	WriteIntent bool
}

// internal/image/descriptor.go
package image

import (
	"fmt"
	"strings"
)

// WholeByte is the BitOffset sentinel for byte-aligned (multi-bit) IOs.
const WholeByte = -1

// MaxByteLength is the widest IO whose value range can be represented.
// Wider IOs are carried in the registry but never decoded or edited.
const MaxByteLength = 22

// ByteOrder selects how a multi-byte IO window is read.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota // default
	BigEndian
)

// ParseByteOrder accepts "little", "big" or "" (little).
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "little":
		return LittleEndian, nil
	case "big":
		return BigEndian, nil
	default:
		return LittleEndian, fmt.Errorf("image: unknown byte order %q", s)
	}
}

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big"
	}
	return "little"
}

// Direction tells inputs from outputs.
type Direction uint8

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// IoDescriptor is the immutable byte layout of one IO inside the process image.
// Geometry only: values live in the store.
type IoDescriptor struct {
	Name       string
	Direction  Direction
	ByteLength int
	ByteOffset int
	BitOffset  int // 0..7, or WholeByte
	ByteOrder  ByteOrder
	Signed     bool
}

// IsBit reports whether the IO is a single bit.
func (d IoDescriptor) IsBit() bool { return d.BitOffset >= 0 }

// End is the first byte offset after the IO window.
func (d IoDescriptor) End() int { return d.ByteOffset + d.ByteLength }

// Representable reports whether the IO value range can be computed.
func (d IoDescriptor) Representable() bool {
	return d.ByteLength > 0 && d.ByteLength <= MaxByteLength
}

func (d IoDescriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("image: io name required")
	}
	if d.ByteLength < 0 {
		return fmt.Errorf("image: io %q: negative byte length %d", d.Name, d.ByteLength)
	}
	if d.ByteOffset < 0 {
		return fmt.Errorf("image: io %q: negative byte offset %d", d.Name, d.ByteOffset)
	}
	if d.BitOffset < WholeByte || d.BitOffset > 7 {
		return fmt.Errorf("image: io %q: bit offset %d out of range", d.Name, d.BitOffset)
	}
	return nil
}

// Ref identifies one IO: names are only unique within a device.
type Ref struct {
	Device int
	Name   string
}

func (r Ref) String() string { return fmt.Sprintf("%d/%s", r.Device, r.Name) }

// internal/codec/codec.go
package codec

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/tamzrod/procimg-watch/internal/image"
)

var (
	// ErrShortBuffer means the IO window reaches past the raw buffer.
	ErrShortBuffer = errors.New("codec: buffer too short for io window")

	// ErrUnrepresentable is returned for byte IOs wider than image.MaxByteLength.
	ErrUnrepresentable = errors.New("codec: io too wide to represent")

	// ErrInvalidValue matches every *RangeError.
	ErrInvalidValue = errors.New("codec: invalid value")
)

// RangeError reports a user value that does not fit its IO.
type RangeError struct {
	IO     string
	Value  string
	Min    *big.Int
	Max    *big.Int
	Reason string
}

func (e *RangeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("codec: io %q: value %s: %s", e.IO, e.Value, e.Reason)
	}
	return fmt.Sprintf("codec: io %q: value %s outside [%s, %s]", e.IO, e.Value, e.Min, e.Max)
}

func (e *RangeError) Is(target error) bool { return target == ErrInvalidValue }

// window returns the IO bytes reordered most significant first.
func window(raw []byte, d image.IoDescriptor) ([]byte, error) {
	if d.End() > len(raw) {
		return nil, fmt.Errorf("%w: io %q needs %d bytes, have %d", ErrShortBuffer, d.Name, d.End(), len(raw))
	}
	be := make([]byte, d.ByteLength)
	copy(be, raw[d.ByteOffset:d.End()])
	if d.ByteOrder == image.LittleEndian {
		reverse(be)
	}
	return be, nil
}

// Decode reads one IO value out of a raw process image.
//
// Bit IOs read the window as an unsigned integer and test BitOffset.
// Byte IOs read the window as a signed or unsigned integer.
func Decode(raw []byte, d image.IoDescriptor) (image.Value, error) {
	be, err := window(raw, d)
	if err != nil {
		return image.Value{}, err
	}

	u := new(big.Int).SetBytes(be)
	if d.IsBit() {
		return image.Bool(u.Bit(d.BitOffset) == 1), nil
	}
	if d.ByteLength > image.MaxByteLength {
		return image.Value{}, fmt.Errorf("%w: io %q is %d bytes", ErrUnrepresentable, d.Name, d.ByteLength)
	}
	if d.Signed && len(be) > 0 && be[0]&0x80 != 0 {
		u.Sub(u, pow2(8*len(be)))
	}
	return image.Int(u), nil
}

// Encode writes v into the IO window of raw. Bit IOs only touch their own bit.
func Encode(raw []byte, d image.IoDescriptor, v image.Value) error {
	be, err := window(raw, d)
	if err != nil {
		return err
	}

	if d.IsBit() {
		if !v.IsBit() {
			return &RangeError{IO: d.Name, Value: v.String(), Reason: "bit io needs a bit value"}
		}
		if d.BitOffset >= 8*d.ByteLength {
			return &RangeError{IO: d.Name, Value: v.String(), Reason: "io is not writable"}
		}
		u := new(big.Int).SetBytes(be)
		var b uint
		if v.Bool() {
			b = 1
		}
		u.SetBit(u, d.BitOffset, b)
		u.FillBytes(be)
	} else {
		if err := Validate(d, v); err != nil {
			return err
		}
		n := v.Int()
		if n.Sign() < 0 {
			n.Add(n, pow2(8*d.ByteLength))
		}
		n.FillBytes(be)
	}

	if d.ByteOrder == image.LittleEndian {
		reverse(be)
	}
	copy(raw[d.ByteOffset:d.End()], be)
	return nil
}

// MaxValue is the largest value a user may enter for the IO.
// It is 0 for zero-width IOs and IOs wider than image.MaxByteLength, bit or
// not, and 1 for other bits.
func MaxValue(d image.IoDescriptor) *big.Int {
	if !d.Representable() {
		return big.NewInt(0)
	}
	if d.IsBit() {
		return big.NewInt(1)
	}
	bits := 8 * d.ByteLength
	if d.Signed {
		bits--
	}
	return new(big.Int).Sub(pow2(bits), big.NewInt(1))
}

// MinValue is the smallest value a user may enter for the IO.
// It is 0 for unsigned, zero-width and unrepresentable IOs.
func MinValue(d image.IoDescriptor) *big.Int {
	if d.IsBit() || !d.Representable() || !d.Signed {
		return big.NewInt(0)
	}
	return new(big.Int).Neg(pow2(8*d.ByteLength - 1))
}

// Validate checks a user value against the IO kind and [MinValue, MaxValue].
func Validate(d image.IoDescriptor, v image.Value) error {
	if d.IsBit() {
		if !v.IsBit() {
			return &RangeError{IO: d.Name, Value: v.String(), Reason: "bit io needs a bit value"}
		}
		return nil
	}
	if v.IsBit() {
		return &RangeError{IO: d.Name, Value: v.String(), Reason: "byte io needs an integer value"}
	}
	if !d.Representable() {
		return &RangeError{IO: d.Name, Value: v.String(), Reason: "io is not writable"}
	}

	lo, hi := MinValue(d), MaxValue(d)
	n := v.Int()
	if n.Cmp(lo) < 0 || n.Cmp(hi) > 0 {
		return &RangeError{IO: d.Name, Value: n.String(), Min: lo, Max: hi}
	}
	return nil
}

func pow2(bits int) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(bits))
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

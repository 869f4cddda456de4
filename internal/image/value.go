// internal/image/value.go
package image

import (
	"fmt"
	"math/big"
	"strings"
)

// Value is a decoded IO value: a bool for bit IOs, an integer otherwise.
// Integers are arbitrary precision because IOs may be up to 22 bytes wide.
// The zero Value is the integer 0.
type Value struct {
	isBit bool
	bit   bool
	n     *big.Int
}

// Bool builds a bit value.
func Bool(b bool) Value { return Value{isBit: true, bit: b} }

// Int builds an integer value. The argument is copied.
func Int(n *big.Int) Value {
	if n == nil {
		return Value{}
	}
	return Value{n: new(big.Int).Set(n)}
}

// Int64 builds an integer value from an int64.
func Int64(n int64) Value { return Value{n: big.NewInt(n)} }

// Zero returns the neutral value for a descriptor.
func Zero(d IoDescriptor) Value {
	if d.IsBit() {
		return Bool(false)
	}
	return Int64(0)
}

func (v Value) IsBit() bool { return v.isBit }

// Bool returns the bit; integers are true when non-zero.
func (v Value) Bool() bool {
	if v.isBit {
		return v.bit
	}
	return v.n != nil && v.n.Sign() != 0
}

// Int returns a copy of the integer; bits map to 0/1.
func (v Value) Int() *big.Int {
	if v.isBit {
		if v.bit {
			return big.NewInt(1)
		}
		return big.NewInt(0)
	}
	if v.n == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v.n)
}

// Equal compares kind and value.
func (v Value) Equal(o Value) bool {
	if v.isBit != o.isBit {
		return false
	}
	if v.isBit {
		return v.bit == o.bit
	}
	return v.Int().Cmp(o.Int()) == 0
}

func (v Value) String() string {
	if v.isBit {
		if v.bit {
			return "true"
		}
		return "false"
	}
	return v.Int().String()
}

// ParseValue parses user input for the given IO. Range is not checked here.
func ParseValue(d IoDescriptor, s string) (Value, error) {
	s = strings.TrimSpace(s)
	if d.IsBit() {
		switch strings.ToLower(s) {
		case "1", "true", "on":
			return Bool(true), nil
		case "0", "false", "off":
			return Bool(false), nil
		}
		return Value{}, fmt.Errorf("image: io %q: %q is not a bit value", d.Name, s)
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return Value{}, fmt.Errorf("image: io %q: %q is not an integer", d.Name, s)
	}
	return Value{n: n}, nil
}

// internal/transport/xmlrpc/parse.go
package xmlrpc

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/nlpodyssey/gopickle/pickle"

	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/transport"
)

// parseDevices reads [[position, name], ...].
func parseDevices(v interface{}) ([]transport.Device, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("transport xmlrpc: device list: want array, got %T", v)
	}
	out := make([]transport.Device, 0, len(list))
	for i, e := range list {
		pair, ok := e.([]interface{})
		if !ok || len(pair) < 2 {
			return nil, fmt.Errorf("transport xmlrpc: device %d: want [position, name]", i)
		}
		id, err := asInt(pair[0])
		if err != nil {
			return nil, fmt.Errorf("transport xmlrpc: device %d: %w", i, err)
		}
		name, _ := pair[1].(string)
		out = append(out, transport.Device{ID: id, Name: name})
	}
	return out, nil
}

// parseCatalogue reads {position: [[name, byteLength, byteOffset, label,
// bitOffset, byteOrder?, signed?], ...], ...}, either as a native struct or
// as the pickled binary the daemon serves.
func parseCatalogue(v interface{}) (map[int][]image.IoDescriptor, error) {
	switch t := v.(type) {
	case string, []byte:
		raw, err := asBytes(t)
		if err != nil {
			return nil, err
		}
		native, err := unpickle(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := native.(map[string]interface{}); !ok {
			return nil, fmt.Errorf("pickled catalogue: want dict, got %T", native)
		}
		return parseCatalogue(native)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[int][]image.IoDescriptor, len(t))
		for _, k := range keys {
			dev, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("device key %q: %w", k, err)
			}
			entries, ok := t[k].([]interface{})
			if !ok {
				return nil, fmt.Errorf("device %d: want array of ios, got %T", dev, t[k])
			}
			ios := make([]image.IoDescriptor, 0, len(entries))
			for i, e := range entries {
				d, err := parseDescriptor(e)
				if err != nil {
					return nil, fmt.Errorf("device %d io %d: %w", dev, i, err)
				}
				ios = append(ios, d)
			}
			out[dev] = ios
		}
		return out, nil
	default:
		return nil, fmt.Errorf("want struct, got %T", v)
	}
}

func parseDescriptor(v interface{}) (image.IoDescriptor, error) {
	f, ok := v.([]interface{})
	if !ok || len(f) < 5 {
		return image.IoDescriptor{}, errors.New("want [name, byteLength, byteOffset, label, bitOffset, ...]")
	}

	var d image.IoDescriptor
	var err error
	if d.Name, ok = f[0].(string); !ok {
		return d, fmt.Errorf("name: want string, got %T", f[0])
	}
	if d.ByteLength, err = asInt(f[1]); err != nil {
		return d, fmt.Errorf("byte length: %w", err)
	}
	if d.ByteOffset, err = asInt(f[2]); err != nil {
		return d, fmt.Errorf("byte offset: %w", err)
	}
	if d.BitOffset, err = asInt(f[4]); err != nil {
		return d, fmt.Errorf("bit offset: %w", err)
	}
	if d.BitOffset < 0 {
		d.BitOffset = image.WholeByte
	}
	if len(f) > 5 {
		s, _ := f[5].(string)
		if d.ByteOrder, err = image.ParseByteOrder(s); err != nil {
			return d, err
		}
	}
	if len(f) > 6 {
		d.Signed, _ = f[6].(bool)
	}
	return d, nil
}

// parseSetValueResult reads [device, io, status, message].
func parseSetValueResult(v interface{}) (transport.WriteResult, error) {
	f, ok := v.([]interface{})
	if !ok || len(f) < 3 {
		return transport.WriteResult{}, fmt.Errorf("set value result: want [device, io, status, message], got %v", v)
	}
	dev, err := asInt(f[0])
	if err != nil {
		return transport.WriteResult{}, fmt.Errorf("set value result: %w", err)
	}
	res := transport.WriteResult{Device: dev}
	res.IO, _ = f[1].(string)
	res.OK, _ = f[2].(bool)
	if len(f) > 3 {
		res.Message = fmt.Sprint(f[3])
	}
	return res, nil
}

// parseMulticallEntry unwraps one system.multicall entry: a one element array
// holding the result, or a fault struct.
func parseMulticallEntry(v interface{}) (transport.WriteResult, error) {
	switch t := v.(type) {
	case []interface{}:
		if len(t) != 1 {
			return transport.WriteResult{}, fmt.Errorf("multicall entry: want 1 value, got %d", len(t))
		}
		return parseSetValueResult(t[0])
	case map[string]interface{}:
		return transport.WriteResult{}, fmt.Errorf("fault %v: %v", t["faultCode"], t["faultString"])
	default:
		return transport.WriteResult{}, fmt.Errorf("multicall entry: unexpected %T", v)
	}
}

// encodeValue maps a value onto an xml-rpc scalar.
func encodeValue(v image.Value) (interface{}, error) {
	if v.IsBit() {
		return v.Bool(), nil
	}
	n := v.Int()
	if !n.IsInt64() || n.Int64() > math.MaxInt32 || n.Int64() < math.MinInt32 {
		return nil, fmt.Errorf("value %s exceeds the xml-rpc integer range", n)
	}
	return int(n.Int64()), nil
}

func asInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int64:
		return int(t), nil
	case int:
		return t, nil
	case int32:
		return int(t), nil
	case *big.Int:
		if !t.IsInt64() {
			return 0, fmt.Errorf("integer %s out of range", t)
		}
		return int(t.Int64()), nil
	case string:
		return strconv.Atoi(t)
	default:
		return 0, fmt.Errorf("want integer, got %T", v)
	}
}

// asBytes returns the payload of a <base64> value. kolo/xmlrpc hands base64
// to an interface{} reply as the encoded text; Python wraps it every 76
// characters.
func asBytes(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(t), ""))
		if err != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("want base64, got %T", v)
	}
}

// Containers as returned by gopickle.
type (
	pickledDict interface {
		Keys() []interface{}
		Get(key interface{}) (interface{}, bool)
	}
	pickledSeq interface {
		Len() int
		Get(i int) interface{}
	}
)

// unpickle loads a pickled catalogue and maps it onto the shapes kolo/xmlrpc
// produces for native values: dicts become map[string]interface{} keyed by
// the decimal key, lists and tuples become []interface{}.
func unpickle(data []byte) (interface{}, error) {
	v, err := pickle.Loads(string(data))
	if err != nil {
		return nil, fmt.Errorf("unpickle catalogue: %w", err)
	}
	return fromPickle(v)
}

func fromPickle(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case pickledDict:
		out := make(map[string]interface{})
		for _, k := range t.Keys() {
			key, err := asInt(k)
			if err != nil {
				return nil, fmt.Errorf("pickled dict key: %w", err)
			}
			val, _ := t.Get(k)
			if out[strconv.Itoa(key)], err = fromPickle(val); err != nil {
				return nil, err
			}
		}
		return out, nil
	case pickledSeq:
		out := make([]interface{}, t.Len())
		for i := range out {
			e, err := fromPickle(t.Get(i))
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	case *big.Int:
		return asInt(t)
	default:
		return v, nil
	}
}

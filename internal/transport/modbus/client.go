// internal/transport/modbus/client.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/procimg-watch/internal/codec"
	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/transport"
)

// MaxReadRegisters is the Modbus limit for one holding-register read.
const MaxReadRegisters = 125

// registerClient is the part of modbus.Client this transport needs.
type registerClient interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
}

type connHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// Config describes one Modbus endpoint that mirrors a process image onto
// holding registers, two image bytes per register, high byte first.
type Config struct {
	// Mode is "tcp" or "rtu".
	Mode string

	// Address is host:port for tcp and the serial device for rtu.
	Address string
	SlaveID byte
	Timeout time.Duration

	// Serial line settings, rtu only.
	BaudRate int
	DataBits int
	Parity   string
	StopBits int

	BaseRegister uint16
	ImageLength  int

	// Modbus has no catalogue call; the layout comes from configuration.
	Devices []transport.Device
	Inputs  map[int][]image.IoDescriptor
	Outputs map[int][]image.IoDescriptor

	// AccessLevel is reported as the write capability.
	AccessLevel int
}

// Client implements transport.Client over Modbus.
// It serializes requests; goburrow handlers are not safe for concurrent use.
type Client struct {
	mu      sync.Mutex
	cfg     Config
	handler connHandler
	regs    registerClient
}

var _ transport.Client = (*Client)(nil)

// Dial connects to the endpoint.
func Dial(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("transport modbus: address required")
	}
	if cfg.ImageLength <= 0 {
		return nil, errors.New("transport modbus: image length must be > 0")
	}

	var h connHandler
	switch cfg.Mode {
	case "", "tcp":
		th := modbus.NewTCPClientHandler(cfg.Address)
		th.Timeout = cfg.Timeout
		th.SlaveId = cfg.SlaveID
		h = th
	case "rtu":
		rh := modbus.NewRTUClientHandler(cfg.Address)
		rh.Timeout = cfg.Timeout
		rh.SlaveId = cfg.SlaveID
		if cfg.BaudRate > 0 {
			rh.BaudRate = cfg.BaudRate
		}
		if cfg.DataBits > 0 {
			rh.DataBits = cfg.DataBits
		}
		if cfg.Parity != "" {
			rh.Parity = cfg.Parity
		}
		if cfg.StopBits > 0 {
			rh.StopBits = cfg.StopBits
		}
		h = rh
	default:
		return nil, fmt.Errorf("transport modbus: unsupported mode %q", cfg.Mode)
	}

	if err := h.Connect(); err != nil {
		return nil, transport.Wrap("connect", err)
	}

	c := newClient(cfg, modbus.NewClient(h))
	c.handler = h
	return c, nil
}

func newClient(cfg Config, regs registerClient) *Client {
	return &Client{cfg: cfg, regs: regs}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return nil
	}
	return c.handler.Close()
}

// ---- catalogue ----

func (c *Client) Devices(ctx context.Context) ([]transport.Device, error) {
	return append([]transport.Device(nil), c.cfg.Devices...), nil
}

func (c *Client) InputDescriptors(ctx context.Context) (map[int][]image.IoDescriptor, error) {
	return c.cfg.Inputs, nil
}

func (c *Client) OutputDescriptors(ctx context.Context) (map[int][]image.IoDescriptor, error) {
	return c.cfg.Outputs, nil
}

func (c *Client) AccessLevel(ctx context.Context) (int, error) {
	return c.cfg.AccessLevel, nil
}

// ---- process image ----

// FetchProcessImage reads the whole image in chunks of at most
// MaxReadRegisters registers.
func (c *Client) FetchProcessImage(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	regCount := (c.cfg.ImageLength + 1) / 2
	raw, err := c.readRegisters(ctx, 0, regCount)
	if err != nil {
		return nil, err
	}
	return raw[:c.cfg.ImageLength], nil
}

// readRegisters reads qty registers starting at offset from BaseRegister.
func (c *Client) readRegisters(ctx context.Context, offset, qty int) ([]byte, error) {
	out := make([]byte, 0, 2*qty)
	for done := 0; done < qty; {
		if err := ctx.Err(); err != nil {
			return nil, transport.Wrap("read holding registers", err)
		}

		n := qty - done
		if n > MaxReadRegisters {
			n = MaxReadRegisters
		}
		addr := c.cfg.BaseRegister + uint16(offset+done)

		b, err := c.regs.ReadHoldingRegisters(addr, uint16(n))
		if err != nil {
			return nil, transport.Wrap("read holding registers", err)
		}
		if len(b) != 2*n {
			return nil, transport.Wrap("read holding registers", fmt.Errorf(
				"short response at register %d: want=%d bytes got=%d", addr, 2*n, len(b),
			))
		}
		out = append(out, b...)
		done += n
	}
	return out, nil
}

// ---- writes ----

// SetValue writes one output. A value the device refuses (Modbus exception,
// range error, unknown io) yields false without an error.
func (c *Client) SetValue(ctx context.Context, device int, io string, v image.Value) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.writeOutput(ctx, device, io, v)
	var rej *rejection
	if errors.As(err, &rej) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetValues writes every item in order. Each item gets its own result; a
// failing item never stops the others.
func (c *Client) SetValues(ctx context.Context, items []transport.WriteItem) ([]transport.WriteResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]transport.WriteResult, 0, len(items))
	for _, it := range items {
		res := transport.WriteResult{Device: it.Device, IO: it.IO, OK: true}
		if err := c.writeOutput(ctx, it.Device, it.IO, it.Value); err != nil {
			res.OK = false
			res.Message = err.Error()
		}
		out = append(out, res)
	}
	return out, nil
}

// rejection is an item the device or the layout refused.
type rejection struct{ msg string }

func (r *rejection) Error() string { return r.msg }

// writeOutput read-modify-writes the registers covering the io window, so
// neighbouring bytes and bits keep their device values.
func (c *Client) writeOutput(ctx context.Context, device int, io string, v image.Value) error {
	d, ok := c.lookupOutput(device, io)
	if !ok {
		return &rejection{msg: fmt.Sprintf("unknown output %d/%s", device, io)}
	}
	if d.End() > c.cfg.ImageLength {
		return &rejection{msg: fmt.Sprintf("output %q outside the image", io)}
	}

	first := d.ByteOffset / 2
	last := (d.End() + 1) / 2
	buf, err := c.readRegisters(ctx, first, last-first)
	if err != nil {
		return err
	}

	shifted := d
	shifted.ByteOffset -= 2 * first
	if err := codec.Encode(buf, shifted, v); err != nil {
		return &rejection{msg: err.Error()}
	}

	if err := ctx.Err(); err != nil {
		return transport.Wrap("write multiple registers", err)
	}
	addr := c.cfg.BaseRegister + uint16(first)
	if _, err := c.regs.WriteMultipleRegisters(addr, uint16(last-first), buf); err != nil {
		var mbErr *modbus.ModbusError
		if errors.As(err, &mbErr) {
			return &rejection{msg: mbErr.Error()}
		}
		return transport.Wrap("write multiple registers", err)
	}
	return nil
}

func (c *Client) lookupOutput(device int, io string) (image.IoDescriptor, bool) {
	for _, d := range c.cfg.Outputs[device] {
		if d.Name == io {
			return d, true
		}
	}
	return image.IoDescriptor{}, false
}

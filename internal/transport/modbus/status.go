// internal/transport/modbus/status.go
package modbus

import (
	"errors"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/procimg-watch/internal/transport"
)

// MaxWriteRegisters is the Modbus limit for one holding-register write.
const MaxWriteRegisters = 123

// StatusConfig describes a Modbus TCP endpoint that receives status blocks.
type StatusConfig struct {
	Address string // host:port
	SlaveID byte
	Timeout time.Duration
}

// StatusClient writes raw holding registers to a status endpoint.
type StatusClient struct {
	mu      sync.Mutex
	handler connHandler
	regs    registerClient
}

// DialStatus connects to a status endpoint.
func DialStatus(cfg StatusConfig) (*StatusClient, error) {
	if cfg.Address == "" {
		return nil, errors.New("transport modbus: status address required")
	}

	h := modbus.NewTCPClientHandler(cfg.Address)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.SlaveID
	if err := h.Connect(); err != nil {
		return nil, transport.Wrap("connect", err)
	}

	return &StatusClient{handler: h, regs: modbus.NewClient(h)}, nil
}

// WriteRegisters writes values starting at address.
func (c *StatusClient) WriteRegisters(address uint16, values []uint16) error {
	if len(values) == 0 {
		return nil
	}
	if len(values) > MaxWriteRegisters {
		return errors.New("transport modbus: too many registers in one write")
	}

	buf := make([]byte, 2*len(values))
	for i, v := range values {
		buf[2*i] = byte(v >> 8)
		buf[2*i+1] = byte(v)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.regs.WriteMultipleRegisters(address, uint16(len(values)), buf); err != nil {
		return transport.Wrap("write registers", err)
	}
	return nil
}

func (c *StatusClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler == nil {
		return nil
	}
	return c.handler.Close()
}

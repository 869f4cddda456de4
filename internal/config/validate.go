// internal/config/validate.go
package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/status"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// WATCH / LOG
	// ------------------------------------------------------------

	if cfg.Watch.IntervalMs < 0 {
		return fmt.Errorf("watch: interval_ms must be >= 0")
	}
	if cfg.Watch.FailureThreshold < 0 {
		return fmt.Errorf("watch: failure_threshold must be >= 0")
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", cfg.Log.Format)
	}

	// ------------------------------------------------------------
	// CONNECTIONS
	// ------------------------------------------------------------

	if len(cfg.Connections) == 0 {
		return fmt.Errorf("at least one connection required")
	}

	seen := make(map[string]struct{})
	for _, c := range cfg.Connections {
		if c.Name == "" {
			return fmt.Errorf("connection: name required")
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("connection %q: duplicate name", c.Name)
		}
		seen[c.Name] = struct{}{}

		if c.Address == "" {
			return fmt.Errorf("connection %q: address required", c.Name)
		}
		if c.Port < 0 || c.Port > 65535 {
			return fmt.Errorf("connection %q: port %d out of range", c.Name, c.Port)
		}
		if c.TimeoutMs < 0 {
			return fmt.Errorf("connection %q: timeout_ms must be >= 0", c.Name)
		}

		switch strings.ToLower(c.Transport) {
		case "", TransportXMLRPC:
			if c.Modbus != nil {
				return fmt.Errorf("connection %q: modbus section set for transport %q", c.Name, c.Transport)
			}
		case TransportModbus:
			if c.Modbus == nil {
				return fmt.Errorf("connection %q: transport modbus requires a modbus section", c.Name)
			}
			if err := validateModbus(c.Modbus); err != nil {
				return fmt.Errorf("connection %q: %w", c.Name, err)
			}
		default:
			return fmt.Errorf("connection %q: unknown transport %q", c.Name, c.Transport)
		}
	}

	return validateStatus(cfg.Connections)
}

// validateStatus checks the optional status blocks.
// Blocks sharing an endpoint and slave id must not overlap.
func validateStatus(conns []ConnectionConfig) error {
	type target struct {
		endpoint string
		slaveID  uint8
	}
	type block struct {
		start int
		end   int // exclusive
		conn  string
	}

	placed := make(map[target][]block)
	for _, c := range conns {
		st := c.Status
		if st == nil {
			continue
		}
		if st.Endpoint == "" {
			return fmt.Errorf("connection %q: status: endpoint required", c.Name)
		}
		if _, _, err := net.SplitHostPort(st.Endpoint); err != nil {
			return fmt.Errorf("connection %q: status: endpoint must be host:port: %w", c.Name, err)
		}
		if st.TimeoutMs < 0 {
			return fmt.Errorf("connection %q: status: timeout_ms must be >= 0", c.Name)
		}

		start := int(st.BaseRegister)
		end := start + status.SlotsPerBlock
		if end > 65536 {
			return fmt.Errorf("connection %q: status: block %d-%d exceeds the register space", c.Name, start, end-1)
		}

		slaveID := st.SlaveID
		if slaveID == 0 {
			slaveID = DefaultModbusSlaveID
		}
		key := target{endpoint: st.Endpoint, slaveID: slaveID}
		for _, b := range placed[key] {
			if start < b.end && b.start < end {
				return fmt.Errorf(
					"connection %q: status: registers %d-%d overlap connection %q registers %d-%d",
					c.Name, start, end-1, b.conn, b.start, b.end-1,
				)
			}
		}
		placed[key] = append(placed[key], block{start: start, end: end, conn: c.Name})
	}
	return nil
}

func validateModbus(m *ModbusConfig) error {
	type span struct {
		start int
		end   int // exclusive
		io    string
	}

	switch m.Mode {
	case "", "tcp", "rtu":
	default:
		return fmt.Errorf("modbus: unknown mode %q", m.Mode)
	}
	if m.ImageLength <= 0 {
		return fmt.Errorf("modbus: image_length must be > 0")
	}
	if m.AccessLevel < 0 || m.AccessLevel > 4 {
		return fmt.Errorf("modbus: access_level %d out of range 0..4", m.AccessLevel)
	}
	if len(m.Devices) == 0 {
		return fmt.Errorf("modbus: at least one device required")
	}

	// ------------------------------------------------------------
	// IMAGE GEOMETRY
	// ------------------------------------------------------------

	// Whole-byte IOs own their bytes; bit IOs may share a byte.
	var spans []span
	ids := make(map[int]struct{})

	for _, d := range m.Devices {
		if _, dup := ids[d.ID]; dup {
			return fmt.Errorf("modbus: duplicate device id %d", d.ID)
		}
		ids[d.ID] = struct{}{}

		names := make(map[string]struct{})
		all := append(append([]IOLayout(nil), d.Inputs...), d.Outputs...)
		for _, io := range all {
			if io.Name == "" {
				return fmt.Errorf("modbus: device %d: io name required", d.ID)
			}
			if _, dup := names[io.Name]; dup {
				return fmt.Errorf("modbus: device %d: duplicate io %q", d.ID, io.Name)
			}
			names[io.Name] = struct{}{}

			if io.ByteLength <= 0 || io.ByteOffset < 0 {
				return fmt.Errorf("modbus: io %q: byte_length must be > 0 and byte_offset >= 0", io.Name)
			}
			if io.ByteOffset+io.ByteLength > m.ImageLength {
				return fmt.Errorf(
					"modbus: io %q: bytes %d-%d outside image_length %d",
					io.Name, io.ByteOffset, io.ByteOffset+io.ByteLength-1, m.ImageLength,
				)
			}
			if io.Bit != nil && (*io.Bit < 0 || *io.Bit >= 8*io.ByteLength) {
				return fmt.Errorf("modbus: io %q: bit %d out of range", io.Name, *io.Bit)
			}
			if _, err := image.ParseByteOrder(io.ByteOrder); err != nil {
				return fmt.Errorf("modbus: io %q: %w", io.Name, err)
			}

			if io.Bit != nil {
				continue
			}

			start, end := io.ByteOffset, io.ByteOffset+io.ByteLength
			for _, s := range spans {
				// overlap check (half-open)
				if start < s.end && s.start < end {
					return fmt.Errorf(
						"modbus: image overlap: io %q bytes %d-%d overlaps io %q bytes %d-%d",
						io.Name, start, end-1, s.io, s.start, s.end-1,
					)
				}
			}
			spans = append(spans, span{start: start, end: end, io: io.Name})
		}
	}

	return nil
}

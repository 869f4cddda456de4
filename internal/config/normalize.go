// internal/config/normalize.go
package config

import "strings"

const (
	DefaultPort             = 55123
	DefaultModbusPort       = 502
	DefaultTimeoutMs        = 5000
	DefaultIntervalMs       = 200
	DefaultFailureThreshold = 25
	DefaultModbusSlaveID    = 1
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Watch.IntervalMs == 0 {
		cfg.Watch.IntervalMs = DefaultIntervalMs
	}
	if cfg.Watch.FailureThreshold == 0 {
		cfg.Watch.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Watch.ConfirmWrites == nil {
		confirm := true
		cfg.Watch.ConfirmWrites = &confirm
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	for i := range cfg.Connections {
		c := &cfg.Connections[i]

		c.Transport = strings.ToLower(c.Transport)
		if c.Transport == "" {
			c.Transport = TransportXMLRPC
		}
		if c.TimeoutMs == 0 {
			c.TimeoutMs = DefaultTimeoutMs
		}
		if st := c.Status; st != nil {
			if st.SlaveID == 0 {
				st.SlaveID = DefaultModbusSlaveID
			}
			if st.TimeoutMs == 0 {
				st.TimeoutMs = DefaultTimeoutMs
			}
		}

		if c.Transport != TransportModbus {
			if c.Port == 0 {
				c.Port = DefaultPort
			}
			continue
		}

		// Modbus: rtu addresses a serial device, no port.
		m := c.Modbus
		if m.Mode == "" {
			m.Mode = "tcp"
		}
		if m.Mode == "tcp" && c.Port == 0 {
			c.Port = DefaultModbusPort
		}
		if m.SlaveID == 0 {
			m.SlaveID = DefaultModbusSlaveID
		}
	}
}

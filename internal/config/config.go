// internal/config/config.go
package config

import "time"

type Config struct {
	Watch       WatchConfig        `yaml:"watch" toml:"watch"`
	Log         LogConfig          `yaml:"log" toml:"log"`
	Metrics     MetricsConfig      `yaml:"metrics" toml:"metrics"`
	Connections []ConnectionConfig `yaml:"connections" toml:"connections"`
}

// ---- WATCH ----

type WatchConfig struct {
	IntervalMs       int   `yaml:"interval_ms" toml:"interval_ms"`
	FailureThreshold int   `yaml:"failure_threshold" toml:"failure_threshold"`
	ConfirmWrites    *bool `yaml:"confirm_writes" toml:"confirm_writes"` // default true
}

func (w WatchConfig) Interval() time.Duration {
	return time.Duration(w.IntervalMs) * time.Millisecond
}

// ---- LOG / METRICS ----

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug|info|warn|error
	Format string `yaml:"format" toml:"format"` // text|json
}

type MetricsConfig struct {
	Listen string `yaml:"listen" toml:"listen"` // empty = disabled
}

// ---- CONNECTION ----

const (
	TransportXMLRPC = "xmlrpc"
	TransportModbus = "modbus"
)

type ConnectionConfig struct {
	Name      string `yaml:"name" toml:"name"`
	Address   string `yaml:"address" toml:"address"`
	Port      int    `yaml:"port" toml:"port"`
	Transport string `yaml:"transport" toml:"transport"`
	TimeoutMs int    `yaml:"timeout_ms" toml:"timeout_ms"`

	// Modbus is required for transport "modbus".
	Modbus *ModbusConfig `yaml:"modbus" toml:"modbus"`

	// Status is optional. When set, watch publishes the connection's
	// health block to it.
	Status *StatusConfig `yaml:"status" toml:"status"`
}

func (c ConnectionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ---- STATUS ----

// StatusConfig places the health block of a connection on a Modbus TCP
// endpoint, one holding register per slot.
type StatusConfig struct {
	Endpoint     string `yaml:"endpoint" toml:"endpoint"` // host:port
	SlaveID      uint8  `yaml:"slave_id" toml:"slave_id"`
	BaseRegister uint16 `yaml:"base_register" toml:"base_register"`
	TimeoutMs    int    `yaml:"timeout_ms" toml:"timeout_ms"`
}

func (s StatusConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// ---- MODBUS LAYOUT ----

type ModbusConfig struct {
	Mode         string `yaml:"mode" toml:"mode"` // tcp|rtu
	SlaveID      uint8  `yaml:"slave_id" toml:"slave_id"`
	BaseRegister uint16 `yaml:"base_register" toml:"base_register"`
	ImageLength  int    `yaml:"image_length" toml:"image_length"`
	AccessLevel  int    `yaml:"access_level" toml:"access_level"`

	// Serial line, rtu only.
	BaudRate int    `yaml:"baud_rate" toml:"baud_rate"`
	DataBits int    `yaml:"data_bits" toml:"data_bits"`
	Parity   string `yaml:"parity" toml:"parity"`
	StopBits int    `yaml:"stop_bits" toml:"stop_bits"`

	Devices []DeviceLayout `yaml:"devices" toml:"devices"`
}

type DeviceLayout struct {
	ID      int        `yaml:"id" toml:"id"`
	Name    string     `yaml:"name" toml:"name"`
	Inputs  []IOLayout `yaml:"inputs" toml:"inputs"`
	Outputs []IOLayout `yaml:"outputs" toml:"outputs"`
}

type IOLayout struct {
	Name       string `yaml:"name" toml:"name"`
	ByteLength int    `yaml:"byte_length" toml:"byte_length"`
	ByteOffset int    `yaml:"byte_offset" toml:"byte_offset"`
	Bit        *int   `yaml:"bit" toml:"bit"` // nil = whole bytes
	ByteOrder  string `yaml:"byte_order" toml:"byte_order"`
	Signed     bool   `yaml:"signed" toml:"signed"`
}

// Connection finds a connection by name.
func (c *Config) Connection(name string) (ConnectionConfig, bool) {
	for _, conn := range c.Connections {
		if conn.Name == name {
			return conn, true
		}
	}
	return ConnectionConfig{}, false
}

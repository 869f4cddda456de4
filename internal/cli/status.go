// internal/cli/status.go
package cli

import (
	"log/slog"

	"github.com/tamzrod/procimg-watch/internal/config"
	"github.com/tamzrod/procimg-watch/internal/status"
	"github.com/tamzrod/procimg-watch/internal/transport/modbus"
	"github.com/tamzrod/procimg-watch/internal/writer"
)

// StatusEndpoint receives status blocks as raw holding registers.
type StatusEndpoint interface {
	WriteRegisters(address uint16, values []uint16) error
	Close() error
}

// StatusDialFunc opens the status endpoint of one connection.
type StatusDialFunc func(st config.StatusConfig) (StatusEndpoint, error)

// DialStatusEndpoint connects to a Modbus TCP status endpoint.
func DialStatusEndpoint(st config.StatusConfig) (StatusEndpoint, error) {
	c, err := modbus.DialStatus(modbus.StatusConfig{
		Address: st.Endpoint,
		SlaveID: st.SlaveID,
		Timeout: st.Timeout(),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// statusPublisher delivers a connection's snapshots to its status block.
// A nil publisher does nothing. Publish failures are logged, never fatal.
type statusPublisher struct {
	dial func() (StatusEndpoint, error)
	plan writer.StatusPlan
	log  *slog.Logger

	ep StatusEndpoint
	sw writer.StatusWriter
}

// openStatusPublisher returns nil when the connection has no status block.
func (o *RootOptions) openStatusPublisher(conn config.ConnectionConfig, log *slog.Logger) *statusPublisher {
	if conn.Status == nil || o.DialStatus == nil {
		return nil
	}
	st := *conn.Status
	return &statusPublisher{
		dial: func() (StatusEndpoint, error) { return o.DialStatus(st) },
		plan: writer.StatusPlan{Name: conn.Name, BaseRegister: st.BaseRegister},
		log:  log,
	}
}

// Publish writes s, dialing the endpoint first if needed.
// A fresh endpoint always gets the full block.
func (p *statusPublisher) Publish(s status.Snapshot) {
	if p == nil {
		return
	}
	if p.ep == nil {
		ep, err := p.dial()
		if err != nil {
			p.log.Warn("status endpoint", "err", err)
			return
		}
		p.ep = ep
		p.sw = writer.NewDeviceStatusWriter(p.plan, ep)
	}
	if err := p.sw.WriteStatus(s); err != nil {
		p.log.Warn("status publish", "err", err)
	}
}

func (p *statusPublisher) Close() {
	if p == nil || p.ep == nil {
		return
	}
	if err := p.ep.Close(); err != nil {
		p.log.Warn("status endpoint close", "err", err)
	}
	p.ep = nil
}

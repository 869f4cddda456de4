// internal/cli/dial.go
package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tamzrod/procimg-watch/internal/config"
	"github.com/tamzrod/procimg-watch/internal/metrics"
	"github.com/tamzrod/procimg-watch/internal/session"
	"github.com/tamzrod/procimg-watch/internal/transport"
	"github.com/tamzrod/procimg-watch/internal/transport/modbus"
	"github.com/tamzrod/procimg-watch/internal/transport/xmlrpc"
)

// DialFunc opens the transport of one configured connection.
type DialFunc func(conn config.ConnectionConfig) (transport.Client, error)

// DialConnection picks the transport named by the connection.
func DialConnection(conn config.ConnectionConfig) (transport.Client, error) {
	switch conn.Transport {
	case config.TransportXMLRPC:
		c, err := xmlrpc.Dial(xmlrpc.Config{
			Address: conn.Address,
			Port:    conn.Port,
			Timeout: conn.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		return c, nil

	case config.TransportModbus:
		m := conn.Modbus
		addr := conn.Address
		if m.Mode == "tcp" {
			addr = net.JoinHostPort(conn.Address, strconv.Itoa(conn.Port))
		}
		devices, inputs, outputs := m.Catalogue()
		c, err := modbus.Dial(modbus.Config{
			Mode:         m.Mode,
			Address:      addr,
			SlaveID:      m.SlaveID,
			Timeout:      conn.Timeout(),
			BaudRate:     m.BaudRate,
			DataBits:     m.DataBits,
			Parity:       m.Parity,
			StopBits:     m.StopBits,
			BaseRegister: m.BaseRegister,
			ImageLength:  m.ImageLength,
			Devices:      devices,
			Inputs:       inputs,
			Outputs:      outputs,
			AccessLevel:  m.AccessLevel,
		})
		if err != nil {
			return nil, err
		}
		return c, nil

	default:
		return nil, fmt.Errorf("unsupported transport %q", conn.Transport)
	}
}

// sessionHooks are the optional callbacks of a watched session.
type sessionHooks struct {
	Metrics  *metrics.Metrics
	OnTrip   func(err error)
	OnReport func(err error)
}

// openSession dials the named connection and opens a session on it.
func (o *RootOptions) openSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, name string, hooks sessionHooks) (*session.Session, error) {
	conn, ok := cfg.Connection(name)
	if !ok {
		return nil, WrapExitError(ExitCommandError, "unknown connection", fmt.Errorf("%q", name))
	}

	log, err := o.logger(cmd, cfg, name)
	if err != nil {
		return nil, err
	}

	client, err := o.Dial(conn)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "dial "+name, err)
	}

	s, err := session.Open(ctx, session.Options{
		Name:             name,
		Client:           client,
		Interval:         cfg.Watch.Interval(),
		FailureThreshold: cfg.Watch.FailureThreshold,
		Confirm:          o.confirmer(cmd, cfg),
		OnTrip:           hooks.OnTrip,
		OnReport:         hooks.OnReport,
		Metrics:          hooks.Metrics,
		Logger:           log,
	})
	if err != nil {
		_ = client.Close()
		return nil, WrapExitError(ExitFailure, "open "+name, err)
	}
	return s, nil
}

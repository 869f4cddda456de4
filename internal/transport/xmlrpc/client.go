// internal/transport/xmlrpc/client.go
package xmlrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/rpc"
	"strconv"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/tamzrod/procimg-watch/internal/image"
	"github.com/tamzrod/procimg-watch/internal/transport"
)

// DefaultPort is the port of the PLC control daemon.
const DefaultPort = 55123

// Remote method names.
const (
	methodStart     = "psstart"
	methodDevices   = "ps_devices"
	methodInputs    = "ps_inps"
	methodOutputs   = "ps_outs"
	methodValues    = "ps_values"
	methodSetValue  = "ps_setvalue"
	methodMode      = "xmlmodus"
	methodMulticall = "system.multicall"
)

// Config is minimal transport config.
type Config struct {
	Address string
	Port    int
	Timeout time.Duration
}

// URL returns the endpoint URL.
func (c Config) URL() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return "http://" + net.JoinHostPort(c.Address, strconv.Itoa(port))
}

// Client implements transport.Client over XML-RPC.
type Client struct {
	mu  sync.Mutex
	rpc *xmlrpc.Client
}

var (
	_ transport.Client  = (*Client)(nil)
	_ transport.Starter = (*Client)(nil)
)

// Dial creates a client. XML-RPC is stateless over HTTP, so nothing is
// contacted until the first call.
func Dial(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("transport xmlrpc: address required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	rt := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: cfg.Timeout,
		}).DialContext,
		ResponseHeaderTimeout: cfg.Timeout,
		MaxIdleConnsPerHost:   1,
	}

	cli, err := xmlrpc.NewClient(cfg.URL(), rt)
	if err != nil {
		return nil, fmt.Errorf("transport xmlrpc: %w", err)
	}
	return &Client{rpc: cli}, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rpc.Close()
}

// call runs one remote method. A cancelled ctx abandons the call; the HTTP
// timeouts bound the abandoned request.
func (c *Client) call(ctx context.Context, method string, args []interface{}, reply interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var a interface{}
	if len(args) > 0 {
		a = args
	}
	pending := c.rpc.Go(method, a, reply, make(chan *rpc.Call, 1))

	select {
	case <-ctx.Done():
		return transport.Wrap(method, ctx.Err())
	case done := <-pending.Done:
		return transport.Wrap(method, done.Error)
	}
}

// Start asks the daemon to open the process image.
func (c *Client) Start(ctx context.Context) error {
	var ignored interface{}
	return c.call(ctx, methodStart, nil, &ignored)
}

func (c *Client) Devices(ctx context.Context) ([]transport.Device, error) {
	var reply interface{}
	if err := c.call(ctx, methodDevices, nil, &reply); err != nil {
		return nil, err
	}
	return parseDevices(reply)
}

func (c *Client) InputDescriptors(ctx context.Context) (map[int][]image.IoDescriptor, error) {
	return c.catalogue(ctx, methodInputs)
}

func (c *Client) OutputDescriptors(ctx context.Context) (map[int][]image.IoDescriptor, error) {
	return c.catalogue(ctx, methodOutputs)
}

func (c *Client) catalogue(ctx context.Context, method string) (map[int][]image.IoDescriptor, error) {
	var reply interface{}
	if err := c.call(ctx, method, nil, &reply); err != nil {
		return nil, err
	}
	out, err := parseCatalogue(reply)
	if err != nil {
		return nil, fmt.Errorf("transport xmlrpc: %s: %w", method, err)
	}
	return out, nil
}

// FetchProcessImage returns the raw image bytes.
func (c *Client) FetchProcessImage(ctx context.Context) ([]byte, error) {
	var reply interface{}
	if err := c.call(ctx, methodValues, nil, &reply); err != nil {
		return nil, err
	}
	raw, err := asBytes(reply)
	if err != nil {
		return nil, transport.Wrap(methodValues, err)
	}
	return raw, nil
}

// SetValue writes one output and reports the device status.
func (c *Client) SetValue(ctx context.Context, device int, io string, v image.Value) (bool, error) {
	arg, err := encodeValue(v)
	if err != nil {
		return false, nil
	}

	var reply interface{}
	if err := c.call(ctx, methodSetValue, []interface{}{device, io, arg}, &reply); err != nil {
		return false, err
	}
	res, err := parseSetValueResult(reply)
	if err != nil {
		return false, transport.Wrap(methodSetValue, err)
	}
	return res.OK, nil
}

// SetValues sends all items as one system.multicall.
func (c *Client) SetValues(ctx context.Context, items []transport.WriteItem) ([]transport.WriteResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	// Items that cannot be encoded never leave; they are reported in place.
	out := make([]transport.WriteResult, len(items))
	calls := make([]interface{}, 0, len(items))
	sent := make([]int, 0, len(items))
	for i, it := range items {
		arg, err := encodeValue(it.Value)
		if err != nil {
			out[i] = transport.WriteResult{Device: it.Device, IO: it.IO, Message: err.Error()}
			continue
		}
		calls = append(calls, map[string]interface{}{
			"methodName": methodSetValue,
			"params":     []interface{}{it.Device, it.IO, arg},
		})
		sent = append(sent, i)
	}
	if len(calls) == 0 {
		return out, nil
	}

	var reply []interface{}
	if err := c.call(ctx, methodMulticall, []interface{}{calls}, &reply); err != nil {
		return nil, err
	}
	if len(reply) != len(calls) {
		return nil, transport.Wrap(methodMulticall, fmt.Errorf(
			"result count mismatch: sent=%d got=%d", len(calls), len(reply),
		))
	}

	for j, raw := range reply {
		i := sent[j]
		res, err := parseMulticallEntry(raw)
		if err != nil {
			out[i] = transport.WriteResult{Device: items[i].Device, IO: items[i].IO, Message: err.Error()}
			continue
		}
		out[i] = res
	}
	return out, nil
}

// AccessLevel returns the ACL level the daemon granted this host.
func (c *Client) AccessLevel(ctx context.Context) (int, error) {
	var reply interface{}
	if err := c.call(ctx, methodMode, nil, &reply); err != nil {
		return 0, err
	}
	n, err := asInt(reply)
	if err != nil {
		return 0, transport.Wrap(methodMode, err)
	}
	return n, nil
}

// File: client/client.go
// Package client provides a single-connection dialer over the reactor
// engine. Lifecycle and data callbacks may be (re)registered at any time,
// including after a connection is already live, via atomic-swap slots that
// need no lock.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/protocol"
	"github.com/momentics/netreactor/reactor"
	"github.com/momentics/netreactor/worker"
)

// Config bundles Client tunables.
type Config struct {
	RecvBufferSize int
	MessageTimeout time.Duration
	EnableCRC      bool
	Logger         api.LogSink
}

// DefaultConfig returns the baseline Config.
func DefaultConfig() Config {
	return Config{
		RecvBufferSize: api.DefaultReceiveBufferSize,
		MessageTimeout: time.Duration(api.DefaultMessageTimeoutMS) * time.Millisecond,
		Logger:         api.NopLogSink{},
	}
}

// Option customizes Client construction.
type Option func(*Config)

// WithRecvBufferSize overrides the per-read syscall buffer size.
func WithRecvBufferSize(n int) Option { return func(c *Config) { c.RecvBufferSize = n } }

// WithMessageTimeout overrides how long a partial message assembly is kept.
func WithMessageTimeout(d time.Duration) Option { return func(c *Config) { c.MessageTimeout = d } }

// WithCRC32 turns on CRC32 protection for outbound Message frames.
func WithCRC32(enabled bool) Option { return func(c *Config) { c.EnableCRC = enabled } }

// WithLogger injects a structured log sink.
func WithLogger(logger api.LogSink) Option { return func(c *Config) { c.Logger = logger } }

// Client dials a single peer and exposes lifecycle callbacks plus
// SendData/SendAsync over the connection once established.
type Client struct {
	cfg        Config
	r          *reactor.Reactor
	pool       *worker.Pool
	instanceID string
	control    *api.MetricsRegistry

	dec   *protocol.Decoder
	decMu sync.Mutex

	connID atomic.Uint64 // api.ConnectionID; 0 means "not connected"

	onConnected    atomic.Pointer[func(api.ConnectionInfo)]
	onMessage      atomic.Pointer[func([]byte)]
	onStreamEvent  atomic.Pointer[func(protocol.StreamEvent)]
	onDisconnected atomic.Pointer[func()]
	onError        atomic.Pointer[func(api.NetworkError, string)]
	onCongestion   atomic.Pointer[func(bool)]
}

// New constructs a Client with its own single-shard Reactor and a
// single-worker Pool, both started immediately so a subsequent Connect*
// call has somewhere to register. Events cross from the Reactor's loop
// goroutine to c.dispatch through the Pool, exactly as Server routes
// through its own worker Pool: a callback that calls back into SendData or
// Disconnect must never run on the Reactor's own goroutine, or it
// self-deadlocks against SendData's blocking wait for that same goroutine
// to drain its mailbox.
func New(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	instanceID := uuid.NewString()
	c := &Client{
		cfg:        cfg,
		instanceID: instanceID,
		control:    api.NewMetricsRegistry(),
		dec:        protocol.NewDecoder(uint32(cfg.MessageTimeout.Milliseconds())),
	}
	c.control.Set("instance_id", instanceID)

	c.pool = worker.NewPool(worker.Config{
		ShardCount: 1,
		Logger:     cfg.Logger,
	}, c.dispatch)

	r, err := reactor.New(reactor.Config{
		ReactorID:      0,
		RecvBufferSize: cfg.RecvBufferSize,
		Logger:         cfg.Logger,
	}, c.pool.SubmitEvent)
	if err != nil {
		return nil, err
	}
	if err := c.pool.Start(); err != nil {
		return nil, err
	}
	if err := r.Start(); err != nil {
		return nil, err
	}
	c.r = r
	return c, nil
}

// InstanceID returns the UUID stamped on this Client at construction time.
func (c *Client) InstanceID() string { return c.instanceID }

// Control exposes this Client's runtime metrics registry.
func (c *Client) Control() api.Control { return c.control }

// SetOnConnected registers (or replaces) the connected-lifecycle callback.
func (c *Client) SetOnConnected(f func(api.ConnectionInfo)) { c.onConnected.Store(&f) }

// SetOnMessage registers (or replaces) the message callback.
func (c *Client) SetOnMessage(f func([]byte)) { c.onMessage.Store(&f) }

// SetOnStreamEvent registers (or replaces) the stream-event callback.
func (c *Client) SetOnStreamEvent(f func(protocol.StreamEvent)) { c.onStreamEvent.Store(&f) }

// SetOnDisconnected registers (or replaces) the disconnected callback.
func (c *Client) SetOnDisconnected(f func()) { c.onDisconnected.Store(&f) }

// SetOnError registers (or replaces) the error callback.
func (c *Client) SetOnError(f func(api.NetworkError, string)) { c.onError.Store(&f) }

// SetOnCongestion registers (or replaces) the SendBuffer watermark callback.
// f is called with true when the connection's SendBuffer crosses its high
// watermark and with false once it drains back below the low watermark;
// GetSendBufferSize remains available for polling the same state directly.
func (c *Client) SetOnCongestion(f func(congested bool)) { c.onCongestion.Store(&f) }

// ConnectIPv4 dials an IPv4 TCP peer. The connection completes
// asynchronously; OnConnected fires once it is confirmed.
func (c *Client) ConnectIPv4(host string, port uint16) error {
	return c.connect(api.SocketIPv4(host, port, 0))
}

// ConnectIPv6 dials an IPv6 TCP peer.
func (c *Client) ConnectIPv6(host string, port uint16) error {
	return c.connect(api.SocketIPv6(host, port, 0))
}

// ConnectUnixDomain dials a Unix domain socket peer.
func (c *Client) ConnectUnixDomain(path string) error {
	return c.connect(api.SocketUnixDomain(path, 0))
}

func (c *Client) connect(cfg api.SocketConfig) error {
	fd, inProgress, peerAddr, peerPort, isUnix, err := reactor.DialSocket(cfg)
	if err != nil {
		return err
	}
	info := api.ConnectionInfo{PeerAddress: peerAddr, PeerPort: peerPort, IsUnixDomain: isUnix}
	id, err := c.r.AddConnection(fd, info, inProgress)
	if err != nil {
		return err
	}
	c.connID.Store(uint64(id))
	return nil
}

// SendData encodes data as one or more Message frames and sends them in
// order through the Reactor's synchronous path: each frame blocks until it
// has been flushed to the socket or timeout elapses (the timeout applies to
// each frame separately). Returns false as soon as one frame fails.
func (c *Client) SendData(messageID uint64, data []byte, timeout time.Duration) bool {
	id := api.ConnectionID(c.connID.Load())
	if id == 0 {
		return false
	}
	frames, err := protocol.EncodeMessage(messageID, data, c.cfg.EnableCRC)
	if err != nil {
		return false
	}
	for _, b := range protocol.SerializeFrames(frames) {
		if !c.r.SendData(id, b, timeout) {
			return false
		}
	}
	return true
}

// SendAsync is the non-blocking counterpart to SendData. notify (if
// non-nil) is attached to the last frame only: it fires with nil once that
// frame has been flushed to the socket, or with an error if that frame is
// rejected or the connection closes before it is flushed.
func (c *Client) SendAsync(messageID uint64, data []byte, notify func(err error)) {
	id := api.ConnectionID(c.connID.Load())
	if id == 0 {
		if notify != nil {
			notify(api.ErrUnknownConnection)
		}
		return
	}
	frames, err := protocol.EncodeMessage(messageID, data, c.cfg.EnableCRC)
	if err != nil {
		if notify != nil {
			notify(err)
		}
		return
	}
	serialized := protocol.SerializeFrames(frames)
	for i, b := range serialized {
		var cb func(error)
		if i == len(serialized)-1 {
			cb = notify
		}
		c.r.SendAsync(id, b, cb)
	}
}

// GracefulShutdown drains any queued sends within timeout, then closes the
// connection and stops the underlying Reactor and its worker Pool.
func (c *Client) GracefulShutdown(timeout time.Duration) error {
	err := c.r.Stop(timeout)
	if poolErr := c.pool.Stop(); poolErr != nil && err == nil {
		err = poolErr
	}
	return err
}

// GetSendBufferSize returns the number of bytes currently queued on the
// active connection, or -1 if not connected. Complements OnCongestion for
// callers that prefer to poll rather than react to watermark-crossing
// events.
func (c *Client) GetSendBufferSize() int {
	id := api.ConnectionID(c.connID.Load())
	if id == 0 {
		return -1
	}
	return c.r.GetSendBufferSize(id)
}

func (c *Client) dispatch(ev api.NetworkEvent) {
	switch ev.Type {
	case api.EventConnected:
		c.control.Set("connected", true)
		if cb := c.onConnected.Load(); cb != nil && ev.Info != nil {
			(*cb)(*ev.Info)
		}
	case api.EventData:
		c.decodeAndDispatch(ev.Payload)
	case api.EventDisconnected:
		c.connID.Store(0)
		c.control.Set("connected", false)
		if cb := c.onDisconnected.Load(); cb != nil {
			(*cb)()
		}
	case api.EventError:
		if cb := c.onError.Load(); cb != nil {
			(*cb)(ev.Err, ev.ErrDetail)
		}
	case api.EventCongestion:
		if cb := c.onCongestion.Load(); cb != nil {
			(*cb)(ev.Congested)
		}
	}
}

func (c *Client) decodeAndDispatch(payload []byte) {
	c.decMu.Lock()
	defer c.decMu.Unlock()
	if err := c.dec.Feed(payload); err != nil {
		if cb := c.onError.Load(); cb != nil {
			detail := api.NewError(api.ErrCodeInvalidArgument, api.ErrProtocolViolation, err.Error()).
				WithContext("instance_id", c.instanceID).
				Error()
			(*cb)(api.ErrProtocolViolation, detail)
		}
		return
	}
	for {
		msg, ok := c.dec.GetMessage()
		if !ok {
			break
		}
		if cb := c.onMessage.Load(); cb != nil {
			(*cb)(msg.Data)
		}
	}
	for {
		se, ok := c.dec.GetStreamEvent()
		if !ok {
			break
		}
		if cb := c.onStreamEvent.Load(); cb != nil {
			(*cb)(se)
		}
	}
}

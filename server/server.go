// File: server/server.go
// Server is the accept-side façade: it owns one or more listening sockets,
// round-robins accepted connections across a pool of Reactors, and
// dispatches decoded application events through a worker Pool.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/iomon"
	"github.com/momentics/netreactor/protocol"
	"github.com/momentics/netreactor/reactor"
	"github.com/momentics/netreactor/worker"
)

// Handler bundles the application callbacks a Server dispatches events to.
// Any field left nil is simply not called for that event kind.
type Handler struct {
	OnConnected    func(api.ConnectionInfo)
	OnMessage      func(api.ConnectionID, []byte)
	OnStreamEvent  func(api.ConnectionID, protocol.StreamEvent)
	OnDisconnected func(api.ConnectionID)
	OnError        func(api.ConnectionID, api.NetworkError, string)
	// OnCongestion fires when a connection's SendBuffer crosses its high
	// watermark (congested=true) and again once it drains back below the
	// low watermark (congested=false). Non-terminal: the connection stays
	// open. GetSendBufferSize is available for polling the same state.
	OnCongestion func(id api.ConnectionID, congested bool)
}

type listenerEntry struct {
	fd       int
	path     string // non-empty for Unix domain, unlinked on Stop
	protocol api.SocketProtocol
}

// Server accepts connections over one or more listeners and drives them
// through a Reactor pool and a worker Pool.
type Server struct {
	cfg        Config
	handler    Handler
	instanceID string
	control    *api.MetricsRegistry

	reactors []*reactor.Reactor
	pool     *worker.Pool
	nextRR   atomic.Uint32

	mu          sync.Mutex
	listeners   []listenerEntry
	decoders    map[api.ConnectionID]*protocol.Decoder
	activeConns int64

	acceptStop chan struct{}
	acceptWG   sync.WaitGroup

	running atomic.Bool
}

// New constructs a Server. Reactors and the worker pool are created but not
// started until Start.
func New(handler Handler, opts ...Option) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	instanceID := uuid.NewString()
	s := &Server{
		cfg:        cfg,
		handler:    handler,
		instanceID: instanceID,
		control:    api.NewMetricsRegistry(),
		decoders:   make(map[api.ConnectionID]*protocol.Decoder),
		acceptStop: make(chan struct{}),
	}
	s.control.Set("instance_id", instanceID)
	s.control.Set("reactor_count", cfg.ReactorCount)
	s.control.Set("active_connections", int64(0))

	s.pool = worker.NewPool(worker.Config{
		ShardCount: cfg.WorkerShards,
		QueueDepth: cfg.WorkerQueueDepth,
		Logger:     cfg.Logger,
	}, s.dispatch)

	for i := 0; i < cfg.ReactorCount; i++ {
		r, err := reactor.New(reactor.Config{
			ReactorID:      uint8(i),
			RecvBufferSize: cfg.RecvBufferSize,
			Logger:         cfg.Logger,
		}, s.pool.SubmitEvent)
		if err != nil {
			return nil, fmt.Errorf("reactor %d: %w", i, err)
		}
		s.reactors = append(s.reactors, r)
	}
	return s, nil
}

// InstanceID returns the UUID stamped on this Server at construction time,
// stable for its process lifetime and safe to log or export as a metrics
// label to distinguish multiple co-located Servers.
func (s *Server) InstanceID() string { return s.instanceID }

// Control exposes this Server's runtime metrics registry.
func (s *Server) Control() api.Control { return s.control }

// Start launches the worker pool and every Reactor. Listeners are added
// separately via StartIPv4/StartIPv6/StartUniversalIP/StartUnixDomain.
func (s *Server) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	s.cfg.Logger.Log(api.LevelInfo, "server", "starting", api.Fields{"instance_id": s.instanceID})
	if err := s.pool.Start(); err != nil {
		return err
	}
	for _, r := range s.reactors {
		if err := r.Start(); err != nil {
			return err
		}
	}
	return nil
}

// StartIPv4 binds and begins accepting on an IPv4 TCP listener.
func (s *Server) StartIPv4(host string, port uint16) error {
	return s.listen(api.SocketIPv4(host, port, s.cfg.Backlog), api.ProtoIPv4)
}

// StartIPv6 binds and begins accepting on an IPv6 TCP listener.
func (s *Server) StartIPv6(host string, port uint16) error {
	return s.listen(api.SocketIPv6(host, port, s.cfg.Backlog), api.ProtoIPv6)
}

// StartUniversalIP binds both an IPv4 and an IPv6 listener on the same
// port, as two independent sockets rather than one IPV6_V6ONLY=0 socket
// (see DESIGN.md).
func (s *Server) StartUniversalIP(host string, port uint16) error {
	if err := s.StartIPv4(host, port); err != nil {
		return err
	}
	return s.StartIPv6(host, port)
}

// StartUnixDomain binds and begins accepting on a Unix domain socket at
// path. The socket file is unlinked both before bind and on Stop.
func (s *Server) StartUnixDomain(path string) error {
	return s.listen(api.SocketUnixDomain(path, s.cfg.Backlog), api.ProtoUnixDomain)
}

func (s *Server) listen(cfg api.SocketConfig, family api.SocketProtocol) error {
	fd, err := reactor.ListenSocket(cfg, family)
	if err != nil {
		return err
	}
	entry := listenerEntry{fd: fd, protocol: family}
	if family == api.ProtoUnixDomain {
		entry.path = cfg.Host
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, entry)
	s.mu.Unlock()

	s.acceptWG.Add(1)
	go s.acceptLoop(entry)
	return nil
}

func (s *Server) acceptLoop(entry listenerEntry) {
	defer s.acceptWG.Done()

	mon, err := iomon.New()
	if err != nil {
		s.cfg.Logger.Log(api.LevelError, "server", "acceptor monitor init failed", api.Fields{"err": err.Error()})
		return
	}
	defer mon.Close()
	if err := mon.StartRead(entry.fd); err != nil {
		s.cfg.Logger.Log(api.LevelError, "server", "acceptor StartRead failed", api.Fields{"err": err.Error()})
		return
	}

	events := make([]iomon.Event, 0, 8)
	for {
		select {
		case <-s.acceptStop:
			return
		default:
		}
		events, err = mon.Wait(events[:0], api.DefaultWaitEventsPollMS)
		if err != nil {
			continue
		}
		for range events {
			s.acceptOne(entry)
		}
	}
}

func (s *Server) acceptOne(entry listenerEntry) {
	fd, peerAddr, peerPort, isUnix, err := reactor.AcceptSocket(entry.fd)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		s.cfg.Logger.Log(api.LevelWarning, "server", "accept failed", api.Fields{"err": err.Error()})
		return
	}
	info := api.ConnectionInfo{PeerAddress: peerAddr, PeerPort: peerPort, IsUnixDomain: isUnix}
	r := s.reactors[s.nextRR.Add(1)%uint32(len(s.reactors))]
	id, err := r.AddConnection(fd, info, false)
	if err != nil {
		unix.Close(fd)
		return
	}
	s.mu.Lock()
	s.decoders[id] = protocol.NewDecoder(uint32(s.cfg.MessageTimeout.Milliseconds()))
	s.activeConns++
	active := s.activeConns
	s.mu.Unlock()
	s.control.Set("active_connections", active)
}

// dispatch is the worker.Callback wired into the worker pool: it decodes
// raw bytes into complete messages/stream events and invokes the
// application Handler.
func (s *Server) dispatch(ev api.NetworkEvent) {
	switch ev.Type {
	case api.EventConnected:
		if s.handler.OnConnected != nil && ev.Info != nil {
			s.handler.OnConnected(*ev.Info)
		}
	case api.EventData:
		s.decodeAndDispatch(ev.ConnectionID, ev.Payload)
	case api.EventDisconnected:
		s.mu.Lock()
		delete(s.decoders, ev.ConnectionID)
		s.activeConns--
		active := s.activeConns
		s.mu.Unlock()
		s.control.Set("active_connections", active)
		if s.handler.OnDisconnected != nil {
			s.handler.OnDisconnected(ev.ConnectionID)
		}
	case api.EventError:
		if s.handler.OnError != nil {
			s.handler.OnError(ev.ConnectionID, ev.Err, ev.ErrDetail)
		}
	case api.EventCongestion:
		if s.handler.OnCongestion != nil {
			s.handler.OnCongestion(ev.ConnectionID, ev.Congested)
		}
	}
}

func (s *Server) decodeAndDispatch(id api.ConnectionID, payload []byte) {
	s.mu.Lock()
	dec, ok := s.decoders[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := dec.Feed(payload); err != nil {
		if s.handler.OnError != nil {
			detail := api.NewError(api.ErrCodeInvalidArgument, api.ErrProtocolViolation, err.Error()).
				WithContext("connection_id", uint64(id)).
				Error()
			s.handler.OnError(id, api.ErrProtocolViolation, detail)
		}
		_ = s.reactorFor(id).RemoveConnection(id)
		return
	}
	for {
		msg, ok := dec.GetMessage()
		if !ok {
			break
		}
		if s.handler.OnMessage != nil {
			s.handler.OnMessage(id, msg.Data)
		}
	}
	for {
		se, ok := dec.GetStreamEvent()
		if !ok {
			break
		}
		if s.handler.OnStreamEvent != nil {
			s.handler.OnStreamEvent(id, se)
		}
	}
}

func (s *Server) reactorFor(id api.ConnectionID) *reactor.Reactor {
	rid := reactor.ConnectionIDReactorID(id)
	for _, r := range s.reactors {
		if r.ID() == rid {
			return r
		}
	}
	return s.reactors[0]
}

// SendMessage encodes data as one or more framed Message frames (honoring
// cfg.EnableCRC) and hands them to the connection's owning Reactor.
func (s *Server) SendMessage(id api.ConnectionID, messageID uint64, data []byte) error {
	frames, err := protocol.EncodeMessage(messageID, data, s.cfg.EnableCRC)
	if err != nil {
		return err
	}
	r := s.reactorFor(id)
	for _, b := range protocol.SerializeFrames(frames) {
		if !r.SendData(id, b, 2*time.Second) {
			return api.ErrBufferFull
		}
	}
	return nil
}

// Disconnect forcibly closes a connection.
func (s *Server) Disconnect(id api.ConnectionID) error {
	return s.reactorFor(id).RemoveConnection(id)
}

// GetSendBufferSize returns the number of bytes currently queued for id, or
// -1 if id is unknown. Complements Handler.OnCongestion for applications
// that prefer to poll rather than react to watermark-crossing events.
func (s *Server) GetSendBufferSize(id api.ConnectionID) int {
	return s.reactorFor(id).GetSendBufferSize(id)
}

// Stop closes every listener, stops accepting, drains and stops every
// Reactor, stops the worker pool, and unlinks any Unix domain socket paths.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return api.ErrNotRunning
	}
	s.cfg.Logger.Log(api.LevelInfo, "server", "stopping", api.Fields{"instance_id": s.instanceID})
	close(s.acceptStop)

	s.mu.Lock()
	listeners := append([]listenerEntry(nil), s.listeners...)
	s.mu.Unlock()
	for _, l := range listeners {
		unix.Close(l.fd)
	}
	s.acceptWG.Wait()

	for _, r := range s.reactors {
		if err := r.Stop(s.cfg.ShutdownTimeout); err != nil {
			s.cfg.Logger.Log(api.LevelWarning, "server", "reactor stop timed out", api.Fields{"err": err.Error()})
		}
	}
	if err := s.pool.Stop(); err != nil {
		s.cfg.Logger.Log(api.LevelWarning, "server", "worker pool stop error", api.Fields{"err": err.Error()})
	}
	for _, l := range listeners {
		if l.path != "" {
			_ = os.Remove(l.path)
		}
	}
	return nil
}

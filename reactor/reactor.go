// File: reactor/reactor.go
// Reactor is the single-threaded event loop that owns a shard of
// connections end to end: readiness notification, non-blocking I/O,
// SendBuffer bookkeeping and congestion transitions.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/iomon"
)

// Config bundles the tunables a Reactor needs at construction time.
type Config struct {
	ReactorID       uint8
	MailboxCapacity int
	RecvBufferSize  int
	PollTimeoutMs   int
	Logger          api.LogSink
}

func (c Config) withDefaults() Config {
	if c.MailboxCapacity <= 0 {
		c.MailboxCapacity = api.DefaultWorkerQueueDepth
	}
	if c.RecvBufferSize <= 0 {
		c.RecvBufferSize = api.DefaultReceiveBufferSize
	}
	if c.PollTimeoutMs <= 0 {
		c.PollTimeoutMs = api.DefaultWaitEventsPollMS
	}
	if c.Logger == nil {
		c.Logger = api.NopLogSink{}
	}
	return c
}

// Reactor owns a shard of connections and drives their I/O from one
// goroutine. All exported methods except the accessors are safe to call
// from any goroutine; they hand work to the loop goroutine via the mailbox.
type Reactor struct {
	cfg   Config
	mon   iomon.Monitor
	idgen *idGenerator
	mbox  *mailbox

	onEvent func(api.NetworkEvent)

	mu    sync.RWMutex
	conns map[int]*ReactorConnection
	byID  map[api.ConnectionID]*ReactorConnection

	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New constructs a Reactor with its own I/O multiplexer. onEvent is called
// from the loop goroutine for every Connected/Data/Disconnected/Error event;
// it must not block and must not call back into this Reactor synchronously.
func New(cfg Config, onEvent func(api.NetworkEvent)) (*Reactor, error) {
	cfg = cfg.withDefaults()
	mon, err := iomon.New()
	if err != nil {
		return nil, fmt.Errorf("iomon.New: %w", err)
	}
	return &Reactor{
		cfg:     cfg,
		mon:     mon,
		idgen:   newIDGenerator(cfg.ReactorID),
		mbox:    newMailbox(cfg.MailboxCapacity),
		onEvent: onEvent,
		conns:   make(map[int]*ReactorConnection),
		byID:    make(map[api.ConnectionID]*ReactorConnection),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start launches the loop goroutine. Calling Start twice is a programmer
// error and returns api.ErrAlreadyRunning.
func (r *Reactor) Start() error {
	if !r.running.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	go r.loop()
	return nil
}

// Stop signals the loop to drain and exit, waiting up to timeout for it to
// finish. A non-positive timeout waits indefinitely.
func (r *Reactor) Stop(timeout time.Duration) error {
	if !r.running.CompareAndSwap(true, false) {
		return api.ErrNotRunning
	}
	close(r.stopCh)
	if timeout <= 0 {
		<-r.doneCh
		return nil
	}
	select {
	case <-r.doneCh:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("reactor %d: stop timed out after %s", r.cfg.ReactorID, timeout)
	}
}

// AddConnection registers an already-created fd (accepted or connected
// elsewhere) with this Reactor and returns its wire-visible ConnectionID.
// connecting indicates the fd is mid non-blocking connect(2) and should be
// armed for write-readiness before it is considered Active.
func (r *Reactor) AddConnection(fd int, info api.ConnectionInfo, connecting bool) (api.ConnectionID, error) {
	result := make(chan addResult, 1)
	if !r.mbox.enqueueWait(actionAddConnection{fd: fd, info: info, connecting: connecting, result: result}, 2*time.Second) {
		return 0, api.ErrNotRunning
	}
	res := <-result
	return res.id, res.err
}

// RemoveConnection tears a connection down: stops monitoring its fd, closes
// it and emits a final Disconnected event.
func (r *Reactor) RemoveConnection(id api.ConnectionID) error {
	done := make(chan error, 1)
	if !r.mbox.enqueueWait(actionRemoveConnection{id: id, result: done}, 2*time.Second) {
		return api.ErrNotRunning
	}
	return <-done
}

// SendAsync queues data for id without blocking the caller. If the mailbox
// is saturated the send is dropped and notify (if non-nil) fires
// immediately with api.ErrBufferFull.
func (r *Reactor) SendAsync(id api.ConnectionID, data []byte, notify func(err error)) {
	act := actionSend{id: id, data: append([]byte(nil), data...), notify: notify}
	if !r.mbox.tryEnqueue(act) {
		if notify != nil {
			notify(api.ErrBufferFull)
		}
	}
}

// SendData queues data for id and blocks the caller until every byte has
// been flushed to the socket or timeout elapses, whichever comes first. A
// non-positive timeout waits indefinitely for both mailbox admission and the
// flush to complete. It reports whether the data actually reached the
// socket.
func (r *Reactor) SendData(id api.ConnectionID, data []byte, timeout time.Duration) bool {
	result := make(chan error, 1)
	act := actionSend{id: id, data: append([]byte(nil), data...), notify: func(err error) { result <- err }}

	hasDeadline := timeout > 0
	var deadline time.Time
	if hasDeadline {
		deadline = time.Now().Add(timeout)
	}

	if !r.mbox.enqueueWait(act, timeout) {
		return false
	}

	if !hasDeadline {
		return <-result == nil
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false
	}
	select {
	case err := <-result:
		return err == nil
	case <-time.After(remaining):
		return false
	}
}

// ID returns the small integer identifying this Reactor, matching the
// reactor-id component packed into every ConnectionID it issues.
func (r *Reactor) ID() uint8 { return r.cfg.ReactorID }

// GetSendBufferSize returns the number of bytes currently queued for id, or
// -1 if id is unknown. Safe from any goroutine: the byte count is kept in an
// atomic counter the loop updates after every buffer mutation.
func (r *Reactor) GetSendBufferSize(id api.ConnectionID) int {
	r.mu.RLock()
	c, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return -1
	}
	return int(c.sendSize.Load())
}

// addResult is the reply to an actionAddConnection.
type addResult struct {
	id  api.ConnectionID
	err error
}

type actionAddConnection struct {
	fd         int
	info       api.ConnectionInfo
	connecting bool
	result     chan addResult
}

func (a actionAddConnection) run(r *Reactor) {
	id := r.idgen.generate(a.fd, func(id api.ConnectionID) bool {
		_, exists := r.byID[id]
		return exists
	})
	info := a.info
	info.ConnectionID = id
	conn := newConnection(a.fd, id, info, a.connecting)

	r.mu.Lock()
	r.conns[a.fd] = conn
	r.byID[id] = conn
	r.mu.Unlock()

	if a.connecting {
		_ = r.mon.StartWrite(a.fd)
	} else {
		_ = r.mon.StartRead(a.fd)
		r.emit(api.NetworkEvent{Type: api.EventConnected, ConnectionID: id, Info: &info})
	}
	a.result <- addResult{id: id, err: nil}
}

type actionRemoveConnection struct {
	id     api.ConnectionID
	result chan error
}

func (a actionRemoveConnection) run(r *Reactor) {
	r.mu.RLock()
	conn, ok := r.byID[a.id]
	r.mu.RUnlock()
	if !ok {
		a.result <- api.ErrUnknownConnection
		return
	}
	r.closeConnection(conn, api.NetworkEvent{Type: api.EventDisconnected, ConnectionID: a.id})
	a.result <- nil
}

type actionSend struct {
	id     api.ConnectionID
	data   []byte
	notify func(err error)
}

func (a actionSend) run(r *Reactor) {
	r.mu.RLock()
	conn, ok := r.byID[a.id]
	r.mu.RUnlock()
	if !ok {
		if a.notify != nil {
			a.notify(api.ErrUnknownConnection)
		}
		return
	}
	if conn.state == connClosed || conn.state == connDraining {
		if a.notify != nil {
			a.notify(api.ErrConnectionClosing)
		}
		return
	}
	if !conn.queueSend(a.data, a.notify) {
		if a.notify != nil {
			a.notify(api.ErrBufferFull)
		}
		return
	}
	conn.sendSize.Store(int64(conn.send.Size()))
	if conn.send.Size() > 0 {
		_ = r.mon.StartWrite(conn.fd)
	}
	if congested, changed := conn.consumeCongestionChange(); changed {
		r.emit(api.NetworkEvent{Type: api.EventCongestion, ConnectionID: conn.id, Congested: congested})
	}
}

// syscallErrorDetail builds the human-readable ErrDetail string for an
// EventError raised by a failed syscall, attaching the fd and connection id
// as structured context.
func (r *Reactor) syscallErrorDetail(conn *ReactorConnection, err error) string {
	return api.NewError(api.ErrCodeInternal, mapErrno(err), err.Error()).
		WithContext("fd", conn.fd).
		WithContext("connection_id", conn.id).
		Error()
}

func (r *Reactor) emit(ev api.NetworkEvent) {
	if r.onEvent == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.cfg.Logger.Log(api.LevelError, "reactor", "onEvent callback panicked", api.Fields{"panic": fmt.Sprint(rec)})
		}
	}()
	r.onEvent(ev)
}

func (r *Reactor) closeConnection(conn *ReactorConnection, finalEvent api.NetworkEvent) {
	_ = r.mon.Remove(conn.fd)
	unix.Close(conn.fd)
	conn.markClosed()
	conn.failPending(api.ErrConnectionClosing)

	r.mu.Lock()
	delete(r.conns, conn.fd)
	delete(r.byID, conn.id)
	r.mu.Unlock()

	r.emit(finalEvent)
}

// loop is the Reactor's single goroutine: it alternates between draining
// mailbox actions and waiting on readiness events.
func (r *Reactor) loop() {
	defer close(r.doneCh)
	events := make([]iomon.Event, 0, iomon.DefaultBatchSize)
	var pending []action

	for {
		select {
		case <-r.stopCh:
			r.drainStop()
			return
		default:
		}

		pending = r.mbox.drain(pending[:0])
		for _, act := range pending {
			act.run(r)
		}

		var err error
		events, err = r.mon.Wait(events[:0], r.cfg.PollTimeoutMs)
		if err != nil {
			r.cfg.Logger.Log(api.LevelError, "reactor", "poll wait failed", api.Fields{"err": err.Error()})
			continue
		}
		for _, ev := range events {
			r.handleEvent(ev)
		}
	}
}

func (r *Reactor) handleEvent(ev iomon.Event) {
	r.mu.RLock()
	conn, ok := r.conns[ev.Fd]
	r.mu.RUnlock()
	if !ok {
		return
	}

	if conn.connecting && (ev.Writable || ev.Hup || ev.Err) {
		conn.connecting = false
		if err := socketError(conn.fd); err != nil {
			r.closeConnection(conn, api.NetworkEvent{
				Type: api.EventError, ConnectionID: conn.id,
				Err: mapErrno(err), ErrDetail: r.syscallErrorDetail(conn, err),
			})
			return
		}
		conn.state = connActive
		_ = r.mon.StartRead(conn.fd)
		_ = r.mon.StopWrite(conn.fd)
		info := conn.info
		r.emit(api.NetworkEvent{Type: api.EventConnected, ConnectionID: conn.id, Info: &info})
	}

	if ev.Hup || ev.Err {
		r.closeConnection(conn, api.NetworkEvent{Type: api.EventDisconnected, ConnectionID: conn.id})
		return
	}

	if ev.Writable && conn.send.Size() > 0 {
		r.flushSend(conn)
	}
	if ev.Readable {
		r.readSocket(conn)
	}
}

func (r *Reactor) flushSend(conn *ReactorConnection) {
	for {
		n, res, err := conn.send.SendToSocket(conn.fd)
		switch res {
		case sendOK:
			if n > 0 {
				conn.noteFlushed(n)
				conn.sendSize.Store(int64(conn.send.Size()))
				if congested, changed := conn.consumeCongestionChange(); changed {
					r.emit(api.NetworkEvent{Type: api.EventCongestion, ConnectionID: conn.id, Congested: congested})
				}
			}
			if conn.send.Size() == 0 {
				_ = r.mon.StopWrite(conn.fd)
				if conn.state == connDraining {
					r.closeConnection(conn, api.NetworkEvent{Type: api.EventDisconnected, ConnectionID: conn.id})
				}
				return
			}
		case sendRetry:
			return
		case sendFailed:
			r.closeConnection(conn, api.NetworkEvent{
				Type: api.EventError, ConnectionID: conn.id,
				Err: mapErrno(err), ErrDetail: r.syscallErrorDetail(conn, err),
			})
			return
		}
	}
}

func (r *Reactor) readSocket(conn *ReactorConnection) {
	buf := make([]byte, r.cfg.RecvBufferSize)
	for {
		n, err := unix.Read(conn.fd, buf)
		if err != nil {
			if isRetryable(err) {
				return
			}
			r.closeConnection(conn, api.NetworkEvent{
				Type: api.EventError, ConnectionID: conn.id,
				Err: mapErrno(err), ErrDetail: r.syscallErrorDetail(conn, err),
			})
			return
		}
		if n == 0 {
			r.closeConnection(conn, api.NetworkEvent{Type: api.EventDisconnected, ConnectionID: conn.id})
			return
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		r.emit(api.NetworkEvent{Type: api.EventData, ConnectionID: conn.id, Payload: payload})
		if n < len(buf) {
			return
		}
	}
}

// drainStop flushes every connection's SendBuffer within a fixed budget
// before closing everything.
func (r *Reactor) drainStop() {
	const drainBudget = 5 * time.Second
	deadline := time.Now().Add(drainBudget)

	r.mu.RLock()
	all := make([]*ReactorConnection, 0, len(r.conns))
	for _, c := range r.conns {
		all = append(all, c)
	}
	r.mu.RUnlock()

	for _, c := range all {
		c.markDraining()
	}
	for time.Now().Before(deadline) {
		remaining := 0
		for _, c := range all {
			if c.state == connClosed {
				continue
			}
			if c.send.Size() > 0 {
				r.flushSend(c)
			}
			if c.state != connClosed {
				remaining++
			}
		}
		if remaining == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.mu.RLock()
	remaining := make([]*ReactorConnection, 0, len(r.conns))
	for _, c := range r.conns {
		remaining = append(remaining, c)
	}
	r.mu.RUnlock()
	for _, c := range remaining {
		r.closeConnection(c, api.NetworkEvent{Type: api.EventDisconnected, ConnectionID: c.id})
	}
	_ = r.mon.Close()
	r.mbox.close()
}

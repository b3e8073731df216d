// File: reactor/connection.go
// Per-connection state owned exclusively by the Reactor goroutine that
// registered it. Lifecycle runs New -> Active <-> Congested -> Draining ->
// Closed.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync/atomic"

	"github.com/momentics/netreactor/api"
)

// connState is the lifecycle state of one ReactorConnection.
type connState int

const (
	connNew connState = iota
	connActive
	connCongested
	connDraining
	connClosed
)

func (s connState) String() string {
	switch s {
	case connNew:
		return "New"
	case connActive:
		return "Active"
	case connCongested:
		return "Congested"
	case connDraining:
		return "Draining"
	case connClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// onSentFunc is invoked once a SendAsync payload has been fully flushed to
// the socket (or dropped on close), matching the original implementation's
// completion-callback shape for asynchronous sends.
type onSentFunc func(err error)

// pendingSend pairs a queued SendAsync payload with the callback to run once
// it clears the SendBuffer.
type pendingSend struct {
	notify onSentFunc
}

// ReactorConnection is one live fd under the ownership of a single Reactor.
// Every field is touched only from that Reactor's loop goroutine.
type ReactorConnection struct {
	fd    int
	id    api.ConnectionID
	info  api.ConnectionInfo
	state connState

	send     *SendBuffer
	sendSize atomic.Int64 // mirrors send.Size(), readable from any goroutine

	// pending tracks the byte offset (relative to bytes ever written into
	// send) at which each SendAsync's completion callback should fire, so
	// completions are notified in submission order as the buffer drains.
	pending       []pendingSend
	pendingOffset []int
	writtenTotal  int
	flushedTotal  int

	connecting bool // true while a client-initiated connect() is in EINPROGRESS

	reportedCongested bool // last congestion state consumeCongestionChange handed out
}

func newConnection(fd int, id api.ConnectionID, info api.ConnectionInfo, connecting bool) *ReactorConnection {
	state := connActive
	if connecting {
		state = connNew
	}
	return &ReactorConnection{
		fd:         fd,
		id:         id,
		info:       info,
		state:      state,
		send:       NewSendBuffer(),
		connecting: connecting,
	}
}

// queueSend appends data to the outbound buffer. If notify is non-nil it
// fires once every byte up to and including this write has been flushed.
// Returns false if the buffer is full.
func (c *ReactorConnection) queueSend(data []byte, notify onSentFunc) bool {
	if !c.send.Write(data) {
		return false
	}
	c.writtenTotal += len(data)
	if notify != nil {
		c.pending = append(c.pending, pendingSend{notify: notify})
		c.pendingOffset = append(c.pendingOffset, c.writtenTotal)
	}
	c.refreshCongestion()
	return true
}

// noteFlushed advances the flushed counter and fires any completion
// callbacks whose byte offset has now fully drained.
func (c *ReactorConnection) noteFlushed(n int) {
	c.flushedTotal += n
	i := 0
	for i < len(c.pending) && c.pendingOffset[i] <= c.flushedTotal {
		c.pending[i].notify(nil)
		i++
	}
	c.pending = c.pending[i:]
	c.pendingOffset = c.pendingOffset[i:]
	c.refreshCongestion()
}

// failPending fires every outstanding completion callback with err, used
// when the connection is torn down with unsent data still queued.
func (c *ReactorConnection) failPending(err error) {
	for _, p := range c.pending {
		p.notify(err)
	}
	c.pending = nil
	c.pendingOffset = nil
}

func (c *ReactorConnection) refreshCongestion() {
	switch c.state {
	case connActive:
		if c.send.IsHighWatermark() {
			c.state = connCongested
		}
	case connCongested:
		if c.send.IsLowWatermark() {
			c.state = connActive
		}
	}
}

func (c *ReactorConnection) isCongested() bool { return c.state == connCongested }

// consumeCongestionChange reports whether the congestion state has flipped
// since the last call, so the Reactor emits exactly one EventCongestion per
// watermark crossing instead of one per buffer mutation.
func (c *ReactorConnection) consumeCongestionChange() (congested bool, changed bool) {
	congested = c.state == connCongested
	changed = congested != c.reportedCongested
	c.reportedCongested = congested
	return congested, changed
}

func (c *ReactorConnection) markDraining() {
	if c.state != connClosed {
		c.state = connDraining
	}
}

func (c *ReactorConnection) markClosed() { c.state = connClosed }

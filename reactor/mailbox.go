// File: reactor/mailbox.go
// Bounded, single-consumer action mailbox that lets other goroutines ask a
// Reactor's loop thread to do something (register an fd, queue a send, tear
// a connection down) without ever touching Reactor state directly. The
// Reactor remains the sole owner of every fd and SendBuffer it holds.
//
// The queue itself is github.com/eapache/queue's ring buffer, wrapped in a
// mutex/condvar rather than a lock-free structure — mailbox traffic runs at
// a much lower rate than the data path.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// action is anything the loop thread can execute against its own state.
type action interface {
	run(r *Reactor)
}

// mailbox is a bounded FIFO of actions with two admission policies:
// try (non-blocking, for the high-rate data path) and send (blocking with a
// budget, for lifecycle operations that must not be silently dropped).
type mailbox struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	q        *queue.Queue
	capacity int
	closed   bool
}

func newMailbox(capacity int) *mailbox {
	m := &mailbox{q: queue.New(), capacity: capacity}
	m.notEmpty = sync.NewCond(&m.mu)
	m.notFull = sync.NewCond(&m.mu)
	return m
}

// tryEnqueue admits act if there is room, else reports false immediately.
func (m *mailbox) tryEnqueue(act action) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.q.Length() >= m.capacity {
		return false
	}
	m.q.Add(act)
	m.notEmpty.Signal()
	return true
}

// enqueueWait admits act, blocking up to timeout for room to free up. A
// zero or negative timeout waits indefinitely.
func (m *mailbox) enqueueWait(act action, timeout time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	if m.q.Length() >= m.capacity {
		if timeout <= 0 {
			for !m.closed && m.q.Length() >= m.capacity {
				m.notFull.Wait()
			}
		} else {
			deadline := time.Now().Add(timeout)
			for !m.closed && m.q.Length() >= m.capacity {
				remaining := time.Until(deadline)
				if remaining <= 0 {
					return false
				}
				waitOnCondWithTimeout(m.notFull, remaining)
			}
		}
	}
	if m.closed {
		return false
	}
	m.q.Add(act)
	m.notEmpty.Signal()
	return true
}

// drain removes and returns every currently queued action without blocking.
func (m *mailbox) drain(dst []action) []action {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.q.Length() > 0 {
		dst = append(dst, m.q.Peek().(action))
		m.q.Remove()
	}
	m.notFull.Broadcast()
	return dst
}

// waitNotEmpty blocks up to timeout for at least one queued action.
func (m *mailbox) waitNotEmpty(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.q.Length() > 0 || m.closed {
		return
	}
	waitOnCondWithTimeout(m.notEmpty, timeout)
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.notEmpty.Broadcast()
	m.notFull.Broadcast()
}

// waitOnCondWithTimeout wakes the calling goroutine's Wait after timeout by
// running the broadcast on a timer; sync.Cond has no native timed wait.
func waitOnCondWithTimeout(c *sync.Cond, timeout time.Duration) {
	done := make(chan struct{})
	timer := time.AfterFunc(timeout, func() {
		c.L.Lock()
		c.Broadcast()
		c.L.Unlock()
		close(done)
	})
	c.Wait()
	if timer.Stop() {
		close(done)
	}
	<-done
}

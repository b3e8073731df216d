// File: worker/queue.go
// Bounded per-shard event queue. Same ring-buffer-plus-condvar shape as
// reactor.mailbox (both exist to bound memory and provide two admission
// policies over github.com/eapache/queue), duplicated rather than shared
// because reactor's mailbox carries reactor-only action types and importing
// across packages for a ~60-line queue would create a needless dependency
// edge between reactor and worker.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package worker

import (
	"sync"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/netreactor/api"
)

type boundedQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	q        *queue.Queue
	capacity int
	closed   bool
}

func newBoundedQueue(capacity int) *boundedQueue {
	bq := &boundedQueue{q: queue.New(), capacity: capacity}
	bq.notEmpty = sync.NewCond(&bq.mu)
	bq.notFull = sync.NewCond(&bq.mu)
	return bq
}

func (bq *boundedQueue) tryPush(ev api.NetworkEvent) bool {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	if bq.closed || bq.q.Length() >= bq.capacity {
		return false
	}
	bq.q.Add(ev)
	bq.notEmpty.Signal()
	return true
}

func (bq *boundedQueue) pushWait(ev api.NetworkEvent, timeout time.Duration) bool {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	if bq.closed {
		return false
	}
	if bq.q.Length() >= bq.capacity {
		deadline := time.Now().Add(timeout)
		for !bq.closed && bq.q.Length() >= bq.capacity {
			remaining := time.Until(deadline)
			if timeout > 0 && remaining <= 0 {
				return false
			}
			bq.waitTimed(bq.notFull, remaining, timeout <= 0)
		}
	}
	if bq.closed {
		return false
	}
	bq.q.Add(ev)
	bq.notEmpty.Signal()
	return true
}

// pop blocks until an event is available or the queue is closed and empty.
func (bq *boundedQueue) pop() (api.NetworkEvent, bool) {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	for bq.q.Length() == 0 {
		if bq.closed {
			return api.NetworkEvent{}, false
		}
		bq.notEmpty.Wait()
	}
	ev := bq.q.Peek().(api.NetworkEvent)
	bq.q.Remove()
	bq.notFull.Signal()
	return ev, true
}

func (bq *boundedQueue) close() {
	bq.mu.Lock()
	defer bq.mu.Unlock()
	bq.closed = true
	bq.notEmpty.Broadcast()
	bq.notFull.Broadcast()
}

func (bq *boundedQueue) waitTimed(c *sync.Cond, d time.Duration, indefinite bool) {
	if indefinite {
		c.Wait()
		return
	}
	done := make(chan struct{})
	timer := time.AfterFunc(d, func() {
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

// File: worker/pool.go
// Sharded worker pool: takes NetworkEvents off Reactor loop threads and
// dispatches them to user callbacks from dedicated worker goroutines, so a
// slow or panicking application handler can never stall a Reactor's I/O
// loop. Events are routed by connection id so all events for one connection
// land on the same shard and are observed in order by a single goroutine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package worker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/netreactor/api"
)

// Config bundles WorkerPool tunables.
type Config struct {
	ShardCount    int
	QueueDepth    int
	LifecycleWait time.Duration
	Logger        api.LogSink
}

func (c Config) withDefaults() Config {
	if c.ShardCount <= 0 {
		c.ShardCount = api.DefaultWorkerCount
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = api.DefaultWorkerQueueDepth
	}
	if c.LifecycleWait <= 0 {
		c.LifecycleWait = time.Second
	}
	if c.Logger == nil {
		c.Logger = api.NopLogSink{}
	}
	return c
}

// Callback is invoked once per NetworkEvent, from one of the pool's worker
// goroutines. All events for a given ConnectionID are always delivered to
// the same shard and therefore observed in submission order by exactly one
// goroutine at a time.
type Callback func(api.NetworkEvent)

// Pool is a fixed-size set of shards, each independently queued and
// serviced by one worker goroutine.
type Pool struct {
	cfg      Config
	callback Callback
	shards   []*boundedQueue
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewPool constructs a Pool. callback must not be nil.
func NewPool(cfg Config, callback Callback) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{cfg: cfg, callback: callback, shards: make([]*boundedQueue, cfg.ShardCount)}
	for i := range p.shards {
		p.shards[i] = newBoundedQueue(cfg.QueueDepth)
	}
	return p
}

// Start launches one worker goroutine per shard.
func (p *Pool) Start() error {
	if !p.running.CompareAndSwap(false, true) {
		return api.ErrAlreadyRunning
	}
	for i, s := range p.shards {
		p.wg.Add(1)
		go p.runShard(i, s)
	}
	return nil
}

// Stop closes every shard queue and waits for in-flight callbacks to
// finish draining whatever was already queued.
func (p *Pool) Stop() error {
	if !p.running.CompareAndSwap(true, false) {
		return api.ErrNotRunning
	}
	for _, s := range p.shards {
		s.close()
	}
	p.wg.Wait()
	return nil
}

func (p *Pool) shardFor(id api.ConnectionID) *boundedQueue {
	return p.shards[uint64(id)%uint64(len(p.shards))]
}

// SubmitEvent hands ev to the shard owning its connection. Data events use
// a non-blocking admission policy: if the shard is saturated the event is
// dropped and a synthetic EventError is submitted in its place (best
// effort — if even that cannot be admitted it is only logged). Lifecycle
// events (Connected, Disconnected, Error, Congestion) block up to
// cfg.LifecycleWait rather than risk silently losing a state transition.
func (p *Pool) SubmitEvent(ev api.NetworkEvent) {
	shard := p.shardFor(ev.ConnectionID)

	if ev.Type == api.EventData {
		if shard.tryPush(ev) {
			return
		}
		synthetic := api.NetworkEvent{
			Type:         api.EventError,
			ConnectionID: ev.ConnectionID,
			Err:          api.ErrProtocolViolation,
			ErrDetail:    "worker shard saturated, data event dropped",
		}
		if !shard.tryPush(synthetic) {
			p.cfg.Logger.Log(api.LevelWarning, "worker", "dropped event, shard saturated",
				api.Fields{"connection_id": uint64(ev.ConnectionID)})
		}
		return
	}

	if !shard.pushWait(ev, p.cfg.LifecycleWait) {
		p.cfg.Logger.Log(api.LevelError, "worker", "lifecycle event dropped after wait budget exhausted",
			api.Fields{"connection_id": uint64(ev.ConnectionID), "type": ev.Type.String()})
	}
}

func (p *Pool) runShard(idx int, q *boundedQueue) {
	defer p.wg.Done()
	for {
		ev, ok := q.pop()
		if !ok {
			return
		}
		p.dispatch(idx, ev)
	}
}

func (p *Pool) dispatch(idx int, ev api.NetworkEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.cfg.Logger.Log(api.LevelError, "worker", "callback panicked",
				api.Fields{"shard": idx, "panic": fmt.Sprint(r)})
		}
	}()
	p.callback(ev)
}

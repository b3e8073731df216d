// File: reactor/mailbox_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAction struct {
	counter *atomic.Int32
}

func (a countingAction) run(r *Reactor) { a.counter.Add(1) }

func TestMailboxTryEnqueueRespectsCapacity(t *testing.T) {
	m := newMailbox(2)
	var n atomic.Int32
	act := countingAction{counter: &n}

	assert.True(t, m.tryEnqueue(act))
	assert.True(t, m.tryEnqueue(act))
	assert.False(t, m.tryEnqueue(act))
}

func TestMailboxDrainReturnsAllQueuedActions(t *testing.T) {
	m := newMailbox(4)
	var n atomic.Int32
	act := countingAction{counter: &n}
	require.True(t, m.tryEnqueue(act))
	require.True(t, m.tryEnqueue(act))

	drained := m.drain(nil)
	require.Len(t, drained, 2)
	for _, a := range drained {
		a.run(nil)
	}
	assert.Equal(t, int32(2), n.Load())

	assert.Empty(t, m.drain(nil))
}

func TestMailboxEnqueueWaitTimesOutWhenFull(t *testing.T) {
	m := newMailbox(1)
	var n atomic.Int32
	act := countingAction{counter: &n}
	require.True(t, m.tryEnqueue(act))

	start := time.Now()
	ok := m.enqueueWait(act, 30*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 30*time.Millisecond)
}

func TestMailboxEnqueueWaitSucceedsOnceRoomFrees(t *testing.T) {
	m := newMailbox(1)
	var n atomic.Int32
	act := countingAction{counter: &n}
	require.True(t, m.tryEnqueue(act))

	go func() {
		time.Sleep(10 * time.Millisecond)
		m.drain(nil)
	}()

	ok := m.enqueueWait(act, time.Second)
	assert.True(t, ok)
}

func TestMailboxCloseUnblocksWaiters(t *testing.T) {
	m := newMailbox(1)
	var n atomic.Int32
	act := countingAction{counter: &n}
	require.True(t, m.tryEnqueue(act))

	done := make(chan bool, 1)
	go func() {
		done <- m.enqueueWait(act, 0) // indefinite wait
	}()

	time.Sleep(10 * time.Millisecond)
	m.close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("enqueueWait did not unblock after close")
	}
}

func TestMailboxWaitNotEmptyReturnsPromptlyWhenNonEmpty(t *testing.T) {
	m := newMailbox(1)
	var n atomic.Int32
	require.True(t, m.tryEnqueue(countingAction{counter: &n}))

	start := time.Now()
	m.waitNotEmpty(time.Second)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

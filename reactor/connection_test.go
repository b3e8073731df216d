// File: reactor/connection_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/netreactor/api"
)

func TestNewConnectionStartsActiveWhenNotConnecting(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, false)
	assert.Equal(t, connActive, c.state)
}

func TestNewConnectionStartsNewWhenConnecting(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, true)
	assert.Equal(t, connNew, c.state)
	assert.True(t, c.connecting)
}

func TestQueueSendTransitionsActiveToCongestedAtHighWatermark(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, false)
	big := bytes.Repeat([]byte{0x1}, api.SendBufferHighWatermark+1)
	require.True(t, c.queueSend(big, nil))
	assert.True(t, c.isCongested())
}

func TestNoteFlushedTransitionsCongestedBackToActiveAtLowWatermark(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, false)
	big := bytes.Repeat([]byte{0x1}, api.SendBufferHighWatermark+1)
	require.True(t, c.queueSend(big, nil))
	require.True(t, c.isCongested())

	// The Reactor drains the SendBuffer before reporting the flush.
	c.send.readPos += api.SendBufferHighWatermark
	c.noteFlushed(api.SendBufferHighWatermark)
	assert.False(t, c.isCongested())
	assert.Equal(t, connActive, c.state)
}

func TestConsumeCongestionChangeFiresOnceEntersAndOnceLeaves(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, false)
	big := bytes.Repeat([]byte{0x1}, api.SendBufferHighWatermark+1)

	require.True(t, c.queueSend(big, nil))
	congested, changed := c.consumeCongestionChange()
	require.True(t, changed)
	assert.True(t, congested)

	// A second write while still congested must not report another change.
	require.True(t, c.queueSend([]byte("more"), nil))
	_, changed = c.consumeCongestionChange()
	assert.False(t, changed)

	c.send.readPos += api.SendBufferHighWatermark + 5 // drained before noteFlushed, as in flushSend
	c.noteFlushed(api.SendBufferHighWatermark + 5)
	congested, changed = c.consumeCongestionChange()
	require.True(t, changed)
	assert.False(t, congested)
}

func TestQueueSendFiresNotifyOnceFlushedInSubmissionOrder(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, false)

	var order []int
	require.True(t, c.queueSend([]byte("aaaa"), func(error) { order = append(order, 1) }))
	require.True(t, c.queueSend([]byte("bb"), func(error) { order = append(order, 2) }))

	c.noteFlushed(4) // drains the first write only
	assert.Equal(t, []int{1}, order)

	c.noteFlushed(2) // drains the second
	assert.Equal(t, []int{1, 2}, order)
}

func TestFailPendingFiresRemainingCallbacksWithError(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, false)
	boom := errors.New("boom")

	var got error
	require.True(t, c.queueSend([]byte("data"), func(err error) { got = err }))
	c.failPending(boom)

	assert.Equal(t, boom, got)
	assert.Empty(t, c.pending)
}

func TestMarkDrainingLeavesClosedConnectionsAlone(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, false)
	c.markClosed()
	c.markDraining()
	assert.Equal(t, connClosed, c.state)
}

func TestMarkDrainingFromActive(t *testing.T) {
	c := newConnection(5, api.ConnectionID(1), api.ConnectionInfo{}, false)
	c.markDraining()
	assert.Equal(t, connDraining, c.state)
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "New", connNew.String())
	assert.Equal(t, "Active", connActive.String())
	assert.Equal(t, "Congested", connCongested.String())
	assert.Equal(t, "Draining", connDraining.String())
	assert.Equal(t, "Closed", connClosed.String())
	assert.Equal(t, "Unknown", connState(99).String())
}

// File: reactor/reactor_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/netreactor/api"
)

// newSocketPairReactor starts a real Reactor and registers one half of a
// unix.Socketpair as a connection, returning the Reactor, the connection id
// and the raw fd of the peer end (owned by the test, not the Reactor).
func newSocketPairReactor(t *testing.T, onEvent func(api.NetworkEvent)) (*Reactor, api.ConnectionID, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)

	r, err := New(Config{ReactorID: 1}, onEvent)
	require.NoError(t, err)
	require.NoError(t, r.Start())
	t.Cleanup(func() { r.Stop(time.Second) })

	id, err := r.AddConnection(fds[0], api.ConnectionInfo{}, false)
	require.NoError(t, err)
	return r, id, fds[1]
}

func TestReactorStartTwiceReturnsAlreadyRunning(t *testing.T) {
	r, err := New(Config{ReactorID: 0}, func(api.NetworkEvent) {})
	require.NoError(t, err)
	require.NoError(t, r.Start())
	defer r.Stop(time.Second)

	assert.ErrorIs(t, r.Start(), api.ErrAlreadyRunning)
}

func TestReactorStopBeforeStartReturnsNotRunning(t *testing.T) {
	r, err := New(Config{ReactorID: 0}, func(api.NetworkEvent) {})
	require.NoError(t, err)
	assert.ErrorIs(t, r.Stop(time.Second), api.ErrNotRunning)
}

func TestReactorEmitsConnectedThenData(t *testing.T) {
	events := make(chan api.NetworkEvent, 8)
	_, id, peerFd := newSocketPairReactor(t, func(ev api.NetworkEvent) { events <- ev })
	defer unix.Close(peerFd)

	select {
	case ev := <-events:
		require.Equal(t, api.EventConnected, ev.Type)
		assert.Equal(t, id, ev.ConnectionID)
	case <-time.After(time.Second):
		t.Fatal("no Connected event")
	}

	_, err := unix.Write(peerFd, []byte("hello"))
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.Equal(t, api.EventData, ev.Type)
		assert.Equal(t, "hello", string(ev.Payload))
	case <-time.After(time.Second):
		t.Fatal("no Data event")
	}
}

func TestReactorSendDataReachesPeer(t *testing.T) {
	events := make(chan api.NetworkEvent, 8)
	r, id, peerFd := newSocketPairReactor(t, func(ev api.NetworkEvent) { events <- ev })
	defer unix.Close(peerFd)

	<-events // Connected

	require.True(t, r.SendData(id, []byte("pong"), time.Second))

	buf := make([]byte, 16)
	require.NoError(t, unix.SetNonblock(peerFd, false))
	n, err := unix.Read(peerFd, buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))
}

// TestReactorSendDataTimesOutWhenPeerNeverReads exercises SendData's
// synchronous contract: it must not return true just because the mailbox
// admitted the send, only once the bytes actually flush or the timeout
// elapses.
func TestReactorSendDataTimesOutWhenPeerNeverReads(t *testing.T) {
	events := make(chan api.NetworkEvent, 8)
	r, id, peerFd := newSocketPairReactor(t, func(ev api.NetworkEvent) { events <- ev })
	defer unix.Close(peerFd)

	<-events // Connected

	big := bytes.Repeat([]byte{0x1}, 4*1024*1024) // far exceeds the kernel's default socket buffer
	start := time.Now()
	ok := r.SendData(id, big, 150*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestReactorRemoveConnectionEmitsDisconnected(t *testing.T) {
	events := make(chan api.NetworkEvent, 8)
	r, id, peerFd := newSocketPairReactor(t, func(ev api.NetworkEvent) { events <- ev })
	defer unix.Close(peerFd)

	<-events // Connected

	require.NoError(t, r.RemoveConnection(id))

	select {
	case ev := <-events:
		assert.Equal(t, api.EventDisconnected, ev.Type)
		assert.Equal(t, id, ev.ConnectionID)
	case <-time.After(time.Second):
		t.Fatal("no Disconnected event")
	}

	assert.Equal(t, -1, r.GetSendBufferSize(id))
}

func TestReactorRemoveUnknownConnectionErrors(t *testing.T) {
	r, err := New(Config{ReactorID: 0}, func(api.NetworkEvent) {})
	require.NoError(t, err)
	require.NoError(t, r.Start())
	defer r.Stop(time.Second)

	assert.ErrorIs(t, r.RemoveConnection(api.ConnectionID(999)), api.ErrUnknownConnection)
}

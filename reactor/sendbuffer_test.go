// File: reactor/sendbuffer_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/netreactor/api"
)

func TestSendBufferWriteAndSize(t *testing.T) {
	b := NewSendBuffer()
	require.Equal(t, 0, b.Size())

	ok := b.Write([]byte("hello"))
	require.True(t, ok)
	assert.Equal(t, 5, b.Size())
}

func TestSendBufferCompactsOnRead(t *testing.T) {
	b := NewSendBuffer()
	require.True(t, b.Write(bytes.Repeat([]byte{1}, 100)))
	b.readPos = 60
	b.compact()
	assert.Equal(t, 0, b.readPos)
	assert.Equal(t, 40, b.writePos)
}

func TestSendBufferGrowsUpToMaxCapacity(t *testing.T) {
	b := NewSendBuffer()
	chunk := bytes.Repeat([]byte{0xAB}, api.SendBufferInitialCapacity)
	for b.Cap() < api.SendBufferMaxCapacity {
		if !b.Write(chunk) {
			break
		}
	}
	assert.LessOrEqual(t, b.Cap(), api.SendBufferMaxCapacity)
}

func TestSendBufferRejectsWriteBeyondMaxCapacity(t *testing.T) {
	b := NewSendBuffer()
	huge := make([]byte, api.SendBufferMaxCapacity+1)
	assert.False(t, b.Write(huge))
}

func TestSendBufferWatermarks(t *testing.T) {
	b := NewSendBuffer()
	assert.True(t, b.IsLowWatermark())
	assert.False(t, b.IsHighWatermark())

	require.True(t, b.Write(bytes.Repeat([]byte{1}, api.SendBufferHighWatermark+1)))
	assert.True(t, b.IsHighWatermark())
	assert.False(t, b.IsLowWatermark())
}

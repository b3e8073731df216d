// File: protocol/encoder_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessageSingleFrame(t *testing.T) {
	frames, err := EncodeMessage(1, []byte("short message"), false)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, FrameMessage, frames[0].Header.Type)
}

func TestEncodeMessageFragmentsLargePayload(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, MaxFramePayload*3)
	frames, err := EncodeMessage(2, data, false)
	require.NoError(t, err)
	assert.Greater(t, len(frames), 1)

	total := 0
	for i, f := range frames {
		hdr := decodeMessageHeader(f.Payload[:messageHeaderSize])
		assert.Equal(t, uint16(i), hdr.SequenceNum)
		assert.Equal(t, uint16(len(frames)), hdr.TotalSlices)
		total += len(f.Payload) - messageHeaderSize
	}
	assert.Equal(t, len(data), total)
}

func TestSliceCountBoundary(t *testing.T) {
	assert.Equal(t, 1, sliceCount(0, 10))
	assert.Equal(t, 1, sliceCount(10, 10))
	assert.Equal(t, 2, sliceCount(11, 10))
	assert.Equal(t, MaxMessageSlices, sliceCount(MaxMessageSlices*10, 10))
	assert.Equal(t, MaxMessageSlices+1, sliceCount(MaxMessageSlices*10+1, 10))
}

func TestEncodeStreamRoundTrip(t *testing.T) {
	start := EncodeStreamStart(10, 1024)
	assert.Equal(t, FrameStreamStart, start.Header.Type)

	chunk, err := EncodeStreamChunk(10, 0, []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, FrameStreamChunk, chunk.Header.Type)

	end := EncodeStreamEnd(10, 0xDEADBEEF)
	assert.Equal(t, FrameStreamEnd, end.Header.Type)
}

func TestEncodeStreamChunkRejectsOversizedData(t *testing.T) {
	_, err := EncodeStreamChunk(1, 0, make([]byte, MaxFramePayload))
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FrameStreamChunk, perr.FrameType)
}

// File: protocol/decoder_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderFeedAndGetMessageRoundTrip(t *testing.T) {
	frames, err := EncodeMessage(42, []byte("hello world"), false)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	d := NewDecoder(0)
	require.NoError(t, d.Feed(frames[0].Serialize()))

	msg, ok := d.GetMessage()
	require.True(t, ok)
	assert.Equal(t, uint64(42), msg.MessageID)
	assert.Equal(t, "hello world", string(msg.Data))

	_, ok = d.GetMessage()
	assert.False(t, ok)
}

// TestDecoderReassemblesAcrossFeedCalls simulates a payload split arbitrarily
// across TCP segments: the wire bytes of a multi-frame message are fed to
// the decoder three bytes at a time, and it must still reassemble correctly.
func TestDecoderReassemblesAcrossFeedCalls(t *testing.T) {
	data := make([]byte, MaxFramePayload*2+37)
	for i := range data {
		data[i] = byte(i)
	}
	frames, err := EncodeMessage(7, data, false)
	require.NoError(t, err)
	require.Greater(t, len(frames), 1)

	var wire []byte
	for _, f := range frames {
		wire = append(wire, f.Serialize()...)
	}

	d := NewDecoder(0)
	for i := 0; i < len(wire); i += 3 {
		end := i + 3
		if end > len(wire) {
			end = len(wire)
		}
		require.NoError(t, d.Feed(wire[i:end]))
	}

	msg, ok := d.GetMessage()
	require.True(t, ok)
	assert.Equal(t, uint64(7), msg.MessageID)
	assert.Equal(t, data, msg.Data)
}

func TestDecoderSkipsCorruptedFrameAndContinues(t *testing.T) {
	good1 := makeFrame(FrameMessage, append((MessageHeader{MessageID: 1, TotalSlices: 1, SequenceNum: 0}).encode(), []byte("first")...), true)
	corrupted := makeFrame(FrameMessage, append((MessageHeader{MessageID: 2, TotalSlices: 1, SequenceNum: 0}).encode(), []byte("second")...), true)
	good2 := makeFrame(FrameMessage, append((MessageHeader{MessageID: 3, TotalSlices: 1, SequenceNum: 0}).encode(), []byte("third")...), true)

	corruptedWire := corrupted.Serialize()
	corruptedWire[len(corruptedWire)-1] ^= 0xFF // flip a payload byte, breaking its CRC32

	var wire []byte
	wire = append(wire, good1.Serialize()...)
	wire = append(wire, corruptedWire...)
	wire = append(wire, good2.Serialize()...)

	d := NewDecoder(0)
	require.NoError(t, d.Feed(wire))

	msg1, ok := d.GetMessage()
	require.True(t, ok)
	assert.Equal(t, uint64(1), msg1.MessageID)

	msg2, ok := d.GetMessage()
	require.True(t, ok)
	assert.Equal(t, uint64(3), msg2.MessageID)

	_, ok = d.GetMessage()
	assert.False(t, ok)

	assert.Equal(t, uint64(1), d.GetStats().CRCErrors)
}

func TestDecoderReturnsProtocolErrorOnBadSync(t *testing.T) {
	d := NewDecoder(0)
	garbage := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	garbage = append(garbage, make([]byte, FrameHeaderSize-len(garbage))...)
	err := d.Feed(garbage)
	require.Error(t, err)
	var perr *ProtocolError
	assert.ErrorAs(t, err, &perr)
}

func TestDecoderRejectsOversizedPayloadLenWithoutWaitingForBytes(t *testing.T) {
	hdr := FrameHeader{
		Magic1:     Magic1,
		Magic2:     Magic2,
		Version:    Version,
		Type:       FrameMessage,
		PayloadLen: MaxFramePayload + 1,
	}
	encoded := hdr.encode()

	d := NewDecoder(0)
	err := d.Feed(encoded[:]) // only the header, no payload bytes at all
	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FrameMessage, perr.FrameType)
	assert.Contains(t, perr.Error(), "Message frame")
}

func TestDecoderStreamEventSequence(t *testing.T) {
	d := NewDecoder(0)
	require.NoError(t, d.Feed(EncodeStreamStart(5, 100).Serialize()))
	chunk, err := EncodeStreamChunk(5, 0, []byte("abc"))
	require.NoError(t, err)
	require.NoError(t, d.Feed(chunk.Serialize()))
	require.NoError(t, d.Feed(EncodeStreamEnd(5, 0xCAFEBABE).Serialize()))

	start, ok := d.GetStreamEvent()
	require.True(t, ok)
	assert.Equal(t, FrameStreamStart, start.Type)
	assert.Equal(t, uint64(100), start.TotalSize)

	mid, ok := d.GetStreamEvent()
	require.True(t, ok)
	assert.Equal(t, FrameStreamChunk, mid.Type)
	assert.Equal(t, "abc", string(mid.Data))

	end, ok := d.GetStreamEvent()
	require.True(t, ok)
	assert.Equal(t, FrameStreamEnd, end.Type)
	assert.Equal(t, uint32(0xCAFEBABE), end.CRC32)

	assert.Equal(t, uint64(3), d.GetStats().StreamEvents)
}

func TestDecoderCleanupTimeoutMessagesReclaimsStaleAssembly(t *testing.T) {
	frames, err := EncodeMessage(9, make([]byte, MaxFramePayload*2), false)
	require.NoError(t, err)
	require.Greater(t, len(frames), 1)

	d := NewDecoder(1) // 1ms timeout
	require.NoError(t, d.Feed(frames[0].Serialize()))
	assert.Equal(t, 1, d.GetStats().PendingMessages)

	time.Sleep(5 * time.Millisecond)
	n := d.CleanupTimeoutMessages()
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, d.GetStats().PendingMessages)
	assert.Equal(t, uint64(1), d.GetStats().TimeoutCleanups)
}

func TestDecoderResetClearsAllState(t *testing.T) {
	d := NewDecoder(0)
	require.NoError(t, d.Feed(EncodeStreamStart(1, 0).Serialize()))
	_, ok := d.GetStreamEvent()
	require.True(t, ok)

	frames, err := EncodeMessage(1, make([]byte, MaxFramePayload*2), false)
	require.NoError(t, err)
	require.NoError(t, d.Feed(frames[0].Serialize()))
	require.Equal(t, 1, d.GetStats().PendingMessages)

	d.Reset()
	stats := d.GetStats()
	assert.Equal(t, DecoderStats{}, stats)
}

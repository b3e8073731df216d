// File: protocol/decoder.go
// Stream decoder: turns a raw byte stream (as delivered by api.EventData
// payloads) back into complete messages and stream events, absorbing TCP
// coalescing/splitting transparently.
//
// A Decoder is owned by a single connection and, like reactor.SendBuffer,
// is not safe for concurrent use — it is driven exclusively from whichever
// goroutine dispatches that connection's EventData events.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "time"

// MessageComplete is a fully reassembled message.
type MessageComplete struct {
	MessageID uint64
	Data      []byte
}

// StreamEvent reports one stream-lifecycle frame. Only the fields relevant
// to Type are populated.
type StreamEvent struct {
	Type      FrameType
	StreamID  uint64
	Offset    uint64
	TotalSize uint64
	CRC32     uint32
	Data      []byte
}

// DecoderStats is a point-in-time snapshot of a Decoder's counters.
type DecoderStats struct {
	FramesReceived     uint64
	MessagesCompleted  uint64
	StreamEvents       uint64
	BytesReceived      uint64
	CRCErrors          uint64
	TimeoutCleanups    uint64
	PendingMessages    int
	BufferSize         int
}

type messageAssembly struct {
	total     uint16
	slices    [][]byte
	received  uint16
	firstSeen time.Time
}

// Decoder incrementally parses frames out of a growing byte buffer.
type Decoder struct {
	buf []byte

	messages  map[uint64]*messageAssembly
	completed []MessageComplete
	events    []StreamEvent

	timeout time.Duration
	stats   DecoderStats
}

// NewDecoder constructs a Decoder with the given message-assembly timeout.
// A zero timeout uses DefaultMessageTimeoutMS.
func NewDecoder(messageTimeoutMs uint32) *Decoder {
	if messageTimeoutMs == 0 {
		messageTimeoutMs = DefaultMessageTimeoutMS
	}
	return &Decoder{
		messages: make(map[uint64]*messageAssembly),
		timeout:  time.Duration(messageTimeoutMs) * time.Millisecond,
	}
}

// Feed appends newly received bytes and decodes as many complete frames as
// the buffer now contains. A *ProtocolError indicates the stream is
// desynchronized (bad magic/version or an inconsistent fragment) and the
// connection should be torn down; frames already decoded before the error
// remain available via GetMessage/GetStreamEvent.
func (d *Decoder) Feed(data []byte) error {
	d.buf = append(d.buf, data...)
	return d.tryDecode()
}

func (d *Decoder) tryDecode() error {
	for {
		if len(d.buf) < FrameHeaderSize {
			return nil
		}
		hdr := decodeFrameHeader(d.buf[:FrameHeaderSize])
		if !hdr.isValid() {
			return newProtocolError(hdr.Type, "bad frame sync: magic1=%#x magic2=%#x version=%#x", hdr.Magic1, hdr.Magic2, hdr.Version)
		}
		if hdr.PayloadLen > MaxFramePayload {
			return newProtocolError(hdr.Type, "frame payload_len %d exceeds MaxFramePayload %d", hdr.PayloadLen, MaxFramePayload)
		}
		total := FrameHeaderSize + int(hdr.PayloadLen)
		if len(d.buf) < total {
			return nil // wait for the rest of the frame
		}

		payload := d.buf[FrameHeaderSize:total]
		d.stats.FramesReceived++
		d.stats.BytesReceived += uint64(total)

		if hdr.Flags&FlagCRC32 != 0 {
			body, ok := verifyCRC32(payload)
			if !ok {
				d.stats.CRCErrors++
				d.buf = d.buf[total:]
				continue
			}
			payload = body
		}

		if err := d.dispatch(hdr.Type, payload); err != nil {
			return err
		}
		d.buf = d.buf[total:]
	}
}

func (d *Decoder) dispatch(t FrameType, payload []byte) error {
	switch t {
	case FrameMessage:
		return d.handleMessage(payload)
	case FrameStreamStart:
		if len(payload) < streamStartPayloadSize {
			return newProtocolError(t, "truncated StreamStart payload")
		}
		streamID, totalSize := decodeStreamStartPayload(payload)
		d.events = append(d.events, StreamEvent{Type: FrameStreamStart, StreamID: streamID, TotalSize: totalSize})
		d.stats.StreamEvents++
	case FrameStreamChunk:
		if len(payload) < streamChunkHeaderSize {
			return newProtocolError(t, "truncated StreamChunk payload")
		}
		streamID, offset := decodeStreamChunkHeader(payload)
		chunk := append([]byte(nil), payload[streamChunkHeaderSize:]...)
		d.events = append(d.events, StreamEvent{Type: FrameStreamChunk, StreamID: streamID, Offset: offset, Data: chunk})
		d.stats.StreamEvents++
	case FrameStreamEnd:
		if len(payload) < streamEndPayloadSize {
			return newProtocolError(t, "truncated StreamEnd payload")
		}
		streamID, crc := decodeStreamEndPayload(payload)
		d.events = append(d.events, StreamEvent{Type: FrameStreamEnd, StreamID: streamID, CRC32: crc})
		d.stats.StreamEvents++
	default:
		return newProtocolError(t, "unknown frame type %#x", byte(t))
	}
	return nil
}

func (d *Decoder) handleMessage(payload []byte) error {
	if len(payload) < messageHeaderSize {
		return newProtocolError(FrameMessage, "truncated MessageHeader")
	}
	hdr := decodeMessageHeader(payload[:messageHeaderSize])
	slice := payload[messageHeaderSize:]

	asm, ok := d.messages[hdr.MessageID]
	if !ok {
		asm = &messageAssembly{total: hdr.TotalSlices, slices: make([][]byte, hdr.TotalSlices), firstSeen: time.Now()}
		d.messages[hdr.MessageID] = asm
	}
	if asm.total != hdr.TotalSlices {
		return newProtocolError(FrameMessage, "message %d: total_slices mismatch %d vs %d", hdr.MessageID, asm.total, hdr.TotalSlices)
	}
	if hdr.SequenceNum >= asm.total {
		return newProtocolError(FrameMessage, "message %d: sequence %d out of range [0,%d)", hdr.MessageID, hdr.SequenceNum, asm.total)
	}
	if asm.slices[hdr.SequenceNum] == nil {
		asm.slices[hdr.SequenceNum] = append([]byte(nil), slice...)
		asm.received++
	}

	if asm.received == asm.total {
		size := 0
		for _, s := range asm.slices {
			size += len(s)
		}
		full := make([]byte, 0, size)
		for _, s := range asm.slices {
			full = append(full, s...)
		}
		d.completed = append(d.completed, MessageComplete{MessageID: hdr.MessageID, Data: full})
		delete(d.messages, hdr.MessageID)
		d.stats.MessagesCompleted++
	}
	return nil
}

// GetMessage pops the oldest completed message, if any.
func (d *Decoder) GetMessage() (MessageComplete, bool) {
	if len(d.completed) == 0 {
		return MessageComplete{}, false
	}
	msg := d.completed[0]
	d.completed = d.completed[1:]
	return msg, true
}

// GetStreamEvent pops the oldest pending stream event, if any.
func (d *Decoder) GetStreamEvent() (StreamEvent, bool) {
	if len(d.events) == 0 {
		return StreamEvent{}, false
	}
	ev := d.events[0]
	d.events = d.events[1:]
	return ev, true
}

// GetStats returns a snapshot of the decoder's counters.
func (d *Decoder) GetStats() DecoderStats {
	s := d.stats
	s.PendingMessages = len(d.messages)
	s.BufferSize = len(d.buf)
	return s
}

// CleanupTimeoutMessages evicts any message assembly that has been
// incomplete for longer than the configured timeout, returning the count
// reclaimed.
func (d *Decoder) CleanupTimeoutMessages() int {
	now := time.Now()
	n := 0
	for id, asm := range d.messages {
		if now.Sub(asm.firstSeen) > d.timeout {
			delete(d.messages, id)
			n++
		}
	}
	d.stats.TimeoutCleanups += uint64(n)
	return n
}

// Reset discards all buffered bytes, in-flight assemblies, queued output
// and accumulated statistics, returning the Decoder to its zero state.
func (d *Decoder) Reset() {
	d.buf = nil
	d.messages = make(map[uint64]*messageAssembly)
	d.completed = nil
	d.events = nil
	d.stats = DecoderStats{}
}

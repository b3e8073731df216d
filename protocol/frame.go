// File: protocol/frame.go
// FrameHeader wire layout and Frame (de)serialization. Byte order is
// explicitly little-endian throughout (encoding/binary.LittleEndian) so the
// wire format is portable across architectures.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "encoding/binary"

// FrameHeader is the fixed 16-byte header prefixing every frame's payload.
type FrameHeader struct {
	Magic1     byte
	Magic2     byte
	Version    byte
	Type       FrameType
	Flags      uint16
	PayloadLen uint32
	Reserved   uint32
	Reserved2  uint16
}

func (h FrameHeader) encode() [FrameHeaderSize]byte {
	var b [FrameHeaderSize]byte
	b[0] = h.Magic1
	b[1] = h.Magic2
	b[2] = h.Version
	b[3] = byte(h.Type)
	binary.LittleEndian.PutUint16(b[4:6], h.Flags)
	binary.LittleEndian.PutUint32(b[6:10], h.PayloadLen)
	binary.LittleEndian.PutUint32(b[10:14], h.Reserved)
	binary.LittleEndian.PutUint16(b[14:16], h.Reserved2)
	return b
}

func decodeFrameHeader(b []byte) FrameHeader {
	return FrameHeader{
		Magic1:     b[0],
		Magic2:     b[1],
		Version:    b[2],
		Type:       FrameType(b[3]),
		Flags:      binary.LittleEndian.Uint16(b[4:6]),
		PayloadLen: binary.LittleEndian.Uint32(b[6:10]),
		Reserved:   binary.LittleEndian.Uint32(b[10:14]),
		Reserved2:  binary.LittleEndian.Uint16(b[14:16]),
	}
}

func (h FrameHeader) isValid() bool {
	return h.Magic1 == Magic1 && h.Magic2 == Magic2 && h.Version == Version
}

// Frame is one wire unit: a header plus its payload bytes.
type Frame struct {
	Header  FrameHeader
	Payload []byte
}

// Serialize renders the frame as a single contiguous byte slice ready to
// hand to a Reactor's SendData/SendAsync.
func (f Frame) Serialize() []byte {
	hdr := f.Header.encode()
	out := make([]byte, 0, FrameHeaderSize+len(f.Payload))
	out = append(out, hdr[:]...)
	out = append(out, f.Payload...)
	return out
}

func makeFrame(t FrameType, payload []byte, enableCRC bool) Frame {
	flags := uint16(0)
	if enableCRC {
		payload = appendCRC32(payload)
		flags |= FlagCRC32
	}
	return Frame{
		Header: FrameHeader{
			Magic1:     Magic1,
			Magic2:     Magic2,
			Version:    Version,
			Type:       t,
			Flags:      flags,
			PayloadLen: uint32(len(payload)),
		},
		Payload: payload,
	}
}

// MessageHeader prefixes every Message-type frame's payload.
type MessageHeader struct {
	MessageID    uint64
	TotalSlices  uint16
	SequenceNum  uint16
}

const messageHeaderSize = 12

func (h MessageHeader) encode() []byte {
	b := make([]byte, messageHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], h.MessageID)
	binary.LittleEndian.PutUint16(b[8:10], h.TotalSlices)
	binary.LittleEndian.PutUint16(b[10:12], h.SequenceNum)
	return b
}

func decodeMessageHeader(b []byte) MessageHeader {
	return MessageHeader{
		MessageID:   binary.LittleEndian.Uint64(b[0:8]),
		TotalSlices: binary.LittleEndian.Uint16(b[8:10]),
		SequenceNum: binary.LittleEndian.Uint16(b[10:12]),
	}
}

const streamStartPayloadSize = 16

func encodeStreamStartPayload(streamID, totalSize uint64) []byte {
	b := make([]byte, streamStartPayloadSize)
	binary.LittleEndian.PutUint64(b[0:8], streamID)
	binary.LittleEndian.PutUint64(b[8:16], totalSize)
	return b
}

func decodeStreamStartPayload(b []byte) (streamID, totalSize uint64) {
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16])
}

const streamChunkHeaderSize = 16

func encodeStreamChunkHeader(streamID, offset uint64) []byte {
	b := make([]byte, streamChunkHeaderSize)
	binary.LittleEndian.PutUint64(b[0:8], streamID)
	binary.LittleEndian.PutUint64(b[8:16], offset)
	return b
}

func decodeStreamChunkHeader(b []byte) (streamID, offset uint64) {
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint64(b[8:16])
}

const streamEndPayloadSize = 12

func encodeStreamEndPayload(streamID uint64, crc32Val uint32) []byte {
	b := make([]byte, streamEndPayloadSize)
	binary.LittleEndian.PutUint64(b[0:8], streamID)
	binary.LittleEndian.PutUint32(b[8:12], crc32Val)
	return b
}

func decodeStreamEndPayload(b []byte) (streamID uint64, crc32Val uint32) {
	return binary.LittleEndian.Uint64(b[0:8]), binary.LittleEndian.Uint32(b[8:12])
}

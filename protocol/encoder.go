// File: protocol/encoder.go
// Message fragmentation and stream frame construction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

// messageChunkSize returns the maximum payload bytes one Message fragment
// can carry once the MessageHeader and (if enabled) CRC32 trailer are
// accounted for.
func messageChunkSize(enableCRC bool) int {
	overhead := messageHeaderSize
	if enableCRC {
		overhead += crc32Size
	}
	return MaxFramePayload - overhead
}

// sliceCount computes how many Message fragments dataLen bytes need at the
// given chunk size, split out of EncodeMessage so the MaxMessageSlices
// boundary can be exercised without materializing gigabyte-scale payloads.
func sliceCount(dataLen, chunkSize int) int {
	if dataLen == 0 {
		return 1
	}
	return (dataLen + chunkSize - 1) / chunkSize
}

// EncodeMessage splits data into one or more Message frames, each no larger
// than MaxFramePayload including its MessageHeader and optional CRC32
// trailer. Returns a *ProtocolError if data would require more than
// MaxMessageSlices fragments.
func EncodeMessage(messageID uint64, data []byte, enableCRC bool) ([]Frame, error) {
	chunkSize := messageChunkSize(enableCRC)
	total := sliceCount(len(data), chunkSize)
	if total > MaxMessageSlices {
		return nil, newProtocolError(FrameMessage, "message %d requires %d slices, exceeds MaxMessageSlices %d", messageID, total, MaxMessageSlices)
	}

	frames := make([]Frame, 0, total)
	for i := 0; i < total; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(data) {
			end = len(data)
		}
		hdr := MessageHeader{MessageID: messageID, TotalSlices: uint16(total), SequenceNum: uint16(i)}
		payload := append(hdr.encode(), data[start:end]...)
		frames = append(frames, makeFrame(FrameMessage, payload, enableCRC))
	}
	return frames, nil
}

// EncodeStreamStart builds the single frame that opens a stream. totalSize
// of 0 means the stream's length is not known up front.
func EncodeStreamStart(streamID, totalSize uint64) Frame {
	return makeFrame(FrameStreamStart, encodeStreamStartPayload(streamID, totalSize), false)
}

// EncodeStreamChunk builds one data-carrying frame within a stream.
func EncodeStreamChunk(streamID, offset uint64, data []byte) (Frame, error) {
	if len(data) > MaxFramePayload-streamChunkHeaderSize {
		return Frame{}, newProtocolError(FrameStreamChunk, "stream %d chunk of %d bytes exceeds max frame payload", streamID, len(data))
	}
	payload := append(encodeStreamChunkHeader(streamID, offset), data...)
	return makeFrame(FrameStreamChunk, payload, false), nil
}

// EncodeStreamEnd builds the frame that closes a stream. crc32Val of 0
// means no whole-stream checksum is being asserted.
func EncodeStreamEnd(streamID uint64, crc32Val uint32) Frame {
	return makeFrame(FrameStreamEnd, encodeStreamEndPayload(streamID, crc32Val), false)
}

// SerializeFrames renders each frame to its wire bytes, in order, ready to
// hand off to a Reactor one at a time or concatenated.
func SerializeFrames(frames []Frame) [][]byte {
	out := make([][]byte, len(frames))
	for i, f := range frames {
		out[i] = f.Serialize()
	}
	return out
}

// File: reactor/sendbuffer.go
// Per-connection outbound byte buffer with compaction and watermarks.
// Touched only by the owning Reactor's loop thread; no locking of its own.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/netreactor/api"
)

// SendBuffer is a linear byte region with 0 <= readPos <= writePos <=
// len(buf). Capacity grows by doubling up to api.SendBufferMaxCapacity.
type SendBuffer struct {
	buf      []byte
	readPos  int
	writePos int
}

// NewSendBuffer allocates a SendBuffer at the default initial capacity.
func NewSendBuffer() *SendBuffer {
	return &SendBuffer{buf: make([]byte, api.SendBufferInitialCapacity)}
}

// Size returns the number of unsent bytes currently buffered.
func (b *SendBuffer) Size() int { return b.writePos - b.readPos }

// Cap returns the buffer's current allocated capacity.
func (b *SendBuffer) Cap() int { return len(b.buf) }

// IsHighWatermark reports whether the buffer has reached the congestion
// threshold.
func (b *SendBuffer) IsHighWatermark() bool { return b.Size() >= api.SendBufferHighWatermark }

// IsLowWatermark reports whether the buffer has drained below the
// congestion-relief threshold.
func (b *SendBuffer) IsLowWatermark() bool { return b.Size() < api.SendBufferLowWatermark }

// compact moves any unread bytes to offset 0. O(n) but amortized: only
// triggered once readPos exceeds half of capacity.
func (b *SendBuffer) compact() {
	if b.readPos == 0 {
		return
	}
	n := copy(b.buf, b.buf[b.readPos:b.writePos])
	b.readPos = 0
	b.writePos = n
}

// Write appends data, compacting and/or growing as needed. Returns false if
// the buffer cannot be grown far enough to hold the append.
func (b *SendBuffer) Write(data []byte) bool {
	need := len(data)
	if need == 0 {
		return true
	}

	if b.writePos+need > len(b.buf) {
		if b.readPos > len(b.buf)/2 {
			b.compact()
		}
	}

	for b.writePos+need > len(b.buf) {
		if len(b.buf) >= api.SendBufferMaxCapacity {
			return false
		}
		newCap := len(b.buf) * 2
		if newCap > api.SendBufferMaxCapacity {
			newCap = api.SendBufferMaxCapacity
		}
		grown := make([]byte, newCap)
		copy(grown, b.buf[:b.writePos])
		b.buf = grown
	}

	copy(b.buf[b.writePos:], data)
	b.writePos += need
	return true
}

// sendResult classifies the outcome of a single SendToSocket attempt.
type sendResult int

const (
	sendOK sendResult = iota
	sendRetry
	sendFailed
)

// SendToSocket flushes as much of the buffer as the socket accepts in one
// non-blocking send(2). Returns the number of bytes sent, the result
// classification, and the raw error for logging (nil on sendRetry).
func (b *SendBuffer) SendToSocket(fd int) (int, sendResult, error) {
	if b.Size() == 0 {
		return 0, sendOK, nil
	}
	n, err := unix.SendmsgN(fd, b.buf[b.readPos:b.writePos], nil, nil, sendFlags)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return 0, sendRetry, nil
		}
		return 0, sendFailed, err
	}
	b.readPos += n
	if b.readPos == b.writePos {
		b.readPos = 0
		b.writePos = 0
	} else if b.readPos > len(b.buf)/2 {
		b.compact()
	}
	return n, sendOK, nil
}

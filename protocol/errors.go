// File: protocol/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import "fmt"

// ProtocolError signals a framing-level fault: bad magic/version, a message
// or stream chunk larger than the wire allows, or a fragment sequence that
// doesn't fit the assembly it claims to belong to. Distinct from api.Error
// since it never crosses the Reactor boundary — callers translate it to
// api.ErrProtocolViolation before emitting an EventError.
type ProtocolError struct {
	FrameType FrameType
	Message   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s frame: %s", e.FrameType, e.Message)
}

func newProtocolError(ft FrameType, format string, args ...any) *ProtocolError {
	return &ProtocolError{FrameType: ft, Message: fmt.Sprintf(format, args...)}
}

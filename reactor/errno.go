// File: reactor/errno.go
// errno -> api.NetworkError mapping. Semantic, not syscall-level:
// applications decide on the NetworkError value, never on the raw errno.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"golang.org/x/sys/unix"

	"github.com/momentics/netreactor/api"
)

// mapErrno translates a syscall errno into the semantic NetworkError
// taxonomy. Unmapped errors fall back to api.ErrSyscallFailure; the original
// errno text is preserved by the caller for the advisory diagnostic string.
func mapErrno(err error) api.NetworkError {
	errno, ok := err.(unix.Errno)
	if !ok {
		return api.ErrSyscallFailure
	}
	switch errno {
	case unix.ECONNRESET:
		return api.ErrResetByPeer
	case unix.ETIMEDOUT:
		return api.ErrTimeout
	case unix.EPIPE:
		return api.ErrPeerClosed
	case unix.ECONNREFUSED:
		return api.ErrConnectionRefused
	case unix.ENETUNREACH, unix.EHOSTUNREACH:
		return api.ErrNetworkUnreachable
	default:
		return api.ErrSyscallFailure
	}
}

// isRetryable reports whether a syscall error means "try again"
// (EAGAIN/EWOULDBLOCK/EINTR).
func isRetryable(err error) bool {
	errno, ok := err.(unix.Errno)
	if !ok {
		return false
	}
	return errno == unix.EAGAIN || errno == unix.EWOULDBLOCK || errno == unix.EINTR
}

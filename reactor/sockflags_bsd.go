//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: reactor/sockflags_bsd.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "golang.org/x/sys/unix"

// sendFlags carries MSG_DONTWAIT only; SIGPIPE suppression on BSD/Darwin is
// via SO_NOSIGPIPE, set on each TCP socket by setTCPOpts in socket.go.
const sendFlags = unix.MSG_DONTWAIT

// setNoSigPipe sets SO_NOSIGPIPE, the BSD/Darwin equivalent of Linux's
// per-send MSG_NOSIGNAL flag.
func setNoSigPipe(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_NOSIGPIPE, 1)
}

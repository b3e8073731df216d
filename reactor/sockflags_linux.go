//go:build linux

// File: reactor/sockflags_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "golang.org/x/sys/unix"

// sendFlags carries MSG_DONTWAIT|MSG_NOSIGNAL; Linux is the only POSIX
// platform with MSG_NOSIGNAL (Darwin/BSD rely on SO_NOSIGPIPE instead, set
// on each TCP socket by setTCPOpts in socket.go).
const sendFlags = unix.MSG_DONTWAIT | unix.MSG_NOSIGNAL

// setNoSigPipe is a no-op on Linux: MSG_NOSIGNAL in sendFlags already
// suppresses SIGPIPE on every send(2) call.
func setNoSigPipe(fd int) error { return nil }

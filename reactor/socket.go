// File: reactor/socket.go
// Raw, non-blocking socket construction and teardown helpers shared by the
// listener (accept side) and the dialer (connect side). Sockets are built
// and driven at the raw fd/syscall level rather than through net.Conn: the
// Reactor must be the sole reader/writer of every fd it owns, and a
// net.Conn wrapping the same fd would fight it for that fd via the Go
// runtime's own netpoller.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/momentics/netreactor/api"
)

func init() {
	// SIGPIPE must be ignored process-wide so a write to a peer-closed
	// socket surfaces as EPIPE, not process termination.
	signal.Ignore(syscall.SIGPIPE)
}

const maxUnixPathLen = 100

func setNonBlocking(fd int) error {
	return unix.SetNonblock(fd, true)
}

func setReuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func setTCPOpts(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("setsockopt TCP_NODELAY: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return fmt.Errorf("setsockopt SO_KEEPALIVE: %w", err)
	}
	return setNoSigPipe(fd)
}

func inet4Sockaddr(host string, port uint16) (*unix.SockaddrInet4, error) {
	ip := net.IPv4zero
	if host != "" {
		parsed := net.ParseIP(host)
		if parsed == nil {
			return nil, fmt.Errorf("%w: invalid IPv4 host %q", api.ErrInvalidArgument, host)
		}
		ip = parsed
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%w: %q is not an IPv4 address", api.ErrInvalidArgument, host)
	}
	sa := &unix.SockaddrInet4{Port: int(port)}
	copy(sa.Addr[:], ip4)
	return sa, nil
}

func inet6Sockaddr(host string, port uint16) (*unix.SockaddrInet6, error) {
	ip := net.IPv6zero
	if host != "" {
		parsed := net.ParseIP(host)
		if parsed == nil {
			return nil, fmt.Errorf("%w: invalid IPv6 host %q", api.ErrInvalidArgument, host)
		}
		ip = parsed
	}
	ip6 := ip.To16()
	if ip6 == nil {
		return nil, fmt.Errorf("%w: %q is not an IPv6 address", api.ErrInvalidArgument, host)
	}
	sa := &unix.SockaddrInet6{Port: int(port)}
	copy(sa.Addr[:], ip6)
	return sa, nil
}

func unixSockaddr(path string) (*unix.SockaddrUnix, error) {
	if len(path) > maxUnixPathLen {
		return nil, api.ErrPathTooLong
	}
	return &unix.SockaddrUnix{Name: path}, nil
}

// ListenSocket creates, binds and listens on one socket for the given
// address family. protocol must be ProtoIPv4, ProtoIPv6 or ProtoUnixDomain
// (ProtoUniversalIP is handled by the caller as two ListenSocket calls).
func ListenSocket(cfg api.SocketConfig, family api.SocketProtocol) (fd int, err error) {
	var domain int
	switch family {
	case api.ProtoIPv4:
		domain = unix.AF_INET
	case api.ProtoIPv6:
		domain = unix.AF_INET6
	case api.ProtoUnixDomain:
		domain = unix.AF_UNIX
	default:
		return -1, fmt.Errorf("%w: unsupported listen family", api.ErrInvalidArgument)
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	cleanup := func() { unix.Close(fd) }

	if family != api.ProtoUnixDomain {
		if err = setReuseAddr(fd); err != nil {
			cleanup()
			return -1, err
		}
	} else {
		_ = os.Remove(cfg.Host)
	}
	if err = setNonBlocking(fd); err != nil {
		cleanup()
		return -1, err
	}

	var sa unix.Sockaddr
	switch family {
	case api.ProtoIPv4:
		sa, err = inet4Sockaddr(cfg.Host, cfg.Port)
	case api.ProtoIPv6:
		sa, err = inet6Sockaddr(cfg.Host, cfg.Port)
	case api.ProtoUnixDomain:
		sa, err = unixSockaddr(cfg.Host)
	}
	if err != nil {
		cleanup()
		return -1, err
	}

	if err = unix.Bind(fd, sa); err != nil {
		cleanup()
		return -1, fmt.Errorf("bind: %w", err)
	}
	backlog := cfg.Backlog
	if backlog <= 0 {
		backlog = api.DefaultBacklog
	}
	if err = unix.Listen(fd, backlog); err != nil {
		cleanup()
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// AcceptSocket accepts one connection off a listening fd and returns it
// already set non-blocking, with TCP_NODELAY/SO_KEEPALIVE applied for
// non-Unix families, plus its peer address translated to
// api.ConnectionInfo-shaped values.
func AcceptSocket(listenFd int) (fd int, peerAddr string, peerPort uint16, isUnix bool, err error) {
	nfd, sa, err := unix.Accept(listenFd)
	if err != nil {
		return -1, "", 0, false, err
	}
	if err = unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, "", 0, false, err
	}
	peerAddr, peerPort, isUnix = sockaddrInfo(sa)
	if !isUnix {
		if err = setTCPOpts(nfd); err != nil {
			unix.Close(nfd)
			return -1, "", 0, false, err
		}
	}
	return nfd, peerAddr, peerPort, isUnix, nil
}

func sockaddrInfo(sa unix.Sockaddr) (addr string, port uint16, isUnix bool) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return net.IP(v.Addr[:]).String(), uint16(v.Port), false
	case *unix.SockaddrInet6:
		return net.IP(v.Addr[:]).String(), uint16(v.Port), false
	case *unix.SockaddrUnix:
		return v.Name, 0, true
	default:
		return "", 0, false
	}
}

// DialSocket creates a non-blocking socket and issues connect(2), returning
// whether the connect is still in progress (EINPROGRESS) for the caller to
// arm write-readiness and confirm via getsockopt(SO_ERROR) later.
func DialSocket(cfg api.SocketConfig) (fd int, inProgress bool, peerAddr string, peerPort uint16, isUnix bool, err error) {
	var domain int
	var sa unix.Sockaddr
	switch cfg.Protocol {
	case api.ProtoIPv4:
		domain = unix.AF_INET
		var sa4 *unix.SockaddrInet4
		sa4, err = inet4Sockaddr(cfg.Host, cfg.Port)
		sa = sa4
	case api.ProtoIPv6:
		domain = unix.AF_INET6
		var sa6 *unix.SockaddrInet6
		sa6, err = inet6Sockaddr(cfg.Host, cfg.Port)
		sa = sa6
	case api.ProtoUnixDomain:
		domain = unix.AF_UNIX
		var sau *unix.SockaddrUnix
		sau, err = unixSockaddr(cfg.Host)
		sa = sau
	default:
		err = fmt.Errorf("%w: unsupported dial family", api.ErrInvalidArgument)
	}
	if err != nil {
		return -1, false, "", 0, false, err
	}

	fd, err = unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, false, "", 0, false, fmt.Errorf("socket: %w", err)
	}
	if err = setNonBlocking(fd); err != nil {
		unix.Close(fd)
		return -1, false, "", 0, false, err
	}
	if cfg.Protocol != api.ProtoUnixDomain {
		if err = setTCPOpts(fd); err != nil {
			unix.Close(fd)
			return -1, false, "", 0, false, err
		}
	}

	err = unix.Connect(fd, sa)
	peerAddr, peerPort, isUnix = sockaddrInfo(sa)
	if err == nil {
		return fd, false, peerAddr, peerPort, isUnix, nil
	}
	if err == unix.EINPROGRESS {
		return fd, true, peerAddr, peerPort, isUnix, nil
	}
	unix.Close(fd)
	return -1, false, "", 0, false, fmt.Errorf("connect: %w", err)
}

// socketError performs getsockopt(SO_ERROR), the standard confirmation
// step after a non-blocking connect becomes writable.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

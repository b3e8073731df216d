//go:build linux

// File: iomon/epoll_linux.go
// Linux epoll backend for the Monitor abstraction, built on
// golang.org/x/sys/unix's EpollCreate1/EpollCtl/EpollWait bindings so the
// same import backs both this file and the kqueue backend in kqueue_bsd.go.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package iomon

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type epollMonitor struct {
	epfd int

	mu    sync.Mutex
	state map[int]uint32 // fd -> currently armed epoll event mask
}

func newPlatformMonitor() (Monitor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("iomon: epoll_create1: %w", err)
	}
	return &epollMonitor{epfd: epfd, state: make(map[int]uint32)}, nil
}

func (m *epollMonitor) apply(fd int, mask uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, exists := m.state[fd]
	if mask == 0 {
		if !exists {
			return nil
		}
		delete(m.state, fd)
		return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}

	ev := &unix.EpollEvent{Events: mask, Fd: int32(fd)}
	if !exists {
		m.state[fd] = mask
		return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, ev)
	}
	if cur == mask {
		return nil
	}
	m.state[fd] = mask
	return unix.EpollCtl(m.epfd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (m *epollMonitor) StartRead(fd int) error {
	m.mu.Lock()
	mask := m.state[fd] | unix.EPOLLIN
	m.mu.Unlock()
	return m.apply(fd, mask)
}

func (m *epollMonitor) StartWrite(fd int) error {
	m.mu.Lock()
	mask := m.state[fd] | unix.EPOLLOUT
	m.mu.Unlock()
	return m.apply(fd, mask)
}

func (m *epollMonitor) StopWrite(fd int) error {
	m.mu.Lock()
	mask := m.state[fd] &^ unix.EPOLLOUT
	m.mu.Unlock()
	return m.apply(fd, mask)
}

func (m *epollMonitor) Remove(fd int) error {
	return m.apply(fd, 0)
}

func (m *epollMonitor) Wait(dst []Event, timeoutMs int) ([]Event, error) {
	var raw [DefaultBatchSize]unix.EpollEvent
	for {
		n, err := unix.EpollWait(m.epfd, raw[:], timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, fmt.Errorf("iomon: epoll_wait: %w", err)
		}
		for i := 0; i < n; i++ {
			e := raw[i]
			dst = append(dst, Event{
				Fd:       int(e.Fd),
				Readable: e.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
				Writable: e.Events&unix.EPOLLOUT != 0,
				Hup:      e.Events&unix.EPOLLHUP != 0,
				Err:      e.Events&unix.EPOLLERR != 0,
			})
		}
		return dst, nil
	}
}

func (m *epollMonitor) Close() error {
	return unix.Close(m.epfd)
}

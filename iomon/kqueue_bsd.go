//go:build darwin || dragonfly || freebsd || netbsd || openbsd

// File: iomon/kqueue_bsd.go
// Darwin/BSD kqueue backend for the Monitor abstraction, built on
// golang.org/x/sys/unix's changelist/eventlist bindings, the only portable
// place kevent/kqueue are exposed consistently across BSD variants.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package iomon

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type kqueueMonitor struct {
	kq int

	mu    sync.Mutex
	read  map[int]bool
	write map[int]bool
}

func newPlatformMonitor() (Monitor, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("iomon: kqueue: %w", err)
	}
	return &kqueueMonitor{kq: kq, read: make(map[int]bool), write: make(map[int]bool)}, nil
}

func (m *kqueueMonitor) change(fd int, filter int16, flags uint16) error {
	kev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
	_, err := unix.Kevent(m.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (m *kqueueMonitor) StartRead(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.read[fd] {
		return nil
	}
	if err := m.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		return fmt.Errorf("iomon: kevent add read: %w", err)
	}
	m.read[fd] = true
	return nil
}

func (m *kqueueMonitor) StartWrite(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.write[fd] {
		return nil
	}
	if err := m.change(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		return fmt.Errorf("iomon: kevent add write: %w", err)
	}
	m.write[fd] = true
	return nil
}

func (m *kqueueMonitor) StopWrite(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.write[fd] {
		return nil
	}
	delete(m.write, fd)
	if err := m.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE); err != nil && err != unix.ENOENT {
		return fmt.Errorf("iomon: kevent del write: %w", err)
	}
	return nil
}

func (m *kqueueMonitor) Remove(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.read[fd] {
		_ = m.change(fd, unix.EVFILT_READ, unix.EV_DELETE)
		delete(m.read, fd)
	}
	if m.write[fd] {
		_ = m.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
		delete(m.write, fd)
	}
	return nil
}

func (m *kqueueMonitor) Wait(dst []Event, timeoutMs int) ([]Event, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1_000_000)
		ts = &t
	}

	var raw [DefaultBatchSize]unix.Kevent_t
	for {
		n, err := unix.Kevent(m.kq, nil, raw[:], ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, fmt.Errorf("iomon: kevent wait: %w", err)
		}
		// events is capacity-bounded to n so the pointers taken into it below
		// stay valid for the rest of this Wait call despite further appends.
		events := make([]Event, 0, n)
		byFd := make(map[int]*Event, n)
		for i := 0; i < n; i++ {
			k := raw[i]
			fd := int(k.Ident)
			ev, ok := byFd[fd]
			if !ok {
				events = append(events, Event{Fd: fd})
				ev = &events[len(events)-1]
				byFd[fd] = ev
			}
			switch k.Filter {
			case unix.EVFILT_READ:
				ev.Readable = true
			case unix.EVFILT_WRITE:
				ev.Writable = true
			}
			if k.Flags&unix.EV_EOF != 0 {
				ev.Hup = true
			}
			if k.Flags&unix.EV_ERROR != 0 {
				ev.Err = true
			}
		}
		return append(dst, events...), nil
	}
}

func (m *kqueueMonitor) Close() error {
	return unix.Close(m.kq)
}

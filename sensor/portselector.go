// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2020
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

// Package sensor implements the sensor read loop (C6): an epoll-driven
// PortSelector that fans readable file descriptors out to per-sensor byte
// scanners, plus the scanners, timetagging and despike chaining for the
// three framing disciplines (separator, length-prefixed, fixed-length).
package sensor

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// FDHandler is anything the PortSelector can multiplex reads for: a
// Sensor's raw byte stream.
type FDHandler interface {
	FD() int
	OnReadable() error
}

// PortSelector is the epoll read loop every DSM process runs on its own
// goroutine: it polls registered sensor fds with an idle timeout (default
// 100ms, matching the original's select(2) timeout) and dispatches
// readability to each fd's handler. Registration changes are queued as
// "pending" and promoted to the live "active" set only between polls,
// under a short lock, exactly as the original's portsChanged flag gates
// handleChangedPorts.
type PortSelector struct {
	mu sync.Mutex

	epfd int

	pendingSensors map[int]FDHandler
	activeSensors  map[int]FDHandler
	sensorsChanged bool

	TimeoutMsec      int
	StatisticsPeriod time.Duration

	stop chan struct{}
}

// NewPortSelector creates a PortSelector with its epoll instance open.
func NewPortSelector() (*PortSelector, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("sensor: epoll_create1: %w", err)
	}
	return &PortSelector{
		epfd:             epfd,
		pendingSensors:   map[int]FDHandler{},
		activeSensors:    map[int]FDHandler{},
		TimeoutMsec:      100,
		StatisticsPeriod: 300 * time.Second,
		stop:             make(chan struct{}),
	}, nil
}

// Register queues a sensor's fd for promotion into the active poll set on
// the next loop iteration.
func (p *PortSelector) Register(h FDHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingSensors[h.FD()] = h
	p.sensorsChanged = true
}

// Unregister removes a sensor's fd, queued for the next promotion pass.
func (p *PortSelector) Unregister(h FDHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pendingSensors, h.FD())
	p.sensorsChanged = true
}

func (p *PortSelector) promote() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sensorsChanged {
		p.resync(p.activeSensors, p.pendingSensors)
		p.activeSensors = cloneHandlers(p.pendingSensors)
		p.sensorsChanged = false
	}
}

func cloneHandlers(m map[int]FDHandler) map[int]FDHandler {
	out := make(map[int]FDHandler, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// resync reconciles the kernel epoll set with the new desired set,
// removing fds no longer wanted and adding newly pending ones.
func (p *PortSelector) resync(active, pending map[int]FDHandler) {
	for fd := range active {
		if _, ok := pending[fd]; !ok {
			_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
		}
	}
	for fd := range pending {
		if _, ok := active[fd]; ok {
			continue
		}
		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
	}
}

// Run drives the poll loop until Stop is called. Each readable fd's
// handler is invoked synchronously on the loop's own goroutine, matching
// the original single-threaded select loop: a slow sensor handler delays
// every other sensor's next read, which is why sensor.Scanner keeps its
// per-call work bounded to one ring-buffer fill.
func (p *PortSelector) Run() error {
	events := make([]unix.EpollEvent, 64)
	for {
		select {
		case <-p.stop:
			return nil
		default:
		}

		p.promote()

		n, err := unix.EpollWait(p.epfd, events, p.TimeoutMsec)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("sensor: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			p.mu.Lock()
			h, ok := p.activeSensors[fd]
			p.mu.Unlock()
			if !ok {
				continue
			}
			_ = h.OnReadable()
		}
	}
}

// Stop ends the Run loop after its current iteration.
func (p *PortSelector) Stop() {
	close(p.stop)
}

// Close releases the epoll instance.
func (p *PortSelector) Close() error {
	return unix.Close(p.epfd)
}

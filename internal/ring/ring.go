// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2022
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

// Package ring is a fixed-capacity byte ring buffer, the per-sensor
// scratch space between a PortSelector read and the sensor's framing
// scanner. It is adapted from the teacher's IQ-slot RingBuffer
// (hz.tools/sdr/stream.RingBuffer): same read/write cursor and
// overwrite-on-full discipline, but over a plain byte buffer instead of
// fixed-size IQ slots, since sensor frames are variable length.
package ring

import (
	"fmt"
	"sync"
)

// ErrOverrun is returned by Write when the buffer is full and Overwrite
// is false.
var ErrOverrun = fmt.Errorf("ring: buffer overrun")

// Buffer is a fixed-capacity byte ring buffer. It is safe for concurrent
// use; a single sensor typically has one reader (its scanner) and one
// writer (the PortSelector callback), both invoked from the same
// goroutine, but Buffer does not assume that.
type Buffer struct {
	mu sync.Mutex

	buf  []byte
	r, w int
	full bool

	// Overwrite, when true, lets Write silently drop the oldest unread
	// bytes to make room rather than returning ErrOverrun.
	Overwrite bool
}

// NewBuffer creates a Buffer with the given byte capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, capacity)}
}

// Len returns the number of unread bytes currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lenLocked()
}

func (b *Buffer) lenLocked() int {
	if b.full {
		return len(b.buf)
	}
	if b.w >= b.r {
		return b.w - b.r
	}
	return len(b.buf) - b.r + b.w
}

// Write appends p to the buffer. If there isn't enough room and
// Overwrite is false, it returns ErrOverrun without writing anything;
// Write never writes a partial p.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	free := len(b.buf) - b.lenLocked()
	if len(p) > free {
		if !b.Overwrite {
			return 0, ErrOverrun
		}
		// Drop the oldest bytes to make room.
		drop := len(p) - free
		b.r = (b.r + drop) % len(b.buf)
		if drop >= b.lenLocked() {
			b.full = false
		}
	}

	for _, c := range p {
		b.buf[b.w] = c
		b.w = (b.w + 1) % len(b.buf)
		if b.w == b.r {
			b.full = true
		}
	}
	return len(p), nil
}

// Peek copies up to len(p) unread bytes into p without consuming them,
// returning the number copied. Used by scanners that need to look ahead
// for a separator or a length prefix before deciding how much to
// Discard.
func (b *Buffer) Peek(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.lenLocked()
	if n > len(p) {
		n = len(p)
	}
	idx := b.r
	for i := 0; i < n; i++ {
		p[i] = b.buf[idx]
		idx = (idx + 1) % len(b.buf)
	}
	return n
}

// Discard advances the read cursor past n bytes, consuming them. An n
// larger than Len() is clamped to Len().
func (b *Buffer) Discard(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return
	}
	avail := b.lenLocked()
	if n > avail {
		n = avail
	}
	if n > 0 {
		b.full = false
	}
	b.r = (b.r + n) % len(b.buf)
}

// Read copies and consumes up to len(p) unread bytes.
func (b *Buffer) Read(p []byte) (int, error) {
	n := b.Peek(p)
	b.Discard(n)
	return n, nil
}

// Cap returns the buffer's fixed byte capacity.
func (b *Buffer) Cap() int {
	return len(b.buf)
}

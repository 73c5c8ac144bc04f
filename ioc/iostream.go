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

package ioc

import (
	"sync"
	"time"
)

// defaultHighWater is the buffer size, in bytes, at which OutputStream
// flushes regardless of elapsed latency.
const defaultHighWater = 16 * 1024

// OutputStream wraps a Channel with the latency-bounded buffering policy
// of §4.3: flush when the buffer crosses HighWater, when Latency has
// elapsed since the last flush, or when Flush is called explicitly.
type OutputStream struct {
	mu sync.Mutex

	channel   Channel
	HighWater int
	Latency   time.Duration

	buf        []byte
	lastFlush  time.Time
}

// NewOutputStream wraps channel with the given flush latency. A latency
// of zero disables the time-based flush trigger (only size and explicit
// Flush apply).
func NewOutputStream(channel Channel, latency time.Duration) *OutputStream {
	return &OutputStream{
		channel:   channel,
		HighWater: defaultHighWater,
		Latency:   latency,
		lastFlush: time.Now(),
	}
}

// Write appends p to the internal buffer, flushing first if either
// trigger condition is already met, and again afterward if the append
// itself crossed HighWater.
func (o *OutputStream) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.shouldFlushLocked() {
		if err := o.flushLocked(); err != nil {
			return 0, err
		}
	}
	o.buf = append(o.buf, p...)
	if len(o.buf) >= o.HighWater {
		if err := o.flushLocked(); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

// Flush forces the buffered bytes out to the underlying Channel.
func (o *OutputStream) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushLocked()
}

func (o *OutputStream) shouldFlushLocked() bool {
	if len(o.buf) == 0 {
		return false
	}
	if o.Latency > 0 && time.Since(o.lastFlush) >= o.Latency {
		return true
	}
	return false
}

func (o *OutputStream) flushLocked() error {
	if len(o.buf) == 0 {
		o.lastFlush = time.Now()
		return nil
	}
	if _, err := o.channel.Write(o.buf); err != nil {
		return err
	}
	o.buf = o.buf[:0]
	o.lastFlush = time.Now()
	return nil
}

// Close flushes and closes the underlying Channel.
func (o *OutputStream) Close() error {
	if err := o.Flush(); err != nil {
		return err
	}
	return o.channel.Close()
}

const defaultReadBuf = 8 * 1024

// InputStream wraps a Channel with read buffering and a pushback
// ("backup") capability: a consumer that peeked too far (e.g. the header
// parser probing for a magic string) can return up to its entire current
// buffer to be re-read, per §4.3's "backup of >=1 line" requirement.
type InputStream struct {
	channel Channel
	buf     []byte
	pos     int
}

// NewInputStream wraps channel for buffered reads.
func NewInputStream(channel Channel) *InputStream {
	return &InputStream{channel: channel}
}

// Read returns up to len(p) bytes, refilling from the underlying Channel
// when the internal buffer is exhausted.
func (in *InputStream) Read(p []byte) (int, error) {
	if in.pos >= len(in.buf) {
		if err := in.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, in.buf[in.pos:])
	in.pos += n
	return n, nil
}

func (in *InputStream) fill() error {
	buf := make([]byte, defaultReadBuf)
	n, err := in.channel.Read(buf)
	if err != nil {
		return err
	}
	in.buf = buf[:n]
	in.pos = 0
	return nil
}

// Backup pushes n previously read bytes back to be returned by the next
// Read, used by the archive header parser when a magic-string match
// fails partway through. n must not exceed the number of bytes already
// consumed from the current internal buffer.
func (in *InputStream) Backup(n int) {
	if n > in.pos {
		n = in.pos
	}
	in.pos -= n
}

// Close closes the underlying Channel.
func (in *InputStream) Close() error {
	return in.channel.Close()
}

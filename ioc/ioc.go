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

// Package ioc provides the byte-transport layer under the sample pipeline:
// IOChannel variants (file, rolling file set, stream and datagram sockets,
// pty, unix-domain socket) and the buffered IOStream wrapper the archiver
// and sensors read and write through.
package ioc

import "fmt"

// ErrorKind enumerates IOChannel failure classes, per the design's closed
// IOError taxonomy.
type ErrorKind int

const (
	KindEOF ErrorKind = iota
	KindInterrupted
	KindConnectionClosed
	KindTemporary
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindEOF:
		return "eof"
	case KindInterrupted:
		return "interrupted"
	case KindConnectionClosed:
		return "connection-closed"
	case KindTemporary:
		return "temporary"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// IOError is returned by every IOChannel Read/Write.
type IOError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ioc: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("ioc: %s: %s", e.Op, e.Kind)
}

func (e *IOError) Unwrap() error { return e.Err }

// NewIOError builds an *IOError.
func NewIOError(kind ErrorKind, op string, err error) *IOError {
	return &IOError{Kind: kind, Op: op, Err: err}
}

// IsEOF reports whether err is an Eof-kind IOError.
func IsEOF(err error) bool {
	e, ok := err.(*IOError)
	return ok && e.Kind == KindEOF
}

// ConnectionRequester is notified asynchronously once a requested
// connection is established, per §4.3's async connection model. For
// listening variants, Connected fires once per accepted peer with a
// derived Channel independent of the listener's own lifetime.
type ConnectionRequester interface {
	Connected(c Channel)
}

// Channel is the shared capability set every IOChannel variant implements:
// open/close, byte read/write, and the async connection-request protocol.
type Channel interface {
	// Open prepares the channel for use; for listening variants this
	// starts the accept loop.
	Open() error

	// Close releases the channel's underlying resource. Idempotent.
	Close() error

	// Read reads available bytes into p. Returns an *IOError on failure.
	Read(p []byte) (int, error)

	// Write writes p in full or returns an *IOError.
	Write(p []byte) (int, error)

	// RequestConnection asks the channel to (re)connect asynchronously;
	// requester.Connected is called on the channel's own goroutine once a
	// connection is established. Listening variants call it once per
	// accepted peer.
	RequestConnection(requester ConnectionRequester) error

	// ConnectionInfo returns a short human-readable description of the
	// current peer, e.g. "tcp 10.1.2.3:30000", for status views.
	ConnectionInfo() string

	// Name identifies the channel for logging, typically the file path,
	// host:port, or device path it was configured with.
	Name() string
}

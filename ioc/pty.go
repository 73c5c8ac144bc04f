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
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Pty is a pseudo-terminal master Channel for driving sensor codecs
// without a real serial port. Opening it
// allocates a kernel pty pair and exposes the slave device path via
// SlavePath so a sensor driver can be pointed at it.
type Pty struct {
	master    *os.File
	SlavePath string
}

// NewPty creates an unopened Pty.
func NewPty() *Pty {
	return &Pty{}
}

// Open implements Channel: it opens /dev/ptmx, then unlocks the slave and
// queries its pty number via ioctl (the unlockpt and ptsname steps; no
// grantpt call is made), using golang.org/x/sys/unix the same way the
// PortSelector uses it for epoll.
func (p *Pty) Open() error {
	f, err := os.OpenFile("/dev/ptmx", os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return NewIOError(KindFatal, "Pty.Open", err)
	}
	fd := int(f.Fd())

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		f.Close()
		return NewIOError(KindFatal, "Pty.Open", err)
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		f.Close()
		return NewIOError(KindFatal, "Pty.Open", err)
	}

	p.master = f
	p.SlavePath = "/dev/pts/" + strconv.Itoa(n)
	return nil
}

// Close implements Channel.
func (p *Pty) Close() error {
	if p.master == nil {
		return nil
	}
	err := p.master.Close()
	p.master = nil
	if err != nil {
		return NewIOError(KindFatal, "Pty.Close", err)
	}
	return nil
}

// Read implements Channel.
func (p *Pty) Read(b []byte) (int, error) {
	n, err := p.master.Read(b)
	if err != nil {
		return n, translateFileErr("Pty.Read", err)
	}
	return n, nil
}

// Write implements Channel.
func (p *Pty) Write(b []byte) (int, error) {
	n, err := p.master.Write(b)
	if err != nil {
		return n, NewIOError(KindFatal, "Pty.Write", err)
	}
	return n, nil
}

// RequestConnection implements Channel.
func (p *Pty) RequestConnection(requester ConnectionRequester) error {
	if err := p.Open(); err != nil {
		return err
	}
	requester.Connected(p)
	return nil
}

// ConnectionInfo implements Channel.
func (p *Pty) ConnectionInfo() string { return fmt.Sprintf("pty %s", p.SlavePath) }

// Name implements Channel.
func (p *Pty) Name() string { return p.SlavePath }

// UnixSocket is a unix-domain stream Channel, dial-out or listening
// depending on which constructor is used. It is a thin naming wrapper
// over Socket/ServerSocket since the unix-domain and TCP cases share one
// net.Conn-backed implementation; it exists as its own type so callers
// and configuration can name the transport explicitly, matching the
// original's distinct UnixSocket class.
type UnixSocket struct {
	*Socket
}

// NewUnixSocket creates a dial-out UnixSocket at the given path.
func NewUnixSocket(path string) *UnixSocket {
	return &UnixSocket{Socket: NewSocket("unix", path)}
}

// UnixServerSocket is the listening counterpart of UnixSocket.
type UnixServerSocket struct {
	*ServerSocket
}

// NewUnixServerSocket creates a listening UnixServerSocket at the given
// path.
func NewUnixServerSocket(path string) *UnixServerSocket {
	_ = os.Remove(path) // stale socket file from a previous run
	return &UnixServerSocket{ServerSocket: NewServerSocket("unix", path)}
}

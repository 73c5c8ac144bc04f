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
	"net"
	"time"
)

// Socket is a point-to-point stream Channel (TCP or unix-domain) that
// dials out. Its RequestConnection retries with backoff up to a budget,
// matching the design's Temporary-backs-off-and-retries rule.
type Socket struct {
	Network string // "tcp" or "unix"
	Address string
	Retries int // 0 means unlimited

	conn net.Conn
}

// NewSocket creates a dial-out Socket.
func NewSocket(network, address string) *Socket {
	return &Socket{Network: network, Address: address}
}

// Open implements Channel.
func (s *Socket) Open() error {
	conn, err := net.Dial(s.Network, s.Address)
	if err != nil {
		return NewIOError(KindTemporary, "Socket.Open", err)
	}
	s.conn = conn
	return nil
}

// Close implements Channel.
func (s *Socket) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return NewIOError(KindFatal, "Socket.Close", err)
	}
	return nil
}

// Read implements Channel.
func (s *Socket) Read(p []byte) (int, error) {
	n, err := s.conn.Read(p)
	if err != nil {
		return n, translateNetErr("Socket.Read", err)
	}
	return n, nil
}

// Write implements Channel.
func (s *Socket) Write(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	if err != nil {
		return n, translateNetErr("Socket.Write", err)
	}
	return n, nil
}

// RequestConnection implements Channel, retrying Open with exponential
// backoff (capped at 30s) up to s.Retries attempts (0 = unlimited).
func (s *Socket) RequestConnection(requester ConnectionRequester) error {
	delay := 500 * time.Millisecond
	for attempt := 0; s.Retries == 0 || attempt < s.Retries; attempt++ {
		if err := s.Open(); err == nil {
			requester.Connected(s)
			return nil
		}
		time.Sleep(delay)
		delay *= 2
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	}
	return NewIOError(KindFatal, "Socket.RequestConnection", nil)
}

// ConnectionInfo implements Channel.
func (s *Socket) ConnectionInfo() string {
	if s.conn != nil {
		return s.conn.RemoteAddr().String()
	}
	return s.Network + " " + s.Address
}

// Name implements Channel.
func (s *Socket) Name() string { return s.Address }

func translateNetErr(op string, err error) error {
	type timeout interface{ Timeout() bool }
	if err.Error() == "EOF" {
		return NewIOError(KindEOF, op, err)
	}
	if t, ok := err.(timeout); ok && t.Timeout() {
		return NewIOError(KindTemporary, op, err)
	}
	return NewIOError(KindConnectionClosed, op, err)
}

// ServerSocket listens for inbound connections, calling back
// ConnectionRequester.Connected once per accepted peer with a derived
// *Socket independent of the listener's own lifetime (§4.3).
type ServerSocket struct {
	Network string
	Address string

	listener net.Listener
	done     chan struct{}
}

// NewServerSocket creates a listening ServerSocket.
func NewServerSocket(network, address string) *ServerSocket {
	return &ServerSocket{Network: network, Address: address, done: make(chan struct{})}
}

// Open implements Channel.
func (s *ServerSocket) Open() error {
	l, err := net.Listen(s.Network, s.Address)
	if err != nil {
		return NewIOError(KindFatal, "ServerSocket.Open", err)
	}
	s.listener = l
	return nil
}

// Close implements Channel.
func (s *ServerSocket) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// Read implements Channel; a listener itself carries no payload.
func (s *ServerSocket) Read(p []byte) (int, error) {
	return 0, NewIOError(KindFatal, "ServerSocket.Read", nil)
}

// Write implements Channel; a listener itself carries no payload.
func (s *ServerSocket) Write(p []byte) (int, error) {
	return 0, NewIOError(KindFatal, "ServerSocket.Write", nil)
}

// RequestConnection implements Channel: it opens the listener (if not
// already open) and starts an accept loop on its own goroutine, calling
// requester.Connected once per accepted peer for the process lifetime of
// the listener.
func (s *ServerSocket) RequestConnection(requester ConnectionRequester) error {
	if s.listener == nil {
		if err := s.Open(); err != nil {
			return err
		}
	}
	go func() {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.done:
					return
				default:
				}
				continue
			}
			requester.Connected(&Socket{Network: s.Network, conn: conn})
		}
	}()
	return nil
}

// ConnectionInfo implements Channel.
func (s *ServerSocket) ConnectionInfo() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.Address
}

// Name implements Channel.
func (s *ServerSocket) Name() string { return s.Address }

// MulticastSender writes datagrams to a UDP multicast group.
type MulticastSender struct {
	Address string
	conn    net.Conn
}

// NewMulticastSender creates a MulticastSender for the given "host:port"
// multicast address.
func NewMulticastSender(address string) *MulticastSender {
	return &MulticastSender{Address: address}
}

// Open implements Channel.
func (m *MulticastSender) Open() error {
	conn, err := net.Dial("udp", m.Address)
	if err != nil {
		return NewIOError(KindFatal, "MulticastSender.Open", err)
	}
	m.conn = conn
	return nil
}

// Close implements Channel.
func (m *MulticastSender) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// Read implements Channel; a sender is write-only.
func (m *MulticastSender) Read(p []byte) (int, error) {
	return 0, NewIOError(KindFatal, "MulticastSender.Read", nil)
}

// Write implements Channel.
func (m *MulticastSender) Write(p []byte) (int, error) {
	n, err := m.conn.Write(p)
	if err != nil {
		return n, NewIOError(KindTemporary, "MulticastSender.Write", err)
	}
	return n, nil
}

// RequestConnection implements Channel.
func (m *MulticastSender) RequestConnection(requester ConnectionRequester) error {
	if err := m.Open(); err != nil {
		return err
	}
	requester.Connected(m)
	return nil
}

// ConnectionInfo implements Channel.
func (m *MulticastSender) ConnectionInfo() string { return m.Address }

// Name implements Channel.
func (m *MulticastSender) Name() string { return m.Address }

// McSocket listens for a UDP multicast request datagram and replies
// point-to-point to the requester, the request/response handshake NIDAS
// uses to let a DSM announce itself to a data server on a well-known
// multicast group.
type McSocket struct {
	MulticastAddress string
	RequestPayload   []byte

	conn *net.UDPConn
}

// NewMcSocket creates an McSocket bound to the given multicast group.
func NewMcSocket(multicastAddress string, requestPayload []byte) *McSocket {
	return &McSocket{MulticastAddress: multicastAddress, RequestPayload: requestPayload}
}

// Open implements Channel.
func (m *McSocket) Open() error {
	addr, err := net.ResolveUDPAddr("udp", m.MulticastAddress)
	if err != nil {
		return NewIOError(KindFatal, "McSocket.Open", err)
	}
	conn, err := net.ListenMulticastUDP("udp", nil, addr)
	if err != nil {
		return NewIOError(KindFatal, "McSocket.Open", err)
	}
	m.conn = conn
	return nil
}

// Close implements Channel.
func (m *McSocket) Close() error {
	if m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// Read implements Channel.
func (m *McSocket) Read(p []byte) (int, error) {
	n, _, err := m.conn.ReadFromUDP(p)
	if err != nil {
		return n, translateNetErr("McSocket.Read", err)
	}
	return n, nil
}

// Write implements Channel; a listening McSocket responds per-peer via
// the Socket handed to Connected, not through this Write.
func (m *McSocket) Write(p []byte) (int, error) {
	return 0, NewIOError(KindFatal, "McSocket.Write", nil)
}

// RequestConnection implements Channel: it listens on the multicast group
// and, on receiving a datagram matching RequestPayload, dials the sender
// back over TCP and calls requester.Connected with that point-to-point
// Socket.
func (m *McSocket) RequestConnection(requester ConnectionRequester) error {
	if m.conn == nil {
		if err := m.Open(); err != nil {
			return err
		}
	}
	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := m.conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if len(m.RequestPayload) > 0 && string(buf[:n]) != string(m.RequestPayload) {
				continue
			}
			sock := NewSocket("tcp", addr.String())
			if err := sock.Open(); err != nil {
				continue
			}
			requester.Connected(sock)
		}
	}()
	return nil
}

// ConnectionInfo implements Channel.
func (m *McSocket) ConnectionInfo() string { return m.MulticastAddress }

// Name implements Channel.
func (m *McSocket) Name() string { return m.MulticastAddress }

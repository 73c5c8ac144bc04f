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

package archive

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameHeaderLen is the fixed byte length of a per-sample frame header:
// 8-byte time, 4-byte length, 4-byte id, all little-endian.
const FrameHeaderLen = 16

// MaxFrameLength is the per-stream sanity bound a reader validates a
// frame's length field against before trusting it; oversize lengths
// trigger a resync scan rather than a giant allocation. 64 MiB is well
// beyond any real NIDAS sample.
const MaxFrameLength = 64 * 1024 * 1024

// FrameHeader is the decoded form of one 16-byte per-sample frame header.
type FrameHeader struct {
	Time   int64
	Length uint32
	ID     uint32
}

// ErrOversizeFrame is returned by ReadFrameHeader when Length exceeds
// MaxFrameLength, signaling the caller to resync.
var ErrOversizeFrame = fmt.Errorf("archive: frame length exceeds sanity bound")

// PutFrameHeader encodes h little-endian into dst[:FrameHeaderLen].
func PutFrameHeader(dst []byte, h FrameHeader) {
	binary.LittleEndian.PutUint64(dst[0:8], uint64(h.Time))
	binary.LittleEndian.PutUint32(dst[8:12], h.Length)
	binary.LittleEndian.PutUint32(dst[12:16], h.ID)
}

// ParseFrameHeader decodes a little-endian FrameHeader from b, which must
// be at least FrameHeaderLen bytes.
func ParseFrameHeader(b []byte) FrameHeader {
	return FrameHeader{
		Time:   int64(binary.LittleEndian.Uint64(b[0:8])),
		Length: binary.LittleEndian.Uint32(b[8:12]),
		ID:     binary.LittleEndian.Uint32(b[12:16]),
	}
}

// ReadFrameHeader reads and decodes one frame header from r. It returns
// ErrOversizeFrame (not a read error) when Length exceeds MaxFrameLength,
// so the caller can resync instead of treating the stream as EOF/fatal.
func ReadFrameHeader(r io.Reader) (FrameHeader, error) {
	var buf [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return FrameHeader{}, err
	}
	h := ParseFrameHeader(buf[:])
	if h.Length > MaxFrameLength {
		return h, ErrOversizeFrame
	}
	return h, nil
}

// WriteFrame writes one complete frame (header + payload) to w. The
// caller is responsible for byte-swapping payload elements wider than a
// byte on a big-endian host before calling this; the frame header itself
// is always written little-endian regardless of host order.
func WriteFrame(w io.Writer, h FrameHeader, payload []byte) error {
	h.Length = uint32(len(payload))
	var buf [FrameHeaderLen]byte
	PutFrameHeader(buf[:], h)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Resync scans r for the next plausible frame header: a 16-byte window
// whose decoded Length is within MaxFrameLength and whose Time is
// positive, advancing one byte at a time. It returns the first such
// header found along with the number of bytes skipped to reach it. This
// is the heuristic the design leaves implementation-defined for
// oversize-frame recovery.
func Resync(r io.ByteReader) (FrameHeader, int64, error) {
	var window [FrameHeaderLen]byte
	filled := 0
	var skipped int64

	for {
		b, err := r.ReadByte()
		if err != nil {
			return FrameHeader{}, skipped, err
		}
		if filled < FrameHeaderLen {
			window[filled] = b
			filled++
		} else {
			copy(window[:], window[1:])
			window[FrameHeaderLen-1] = b
			skipped++
		}
		if filled == FrameHeaderLen {
			h := ParseFrameHeader(window[:])
			if h.Length <= MaxFrameLength && h.Time > 0 {
				return h, skipped, nil
			}
		}
	}
}

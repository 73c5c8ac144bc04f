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

package archive_test

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas/archive"
)

func TestFrameHeaderRoundTrip(t *testing.T) {
	h := archive.FrameHeader{Time: 1234567890, Length: 99, ID: 0xabcd}
	var buf [archive.FrameHeaderLen]byte
	archive.PutFrameHeader(buf[:], h)

	got := archive.ParseFrameHeader(buf[:])
	assert.Equal(t, h, got)
}

func TestWriteFrameThenReadFrameHeader(t *testing.T) {
	var out bytes.Buffer
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	h := archive.FrameHeader{Time: 42, ID: 7}
	assert.NoError(t, archive.WriteFrame(&out, h, payload))

	got, err := archive.ReadFrameHeader(&out)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), got.Time)
	assert.Equal(t, uint32(7), got.ID)
	assert.Equal(t, uint32(len(payload)), got.Length)

	rest := make([]byte, got.Length)
	_, err = out.Read(rest)
	assert.NoError(t, err)
	assert.Equal(t, payload, rest)
}

func TestReadFrameHeaderOversize(t *testing.T) {
	var buf [archive.FrameHeaderLen]byte
	archive.PutFrameHeader(buf[:], archive.FrameHeader{Time: 1, Length: archive.MaxFrameLength + 1})

	_, err := archive.ReadFrameHeader(bytes.NewReader(buf[:]))
	assert.ErrorIs(t, err, archive.ErrOversizeFrame)
}

func TestResyncFindsNextValidHeader(t *testing.T) {
	// Time's low 7 bytes are all 0x80: a sliding window straddling the
	// zero garbage and this header reads one of those bytes as its own
	// sign byte and is rejected as Time <= 0, so only the fully-aligned
	// window (the real header) validates.
	want := archive.FrameHeader{Time: 0x0180808080808080, Length: 4, ID: 55}
	var good [archive.FrameHeaderLen]byte
	archive.PutFrameHeader(good[:], want)

	garbage := make([]byte, archive.FrameHeaderLen)
	stream := append(append([]byte{}, garbage...), good[:]...)

	h, skipped, err := archive.Resync(bufio.NewReader(bytes.NewReader(stream)))
	assert.NoError(t, err)
	assert.Equal(t, want, h)
	assert.Equal(t, int64(len(garbage)), skipped)
}

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

package ioc_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas/ioc"
)

// memoryChannel is an in-memory ioc.Channel for OutputStream/InputStream
// tests: Write appends to a buffer, Read serves fixed chunks in order.
type memoryChannel struct {
	written bytes.Buffer
	writes  int

	chunks [][]byte
	next   int
}

func (c *memoryChannel) Open() error  { return nil }
func (c *memoryChannel) Close() error { return nil }

func (c *memoryChannel) Write(p []byte) (int, error) {
	c.writes++
	return c.written.Write(p)
}

func (c *memoryChannel) Read(p []byte) (int, error) {
	if c.next >= len(c.chunks) {
		return 0, nil
	}
	n := copy(p, c.chunks[c.next])
	c.next++
	return n, nil
}

func (c *memoryChannel) RequestConnection(r ioc.ConnectionRequester) error { return nil }
func (c *memoryChannel) ConnectionInfo() string                            { return "mem" }
func (c *memoryChannel) Name() string                                      { return "mem" }

func TestOutputStreamBuffersBelowHighWater(t *testing.T) {
	ch := &memoryChannel{}
	out := ioc.NewOutputStream(ch, 0)
	out.HighWater = 1024

	_, err := out.Write([]byte("hello"))
	assert.NoError(t, err)

	assert.Equal(t, 0, ch.writes, "a write under HighWater with no latency trigger must not flush yet")
	assert.NoError(t, out.Flush())
	assert.Equal(t, 1, ch.writes)
	assert.Equal(t, "hello", ch.written.String())
}

func TestOutputStreamFlushesOnHighWater(t *testing.T) {
	ch := &memoryChannel{}
	out := ioc.NewOutputStream(ch, 0)
	out.HighWater = 4

	_, err := out.Write([]byte("hello"))
	assert.NoError(t, err)

	assert.Equal(t, 1, ch.writes, "crossing HighWater mid-Write must flush immediately")
	assert.Equal(t, "hello", ch.written.String())
}

func TestOutputStreamFlushesOnElapsedLatency(t *testing.T) {
	ch := &memoryChannel{}
	out := ioc.NewOutputStream(ch, 10*time.Millisecond)
	out.HighWater = 1024

	_, err := out.Write([]byte("a"))
	assert.NoError(t, err)
	assert.Equal(t, 0, ch.writes)

	time.Sleep(20 * time.Millisecond)

	_, err = out.Write([]byte("b"))
	assert.NoError(t, err)
	assert.Equal(t, 1, ch.writes, "the second Write should flush the first byte once Latency has elapsed")
	assert.Equal(t, "a", ch.written.String())
}

func TestOutputStreamCloseFlushesThenClosesChannel(t *testing.T) {
	ch := &memoryChannel{}
	out := ioc.NewOutputStream(ch, 0)
	out.HighWater = 1024

	_, err := out.Write([]byte("tail"))
	assert.NoError(t, err)
	assert.NoError(t, out.Close())
	assert.Equal(t, "tail", ch.written.String())
}

func TestInputStreamReadsAcrossRefills(t *testing.T) {
	ch := &memoryChannel{chunks: [][]byte{[]byte("abc"), []byte("def")}}
	in := ioc.NewInputStream(ch)

	buf := make([]byte, 3)
	n, err := in.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "abc", string(buf[:n]))

	n, err = in.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "def", string(buf[:n]))
}

func TestInputStreamBackupRereadsConsumedBytes(t *testing.T) {
	ch := &memoryChannel{chunks: [][]byte{[]byte("magicXYZ")}}
	in := ioc.NewInputStream(ch)

	buf := make([]byte, 5)
	n, err := in.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "magic", string(buf[:n]))

	in.Backup(5)

	n, err = in.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "magic", string(buf[:n]), "Backup should rewind to the same bytes instead of refilling")
}

func TestInputStreamBackupClampsToConsumed(t *testing.T) {
	ch := &memoryChannel{chunks: [][]byte{[]byte("ab")}}
	in := ioc.NewInputStream(ch)

	buf := make([]byte, 1)
	_, err := in.Read(buf)
	assert.NoError(t, err)

	in.Backup(100)

	n, err := in.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, "a", string(buf[:n]), "Backup beyond what was consumed clamps to the start of the buffer")
}

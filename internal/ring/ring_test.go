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

package ring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas/internal/ring"
)

func TestBufferWriteReadRoundTrip(t *testing.T) {
	b := ring.NewBuffer(8)
	n, err := b.Write([]byte("abcd"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, b.Len())

	out := make([]byte, 4)
	n, err = b.Read(out)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(out))
	assert.Equal(t, 0, b.Len())
}

func TestBufferWrapsAroundCapacity(t *testing.T) {
	b := ring.NewBuffer(4)
	_, err := b.Write([]byte("ab"))
	assert.NoError(t, err)
	out := make([]byte, 2)
	_, err = b.Read(out)
	assert.NoError(t, err)

	// r and w both sit at index 2 of the 4-byte backing array now; a
	// 4-byte write must cross the wraparound point correctly.
	_, err = b.Write([]byte("cdef"))
	assert.NoError(t, err)
	assert.Equal(t, 4, b.Len())

	out = make([]byte, 4)
	n, _ := b.Read(out)
	assert.Equal(t, 4, n)
	assert.Equal(t, "cdef", string(out))
}

func TestBufferWriteReturnsErrOverrunWhenFull(t *testing.T) {
	b := ring.NewBuffer(4)
	_, err := b.Write([]byte("abcd"))
	assert.NoError(t, err)

	n, err := b.Write([]byte("e"))
	assert.ErrorIs(t, err, ring.ErrOverrun)
	assert.Equal(t, 0, n)
	assert.Equal(t, 4, b.Len(), "a rejected write must not partially land")
}

func TestBufferOverwriteDropsOldestBytes(t *testing.T) {
	b := ring.NewBuffer(4)
	b.Overwrite = true
	_, err := b.Write([]byte("abcd"))
	assert.NoError(t, err)

	_, err = b.Write([]byte("ef"))
	assert.NoError(t, err)
	assert.Equal(t, 4, b.Len())

	out := make([]byte, 4)
	b.Read(out)
	assert.Equal(t, "cdef", string(out), "the two oldest bytes must have been dropped to make room")
}

func TestBufferPeekDoesNotConsume(t *testing.T) {
	b := ring.NewBuffer(8)
	_, err := b.Write([]byte("xyz"))
	assert.NoError(t, err)

	out := make([]byte, 3)
	n := b.Peek(out)
	assert.Equal(t, 3, n)
	assert.Equal(t, "xyz", string(out))
	assert.Equal(t, 3, b.Len(), "Peek must not consume")
}

func TestBufferDiscardClampsToAvailable(t *testing.T) {
	b := ring.NewBuffer(8)
	_, err := b.Write([]byte("xyz"))
	assert.NoError(t, err)

	b.Discard(100)
	assert.Equal(t, 0, b.Len())
}

func TestBufferCap(t *testing.T) {
	b := ring.NewBuffer(17)
	assert.Equal(t, 17, b.Cap())
}

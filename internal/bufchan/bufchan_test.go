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

package bufchan_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas/internal/bufchan"
)

func TestQueueDropPolicyRejectsWhenFull(t *testing.T) {
	q := bufchan.New(2, bufchan.Drop)
	assert.NoError(t, q.Push(1))
	assert.NoError(t, q.Push(2))

	err := q.Push(3)
	assert.ErrorIs(t, err, bufchan.ErrOverrun)
	assert.Equal(t, 2, q.Len())

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestQueueBlockPolicyWaitsForRoom(t *testing.T) {
	q := bufchan.New(1, bufchan.Block)
	assert.NoError(t, q.Push("a"))

	done := make(chan struct{})
	go func() {
		assert.NoError(t, q.Push("b"))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Push under Block should not return before room is made")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push should have unblocked once Pop made room")
	}

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestQueueCloseDrainsThenReportsDone(t *testing.T) {
	q := bufchan.New(4, bufchan.Drop)
	assert.NoError(t, q.Push(1))
	assert.NoError(t, q.Push(2))
	q.Close()

	v, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = q.Pop()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Pop()
	assert.False(t, ok, "Pop on a closed, drained queue reports done")
}

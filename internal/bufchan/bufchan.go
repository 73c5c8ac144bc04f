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

// Package bufchan is a bounded queue of arbitrary items with a choice of
// overflow policy (block or drop), adapted from the teacher's
// internal/bufpipe non-blocking channel wrapper. Where bufpipe always
// drops (closing the pipe with ErrBufferOverrun), Queue also supports
// blocking the producer, which sensor.Sensor's processing queue uses to
// hand raw samples to its processor goroutine.
package bufchan

import "fmt"

// ErrOverrun is returned by TryPush under the Drop policy when the queue
// is full.
var ErrOverrun = fmt.Errorf("bufchan: queue overrun")

// Policy selects what a full Queue does on the next push.
type Policy int

const (
	// Drop rejects the new item, returning ErrOverrun.
	Drop Policy = iota
	// Block waits for room, applying backpressure to the producer.
	Block
)

// Queue is a bounded FIFO of items, backed by a buffered channel exactly
// as the teacher's bufpipe.Pipe is, but generalized over `any` and over
// the overflow policy rather than always dropping.
type Queue struct {
	ch     chan any
	policy Policy
}

// New creates a Queue with the given capacity and overflow policy.
func New(capacity int, policy Policy) *Queue {
	return &Queue{ch: make(chan any, capacity), policy: policy}
}

// Push enqueues v. Under Block it waits for room; under Drop it returns
// ErrOverrun immediately if the queue is full.
func (q *Queue) Push(v any) error {
	if q.policy == Block {
		q.ch <- v
		return nil
	}
	select {
	case q.ch <- v:
		return nil
	default:
		return ErrOverrun
	}
}

// Pop blocks until an item is available, returning ok=false if closed and
// drained.
func (q *Queue) Pop() (any, bool) {
	v, ok := <-q.ch
	return v, ok
}

// Len returns the number of items currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close closes the underlying channel; a subsequent Push panics, matching
// a plain closed-channel send.
func (q *Queue) Close() {
	close(q.ch)
}

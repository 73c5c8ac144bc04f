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

package pipeline

import (
	"container/heap"
	"sync"
	"time"

	"hz.tools/nidas"
)

// Policy selects what SortedSampleSet does when a Push would exceed
// HeapMax or LateSampleCacheSize.
type Policy int

const (
	// Block waits, holding the producer's goroutine, until room frees up
	// as older samples are released.
	Block Policy = iota
	// Drop discards the incoming sample immediately and increments
	// Dropped.
	Drop
)

// SortedSampleSet buffers samples from possibly many sources in a
// min-heap keyed by timetag, and releases the oldest whenever it falls
// further behind the latest timetag seen than SortLength, per §4.7. It
// implements nidas.SampleClient on its input side and nidas.SampleSource
// (via the embedded BaseSource) on its output side, the same shape as
// NearestResampler, so it drops into a pipeline the same way. Where the
// teacher's RingBuffer holds producers off with a sync.Cond rather than a
// channel, SortedSampleSet does the same: a priority queue, unlike a
// FIFO, has no natural channel representation.
type SortedSampleSet struct {
	*nidas.BaseSource

	mu   sync.Mutex
	cond *sync.Cond

	heap sampleHeap
	seq  int64

	SortLength          time.Duration
	HeapMax             int
	LateSampleCacheSize int
	Policy              Policy

	latestIn nidas.Time
	bytes    int
	Dropped  int64
}

type heapEntry struct {
	sample *nidas.Sample
	seq    int64 // breaks ties between equal timetags, preserving arrival order
}

type sampleHeap []heapEntry

func (h sampleHeap) Len() int { return len(h) }
func (h sampleHeap) Less(i, j int) bool {
	ti, tj := h[i].sample.Time(), h[j].sample.Time()
	if ti != tj {
		return ti < tj
	}
	return h[i].seq < h[j].seq
}
func (h sampleHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *sampleHeap) Push(x any)   { *h = append(*h, x.(heapEntry)) }
func (h *sampleHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// NewSortedSampleSet creates an empty SortedSampleSet. sortLength
// defaults to 1 second if zero.
func NewSortedSampleSet(sortLength time.Duration) *SortedSampleSet {
	if sortLength <= 0 {
		sortLength = time.Second
	}
	s := &SortedSampleSet{
		BaseSource: nidas.NewBaseSource(),
		SortLength: sortLength,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Receive implements nidas.SampleClient: samp is inserted into the heap,
// applying Policy if the set is over HeapMax or LateSampleCacheSize, and
// every sample that has fallen more than SortLength behind the latest
// timetag seen is distributed downstream in timetag order.
func (s *SortedSampleSet) Receive(samp *nidas.Sample) (bool, error) {
	s.mu.Lock()
	for s.overLocked() {
		if s.Policy == Drop {
			s.Dropped++
			s.mu.Unlock()
			return true, nil
		}
		s.cond.Wait()
	}

	samp.AddReference()
	s.seq++
	heap.Push(&s.heap, heapEntry{sample: samp, seq: s.seq})
	s.bytes += samp.ByteLength()
	if samp.Time() > s.latestIn {
		s.latestIn = samp.Time()
	}

	toRelease := s.drainLocked()
	s.mu.Unlock()

	for _, r := range toRelease {
		if err := s.Distribute(r); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *SortedSampleSet) overLocked() bool {
	if s.HeapMax > 0 && s.bytes > s.HeapMax {
		return true
	}
	if s.LateSampleCacheSize > 0 && s.heap.Len() > s.LateSampleCacheSize {
		return true
	}
	return false
}

// drainLocked pops every heap entry whose timetag is older than
// latest_in - SortLength, returning them oldest-first. Caller holds mu.
func (s *SortedSampleSet) drainLocked() []*nidas.Sample {
	threshold := s.latestIn - nidas.Time(s.SortLength.Microseconds())
	var released []*nidas.Sample
	for s.heap.Len() > 0 && s.heap[0].sample.Time() <= threshold {
		e := heap.Pop(&s.heap).(heapEntry)
		s.bytes -= e.sample.ByteLength()
		released = append(released, e.sample)
	}
	if len(released) > 0 {
		s.cond.Broadcast()
	}
	return released
}

// Flush implements nidas.SampleClient: it releases every sample currently
// held, oldest-first, regardless of SortLength, so nothing is lost when
// the upstream source shuts down.
func (s *SortedSampleSet) Flush() error {
	s.mu.Lock()
	var released []*nidas.Sample
	for s.heap.Len() > 0 {
		e := heap.Pop(&s.heap).(heapEntry)
		s.bytes -= e.sample.ByteLength()
		released = append(released, e.sample)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, r := range released {
		if err := s.Distribute(r); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of samples currently buffered.
func (s *SortedSampleSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Len()
}

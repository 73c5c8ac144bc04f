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

package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas"
	"hz.tools/nidas/pipeline"
)

type recorder struct {
	times []nidas.Time
}

func (r *recorder) Receive(s *nidas.Sample) (bool, error) {
	r.times = append(r.times, s.Time())
	return true, nil
}
func (r *recorder) Flush() error { return nil }

func feed(t *testing.T, s *pipeline.SortedSampleSet, tt nidas.Time) {
	t.Helper()
	samp := nidas.GetSample(nidas.TypeChar, 1)
	samp.SetTime(tt)
	samp.SetID(nidas.MakeID(1, 1))
	_ = samp.SetBytes([]byte{1})
	ok, err := s.Receive(samp)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, samp.FreeReference())
}

// TestSortMonotonic is §8 property 4 / spec scenario S3's Block variant:
// inputs bounded-late by SortLength come out monotonic in timetag with no
// drops.
func TestSortMonotonic(t *testing.T) {
	s := pipeline.NewSortedSampleSet(500 * time.Millisecond)
	rec := &recorder{}
	s.AddSampleClient(rec)

	feed(t, s, 0)
	feed(t, s, 1000)
	feed(t, s, 500)
	assert.NoError(t, s.Flush())

	assert.Equal(t, []nidas.Time{0, 500, 1000}, rec.times)
	assert.Equal(t, int64(0), s.Dropped)
}

// TestSortDropsOverCapacity is spec scenario S3's Drop variant: a heap
// capped at one sample drops the sample that would exceed it rather than
// blocking the producer.
func TestSortDropsOverCapacity(t *testing.T) {
	s := pipeline.NewSortedSampleSet(500 * time.Millisecond)
	s.LateSampleCacheSize = 1
	s.Policy = pipeline.Drop
	rec := &recorder{}
	s.AddSampleClient(rec)

	feed(t, s, 0)
	feed(t, s, 1000)
	feed(t, s, 500)
	assert.NoError(t, s.Flush())

	assert.Equal(t, int64(1), s.Dropped)
}

func TestSortLenReflectsBufferedCount(t *testing.T) {
	s := pipeline.NewSortedSampleSet(10 * time.Second)
	feed(t, s, 0)
	feed(t, s, 1)
	assert.Equal(t, 2, s.Len())
}

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

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas"
	"hz.tools/nidas/pipeline"
)

type syncRecorder struct {
	records [][]float32
	headers []string
}

func (r *syncRecorder) Receive(s *nidas.Sample) (bool, error) {
	switch s.ID() {
	case nidas.SyncRecordID:
		rec := make([]float32, s.Len())
		for i := range rec {
			v, err := s.Float64(i)
			if err != nil {
				return false, err
			}
			rec[i] = float32(v)
		}
		r.records = append(r.records, rec)
	case nidas.SyncRecordHeaderID:
		r.headers = append(r.headers, string(s.Bytes()))
	}
	return true, nil
}
func (r *syncRecorder) Flush() error { return nil }

func sendSync(t *testing.T, b *pipeline.SyncRecordBuilder, id nidas.ID, tt nidas.Time, v0, v1 float64) {
	t.Helper()
	s := nidas.GetSample(nidas.TypeFloat32, 2)
	s.SetID(id)
	s.SetTime(tt)
	buf := make([]byte, 8)
	nidas.PutFloat32(buf[0:4], float32(v0))
	nidas.PutFloat32(buf[4:8], float32(v1))
	assert.NoError(t, s.SetBytes(buf))
	_, err := b.Receive(s)
	assert.NoError(t, err)
	assert.NoError(t, s.FreeReference())
}

// TestSyncRecordLayoutOneRateGroup is spec scenario S5: two variables at
// 10 Hz in one group, fed 10 evenly-spaced samples across one second
// starting at t=0; expect one 21-float record (1 lag + 10 + 10), and a
// sample crossing into the next second triggers its emission.
func TestSyncRecordLayoutOneRateGroup(t *testing.T) {
	tag := nidas.NewSampleTag(nidas.MakeID(1, 1), 10, true)
	v0 := nidas.NewVariable("v0", "V")
	v1 := nidas.NewVariable("v1", "V")
	assert.NoError(t, tag.AddVariable(v0))
	assert.NoError(t, tag.AddVariable(v1))

	b := pipeline.NewSyncRecordBuilder("PROJ", "N1", "rf01")
	b.AddTag(tag)
	b.Finalize()

	rec := &syncRecorder{}
	b.AddSampleClient(rec)

	for i := 0; i < 10; i++ {
		tt := nidas.Time(i * 100_000)
		sendSync(t, b, tag.ID(), tt, float64(i), float64(100+i))
	}
	assert.Empty(t, rec.records, "record shouldn't be emitted until the next second starts")

	// Crosses into the next second; the first record flushes. Flush then
	// releases the record in progress for the following second as well.
	sendSync(t, b, tag.ID(), 1_000_001, 0, 0)
	assert.NoError(t, b.Flush())

	assert.Len(t, rec.records, 2)
	got := rec.records[0]
	assert.Len(t, got, 21)
	assert.Equal(t, float32(0), got[0], "lag slot")
	for i := 0; i < 10; i++ {
		assert.Equal(t, float32(i), got[1+i], "v0_t%d", i)
		assert.Equal(t, float32(100+i), got[11+i], "v1_t%d", i)
	}
}

// TestSyncRecordLayoutMatchesHeaderOffsets is §8 property 6: the offset
// table ParseSyncHeader rebuilds from the ASCII header must equal the one
// SyncRecordBuilder.Finalize actually used, for every variable in every
// rate group.
func TestSyncRecordLayoutMatchesHeaderOffsets(t *testing.T) {
	fastTag := nidas.NewSampleTag(nidas.MakeID(1, 1), 10, true)
	fastVar := nidas.NewVariable("fast", "V")
	assert.NoError(t, fastTag.AddVariable(fastVar))

	slowTag := nidas.NewSampleTag(nidas.MakeID(1, 2), 1, true)
	slowVar := nidas.NewVariable("slow", "degC")
	assert.NoError(t, slowTag.AddVariable(slowVar))

	b := pipeline.NewSyncRecordBuilder("PROJ", "N1", "rf01")
	b.AddTag(fastTag)
	b.AddTag(slowTag)
	b.Finalize()

	rec := &syncRecorder{}
	b.AddSampleClient(rec)
	b.ScheduleHeader(0)

	sendSync(t, b, fastTag.ID(), 0, 1, 0)
	sendSync(t, b, slowTag.ID(), 0, 2, 0)
	sendSync(t, b, fastTag.ID(), 1_000_001, 0, 0)
	assert.NoError(t, b.Flush())

	assert.Len(t, rec.headers, 1)
	layout, err := pipeline.ParseSyncHeader(rec.headers[0])
	assert.NoError(t, err)

	byName := map[string]*pipeline.SyncRecordVariable{}
	for _, v := range layout.Variables {
		byName[v.Name] = v
	}
	assert.Equal(t, 1, byName["fast"].Offset)
	assert.Equal(t, 12, byName["slow"].Offset) // fast group: 1 lag + 10 slots, then slow's own lag slot
	assert.Equal(t, 13, layout.RecSize)
}

// TestSyncRecordBadTimesDropped covers §4.9's out-of-order rule: a
// sample arriving before the current record's syncTime is counted and
// dropped, never written into the record.
func TestSyncRecordBadTimesDropped(t *testing.T) {
	tag := nidas.NewSampleTag(nidas.MakeID(1, 1), 1, true)
	assert.NoError(t, tag.AddVariable(nidas.NewVariable("x", "")))

	b := pipeline.NewSyncRecordBuilder("PROJ", "N1", "rf01")
	b.AddTag(tag)
	b.Finalize()

	sendSyncScalar := func(tt nidas.Time, v float64) {
		s := nidas.GetSample(nidas.TypeFloat32, 1)
		s.SetID(tag.ID())
		s.SetTime(tt)
		buf := make([]byte, 4)
		nidas.PutFloat32(buf, float32(v))
		assert.NoError(t, s.SetBytes(buf))
		_, err := b.Receive(s)
		assert.NoError(t, err)
		assert.NoError(t, s.FreeReference())
	}

	sendSyncScalar(2_000_000, 1)
	sendSyncScalar(1_000_000, 2) // before syncTime (2_000_000 truncates to 2s boundary)
	assert.Equal(t, int64(1), b.BadTimes)
}

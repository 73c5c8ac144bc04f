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

type resampleRecord struct {
	time    nidas.Time
	values  []float64
	nonNANs float64
}

type resampleRecorder struct {
	records []resampleRecord
}

func (r *resampleRecorder) Receive(s *nidas.Sample) (bool, error) {
	vals := make([]float64, s.Len()-1)
	for i := range vals {
		v, err := s.Float64(i)
		if err != nil {
			return false, err
		}
		vals[i] = v
	}
	nn, err := s.Float64(s.Len() - 1)
	if err != nil {
		return false, err
	}
	r.records = append(r.records, resampleRecord{time: s.Time(), values: vals, nonNANs: nn})
	return true, nil
}
func (r *resampleRecorder) Flush() error { return nil }

func sendResample(t *testing.T, r *pipeline.NearestResampler, id nidas.ID, tt nidas.Time, v float64) {
	t.Helper()
	s := nidas.GetSample(nidas.TypeFloat32, 1)
	s.SetID(id)
	s.SetTime(tt)
	buf := make([]byte, 4)
	nidas.PutFloat32(buf, float32(v))
	assert.NoError(t, s.SetBytes(buf))
	_, err := r.Receive(s)
	assert.NoError(t, err)
	assert.NoError(t, s.FreeReference())
}

func isNaN64(f float64) bool { return f != f }

// TestResamplerBootstrapEmitsNothingBeforeSecondMaster matches §4.8's
// edge case: fewer than two master samples yields no output at all.
func TestResamplerBootstrapEmitsNothingBeforeSecondMaster(t *testing.T) {
	master := nidas.NewVariable("master", "")
	secondary := nidas.NewVariable("secondary", "")
	r := pipeline.NewNearestResampler(nidas.MakeID(9, 1), []*nidas.Variable{master, secondary})

	masterTag := nidas.NewSampleTag(nidas.MakeID(1, 1), 1, true)
	r.Bind(masterTag, []int{0}, []int{0}, []int{1})

	rec := &resampleRecorder{}
	r.AddSampleClient(rec)

	sendResample(t, r, masterTag.ID(), 1_000_000, 10)
	assert.Empty(t, rec.records)
}

// TestResamplerMasterAlignment is §8 property 5: every emitted record's
// timetag equals some master sample's own timetag (never an
// interpolated value), and exercises the nearest-secondary selection
// exactly per §4.8 with a secondary sample landing inside the window of
// one master interval and outside the window of the next.
func TestResamplerMasterAlignment(t *testing.T) {
	master := nidas.NewVariable("master", "")
	secondary := nidas.NewVariable("secondary", "")
	r := pipeline.NewNearestResampler(nidas.MakeID(9, 1), []*nidas.Variable{master, secondary})

	masterTag := nidas.NewSampleTag(nidas.MakeID(1, 1), 1, true)
	secondaryTag := nidas.NewSampleTag(nidas.MakeID(1, 2), 1, true)
	r.Bind(masterTag, []int{0}, []int{0}, []int{1})
	r.Bind(secondaryTag, []int{0}, []int{1}, []int{1})

	rec := &resampleRecorder{}
	r.AddSampleClient(rec)

	masterTicks := map[nidas.Time]bool{1_000_000: true, 2_000_000: true, 3_000_000: true}

	sendResample(t, r, masterTag.ID(), 1_000_000, 10) // bootstrap, no emit
	sendResample(t, r, secondaryTag.ID(), 1_050_000, 99)
	sendResample(t, r, masterTag.ID(), 2_000_000, 20) // first real emit
	sendResample(t, r, masterTag.ID(), 3_000_000, 30) // second emit

	assert.Len(t, rec.records, 2)

	for _, rr := range rec.records {
		assert.True(t, masterTicks[rr.time], "record time %d must be a master timetag", rr.time)
	}

	first := rec.records[0]
	assert.Equal(t, nidas.Time(1_000_000), first.time)
	assert.Equal(t, 10.0, first.values[0])
	assert.Equal(t, 99.0, first.values[1])
	assert.Equal(t, 2.0, first.nonNANs)

	second := rec.records[1]
	assert.Equal(t, nidas.Time(2_000_000), second.time)
	assert.Equal(t, 20.0, second.values[0])
	assert.True(t, isNaN64(second.values[1]))
	assert.Equal(t, 1.0, second.nonNANs)
}

func TestResamplerFinishFlushesLastInterval(t *testing.T) {
	master := nidas.NewVariable("master", "")
	r := pipeline.NewNearestResampler(nidas.MakeID(9, 1), []*nidas.Variable{master})

	masterTag := nidas.NewSampleTag(nidas.MakeID(1, 1), 1, true)
	r.Bind(masterTag, []int{0}, []int{0}, []int{1})

	rec := &resampleRecorder{}
	r.AddSampleClient(rec)

	sendResample(t, r, masterTag.ID(), 1_000_000, 10)
	sendResample(t, r, masterTag.ID(), 2_000_000, 20)
	assert.Len(t, rec.records, 1)

	r.Finish()
	assert.Len(t, rec.records, 2)
	assert.Equal(t, nidas.Time(2_000_000), rec.records[1].time)
	assert.Equal(t, 20.0, rec.records[1].values[0])
}

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
	"math"

	"hz.tools/nidas"
)

type varRef struct {
	inIndex  []int
	outIndex []int
	length   []int
}

// NearestResampler aligns secondary variables onto the timetags of one
// master variable (the first one given to NewNearestResampler), emitting
// one output sample per master arrival whose secondaries are each chosen
// from whichever of "the value seen nearest this master's previous
// timetag" or "the value held since before that" is actually within the
// surrounding window. The algorithm is exactly the original
// NearestResampler's: see receive/finish in the grounding source.
type NearestResampler struct {
	*nidas.BaseSource

	outTag      *nidas.SampleTag
	ndataValues int
	outlen      int
	master      int
	nmaster     int

	prevTT             []nidas.Time
	nearTT             []nidas.Time
	prevData           []float64
	nearData           []float64
	samplesSinceMaster []int

	byID map[nidas.ID]varRef
}

// NewNearestResampler creates a resampler over vars, whose first element
// is the master. Each Variable is copied into the resampler's own output
// SampleTag, plus a trailing "nonNANs" WEIGHT variable counting non-NaN
// outputs in each emitted sample.
func NewNearestResampler(outID nidas.ID, vars []*nidas.Variable) *NearestResampler {
	r := &NearestResampler{
		BaseSource: nidas.NewBaseSource(),
		byID:       map[nidas.ID]varRef{},
	}

	r.outTag = nidas.NewSampleTag(outID, 0, true)
	for _, v := range vars {
		cp := *v
		_ = r.outTag.AddVariable(&cp)
		r.ndataValues += cp.Length
	}
	nonNANs := nidas.NewVariable("nonNANs", "")
	nonNANs.Physical = nidas.Weight
	_ = r.outTag.AddVariable(nonNANs)
	r.outlen = r.ndataValues + 1
	r.AddSampleTag(r.outTag)

	r.prevTT = make([]nidas.Time, r.ndataValues)
	r.nearTT = make([]nidas.Time, r.ndataValues)
	r.prevData = make([]float64, r.ndataValues)
	r.nearData = make([]float64, r.ndataValues)
	r.samplesSinceMaster = make([]int, r.ndataValues)
	for i := range r.prevData {
		r.prevData[i] = math.NaN()
		r.nearData[i] = math.NaN()
	}
	return r
}

// Bind registers the data-index mapping between one input tag's
// variables and this resampler's flattened output array, the
// lower-level primitive Connect uses. inIndex[i]/outIndex[i]/length[i]
// are parallel: the length[i] values starting at inIndex[i] in an
// incoming sample under tag map to the length[i] values starting at
// outIndex[i] in the resampler's internal state.
func (r *NearestResampler) Bind(tag *nidas.SampleTag, inIndex, outIndex, length []int) {
	r.byID[tag.ID()] = varRef{inIndex: inIndex, outIndex: outIndex, length: length}
}

// Connect matches every variable of every tag source produces against
// this resampler's output variables (by Name and StationID, as the
// original matches by Variable equality), Binds the ones that match, and
// registers this resampler as a per-tag client of source — mirroring
// the original NearestResampler::connect.
func (r *NearestResampler) Connect(source nidas.SampleSource) {
	for _, tag := range source.SampleTags() {
		var inIdx, outIdx, length []int
		matched := false
		dataIdx := 0
		for _, v := range tag.Variables() {
			if outIdx2, ok := r.outIndexFor(v); ok {
				inIdx = append(inIdx, dataIdx)
				outIdx = append(outIdx, outIdx2)
				length = append(length, v.Length)
				matched = true
			}
			dataIdx += v.Length
		}
		if matched {
			r.Bind(tag, inIdx, outIdx, length)
			source.AddSampleClientForTag(r, tag)
		}
	}
}

func (r *NearestResampler) outIndexFor(v *nidas.Variable) (int, bool) {
	idx := 0
	for _, ov := range r.outTag.Variables() {
		if ov.Name == v.Name && ov.StationID == v.StationID {
			return idx, true
		}
		idx += ov.Length
	}
	return 0, false
}

// Receive implements nidas.SampleClient. Only float32/float64 samples
// whose id was Bind-registered are accepted.
func (r *NearestResampler) Receive(samp *nidas.Sample) (bool, error) {
	if samp.Type() != nidas.TypeFloat32 && samp.Type() != nidas.TypeFloat64 {
		return false, nil
	}
	ref, ok := r.byID[samp.ID()]
	if !ok {
		return false, nil
	}

	tt := samp.Time()
	for iv := range ref.inIndex {
		ii := ref.inIndex[iv]
		oi := ref.outIndex[iv]
		for k := 0; k < ref.length[iv] && ii < samp.Len(); k, ii, oi = k+1, ii+1, oi+1 {
			val, err := samp.Float64(ii)
			if err != nil {
				return false, err
			}
			if oi == r.master {
				r.onMaster(tt, val)
			} else {
				r.onSecondary(oi, tt, val)
			}
		}
	}
	return true, nil
}

func (r *NearestResampler) onMaster(tt nidas.Time, val float64) {
	var maxTT, minTT nidas.Time

	if r.nmaster < 2 {
		if r.nmaster == 0 {
			r.nmaster++
			r.nearTT[r.master] = r.prevTT[r.master]
			r.prevTT[r.master] = tt
			r.prevData[r.master] = val
			return
		}
		r.nmaster++
		maxTT = tt - (tt-r.prevTT[r.master])/10
		minTT = r.prevTT[r.master] - (tt-r.prevTT[r.master])*9/10
	} else {
		maxTT = tt - (tt-r.prevTT[r.master])/10
		minTT = r.nearTT[r.master] + (r.prevTT[r.master]-r.nearTT[r.master])/10
	}

	out := make([]float64, r.outlen)
	nonNANs := 0
	for k := 0; k < r.ndataValues; k++ {
		if k == r.master {
			out[k] = r.prevData[k]
			if !math.IsNaN(out[k]) {
				nonNANs++
			}
			continue
		}
		if r.samplesSinceMaster[k] == 0 {
			if r.prevTT[k] > maxTT || r.prevTT[k] < minTT {
				out[k] = math.NaN()
			} else {
				out[k] = r.prevData[k]
				if !math.IsNaN(out[k]) {
					nonNANs++
				}
			}
		} else {
			if r.nearTT[k] > maxTT || r.nearTT[k] < minTT {
				out[k] = math.NaN()
			} else {
				out[k] = r.nearData[k]
				if !math.IsNaN(out[k]) {
					nonNANs++
				}
			}
		}
		r.samplesSinceMaster[k] = 0
	}
	out[r.ndataValues] = float64(nonNANs)
	r.emit(r.prevTT[r.master], out)

	r.nearTT[r.master] = r.prevTT[r.master]
	r.prevTT[r.master] = tt
	r.prevData[r.master] = val
}

func (r *NearestResampler) onSecondary(oi int, tt nidas.Time, val float64) {
	if r.samplesSinceMaster[oi] == 0 {
		if r.prevTT[r.master] > (tt+r.prevTT[oi])/2 {
			r.nearData[oi] = val
			r.nearTT[oi] = tt
		} else {
			r.nearData[oi] = r.prevData[oi]
			r.nearTT[oi] = r.prevTT[oi]
		}
		r.samplesSinceMaster[oi]++
	}
	r.prevData[oi] = val
	r.prevTT[oi] = tt
}

func (r *NearestResampler) emit(tt nidas.Time, data []float64) {
	s := nidas.GetSample(nidas.TypeFloat32, len(data))
	s.SetID(r.outTag.ID())
	s.SetTime(tt)
	buf := make([]byte, len(data)*4)
	for i, v := range data {
		nidas.PutFloat32(buf[i*4:], float32(v))
	}
	_ = s.SetBytes(buf)
	_ = r.Distribute(s)
}

// Finish flushes whatever the resampler is holding for the master
// variable's most recent interval, matching the original's finish():
// called once when the upstream source is shutting down.
func (r *NearestResampler) Finish() {
	if r.nmaster < 2 {
		return
	}
	maxTT := r.prevTT[r.master] + (r.prevTT[r.master] - r.nearTT[r.master])
	minTT := r.nearTT[r.master]

	out := make([]float64, r.outlen)
	nonNANs := 0
	for k := 0; k < r.ndataValues; k++ {
		if k == r.master {
			out[k] = r.prevData[k]
			if !math.IsNaN(out[k]) {
				nonNANs++
			}
			r.prevData[k] = math.NaN()
			continue
		}
		if r.samplesSinceMaster[k] == 0 {
			if r.prevTT[k] > maxTT || r.prevTT[k] < minTT {
				out[k] = math.NaN()
			} else {
				out[k] = r.prevData[k]
				if !math.IsNaN(out[k]) {
					nonNANs++
				}
			}
		} else {
			if r.nearTT[k] > maxTT || r.nearTT[k] < minTT {
				out[k] = math.NaN()
			} else {
				out[k] = r.nearData[k]
				if !math.IsNaN(out[k]) {
					nonNANs++
				}
			}
		}
		r.samplesSinceMaster[k] = 0
		r.prevData[k] = math.NaN()
	}
	out[r.ndataValues] = float64(nonNANs)
	r.emit(r.prevTT[r.master], out)
	r.nmaster = 0
}

// Flush implements nidas.SampleClient; the resampler has no buffered
// per-Receive state to release, so this is a no-op. Finish (called by
// the owning pipeline on shutdown) is where outstanding output is
// flushed.
func (r *NearestResampler) Flush() error { return nil }

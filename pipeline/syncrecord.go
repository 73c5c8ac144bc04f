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
	"fmt"
	"math"
	"strings"

	"hz.tools/nidas"
)

const usecsPerSec = 1_000_000

// syncGroup is one rate group: the set of continuous/counter variables of
// a single processed SampleTag, occupying one contiguous lag-plus-floats
// block of the sync record, per §4.9.
type syncGroup struct {
	tagID          nidas.ID
	rate           float64
	samplesPerSec  int
	usecsPerSample int64
	offset         int // float index of this group's lag slot
	length         int // floats after the lag slot, i.e. Σ varLen[i]*samplesPerSec

	// varOffset[i] + 1 is the float offset (absolute, within the record) of
	// variable i's first sample slot; varOffset[i] is -1 if variable i is not a
	// continuous/counter quantity and so is carried in the input sample
	// but not in the record.
	varOffset []int
	varLen    []int
}

// SyncRecordBuilder assembles one float record per wall-clock second from
// the processed samples of every sensor registered with AddTag, per
// §4.9. It is built the same shape as NearestResampler: embeds BaseSource
// for its output side, and implements nidas.SampleClient for its input
// side, so it chains into a pipeline identically.
type SyncRecordBuilder struct {
	*nidas.BaseSource

	Project  string
	Aircraft string
	Flight   string

	groups  map[nidas.ID]*syncGroup
	order   []*syncGroup
	vars    []*nidas.Variable // flat, continuous/counter only, declaration order
	varsOf  map[*syncGroup][]*nidas.Variable
	recSize int
	header  string

	syncTime      nidas.Time
	rec           []float32
	haveRec       bool
	pendingHeader bool
	headerTime    nidas.Time

	BadTimes            int64
	UnknownSampleType   int64
	UnrecognizedSamples int64

	dropLog *nidas.DecreasingLogger
}

// NewSyncRecordBuilder creates an empty SyncRecordBuilder. AddTag must be
// called for every processed SampleTag it should assemble records from,
// followed by one call to Finalize before Receive is used.
func NewSyncRecordBuilder(project, aircraft, flight string) *SyncRecordBuilder {
	return &SyncRecordBuilder{
		BaseSource: nidas.NewBaseSource(),
		Project:    project,
		Aircraft:   aircraft,
		Flight:     flight,
		groups:     map[nidas.ID]*syncGroup{},
		varsOf:     map[*syncGroup][]*nidas.Variable{},
		dropLog:    nidas.NewDecreasingLogger(),
	}
}

// AddTag registers one processed SampleTag's variables. A tag whose sole
// variable is neither Continuous nor Counter is skipped entirely (it
// carries no rate-group worth building), matching the upstream rule that
// a lone non-scientific variable (e.g. a bare status flag) doesn't
// warrant its own sync slot.
func (b *SyncRecordBuilder) AddTag(tag *nidas.SampleTag) {
	vars := tag.Variables()
	if len(vars) == 1 && vars[0].Physical != nidas.Continuous && vars[0].Physical != nidas.Counter {
		return
	}

	g := &syncGroup{
		tagID:          tag.ID(),
		rate:           tag.Rate(),
		samplesPerSec:  int(math.Ceil(tag.Rate())),
		usecsPerSample: int64(math.Round(float64(usecsPerSec) / tag.Rate())),
		varOffset:      make([]int, len(vars)),
		varLen:         make([]int, len(vars)),
	}

	for i, v := range vars {
		g.varLen[i] = v.Length
		g.varOffset[i] = -1
		if v.Physical == nidas.Continuous || v.Physical == nidas.Counter {
			g.varOffset[i] = g.length
			g.length += v.Length * g.samplesPerSec
			b.vars = append(b.vars, v)
			b.varsOf[g] = append(b.varsOf[g], v)
		}
	}

	b.groups[tag.ID()] = g
	b.order = append(b.order, g)
}

// Finalize computes every group's absolute offset and builds the ASCII
// header, once every AddTag call has been made. Must be called before
// Receive.
func (b *SyncRecordBuilder) Finalize() {
	offset := 0
	for _, g := range b.order {
		g.offset = offset
		offset += g.length + 1
		for i := range g.varOffset {
			if g.varOffset[i] >= 0 {
				g.varOffset[i] += g.offset
			}
		}
	}
	b.recSize = offset
	b.header = b.buildHeader()
}

func (b *SyncRecordBuilder) buildHeader() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "project  %s\n", sanitizeLine(b.Project))
	fmt.Fprintf(&sb, "aircraft %s\n", sanitizeLine(b.Aircraft))
	fmt.Fprintf(&sb, "flight %s\n", sanitizeLine(b.Flight))

	sb.WriteString("variables {\n")
	for _, v := range b.vars {
		name := strings.ReplaceAll(v.Name, " ", "_")
		fmt.Fprintf(&sb, "%s %c %d \"%s\" \"%s\" %s;\n",
			name, typeAbbrev(v.Physical), v.Length, v.Units, v.LongName, converterClause(v))
	}
	sb.WriteString("}\n")

	sb.WriteString("rates {\n")
	for _, g := range b.order {
		fmt.Fprintf(&sb, "%.2f ", g.rate)
		for _, v := range b.varsOf[g] {
			fmt.Fprintf(&sb, "%s ", strings.ReplaceAll(v.Name, " ", "_"))
		}
		sb.WriteString(";\n")
	}
	sb.WriteString("}\n")
	return sb.String()
}

func sanitizeLine(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "\r", " ")
}

func typeAbbrev(p nidas.PhysicalType) rune {
	switch p {
	case nidas.Continuous:
		return 'n'
	case nidas.Counter:
		return 'c'
	case nidas.Clock:
		return 't'
	default:
		return 'o'
	}
}

func converterClause(v *nidas.Variable) string {
	switch c := v.Converter.(type) {
	case *nidas.LinearConverter:
		return fmt.Sprintf("%g %g \"%s\"", c.Intercept, c.Slope, v.Units)
	case *nidas.PolyConverter:
		var sb strings.Builder
		for _, coef := range c.Coefficients {
			fmt.Fprintf(&sb, "%g ", coef)
		}
		fmt.Fprintf(&sb, "\"%s\"", v.Units)
		return sb.String()
	default:
		return fmt.Sprintf("\"%s\"", v.Units)
	}
}

// Receive implements nidas.SampleClient, per the per-second algorithm of
// §4.9: allocate on first sample, screen samples older than the current
// record's syncTime as BadTimes, roll to a new record (emitting the
// pending header and the completed record) when a sample crosses the
// next second boundary, then copy the sample's values into their slot.
func (b *SyncRecordBuilder) Receive(samp *nidas.Sample) (bool, error) {
	tt := samp.Time()

	if !b.haveRec {
		b.syncTime = tt - tt%usecsPerSec
		b.allocateRecord()
	}

	if tt < b.syncTime {
		b.BadTimes++
		b.dropLog.Log("pipeline: sync record: sample id %v time %d before sync time %d, dropped", samp.ID(), tt, b.syncTime)
		return false, nil
	}

	if tt >= b.syncTime+usecsPerSec {
		if b.pendingHeader {
			if err := b.sendHeader(); err != nil {
				return false, err
			}
		}
		if err := b.flush(); err != nil {
			return false, err
		}
		b.syncTime += usecsPerSec
		if tt >= b.syncTime+usecsPerSec {
			b.BadTimes++
			b.dropLog.Log("pipeline: sync record: sample id %v time %d more than one second past sync time %d, resyncing", samp.ID(), tt, b.syncTime)
			b.syncTime = tt - tt%usecsPerSec
		}
		b.allocateRecord()
	}

	g, ok := b.groups[samp.ID()]
	if !ok {
		b.UnrecognizedSamples++
		return false, nil
	}

	if samp.Type() != nidas.TypeFloat32 && samp.Type() != nidas.TypeFloat64 {
		b.UnknownSampleType++
		b.dropLog.Log("pipeline: sync record: sample id %v has non-float type %v, dropped", samp.ID(), samp.Type())
		return false, nil
	}

	timeIndex := int(math.Round(float64(tt-b.syncTime) / float64(g.usecsPerSample)))
	if timeIndex < 0 {
		timeIndex = 0
	}
	if timeIndex >= g.samplesPerSec {
		timeIndex = g.samplesPerSec - 1
	}

	if len(g.varOffset) > 0 && g.varOffset[0] == g.offset && timeIndex == 0 {
		b.rec[g.offset] = float32(tt - b.syncTime)
	}

	fp := 0
	for i, vlen := range g.varLen {
		if g.varOffset[i] >= 0 {
			dp := g.varOffset[i] + 1 + vlen*timeIndex
			for k := 0; k < vlen && fp+k < samp.Len(); k++ {
				val, err := samp.Float64(fp + k)
				if err != nil {
					return false, err
				}
				if dp+k < len(b.rec) {
					b.rec[dp+k] = float32(val)
				}
			}
		}
		fp += vlen
	}
	return true, nil
}

// Flush implements nidas.SampleClient, releasing any in-progress record
// on upstream shutdown.
func (b *SyncRecordBuilder) Flush() error {
	return b.flush()
}

// ScheduleHeader arranges for the ASCII header to be emitted, timestamped
// at headerTime, the next time a record boundary is crossed.
func (b *SyncRecordBuilder) ScheduleHeader(headerTime nidas.Time) {
	b.pendingHeader = true
	b.headerTime = headerTime
}

func (b *SyncRecordBuilder) allocateRecord() {
	b.rec = make([]float32, b.recSize)
	for i := range b.rec {
		b.rec[i] = float32(math.NaN())
	}
	b.haveRec = true
}

func (b *SyncRecordBuilder) flush() error {
	if !b.haveRec {
		return nil
	}
	buf := make([]byte, len(b.rec)*4)
	for i, v := range b.rec {
		nidas.PutFloat32(buf[i*4:], v)
	}
	s := nidas.GetSample(nidas.TypeFloat32, len(b.rec))
	s.SetID(nidas.SyncRecordID)
	s.SetTime(b.syncTime)
	if err := s.SetBytes(buf); err != nil {
		return err
	}
	b.haveRec = false
	return b.Distribute(s)
}

func (b *SyncRecordBuilder) sendHeader() error {
	hdr := []byte(b.header)
	s := nidas.GetSample(nidas.TypeChar, len(hdr))
	s.SetID(nidas.SyncRecordHeaderID)
	s.SetTime(b.headerTime)
	if err := s.SetBytes(hdr); err != nil {
		return err
	}
	b.pendingHeader = false
	return b.Distribute(s)
}

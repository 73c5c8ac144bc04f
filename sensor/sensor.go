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

package sensor

import (
	"time"

	"hz.tools/nidas"
	"hz.tools/nidas/despike"
	"hz.tools/nidas/internal/bufchan"
	"hz.tools/nidas/internal/ring"
)

// Processor turns one raw record into zero or more processed Samples,
// the sensor-specific codec named in §4.6 step 4 ("process(raw) ->
// list<processed>"). Sensor driver codecs themselves are out of scope
// (§1 Non-goals); this is the seam a concrete driver plugs into.
type Processor interface {
	Process(raw *nidas.Sample) ([]*nidas.Sample, error)
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(raw *nidas.Sample) ([]*nidas.Sample, error)

// Process calls f.
func (f ProcessorFunc) Process(raw *nidas.Sample) ([]*nidas.Sample, error) { return f(raw) }

// Clock supplies the timetag a Sensor stamps each record with, preferring
// an IRIG time source when available and falling back to the system
// clock, per §4.6 step 3.
type Clock interface {
	Now() nidas.Time
}

type systemClock struct{}

func (systemClock) Now() nidas.Time {
	return nidas.Time(time.Now().UnixMicro())
}

// SystemClock is the fallback Clock used when no IRIG source is wired.
var SystemClock Clock = systemClock{}

// processingQueueCapacity bounds how many raw samples may be queued for
// asynchronous processing before Push starts applying Block backpressure
// to OnReadable, the same heap_max-style tradeoff SortedSampleSet makes
// for its own producers.
const processingQueueCapacity = 256

// Sensor reads one fd's byte stream, scans it for records, timestamps
// and distributes raw Samples, then runs its Processor and distributes
// the resulting processed Samples, per §4.6.
type Sensor struct {
	*nidas.BaseSource

	RawTag       *nidas.SampleTag
	fd           int
	channel      ringReader
	ring         *ring.Buffer
	scanner      *Scanner
	clock        Clock
	pool         *nidas.SamplePool
	processor    Processor
	despikers    map[*nidas.Variable]*despike.Despiker

	// procQueue decouples Processor.Process (a sensor driver codec that
	// may run despike chains and do real work) from OnReadable, which
	// runs on PortSelector's shared epoll goroutine; a slow Processor
	// would otherwise delay every other sensor's next read.
	procQueue  *bufchan.Queue
	procLog    *nidas.DecreasingLogger
	procClosed chan struct{}
}

// ringReader is the minimal read capability a Sensor needs from its
// underlying transport; ioc.Channel satisfies it.
type ringReader interface {
	FD() int
	Read(p []byte) (int, error)
}

// NewSensor creates a Sensor over channel, scanning with cfg and
// timestamping with clock (SystemClock if nil). The ring buffer is 8KiB,
// matching §4.6 step 1.
func NewSensor(rawID nidas.ID, channel ringReader, cfg ScannerConfig, clock Clock) *Sensor {
	if clock == nil {
		clock = SystemClock
	}
	s := &Sensor{
		BaseSource: nidas.NewBaseSource(),
		fd:         channel.FD(),
		channel:    channel,
		ring:       ring.NewBuffer(8 * 1024),
		scanner:    NewScanner(cfg),
		clock:      clock,
		pool:       nidas.DefaultPool,
		despikers:  map[*nidas.Variable]*despike.Despiker{},
		procQueue:  bufchan.New(processingQueueCapacity, bufchan.Block),
		procLog:    nidas.NewDecreasingLogger(),
		procClosed: make(chan struct{}),
	}
	s.RawTag = nidas.NewSampleTag(rawID, 0, false)
	s.AddSampleTag(s.RawTag)
	go s.runProcessor()
	return s
}

// FD implements sensor.FDHandler for PortSelector registration.
func (s *Sensor) FD() int { return s.fd }

// SetProcessor wires the codec used to turn raw records into processed
// Samples.
func (s *Sensor) SetProcessor(p Processor) { s.processor = p }

// Despiker returns (creating if necessary) the AdaptiveDespiker chained
// for v, so a Processor can despike a variable's value before emitting
// it (§4.6 despike chain).
func (s *Sensor) Despiker(v *nidas.Variable) *despike.Despiker {
	d, ok := s.despikers[v]
	if !ok {
		d = despike.NewDespiker()
		s.despikers[v] = d
	}
	return d
}

// OnReadable implements sensor.FDHandler: it is called by the
// PortSelector when the sensor's fd is readable. It performs exactly the
// four steps of §4.6: read into the ring, scan for complete records,
// distribute each as a raw Sample, then process and distribute.
func (s *Sensor) OnReadable() error {
	var chunk [4096]byte
	n, err := s.channel.Read(chunk[:])
	if err != nil {
		s.Stats().AddReadError()
		return err
	}
	if n > 0 {
		if _, werr := s.ring.Write(chunk[:n]); werr != nil {
			s.Stats().AddReadError()
			s.ring = ring.NewBuffer(s.ring.Cap())
		}
	}

	for {
		rec, ok := s.scanner.Next(s.ring)
		if !ok {
			break
		}
		if err := s.emitRaw(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sensor) emitRaw(rec []byte) error {
	raw := s.pool.Get(nidas.TypeChar, len(rec))
	raw.SetID(s.RawTag.ID())
	raw.SetTime(s.clock.Now())
	if err := raw.SetBytes(rec); err != nil {
		return err
	}

	if s.processor != nil {
		// The queue's reference is taken before Distribute releases the
		// creation reference, so raw cannot go back to the pool first.
		raw.AddReference()
	}
	if err := s.Distribute(raw); err != nil {
		return err
	}

	if s.processor == nil {
		return nil
	}
	if err := s.procQueue.Push(raw); err != nil {
		raw.FreeReference()
		s.Stats().AddWriteError()
		return err
	}
	return nil
}

// runProcessor drains procQueue on its own goroutine for the Sensor's
// entire lifetime, running the Processor and distributing its output away
// from the epoll loop. Processing errors can't propagate to a caller
// anymore once they cross this queue, so they are logged at decreasing
// frequency and counted instead, matching §7's "logged at decreasing
// frequency" rule for this class of error.
func (s *Sensor) runProcessor() {
	defer close(s.procClosed)
	for {
		v, ok := s.procQueue.Pop()
		if !ok {
			return
		}
		raw := v.(*nidas.Sample)
		processed, err := s.processor.Process(raw)
		if err != nil {
			s.Stats().AddWriteError()
			s.procLog.Log("sensor: process: %v", err)
			raw.FreeReference()
			continue
		}
		for _, p := range processed {
			if derr := s.Distribute(p); derr != nil {
				s.Stats().AddWriteError()
				s.procLog.Log("sensor: distribute: %v", derr)
			}
		}
		raw.FreeReference()
	}
}

// Close stops the processing worker and waits for it to drain, so no
// reference returned by Process outlives the Sensor, per §9's "the sample
// pool drain blocks shutdown until all outstanding references are
// returned".
func (s *Sensor) Close() error {
	select {
	case <-s.procClosed:
		return nil
	default:
	}
	s.procQueue.Close()
	<-s.procClosed
	return nil
}

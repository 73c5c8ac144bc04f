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

// Package archiver owns a set of sample outputs, framing and writing
// every incoming Sample to each, rolling FileSet-backed outputs on
// boundary crossings, and recovering a broken-pipe output in the
// background rather than blocking the distribution path on it (§4.10).
package archiver

import (
	"sync"
	"time"

	"hz.tools/nidas"
	"hz.tools/nidas/archive"
	"hz.tools/nidas/ioc"
)

// Rollable is implemented by channels (FileSet) whose write target
// depends on wall-clock time.
type Rollable interface {
	Roll(t time.Time) error
}

// Sizeable is implemented by channels that can report their current
// file's size for status reporting.
type Sizeable interface {
	FileSize() int64
}

// Output is one archive destination: an IOChannel plus the bookkeeping
// the archiver needs to roll, reconnect, and report status on it.
type Output struct {
	Name    string
	Channel ioc.Channel

	// ReconnectDelay is how long Archiver waits before retrying a broken
	// connection; it applies a simple fixed delay rather than the
	// exponential backoff ioc.Socket already does internally for the
	// connect attempt itself, since this delay only governs how often the
	// archiver bothers to retry.
	ReconnectDelay time.Duration

	mu        sync.Mutex
	connected bool
	lastError error
	lastTime  nidas.Time

	stats *nidas.Stats
}

// NewOutput wraps channel as a named archive destination. The channel is
// not opened until the archiver's first write.
func NewOutput(name string, channel ioc.Channel) *Output {
	return &Output{
		Name:           name,
		Channel:        channel,
		ReconnectDelay: 5 * time.Second,
		stats:          nidas.NewStats(0),
	}
}

// Status is a point-in-time snapshot of one Output, the data a status
// page renders per §4.10.
type Status struct {
	Name        string
	Connected   bool
	LastTimetag nidas.Time
	SamplesPerS float64
	BytesPerS   float64
	Filename    string
	FileSize    int64
	LastError   string
}

// Snapshot reports o's current status.
func (o *Output) Snapshot() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := o.stats.Snapshot()
	avgLen := 0.0
	if snap.CumCount > 0 {
		avgLen = float64(snap.CumBytes) / float64(snap.CumCount)
	}
	st := Status{
		Name:        o.Name,
		Connected:   o.connected,
		LastTimetag: o.lastTime,
		SamplesPerS: snap.SampleRateHz,
		BytesPerS:   snap.SampleRateHz * avgLen,
		Filename:    o.Channel.ConnectionInfo(),
	}
	if sz, ok := o.Channel.(Sizeable); ok {
		st.FileSize = sz.FileSize()
	}
	if o.lastError != nil {
		st.LastError = o.lastError.Error()
	}
	return st
}

func (o *Output) ensureConnected() error {
	o.mu.Lock()
	connected := o.connected
	o.mu.Unlock()
	if connected {
		return nil
	}
	if err := o.Channel.Open(); err != nil {
		return err
	}
	o.mu.Lock()
	o.connected = true
	o.mu.Unlock()
	return nil
}

// write frames and writes one Sample's payload, rolling a Rollable
// channel first, and scheduling a reconnect if the write fails.
func (o *Output) write(samp *nidas.Sample) error {
	if err := o.ensureConnected(); err != nil {
		o.fail(err)
		return err
	}

	if roller, ok := o.Channel.(Rollable); ok {
		t := time.UnixMicro(int64(samp.Time())).UTC()
		if err := roller.Roll(t); err != nil {
			o.fail(err)
			return err
		}
	}

	payload := samp.Bytes()
	if archive.HostIsBigEndian {
		// Sample payloads must not be mutated in place once
		// distributed; swap a private copy instead.
		swapped := make([]byte, len(payload))
		copy(swapped, payload)
		archive.SwapPayload(swapped, samp.Type().Size())
		payload = swapped
	}

	h := archive.FrameHeader{Time: int64(samp.Time()), ID: uint32(samp.ID())}
	if err := archive.WriteFrame(channelWriter{o.Channel}, h, payload); err != nil {
		o.fail(err)
		return err
	}

	o.mu.Lock()
	o.lastTime = samp.Time()
	o.mu.Unlock()
	o.stats.AddSample(samp.Time(), samp.ByteLength()+archive.FrameHeaderLen)
	return nil
}

// channelWriter adapts ioc.Channel's Write(p)(int,error) to io.Writer,
// which archive.WriteFrame expects.
type channelWriter struct{ c ioc.Channel }

func (w channelWriter) Write(p []byte) (int, error) { return w.c.Write(p) }

// fail marks o disconnected, records the error, and, if o was connected,
// closes the channel and schedules one background reopen attempt after
// ReconnectDelay, matching §4.10's "disconnect then queue a reconnect
// request after a configurable delay" rule. It mirrors the teacher's
// standby reader/writer: the channel isn't torn down and rebuilt by the
// caller, it reopens on its own. If that single attempt fails, no further
// timer is scheduled; the output stays disconnected until the next write
// retries Open.
func (o *Output) fail(err error) {
	o.mu.Lock()
	wasConnected := o.connected
	o.connected = false
	o.lastError = err
	o.mu.Unlock()

	if !wasConnected {
		return
	}
	nidas.Warnf("archiver: output %s: %v, reconnecting in %s", o.Name, err, o.ReconnectDelay)
	_ = o.Channel.Close()

	time.AfterFunc(o.ReconnectDelay, func() {
		if rerr := o.Channel.Open(); rerr == nil {
			o.mu.Lock()
			o.connected = true
			o.lastError = nil
			o.mu.Unlock()
			nidas.Infof("archiver: output %s: reconnected", o.Name)
		}
	})
}

// Archiver distributes Samples to every registered Output, per §4.10. It
// implements nidas.SampleClient so it drops into a pipeline the same way
// SortedSampleSet and NearestResampler do.
type Archiver struct {
	mu      sync.RWMutex
	outputs map[string]*Output
}

// NewArchiver creates an empty Archiver.
func NewArchiver() *Archiver {
	return &Archiver{outputs: map[string]*Output{}}
}

// AddOutput registers o. Replaces any existing output of the same name.
func (a *Archiver) AddOutput(o *Output) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outputs[o.Name] = o
}

// RemoveOutput closes and unregisters the named output.
func (a *Archiver) RemoveOutput(name string) error {
	a.mu.Lock()
	o, ok := a.outputs[name]
	delete(a.outputs, name)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return o.Channel.Close()
}

// Receive implements nidas.SampleClient: samp is framed and written to
// every registered output. A write failure on one output does not stop
// distribution to the others; the first error seen is returned after all
// outputs have been tried.
func (a *Archiver) Receive(samp *nidas.Sample) (bool, error) {
	a.mu.RLock()
	outs := make([]*Output, 0, len(a.outputs))
	for _, o := range a.outputs {
		outs = append(outs, o)
	}
	a.mu.RUnlock()

	var first error
	for _, o := range outs {
		if err := o.write(samp); err != nil && first == nil {
			first = err
		}
	}
	return true, first
}

// Flush implements nidas.SampleClient; Archiver holds no buffered
// samples between Receive calls, so this is a no-op.
func (a *Archiver) Flush() error { return nil }

// Status returns a snapshot of every registered output, keyed by name,
// the live-status view named in §4.10.
func (a *Archiver) Status() map[string]Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]Status, len(a.outputs))
	for name, o := range a.outputs {
		out[name] = o.Snapshot()
	}
	return out
}

// Close closes every registered output.
func (a *Archiver) Close() error {
	a.mu.RLock()
	outs := make([]*Output, 0, len(a.outputs))
	for _, o := range a.outputs {
		outs = append(outs, o)
	}
	a.mu.RUnlock()

	var first error
	for _, o := range outs {
		if err := o.Channel.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

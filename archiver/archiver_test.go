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

package archiver_test

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas"
	"hz.tools/nidas/archive"
	"hz.tools/nidas/archiver"
	"hz.tools/nidas/ioc"
)

// memChannel is an in-memory ioc.Channel: every Write appends to a single
// buffer, and the next failWrites calls to Write fail instead, exercising
// Output's fail/reconnect path without a real socket or file.
type memChannel struct {
	mu         sync.Mutex
	name       string
	openErr    error
	opened     bool
	closeCount int
	failWrites int
	buf        bytes.Buffer
}

func (c *memChannel) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return c.openErr
	}
	c.opened = true
	return nil
}

func (c *memChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = false
	c.closeCount++
	return nil
}

func (c *memChannel) Read(p []byte) (int, error) { return 0, nil }

func (c *memChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites > 0 {
		c.failWrites--
		return 0, fmt.Errorf("memChannel: induced write failure")
	}
	return c.buf.Write(p)
}

func (c *memChannel) RequestConnection(r ioc.ConnectionRequester) error { return nil }
func (c *memChannel) ConnectionInfo() string                            { return c.name }
func (c *memChannel) Name() string                                      { return c.name }

func (c *memChannel) bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out
}

// rollingMemChannel additionally implements archiver.Rollable, recording
// the time of its last Roll call.
type rollingMemChannel struct {
	memChannel
	lastRoll time.Time
}

func (c *rollingMemChannel) Roll(t time.Time) error {
	c.lastRoll = t
	return nil
}

func charSample(id nidas.ID, tt nidas.Time, payload string) *nidas.Sample {
	s := nidas.GetSample(nidas.TypeChar, len(payload))
	s.SetID(id)
	s.SetTime(tt)
	_ = s.SetBytes([]byte(payload))
	return s
}

func TestOutputWriteFramesPayloadAndRecordsStats(t *testing.T) {
	ch := &memChannel{name: "test"}
	o := archiver.NewOutput("out0", ch)

	a := archiver.NewArchiver()
	a.AddOutput(o)

	id := nidas.MakeID(1, 1)
	samp := charSample(id, 1_000_000, "hello")
	_, err := a.Receive(samp)
	assert.NoError(t, err)
	assert.NoError(t, samp.FreeReference())

	raw := ch.bytes()
	assert.Len(t, raw, archive.FrameHeaderLen+5)
	fh := archive.ParseFrameHeader(raw[:archive.FrameHeaderLen])
	assert.Equal(t, int64(1_000_000), fh.Time)
	assert.Equal(t, uint32(id), fh.ID)
	assert.Equal(t, uint32(5), fh.Length)
	assert.Equal(t, "hello", string(raw[archive.FrameHeaderLen:]))

	st := a.Status()["out0"]
	assert.True(t, st.Connected)
	assert.Equal(t, nidas.Time(1_000_000), st.LastTimetag)
}

func TestOutputRollsOnRollableChannel(t *testing.T) {
	ch := &rollingMemChannel{memChannel: memChannel{name: "rolling"}}
	o := archiver.NewOutput("out0", ch)
	a := archiver.NewArchiver()
	a.AddOutput(o)

	tt := nidas.Time(1_700_000_000 * 1_000_000) // arbitrary unix-micro time
	samp := charSample(nidas.MakeID(1, 1), tt, "x")
	_, err := a.Receive(samp)
	assert.NoError(t, err)
	assert.NoError(t, samp.FreeReference())

	assert.Equal(t, time.UnixMicro(int64(tt)).UTC(), ch.lastRoll)
}

func TestArchiverReceiveContinuesPastOneFailingOutput(t *testing.T) {
	good := &memChannel{name: "good"}
	bad := &memChannel{name: "bad", openErr: fmt.Errorf("connection refused")}

	a := archiver.NewArchiver()
	a.AddOutput(archiver.NewOutput("good", good))
	a.AddOutput(archiver.NewOutput("bad", bad))

	samp := charSample(nidas.MakeID(1, 1), 1, "z")
	_, err := a.Receive(samp)
	assert.Error(t, err, "the bad output's connect failure must surface")
	assert.NoError(t, samp.FreeReference())

	assert.Len(t, good.bytes(), archive.FrameHeaderLen+1, "the good output must still receive the frame")

	status := a.Status()
	assert.True(t, status["good"].Connected)
	assert.False(t, status["bad"].Connected)
	assert.NotEmpty(t, status["bad"].LastError)
}

func TestOutputReconnectsInBackgroundAfterWriteFailure(t *testing.T) {
	ch := &memChannel{name: "flaky", failWrites: 1}
	o := archiver.NewOutput("out0", ch)
	o.ReconnectDelay = 20 * time.Millisecond

	a := archiver.NewArchiver()
	a.AddOutput(o)

	samp := charSample(nidas.MakeID(1, 1), 1, "a")
	_, err := a.Receive(samp)
	assert.Error(t, err)
	assert.NoError(t, samp.FreeReference())
	assert.False(t, a.Status()["out0"].Connected)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if a.Status()["out0"].Connected {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, a.Status()["out0"].Connected, "Output should reconnect on its own after ReconnectDelay")
}

func TestArchiverRemoveOutputClosesChannel(t *testing.T) {
	ch := &memChannel{name: "out0"}
	a := archiver.NewArchiver()
	a.AddOutput(archiver.NewOutput("out0", ch))

	assert.NoError(t, a.RemoveOutput("out0"))
	assert.Equal(t, 1, ch.closeCount)
	assert.NotContains(t, a.Status(), "out0")
}

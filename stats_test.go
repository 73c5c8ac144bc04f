package nidas_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas"
)

func TestStatsTracksMinMaxAndLastTime(t *testing.T) {
	s := nidas.NewStats(0)
	s.AddSample(100, 50)
	s.AddSample(200, 10)
	s.AddSample(300, 80)

	snap := s.Snapshot()
	assert.Equal(t, 10, snap.MinLength)
	assert.Equal(t, 80, snap.MaxLength)
	assert.Equal(t, nidas.Time(300), snap.LastTime)
	assert.Equal(t, int64(3), snap.CumCount)
	assert.Equal(t, int64(140), snap.CumBytes)
}

func TestStatsErrorCountersAccumulate(t *testing.T) {
	s := nidas.NewStats(0)
	s.AddReadError()
	s.AddReadError()
	s.AddWriteError()

	snap := s.Snapshot()
	assert.Equal(t, int64(2), snap.CumReadErr)
	assert.Equal(t, int64(2), snap.WindowReadErr)
	assert.Equal(t, int64(1), snap.CumWriteErr)
	assert.Equal(t, int64(1), snap.WindowWriteErr)
}

// TestStatsWindowResetsAfterPeriodElapses covers the windowed half of §4.3's
// statistics model: once the configured period elapses, the next sample
// rolls the window's min/max back to a fresh reading while cumulative
// counters keep accumulating.
func TestStatsWindowResetsAfterPeriodElapses(t *testing.T) {
	s := nidas.NewStats(30 * time.Millisecond)
	s.AddSample(1, 10)

	time.Sleep(50 * time.Millisecond)
	s.AddSample(2, 20)

	snap := s.Snapshot()
	assert.Equal(t, 20, snap.MinLength, "the window rolled, so only the second sample counts")
	assert.Equal(t, 20, snap.MaxLength)
	assert.Equal(t, int64(2), snap.CumCount, "cumulative counters never reset")
	assert.Equal(t, int64(30), snap.CumBytes)
}

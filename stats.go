package nidas

import (
	"sync"
	"time"
)

// Stats accumulates the windowed and cumulative counters named in §4.3:
// sample rate, min/max sample length, and read/write error counts, both
// over the current window and since process start. A Stats is safe for
// concurrent use; every BaseSource (and so every Sensor) and every
// archiver Output owns one.
type Stats struct {
	mu sync.Mutex

	windowStart   time.Time
	period        time.Duration
	windowCount   int64
	windowBytes   int64
	cumCount      int64
	cumBytes      int64
	minLen        int
	maxLen        int
	lastTime      Time
	windowReadErr int64
	cumReadErr    int64
	windowWriteErr int64
	cumWriteErr    int64
}

// NewStats creates a Stats with the given window period. A period of zero
// uses the spec's default of 300 seconds.
func NewStats(period time.Duration) *Stats {
	if period <= 0 {
		period = 300 * time.Second
	}
	return &Stats{period: period, windowStart: time.Now(), minLen: -1}
}

// AddSample records one sample's arrival.
func (s *Stats) AddSample(t Time, byteLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	s.windowCount++
	s.cumCount++
	s.windowBytes += int64(byteLen)
	s.cumBytes += int64(byteLen)
	if s.minLen < 0 || byteLen < s.minLen {
		s.minLen = byteLen
	}
	if byteLen > s.maxLen {
		s.maxLen = byteLen
	}
	s.lastTime = t
}

// AddReadError records one read-side error.
func (s *Stats) AddReadError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	s.windowReadErr++
	s.cumReadErr++
}

// AddWriteError records one write-side error.
func (s *Stats) AddWriteError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	s.windowWriteErr++
	s.cumWriteErr++
}

// rollLocked resets the windowed counters once the configured period has
// elapsed. Cumulative counters are never reset. Caller holds s.mu.
func (s *Stats) rollLocked() {
	if time.Since(s.windowStart) < s.period {
		return
	}
	s.windowStart = time.Now()
	s.windowCount = 0
	s.windowBytes = 0
	s.windowReadErr = 0
	s.windowWriteErr = 0
	s.minLen = -1
	s.maxLen = 0
}

// Snapshot is a point-in-time, immutable copy of a Stats' counters.
type Snapshot struct {
	SampleRateHz   float64
	MinLength      int
	MaxLength      int
	LastTime       Time
	WindowReadErr  int64
	CumReadErr     int64
	WindowWriteErr int64
	CumWriteErr    int64
	CumCount       int64
	CumBytes       int64
}

// Snapshot returns the current counters, computing the windowed sample
// rate from the elapsed fraction of the configured period.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollLocked()
	elapsed := time.Since(s.windowStart).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.windowCount) / elapsed
	}
	minLen := s.minLen
	if minLen < 0 {
		minLen = 0
	}
	return Snapshot{
		SampleRateHz:   rate,
		MinLength:      minLen,
		MaxLength:      s.maxLen,
		LastTime:       s.lastTime,
		WindowReadErr:  s.windowReadErr,
		CumReadErr:     s.cumReadErr,
		WindowWriteErr: s.windowWriteErr,
		CumWriteErr:    s.cumWriteErr,
		CumCount:       s.cumCount,
		CumBytes:       s.cumBytes,
	}
}

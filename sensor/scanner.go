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
	"fmt"
	"strconv"
	"strings"

	"hz.tools/nidas/internal/ring"
)

// FramingKind selects how a Scanner finds record boundaries in a
// sensor's byte stream, per §4.6.
type FramingKind int

const (
	// FramingSeparator splits on a configured separator string, either
	// preceding (Position = PositionBeg) or terminating (PositionEnd)
	// each record.
	FramingSeparator FramingKind = iota
	// FramingLengthPrefixed reads a fixed-width length prefix, then that
	// many payload bytes.
	FramingLengthPrefixed
	// FramingFixed reads a constant number of bytes per record.
	FramingFixed
)

// SeparatorPosition distinguishes a separator that precedes a record from
// one that terminates it.
type SeparatorPosition int

const (
	PositionEnd SeparatorPosition = iota
	PositionBeg
)

// ScannerConfig configures one Scanner instance, mirroring the
// text-record sensor configuration named in §4.6.
type ScannerConfig struct {
	Kind      FramingKind
	Separator []byte            // FramingSeparator
	Position  SeparatorPosition // FramingSeparator
	Length    int               // hard upper bound (FramingSeparator/LengthPrefixed), or record length (FramingFixed)

	// LengthPrefixBytes is the width of the length prefix for
	// FramingLengthPrefixed, typically 1, 2, or 4.
	LengthPrefixBytes int
}

// UnescapeSeparator expands the C-style escapes §4.6 allows in a
// separator string: \n \r \t \\ \xHH \0NN.
func UnescapeSeparator(s string) ([]byte, error) {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			out = append(out, c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case '\\':
			out = append(out, '\\')
		case 'x':
			if i+2 >= len(s) {
				return nil, fmt.Errorf("sensor: truncated \\x escape in separator")
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return nil, fmt.Errorf("sensor: bad \\x escape: %w", err)
			}
			out = append(out, byte(v))
			i += 2
		case '0':
			if i+2 >= len(s) {
				return nil, fmt.Errorf("sensor: truncated \\0NN escape in separator")
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 8, 8)
			if err != nil {
				return nil, fmt.Errorf("sensor: bad \\0NN escape: %w", err)
			}
			out = append(out, byte(v))
			i += 2
		default:
			out = append(out, '\\', s[i])
		}
	}
	return out, nil
}

// Scanner pulls complete records out of a ring.Buffer according to its
// ScannerConfig, per §4.6 step 2.
type Scanner struct {
	Config ScannerConfig
}

// NewScanner creates a Scanner for the given configuration.
func NewScanner(cfg ScannerConfig) *Scanner {
	return &Scanner{Config: cfg}
}

// Next extracts the next complete record from buf, if any, returning the
// record bytes (a fresh copy, safe to retain) and true. It returns
// false if the buffer does not yet hold a complete record.
func (s *Scanner) Next(buf *ring.Buffer) ([]byte, bool) {
	switch s.Config.Kind {
	case FramingSeparator:
		return s.nextSeparator(buf)
	case FramingLengthPrefixed:
		return s.nextLengthPrefixed(buf)
	case FramingFixed:
		return s.nextFixed(buf)
	default:
		return nil, false
	}
}

func (s *Scanner) nextFixed(buf *ring.Buffer) ([]byte, bool) {
	n := s.Config.Length
	if buf.Len() < n {
		return nil, false
	}
	rec := make([]byte, n)
	buf.Read(rec)
	return rec, true
}

func (s *Scanner) nextLengthPrefixed(buf *ring.Buffer) ([]byte, bool) {
	w := s.Config.LengthPrefixBytes
	if w <= 0 {
		w = 2
	}
	prefix := make([]byte, w)
	if buf.Peek(prefix) < w {
		return nil, false
	}
	var length int
	for _, b := range prefix {
		length = length<<8 | int(b)
	}
	if s.Config.Length > 0 && length > s.Config.Length {
		// Corrupt length: resync by discarding one byte and retrying on
		// the next call, rather than blocking the ring forever.
		buf.Discard(1)
		return nil, false
	}
	if buf.Len() < w+length {
		return nil, false
	}
	buf.Discard(w)
	rec := make([]byte, length)
	buf.Read(rec)
	return rec, true
}

func (s *Scanner) nextSeparator(buf *ring.Buffer) ([]byte, bool) {
	sep := s.Config.Separator
	if len(sep) == 0 {
		return nil, false
	}
	maxLen := s.Config.Length
	if maxLen <= 0 {
		maxLen = buf.Cap()
	}

	peek := make([]byte, buf.Len())
	n := buf.Peek(peek)
	peek = peek[:n]

	idx := indexOf(peek, sep)
	if idx < 0 {
		if len(peek) >= maxLen {
			// No separator within the length bound: drop the overlong
			// partial record so the stream can resync.
			buf.Discard(maxLen)
		}
		return nil, false
	}

	switch s.Config.Position {
	case PositionEnd:
		recLen := idx
		rec := make([]byte, recLen)
		buf.Read(rec)
		buf.Discard(len(sep))
		return rec, true
	default: // PositionBeg: separator precedes the NEXT record, not this one
		if idx == 0 {
			// Leading separator with nothing before it: consume it and
			// look for the next occurrence on a future call.
			buf.Discard(len(sep))
			return s.nextSeparator(buf)
		}
		rec := make([]byte, idx)
		buf.Read(rec)
		return rec, true
	}
}

func indexOf(haystack, needle []byte) int {
	return strings.Index(string(haystack), string(needle))
}

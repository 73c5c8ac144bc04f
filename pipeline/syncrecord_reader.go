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
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SyncRecordVariable is one variable's entry as rebuilt from a sync
// header, plus the float offset it occupies within the per-second
// record, filled in by ParseSyncHeader.
type SyncRecordVariable struct {
	Name     string
	Type     rune // 'n' continuous, 'c' counter, 't' clock, 'o' other
	Length   int
	Units    string
	LongName string
	Offset   int // absolute float index of this variable's first slot
}

// SyncRecordLayout is a reader-side rebuild of the offset table a
// SyncRecordBuilder used to lay out its records, parsed from the ASCII
// header carried on SYNC_RECORD_HEADER_ID samples (§4.9). The writer only
// ever emits 'n' and 'c' type codes, but the header grammar allows all
// four ('n','c','t','o'); a reader that rejected 't'/'o' would break on
// an older archive that happened to carry one, so every code the grammar
// defines is accepted here even though SyncRecordBuilder never emits two
// of them.
type SyncRecordLayout struct {
	Project  string
	Aircraft string
	Flight   string

	Variables []*SyncRecordVariable
	RecSize   int
}

// ParseSyncHeader parses the ASCII document SyncRecordBuilder.buildHeader
// produces (or any header following the same grammar) and rebuilds the
// (variable, time-index) -> float-offset mapping.
func ParseSyncHeader(text string) (*SyncRecordLayout, error) {
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	lay := &SyncRecordLayout{}
	var err error

	if lay.Project, err = expectKeyedLine(sc, "project"); err != nil {
		return nil, err
	}
	if lay.Aircraft, err = expectKeyedLine(sc, "aircraft"); err != nil {
		return nil, err
	}
	if lay.Flight, err = expectKeyedLine(sc, "flight"); err != nil {
		return nil, err
	}

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "variables {" {
		return nil, fmt.Errorf("pipeline: sync header: expected \"variables {\"")
	}
	byName := map[string]*SyncRecordVariable{}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "}" {
			break
		}
		v, perr := parseVariableLine(line)
		if perr != nil {
			return nil, perr
		}
		lay.Variables = append(lay.Variables, v)
		byName[v.Name] = v
	}

	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "rates {" {
		return nil, fmt.Errorf("pipeline: sync header: expected \"rates {\"")
	}
	offset := 0
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "}" {
			break
		}
		fields := strings.Fields(strings.TrimSuffix(line, ";"))
		if len(fields) < 1 {
			continue
		}
		rate, perr := strconv.ParseFloat(fields[0], 64)
		if perr != nil {
			return nil, fmt.Errorf("pipeline: sync header: bad rate %q: %w", fields[0], perr)
		}
		samplesPerSec := int(math.Ceil(rate))
		offset++ // lag slot
		for _, name := range fields[1:] {
			v, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("pipeline: sync header: rate group names unknown variable %q", name)
			}
			v.Offset = offset
			offset += v.Length * samplesPerSec
		}
	}
	lay.RecSize = offset
	return lay, nil
}

func parseVariableLine(line string) (*SyncRecordVariable, error) {
	line = strings.TrimSuffix(line, ";")
	fields, quoted, err := splitQuoted(line)
	if err != nil {
		return nil, err
	}
	if len(fields) < 3 || len(quoted) < 2 {
		return nil, fmt.Errorf("pipeline: sync header: malformed variable line %q", line)
	}
	length, err := strconv.Atoi(fields[2])
	if err != nil {
		return nil, fmt.Errorf("pipeline: sync header: bad length in %q: %w", line, err)
	}
	typeCode := []rune(fields[1])[0]
	switch typeCode {
	case 'n', 'c', 't', 'o':
	default:
		return nil, fmt.Errorf("pipeline: sync header: unknown variable type %q", fields[1])
	}
	return &SyncRecordVariable{
		Name:     fields[0],
		Type:     typeCode,
		Length:   length,
		Units:    quoted[0],
		LongName: quoted[1],
	}, nil
}

// splitQuoted splits a header line into its leading whitespace-separated
// fields and its quoted ("...") substrings, in order. It stops collecting
// bare fields once the first quote is seen, matching the fixed
// name/type/length prefix every variable line has before its quoted
// units/longname/converter fields.
func splitQuoted(line string) (fields []string, quoted []string, err error) {
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i >= len(line) {
			break
		}
		if line[i] == '"' {
			j := i + 1
			for j < len(line) && line[j] != '"' {
				j++
			}
			if j >= len(line) {
				return nil, nil, fmt.Errorf("pipeline: sync header: unterminated quote in %q", line)
			}
			quoted = append(quoted, line[i+1:j])
			i = j + 1
			continue
		}
		j := i
		for j < len(line) && line[j] != ' ' && line[j] != '"' {
			j++
		}
		fields = append(fields, line[i:j])
		i = j
	}
	return fields, quoted, nil
}

func expectKeyedLine(sc *bufio.Scanner, key string) (string, error) {
	if !sc.Scan() {
		return "", fmt.Errorf("pipeline: sync header: missing %q line", key)
	}
	line := sc.Text()
	fields := strings.Fields(line)
	if len(fields) < 1 || fields[0] != key {
		return "", fmt.Errorf("pipeline: sync header: expected %q, got %q", key, line)
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])), nil
}

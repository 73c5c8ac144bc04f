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

// Package archive implements the sample archive's on-disk framing: the
// ASCII file header and the 16-byte little-endian per-sample frame.
package archive

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Magics lists the recognized file-header banners, in the order the
// parser tries them. At least one must match the first line or the file
// is rejected as BadHeader.
var Magics = []string{
	"NIDAS (ncar.ucar.edu)\n",
	"NCAR ADS3\n",
}

// knownTags maps a recognized "<tag>:" prefix to the Header field it
// populates. site name/xml name/xml version/observation period name are
// obsolete tags (§5 supplemented features): accepted and stored, but
// never re-emitted by Write.
var knownTags = []string{
	"archive version:",
	"software version:",
	"project name:",
	"system name:",
	"config name:",
	"config version:",
	"site name:",
	"observation period name:",
	"xml name:",
	"xml version:",
}

const endHeaderLine = "end header\n"

// Header holds the parsed contents of a sample archive's file header.
type Header struct {
	Magic           string
	ArchiveVersion  string
	SoftwareVersion string
	ProjectName     string
	SystemName      string
	ConfigName      string
	ConfigVersion   string

	// Obsolete carries tag lines this implementation accepts and stores
	// but does not re-emit: site name, observation period name, xml name,
	// xml version.
	Obsolete map[string]string

	// byteLength is the exact length, in bytes, of the header as parsed
	// from disk, recorded so Write can pad a rewrite to the same length.
	byteLength int
}

// ParseError reports a malformed header with enough context to find the
// offending bytes without re-reading the file.
type ParseError struct {
	Offset  int64
	Context string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("archive: bad header at offset %d: %q", e.Offset, e.Context)
}

// BadHeader is returned when no recognized magic string matches.
var BadHeader = fmt.Errorf("archive: no recognized magic string")

type parseState int

const (
	stateStartMagic parseState = iota
	stateParseMagic
	stateParseTag
	stateParseValue
	stateDone
)

// ReadHeader parses a Header from br using the StartMagic -> ParseMagic ->
// ParseTag -> ParseValue -> Done state machine named in §4.4. Unknown tag
// lines are ignored; their bytes still count toward byteLength.
//
// br must be the same *bufio.Reader the caller keeps reading sample
// frames from afterward: ReadHeader only ever consumes exactly the
// header's own bytes via br.ReadString, so nothing br buffered ahead of
// the "end header\n" line is lost the way it would be if this function
// wrapped its own throwaway bufio.Reader around a plain io.Reader.
func ReadHeader(br *bufio.Reader) (*Header, error) {
	h := &Header{Obsolete: map[string]string{}}
	state := stateStartMagic
	var offset int64

	for state != stateDone {
		line, err := br.ReadString('\n')
		if err != nil && line == "" {
			return nil, &ParseError{Offset: offset, Context: previewContext(line)}
		}
		switch state {
		case stateStartMagic:
			matched := false
			for _, m := range Magics {
				if line == m {
					matched = true
					break
				}
			}
			if !matched {
				return nil, BadHeader
			}
			h.Magic = line
			state = stateParseMagic
		case stateParseMagic, stateParseTag, stateParseValue:
			if line == endHeaderLine {
				state = stateDone
				h.byteLength += len(line)
				offset += int64(len(line))
				continue
			}
			if !applyTagLine(h, line) {
				// Unknown tag line: ignored per §4.4, bytes still counted.
			}
			state = stateParseTag
		}
		h.byteLength += len(line)
		offset += int64(len(line))
	}
	return h, nil
}

func previewContext(s string) string {
	const n = 20
	if len(s) > n {
		s = s[:n]
	}
	return s
}

func applyTagLine(h *Header, line string) bool {
	for _, tag := range knownTags {
		if !strings.HasPrefix(line, tag) {
			continue
		}
		value := strings.TrimSpace(strings.TrimPrefix(line, tag))
		switch tag {
		case "archive version:":
			h.ArchiveVersion = value
		case "software version:":
			h.SoftwareVersion = value
		case "project name:":
			h.ProjectName = value
		case "system name:":
			h.SystemName = value
		case "config name:":
			h.ConfigName = value
		case "config version:":
			h.ConfigVersion = value
		default:
			h.Obsolete[strings.TrimSuffix(tag, ":")] = value
		}
		return true
	}
	return false
}

// Write renders h as the on-disk header, padding with one extra line of
// spaces, ending in a newline, so the total byte length matches the length h
// was originally parsed with (byteLength), allowing an in-place rewrite
// of a file whose header values changed but whose data offset must not
// move. If h was never parsed (byteLength == 0), the header is written
// at its natural length.
func (h *Header) Write(w io.Writer) (int, error) {
	var b strings.Builder
	magic := h.Magic
	if magic == "" {
		magic = Magics[0]
	}
	b.WriteString(magic)
	writeTag(&b, "archive version:", h.ArchiveVersion)
	writeTag(&b, "software version:", h.SoftwareVersion)
	writeTag(&b, "project name:", h.ProjectName)
	writeTag(&b, "system name:", h.SystemName)
	writeTag(&b, "config name:", h.ConfigName)
	writeTag(&b, "config version:", h.ConfigVersion)
	b.WriteString(endHeaderLine)

	out := b.String()
	if h.byteLength > len(out) {
		pad := h.byteLength - len(out)
		// Insert padding before the final "end header\n" line so the
		// terminator stays the literal last line, per §4.4.
		out = out[:len(out)-len(endHeaderLine)] + strings.Repeat(" ", pad-1) + "\n" + endHeaderLine
	}
	return w.Write([]byte(out))
}

func writeTag(b *strings.Builder, tag, value string) {
	if value == "" {
		return
	}
	b.WriteString(tag)
	b.WriteString(" ")
	b.WriteString(value)
	b.WriteString("\n")
}

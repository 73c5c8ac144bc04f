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

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hz.tools/nidas/ioc"
)

func TestParseOutputPlainPathDefaultsToFileWriter(t *testing.T) {
	name, ch, err := parseOutput("raw=/data/raw.dat", 3600)
	assert.NoError(t, err)
	assert.Equal(t, "raw", name)
	assert.IsType(t, &ioc.File{}, ch)
}

func TestParseOutputFileSchemeBuildsRollingFileSet(t *testing.T) {
	name, ch, err := parseOutput("raw=file:///data/raw_%Y%m%d.dat", 1800)
	assert.NoError(t, err)
	assert.Equal(t, "raw", name)
	assert.IsType(t, &ioc.FileSet{}, ch)
}

func TestParseOutputTCPScheme(t *testing.T) {
	name, ch, err := parseOutput("uplink=tcp://10.0.0.1:30000", 3600)
	assert.NoError(t, err)
	assert.Equal(t, "uplink", name)
	sock, ok := ch.(*ioc.Socket)
	assert.True(t, ok)
	assert.Equal(t, "tcp", sock.Network)
	assert.Equal(t, "10.0.0.1:30000", sock.Address)
}

func TestParseOutputUnixScheme(t *testing.T) {
	_, ch, err := parseOutput("ctl=unix:///var/run/dsm.sock", 3600)
	assert.NoError(t, err)
	sock, ok := ch.(*ioc.Socket)
	assert.True(t, ok)
	assert.Equal(t, "unix", sock.Network)
	assert.Equal(t, "/var/run/dsm.sock", sock.Address)
}

func TestParseOutputUnknownSchemeFails(t *testing.T) {
	_, _, err := parseOutput("x=ftp://example.com/path", 3600)
	assert.Error(t, err)
}

func TestParseOutputMissingEqualsFails(t *testing.T) {
	_, _, err := parseOutput("not-a-valid-spec", 3600)
	assert.Error(t, err)
}

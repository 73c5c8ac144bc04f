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

package ioc

import (
	"os"
	"strings"
	"time"
)

// File is a plain regular-file Channel, read or write depending on Flags.
type File struct {
	Path  string
	Flags int
	Mode  os.FileMode

	f *os.File
}

// NewFileReader opens path read-only.
func NewFileReader(path string) *File {
	return &File{Path: path, Flags: os.O_RDONLY}
}

// NewFileWriter opens path for writing, creating and truncating it.
func NewFileWriter(path string) *File {
	return &File{Path: path, Flags: os.O_WRONLY | os.O_CREATE | os.O_TRUNC, Mode: 0644}
}

// Open implements Channel.
func (c *File) Open() error {
	f, err := os.OpenFile(c.Path, c.Flags, c.Mode)
	if err != nil {
		return NewIOError(KindFatal, "File.Open", err)
	}
	c.f = f
	return nil
}

// Close implements Channel.
func (c *File) Close() error {
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	if err != nil {
		return NewIOError(KindFatal, "File.Close", err)
	}
	return nil
}

// Read implements Channel.
func (c *File) Read(p []byte) (int, error) {
	n, err := c.f.Read(p)
	if err != nil {
		return n, translateFileErr("File.Read", err)
	}
	return n, nil
}

// Write implements Channel.
func (c *File) Write(p []byte) (int, error) {
	n, err := c.f.Write(p)
	if err != nil {
		return n, NewIOError(KindFatal, "File.Write", err)
	}
	return n, nil
}

// RequestConnection implements Channel. A plain file is always "connected"
// once opened, so this calls back synchronously.
func (c *File) RequestConnection(requester ConnectionRequester) error {
	if err := c.Open(); err != nil {
		return err
	}
	requester.Connected(c)
	return nil
}

// ConnectionInfo implements Channel.
func (c *File) ConnectionInfo() string { return c.Path }

// Name implements Channel.
func (c *File) Name() string { return c.Path }

func translateFileErr(op string, err error) error {
	if err.Error() == "EOF" || strings.HasSuffix(err.Error(), "EOF") {
		return NewIOError(KindEOF, op, err)
	}
	return NewIOError(KindFatal, op, err)
}

// RollPolicy describes a FileSet's time-based rolling rule: a filename
// template with strftime-style fields, and the file length in seconds at
// which the writer rolls to the next file.
type RollPolicy struct {
	Template       string
	FileLengthSecs int64
}

// nextBoundary returns the smallest multiple of p.FileLengthSecs (in Unix
// seconds) strictly greater than t, the boundary the FileSet rolls at when
// sample time t crosses it, per §4.3.
func (p RollPolicy) nextBoundary(t time.Time) time.Time {
	secs := t.Unix()
	length := p.FileLengthSecs
	if length <= 0 {
		length = 24 * 3600
	}
	next := (secs/length + 1) * length
	return time.Unix(next, 0).UTC()
}

func (p RollPolicy) expand(t time.Time) string {
	return strftime(p.Template, t)
}

// strftime expands the small subset of strftime fields the original
// archive templates use: %Y %m %d %H %M %S.
func strftime(template string, t time.Time) string {
	r := strings.NewReplacer(
		"%Y", t.Format("2006"),
		"%m", t.Format("01"),
		"%d", t.Format("02"),
		"%H", t.Format("15"),
		"%M", t.Format("04"),
		"%S", t.Format("05"),
	)
	return r.Replace(template)
}

// FileSet is a write-only Channel that rolls to a new underlying File
// whenever the sample time handed to Roll crosses the next integral file
// boundary, per §4.3's time-based rolling rule. The previous file is
// flushed and closed before the new one is opened so a reader never sees
// a truncated file on disk.
type FileSet struct {
	Policy RollPolicy

	cur     *File
	curPath string
	boundary time.Time
}

// NewFileSet creates a FileSet under the given roll policy. The first
// file is opened lazily on the first Roll or Write call.
func NewFileSet(policy RollPolicy) *FileSet {
	return &FileSet{Policy: policy}
}

// Open implements Channel; it is a no-op until the first Roll picks a
// starting file.
func (fs *FileSet) Open() error { return nil }

// Close implements Channel.
func (fs *FileSet) Close() error {
	if fs.cur == nil {
		return nil
	}
	return fs.cur.Close()
}

// Read implements Channel; FileSet is write-only.
func (fs *FileSet) Read(p []byte) (int, error) {
	return 0, NewIOError(KindFatal, "FileSet.Read", nil)
}

// Roll opens a new underlying file if t has crossed the current boundary,
// atomically closing (fsync-then-close) the previous one first. It is
// called before every Write with the sample's timetag.
func (fs *FileSet) Roll(t time.Time) error {
	if fs.cur != nil && t.Before(fs.boundary) {
		return nil
	}
	if fs.cur != nil {
		if fs.cur.f != nil {
			_ = fs.cur.f.Sync()
		}
		if err := fs.cur.Close(); err != nil {
			return err
		}
	}
	path := fs.Policy.expand(t)
	f := NewFileWriter(path)
	if err := f.Open(); err != nil {
		return err
	}
	fs.cur = f
	fs.curPath = path
	fs.boundary = fs.Policy.nextBoundary(t)
	return nil
}

// Write implements Channel. Callers must call Roll with the sample's
// timetag before every Write so the boundary check stays accurate.
func (fs *FileSet) Write(p []byte) (int, error) {
	if fs.cur == nil {
		if err := fs.Roll(time.Now().UTC()); err != nil {
			return 0, err
		}
	}
	return fs.cur.Write(p)
}

// RequestConnection implements Channel.
func (fs *FileSet) RequestConnection(requester ConnectionRequester) error {
	if err := fs.Roll(time.Now().UTC()); err != nil {
		return err
	}
	requester.Connected(fs)
	return nil
}

// ConnectionInfo implements Channel.
func (fs *FileSet) ConnectionInfo() string { return fs.curPath }

// FileSize returns the current file's size in bytes, for status
// reporting, or 0 if no file is open yet.
func (fs *FileSet) FileSize() int64 {
	if fs.cur == nil || fs.cur.f == nil {
		return 0
	}
	info, err := fs.cur.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// Name implements Channel.
func (fs *FileSet) Name() string { return fs.Policy.Template }

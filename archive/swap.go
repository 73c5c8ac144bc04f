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

package archive

import "encoding/binary"

// HostIsBigEndian reports whether this process is running on a
// big-endian host, the condition under which WriteFrame's caller must
// byte-swap payload elements before writing, per §4.4.
var HostIsBigEndian = binary.NativeEndian.Uint16([]byte{0x01, 0x00}) == 0x0100

// SwapPayload byte-swaps every elemWidth-wide element of p in place. The
// archiver calls it on a copy of each payload when HostIsBigEndian is
// true; on a little-endian host it is never invoked since the wire
// format already matches host order.
func SwapPayload(p []byte, elemWidth int) {
	if elemWidth <= 1 {
		return
	}
	for off := 0; off+elemWidth <= len(p); off += elemWidth {
		for i, j := off, off+elemWidth-1; i < j; i, j = i+1, j-1 {
			p[i], p[j] = p[j], p[i]
		}
	}
}

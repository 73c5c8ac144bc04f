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

package despike

// spline computes the second-derivative table for a cubic spline through
// the given points, clamped to slope yp1 at x[0] and slope ypn at the
// last point; a slope above 0.99e30 selects a natural boundary at that
// end instead. n is implied by len(x). This is the standard
// tridiagonal spline-setup algorithm; adjustLevel's table is the only
// caller.
func spline(x, y []float64, yp1, ypn float64) []float64 {
	n := len(x)
	y2 := make([]float64, n)
	u := make([]float64, n)

	if yp1 > 0.99e30 {
		y2[0], u[0] = 0, 0
	} else {
		y2[0] = -0.5
		u[0] = (3.0 / (x[1] - x[0])) * ((y[1]-y[0])/(x[1]-x[0]) - yp1)
	}

	for i := 1; i < n-1; i++ {
		sig := (x[i] - x[i-1]) / (x[i+1] - x[i-1])
		p := sig*y2[i-1] + 2.0
		y2[i] = (sig - 1.0) / p
		u[i] = (y[i+1]-y[i])/(x[i+1]-x[i]) - (y[i]-y[i-1])/(x[i]-x[i-1])
		u[i] = (6.0*u[i]/(x[i+1]-x[i-1]) - sig*u[i-1]) / p
	}

	var qn, un float64
	if ypn <= 0.99e30 {
		qn = 0.5
		un = (3.0 / (x[n-1] - x[n-2])) * (ypn - (y[n-1]-y[n-2])/(x[n-1]-x[n-2]))
	}
	y2[n-1] = (un - qn*u[n-2]) / (qn*y2[n-2] + 1.0)

	for k := n - 2; k >= 0; k-- {
		y2[k] = y2[k]*y2[k+1] + u[k]
	}
	return y2
}

// splint evaluates the cubic spline defined by (x, y, y2) at xv.
func splint(x, y, y2 []float64, xv float64) float64 {
	n := len(x)
	klo, khi := 0, n-1
	for khi-klo > 1 {
		k := (khi + klo) >> 1
		if x[k] > xv {
			khi = k
		} else {
			klo = k
		}
	}

	h := x[khi] - x[klo]
	a := (x[khi] - xv) / h
	b := (xv - x[klo]) / h

	return a*y[klo] + b*y[khi] +
		((a*a*a-a)*y2[klo]+(b*b*b-b)*y2[khi])*(h*h)/6.0
}

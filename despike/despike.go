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

// Package despike implements the adaptive despiker (C11): an AR(1)
// forecaster that flags and replaces outliers in a per-variable scalar
// stream, with a discrimination level that adapts to the stream's
// measured autocorrelation.
package despike

import (
	"math"
)

// statisticsSize is the number of points used to bootstrap the running
// mean/variance/correlation before the forecaster starts operating.
const statisticsSize = 100

// adjustTableSize is the resolution of the correlation -> level-multiplier
// lookup table built once at init from Jorgen Hojstrup's spline points.
const adjustTableSize = 100

// lenErfcArray is the resolution of the erfc table discrLevel inverts to
// turn an outlier probability into a discrimination level in units of
// standard deviations.
const lenErfcArray = 100

var adjustTable [adjustTableSize][2]float64

func init() {
	x := []float64{0.0, 0.1, 0.5, 0.9, 0.99}
	y := []float64{1.0, 1.0, 0.89, 0.44, 0.18}
	ypn := -y[3] / (1 - x[3])
	y2 := spline(x, y, 0.0, ypn)

	a := 0.0
	for i := 0; i < adjustTableSize; i++ {
		adjustTable[i][0] = a
		adjustTable[i][1] = splint(x, y, y2, a)
		a += 1.0 / adjustTableSize
	}
}

// Despiker is an adaptive single-variable despiker, one instance per
// tracked variable. Despike returns the possibly-replaced value and
// whether this call replaced a spike.
type Despiker struct {
	Probability      float64 // outlier probability, default 1e-5
	LevelMultiplier  float64 // default 2.5
	MaxMissingFreq   float64 // default 2.0

	initLevel float64
	level     float64
	missFreq  float64
	msize     int
	npts      int

	u1    float64
	mean1 float64
	mean2 float64
	var1  float64
	var2  float64
	corr  float64
}

// NewDespiker creates a Despiker with the original's default tuning
// (outlier probability 1e-5, level multiplier 2.5, max missing frequency
// 2.0 out of the recent statistics window).
func NewDespiker() *Despiker {
	d := &Despiker{
		Probability:     1e-5,
		LevelMultiplier: 2.5,
		MaxMissingFreq:  2.0,
	}
	d.level = discrLevel(d.Probability) * d.LevelMultiplier
	d.initLevel = d.level
	return d
}

// Reset reverts the Despiker to its just-constructed state, so the next
// statisticsSize values bootstrap a fresh model. Despike never calls it:
// the model is reset only when a caller calls Reset.
func (d *Despiker) Reset() {
	d.npts = 0
	d.level = d.initLevel
	d.missFreq = 0
}

// Despike runs one value through the forecaster. u may be NaN to signal a
// missing point. The returned bool is true exactly when u was replaced
// with the AR(1) forecast.
func (d *Despiker) Despike(u float64) (float64, bool) {
	if d.npts < statisticsSize {
		if d.npts == 0 {
			d.initStatistics(u)
		} else {
			d.incrementStatistics(u)
		}
		return u, false
	}

	if d.missFreq > d.MaxMissingFreq {
		return u, false
	}

	uf := d.forecast()

	if math.IsNaN(u) || math.Abs(u-uf)/math.Sqrt(d.var2) > d.level {
		return uf, true
	}
	d.updateStatistics(u)
	return u, false
}

func (d *Despiker) forecast() float64 {
	// AR(1) one-step forecast: mean2 + corr*(var2/var1)*(u1 - mean1),
	// simplified using the normalized correlation already carried in
	// d.corr once statistics have been finalized.
	if d.var1 == 0 {
		return d.mean2
	}
	beta := d.corr * math.Sqrt(d.var2/d.var1)
	return d.mean2 + beta*(d.u1-d.mean1)
}

func (d *Despiker) initStatistics(u float64) {
	if math.IsNaN(u) {
		d.missFreq = 0.1
		return
	}
	d.missFreq = 0
	d.mean2 = u
	d.mean1 = u
	d.var2 = u * u
	d.var1 = u * u
	d.corr = u * u
	d.u1 = u
	d.npts++
}

func (d *Despiker) incrementStatistics(u float64) {
	if math.IsNaN(u) {
		d.missFreq = d.missFreq*0.9 + 0.1
		return
	}
	d.missFreq *= 0.9

	d.corr += u * d.u1
	d.mean2 += u
	d.mean1 += d.u1
	d.var2 += u * u
	d.var1 += d.u1 * d.u1
	d.u1 = u

	d.npts++
	if d.npts == statisticsSize {
		n := float64(d.npts)
		d.mean2 /= n
		d.mean1 /= n
		d.var2 = d.var2/n - d.mean2*d.mean2
		d.var1 = d.var1/n - d.mean1*d.mean1
		if d.var1 < 0 {
			d.var1 = 0
		}
		if d.var2 < 0 {
			d.var2 = 0
		}
		d.corr = (d.corr/n - d.mean2*d.mean1) / math.Sqrt(d.var1*d.var2)
		d.corr = clampCorr(d.corr)

		d.msize = statisticsSize
		d.level = d.initLevel * adjustLevel(math.Abs(d.corr))
	}
}

func (d *Despiker) updateStatistics(u float64) {
	if math.IsNaN(u) {
		d.missFreq = d.missFreq*0.9 + 0.1
		return
	}
	d.missFreq *= 0.9

	d.corr *= math.Sqrt(d.var1 * d.var2)

	msize := float64(d.msize)
	mx := (msize - 1) / msize
	d.mean1 = d.mean2
	d.mean2 = d.mean2*mx + u/msize
	d.corr = d.corr*mx + (u-d.mean2)*(d.u1-d.mean1)/msize
	d.var1 = d.var2
	d.var2 = d.var2*mx + (u-d.mean2)*(u-d.mean2)/msize
	if d.var2 < 0 {
		d.var2 = 0
	}
	v1v2 := d.var1 * d.var2
	if v1v2 == 0 {
		d.corr = 1
	} else {
		d.corr /= math.Sqrt(v1v2)
	}
	d.corr = clampCorr(d.corr)

	if math.Abs(d.corr) < 0.1 {
		d.msize = 100
	} else {
		size := int(math.Round(-230.2585 / math.Log(math.Abs(d.corr))))
		if size > d.npts {
			size = d.npts
		}
		d.msize = size
	}

	if d.npts%25 == 0 {
		d.level = d.initLevel * adjustLevel(math.Abs(d.corr))
	}
	d.npts++
	d.u1 = u
}

func clampCorr(c float64) float64 {
	if c > 0.99 {
		return 0.99
	}
	if c < -0.99 {
		return -0.99
	}
	if math.Abs(c) < 1e-10 && c != 0 {
		return 1e-10 * sign(c)
	}
	return c
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// adjustLevel looks up the level-multiplier adjustment for a given
// absolute correlation, linearly interpolating the spline-derived table
// built at package init.
func adjustLevel(corr float64) float64 {
	maxIndex := adjustTableSize - 2
	incr := adjustTable[1][0] - adjustTable[0][0]
	idx := int(math.Trunc((corr - adjustTable[0][0]) / incr))
	if idx < 0 {
		idx = 0
	} else if idx > maxIndex {
		idx = maxIndex
	}
	return adjustTable[idx][1] + (corr-adjustTable[idx][0])*
		(adjustTable[idx+1][1]-adjustTable[idx][1])/incr
}

// discrLevel inverts erfc to find the discrimination level, in standard
// deviations, whose exceedance probability is prob, by interpolating a
// table of erfc(a/sqrt(2)) since erfc is monotonically decreasing.
func discrLevel(prob float64) float64 {
	var ea [lenErfcArray][2]float64
	a := 0.0
	for i := 0; i < lenErfcArray; i++ {
		ea[i][0] = a
		ea[i][1] = math.Erfc(a / math.Sqrt2)
		a += 0.05
	}

	i1, i2 := 0, lenErfcArray-1
	for i2 > i1+1 {
		i := (i1 + i2) / 2
		if prob < ea[i][1] {
			i1 = i
		} else {
			i2 = i
		}
	}
	return ea[i1][0] + (ea[i2][0]-ea[i1][0])/(ea[i2][1]-ea[i1][1])*(prob-ea[i1][1])
}

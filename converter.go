package nidas

import "math"

// PhysicalType classifies what a Variable's engineering value represents,
// mirroring NIDAS's small fixed vocabulary of sample-type hints used by
// the sync-record and archive consumers to decide how to treat a value
// (e.g. a COUNTER resets differently from a CONTINUOUS quantity).
type PhysicalType int

const (
	Continuous PhysicalType = iota
	Counter
	Clock
	Other
	Weight
)

// Converter maps a raw engineering-unit candidate to its final value given
// the sample's timetag. Converters are pure functions: NearestResampler and
// the sync-record builder may call one many times for the same raw value
// without side effects.
type Converter interface {
	Convert(tt Time, raw float64) float64
}

// ConverterFunc adapts a plain function to the Converter interface.
type ConverterFunc func(tt Time, raw float64) float64

// Convert calls f.
func (f ConverterFunc) Convert(tt Time, raw float64) float64 { return f(tt, raw) }

// IdentityConverter returns raw unchanged.
var IdentityConverter Converter = ConverterFunc(func(_ Time, raw float64) float64 { return raw })

// LinearConverter applies engineering = raw*slope + intercept, the most
// common NIDAS calibration form.
type LinearConverter struct {
	Slope     float64
	Intercept float64
}

// Convert implements Converter.
func (c *LinearConverter) Convert(_ Time, raw float64) float64 {
	return raw*c.Slope + c.Intercept
}

// PolyConverter applies a polynomial in raw, coefficients low-to-high
// order, i.e. Coefficients[0] + Coefficients[1]*raw + Coefficients[2]*raw^2...
type PolyConverter struct {
	Coefficients []float64
}

// Convert implements Converter.
func (c *PolyConverter) Convert(_ Time, raw float64) float64 {
	var v, p float64
	p = 1
	for _, coef := range c.Coefficients {
		v += coef * p
		p *= raw
	}
	return v
}

// TablePoint is one (raw, engineering) pair in a TableConverter.
type TablePoint struct {
	Raw   float64
	Value float64
}

// TableConverter linearly interpolates between ordered calibration points,
// the table-driven form named in §4.2. Points must be sorted by Raw
// ascending. Values outside the table's range clamp to the nearest edge.
type TableConverter struct {
	Points []TablePoint
}

// Convert implements Converter.
func (c *TableConverter) Convert(_ Time, raw float64) float64 {
	pts := c.Points
	if len(pts) == 0 {
		return math.NaN()
	}
	if raw <= pts[0].Raw {
		return pts[0].Value
	}
	if raw >= pts[len(pts)-1].Raw {
		return pts[len(pts)-1].Value
	}
	for i := 1; i < len(pts); i++ {
		if raw <= pts[i].Raw {
			lo, hi := pts[i-1], pts[i]
			frac := (raw - lo.Raw) / (hi.Raw - lo.Raw)
			return lo.Value + frac*(hi.Value-lo.Value)
		}
	}
	return pts[len(pts)-1].Value
}

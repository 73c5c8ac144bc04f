package nidas

import "math"

// Variable describes one named scalar or fixed-length vector quantity
// within a SampleTag's payload, per §4.2.
type Variable struct {
	Name      string
	Units     string
	LongName  string
	Physical  PhysicalType
	Length    int // number of scalar values, >= 1
	StationID int

	Converter Converter

	HasMissing bool
	Missing    float64
	HasMin     bool
	Min        float64
	HasMax     bool
	Max        float64
}

// NewVariable constructs a length-1 Variable with the identity converter,
// the common case for a plain engineering-unit channel.
func NewVariable(name, units string) *Variable {
	return &Variable{
		Name:      name,
		Units:     units,
		Length:    1,
		Converter: IdentityConverter,
	}
}

// nanFor returns the type-appropriate NaN sentinel. Every wire Type here
// has an IEEE-754 representation or an integer fallback; NIDAS itself only
// ever stores missing-value sentinels in float-valued engineering samples,
// so float64 NaN is the only sentinel this needs to produce.
func nanFor() float64 {
	return math.NaN()
}

// Apply runs the Variable's missing/range check and converter against one
// raw candidate value, returning the NaN sentinel when raw is the declared
// missing value or falls outside [Min, Max], per §4.2's converter contract.
func (v *Variable) Apply(tt Time, raw float64) float64 {
	if v.HasMissing && raw == v.Missing {
		return nanFor()
	}
	if v.HasMin && raw < v.Min {
		return nanFor()
	}
	if v.HasMax && raw > v.Max {
		return nanFor()
	}
	conv := v.Converter
	if conv == nil {
		conv = IdentityConverter
	}
	return conv.Convert(tt, raw)
}

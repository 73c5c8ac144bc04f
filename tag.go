package nidas

import "strconv"

// SampleTag is the addressable schema for one class of sample: a stable
// id, a rate in Hz (zero means aperiodic), a processed/raw flag, and an
// ordered list of Variables whose concatenated lengths give the sample's
// per-scan payload layout (§4.2).
//
// SampleTag and its Variables are owned by the sensor that declares them;
// once wired to a SampleSource (AddVariable called after that) returns
// InvalidState, matching NIDAS's own refusal to let a schema change shape
// under an already-running source.
type SampleTag struct {
	id        ID
	rateHz    float64
	processed bool
	variables []*Variable
	wired     bool
}

// NewSampleTag constructs an unwired SampleTag.
func NewSampleTag(id ID, rateHz float64, processed bool) *SampleTag {
	return &SampleTag{id: id, rateHz: rateHz, processed: processed}
}

// ID returns the tag's sample id.
func (t *SampleTag) ID() ID { return t.id }

// Rate returns the tag's nominal sample rate in Hz; zero means aperiodic.
func (t *SampleTag) Rate() float64 { return t.rateHz }

// IsProcessed reports whether samples under this tag carry engineering
// values (true) or raw sensor bytes (false).
func (t *SampleTag) IsProcessed() bool { return t.processed }

// Variables returns the tag's variables in declaration order. The slice
// must not be mutated by the caller.
func (t *SampleTag) Variables() []*Variable { return t.variables }

// AddVariable appends v to the tag's variable list. It fails with
// InvalidState once the tag has been wired to a source (see Wire).
func (t *SampleTag) AddVariable(v *Variable) error {
	if t.wired {
		return NewError(KindInvalidState, "SampleTag.AddVariable", ErrInvalidState).
			WithContext(t.id.String())
	}
	if v.Length < 1 {
		v.Length = 1
	}
	t.variables = append(t.variables, v)
	return nil
}

// Wire marks the tag as bound to a source, freezing its variable list.
// Called once by SampleSource.AddSampleTag.
func (t *SampleTag) Wire() {
	t.wired = true
}

// DataIndexOf returns the scan-relative element offset of v within the
// tag's payload: the sum of the lengths of every variable declared before
// it. It returns -1 if v is not one of the tag's variables.
func (t *SampleTag) DataIndexOf(v *Variable) int {
	idx := 0
	for _, cand := range t.variables {
		if cand == v {
			return idx
		}
		idx += cand.Length
	}
	return -1
}

// ScanLength returns the total number of scalar elements in one scan of
// this tag's payload, i.e. the sum of every variable's Length.
func (t *SampleTag) ScanLength() int {
	n := 0
	for _, v := range t.variables {
		n += v.Length
	}
	return n
}

// String renders the id in "dsmid,shortid" form for logging and errors.
func (id ID) String() string {
	return strconv.Itoa(int(id.DSMID())) + "," + strconv.Itoa(int(id.ShortID()))
}

package nidas

import (
	"fmt"
	"sync/atomic"
)

// Type identifies how a Sample's payload bytes are to be interpreted, one
// of the seven scalar wire types named in §3 of the design.
type Type uint8

const (
	TypeChar Type = iota
	TypeUint16
	TypeInt16
	TypeUint32
	TypeInt32
	TypeFloat32
	TypeFloat64
)

// Size returns the width, in bytes, of a single element of this Type.
func (t Type) Size() int {
	switch t {
	case TypeChar:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case TypeChar:
		return "char"
	case TypeUint16:
		return "uint16"
	case TypeInt16:
		return "int16"
	case TypeUint32:
		return "uint32"
	case TypeInt32:
		return "int32"
	case TypeFloat32:
		return "float32"
	case TypeFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// Time is microseconds since the Unix epoch, the sample pipeline's sole
// notion of time. It is intentionally not time.Time: the pipeline moves
// hundreds of thousands of these per second and a plain int64 avoids the
// monotonic-reading baggage that comes with time.Time equality semantics.
type Time int64

// Sample is a reference-counted, variable-length, time-tagged record. A
// Sample is created with one implicit reference (held by its creator);
// every client that retains it past a SampleClient.Receive call must take
// another with AddReference, and release it with FreeReference. When the
// last reference is released, the Sample's storage is returned to the
// SamplePool bucket it was allocated from.
//
// The payload is never mutated after the Sample's first distribution
// (§3 invariant); callers that need to mutate should build with Pool.Get,
// fill it, then hand it to SampleSource.Distribute exactly once.
type Sample struct {
	pool   *SamplePool
	time   Time
	id     ID
	typ    Type
	cap    int // allocated capacity, in elements, for pool bucket recycling
	n      int // length in use, in elements
	data   []byte
	refs   int32
}

// Time returns the sample's timetag.
func (s *Sample) Time() Time { return s.time }

// SetTime sets the sample's timetag.
func (s *Sample) SetTime(t Time) { s.time = t }

// ID returns the sample's id.
func (s *Sample) ID() ID { return s.id }

// SetID sets the sample's id.
func (s *Sample) SetID(id ID) { s.id = id }

// Type returns the sample's element type.
func (s *Sample) Type() Type { return s.typ }

// Len returns the number of elements (not bytes) currently in use.
func (s *Sample) Len() int { return s.n }

// ByteLength returns the payload length in bytes: Len() * Type().Size().
func (s *Sample) ByteLength() int { return s.n * s.typ.Size() }

// Bytes returns the payload as a byte slice of length ByteLength(). The
// slice aliases the Sample's storage and must not be retained past the
// Sample's last reference.
func (s *Sample) Bytes() []byte { return s.data[:s.ByteLength()] }

// SetBytes copies src into the payload, setting Len() to
// len(src)/Type().Size(). src's length must be a multiple of the element
// width.
func (s *Sample) SetBytes(src []byte) error {
	width := s.typ.Size()
	if width == 0 || len(src)%width != 0 {
		return NewError(KindInvalidParameter, "Sample.SetBytes", nil).
			WithContext(fmt.Sprintf("length %d not a multiple of width %d", len(src), width))
	}
	if len(src) > len(s.data) {
		return NewError(KindResourceExhausted, "Sample.SetBytes", nil).
			WithContext("payload exceeds allocated capacity")
	}
	copy(s.data, src)
	s.n = len(src) / width
	return nil
}

// Float64 returns the value at element index i interpreted per Type(),
// widened to float64. This is the read path the resampler and sync-record
// builder use; it is not meant for hot per-byte scanning.
func (s *Sample) Float64(i int) (float64, error) {
	width := s.typ.Size()
	off := i * width
	if i < 0 || off+width > s.ByteLength() {
		return 0, fmt.Errorf("nidas: Sample.Float64: index %d out of range", i)
	}
	return decodeFloat64(s.typ, s.data[off:off+width]), nil
}

// AddReference increments the Sample's reference count. Every holder that
// outlives the call that handed it the Sample must call this before
// returning from Receive.
func (s *Sample) AddReference() {
	atomic.AddInt32(&s.refs, 1)
}

// FreeReference decrements the Sample's reference count. When the count
// reaches zero the Sample is returned to its owning SamplePool's bucket.
// It is a programming error to call this more times than AddReference
// plus the implicit creation reference; doing so is reported rather than
// silently corrupting the pool.
func (s *Sample) FreeReference() error {
	n := atomic.AddInt32(&s.refs, -1)
	if n < 0 {
		atomic.AddInt32(&s.refs, 1) // undo, leave the count sane
		return ErrRefcountUnderflow
	}
	if n == 0 && s.pool != nil {
		s.pool.put(s)
	}
	return nil
}

// RefCount returns the current reference count, chiefly for tests that
// check reference conservation (§8 property 1).
func (s *Sample) RefCount() int32 {
	return atomic.LoadInt32(&s.refs)
}

func decodeFloat64(t Type, b []byte) float64 {
	switch t {
	case TypeChar:
		return float64(int8(b[0]))
	case TypeUint16:
		return float64(uint16(b[0]) | uint16(b[1])<<8)
	case TypeInt16:
		return float64(int16(uint16(b[0]) | uint16(b[1])<<8))
	case TypeUint32:
		return float64(leUint32(b))
	case TypeInt32:
		return float64(int32(leUint32(b)))
	case TypeFloat32:
		return float64(leFloat32(b))
	case TypeFloat64:
		return leFloat64(b)
	default:
		return 0
	}
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

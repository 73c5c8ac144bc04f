package nidas

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the closed error taxonomy used throughout the
// sample pipeline (see §7 of the design). Every package in this module
// reports failures through one of these kinds so that callers can apply
// the propagation rules uniformly: Eof ends a read loop quietly, Temporary
// and ConnectionClosed trigger reconnect/backoff, ChecksumMismatch and
// ParseSample are counted and logged at decreasing frequency, and
// InvalidParameter/InvalidState/Fatal/ResourceExhausted all abort.
type ErrorKind int

const (
	// KindEOF is expected and ends a read loop without being a pipeline
	// failure.
	KindEOF ErrorKind = iota
	KindInterrupted
	KindTemporary
	KindConnectionClosed
	KindFatal
	KindParseHeader
	KindParseSample
	KindParseConfig
	KindInvalidParameter
	KindInvalidState
	KindResourceExhausted
	KindTimeout
	KindChecksumMismatch
)

func (k ErrorKind) String() string {
	switch k {
	case KindEOF:
		return "eof"
	case KindInterrupted:
		return "interrupted"
	case KindTemporary:
		return "temporary"
	case KindConnectionClosed:
		return "connection-closed"
	case KindFatal:
		return "fatal"
	case KindParseHeader:
		return "parse-header"
	case KindParseSample:
		return "parse-sample"
	case KindParseConfig:
		return "parse-config"
	case KindInvalidParameter:
		return "invalid-parameter"
	case KindInvalidState:
		return "invalid-state"
	case KindResourceExhausted:
		return "resource-exhausted"
	case KindTimeout:
		return "timeout"
	case KindChecksumMismatch:
		return "checksum-mismatch"
	default:
		return "unknown"
	}
}

// Error is the concrete error type produced across the pipeline. It
// carries a Kind from the closed taxonomy plus free-form Context (a
// component name, byte offset, or similar) so operators can triage
// without re-deriving it from a bare message.
type Error struct {
	Kind    ErrorKind
	Op      string
	Context string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Context != "" {
			return fmt.Sprintf("nidas: %s: %s (%s): %v", e.Op, e.Kind, e.Context, e.Err)
		}
		return fmt.Sprintf("nidas: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	if e.Context != "" {
		return fmt.Sprintf("nidas: %s: %s (%s)", e.Op, e.Kind, e.Context)
	}
	return fmt.Sprintf("nidas: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error with the given kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithContext attaches free-form context to an Error and returns it,
// for chaining at the call site: `return nidas.NewError(...).WithContext(...)`.
func (e *Error) WithContext(ctx string) *Error {
	e.Context = ctx
	return e
}

// IsEOF reports whether err is (or wraps) an Eof-kind Error.
func IsEOF(err error) bool {
	return kindIs(err, KindEOF)
}

// IsFatal reports whether err is (or wraps) a Fatal-kind Error.
func IsFatal(err error) bool {
	return kindIs(err, KindFatal)
}

func kindIs(err error, kind ErrorKind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

var (
	// ErrResourceExhausted is returned by the SamplePool in the
	// (currently unreachable in practice) case where even a fresh
	// allocation cannot be satisfied.
	ErrResourceExhausted = fmt.Errorf("nidas: resource exhausted")

	// ErrInvalidState is returned when a SampleTag is mutated after it
	// has been wired to a source.
	ErrInvalidState = fmt.Errorf("nidas: invalid state")

	// ErrRefcountUnderflow would indicate a FreeReference call beyond
	// the number of references taken; this is a programming error in a
	// caller and is never expected in a correct pipeline.
	ErrRefcountUnderflow = fmt.Errorf("nidas: sample reference count underflow")
)

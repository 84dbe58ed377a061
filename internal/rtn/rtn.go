// Package rtn defines the error taxonomy shared by every public
// operation in wavespeck.
//
// The source codec this package is modeled on returns a single result
// enum (RTNType) from every call instead of throwing. Go already has
// a result type -- error -- so each enum variant becomes a Code and a
// nil error stands in for the Good case. Callers that need to branch
// on the taxonomy (the chunked driver deciding whether a truncated
// decode is acceptable, tests asserting a specific failure mode) use
// CodeOf.
package rtn

import (
	"errors"
	"fmt"
)

// Code classifies the outcome of a wavespeck operation.
type Code int

const (
	// Good indicates success. It is never wrapped in an error value;
	// a nil error is the Good case.
	Good Code = iota
	// InvalidParam covers out-of-range bpp/psnr/pwe, empty dims, or
	// setting a quality target before dims are known.
	InvalidParam
	// WrongDims indicates a buffer's length does not match product(dims).
	WrongDims
	// BitstreamWrongLen indicates a declared length exceeds the buffer,
	// or trailing bytes remain after a declared stream's end.
	BitstreamWrongLen
	// VersionMismatch indicates the header version byte disagrees with
	// the build constant.
	VersionMismatch
	// SliceVolumeMismatch indicates a 2-D decoder was fed a 3-D stream
	// or vice versa.
	SliceVolumeMismatch
	// ZSTDMismatch indicates the zstd-applied flag disagrees between
	// what the stream declares and what the decoder was told to expect.
	ZSTDMismatch
	// ZSTDError wraps a failure from the zstd layer itself.
	ZSTDError
	// BitstreamExhausted indicates decoding ran out of bits mid-symbol.
	// This is recoverable: the reconstruction produced so far is a
	// valid prefix decode, and callers doing progressive decoding
	// should treat it as Good. See Code.Recoverable.
	BitstreamExhausted
	// EmptyStream indicates a chunk produced zero bytes of output.
	EmptyStream
	// QzLevelTooBig is retained from the legacy fixed-quantization-level
	// mode for API compatibility; see SPEC_FULL.md open question #3.
	QzLevelTooBig
	// InvalidHeader indicates a bad magic value or an impossible
	// max_coeff_bit in a stream header.
	InvalidHeader
	// Error is an unclassified internal invariant violation.
	Error
)

func (c Code) String() string {
	switch c {
	case Good:
		return "Good"
	case InvalidParam:
		return "InvalidParam"
	case WrongDims:
		return "WrongDims"
	case BitstreamWrongLen:
		return "BitstreamWrongLen"
	case VersionMismatch:
		return "VersionMismatch"
	case SliceVolumeMismatch:
		return "SliceVolumeMismatch"
	case ZSTDMismatch:
		return "ZSTDMismatch"
	case ZSTDError:
		return "ZSTDError"
	case BitstreamExhausted:
		return "BitstreamExhausted"
	case EmptyStream:
		return "EmptyStream"
	case QzLevelTooBig:
		return "QzLevelTooBig"
	case InvalidHeader:
		return "InvalidHeader"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Recoverable reports whether c represents a condition that a
// progressive decode should treat as a clean, valid-prefix stop
// rather than a failure (spec §7 propagation policy).
func (c Code) Recoverable() bool {
	return c == BitstreamExhausted
}

// Err is the error type produced by wavespeck operations. It carries
// a Code and a human-readable reason.
type Err struct {
	Code   Code
	Reason string
}

func (e *Err) Error() string {
	if e.Reason == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// New creates an error with the given code and a formatted reason.
func New(code Code, format string, args ...any) error {
	return &Err{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// CodeOf recovers the Code carried by err. A nil error maps to Good;
// an error that did not originate in this package maps to Error.
func CodeOf(err error) Code {
	if err == nil {
		return Good
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Code
	}
	return Error
}

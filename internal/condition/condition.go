// Package condition implements the pre-DWT conditioning stage (spec
// §4.C): constant-field detection and mean subtraction, recorded in a
// fixed-size header so the decoder can reverse them exactly.
package condition

import (
	"math"

	"github.com/mrjoshuak/wavespeck/internal/rtn"
)

// HeaderSize is the on-wire size of Header in bytes (spec §3).
const HeaderSize = 17

const (
	flagConstant       = 1 << 0
	flagMeanSubtracted = 1 << 1
)

// numStrides is the stride count used for the partial-sum mean
// computation (spec §4.C step 2), adjusted down to a divisor of len.
const numStrides = 2048

// Header is the 17-byte conditioner record: 1 flags byte, 8 bytes of
// payload (constant value or subtracted mean), 8 reserved bytes.
type Header struct {
	Flags   uint8
	Payload float64
}

// IsConstant reports whether the field was detected constant.
func (h Header) IsConstant() bool {
	return h.Flags&flagConstant != 0
}

// MeanSubtracted reports whether a mean was subtracted.
func (h Header) MeanSubtracted() bool {
	return h.Flags&flagMeanSubtracted != 0
}

// Encode packs h into its 17-byte wire form.
func (h Header) Encode() [HeaderSize]byte {
	var out [HeaderSize]byte
	out[0] = h.Flags
	bits := math.Float64bits(h.Payload)
	for i := 0; i < 8; i++ {
		out[1+i] = byte(bits >> (8 * i))
	}
	return out
}

// DecodeHeader unpacks a 17-byte wire record.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, rtn.New(rtn.BitstreamWrongLen, "conditioner header needs %d bytes, got %d", HeaderSize, len(b))
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(b[1+i]) << (8 * i)
	}
	return Header{Flags: b[0], Payload: math.Float64frombits(bits)}, nil
}

// TestConstant is the fast pre-check: if every sample compares equal,
// it returns a ready-to-use constant-field header.
func TestConstant(buf []float64) (bool, Header) {
	if len(buf) == 0 {
		return false, Header{}
	}
	lo, hi := buf[0], buf[0]
	for _, v := range buf[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo != hi {
		return false, Header{}
	}
	return true, Header{Flags: flagConstant, Payload: lo}
}

// Condition applies the conditioner's decisions to buf in place and
// returns the header recording them. n is the sample count; it must
// equal len(buf) and be nonzero.
func Condition(buf []float64, n int) (Header, error) {
	if n == 0 {
		return Header{}, rtn.New(rtn.InvalidParam, "dims must be nonempty")
	}

	if constant, hdr := TestConstant(buf); constant {
		return hdr, nil
	}

	mean := stridedMean(buf, n)
	for i := range buf {
		buf[i] -= mean
	}
	return Header{Flags: flagMeanSubtracted, Payload: mean}, nil
}

// InverseCondition reverses every transformation Condition applied.
func InverseCondition(buf []float64, hdr Header) {
	if hdr.IsConstant() {
		for i := range buf {
			buf[i] = hdr.Payload
		}
		return
	}
	if hdr.MeanSubtracted() {
		mean := hdr.Payload
		for i := range buf {
			buf[i] += mean
		}
	}
}

// stridedMean computes the mean of buf using num_strides partial sums
// (adjusted down to a divisor of n), which keeps the accumulation
// error bounded compared to one long linear sum over large volumes.
func stridedMean(buf []float64, n int) float64 {
	strides := numStrides
	if strides > n {
		strides = n
	}
	for strides > 1 && n%strides != 0 {
		strides--
	}

	chunk := n / strides
	partial := make([]float64, strides)
	for s := 0; s < strides; s++ {
		var sum float64
		base := s * chunk
		for i := 0; i < chunk; i++ {
			sum += buf[base+i]
		}
		partial[s] = sum
	}
	var total float64
	for _, p := range partial {
		total += p
	}
	return total / float64(n)
}

// Package sperr implements the outlier corrector from spec §4.G: a
// sparse, 1-D variant of the same bit-plane set-partitioning idea as
// internal/speck, run over a sparse (location, error) list instead of
// a dense wavelet-coefficient buffer. It exists to guarantee a
// point-wise error bound that SPECK's embedded truncation alone
// cannot promise.
//
// Because the index space here is flat (no subband pyramid), there is
// no Type-I residual node: every set is a plain [lo,hi) interval over
// location space, binary-split the same way internal/speck splits a
// single axis near an odd length.
package sperr

import (
	"math"
	"sort"

	"github.com/mrjoshuak/wavespeck/internal/bio"
	"github.com/mrjoshuak/wavespeck/internal/rtn"
)

// HeaderSize is the on-wire size of Header in bytes (spec §3).
const HeaderSize = 20

// Header is the 20-byte SPERR stream header.
type Header struct {
	TotalLen    uint64
	Tolerance   float64
	NumOutliers uint32
}

// Encode packs h into its 20-byte wire form.
func (h Header) Encode() [HeaderSize]byte {
	var out [HeaderSize]byte
	putU64(out[0:8], h.TotalLen)
	putU64(out[8:16], math.Float64bits(h.Tolerance))
	putU32(out[16:20], h.NumOutliers)
	return out
}

// DecodeHeader unpacks a 20-byte wire record.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, rtn.New(rtn.BitstreamWrongLen, "sperr header needs %d bytes, got %d", HeaderSize, len(b))
	}
	return Header{
		TotalLen:    getU64(b[0:8]),
		Tolerance:   math.Float64frombits(getU64(b[8:16])),
		NumOutliers: getU32(b[16:20]),
	}, nil
}

func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func getU32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v |= uint32(b[i]) << (8 * i)
	}
	return v
}
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// Outlier is one (location, error) correction record.
type Outlier struct {
	Location uint64
	Error    float64
}

type coder struct {
	sorted []Outlier
	byLoc  map[uint64]float64

	lis [][2]uint64
	lsp []uint64

	signif map[uint64]bool
	sign   map[uint64]bool

	// decode-only reconstruction state.
	value map[uint64]float64
	lastN map[uint64]int
}

func newCoder(outliers []Outlier) *coder {
	sorted := append([]Outlier(nil), outliers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Location < sorted[j].Location })
	byLoc := make(map[uint64]float64, len(sorted))
	for _, o := range sorted {
		byLoc[o.Location] = o.Error
	}
	return &coder{
		sorted: sorted,
		byLoc:  byLoc,
		signif: make(map[uint64]bool),
		sign:   make(map[uint64]bool),
	}
}

func (c *coder) maxAbsRegion(lo, hi uint64) float64 {
	i := sort.Search(len(c.sorted), func(i int) bool { return c.sorted[i].Location >= lo })
	var m float64
	for ; i < len(c.sorted) && c.sorted[i].Location < hi; i++ {
		if a := math.Abs(c.sorted[i].Error); a > m {
			m = a
		}
	}
	return m
}

func mid(lo, hi uint64) uint64 {
	return lo + (hi-lo+1)/2
}

// --- encode ---

func (c *coder) refinementPassEncode(out *bio.Buffer, n int, frozen int) {
	scale := math.Ldexp(1, n)
	for _, loc := range c.lsp[:frozen] {
		bit := int64(math.Floor(math.Abs(c.byLoc[loc])/scale)) & 1
		out.PutBit(bit != 0)
	}
}

func (c *coder) sortingPassEncode(out *bio.Buffer, n int) {
	cur := c.lis
	var newLis [][2]uint64
	for _, iv := range cur {
		c.sortEntryEncode(out, iv[0], iv[1], n, &newLis)
	}
	c.lis = newLis
}

func (c *coder) sortEntryEncode(out *bio.Buffer, lo, hi uint64, n int, newLis *[][2]uint64) {
	threshold := math.Ldexp(1, n)
	sig := c.maxAbsRegion(lo, hi) >= threshold
	out.PutBit(sig)
	if !sig {
		*newLis = append(*newLis, [2]uint64{lo, hi})
		return
	}
	if hi-lo == 1 {
		val := c.byLoc[lo]
		neg := val < 0
		out.PutBit(neg)
		c.signif[lo] = true
		c.sign[lo] = neg
		c.lsp = append(c.lsp, lo)
		return
	}
	m := mid(lo, hi)
	c.sortEntryEncode(out, lo, m, n, newLis)
	c.sortEntryEncode(out, m, hi, n, newLis)
}

// Encode produces a complete SPERR stream correcting totalLen
// positions to within tolerance, given the sparse list of outliers
// that exceed it.
func Encode(outliers []Outlier, totalLen uint64, tolerance float64) ([]byte, error) {
	if totalLen == 0 {
		return nil, rtn.New(rtn.InvalidParam, "sperr: totalLen must be nonzero")
	}
	if tolerance <= 0 {
		return nil, rtn.New(rtn.InvalidParam, "sperr: tolerance must be positive")
	}

	maxAbs := 0.0
	for _, o := range outliers {
		if a := math.Abs(o.Error); a > maxAbs {
			maxAbs = a
		}
	}
	maxBit := 0
	if maxAbs > 0 {
		maxBit = int(math.Floor(math.Log2(maxAbs)))
	}

	out := bio.New()
	if len(outliers) > 0 {
		// The starting bit-plane is not derivable from the header alone
		// (the 20-byte layout has no room for it), so it is written as
		// the first 32 bits of the payload itself.
		out.PutBits(uint64(uint32(int32(maxBit))), 32)

		c := newCoder(outliers)
		c.lis = [][2]uint64{{0, totalLen}}
		frozen := 0
		// Code down to the largest threshold that is <= tolerance, so every
		// outlier (|error| >= tolerance) becomes significant and is refined
		// to within that threshold.
		for n := maxBit; math.Ldexp(1, n+1) > tolerance; n-- {
			c.refinementPassEncode(out, n, frozen)
			c.sortingPassEncode(out, n)
			frozen = len(c.lsp)
		}
	}
	out.Flush()
	payload := out.Bytes()

	hdr := Header{TotalLen: totalLen, Tolerance: tolerance, NumOutliers: uint32(len(outliers))}
	wire := hdr.Encode()
	full := make([]byte, 0, HeaderSize+len(payload))
	full = append(full, wire[:]...)
	full = append(full, payload...)
	return full, nil
}

// --- decode ---

func (c *coder) refinementPassDecode(in *bio.Buffer, n int, frozen int) {
	scale := math.Ldexp(1, n)
	for _, loc := range c.lsp[:frozen] {
		if in.GetBit() {
			c.value[loc] += scale
		}
		c.lastN[loc] = n
	}
}

func (c *coder) sortingPassDecode(in *bio.Buffer, n int) {
	cur := c.lis
	var newLis [][2]uint64
	for _, iv := range cur {
		c.sortEntryDecode(in, iv[0], iv[1], n, &newLis)
	}
	c.lis = newLis
}

func (c *coder) sortEntryDecode(in *bio.Buffer, lo, hi uint64, n int, newLis *[][2]uint64) {
	sig := in.GetBit()
	if !sig {
		*newLis = append(*newLis, [2]uint64{lo, hi})
		return
	}
	if hi-lo == 1 {
		neg := in.GetBit()
		c.signif[lo] = true
		c.sign[lo] = neg
		c.value[lo] = math.Ldexp(1, n)
		c.lastN[lo] = n
		c.lsp = append(c.lsp, lo)
		return
	}
	m := mid(lo, hi)
	c.sortEntryDecode(in, lo, m, n, newLis)
	c.sortEntryDecode(in, m, hi, n, newLis)
}

// Decode reconstructs the list of outlier corrections from a SPERR
// stream produced by Encode.
func Decode(data []byte) ([]Outlier, error) {
	hdr, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if hdr.NumOutliers == 0 {
		return nil, nil
	}
	in := bio.FromBytes(data[HeaderSize:])
	maxBit := int(int32(uint32(in.GetBits(32))))

	c := newCoder(nil)
	c.value = make(map[uint64]float64)
	c.lastN = make(map[uint64]int)
	c.lis = [][2]uint64{{0, hdr.TotalLen}}

	target := uint64(len(data)-HeaderSize) * 8
	frozen := 0
	for n := maxBit; ; n-- {
		if in.AtEnd() || in.PositionBitsRead() >= target {
			break
		}
		c.refinementPassDecode(in, n, frozen)
		c.sortingPassDecode(in, n)
		frozen = len(c.lsp)
		if len(c.lis) == 0 && n < -64 {
			break
		}
	}

	out := make([]Outlier, 0, len(c.lsp))
	for _, loc := range c.lsp {
		recon := c.value[loc] + 0.5*math.Ldexp(1, c.lastN[loc])
		if c.sign[loc] {
			recon = -recon
		}
		out = append(out, Outlier{Location: loc, Error: recon})
	}
	return out, nil
}

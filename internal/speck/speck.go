// Package speck implements the SPECK (set-partitioning) bit-plane
// coder from spec §4.F: an embedded, progressively truncatable code
// over wavelet coefficients using only explicit significance and
// refinement bits, never arithmetic/range coding.
//
// The pass structure -- per bit-plane, a refinement pass over the
// pixels that became significant in earlier planes (LSP), then a
// sorting pass over the list of insignificant sets (LIS) -- follows
// the per-bit-plane round shape of the teacher's
// internal/entropy/t1.go. A fresh coder is built for every Encode and
// Decode call; there is no pooling or Reset. The per-bit decision logic itself is unrelated: t1.go
// drives an MQ arithmetic coder with context models, while this
// package writes one raw bit per decision, per spec's bit-plane-only
// requirement. Set partitioning reuses internal/pyramid's subband
// bookkeeping directly: a Type-I node's "newly exposed" region at a
// given level is exactly that level's group of pyramid subbands.
package speck

import (
	"math"

	"github.com/mrjoshuak/wavespeck/internal/bio"
	"github.com/mrjoshuak/wavespeck/internal/pyramid"
	"github.com/mrjoshuak/wavespeck/internal/rtn"
)

// HeaderSize is the on-wire size of Header in bytes (spec §3).
const HeaderSize = 10

// minThresholdBitplane is the absolute floor on the bit-plane loop:
// once the threshold would drop below 2^-63, spec §4.F says encoding
// terminates regardless of any other target.
const minThresholdBitplane = -63

// Options controls encode-side termination. Decode never needs
// Options: it simply decodes as many bit-planes as the bitstream
// (bounded by Header.StreamLengthBits) actually contains, which is
// what makes the format progressively truncatable.
type Options struct {
	// TargetBits caps the encoded payload length in bits. 0 means no
	// explicit cap (encode down to MinBitplane).
	TargetBits int64
	// MinBitplane raises the termination floor above the package's
	// 2^-63 default (this is the qz_level termination condition).
	MinBitplane int
}

// DefaultOptions returns an Options that encodes to the 2^-63 floor.
func DefaultOptions() Options {
	return Options{MinBitplane: minThresholdBitplane}
}

// Header is the 10-byte SPECK stream header.
type Header struct {
	MaxCoeffBit      int32
	StreamLengthBits uint32
}

// Encode packs h into its 10-byte wire form: max_coeff_bit i32,
// 2 reserved bytes, stream_length_bits u32.
func (h Header) Encode() [HeaderSize]byte {
	var out [HeaderSize]byte
	putU32(out[0:4], uint32(h.MaxCoeffBit))
	putU32(out[6:10], h.StreamLengthBits)
	return out
}

// DecodeHeader unpacks a 10-byte wire record.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, rtn.New(rtn.BitstreamWrongLen, "speck header needs %d bytes, got %d", HeaderSize, len(b))
	}
	return Header{
		MaxCoeffBit:      int32(getU32(b[0:4])),
		StreamLengthBits: getU32(b[6:10]),
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

type setKind uint8

const (
	kindS setKind = iota
	kindI
)

// entry is one LIS member: either a regular set (kindS, region b) or
// the residual-octave set (kindI, the still-unexposed region finer
// than pyramid level `level`).
type entry struct {
	kind  setKind
	b     pyramid.Bounds
	level int
}

type coder struct {
	pyr    *pyramid.Pyramid
	coeffs []float64
	nx, ny int
	threeD bool

	lis    []entry
	lsp    []int
	signif []bool
	sign   []bool

	// decode-only reconstruction state.
	value []float64
	lastN []int
}

func newCoder(pyr *pyramid.Pyramid, coeffs []float64) *coder {
	return &coder{
		pyr:    pyr,
		coeffs: coeffs,
		nx:     pyr.Nx,
		ny:     pyr.Ny,
		threeD: pyr.ThreeD,
		signif: make([]bool, len(coeffs)),
		sign:   make([]bool, len(coeffs)),
	}
}

func (c *coder) initLIS() {
	if c.pyr.Levels == 0 {
		c.lis = []entry{{kind: kindS, b: c.pyr.RootBounds()}}
		return
	}
	c.lis = []entry{
		{kind: kindS, b: c.pyr.RootBounds()},
		{kind: kindI, level: c.pyr.Levels},
	}
}

func (c *coder) flat(b pyramid.Bounds) int {
	return b.X0 + b.Y0*c.nx + b.Z0*c.nx*c.ny
}

func (c *coder) maxAbsRegion(b pyramid.Bounds) float64 {
	var m float64
	for z := b.Z0; z < b.Z1; z++ {
		plane := z * c.nx * c.ny
		for y := b.Y0; y < b.Y1; y++ {
			base := plane + y*c.nx
			for x := b.X0; x < b.X1; x++ {
				if a := math.Abs(c.coeffs[base+x]); a > m {
					m = a
				}
			}
		}
	}
	return m
}

// groupBounds returns the 3 (2-D) or 7 (3-D) subband regions newly
// exposed between pyramid levels `level` and `level-1`.
func (c *coder) groupBounds(level int) []pyramid.Bounds {
	bpl := 3
	if c.threeD {
		bpl = 7
	}
	groupFromCoarse := c.pyr.Levels - level
	out := make([]pyramid.Bounds, bpl)
	for w := 0; w < bpl; w++ {
		out[w] = c.pyr.SubbandBounds(1 + groupFromCoarse*bpl + w)
	}
	return out
}

func rangesFor(lo, hi int) [][2]int {
	if hi-lo <= 1 {
		return [][2]int{{lo, hi}}
	}
	mid := lo + (hi-lo+1)/2
	return [][2]int{{lo, mid}, {mid, hi}}
}

// splitBounds partitions b into 2, 4, or 8 children depending on how
// many of its axes have length > 1 (the "quad/binary fallback near
// axis-length-1 edges" spec §4.F calls for).
func splitBounds(b pyramid.Bounds, threeD bool) []pyramid.Bounds {
	xr := rangesFor(b.X0, b.X1)
	yr := rangesFor(b.Y0, b.Y1)
	zr := [][2]int{{b.Z0, b.Z1}}
	if threeD {
		zr = rangesFor(b.Z0, b.Z1)
	}
	out := make([]pyramid.Bounds, 0, len(xr)*len(yr)*len(zr))
	for _, z := range zr {
		for _, y := range yr {
			for _, x := range xr {
				out = append(out, pyramid.Bounds{X0: x[0], Y0: y[0], Z0: z[0], X1: x[1], Y1: y[1], Z1: z[1]})
			}
		}
	}
	return out
}

// --- encode ---

func (c *coder) refinementPassEncode(out *bio.Buffer, n int, frozen int) {
	scale := math.Ldexp(1, n)
	for _, idx := range c.lsp[:frozen] {
		bit := int64(math.Floor(math.Abs(c.coeffs[idx])/scale)) & 1
		out.PutBit(bit != 0)
	}
}

func (c *coder) sortingPassEncode(out *bio.Buffer, n int) {
	cur := c.lis
	var newLis []entry
	for _, e := range cur {
		c.sortEntryEncode(out, e, n, &newLis)
	}
	c.lis = newLis
}

func (c *coder) sortEntryEncode(out *bio.Buffer, e entry, n int, newLis *[]entry) {
	threshold := math.Ldexp(1, n)
	switch e.kind {
	case kindS:
		sig := c.maxAbsRegion(e.b) >= threshold
		out.PutBit(sig)
		if !sig {
			*newLis = append(*newLis, e)
			return
		}
		if e.b.Size() == 1 {
			idx := c.flat(e.b)
			neg := c.coeffs[idx] < 0
			out.PutBit(neg)
			c.signif[idx] = true
			c.sign[idx] = neg
			c.lsp = append(c.lsp, idx)
			return
		}
		for _, child := range splitBounds(e.b, c.threeD) {
			c.sortEntryEncode(out, entry{kind: kindS, b: child}, n, newLis)
		}
	case kindI:
		pieces := c.groupBounds(e.level)
		var maxVal float64
		for _, p := range pieces {
			if v := c.maxAbsRegion(p); v > maxVal {
				maxVal = v
			}
		}
		sig := maxVal >= threshold
		out.PutBit(sig)
		if !sig {
			*newLis = append(*newLis, e)
			return
		}
		for _, p := range pieces {
			c.sortEntryEncode(out, entry{kind: kindS, b: p}, n, newLis)
		}
		if e.level > 1 {
			c.sortEntryEncode(out, entry{kind: kindI, level: e.level - 1}, n, newLis)
		}
	}
}

// Encode produces a complete SPECK stream (header + payload) for
// coeffs, shaped according to pyr.
func Encode(coeffs []float64, pyr *pyramid.Pyramid, opts Options) ([]byte, error) {
	if pyr.TotalSize() != len(coeffs) {
		return nil, rtn.New(rtn.WrongDims, "speck: coeffs len %d does not match pyramid size %d", len(coeffs), pyr.TotalSize())
	}

	maxAbs := 0.0
	for _, v := range coeffs {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
	}
	maxBit := 0
	if maxAbs > 0 {
		maxBit = int(math.Floor(math.Log2(maxAbs)))
	}

	floor := opts.MinBitplane
	if floor < minThresholdBitplane {
		floor = minThresholdBitplane
	}

	out := bio.New()
	if maxAbs > 0 {
		c := newCoder(pyr, coeffs)
		c.initLIS()
		frozen := 0
		for n := maxBit; n >= floor; n-- {
			c.refinementPassEncode(out, n, frozen)
			c.sortingPassEncode(out, n)
			frozen = len(c.lsp)
			if opts.TargetBits > 0 && int64(out.PositionBitsWrite()) >= opts.TargetBits {
				break
			}
		}
	}
	out.Flush()
	payload := out.Bytes()

	hdr := Header{MaxCoeffBit: int32(maxBit), StreamLengthBits: uint32(out.Len())}
	wire := hdr.Encode()
	full := make([]byte, 0, HeaderSize+len(payload))
	full = append(full, wire[:]...)
	full = append(full, payload...)
	return full, nil
}

// --- decode ---

func (c *coder) refinementPassDecode(in *bio.Buffer, n int, frozen int) {
	scale := math.Ldexp(1, n)
	for _, idx := range c.lsp[:frozen] {
		if in.GetBit() {
			c.value[idx] += scale
		}
		c.lastN[idx] = n
	}
}

func (c *coder) sortingPassDecode(in *bio.Buffer, n int) {
	cur := c.lis
	var newLis []entry
	for _, e := range cur {
		c.sortEntryDecode(in, e, n, &newLis)
	}
	c.lis = newLis
}

func (c *coder) sortEntryDecode(in *bio.Buffer, e entry, n int, newLis *[]entry) {
	switch e.kind {
	case kindS:
		sig := in.GetBit()
		if !sig {
			*newLis = append(*newLis, e)
			return
		}
		if e.b.Size() == 1 {
			idx := c.flat(e.b)
			neg := in.GetBit()
			c.signif[idx] = true
			c.sign[idx] = neg
			c.value[idx] = math.Ldexp(1, n)
			c.lastN[idx] = n
			c.lsp = append(c.lsp, idx)
			return
		}
		for _, child := range splitBounds(e.b, c.threeD) {
			c.sortEntryDecode(in, entry{kind: kindS, b: child}, n, newLis)
		}
	case kindI:
		sig := in.GetBit()
		if !sig {
			*newLis = append(*newLis, e)
			return
		}
		for _, p := range c.groupBounds(e.level) {
			c.sortEntryDecode(in, entry{kind: kindS, b: p}, n, newLis)
		}
		if e.level > 1 {
			c.sortEntryDecode(in, entry{kind: kindI, level: e.level - 1}, n, newLis)
		}
	}
}

// Decode reconstructs a coefficient buffer from a SPECK stream
// produced by Encode, shaped according to pyr. Decoding a truncated
// prefix of the stream degrades gracefully: bit-planes beyond what
// was retained are simply never coded, leaving coarser reconstruction
// error on pixels that would have been refined further.
func Decode(data []byte, pyr *pyramid.Pyramid) ([]float64, error) {
	hdr, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	in := bio.FromBytes(data[HeaderSize:])

	total := pyr.TotalSize()
	coeffs := make([]float64, total)
	if hdr.StreamLengthBits == 0 {
		return coeffs, nil
	}

	c := newCoder(pyr, coeffs)
	c.value = make([]float64, total)
	c.lastN = make([]int, total)
	c.initLIS()

	maxBit := int(hdr.MaxCoeffBit)
	target := uint64(hdr.StreamLengthBits)
	frozen := 0
	for n := maxBit; n >= minThresholdBitplane; n-- {
		if in.AtEnd() || in.PositionBitsRead() >= target {
			break
		}
		c.refinementPassDecode(in, n, frozen)
		c.sortingPassDecode(in, n)
		frozen = len(c.lsp)
	}

	for _, idx := range c.lsp {
		recon := c.value[idx] + 0.5*math.Ldexp(1, c.lastN[idx])
		if c.sign[idx] {
			recon = -recon
		}
		coeffs[idx] = recon
	}
	return coeffs, nil
}

package wavespeck

import (
	"context"
	"math"

	"github.com/mrjoshuak/wavespeck/internal/chunked"
	"github.com/mrjoshuak/wavespeck/internal/condition"
	"github.com/mrjoshuak/wavespeck/internal/dwt"
	"github.com/mrjoshuak/wavespeck/internal/pyramid"
	"github.com/mrjoshuak/wavespeck/internal/rtn"
	"github.com/mrjoshuak/wavespeck/internal/speck"
	"github.com/mrjoshuak/wavespeck/internal/sperr"
)

// blockDims is a local alias kept separate from chunked.Dims and
// sample.Dims so this file reads independently of which caller
// (Compressor's flat path or its chunked path) is driving it.
type blockDims struct{ Nx, Ny, Nz int }

func (d blockDims) nz() int {
	if d.Nz < 1 {
		return 1
	}
	return d.Nz
}

func (d blockDims) total() int { return d.Nx * d.Ny * d.nz() }

// blockOptions configures a single condition->DWT->SPECK(+SPERR) pass.
type blockOptions struct {
	// TargetBits caps the SPECK payload length in bits. 0 means full
	// precision (encode to SPECK's 2^-63 floor).
	TargetBits int64
	// Tolerance, when > 0, triggers a SPERR outlier-correction pass
	// guaranteeing max|decoded-original| <= Tolerance (spec §4.G).
	Tolerance  float64
	NumThreads int
	// Float32Output marks a PWE-mode encode whose caller will read the
	// result back as float32 (CompressFloat32). Narrowing reconstructed
	// samples to float32 after SPERR correction can push their error
	// back over Tolerance even though the float64 reconstruction was
	// within bounds, so the outlier pass lowers the tolerance it
	// actually encodes against for any sample where that would happen
	// (original_source/src/SPERR3D_Compressor.cpp, GitHub issue #78).
	Float32Output bool
}

// codeOneBlock conditions, transforms, and SPECK-codes a single
// sample buffer end to end, returning the conditioner header followed
// by the SPECK (or, for wavelet-packet volumes, per-z-slice nested
// chunked SPECK) payload and, when opts.Tolerance > 0, a trailing
// SPERR outlier stream. It is used directly for 2-D buffers and once
// per cuboid for 3-D chunked volumes, since each chunk is itself a
// flat single-buffer coding problem (spec §4.I: "each chunk is
// compressed with an independent Compressor").
func codeOneBlock(ctx context.Context, samples []float64, dims blockDims, opts blockOptions) ([]byte, error) {
	buf := append([]float64(nil), samples...)
	hdr, err := condition.Condition(buf, len(buf))
	if err != nil {
		return nil, err
	}
	if hdr.IsConstant() {
		wire := hdr.Encode()
		return wire[:], nil
	}

	plan := dwt.PlanVolume(dims.Nx, dims.Ny, dims.nz())
	speckStream, err := transformAndCode(ctx, buf, dims, plan, opts.TargetBits, opts.NumThreads)
	if err != nil {
		return nil, err
	}

	wire := hdr.Encode()
	out := make([]byte, 0, condition.HeaderSize+len(speckStream))
	out = append(out, wire[:]...)
	out = append(out, speckStream...)

	if opts.Tolerance <= 0 {
		return out, nil
	}

	reconstructed, err := decodeAndInverseTransform(ctx, speckStream, dims, plan, opts.NumThreads)
	if err != nil {
		return nil, err
	}
	condition.InverseCondition(reconstructed, hdr)

	tolerance := opts.Tolerance
	if opts.Float32Output {
		tolerance = narrowedTolerance(samples, reconstructed, tolerance)
	}

	var outliers []sperr.Outlier
	for i, orig := range samples {
		if e := orig - reconstructed[i]; math.Abs(e) >= tolerance {
			outliers = append(outliers, sperr.Outlier{Location: uint64(i), Error: e})
		}
	}
	sperrStream, err := sperr.Encode(outliers, uint64(len(samples)), tolerance)
	if err != nil {
		return nil, err
	}
	out = append(out, sperrStream...)
	return out, nil
}

// narrowedTolerance lowers tol to the smallest float64 reconstruction
// error among samples whose error would exceed tol once reconstructed
// narrows to float32, so the SPERR pass still guarantees the PWE bound
// after that narrowing.
func narrowedTolerance(samples, reconstructed []float64, tol float64) float64 {
	for i, orig := range samples {
		f64err := math.Abs(orig - reconstructed[i])
		if f64err > tol {
			continue // already an outlier at full precision
		}
		narrowed := float64(float32(reconstructed[i]))
		if math.Abs(orig-narrowed) > tol && f64err < tol {
			tol = f64err
		}
	}
	return tol
}

// decodeOneBlock is the exact inverse of codeOneBlock. It recovers the
// SPECK stream's byte length from its own header so that any trailing
// bytes are recognized as an appended SPERR outlier correction without
// needing a side-channel flag.
func decodeOneBlock(ctx context.Context, data []byte, dims blockDims, numThreads int) ([]float64, error) {
	hdr, err := condition.DecodeHeader(data)
	if err != nil {
		return nil, err
	}
	if hdr.IsConstant() {
		out := make([]float64, dims.total())
		condition.InverseCondition(out, hdr)
		return out, nil
	}
	rest := data[condition.HeaderSize:]

	plan := dwt.PlanVolume(dims.Nx, dims.Ny, dims.nz())
	speckLen, err := codedStreamByteLen(rest, plan)
	if err != nil {
		return nil, err
	}
	// ProgressiveRead truncates a chunk's payload without rewriting the
	// SPECK header's StreamLengthBits, so a truncated stream reports a
	// speckLen past the end of what's actually here; clamp it so the
	// truncated tail is never mistaken for an appended SPERR stream.
	speckLen = minInt(speckLen, len(rest))
	coeffs, err := decodeAndInverseTransform(ctx, rest[:speckLen], dims, plan, numThreads)
	if err != nil {
		return nil, err
	}
	condition.InverseCondition(coeffs, hdr)

	if speckLen < len(rest) {
		outliers, err := sperr.Decode(rest[speckLen:])
		if err != nil {
			return nil, err
		}
		for _, o := range outliers {
			coeffs[o.Location] += o.Error
		}
	}
	return coeffs, nil
}

// codedStreamByteLen reports how many leading bytes of data belong to
// the transform-coded stream (SPECK header+payload for Plain2D/
// Dyadic3D, or the nested chunked envelope for Packet3D), so that any
// bytes beyond it can be recognized as a trailing SPERR stream.
func codedStreamByteLen(data []byte, plan dwt.Plan) (int, error) {
	if plan.Variant != dwt.Packet3D {
		hdr, err := speck.DecodeHeader(data)
		if err != nil {
			return 0, err
		}
		return speck.HeaderSize + int((uint64(hdr.StreamLengthBits)+7)/8), nil
	}
	return chunkedEnvelopeByteLen(data)
}

// chunkedEnvelopeByteLen mirrors chunked.ParseStream's own framing
// (header, then a NumChunks-entry length table, then payloads) to
// find the byte offset one past the last payload, without requiring
// chunked to expose its own length probe.
func chunkedEnvelopeByteLen(data []byte) (int, error) {
	hdr, err := chunked.DecodeHeader(data)
	if err != nil {
		return 0, err
	}
	off := chunked.HeaderSize
	lengths := make([]uint32, hdr.NumChunks)
	for i := range lengths {
		if off+4 > len(data) {
			return 0, rtn.New(rtn.BitstreamWrongLen, "chunked envelope: length table truncated at chunk %d", i)
		}
		lengths[i] = uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
		off += 4
	}
	for _, l := range lengths {
		off += int(l)
	}
	return off, nil
}

func transformAndCode(ctx context.Context, buf []float64, dims blockDims, plan dwt.Plan, targetBits int64, numThreads int) ([]byte, error) {
	switch plan.Variant {
	case dwt.Plain2D:
		dwt.ForwardMultiLevel2D(buf, dims.Nx, dims.Ny, plan.LevelsXY)
		pyr := pyramid.New(dims.Nx, dims.Ny, 1, plan.LevelsXY, false)
		return speck.Encode(buf, pyr, speck.Options{TargetBits: targetBits, MinBitplane: -63})

	case dwt.Dyadic3D:
		dwt.ForwardDyadic3D(buf, dims.Nx, dims.Ny, dims.nz(), plan.LevelsXY)
		pyr := pyramid.New(dims.Nx, dims.Ny, dims.nz(), plan.LevelsXY, true)
		return speck.Encode(buf, pyr, speck.Options{TargetBits: targetBits, MinBitplane: -63})

	default: // Packet3D: per-z-slice 2-D SPECK streams, framed with chunked.
		dwt.ForwardPacket3D(buf, dims.Nx, dims.Ny, dims.nz(), plan.LevelsXY, plan.LevelsZ)
		return codePacketSlices(ctx, buf, dims, plan.LevelsXY, targetBits, numThreads)
	}
}

// decodeAndInverseTransform inverts transformAndCode's Plain2D/
// Dyadic3D output from a byte slice containing ONLY the SPECK stream
// (no trailing SPERR bytes); for Packet3D, data is the full nested
// chunked envelope, which is already self-delimiting.
func decodeAndInverseTransform(ctx context.Context, data []byte, dims blockDims, plan dwt.Plan, numThreads int) ([]float64, error) {
	switch plan.Variant {
	case dwt.Plain2D:
		pyr := pyramid.New(dims.Nx, dims.Ny, 1, plan.LevelsXY, false)
		coeffs, err := speck.Decode(data, pyr)
		if err != nil {
			return nil, err
		}
		dwt.InverseMultiLevel2D(coeffs, dims.Nx, dims.Ny, plan.LevelsXY)
		return coeffs, nil

	case dwt.Dyadic3D:
		pyr := pyramid.New(dims.Nx, dims.Ny, dims.nz(), plan.LevelsXY, true)
		coeffs, err := speck.Decode(data, pyr)
		if err != nil {
			return nil, err
		}
		dwt.InverseDyadic3D(coeffs, dims.Nx, dims.Ny, dims.nz(), plan.LevelsXY)
		return coeffs, nil

	default:
		coeffs, err := decodePacketSlices(ctx, data, dims, plan.LevelsXY, numThreads)
		if err != nil {
			return nil, err
		}
		dwt.InversePacket3D(coeffs, dims.Nx, dims.Ny, dims.nz(), plan.LevelsXY, plan.LevelsZ)
		return coeffs, nil
	}
}

func codePacketSlices(ctx context.Context, buf []float64, dims blockDims, levelsXY int, targetBits int64, numThreads int) ([]byte, error) {
	cdims := chunked.Dims{Nx: dims.Nx, Ny: dims.Ny, Nz: dims.nz()}
	plan := chunked.PlanVolume(cdims, chunked.Dims{Nz: 1}) // one pseudo-chunk per z-slice
	perSliceBits := int64(0)
	if targetBits > 0 {
		perSliceBits = targetBits / int64(len(plan.Chunks))
	}

	payloads, err := chunked.EncodeChunks(ctx, buf, plan, numThreads, func(_ int, slice []float64, d chunked.Dims) ([]byte, error) {
		pyr := pyramid.New(d.Nx, d.Ny, 1, levelsXY, false)
		return speck.Encode(slice, pyr, speck.Options{TargetBits: perSliceBits, MinBitplane: -63})
	})
	if err != nil {
		return nil, err
	}
	return chunked.AssembleStream(cdims, plan.ChunkDims, payloads), nil
}

func decodePacketSlices(ctx context.Context, data []byte, dims blockDims, levelsXY int, numThreads int) ([]float64, error) {
	hdr, payloads, err := chunked.ParseStream(data)
	if err != nil {
		return nil, err
	}
	plan := chunked.PlanFromHeader(hdr)
	coeffs := make([]float64, dims.total())

	err = chunked.DecodeChunks(ctx, coeffs, plan, numThreads, payloads, func(_ int, payload []byte, d chunked.Dims) ([]float64, error) {
		pyr := pyramid.New(d.Nx, d.Ny, 1, levelsXY, false)
		return speck.Decode(payload, pyr)
	})
	if err != nil {
		return nil, err
	}
	return coeffs, nil
}

// Package wavespeck implements a progressive, wavelet-based lossy
// compression codec for 2-D images and 3-D volumes of floating-point
// samples: a CDF 9/7 DWT feeding a SPECK bit-plane coder, an optional
// SPERR outlier pass for a guaranteed point-wise error bound, and a
// chunked, parallel driver for large volumes.
//
// Basic usage for compressing:
//
//	c := wavespeck.NewCompressor(wavespeck.DefaultCompressorOptions())
//	data, err := c.Compress(samples, sample.Dims{Nx: 512, Ny: 512, Nz: 1})
//
// Basic usage for decompressing:
//
//	d := wavespeck.NewDecompressor()
//	samples, dims, err := d.Decompress(data)
package wavespeck

import (
	"context"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/mrjoshuak/wavespeck/internal/chunked"
	"github.com/mrjoshuak/wavespeck/internal/condition"
	"github.com/mrjoshuak/wavespeck/internal/rtn"
	"github.com/mrjoshuak/wavespeck/internal/sample"
	"github.com/mrjoshuak/wavespeck/internal/speck"
)

// psnrSearchRounds bounds the bit-budget doubling search SetTargetPSNR
// drives: each round at least doubles the previous budget, so this
// many rounds covers a very wide dynamic range before giving up and
// returning the best budget tried.
const psnrSearchRounds = 24

// Compressor turns a sample buffer into a wavespeck bitstream under
// one of three quality targets (spec §4.H), following the teacher's
// Options-struct-plus-constructor shape (jpeg2000.Options).
type Compressor struct {
	opts CompressorOptions
}

// NewCompressor builds a Compressor from the given options.
func NewCompressor(opts CompressorOptions) *Compressor {
	return &Compressor{opts: opts}
}

// Compress conditions, transforms, and codes samples (shaped dims)
// into a self-describing bitstream. 3-D volumes (dims.Is3D()) are
// routed through the chunked parallel driver; everything else is
// coded as a single flat block.
func (c *Compressor) Compress(samples []float64, dims sample.Dims) ([]byte, error) {
	return c.compress(samples, dims, false)
}

// CompressFloat32 is Compress for callers whose samples originated as
// float32 and will be read back with DecompressFloat32 (spec §4.H/§9
// "one-of-two tag" copy_data<f32>). In PWE mode the guaranteed error
// bound is preserved even after the reconstruction narrows back down
// to float32 (see narrowedTolerance in block.go).
func (c *Compressor) CompressFloat32(samples []float32, dims sample.Dims) ([]byte, error) {
	buf, err := sample.FromFloat32(samples, dims)
	if err != nil {
		return nil, fmt.Errorf("wavespeck: compressing: %w", err)
	}
	return c.compress(buf.View(), dims, true)
}

func (c *Compressor) compress(samples []float64, dims sample.Dims, isFloat bool) ([]byte, error) {
	if err := c.opts.validate(); err != nil {
		return nil, fmt.Errorf("wavespeck: validating options: %w", err)
	}
	if dims.Len() == 0 {
		return nil, fmt.Errorf("wavespeck: compressing: %w", rtn.New(rtn.InvalidParam, "dims must be nonempty"))
	}
	if len(samples) != dims.Len() {
		return nil, fmt.Errorf("wavespeck: compressing: %w", rtn.New(rtn.WrongDims, "len(samples)=%d != product(dims)=%d", len(samples), dims.Len()))
	}

	var flags uint8
	var body []byte
	var err error

	if dims.Is3D() {
		body, err = c.compressChunked(samples, dims, isFloat)
		flags |= flagChunked
		if c.opts.mode == modePWE {
			flags |= flagHasSPERR
		}
	} else {
		body, flags, err = c.compressFlat(samples, dims, isFloat)
	}
	if err != nil {
		return nil, fmt.Errorf("wavespeck: compressing: %w", err)
	}

	if isFloat {
		flags |= flagIsFloat
	}

	if c.opts.UseZstd {
		body, err = zstdCompress(body)
		if err != nil {
			return nil, fmt.Errorf("wavespeck: compressing: %w", err)
		}
		flags |= flagZstdWrapped
	}

	m := meta{
		version: streamVersion,
		flags:   flags,
		nx:      uint16(dims.Nx),
		ny:      uint16(dims.Ny),
		nz:      uint16(dims.Nz),
	}
	wire := m.encode()
	out := make([]byte, 0, metaSize+len(body))
	out = append(out, wire[:]...)
	out = append(out, body...)
	return out, nil
}

// compressFlat codes a 2-D (or unchunked single-buffer) sample array
// directly, returning the bitstream body (conditioner+SPECK[+SPERR])
// and the hasSPERR flag bit it should set.
func (c *Compressor) compressFlat(samples []float64, dims sample.Dims, isFloat bool) ([]byte, uint8, error) {
	opts, err := c.blockOptionsFor(samples, dims)
	if err != nil {
		return nil, 0, err
	}
	opts.Float32Output = isFloat
	body, err := codeOneBlock(context.Background(), samples, blockDims{Nx: dims.Nx, Ny: dims.Ny, Nz: dims.Nz}, opts)
	if err != nil {
		return nil, 0, err
	}
	var flags uint8
	if opts.Tolerance > 0 {
		flags |= flagHasSPERR
	}
	return body, flags, nil
}

// compressChunked partitions a 3-D volume and codes each chunk as an
// independent block (spec §4.I: "each chunk is compressed with an
// independent Compressor"), assembling the chunked header+table+
// payload layout via internal/chunked.
func (c *Compressor) compressChunked(samples []float64, dims sample.Dims, isFloat bool) ([]byte, error) {
	cdims := chunked.Dims{Nx: dims.Nx, Ny: dims.Ny, Nz: dims.Nz}
	plan := chunked.PlanVolume(cdims, c.opts.chunkDims())

	totalBits := c.targetBitsForVolume(dims)
	budgets := chunked.DistributeBitBudget(totalBits, plan)
	tolerance := c.pweTolerance()

	payloads, err := chunked.EncodeChunks(context.Background(), samples, plan, c.opts.NumThreads, func(i int, chunkSamples []float64, d chunked.Dims) ([]byte, error) {
		return codeOneBlock(context.Background(), chunkSamples, blockDims{Nx: d.Nx, Ny: d.Ny, Nz: d.Nz}, blockOptions{
			TargetBits:    budgets[i],
			Tolerance:     tolerance,
			NumThreads:    0,
			Float32Output: isFloat,
		})
	})
	if err != nil {
		return nil, err
	}
	return chunked.AssembleStream(cdims, plan.ChunkDims, payloads), nil
}

// blockOptionsFor resolves the active quality mode into concrete
// blockOptions for a flat (non-chunked) compress. PSNR mode runs an
// iterative bit-budget search since SPECK has no direct PSNR dial.
func (c *Compressor) blockOptionsFor(samples []float64, dims sample.Dims) (blockOptions, error) {
	switch c.opts.mode {
	case modeBpp:
		bits := bppToBits(c.opts.value, dims.Len())
		if min := minBitsForHeaders(); bits < min {
			return blockOptions{}, rtn.New(rtn.InvalidParam, "target bpp %v yields a %d-bit budget, below the %d-bit fixed-header floor", c.opts.value, bits, min)
		}
		return blockOptions{TargetBits: bits}, nil
	case modePWE:
		return blockOptions{Tolerance: c.opts.value}, nil
	case modePSNR:
		bits, err := searchBitsForPSNR(samples, blockDims{Nx: dims.Nx, Ny: dims.Ny, Nz: dims.Nz}, c.opts.value)
		if err != nil {
			return blockOptions{}, err
		}
		return blockOptions{TargetBits: bits}, nil
	default:
		return blockOptions{}, rtn.New(rtn.InvalidParam, "unknown quality mode %d", c.opts.mode)
	}
}

// targetBitsForVolume resolves the active quality mode into a total
// bit budget for the whole chunked volume. PWE mode leaves the budget
// unset (0 = encode to full precision before SPERR correction trims
// the residual). PSNR mode also leaves it unset: every chunk encodes
// to full precision, and no PSNR search runs for chunked volumes.
func (c *Compressor) targetBitsForVolume(dims sample.Dims) int64 {
	switch c.opts.mode {
	case modeBpp:
		return bppToBits(c.opts.value, dims.Len())
	default:
		return 0
	}
}

func (c *Compressor) pweTolerance() float64 {
	if c.opts.mode == modePWE {
		return c.opts.value
	}
	return 0
}

func bppToBits(bpp float64, numSamples int) int64 {
	return int64(math.Ceil(bpp * float64(numSamples)))
}

// minBitsForHeaders is the smallest bit budget that can still hold
// the fixed-size conditioner and SPECK stream headers (spec §4.H:
// "the resulting bit budget must exceed the fixed-size headers").
func minBitsForHeaders() int64 {
	return int64(condition.HeaderSize+speck.HeaderSize) * 8
}

// searchBitsForPSNR doubles a starting bit budget until a trial
// encode+decode achieves at least targetPSNR dB, or the search runs
// out of rounds (in which case it returns the widest budget tried,
// since SPECK's embedded format makes more bits only ever better).
func searchBitsForPSNR(samples []float64, dims blockDims, targetPSNR float64) (int64, error) {
	n := dims.total()
	bits := int64(n) // start at ~1 bit/sample
	for round := 0; round < psnrSearchRounds; round++ {
		encoded, err := codeOneBlock(context.Background(), samples, dims, blockOptions{TargetBits: bits})
		if err != nil {
			return 0, err
		}
		decoded, err := decodeOneBlock(context.Background(), encoded, dims, 0)
		if err != nil {
			return 0, err
		}
		if psnr(samples, decoded) >= targetPSNR {
			return bits, nil
		}
		bits *= 2
	}
	return bits / 2, nil // the last budget actually tried
}

func psnr(orig, recon []float64) float64 {
	maxAbs := 0.0
	var sqErr float64
	for i, v := range orig {
		if a := math.Abs(v); a > maxAbs {
			maxAbs = a
		}
		d := v - recon[i]
		sqErr += d * d
	}
	if maxAbs == 0 || sqErr == 0 {
		return math.Inf(1)
	}
	mse := sqErr / float64(len(orig))
	return 20*math.Log10(maxAbs) - 10*math.Log10(mse)
}

// Decompressor parses a wavespeck bitstream and reconstructs the
// original sample buffer.
type Decompressor struct {
	NumThreads int
}

// NewDecompressor builds a Decompressor with unbounded chunk concurrency.
func NewDecompressor() *Decompressor {
	return &Decompressor{}
}

// Decompress reverses Compress, returning the reconstructed samples
// and the dims they are shaped to.
func (d *Decompressor) Decompress(data []byte) ([]float64, sample.Dims, error) {
	m, err := decodeMeta(data)
	if err != nil {
		return nil, sample.Dims{}, fmt.Errorf("wavespeck: decompressing: %w", err)
	}
	body := data[metaSize:]

	if m.zstdWrapped() {
		body, err = zstdDecompress(body)
		if err != nil {
			return nil, sample.Dims{}, fmt.Errorf("wavespeck: decompressing: %w", err)
		}
	}

	dims := sample.Dims{Nx: int(m.nx), Ny: int(m.ny), Nz: int(m.nz)}
	if dims.Nz == 0 {
		dims.Nz = 1
	}

	var samples []float64
	if m.chunked() {
		if !dims.Is3D() {
			return nil, sample.Dims{}, fmt.Errorf("wavespeck: decompressing: %w", rtn.New(rtn.SliceVolumeMismatch, "chunked flag set on a 2-D stream"))
		}
		samples, err = d.decompressChunked(body, dims)
	} else {
		samples, err = decodeOneBlock(context.Background(), body, blockDims{Nx: dims.Nx, Ny: dims.Ny, Nz: dims.Nz}, d.NumThreads)
	}
	if err != nil {
		return nil, sample.Dims{}, fmt.Errorf("wavespeck: decompressing: %w", err)
	}
	return samples, dims, nil
}

// DecompressFloat32 is Decompress for a caller that wants the
// reconstruction narrowed to float32, independent of whether the
// stream's is_float flag was set: the original C API's
// sperr_decomp_2d/3d lets the caller pick the output representation
// regardless of what was stored, so StreamInfo.IsFloat is informational
// only (spec §4.H/§9).
func (d *Decompressor) DecompressFloat32(data []byte) ([]float32, sample.Dims, error) {
	samples, dims, err := d.Decompress(data)
	if err != nil {
		return nil, sample.Dims{}, err
	}
	var buf sample.Buffer
	if err := buf.Take(samples, dims); err != nil {
		return nil, sample.Dims{}, fmt.Errorf("wavespeck: decompressing: %w", err)
	}
	return buf.ToFloat32(), dims, nil
}

func (d *Decompressor) decompressChunked(data []byte, dims sample.Dims) ([]float64, error) {
	hdr, payloads, err := chunked.ParseStream(data)
	if err != nil {
		return nil, err
	}
	plan := chunked.PlanFromHeader(hdr)
	out := make([]float64, dims.Len())

	err = chunked.DecodeChunks(context.Background(), out, plan, d.NumThreads, payloads, func(_ int, payload []byte, cd chunked.Dims) ([]float64, error) {
		return decodeOneBlock(context.Background(), payload, blockDims{Nx: cd.Nx, Ny: cd.Ny, Nz: cd.Nz}, 0)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func zstdCompress(data []byte) ([]byte, error) {
	w, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, rtn.New(rtn.ZSTDError, "zstd: opening writer: %v", err)
	}
	defer w.Close()
	return w.EncodeAll(data, make([]byte, 0, len(data))), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	r, err := zstd.NewReader(nil)
	if err != nil {
		return nil, rtn.New(rtn.ZSTDError, "zstd: opening reader: %v", err)
	}
	defer r.Close()
	out, err := r.DecodeAll(data, nil)
	if err != nil {
		return nil, rtn.New(rtn.ZSTDError, "zstd: decoding: %v", err)
	}
	return out, nil
}

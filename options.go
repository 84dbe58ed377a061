package wavespeck

import (
	"github.com/mrjoshuak/wavespeck/internal/chunked"
	"github.com/mrjoshuak/wavespeck/internal/rtn"
)

// qualityMode selects which of bpp/PSNR/PWE target last won a call to
// one of the CompressorOptions setters (spec §4.H: mutually
// exclusive, last set wins).
type qualityMode int

const (
	modeBpp qualityMode = iota
	modePSNR
	modePWE
)

// defaultChunkDims is the preferred per-axis cuboid shape used to
// split 3-D volumes before parallel encode/decode when ChunkDims is
// left unset (spec §4.I).
var defaultChunkDims = chunked.Dims{Nx: 64, Ny: 64, Nz: 64}

// CompressorOptions configures a Compressor, following the teacher's
// Options/DefaultOptions constructor pattern (jpeg2000.Options).
type CompressorOptions struct {
	mode  qualityMode
	value float64

	// ChunkDims overrides the preferred per-axis chunk shape used for
	// 3-D volumes (spec §3 `chunk_dims[3]*u32`): chunks need not be
	// cubes, e.g. {64, 70, 80}. An axis left at 0 defaults to
	// defaultChunkDims' value for that axis.
	ChunkDims chunked.Dims
	// NumThreads caps encode/decode concurrency across chunks. Zero
	// means unbounded (left to the runtime scheduler).
	NumThreads int
	// UseZstd wraps the assembled bitstream in a zstd frame (spec §3
	// optional post-processing layer).
	UseZstd bool
}

// DefaultCompressorOptions targets 2 bits per sample.
func DefaultCompressorOptions() CompressorOptions {
	return CompressorOptions{mode: modeBpp, value: 2.0}
}

// SetTargetBpp switches to a bits-per-sample rate target.
func (o *CompressorOptions) SetTargetBpp(bpp float64) {
	o.mode, o.value = modeBpp, bpp
}

// SetTargetPSNR switches to a peak-signal-to-noise-ratio target (dB).
func (o *CompressorOptions) SetTargetPSNR(psnr float64) {
	o.mode, o.value = modePSNR, psnr
}

// SetTargetPWE switches to a guaranteed point-wise-error target: every
// reconstructed sample will be within this absolute tolerance of the
// original (spec §4.G).
func (o *CompressorOptions) SetTargetPWE(pwe float64) {
	o.mode, o.value = modePWE, pwe
}

func (o CompressorOptions) chunkDims() chunked.Dims {
	d := o.ChunkDims
	if d.Nx <= 0 {
		d.Nx = defaultChunkDims.Nx
	}
	if d.Ny <= 0 {
		d.Ny = defaultChunkDims.Ny
	}
	if d.Nz <= 0 {
		d.Nz = defaultChunkDims.Nz
	}
	return d
}

func (o CompressorOptions) validate() error {
	switch o.mode {
	case modeBpp:
		if o.value <= 0 {
			return rtn.New(rtn.InvalidParam, "target bpp must be positive, got %v", o.value)
		}
	case modePSNR:
		if o.value <= 0 {
			return rtn.New(rtn.InvalidParam, "target PSNR must be positive, got %v", o.value)
		}
	case modePWE:
		if o.value <= 0 {
			return rtn.New(rtn.InvalidParam, "target PWE must be positive, got %v", o.value)
		}
	default:
		return rtn.New(rtn.InvalidParam, "unknown quality mode %d", o.mode)
	}
	return nil
}

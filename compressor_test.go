package wavespeck

import (
	"math"
	"testing"

	"github.com/mrjoshuak/wavespeck/internal/chunked"
	"github.com/mrjoshuak/wavespeck/internal/sample"
)

func synthSamples(dims sample.Dims, scale float64) []float64 {
	n := dims.Len()
	out := make([]float64, n)
	for i := range out {
		out[i] = scale * math.Sin(float64(i)*0.07)
	}
	return out
}

func maxAbsErr(a, b []float64) float64 {
	var m float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}

func TestCompressDecompressRoundTrip2D(t *testing.T) {
	dims := sample.Dims{Nx: 64, Ny: 64, Nz: 1}
	samples := synthSamples(dims, 100)

	opts := DefaultCompressorOptions()
	opts.SetTargetBpp(4.0)
	c := NewCompressor(opts)
	data, err := c.Compress(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	decoded, gotDims, err := d.Decompress(data)
	if err != nil {
		t.Fatal(err)
	}
	if gotDims != dims {
		t.Fatalf("dims = %+v, want %+v", gotDims, dims)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded length %d, want %d", len(decoded), len(samples))
	}
}

func TestCompressDecompressRoundTrip3DChunked(t *testing.T) {
	dims := sample.Dims{Nx: 24, Ny: 24, Nz: 24}
	samples := synthSamples(dims, 50)

	opts := DefaultCompressorOptions()
	opts.SetTargetBpp(3.0)
	opts.ChunkDims = chunked.Dims{Nx: 12, Ny: 12, Nz: 12}
	opts.NumThreads = 3
	c := NewCompressor(opts)
	data, err := c.Compress(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	d.NumThreads = 3
	decoded, gotDims, err := d.Decompress(data)
	if err != nil {
		t.Fatal(err)
	}
	if gotDims != dims {
		t.Fatalf("dims = %+v, want %+v", gotDims, dims)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded length %d, want %d", len(decoded), len(samples))
	}
}

func TestCompressWithZstdWrapper(t *testing.T) {
	dims := sample.Dims{Nx: 32, Ny: 32, Nz: 1}
	samples := synthSamples(dims, 10)

	opts := DefaultCompressorOptions()
	opts.SetTargetBpp(2.0)
	opts.UseZstd = true
	c := NewCompressor(opts)
	data, err := c.Compress(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	decoded, gotDims, err := d.Decompress(data)
	if err != nil {
		t.Fatal(err)
	}
	if gotDims != dims {
		t.Fatalf("dims = %+v, want %+v", gotDims, dims)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded length %d, want %d", len(decoded), len(samples))
	}
}

func TestCompressConstantField3D(t *testing.T) {
	dims := sample.Dims{Nx: 8, Ny: 8, Nz: 8}
	samples := make([]float64, dims.Len())
	for i := range samples {
		samples[i] = 3.25
	}

	opts := DefaultCompressorOptions()
	opts.SetTargetBpp(2.0)
	c := NewCompressor(opts)
	data, err := c.Compress(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	decoded, _, err := d.Decompress(data)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range decoded {
		if v != 3.25 {
			t.Fatalf("decoded[%d] = %v, want 3.25", i, v)
		}
	}
}

func TestCompressTargetPWEGuarantee(t *testing.T) {
	dims := sample.Dims{Nx: 32, Ny: 32, Nz: 1}
	samples := synthSamples(dims, 500)
	const tol = 0.5

	opts := DefaultCompressorOptions()
	opts.SetTargetPWE(tol)
	c := NewCompressor(opts)
	data, err := c.Compress(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	decoded, _, err := d.Decompress(data)
	if err != nil {
		t.Fatal(err)
	}
	if e := maxAbsErr(samples, decoded); e > tol {
		t.Fatalf("max abs error %v exceeds PWE target %v", e, tol)
	}
}

func TestCompressTargetPWEGuarantee3DChunked(t *testing.T) {
	dims := sample.Dims{Nx: 16, Ny: 16, Nz: 16}
	samples := synthSamples(dims, 200)
	const tol = 0.75

	opts := DefaultCompressorOptions()
	opts.SetTargetPWE(tol)
	opts.ChunkDims = chunked.Dims{Nx: 8, Ny: 8, Nz: 8}
	c := NewCompressor(opts)
	data, err := c.Compress(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	decoded, _, err := d.Decompress(data)
	if err != nil {
		t.Fatal(err)
	}
	if e := maxAbsErr(samples, decoded); e > tol {
		t.Fatalf("max abs error %v exceeds PWE target %v", e, tol)
	}
}

func TestCompressTargetPSNR(t *testing.T) {
	dims := sample.Dims{Nx: 32, Ny: 32, Nz: 1}
	samples := synthSamples(dims, 80)

	opts := DefaultCompressorOptions()
	opts.SetTargetPSNR(40)
	c := NewCompressor(opts)
	data, err := c.Compress(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	decoded, _, err := d.Decompress(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := psnr(samples, decoded); got < 40 {
		t.Fatalf("achieved PSNR %v dB, want >= 40", got)
	}
}

func TestCompressRejectsMismatchedDims(t *testing.T) {
	dims := sample.Dims{Nx: 8, Ny: 8, Nz: 1}
	samples := make([]float64, 10)

	c := NewCompressor(DefaultCompressorOptions())
	if _, err := c.Compress(samples, dims); err == nil {
		t.Fatal("expected an error for a mismatched sample count")
	}
}

func TestCompressFloat32RoundTrip(t *testing.T) {
	dims := sample.Dims{Nx: 32, Ny: 32, Nz: 1}
	samples := make([]float32, dims.Len())
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) * 0.09))
	}

	opts := DefaultCompressorOptions()
	opts.SetTargetBpp(4.0)
	c := NewCompressor(opts)
	data, err := c.CompressFloat32(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	decoded, gotDims, err := d.DecompressFloat32(data)
	if err != nil {
		t.Fatal(err)
	}
	if gotDims != dims {
		t.Fatalf("dims = %+v, want %+v", gotDims, dims)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded length %d, want %d", len(decoded), len(samples))
	}

	m, err := decodeMeta(data)
	if err != nil {
		t.Fatal(err)
	}
	if !m.isFloat() {
		t.Fatal("stream compressed via CompressFloat32 should have the is-float flag set")
	}
}

func TestCompressFloat32TargetPWEGuaranteeSurvivesNarrowing(t *testing.T) {
	dims := sample.Dims{Nx: 32, Ny: 32, Nz: 1}
	samples := make([]float32, dims.Len())
	for i := range samples {
		samples[i] = float32(500 * math.Sin(float64(i)*0.07))
	}
	const tol = 0.5

	opts := DefaultCompressorOptions()
	opts.SetTargetPWE(tol)
	c := NewCompressor(opts)
	data, err := c.CompressFloat32(samples, dims)
	if err != nil {
		t.Fatal(err)
	}

	d := NewDecompressor()
	decoded, _, err := d.DecompressFloat32(data)
	if err != nil {
		t.Fatal(err)
	}
	var maxErr float64
	for i, orig := range samples {
		if e := math.Abs(float64(orig) - float64(decoded[i])); e > maxErr {
			maxErr = e
		}
	}
	if maxErr > tol {
		t.Fatalf("max abs error %v exceeds PWE target %v after float32 narrowing", maxErr, tol)
	}
}

func TestCompressRejectsTooLowBpp(t *testing.T) {
	dims := sample.Dims{Nx: 64, Ny: 64, Nz: 1}
	samples := synthSamples(dims, 1)

	opts := DefaultCompressorOptions()
	opts.SetTargetBpp(1e-6)
	c := NewCompressor(opts)
	if _, err := c.Compress(samples, dims); err == nil {
		t.Fatal("expected an error when the bit budget cannot hold the fixed headers")
	}
}

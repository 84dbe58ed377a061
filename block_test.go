package wavespeck

import (
	"context"
	"math"
	"testing"

	"github.com/mrjoshuak/wavespeck/internal/condition"
	"github.com/mrjoshuak/wavespeck/internal/dwt"
	"github.com/mrjoshuak/wavespeck/internal/sperr"
)

func synthBlock(n int, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = scale * math.Sin(float64(i)*0.13)
	}
	return out
}

func maxAbsDiff(a, b []float64) float64 {
	var m float64
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > m {
			m = d
		}
	}
	return m
}

func TestCodeOneBlockRoundTrip2D(t *testing.T) {
	dims := blockDims{Nx: 32, Ny: 32}
	samples := synthBlock(dims.total(), 100)

	encoded, err := codeOneBlock(context.Background(), samples, dims, blockOptions{})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeOneBlock(context.Background(), encoded, dims, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded length %d, want %d", len(decoded), len(samples))
	}
	if d := maxAbsDiff(samples, decoded); d > 1e-6 {
		t.Fatalf("max abs error %v at full precision", d)
	}
}

func TestCodeOneBlockRoundTripDyadic3D(t *testing.T) {
	dims := blockDims{Nx: 16, Ny: 16, Nz: 16}
	samples := synthBlock(dims.total(), 50)

	encoded, err := codeOneBlock(context.Background(), samples, dims, blockOptions{NumThreads: 2})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeOneBlock(context.Background(), encoded, dims, 2)
	if err != nil {
		t.Fatal(err)
	}
	if d := maxAbsDiff(samples, decoded); d > 1e-6 {
		t.Fatalf("max abs error %v at full precision", d)
	}
}

func TestCodeOneBlockRoundTripPacket3D(t *testing.T) {
	dims := blockDims{Nx: 64, Ny: 64, Nz: 17}
	samples := synthBlock(dims.total(), 10)

	encoded, err := codeOneBlock(context.Background(), samples, dims, blockOptions{NumThreads: 4})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeOneBlock(context.Background(), encoded, dims, 4)
	if err != nil {
		t.Fatal(err)
	}
	if d := maxAbsDiff(samples, decoded); d > 1e-6 {
		t.Fatalf("max abs error %v at full precision", d)
	}
}

func TestCodeOneBlockConstantField(t *testing.T) {
	dims := blockDims{Nx: 8, Ny: 8, Nz: 8}
	samples := make([]float64, dims.total())
	for i := range samples {
		samples[i] = 7.5
	}

	encoded, err := codeOneBlock(context.Background(), samples, dims, blockOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(encoded) != 17 {
		t.Fatalf("constant-field block encoded to %d bytes, want the bare 17-byte conditioner header", len(encoded))
	}
	decoded, err := decodeOneBlock(context.Background(), encoded, dims, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range decoded {
		if v != 7.5 {
			t.Fatalf("decoded[%d] = %v, want 7.5", i, v)
		}
	}
}

func TestCodeOneBlockTargetBitsReducesStreamSize(t *testing.T) {
	dims := blockDims{Nx: 32, Ny: 32}
	samples := synthBlock(dims.total(), 100)

	full, err := codeOneBlock(context.Background(), samples, dims, blockOptions{})
	if err != nil {
		t.Fatal(err)
	}
	capped, err := codeOneBlock(context.Background(), samples, dims, blockOptions{TargetBits: 256})
	if err != nil {
		t.Fatal(err)
	}
	if len(capped) >= len(full) {
		t.Fatalf("bit-capped stream (%d bytes) should be shorter than full precision (%d bytes)", len(capped), len(full))
	}
	if _, err := decodeOneBlock(context.Background(), capped, dims, 0); err != nil {
		t.Fatalf("decoding a rate-capped stream should not error: %v", err)
	}
}

func TestCodeOneBlockPWEGuarantee(t *testing.T) {
	dims := blockDims{Nx: 32, Ny: 32}
	samples := synthBlock(dims.total(), 1000)
	const tol = 0.25

	// A tight rate cap forces a lot of residual for SPERR to correct.
	encoded, err := codeOneBlock(context.Background(), samples, dims, blockOptions{TargetBits: 512, Tolerance: tol})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeOneBlock(context.Background(), encoded, dims, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d := maxAbsDiff(samples, decoded); d > tol {
		t.Fatalf("max abs error %v exceeds PWE tolerance %v", d, tol)
	}
}

func TestCodeOneBlockPWENoOutliersWhenAlreadyWithinTolerance(t *testing.T) {
	dims := blockDims{Nx: 16, Ny: 16}
	samples := synthBlock(dims.total(), 1)

	encoded, err := codeOneBlock(context.Background(), samples, dims, blockOptions{Tolerance: 10})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := decodeOneBlock(context.Background(), encoded, dims, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d := maxAbsDiff(samples, decoded); d > 10 {
		t.Fatalf("max abs error %v exceeds PWE tolerance 10", d)
	}

	rest := encoded[condition.HeaderSize:]
	speckLen, err := codedStreamByteLen(rest, dwt.PlanVolume(dims.Nx, dims.Ny, dims.nz()))
	if err != nil {
		t.Fatal(err)
	}
	hdr, err := sperr.DecodeHeader(rest[speckLen:])
	if err != nil {
		t.Fatal(err)
	}
	if hdr.NumOutliers != 0 {
		t.Fatalf("SPERR stream carries %d outliers, want 0", hdr.NumOutliers)
	}
}

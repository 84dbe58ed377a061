package speck

import (
	"math"
	"testing"

	"github.com/mrjoshuak/wavespeck/internal/pyramid"
)

func synth(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 50*math.Sin(float64(i)*0.37) + float64(i%7) - 3
	}
	return out
}

func maxReconError(orig, got []float64) float64 {
	m := 0.0
	for i := range orig {
		if d := math.Abs(orig[i] - got[i]); d > m {
			m = d
		}
	}
	return m
}

func TestEncodeDecodeRoundTrip2D(t *testing.T) {
	nx, ny := 16, 16
	pyr := pyramid.New(nx, ny, 1, 2, false)
	coeffs := synth(nx * ny)

	stream, err := Encode(coeffs, pyr, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(stream, pyr)
	if err != nil {
		t.Fatal(err)
	}
	if err := maxReconErrorWithinBound(t, coeffs, got, 1e-6); err != nil {
		t.Fatal(err)
	}
}

func maxReconErrorWithinBound(t *testing.T, orig, got []float64, bound float64) error {
	t.Helper()
	if e := maxReconError(orig, got); e > bound {
		t.Fatalf("max reconstruction error %v exceeds bound %v", e, bound)
	}
	return nil
}

func TestEncodeDecodeRoundTrip3D(t *testing.T) {
	nx, ny, nz := 8, 8, 8
	pyr := pyramid.New(nx, ny, nz, 1, true)
	coeffs := synth(nx * ny * nz)

	stream, err := Encode(coeffs, pyr, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(stream, pyr)
	if err != nil {
		t.Fatal(err)
	}
	maxReconErrorWithinBound(t, coeffs, got, 1e-6)
}

func TestEncodeDecodeZeroLevels(t *testing.T) {
	// dims too small to support any DWT level: a single Type-S root
	// covering the whole buffer, no Type-I residual.
	pyr := pyramid.New(4, 4, 1, 0, false)
	coeffs := synth(16)

	stream, err := Encode(coeffs, pyr, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(stream, pyr)
	if err != nil {
		t.Fatal(err)
	}
	maxReconErrorWithinBound(t, coeffs, got, 1e-6)
}

func TestAllZeroCoefficients(t *testing.T) {
	pyr := pyramid.New(8, 8, 1, 1, false)
	coeffs := make([]float64, 64)

	stream, err := Encode(coeffs, pyr, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(stream, pyr)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != 0 {
			t.Fatalf("got[%d] = %v, want 0", i, v)
		}
	}
}

func TestTargetBitsProducesShorterStream(t *testing.T) {
	nx, ny := 32, 32
	pyr := pyramid.New(nx, ny, 1, 2, false)
	coeffs := synth(nx * ny)

	full, err := Encode(coeffs, pyr, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	capped, err := Encode(coeffs, pyr, Options{TargetBits: 256, MinBitplane: minThresholdBitplane})
	if err != nil {
		t.Fatal(err)
	}
	if len(capped) >= len(full) {
		t.Fatalf("capped stream (%d bytes) should be shorter than full stream (%d bytes)", len(capped), len(full))
	}

	got, err := Decode(capped, pyr)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(coeffs) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(coeffs))
	}
	// A heavily truncated stream must still decode without error, even
	// though reconstruction is coarse.
	if e := maxReconError(coeffs, got); e > 200 {
		t.Fatalf("max reconstruction error %v implausibly large for a truncated stream", e)
	}
}

func TestTruncatedStreamDecodesWithoutError(t *testing.T) {
	nx, ny := 16, 16
	pyr := pyramid.New(nx, ny, 1, 2, false)
	coeffs := synth(nx * ny)

	full, err := Encode(coeffs, pyr, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	half := full[:HeaderSize+(len(full)-HeaderSize)/2]
	// Patch the header's stream_length_bits down so Decode's bookkeeping
	// matches the actual truncated payload length available.
	hdr, err := DecodeHeader(half)
	if err != nil {
		t.Fatal(err)
	}
	avail := uint32((len(half) - HeaderSize) * 8)
	if hdr.StreamLengthBits > avail {
		hdr.StreamLengthBits = avail
		wire := hdr.Encode()
		copy(half[:HeaderSize], wire[:])
	}

	got, err := Decode(half, pyr)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(coeffs) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(coeffs))
	}
}

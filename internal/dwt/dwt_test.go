package dwt

import (
	"math"
	"testing"
)

func maxAbs(x []float64) float64 {
	m := 0.0
	for _, v := range x {
		if a := math.Abs(v); a > m {
			m = a
		}
	}
	return m
}

func TestForward1DInverse1DRoundTrip(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 8, 9, 16, 17, 63, 64, 100} {
		data := make([]float64, n)
		for i := range data {
			data[i] = math.Sin(float64(i)) * 10
		}
		orig := append([]float64(nil), data...)

		Forward1D(data, n)
		Inverse1D(data, n)

		tol := 1e-9 * math.Max(1, maxAbs(orig))
		for i := range data {
			if math.Abs(data[i]-orig[i]) > tol {
				t.Fatalf("n=%d: roundtrip[%d] = %v, want %v (tol %v)", n, i, data[i], orig[i], tol)
			}
		}
	}
}

func TestMultiLevel2DRoundTrip(t *testing.T) {
	for _, dims := range [][2]int{{64, 64}, {37, 53}, {128, 17}} {
		nx, ny := dims[0], dims[1]
		data := make([]float64, nx*ny)
		for i := range data {
			data[i] = math.Cos(float64(i)*0.3) * 5
		}
		orig := append([]float64(nil), data...)
		levels := LevelsForDim(min(nx, ny))
		if levels == 0 {
			levels = 1
		}

		ForwardMultiLevel2D(data, nx, ny, levels)
		InverseMultiLevel2D(data, nx, ny, levels)

		tol := 1e-9 * math.Max(1, maxAbs(orig))
		for i := range data {
			if math.Abs(data[i]-orig[i]) > tol {
				t.Fatalf("dims=%v: roundtrip[%d] = %v, want %v (tol %v)", dims, i, data[i], orig[i], tol)
			}
		}
	}
}

func TestDyadic3DRoundTrip(t *testing.T) {
	nx, ny, nz := 16, 16, 16
	data := make([]float64, nx*ny*nz)
	for i := range data {
		data[i] = math.Sin(float64(i) * 0.1)
	}
	orig := append([]float64(nil), data...)

	plan := PlanVolume(nx, ny, nz)
	if plan.Variant != Dyadic3D {
		t.Fatalf("expected Dyadic3D for a cube, got %v", plan.Variant)
	}

	ForwardDyadic3D(data, nx, ny, nz, plan.LevelsXY)
	InverseDyadic3D(data, nx, ny, nz, plan.LevelsXY)

	tol := 1e-9 * math.Max(1, maxAbs(orig))
	for i := range data {
		if math.Abs(data[i]-orig[i]) > tol {
			t.Fatalf("roundtrip[%d] = %v, want %v (tol %v)", i, data[i], orig[i], tol)
		}
	}
}

func TestPacket3DRoundTrip(t *testing.T) {
	// A thin volume: xy axes support more levels than z does, forcing
	// the Packet3D variant.
	nx, ny, nz := 64, 64, 17
	data := make([]float64, nx*ny*nz)
	for i := range data {
		data[i] = math.Cos(float64(i) * 0.05)
	}
	orig := append([]float64(nil), data...)

	plan := PlanVolume(nx, ny, nz)
	if plan.Variant != Packet3D {
		t.Fatalf("expected Packet3D for a thin volume, got %v", plan.Variant)
	}

	ForwardPacket3D(data, nx, ny, nz, plan.LevelsXY, plan.LevelsZ)
	InversePacket3D(data, nx, ny, nz, plan.LevelsXY, plan.LevelsZ)

	tol := 1e-9 * math.Max(1, maxAbs(orig))
	for i := range data {
		if math.Abs(data[i]-orig[i]) > tol {
			t.Fatalf("roundtrip[%d] = %v, want %v (tol %v)", i, data[i], orig[i], tol)
		}
	}
}

func TestLevelsForDim(t *testing.T) {
	cases := map[int]int{
		1: 0, 7: 0, 8: 0, 15: 0,
		16: 1, 31: 1,
		32: 2, 63: 2,
		64: 3, 127: 3,
		128: 4,
	}
	for n, want := range cases {
		if got := LevelsForDim(n); got != want {
			t.Errorf("LevelsForDim(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestPlanVolumePicksPlain2DForFlatVolumes(t *testing.T) {
	plan := PlanVolume(64, 64, 1)
	if plan.Variant != Plain2D {
		t.Fatalf("expected Plain2D, got %v", plan.Variant)
	}
}

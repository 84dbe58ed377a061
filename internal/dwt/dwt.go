// Package dwt implements the CDF 9/7 biorthogonal discrete wavelet
// transform used throughout wavespeck (spec §4.D): a 1-D lifting
// kernel with whole-sample symmetric boundary extension, separable
// 2-D and 3-D dyadic drivers, and a 3-D wavelet-packet fallback for
// volumes whose axes disagree on how many decomposition levels they
// support.
//
// The lifting step structure and scaling constants are grounded on
// the teacher's Forward97/Inverse97 (internal/dwt/dwt.go in
// mrjoshuak-go-jpeg2000): the boundary terms there already implement
// whole-sample symmetric extension via the doubling trick (e.g.
// `2*alpha97*data[length-2]`), which is exactly what spec §4.D calls
// for, so the math is kept and only reorganized: three dimensions
// instead of one, float64 only (the reversible 5-3 integer kernel is
// out of scope per the Non-goals), and an explicit level-count policy.
package dwt

import "math"

// CDF 9/7 lifting coefficients, accurate to better than 1e-15 (spec
// §4.D requires at least that precision and the same constants on
// both encode and decode).
const (
	alpha   = -1.586134342059924
	beta    = -0.052980118572961
	gamma   = 0.882911075530934
	delta   = 0.443506852043971
	epsilon = 1.230174104914001
	invEps  = 1.0 / epsilon
)

// Forward1D performs the forward CDF 9/7 transform on data[:length]
// in place, leaving low-pass coefficients in the first half and
// high-pass in the second (after deinterleaving). Boundary handling
// covers both the even-length and odd-length cases via whole-sample
// symmetric extension; data windows always begin at a subband origin
// in this port, so the "phase" variants spec.md distinguishes for
// mid-array tile windows coincide with these two cases.
func Forward1D(data []float64, length int) {
	if length < 2 {
		if length == 1 {
			data[0] *= math.Sqrt2
		}
		return
	}

	// Step 1: predict odd samples.
	for i := 1; i < length-1; i += 2 {
		data[i] += alpha * (data[i-1] + data[i+1])
	}
	if length&1 == 0 {
		data[length-1] += 2 * alpha * data[length-2]
	}

	// Step 2: update even samples.
	data[0] += 2 * beta * data[1]
	for i := 2; i < length-1; i += 2 {
		data[i] += beta * (data[i-1] + data[i+1])
	}
	if length&1 != 0 {
		data[length-1] += 2 * beta * data[length-2]
	}

	// Step 3: predict odd samples.
	for i := 1; i < length-1; i += 2 {
		data[i] += gamma * (data[i-1] + data[i+1])
	}
	if length&1 == 0 {
		data[length-1] += 2 * gamma * data[length-2]
	}

	// Step 4: update even samples.
	data[0] += 2 * delta * data[1]
	for i := 2; i < length-1; i += 2 {
		data[i] += delta * (data[i-1] + data[i+1])
	}
	if length&1 != 0 {
		data[length-1] += 2 * delta * data[length-2]
	}

	// Step 5: scale.
	for i := 0; i < length; i += 2 {
		data[i] *= invEps
	}
	for i := 1; i < length; i += 2 {
		data[i] *= epsilon
	}

	deinterleave(data, length)
}

// Inverse1D is the exact numerical inverse of Forward1D.
func Inverse1D(data []float64, length int) {
	if length < 2 {
		if length == 1 {
			data[0] *= 1.0 / math.Sqrt2
		}
		return
	}

	interleave(data, length)

	for i := 0; i < length; i += 2 {
		data[i] *= epsilon
	}
	for i := 1; i < length; i += 2 {
		data[i] *= invEps
	}

	data[0] -= 2 * delta * data[1]
	for i := 2; i < length-1; i += 2 {
		data[i] -= delta * (data[i-1] + data[i+1])
	}
	if length&1 != 0 {
		data[length-1] -= 2 * delta * data[length-2]
	}

	for i := 1; i < length-1; i += 2 {
		data[i] -= gamma * (data[i-1] + data[i+1])
	}
	if length&1 == 0 {
		data[length-1] -= 2 * gamma * data[length-2]
	}

	data[0] -= 2 * beta * data[1]
	for i := 2; i < length-1; i += 2 {
		data[i] -= beta * (data[i-1] + data[i+1])
	}
	if length&1 != 0 {
		data[length-1] -= 2 * beta * data[length-2]
	}

	for i := 1; i < length-1; i += 2 {
		data[i] -= alpha * (data[i-1] + data[i+1])
	}
	if length&1 == 0 {
		data[length-1] -= 2 * alpha * data[length-2]
	}
}

// deinterleave rearranges data[:length] from interleaved (LHLH...) to
// separated (LL...HH...).
func deinterleave(data []float64, length int) {
	temp := make([]float64, length)
	half := (length + 1) / 2
	for i, j := 0, 0; i < length; i, j = i+2, j+1 {
		temp[j] = data[i]
	}
	for i, j := 1, half; i < length; i, j = i+2, j+1 {
		temp[j] = data[i]
	}
	copy(data[:length], temp)
}

// interleave is the inverse of deinterleave.
func interleave(data []float64, length int) {
	temp := append([]float64(nil), data[:length]...)
	half := (length + 1) / 2
	for i, j := 0, 0; j < half; i, j = i+2, j+1 {
		data[i] = temp[j]
	}
	for i, j := 1, half; j < length; i, j = i+2, j+1 {
		data[i] = temp[j]
	}
}

// Forward2D performs a single-level separable forward transform over
// an nx*ny plane stored row-major (x fastest) with row stride nx.
func Forward2D(data []float64, nx, ny int) {
	for y := 0; y < ny; y++ {
		Forward1D(data[y*nx:(y+1)*nx], nx)
	}
	col := make([]float64, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			col[y] = data[y*nx+x]
		}
		Forward1D(col, ny)
		for y := 0; y < ny; y++ {
			data[y*nx+x] = col[y]
		}
	}
}

// Inverse2D is the single-level inverse of Forward2D.
func Inverse2D(data []float64, nx, ny int) {
	col := make([]float64, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			col[y] = data[y*nx+x]
		}
		Inverse1D(col, ny)
		for y := 0; y < ny; y++ {
			data[y*nx+x] = col[y]
		}
	}
	for y := 0; y < ny; y++ {
		Inverse1D(data[y*nx:(y+1)*nx], nx)
	}
}

// ForwardMultiLevel2D applies Forward2D recursively `levels` times,
// each time on the LL quadrant produced by the previous level.
func ForwardMultiLevel2D(data []float64, nx, ny, levels int) {
	w, h := nx, ny
	for l := 0; l < levels; l++ {
		forward2DRegion(data, nx, w, h)
		w, h = (w+1)/2, (h+1)/2
	}
}

// InverseMultiLevel2D is the exact inverse of ForwardMultiLevel2D.
func InverseMultiLevel2D(data []float64, nx, ny, levels int) {
	dims := make([][2]int, levels)
	w, h := nx, ny
	for l := 0; l < levels; l++ {
		dims[l] = [2]int{w, h}
		w, h = (w+1)/2, (h+1)/2
	}
	for l := levels - 1; l >= 0; l-- {
		inverse2DRegion(data, nx, dims[l][0], dims[l][1])
	}
}

// forward2DRegion applies Forward2D to the top-left w*h region of an
// nx-wide buffer (the region being decomposed at the current level).
func forward2DRegion(data []float64, stride, w, h int) {
	for y := 0; y < h; y++ {
		Forward1D(data[y*stride:y*stride+w], w)
	}
	col := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*stride+x]
		}
		Forward1D(col, h)
		for y := 0; y < h; y++ {
			data[y*stride+x] = col[y]
		}
	}
}

func inverse2DRegion(data []float64, stride, w, h int) {
	col := make([]float64, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y*stride+x]
		}
		Inverse1D(col, h)
		for y := 0; y < h; y++ {
			data[y*stride+x] = col[y]
		}
	}
	for y := 0; y < h; y++ {
		Inverse1D(data[y*stride:y*stride+w], w)
	}
}

// LevelsForDim computes floor(log2(n/8))+1, the per-axis decomposition
// level count from spec §4.D, capped so the coarsest subband along
// this axis keeps at least 8 samples. Dimensions smaller than 16
// yield 0 levels (no room for even one halving to stay >= 8).
func LevelsForDim(n int) int {
	if n < 16 {
		return 0
	}
	levels := 0
	for n/(1<<uint(levels+1)) >= 8 {
		levels++
	}
	return levels
}

// Variant selects which 3-D decomposition strategy a volume uses.
// Encoder and decoder must agree on the same variant for the same
// dims, so PlanVolume is the single source of truth for both sides.
type Variant int

const (
	// Plain2D means nz<=1: no z-axis transform at all.
	Plain2D Variant = iota
	// Dyadic3D means every axis shares one level count, decomposed
	// together level by level (spec §4.D "one level is (xy plane) x nz
	// 2-D transforms followed by nx*ny 1-D transforms along z").
	Dyadic3D
	// Packet3D means the xy levels and z levels disagree (e.g. a thin
	// volume), so the two axes are decomposed independently: full
	// spatial decomposition per z-slice, then full z decomposition per
	// column (spec §4.D wavelet-packet fallback).
	Packet3D
)

// Plan is the decomposition strategy and level counts for one volume,
// computed once and reused identically by both encode and decode.
type Plan struct {
	Variant  Variant
	LevelsXY int
	LevelsZ  int
}

// PlanVolume decides how nx*ny*nz should be decomposed.
func PlanVolume(nx, ny, nz int) Plan {
	if nz <= 1 {
		return Plan{Variant: Plain2D, LevelsXY: LevelsForDim(min(nx, ny))}
	}
	lxy := LevelsForDim(min(nx, ny))
	lz := LevelsForDim(nz)
	if lxy == lz {
		return Plan{Variant: Dyadic3D, LevelsXY: lxy, LevelsZ: lz}
	}
	return Plan{Variant: Packet3D, LevelsXY: lxy, LevelsZ: lz}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// zColumn copies the first d samples of the z column at (x,y) of an
// nx*ny*nz buffer into buf; writeZColumn writes them back.
func zColumn(data []float64, nx, ny, x, y, d int, buf []float64) {
	stride := nx * ny
	base := y*nx + x
	for z := 0; z < d; z++ {
		buf[z] = data[base+z*stride]
	}
}

func writeZColumn(data []float64, nx, ny, x, y, d int, buf []float64) {
	stride := nx * ny
	base := y*nx + x
	for z := 0; z < d; z++ {
		data[base+z*stride] = buf[z]
	}
}

// ForwardDyadic3D implements the Dyadic3D variant: `levels` rounds of
// (single-level 2-D transform on each of the current d z-slices of the
// current w*h region) followed by (single-level 1-D z transform on
// each of the w*h columns), recursing on the resulting w/2*h/2*d/2 LLL
// octant.
func ForwardDyadic3D(data []float64, nx, ny, nz, levels int) {
	w, h, d := nx, ny, nz
	col := make([]float64, nz)
	for l := 0; l < levels; l++ {
		for z := 0; z < d; z++ {
			forward2DRegion(data[z*nx*ny:], nx, w, h)
		}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				zColumn(data, nx, ny, x, y, d, col)
				Forward1D(col[:d], d)
				writeZColumn(data, nx, ny, x, y, d, col)
			}
		}
		w, h, d = (w+1)/2, (h+1)/2, (d+1)/2
	}
}

// InverseDyadic3D is the exact inverse of ForwardDyadic3D.
func InverseDyadic3D(data []float64, nx, ny, nz, levels int) {
	type extent struct{ w, h, d int }
	extents := make([]extent, levels)
	w, h, d := nx, ny, nz
	for l := 0; l < levels; l++ {
		extents[l] = extent{w, h, d}
		w, h, d = (w+1)/2, (h+1)/2, (d+1)/2
	}
	col := make([]float64, nz)
	for l := levels - 1; l >= 0; l-- {
		e := extents[l]
		for y := 0; y < e.h; y++ {
			for x := 0; x < e.w; x++ {
				zColumn(data, nx, ny, x, y, e.d, col)
				Inverse1D(col[:e.d], e.d)
				writeZColumn(data, nx, ny, x, y, e.d, col)
			}
		}
		for z := 0; z < e.d; z++ {
			inverse2DRegion(data[z*nx*ny:], nx, e.w, e.h)
		}
	}
}

// ForwardPacket3D implements the Packet3D variant: a full levelsXY-level
// 2-D transform independently on every one of the nz z-slices, then a
// full levelsZ-level 1-D transform independently on every (x,y) column
// of length nz.
func ForwardPacket3D(data []float64, nx, ny, nz, levelsXY, levelsZ int) {
	for z := 0; z < nz; z++ {
		ForwardMultiLevel2D(data[z*nx*ny:(z+1)*nx*ny], nx, ny, levelsXY)
	}
	col := make([]float64, nz)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			zColumn(data, nx, ny, x, y, nz, col)
			forwardMultiLevel1D(col, nz, levelsZ)
			writeZColumn(data, nx, ny, x, y, nz, col)
		}
	}
}

// InversePacket3D is the exact inverse of ForwardPacket3D.
func InversePacket3D(data []float64, nx, ny, nz, levelsXY, levelsZ int) {
	col := make([]float64, nz)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			zColumn(data, nx, ny, x, y, nz, col)
			inverseMultiLevel1D(col, nz, levelsZ)
			writeZColumn(data, nx, ny, x, y, nz, col)
		}
	}
	for z := 0; z < nz; z++ {
		InverseMultiLevel2D(data[z*nx*ny:(z+1)*nx*ny], nx, ny, levelsXY)
	}
}

// forwardMultiLevel1D applies Forward1D recursively `levels` times to
// the shrinking low-pass prefix of data[:n].
func forwardMultiLevel1D(data []float64, n, levels int) {
	length := n
	for l := 0; l < levels; l++ {
		Forward1D(data[:length], length)
		length = (length + 1) / 2
	}
}

func inverseMultiLevel1D(data []float64, n, levels int) {
	lengths := make([]int, levels)
	length := n
	for l := 0; l < levels; l++ {
		lengths[l] = length
		length = (length + 1) / 2
	}
	for l := levels - 1; l >= 0; l-- {
		Inverse1D(data[:lengths[l]], lengths[l])
	}
}

// Package pyramid implements the subband-pyramid index arithmetic
// described in spec §4.E: given a DWT level count, where each
// subband sits inside the flat coefficient buffer, and how many
// samples it holds.
//
// The coefficient buffer itself is never touched here -- this package
// is pure index math, grounded on the teacher's
// dwt.CalculateSubbands half-open-interval bookkeeping style, widened
// from a single 2-D level to the full multi-level 2-D and 3-D dyadic
// pyramids spec.md describes.
package pyramid

// Bounds is a half-open axis-aligned region inside the coefficient
// buffer: [X0,X1) x [Y0,Y1) x [Z0,Z1). 2-D regions have Z0=0, Z1=1.
type Bounds struct {
	X0, Y0, Z0 int
	X1, Y1, Z1 int
}

// Size returns the number of coefficients the region covers.
func (b Bounds) Size() int {
	return (b.X1 - b.X0) * (b.Y1 - b.Y0) * (b.Z1 - b.Z0)
}

// Pyramid describes the subband layout of an nx*ny(*nz) coefficient
// buffer decomposed to Levels levels of CDF 9/7 DWT.
type Pyramid struct {
	Nx, Ny, Nz int
	Levels     int
	ThreeD     bool

	// levelDims[l] holds the (w,h,d) of the region being split at
	// level l (1 = finest, Levels = coarsest); levelDims[0] is the
	// full nx,ny,nz extent fed to level 1.
	levelDims []dim3
}

type dim3 struct{ w, h, d int }

// New builds a Pyramid for the given coefficient buffer shape and
// decomposition level count.
func New(nx, ny, nz, levels int, threeD bool) *Pyramid {
	p := &Pyramid{Nx: nx, Ny: ny, Nz: nz, Levels: levels, ThreeD: threeD}
	if nz <= 1 {
		p.ThreeD = false
		nz = 1
	}
	p.levelDims = make([]dim3, levels+1)
	p.levelDims[0] = dim3{nx, ny, nz}
	for l := 1; l <= levels; l++ {
		prev := p.levelDims[l-1]
		d := dim3{half(prev.w), half(prev.h), prev.d}
		if p.ThreeD {
			d.d = half(prev.d)
		}
		p.levelDims[l] = d
	}
	return p
}

func half(n int) int {
	return (n + 1) / 2
}

// NumSubbands returns 3*Levels+1 for 2-D or 7*Levels+1 for 3-D dyadic
// pyramids (spec §4.E).
func (p *Pyramid) NumSubbands() int {
	if p.ThreeD {
		return 7*p.Levels + 1
	}
	return 3*p.Levels + 1
}

// bandsPerLevel is 7 for 3-D dyadic pyramids, 3 for 2-D.
func (p *Pyramid) bandsPerLevel() int {
	if p.ThreeD {
		return 7
	}
	return 3
}

// LevelFromSubband returns the DWT level a subband belongs to: 0 for
// the coarsest LL subband (index 0), otherwise 1..Levels with 1 being
// the finest detail level.
func (p *Pyramid) LevelFromSubband(idx int) int {
	if idx == 0 {
		return 0
	}
	bpl := p.bandsPerLevel()
	groupFromCoarse := (idx - 1) / bpl // 0 = coarsest detail group
	return p.Levels - groupFromCoarse
}

// SubbandBounds returns the region of the flat coefficient buffer
// subband idx occupies. Index 0 is the coarsest LL(Levels) subband;
// higher indices are finer detail bands, ordered from the coarsest
// detail group to the finest (spec §4.E, §3 "Subband pyramid").
func (p *Pyramid) SubbandBounds(idx int) Bounds {
	if idx == 0 {
		d := p.levelDims[p.Levels]
		return Bounds{0, 0, 0, d.w, d.h, z1(d)}
	}
	bpl := p.bandsPerLevel()
	groupFromCoarse := (idx - 1) / bpl
	within := (idx - 1) % bpl
	level := p.Levels - groupFromCoarse // the level this detail band was produced at
	parent := p.levelDims[level-1]      // region being split at this level
	child := p.levelDims[level]         // the LL sub-region size

	// within identifies which of the non-LL octants/quadrants this is.
	// 2-D: within 0,1,2 => HL,LH,HH (mask bits: bit0=x-high, bit1=y-high)
	// 3-D: within 0..6 => mask 1..7 over (bz<<2|by<<1|bx), LLL excluded.
	mask := within + 1
	bx := mask & 1
	by := (mask >> 1) & 1
	bz := 0
	if p.ThreeD {
		bz = (mask >> 2) & 1
	}

	x0, x1 := axisRange(bx, child.w, parent.w)
	y0, y1 := axisRange(by, child.h, parent.h)
	z0, z1v := 0, 1
	if p.ThreeD {
		z0, z1v = axisRange(bz, child.d, parent.d)
	}
	return Bounds{x0, y0, z0, x1, y1, z1v}
}

func axisRange(high, childLen, parentLen int) (lo, hi int) {
	if high == 0 {
		return 0, childLen
	}
	return childLen, parentLen
}

func z1(d dim3) int {
	if d.d <= 1 {
		return 1
	}
	return d.d
}

// SubbandSize returns the number of coefficients subband idx holds.
func (p *Pyramid) SubbandSize(idx int) int {
	return p.SubbandBounds(idx).Size()
}

// RootBounds is the initial significant-set region SPECK starts from:
// the coarsest LL subband, i.e. SubbandBounds(0).
func (p *Pyramid) RootBounds() Bounds {
	return p.SubbandBounds(0)
}

// TotalSize returns nx*ny*nz.
func (p *Pyramid) TotalSize() int {
	nz := p.Nz
	if nz < 1 {
		nz = 1
	}
	return p.Nx * p.Ny * nz
}

// Package sample provides owning, row-major sample buffers for the
// 1-D/2-D/3-D float64 arrays that flow through the wavespeck pipeline
// (spec §3 "Sample buffer").
package sample

import "github.com/mrjoshuak/wavespeck/internal/rtn"

// Dims is the shape of a sample buffer: (nx, ny, nz). 2-D data sets
// Nz to 1.
type Dims struct {
	Nx, Ny, Nz int
}

// Len returns nx*ny*nz.
func (d Dims) Len() int {
	return d.Nx * d.Ny * d.Nz
}

// Is3D reports whether the buffer has more than one z-slice.
func (d Dims) Is3D() bool {
	return d.Nz > 1
}

// Buffer is an owning, contiguous, row-major float64 sample array
// with x fastest-varying.
type Buffer struct {
	data []float64
	dims Dims
}

// CopyFrom resets buf to hold a copy of src, interpreted as the given
// dims. It returns WrongDims if len(src) != dims.Len().
func (b *Buffer) CopyFrom(src []float64, dims Dims) error {
	if len(src) != dims.Len() {
		return rtn.New(rtn.WrongDims, "len(src)=%d != product(dims)=%d", len(src), dims.Len())
	}
	b.data = append(b.data[:0], src...)
	b.dims = dims
	return nil
}

// Take resets buf to own v directly (no copy), interpreted as dims.
// It returns WrongDims if len(v) != dims.Len().
func (b *Buffer) Take(v []float64, dims Dims) error {
	if len(v) != dims.Len() {
		return rtn.New(rtn.WrongDims, "len(v)=%d != product(dims)=%d", len(v), dims.Len())
	}
	b.data = v
	b.dims = dims
	return nil
}

// View returns the buffer's contents without transferring ownership.
// The caller must not retain the slice past the buffer's next mutation.
func (b *Buffer) View() []float64 {
	return b.data
}

// Release transfers ownership of the underlying slice to the caller
// and resets the buffer to empty.
func (b *Buffer) Release() []float64 {
	v := b.data
	b.data = nil
	b.dims = Dims{}
	return v
}

// Dims returns the buffer's shape.
func (b *Buffer) Dims() Dims {
	return b.dims
}

// Len returns the number of samples currently held.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Resize reallocates the buffer to hold dims.Len() samples. Contents
// after Resize are unspecified (spec §4.B).
func (b *Buffer) Resize(dims Dims) {
	b.data = make([]float64, dims.Len())
	b.dims = dims
}

// FromFloat32 builds a Buffer by widening a []float32 input into
// internal float64 storage (spec §4.H / §9 "one-of-two tag" copy-in).
func FromFloat32(src []float32, dims Dims) (*Buffer, error) {
	if len(src) != dims.Len() {
		return nil, rtn.New(rtn.WrongDims, "len(src)=%d != product(dims)=%d", len(src), dims.Len())
	}
	wide := make([]float64, len(src))
	for i, v := range src {
		wide[i] = float64(v)
	}
	b := &Buffer{}
	_ = b.Take(wide, dims)
	return b, nil
}

// ToFloat32 narrows the buffer's contents to float32, for callers that
// requested single-precision output (spec §9 "one-of-two tag" downcast).
func (b *Buffer) ToFloat32() []float32 {
	out := make([]float32, len(b.data))
	for i, v := range b.data {
		out[i] = float32(v)
	}
	return out
}

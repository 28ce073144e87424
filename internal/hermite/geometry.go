// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package hermite holds the CPU reference implementation of the two LUT
// baking kernels (basis matmul and 4th-order finite differences) together
// with the WGSL sources that mirror them. The GPU dispatcher in
// internal/compute embeds the shaders from this package; the CPU bake path
// and the kernel tests call the Go functions directly.
package hermite

import "fmt"

// Grid padding constants. The internal grid is oversized so that every
// output texel's stencil stays in bounds:
//
//	internal size = lutRes + 2*internalPad
//	output size   = lutRes + 2*outputPad
//	start         = internalPad - outputPad
//
// A stencil reaches 2 cells from the evaluation point, and the output keeps
// a one-cell ring beyond the LUT region, so internalPad must be at least
// outputPad + 2.
const (
	internalPad = 3
	outputPad   = 1
)

// Faces is the number of cube-map faces.
const Faces = 6

// Geometry fixes the grid sizes for one LUT resolution. All sizes are
// per-face; a glyph owns Faces copies of each grid.
type Geometry struct {
	// LUTRes is the requested LUT resolution.
	LUTRes int

	// InternalSize is the padded computation grid size, LUTRes + 6.
	InternalSize int

	// OutSize is the output grid size, LUTRes + 2.
	OutSize int

	// Start offsets output coordinates into the internal grid: output
	// cell (0,0) reads internal cell (Start,Start). Always 2.
	Start int
}

// NewGeometry validates lutRes and derives the grid sizes.
func NewGeometry(lutRes int) (Geometry, error) {
	if lutRes < 2 {
		return Geometry{}, fmt.Errorf("hermite: lut resolution %d out of range (minimum 2)", lutRes)
	}
	return Geometry{
		LUTRes:       lutRes,
		InternalSize: lutRes + 2*internalPad,
		OutSize:      lutRes + 2*outputPad,
		Start:        internalPad - outputPad,
	}, nil
}

// DirsPerFace returns the number of internal-grid directions per face.
func (g Geometry) DirsPerFace() int { return g.InternalSize * g.InternalSize }

// TotalDirs returns the number of directions across all faces, which is
// also the number of intermediate values per glyph.
func (g Geometry) TotalDirs() int { return Faces * g.DirsPerFace() }

// TexelsPerFace returns the number of output texels per face.
func (g Geometry) TexelsPerFace() int { return g.OutSize * g.OutSize }

// TexelsPerGlyph returns the number of output texels per glyph.
func (g Geometry) TexelsPerGlyph() int { return Faces * g.TexelsPerFace() }

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package basis builds the spherical-harmonic basis matrix sampled over the
// six faces of a cube-mapped sphere.
//
// The glyph LUT is parameterized by a cube map: each face carries a square
// grid of directions, and the grid is oversized by a padding ring so that
// finite-difference stencils evaluated near the edge of the output region
// always have valid neighbor samples. Build produces one basis row per
// direction, face-major, ready for upload as a flat storage buffer.
package basis

import (
	"fmt"

	"github.com/chewxy/math32"
)

// InternalPadding is the number of padding cells added on each side of the
// per-face grid. Three cells cover the 4th-order stencil reach (2) plus the
// one-cell ring retained in the output for seamless sampling.
const InternalPadding = 3

// Faces is the number of cube-map faces.
const Faces = 6

// Evaluator computes basis function values for a list of unit directions.
// It returns a row-major matrix with one row per direction and
// CoeffCount(maxOrder) columns. Implementations must be pure: the same
// directions and order always produce the same values.
type Evaluator func(dirs []Direction, maxOrder int) []float32

// Direction is a unit vector on the sphere.
type Direction struct {
	X, Y, Z float32
}

// Matrix is an immutable SH basis matrix: Rows directions by Cols basis
// coefficients, flattened row-major into Data.
type Matrix struct {
	Data []float32
	Rows int
	Cols int
}

// Row returns the basis values for direction d.
func (m *Matrix) Row(d int) []float32 {
	return m.Data[d*m.Cols : (d+1)*m.Cols]
}

// Truncate returns a matrix restricted to the first cols columns. Extra
// basis columns beyond the caller's coefficient count are dropped; the
// coefficient data itself is never truncated. Truncate copies, so the
// receiver stays valid for other coefficient counts.
func (m *Matrix) Truncate(cols int) (*Matrix, error) {
	if cols > m.Cols {
		return nil, fmt.Errorf("basis: %d coefficients requested but matrix has %d columns", cols, m.Cols)
	}
	if cols == m.Cols {
		return m, nil
	}
	out := &Matrix{
		Data: make([]float32, m.Rows*cols),
		Rows: m.Rows,
		Cols: cols,
	}
	for r := 0; r < m.Rows; r++ {
		copy(out.Data[r*cols:(r+1)*cols], m.Data[r*m.Cols:r*m.Cols+cols])
	}
	return out, nil
}

// InternalGridSize returns the padded per-face grid size for a LUT
// resolution: lutRes + 2*InternalPadding.
func InternalGridSize(lutRes int) int {
	return lutRes + 2*InternalPadding
}

// FaceDirections generates the unit directions for one cube-map face over
// the padded internal grid. Grid coordinates map linearly onto [-1, 1] for
// the unpadded region; padding cells extend past the face edge and are
// pulled back onto the sphere by normalization.
//
// The grid is row-major with u varying along columns and v along rows:
// the direction at flat index row*size+col has u derived from col and v
// from row. Face axis assignment:
//
//	face 0: +X  (x=+1, y=-v, z=-u)
//	face 1: -X  (x=-1, y=-v, z=+u)
//	face 2: +Y  (y=+1, x=u,  z=v)
//	face 3: -Y  (y=-1, x=u,  z=-v)
//	face 4: +Z  (z=+1, x=u,  y=-v)
//	face 5: -Z  (z=-1, x=-u, y=-v)
func FaceDirections(face, lutRes int) []Direction {
	size := InternalGridSize(lutRes)
	step := 2.0 / float32(lutRes-1)

	dirs := make([]Direction, 0, size*size)
	for row := 0; row < size; row++ {
		v := -1 + float32(row-InternalPadding)*step
		for col := 0; col < size; col++ {
			u := -1 + float32(col-InternalPadding)*step

			var d Direction
			switch face {
			case 0:
				d = Direction{X: 1, Y: -v, Z: -u}
			case 1:
				d = Direction{X: -1, Y: -v, Z: u}
			case 2:
				d = Direction{X: u, Y: 1, Z: v}
			case 3:
				d = Direction{X: u, Y: -1, Z: -v}
			case 4:
				d = Direction{X: u, Y: -v, Z: 1}
			case 5:
				d = Direction{X: -u, Y: -v, Z: -1}
			}

			n := math32.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
			dirs = append(dirs, Direction{X: d.X / n, Y: d.Y / n, Z: d.Z / n})
		}
	}
	return dirs
}

// Directions generates the directions for all six faces, concatenated
// face-major. The result has Faces * InternalGridSize(lutRes)^2 entries.
func Directions(lutRes int) []Direction {
	size := InternalGridSize(lutRes)
	dirs := make([]Direction, 0, Faces*size*size)
	for face := 0; face < Faces; face++ {
		dirs = append(dirs, FaceDirections(face, lutRes)...)
	}
	return dirs
}

// Build evaluates the basis matrix for the given maximum SH order and LUT
// resolution, and returns it together with the internal grid size. The
// computation is deterministic; callers that need memoization wrap Build in
// a cache keyed by (maxOrder, lutRes).
//
// lutRes must be at least 2 (the coordinate step divides by lutRes-1).
func Build(eval Evaluator, maxOrder, lutRes int) (*Matrix, int, error) {
	if lutRes < 2 {
		return nil, 0, fmt.Errorf("basis: lut resolution %d out of range (minimum 2)", lutRes)
	}
	if maxOrder < 0 {
		return nil, 0, fmt.Errorf("basis: negative SH order %d", maxOrder)
	}
	if eval == nil {
		eval = Descoteaux
	}

	dirs := Directions(lutRes)
	data := eval(dirs, maxOrder)

	cols := CoeffCount(maxOrder)
	if len(data) != len(dirs)*cols {
		return nil, 0, fmt.Errorf("basis: evaluator returned %d values, want %d (%d directions x %d coefficients)",
			len(data), len(dirs)*cols, len(dirs), cols)
	}

	m := &Matrix{Data: data, Rows: len(dirs), Cols: cols}
	return m, InternalGridSize(lutRes), nil
}

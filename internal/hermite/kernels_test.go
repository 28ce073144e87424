// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hermite

import (
	"math"
	"testing"
)

func TestNewGeometry(t *testing.T) {
	g, err := NewGeometry(8)
	if err != nil {
		t.Fatalf("NewGeometry failed: %v", err)
	}
	if g.InternalSize != 14 {
		t.Errorf("InternalSize = %d, want 14", g.InternalSize)
	}
	if g.OutSize != 10 {
		t.Errorf("OutSize = %d, want 10", g.OutSize)
	}
	if g.Start != 2 {
		t.Errorf("Start = %d, want 2", g.Start)
	}
	if g.TotalDirs() != 6*14*14 {
		t.Errorf("TotalDirs = %d, want %d", g.TotalDirs(), 6*14*14)
	}
	if g.TexelsPerGlyph() != 6*10*10 {
		t.Errorf("TexelsPerGlyph = %d, want %d", g.TexelsPerGlyph(), 6*10*10)
	}

	if _, err := NewGeometry(1); err == nil {
		t.Error("expected error for resolution 1")
	}
}

func TestGeometryShapeInvariant(t *testing.T) {
	for res := 2; res <= 64; res++ {
		g, err := NewGeometry(res)
		if err != nil {
			t.Fatalf("NewGeometry(%d) failed: %v", res, err)
		}
		if g.InternalSize != res+6 {
			t.Errorf("res %d: InternalSize = %d, want %d", res, g.InternalSize, res+6)
		}
		if g.OutSize != res+2 {
			t.Errorf("res %d: OutSize = %d, want %d", res, g.OutSize, res+2)
		}
	}
}

func TestStencilStaysInBounds(t *testing.T) {
	// Every internal index touched by the stencil must stay inside
	// [0, InternalSize) for every output cell of every resolution.
	for res := 2; res <= 32; res++ {
		g, _ := NewGeometry(res)
		for ou := 0; ou < g.OutSize; ou++ {
			lo := ou + g.Start - 2
			hi := ou + g.Start + 2
			if lo < 0 || hi >= g.InternalSize {
				t.Fatalf("res %d: output cell %d touches internal range [%d, %d] outside [0, %d)",
					res, ou, lo, hi, g.InternalSize)
			}
		}
	}
}

func TestMatmulHandChecked(t *testing.T) {
	// 2 glyphs, 3 coefficients, 4 directions with hand-chosen values.
	coeffs := []float32{
		1, 2, 3, // glyph 0
		-1, 0.5, 4, // glyph 1
	}
	basisData := []float32{
		1, 0, 0, // dir 0
		0, 1, 0, // dir 1
		0, 0, 1, // dir 2
		1, 1, 1, // dir 3
	}

	dst := make([]float32, 2*4)
	Matmul(dst, coeffs, basisData, 2, 3, 4)

	want := []float32{
		1, 2, 3, 6, // glyph 0: picks each coeff, then the sum
		-1, 0.5, 4, 3.5, // glyph 1
	}
	for i, w := range want {
		if dst[i] != w {
			t.Errorf("dst[%d] = %v, want %v", i, dst[i], w)
		}
	}
}

// fillQuadratic fills one glyph's intermediate grid with samples of
// f(u, v) = u^2 + v^2 + u*v where u is the column index and v the row
// index of the internal grid, in grid units.
func fillQuadratic(geom Geometry) []float32 {
	values := make([]float32, geom.TotalDirs())
	si := geom.InternalSize
	for face := 0; face < Faces; face++ {
		base := face * geom.DirsPerFace()
		for row := 0; row < si; row++ {
			for col := 0; col < si; col++ {
				u := float32(col)
				v := float32(row)
				values[base+row*si+col] = u*u + v*v + u*v
			}
		}
	}
	return values
}

func TestFiniteDiffQuadratic(t *testing.T) {
	// On f(u,v) = u^2 + v^2 + uv the 4th-order stencil is exact:
	// df/du = 2u + v, df/dv = 2v + u, d2f/dudv = 1.
	geom, _ := NewGeometry(8)
	values := fillQuadratic(geom)

	const tol = 1e-3
	for face := 0; face < Faces; face++ {
		for ou := 0; ou < geom.OutSize; ou++ {
			for ov := 0; ov < geom.OutSize; ov++ {
				iu := float64(ou + geom.Start)
				iv := float64(ov + geom.Start)
				tex := FiniteDiffAt(values, geom, 0, face, ou, ov)

				wantVal := iu*iu + iv*iv + iu*iv
				wantDu := 2*iv + iu // u = column, stencilled along iv
				wantDv := 2*iu + iv // v = row, stencilled along iu

				if math.Abs(float64(tex.Val)-wantVal) > tol {
					t.Fatalf("face %d (%d,%d): val = %v, want %v", face, ou, ov, tex.Val, wantVal)
				}
				if math.Abs(float64(tex.Du)-wantDu) > tol {
					t.Fatalf("face %d (%d,%d): du = %v, want %v", face, ou, ov, tex.Du, wantDu)
				}
				if math.Abs(float64(tex.Dv)-wantDv) > tol {
					t.Fatalf("face %d (%d,%d): dv = %v, want %v", face, ou, ov, tex.Dv, wantDv)
				}
				if math.Abs(float64(tex.Dudv)-1) > tol {
					t.Fatalf("face %d (%d,%d): dudv = %v, want 1", face, ou, ov, tex.Dudv)
				}
			}
		}
	}
}

func TestFiniteDiffConstant(t *testing.T) {
	// A constant grid has zero derivatives everywhere.
	geom, _ := NewGeometry(4)
	values := make([]float32, geom.TotalDirs())
	for i := range values {
		values[i] = 2.5
	}

	dst := make([]float32, 4*geom.TexelsPerGlyph())
	FiniteDiffGlyph(dst, values, geom, 0)

	for i := 0; i < len(dst); i += 4 {
		if dst[i] != 2.5 {
			t.Fatalf("texel %d: val = %v, want 2.5", i/4, dst[i])
		}
		if dst[i+1] != 0 || dst[i+2] != 0 || dst[i+3] != 0 {
			t.Fatalf("texel %d: derivatives (%v, %v, %v), want zero", i/4, dst[i+1], dst[i+2], dst[i+3])
		}
	}
}

func TestFiniteDiffGlyphOffsets(t *testing.T) {
	// Two glyphs with distinct constant grids must not bleed into each
	// other's output ranges.
	geom, _ := NewGeometry(2)
	values := make([]float32, 2*geom.TotalDirs())
	for i := 0; i < geom.TotalDirs(); i++ {
		values[i] = 1
		values[geom.TotalDirs()+i] = -3
	}

	dst := make([]float32, 2*4*geom.TexelsPerGlyph())
	FiniteDiffGlyph(dst, values, geom, 0)
	FiniteDiffGlyph(dst, values, geom, 1)

	half := 4 * geom.TexelsPerGlyph()
	for i := 0; i < half; i += 4 {
		if dst[i] != 1 {
			t.Fatalf("glyph 0 texel %d: val = %v, want 1", i/4, dst[i])
		}
	}
	for i := half; i < 2*half; i += 4 {
		if dst[i] != -3 {
			t.Fatalf("glyph 1 texel %d: val = %v, want -3", (i-half)/4, dst[i])
		}
	}
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// CPU mirror of shaders/matmul.wgsl and shaders/finite_diff.wgsl. The
// per-index functions correspond to single shader invocations; loop order
// in the batch helpers is irrelevant to the results.

package hermite

// 4th-order central-difference coefficients: f' ~ c1*(f(+1)-f(-1)) + c2*(f(+2)-f(-2)).
const (
	c1 = float32(8.0 / 12.0)
	c2 = float32(-1.0 / 12.0)
)

// MatmulAt computes one intermediate value: the dot product of glyph g's
// coefficient row with direction d's basis row. Mirrors one invocation of
// matmul.wgsl.
func MatmulAt(coeffs, basisData []float32, nCoeffs, g, d int) float32 {
	var acc float32
	cOff := g * nCoeffs
	bOff := d * nCoeffs
	for c := 0; c < nCoeffs; c++ {
		acc += coeffs[cOff+c] * basisData[bOff+c]
	}
	return acc
}

// Matmul fills dst[g*totalDirs+d] for every (glyph, direction) pair.
// dst must have glyphs*totalDirs elements, coeffs glyphs*nCoeffs, and
// basisData totalDirs*nCoeffs.
func Matmul(dst, coeffs, basisData []float32, glyphs, nCoeffs, totalDirs int) {
	for g := 0; g < glyphs; g++ {
		for d := 0; d < totalDirs; d++ {
			dst[g*totalDirs+d] = MatmulAt(coeffs, basisData, nCoeffs, g, d)
		}
	}
}

// Texel is one Hermite LUT record: the function value and its u, v and
// cross derivatives at an output grid cell.
type Texel struct {
	Val, Du, Dv, Dudv float32
}

// duAt evaluates the u-derivative stencil (along the column axis) at
// internal row iu, column iv of the face grid starting at base.
func duAt(values []float32, base, si, iu, iv int) float32 {
	row := base + iu*si
	return c1*(values[row+iv+1]-values[row+iv-1]) +
		c2*(values[row+iv+2]-values[row+iv-2])
}

// FiniteDiffAt computes the Hermite record for output cell (ou, ov) of one
// glyph face. values holds the intermediate grid for all glyphs in the
// chunk, laid out glyph-major then face-major. Mirrors one invocation of
// finite_diff.wgsl: neighboring u-derivatives are recomputed rather than
// shared between texels, so every call is independent.
func FiniteDiffAt(values []float32, geom Geometry, g, face, ou, ov int) Texel {
	si := geom.InternalSize
	iu := ou + geom.Start
	iv := ov + geom.Start
	base := g*Faces*geom.DirsPerFace() + face*geom.DirsPerFace()

	val := values[base+iu*si+iv]
	du := duAt(values, base, si, iu, iv)
	dv := c1*(values[base+(iu+1)*si+iv]-values[base+(iu-1)*si+iv]) +
		c2*(values[base+(iu+2)*si+iv]-values[base+(iu-2)*si+iv])
	dudv := c1*(duAt(values, base, si, iu+1, iv)-duAt(values, base, si, iu-1, iv)) +
		c2*(duAt(values, base, si, iu+2, iv)-duAt(values, base, si, iu-2, iv))

	return Texel{Val: val, Du: du, Dv: dv, Dudv: dudv}
}

// FiniteDiffGlyph writes the records for all faces of one glyph into dst,
// 4 floats per texel in (val, du, dv, dudv) order. dst must hold
// 4*geom.TexelsPerGlyph() floats at the glyph's offset.
func FiniteDiffGlyph(dst, values []float32, geom Geometry, g int) {
	s := geom.OutSize
	off := g * geom.TexelsPerGlyph() * 4
	for face := 0; face < Faces; face++ {
		for ou := 0; ou < s; ou++ {
			for ov := 0; ov < s; ov++ {
				t := FiniteDiffAt(values, geom, g, face, ou, ov)
				dst[off] = t.Val
				dst[off+1] = t.Du
				dst[off+2] = t.Dv
				dst[off+3] = t.Dudv
				off += 4
			}
		}
	}
}

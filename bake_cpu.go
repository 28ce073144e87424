// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shglyph

import (
	"github.com/gogpu/shglyph/basis"
	"github.com/gogpu/shglyph/internal/hermite"
)

// BakeCPU populates dst on the CPU, running the same kernels as the GPU
// path as a parallel map over glyphs. It is the fallback strategy behind
// Bake and is always available.
func (b *Baker) BakeCPU(coeffs []float32, nCoeffs, maxOrder int, dst *LUT) error {
	glyphs, err := b.validateBake(coeffs, nCoeffs, maxOrder, dst)
	if err != nil {
		return err
	}

	m, err := b.basisFor(maxOrder, dst.Geom.LUTRes, nCoeffs)
	if err != nil {
		return err
	}

	geom := dst.Geom
	stride := geom.TexelsPerGlyph() * 4

	start := 0
	for i := range dst.Chunks {
		c := &dst.Chunks[i]
		chunkStart := start

		var scratch []float32
		if dst.HalfPrecision {
			scratch = make([]float32, c.Glyphs*stride)
		}

		b.pool.ExecuteN(c.Glyphs, func(j int) {
			out := c.Float32
			if dst.HalfPrecision {
				out = scratch
			}
			bakeGlyphCPU(out[j*stride:(j+1)*stride], coeffs, m, nCoeffs, geom, chunkStart+j)
		})

		if dst.HalfPrecision {
			narrowHalf(c.Half, scratch)
		}
		c.Updated = true
		start += c.Glyphs
	}

	slogger().Debug("shglyph: CPU bake complete",
		"glyphs", glyphs,
		"chunks", len(dst.Chunks),
		"workers", b.pool.Workers(),
		"lut_res", geom.LUTRes)
	return nil
}

// bakeGlyphCPU runs both kernel passes for one glyph, writing 4 floats
// per texel into dst. The intermediate value grid is glyph-local, so the
// work items of one chunk are fully independent.
func bakeGlyphCPU(dst, coeffs []float32, m *basis.Matrix, nCoeffs int, geom Geometry, g int) {
	values := make([]float32, geom.TotalDirs())
	for d := range values {
		values[d] = hermite.MatmulAt(coeffs, m.Data, nCoeffs, g, d)
	}
	hermite.FiniteDiffGlyph(dst, values, geom, 0)
}

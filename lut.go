// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shglyph

import (
	"fmt"

	"github.com/gogpu/shglyph/internal/hermite"
)

// Geometry fixes the grid sizes for one LUT resolution. See NewGeometry.
type Geometry = hermite.Geometry

// Faces is the number of cube-map faces in a LUT.
const Faces = hermite.Faces

// NewGeometry validates lutRes and derives the grid sizes: the padded
// internal grid is lutRes+6 cells per side, the output grid lutRes+2 (one
// retained ring for seamless sampling), and output cell (0,0) reads
// internal cell (2,2).
func NewGeometry(lutRes int) (Geometry, error) {
	return hermite.NewGeometry(lutRes)
}

// ChunkPlan partitions the glyphs of one bake into contiguous chunks.
// Chunks bound peak GPU memory: each chunk's transient buffers are
// released before the next chunk starts.
type ChunkPlan []int

// Validate checks that every partition is positive and that the plan
// covers exactly glyphs glyphs.
func (p ChunkPlan) Validate(glyphs int) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty plan", ErrBadChunkPlan)
	}
	sum := 0
	for i, n := range p {
		if n <= 0 {
			return fmt.Errorf("%w: chunk %d has %d glyphs", ErrBadChunkPlan, i, n)
		}
		sum += n
	}
	if sum != glyphs {
		return fmt.Errorf("%w: plan covers %d glyphs, want %d", ErrBadChunkPlan, sum, glyphs)
	}
	return nil
}

// DefaultChunkPlan partitions glyphs so that the per-chunk intermediate
// value buffer (one f32 per glyph and padded-grid direction) stays under
// byteBudget. A chunk always holds at least one glyph, so a budget smaller
// than a single glyph's footprint degrades to one glyph per chunk.
func DefaultChunkPlan(glyphs int, geom Geometry, byteBudget uint64) ChunkPlan {
	if glyphs <= 0 {
		return nil
	}
	perGlyph := uint64(geom.TotalDirs()) * 4
	maxPerChunk := int(byteBudget / perGlyph)
	if maxPerChunk < 1 {
		maxPerChunk = 1
	}

	plan := make(ChunkPlan, 0, (glyphs+maxPerChunk-1)/maxPerChunk)
	for remaining := glyphs; remaining > 0; remaining -= maxPerChunk {
		n := maxPerChunk
		if remaining < n {
			n = remaining
		}
		plan = append(plan, n)
	}
	return plan
}

// Chunk is one chunk's destination storage. Exactly one of Float32 or
// Half is allocated, depending on the LUT's precision. Updated flips to
// true once a bake has written the chunk.
type Chunk struct {
	// Glyphs is the number of glyphs in this chunk.
	Glyphs int

	// Float32 holds Glyphs * Faces * outSize^2 records of 4 floats in
	// (value, du, dv, dudv) order. Nil for half-precision LUTs.
	Float32 []float32

	// Half holds the same records narrowed to IEEE 754 binary16.
	// Nil for full-precision LUTs.
	Half []uint16

	// Updated reports whether a bake has populated this chunk.
	Updated bool
}

// LUT is the caller-owned destination of a bake: per-chunk texel storage
// plus the geometry it was allocated for.
type LUT struct {
	// Geom is the grid geometry all chunks share.
	Geom Geometry

	// HalfPrecision selects binary16 storage for every chunk.
	HalfPrecision bool

	// Chunks holds the per-chunk destination buffers, in plan order.
	Chunks []Chunk
}

// NewLUT allocates destination storage for the given plan. Plan entries
// must be positive; the plan's glyph total is checked against the
// coefficient array at bake time.
func NewLUT(geom Geometry, plan ChunkPlan, halfPrecision bool) (*LUT, error) {
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: empty plan", ErrBadChunkPlan)
	}
	l := &LUT{
		Geom:          geom,
		HalfPrecision: halfPrecision,
		Chunks:        make([]Chunk, len(plan)),
	}
	for i, n := range plan {
		if n <= 0 {
			return nil, fmt.Errorf("%w: chunk %d has %d glyphs", ErrBadChunkPlan, i, n)
		}
		c := Chunk{Glyphs: n}
		records := n * geom.TexelsPerGlyph() * 4
		if halfPrecision {
			c.Half = make([]uint16, records)
		} else {
			c.Float32 = make([]float32, records)
		}
		l.Chunks[i] = c
	}
	return l, nil
}

// TotalGlyphs returns the number of glyphs across all chunks.
func (l *LUT) TotalGlyphs() int {
	n := 0
	for i := range l.Chunks {
		n += l.Chunks[i].Glyphs
	}
	return n
}

// Plan returns the chunk plan the LUT was allocated for.
func (l *LUT) Plan() ChunkPlan {
	plan := make(ChunkPlan, len(l.Chunks))
	for i := range l.Chunks {
		plan[i] = l.Chunks[i].Glyphs
	}
	return plan
}

// locate maps a global glyph index to its chunk and glyph-local offset.
func (l *LUT) locate(g int) (chunk, local int, err error) {
	if g >= 0 {
		for i := range l.Chunks {
			if g < l.Chunks[i].Glyphs {
				return i, g, nil
			}
			g -= l.Chunks[i].Glyphs
		}
	}
	return 0, 0, fmt.Errorf("shglyph: glyph index out of range")
}

// GlyphRecords returns glyph g's records as a shared sub-slice of its
// chunk storage, 4 floats per texel. Errors for half-precision LUTs.
func (l *LUT) GlyphRecords(g int) ([]float32, error) {
	if l.HalfPrecision {
		return nil, fmt.Errorf("shglyph: LUT uses half precision, use GlyphRecordsHalf")
	}
	ci, local, err := l.locate(g)
	if err != nil {
		return nil, err
	}
	stride := l.Geom.TexelsPerGlyph() * 4
	return l.Chunks[ci].Float32[local*stride : (local+1)*stride], nil
}

// GlyphRecordsHalf is GlyphRecords for half-precision LUTs.
func (l *LUT) GlyphRecordsHalf(g int) ([]uint16, error) {
	if !l.HalfPrecision {
		return nil, fmt.Errorf("shglyph: LUT uses full precision, use GlyphRecords")
	}
	ci, local, err := l.locate(g)
	if err != nil {
		return nil, err
	}
	stride := l.Geom.TexelsPerGlyph() * 4
	return l.Chunks[ci].Half[local*stride : (local+1)*stride], nil
}

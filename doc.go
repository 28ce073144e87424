// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shglyph bakes Hermite lookup tables for spherical-harmonic (SH)
// glyph shading on the GPU, with a bit-equivalent CPU fallback.
//
// # Overview
//
// An SH glyph is described by a coefficient vector. Rendering one smoothly
// requires the expanded function value and its derivatives at arbitrary
// directions; shglyph precomputes these into a cube-mapped Hermite LUT so
// the renderer can use cubic Hermite interpolation instead of re-evaluating
// the SH expansion per pixel.
//
// Baking runs two compute passes per chunk of glyphs:
//
//  1. matmul: expand each glyph's coefficients against a cached basis
//     matrix, one value per (glyph, direction) pair on a padded grid.
//  2. finite differences: a 4th-order stencil over the padded grid yields
//     (value, du, dv, dudv) per output texel.
//
// # Quick Start
//
//	import "github.com/gogpu/shglyph"
//
//	baker := shglyph.NewBaker()
//	defer baker.Close()
//
//	geom, _ := shglyph.NewGeometry(16)
//	plan := shglyph.DefaultChunkPlan(glyphCount, geom, 64<<20)
//	lut, _ := shglyph.NewLUT(geom, plan, false)
//
//	// coeffs holds glyphCount rows of nCoeffs SH coefficients.
//	if err := baker.Bake(coeffs, nCoeffs, maxOrder, lut); err != nil {
//	    log.Fatal(err)
//	}
//
// Bake prefers the GPU and transparently falls back to the CPU path when no
// compute device is available. Callers that want to choose the strategy
// themselves use BakeGPU (which reports ErrGPUUnavailable) and BakeCPU.
//
// # Device sharing
//
// Applications that already own a GPU device (e.g. a gogpu renderer) hand
// it to the baker via SetDeviceProvider before the first bake; otherwise
// the baker opens a standalone Vulkan compute device on first use.
//
// # Concurrency
//
// A Baker assumes a single calling goroutine per bake; its caches are safe
// to share, but concurrent Bake calls on one Baker are not supported.
package shglyph

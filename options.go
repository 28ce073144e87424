// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shglyph

import "github.com/gogpu/shglyph/basis"

// BakerOption configures a Baker during creation.
//
// Example:
//
//	// Default: Descoteaux basis, GOMAXPROCS CPU workers
//	b := shglyph.NewBaker()
//
//	// Custom basis evaluator (dependency injection)
//	b := shglyph.NewBaker(shglyph.WithEvaluator(myEvaluator))
type BakerOption func(*bakerOptions)

// bakerOptions holds optional configuration for Baker creation.
type bakerOptions struct {
	evaluator basis.Evaluator
	workers   int
}

// WithEvaluator sets a custom SH basis evaluator. The evaluator must be a
// pure function of the direction list and maximum order; its output is
// cached per (order, resolution) and must therefore be deterministic.
//
// When nil or omitted, the built-in basis.Descoteaux evaluator is used.
func WithEvaluator(eval basis.Evaluator) BakerOption {
	return func(o *bakerOptions) {
		o.evaluator = eval
	}
}

// WithWorkers sets the number of worker goroutines for the CPU bake path.
// Zero or negative means GOMAXPROCS.
func WithWorkers(n int) BakerOption {
	return func(o *bakerOptions) {
		o.workers = n
	}
}

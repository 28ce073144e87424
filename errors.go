// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shglyph

import "errors"

var (
	// ErrGPUUnavailable reports that no compute-capable device could be
	// acquired, or that a GPU-layer operation failed after acquisition.
	// BakeGPU wraps every GPU failure in this sentinel so callers can
	// select the CPU strategy with a single errors.Is check.
	ErrGPUUnavailable = errors.New("shglyph: GPU unavailable")

	// ErrBadChunkPlan reports a chunk plan whose partitions are empty,
	// non-positive, or do not sum to the glyph count.
	ErrBadChunkPlan = errors.New("shglyph: invalid chunk plan")

	// ErrClosed reports use of a Baker after Close.
	ErrClosed = errors.New("shglyph: baker closed")
)

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package hermite

import _ "embed"

// WGSL sources for the two baking passes. They live next to the CPU
// kernels they mirror; the GPU dispatcher imports them from here because
// go:embed cannot reach across package directories.

//go:embed shaders/matmul.wgsl
var MatmulWGSL string

//go:embed shaders/finite_diff.wgsl
var FiniteDiffWGSL string

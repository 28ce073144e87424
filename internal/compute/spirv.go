// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"

	"github.com/gogpu/naga"
)

// CompileShaderToSPIRV compiles WGSL source to a SPIR-V uint32 slice.
// Init prefers precompiled SPIR-V modules; when naga cannot handle a
// kernel the dispatcher hands the WGSL source to the HAL instead.
func CompileShaderToSPIRV(wgslSource string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgslSource)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}

	return spirvCode, nil
}

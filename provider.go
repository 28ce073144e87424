// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shglyph

import (
	"fmt"

	"github.com/gogpu/gpucontext"
)

// DeviceProvider is the gogpu ecosystem's shared-device contract. An
// application embedding shglyph in a gogpu renderer obtains one from
// gogpu.App.GPUContextProvider().
type DeviceProvider = gpucontext.DeviceProvider

// UseDeviceContext hands the Baker the application's rendering device.
// The provider must additionally expose the HAL escape hatch
// (HalDevice() any, HalQueue() any) for compute use; providers that do
// not are rejected and the Baker keeps its standalone fallback.
func (b *Baker) UseDeviceContext(p DeviceProvider) error {
	if p == nil {
		return fmt.Errorf("shglyph: nil DeviceProvider")
	}
	return b.SetDeviceProvider(p)
}

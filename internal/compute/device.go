// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// DeviceSource resolves the HAL device and queue used for baking. A shared
// device registered through UseProvider takes priority; without one, the
// first acquisition opens a standalone Vulkan device.
//
// Acquisition is sticky: the first Acquire fixes the outcome, including a
// failed one, and every later call returns the same device or the same
// error. This keeps repeated bake attempts from re-probing a machine that
// has no usable GPU.
type DeviceSource struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	// external is true when the device came from UseProvider; shared
	// resources are not destroyed on Release.
	external bool

	acquired bool
	err      error
}

// UseProvider registers a shared GPU device from an external provider.
// The provider must expose HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
//
// Must be called before the first Acquire; once a device (or a failure)
// has been latched the registration is rejected.
func (s *DeviceSource) UseProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("bake compute: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("bake compute: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("bake compute: provider HalQueue is not hal.Queue")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired {
		return fmt.Errorf("bake compute: device already acquired, provider must be set before first use")
	}

	s.device = device
	s.queue = queue
	s.external = true
	s.acquired = true

	slogger().Debug("bake compute: using shared GPU device")
	return nil
}

// Acquire returns the device and queue, opening a standalone Vulkan device
// on the first call if no provider was registered.
func (s *DeviceSource) Acquire() (hal.Device, hal.Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.acquired {
		return s.device, s.queue, s.err
	}
	s.acquired = true

	if err := s.openStandalone(); err != nil {
		s.err = err
		slogger().Warn("bake compute: standalone GPU init failed", "error", err)
		return nil, nil, err
	}
	return s.device, s.queue, nil
}

// openStandalone creates a compute-only Vulkan device. This is the
// fallback path when no external device is provided via UseProvider.
func (s *DeviceSource) openStandalone() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("no GPU adapters found")
	}

	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("open device: %w", err)
	}

	s.instance = instance
	s.device = openDev.Device
	s.queue = openDev.Queue

	slogger().Info("bake compute: GPU initialized (standalone)", "adapter", selected.Info.Name)
	return nil
}

// Release destroys the standalone device and instance if the source owns
// them. Shared resources from UseProvider are left alone. The source
// returns to its unacquired state and may be reused.
func (s *DeviceSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.external {
		if s.device != nil {
			s.device.Destroy()
		}
		if s.instance != nil {
			s.instance.Destroy()
		}
	}
	s.instance = nil
	s.device = nil
	s.queue = nil
	s.external = false
	s.acquired = false
	s.err = nil
}

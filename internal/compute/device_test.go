// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compute

import (
	"testing"

	"github.com/gogpu/wgpu/hal"
)

// fakeProvider exposes a HAL device/queue pair the way an embedding
// application's device provider does.
type fakeProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p *fakeProvider) HalDevice() any { return p.device }
func (p *fakeProvider) HalQueue() any  { return p.queue }

type emptyProvider struct{}

func TestUseProviderRejectsNonHAL(t *testing.T) {
	var s DeviceSource
	if err := s.UseProvider(emptyProvider{}); err == nil {
		t.Fatal("expected error for provider without HAL accessors")
	}
}

func TestUseProviderSharesDevice(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	var s DeviceSource
	if err := s.UseProvider(&fakeProvider{device: device, queue: queue}); err != nil {
		t.Fatalf("UseProvider failed: %v", err)
	}

	gotDev, gotQueue, err := s.Acquire()
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if gotDev != device || gotQueue != queue {
		t.Error("Acquire did not return the shared device and queue")
	}

	// A second provider after acquisition is rejected.
	if err := s.UseProvider(&fakeProvider{device: device, queue: queue}); err == nil {
		t.Error("expected error registering a provider after acquisition")
	}

	// Release must not destroy the shared device; a fresh acquisition
	// cycle on the same noop device would fail if it had been destroyed.
	s.Release()
	if err := s.UseProvider(&fakeProvider{device: device, queue: queue}); err != nil {
		t.Fatalf("UseProvider after Release failed: %v", err)
	}
	if _, _, err := s.Acquire(); err != nil {
		t.Fatalf("Acquire after Release failed: %v", err)
	}
	s.Release()
}

func TestAcquireIsSticky(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	var s DeviceSource
	if err := s.UseProvider(&fakeProvider{device: device, queue: queue}); err != nil {
		t.Fatalf("UseProvider failed: %v", err)
	}

	d1, q1, err1 := s.Acquire()
	d2, q2, err2 := s.Acquire()
	if err1 != nil || err2 != nil {
		t.Fatalf("Acquire errors: %v, %v", err1, err2)
	}
	if d1 != d2 || q1 != q2 {
		t.Error("repeated Acquire returned different resources")
	}
	s.Release()
}

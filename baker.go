// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shglyph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shglyph/basis"
	"github.com/gogpu/shglyph/cache"
	"github.com/gogpu/shglyph/internal/compute"
	"github.com/gogpu/shglyph/internal/parallel"
)

// basisKey identifies a cached basis matrix.
type basisKey struct {
	maxOrder int
	lutRes   int
}

// Baker bakes Hermite LUTs from SH coefficient arrays. It owns the GPU
// device acquisition, the compiled compute pipelines, the basis-matrix
// cache, and the worker pool for the CPU path.
//
// The device outcome is sticky: the first bake (or SetDeviceProvider call)
// fixes whether the Baker runs on a shared device, a standalone Vulkan
// device, or the CPU, for the Baker's lifetime. The caches are safe to
// share, but concurrent Bake calls on one Baker are not supported.
type Baker struct {
	mu sync.Mutex

	source     compute.DeviceSource
	dispatcher *compute.Dispatcher
	gpuTried   bool
	gpuErr     error

	basisCache *cache.Memo[basisKey, *basis.Matrix]
	eval       basis.Evaluator
	pool       *parallel.WorkerPool

	closed bool

	// acquire resolves the HAL device; swapped out in tests.
	acquire func() (hal.Device, hal.Queue, error)
}

// NewBaker creates a Baker with the given options.
func NewBaker(opts ...BakerOption) *Baker {
	var o bakerOptions
	for _, opt := range opts {
		opt(&o)
	}

	b := &Baker{
		basisCache: cache.NewMemo[basisKey, *basis.Matrix](func(k basisKey) uint64 {
			return cache.PairHasher(k.maxOrder, k.lutRes)
		}),
		eval: o.evaluator,
		pool: parallel.NewWorkerPool(o.workers),
	}
	b.acquire = b.source.Acquire
	return b
}

// SetDeviceProvider hands the Baker a shared GPU device from an external
// provider (e.g. a gogpu renderer). The provider must expose
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
//
// Must be called before the first bake; once the device outcome is latched
// the registration is rejected.
func (b *Baker) SetDeviceProvider(provider any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return b.source.UseProvider(provider)
}

// Close releases the compiled pipelines, the standalone device if the
// Baker created one (never a provider-supplied device), the worker pool,
// and the basis cache. The Baker must not be used after Close.
func (b *Baker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	if b.dispatcher != nil {
		b.dispatcher.Close()
		b.dispatcher = nil
	}
	b.source.Release()
	b.pool.Close()
	b.basisCache.Clear()
}

// Bake populates dst from coeffs, preferring the GPU and falling back to
// the CPU path when no compute device is usable. coeffs holds one row of
// nCoeffs coefficients per glyph; maxOrder is the SH order the basis is
// evaluated to. Precondition violations (shape mismatches, bad chunk
// plans) fail fast and never trigger the fallback.
func (b *Baker) Bake(coeffs []float32, nCoeffs, maxOrder int, dst *LUT) error {
	err := b.BakeGPU(coeffs, nCoeffs, maxOrder, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrGPUUnavailable) {
		return err
	}
	slogger().Warn("shglyph: GPU bake unavailable, falling back to CPU", "error", err)
	return b.BakeCPU(coeffs, nCoeffs, maxOrder, dst)
}

// BakeGPU populates dst on the GPU. Every GPU-layer failure — device
// acquisition, pipeline compilation, dispatch, readback — is reported as
// a wrapped ErrGPUUnavailable so the caller can select the CPU strategy;
// no GPU buffers are created when acquisition fails. On a mid-chunk
// failure all transient buffers are released and the whole operation
// fails; dst contents are unspecified.
func (b *Baker) BakeGPU(coeffs []float32, nCoeffs, maxOrder int, dst *LUT) error {
	glyphs, err := b.validateBake(coeffs, nCoeffs, maxOrder, dst)
	if err != nil {
		return err
	}

	d, err := b.ensureGPU()
	if err != nil {
		return err
	}

	m, err := b.basisFor(maxOrder, dst.Geom.LUTRes, nCoeffs)
	if err != nil {
		return err
	}

	// The basis depends only on (order, resolution): upload it once and
	// share the buffer across chunks, releasing it after the last one.
	basisBuf, err := d.CreateBasisBuffer(dst.Geom, m.Data, nCoeffs)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGPUUnavailable, err)
	}
	defer d.DestroyBasisBuffer(basisBuf)

	var scratch []float32
	if dst.HalfPrecision {
		maxChunk := 0
		for i := range dst.Chunks {
			if dst.Chunks[i].Glyphs > maxChunk {
				maxChunk = dst.Chunks[i].Glyphs
			}
		}
		scratch = make([]float32, maxChunk*dst.Geom.TexelsPerGlyph()*4)
	}

	start := 0
	for i := range dst.Chunks {
		c := &dst.Chunks[i]
		chunkCoeffs := coeffs[start*nCoeffs : (start+c.Glyphs)*nCoeffs]

		if dst.HalfPrecision {
			out := scratch[:c.Glyphs*dst.Geom.TexelsPerGlyph()*4]
			if err := d.BakeChunk(dst.Geom, c.Glyphs, chunkCoeffs, basisBuf, nCoeffs, out); err != nil {
				return fmt.Errorf("%w: chunk %d: %w", ErrGPUUnavailable, i, err)
			}
			narrowHalf(c.Half, out)
		} else {
			if err := d.BakeChunk(dst.Geom, c.Glyphs, chunkCoeffs, basisBuf, nCoeffs, c.Float32); err != nil {
				return fmt.Errorf("%w: chunk %d: %w", ErrGPUUnavailable, i, err)
			}
		}

		c.Updated = true
		start += c.Glyphs
	}

	slogger().Debug("shglyph: GPU bake complete",
		"glyphs", glyphs,
		"chunks", len(dst.Chunks),
		"lut_res", dst.Geom.LUTRes)
	return nil
}

// validateBake checks the bake preconditions shared by both strategies
// and returns the glyph count.
func (b *Baker) validateBake(coeffs []float32, nCoeffs, maxOrder int, dst *LUT) (int, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}

	if dst == nil {
		return 0, fmt.Errorf("shglyph: destination LUT is nil")
	}
	if nCoeffs <= 0 {
		return 0, fmt.Errorf("shglyph: coefficient count %d out of range", nCoeffs)
	}
	if maxOrder < 0 {
		return 0, fmt.Errorf("shglyph: max order %d out of range", maxOrder)
	}
	if cc := basis.CoeffCount(maxOrder); nCoeffs > cc {
		return 0, fmt.Errorf("shglyph: %d coefficients exceed the %d basis functions of order %d",
			nCoeffs, cc, maxOrder)
	}
	if len(coeffs) == 0 || len(coeffs)%nCoeffs != 0 {
		return 0, fmt.Errorf("shglyph: coefficient array length %d is not a multiple of %d",
			len(coeffs), nCoeffs)
	}

	glyphs := len(coeffs) / nCoeffs
	if err := dst.Plan().Validate(glyphs); err != nil {
		return 0, err
	}
	return glyphs, nil
}

// ensureGPU latches the device outcome and initializes the dispatcher on
// first use.
func (b *Baker) ensureGPU() (*compute.Dispatcher, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if b.gpuTried {
		return b.dispatcher, b.gpuErr
	}
	b.gpuTried = true

	device, queue, err := b.acquire()
	if err != nil {
		b.gpuErr = fmt.Errorf("%w: %w", ErrGPUUnavailable, err)
		return nil, b.gpuErr
	}

	d := compute.NewDispatcher(device, queue)
	if err := d.Init(); err != nil {
		b.gpuErr = fmt.Errorf("%w: %w", ErrGPUUnavailable, err)
		return nil, b.gpuErr
	}
	b.dispatcher = d
	return d, nil
}

// basisFor returns the basis matrix for (maxOrder, lutRes), truncated to
// nCoeffs columns. The untruncated matrix is cached; truncation copies.
func (b *Baker) basisFor(maxOrder, lutRes, nCoeffs int) (*basis.Matrix, error) {
	m, err := b.basisCache.GetOrCreate(basisKey{maxOrder, lutRes}, func() (*basis.Matrix, error) {
		m, _, err := basis.Build(b.eval, maxOrder, lutRes)
		return m, err
	})
	if err != nil {
		return nil, err
	}
	return m.Truncate(nCoeffs)
}

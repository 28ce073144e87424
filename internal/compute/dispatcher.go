// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// dispatcher.go defines the GPU dispatch orchestration for the two-pass
// bake pipeline. It manages shader compilation, per-chunk buffer
// allocation, and the matmul -> finite-diff dispatch sequence that mirrors
// the CPU reference in internal/hermite.

package compute

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shglyph/internal/hermite"
)

const (
	// wgSize is the workgroup size used by both WGSL shaders.
	// This matches the WG_SIZE constant in the shader sources.
	wgSize = 256

	// fenceTimeout is the maximum time to wait for GPU work to complete.
	fenceTimeout = 5 * time.Second
)

// Stage identifies one of the two passes in the bake pipeline.
type Stage int

const (
	// StageMatmul expands SH coefficients against the basis matrix:
	// one intermediate value per (glyph, direction) pair.
	StageMatmul Stage = iota

	// StageFiniteDiff applies the 4th-order stencil to the intermediate
	// grid and writes (value, du, dv, dudv) per output texel.
	StageFiniteDiff

	// StageCount is the total number of pipeline stages.
	StageCount
)

// String returns the human-readable name of the compute stage.
func (s Stage) String() string {
	switch s {
	case StageMatmul:
		return "matmul"
	case StageFiniteDiff:
		return "finite_diff"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// matmulParams maps to the Params uniform in matmul.wgsl:
// 4 consecutive u32 fields, 16 bytes.
type matmulParams struct {
	GlyphCount uint32
	TotalDirs  uint32
	NCoeffs    uint32
}

func (p matmulParams) toBytes() []byte {
	buf := make([]byte, 16)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.GlyphCount)
	le.PutUint32(buf[4:8], p.TotalDirs)
	le.PutUint32(buf[8:12], p.NCoeffs)
	return buf
}

// fdParams maps to the Params uniform in finite_diff.wgsl:
// 5 u32 fields plus 3 pad words, 32 bytes.
type fdParams struct {
	GlyphCount   uint32
	SizeInternal uint32
	OutSize      uint32
	Start        uint32
	TotalTexels  uint32
}

func (p fdParams) toBytes() []byte {
	buf := make([]byte, 32)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], p.GlyphCount)
	le.PutUint32(buf[4:8], p.SizeInternal)
	le.PutUint32(buf[8:12], p.OutSize)
	le.PutUint32(buf[12:16], p.Start)
	le.PutUint32(buf[16:20], p.TotalTexels)
	return buf
}

// Buffers holds the GPU buffers for one chunk. Buffers are allocated per
// chunk and destroyed as soon as the chunk's texels have been read back.
type Buffers struct {
	// MatmulParams and FDParams are the uniform buffers for the two passes.
	MatmulParams hal.Buffer
	FDParams     hal.Buffer

	// Coeffs holds the chunk's SH coefficient rows, glyphs x nCoeffs f32.
	Coeffs hal.Buffer

	// Values is the intermediate grid written by matmul and read by
	// finite_diff, glyphs x totalDirs f32. Never touched by the CPU.
	Values hal.Buffer

	// Out holds the finished texels, glyphs x texelsPerGlyph vec4<f32>.
	Out hal.Buffer

	// Staging is the CPU-visible readback buffer Out is copied into.
	Staging hal.Buffer
}

// Dispatcher orchestrates the two-pass bake pipeline on a HAL device.
//
// Pipeline stages (in dispatch order):
//  1. matmul      -- values[g,d] = dot(coeffs[g,:], basis[d,:])
//  2. finite_diff -- texel (val, du, dv, dudv) per output cell
//
// Both passes run in one command buffer followed by a copy of the output
// buffer into a staging buffer, a single submit, and a blocking fence wait.
//
// Reference: internal/hermite (CPU implementation)
// Reference: internal/hermite/shaders/ (WGSL shaders)
type Dispatcher struct {
	mu sync.RWMutex

	device hal.Device
	queue  hal.Queue

	pipelines       [StageCount]hal.ComputePipeline
	pipelineLayouts [StageCount]hal.PipelineLayout
	bgLayouts       [StageCount]hal.BindGroupLayout
	shaderModules   [StageCount]hal.ShaderModule
	shaderSources   [StageCount]string

	initialized bool
}

// NewDispatcher creates a dispatcher attached to the given HAL device and
// queue. Init must be called before BakeChunk.
func NewDispatcher(device hal.Device, queue hal.Queue) *Dispatcher {
	d := &Dispatcher{
		device: device,
		queue:  queue,
	}
	d.shaderSources = [StageCount]string{
		StageMatmul:     hermite.MatmulWGSL,
		StageFiniteDiff: hermite.FiniteDiffWGSL,
	}
	return d
}

// stageBindGroupLayoutEntries returns the bind group layout entries for a
// stage. These match the @group(0) @binding(N) annotations in the WGSL
// sources exactly.
func stageBindGroupLayoutEntries(stage Stage) []gputypes.BindGroupLayoutEntry {
	configUniform := gputypes.BindGroupLayoutEntry{
		Binding:    0,
		Visibility: gputypes.ShaderStageCompute,
		Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
	}
	storageRO := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
		}
	}
	storageRW := func(binding uint32) gputypes.BindGroupLayoutEntry {
		return gputypes.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}

	switch stage {
	case StageMatmul:
		// @binding(0) uniform params
		// @binding(1) storage(read) coeffs
		// @binding(2) storage(read) basis
		// @binding(3) storage(read_write) values
		return []gputypes.BindGroupLayoutEntry{
			configUniform, storageRO(1), storageRO(2), storageRW(3),
		}

	case StageFiniteDiff:
		// @binding(0) uniform params
		// @binding(1) storage(read) values
		// @binding(2) storage(read_write) output
		return []gputypes.BindGroupLayoutEntry{
			configUniform, storageRO(1), storageRW(2),
		}

	default:
		return nil
	}
}

// Init compiles both WGSL shaders and creates compute pipelines. It is
// safe to call Init multiple times; subsequent calls are no-ops if already
// initialized.
func (d *Dispatcher) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}

	for i := Stage(0); i < StageCount; i++ {
		src := d.shaderSources[i]
		if src == "" {
			return fmt.Errorf("bake compute: missing shader source for stage %s", i)
		}

		stageName := fmt.Sprintf("bake_%s", i)

		// Precompile to SPIR-V when naga can; otherwise let the HAL
		// compile the WGSL source itself.
		source := hal.ShaderSource{WGSL: src}
		if words, spvErr := CompileShaderToSPIRV(src); spvErr == nil {
			source = hal.ShaderSource{SPIRV: words}
		} else {
			slogger().Debug("bake compute: SPIR-V precompile unavailable",
				"stage", i.String(), "error", spvErr)
		}

		module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  stageName,
			Source: source,
		})
		if err != nil {
			d.destroyPartialInit(i)
			return fmt.Errorf("bake compute: create shader module for %s: %w", i, err)
		}
		d.shaderModules[i] = module

		entries := stageBindGroupLayoutEntries(i)
		bgLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   stageName + "_bgl",
			Entries: entries,
		})
		if err != nil {
			d.destroyPartialInit(i + 1) // module was already stored
			return fmt.Errorf("bake compute: create bind group layout for %s: %w", i, err)
		}
		d.bgLayouts[i] = bgLayout

		pipelineLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
			Label:            stageName + "_pl",
			BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
		})
		if err != nil {
			d.destroyPartialInit(i + 1)
			return fmt.Errorf("bake compute: create pipeline layout for %s: %w", i, err)
		}
		d.pipelineLayouts[i] = pipelineLayout

		pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:  stageName,
			Layout: pipelineLayout,
			Compute: hal.ComputeState{
				Module:     module,
				EntryPoint: "main",
			},
		})
		if err != nil {
			d.destroyPartialInit(i + 1)
			return fmt.Errorf("bake compute: create compute pipeline for %s: %w", i, err)
		}
		d.pipelines[i] = pipeline

		slogger().Debug("bake compute: pipeline created",
			"stage", i.String(),
			"bindings", len(entries),
			"shader_bytes", len(src))
	}

	d.initialized = true
	return nil
}

// destroyPartialInit cleans up resources for stages [0, upTo) during a
// failed Init, so a partial initialization leaks nothing.
func (d *Dispatcher) destroyPartialInit(upTo Stage) {
	for j := Stage(0); j < upTo; j++ {
		if d.pipelines[j] != nil {
			d.device.DestroyComputePipeline(d.pipelines[j])
			d.pipelines[j] = nil
		}
		if d.pipelineLayouts[j] != nil {
			d.device.DestroyPipelineLayout(d.pipelineLayouts[j])
			d.pipelineLayouts[j] = nil
		}
		if d.bgLayouts[j] != nil {
			d.device.DestroyBindGroupLayout(d.bgLayouts[j])
			d.bgLayouts[j] = nil
		}
		if d.shaderModules[j] != nil {
			d.device.DestroyShaderModule(d.shaderModules[j])
			d.shaderModules[j] = nil
		}
	}
}

// Initialized reports whether Init has completed successfully.
func (d *Dispatcher) Initialized() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.initialized
}

// Close releases all GPU resources held by the dispatcher. After Close,
// the dispatcher must be re-initialized with Init before use.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := Stage(0); i < StageCount; i++ {
		if d.pipelines[i] != nil {
			d.device.DestroyComputePipeline(d.pipelines[i])
			d.pipelines[i] = nil
		}
		if d.pipelineLayouts[i] != nil {
			d.device.DestroyPipelineLayout(d.pipelineLayouts[i])
			d.pipelineLayouts[i] = nil
		}
		if d.bgLayouts[i] != nil {
			d.device.DestroyBindGroupLayout(d.bgLayouts[i])
			d.bgLayouts[i] = nil
		}
		if d.shaderModules[i] != nil {
			d.device.DestroyShaderModule(d.shaderModules[i])
			d.shaderModules[i] = nil
		}
	}

	d.initialized = false
}

// workgroupCount returns ceil(elementCount / wgSize).
func workgroupCount(elementCount uint32) uint32 {
	return (elementCount + wgSize - 1) / wgSize
}

// AllocateBuffers creates the GPU buffers for a chunk of glyphs.
// The caller must call DestroyBuffers when the chunk is done.
func (d *Dispatcher) AllocateBuffers(geom hermite.Geometry, glyphs, nCoeffs int) (*Buffers, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil, fmt.Errorf("bake compute: dispatcher not initialized, call Init() first")
	}

	valuesBytes := uint64(glyphs) * uint64(geom.TotalDirs()) * 4
	outBytes := uint64(glyphs) * uint64(geom.TexelsPerGlyph()) * 16

	uniformCPU := gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst
	storageCPU := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	storageGPU := gputypes.BufferUsageStorage
	storageOut := gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc
	stagingIn := gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst

	bufs := &Buffers{}

	type bufSpec struct {
		target *hal.Buffer
		label  string
		size   uint64
		usage  gputypes.BufferUsage
	}

	specs := []bufSpec{
		{&bufs.MatmulParams, "bake_matmul_params", 16, uniformCPU},
		{&bufs.FDParams, "bake_fd_params", 32, uniformCPU},
		{&bufs.Coeffs, "bake_coeffs", uint64(glyphs) * uint64(nCoeffs) * 4, storageCPU},
		{&bufs.Values, "bake_values", valuesBytes, storageGPU},
		{&bufs.Out, "bake_out", outBytes, storageOut},
		{&bufs.Staging, "bake_staging", outBytes, stagingIn},
	}

	for _, s := range specs {
		buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: s.label,
			Size:  s.size,
			Usage: s.usage,
		})
		if err != nil {
			d.DestroyBuffers(bufs)
			return nil, fmt.Errorf("bake compute: create %s buffer: %w", s.label, err)
		}
		*s.target = buf
	}

	slogger().Debug("bake compute: buffers allocated",
		"glyphs", glyphs,
		"coeffs", nCoeffs,
		"values_bytes", valuesBytes,
		"out_bytes", outBytes)

	return bufs, nil
}

// DestroyBuffers releases all GPU buffers for a chunk. After this call,
// the buffers must not be used.
func (d *Dispatcher) DestroyBuffers(bufs *Buffers) {
	if bufs == nil {
		return
	}

	destroyBuf := func(b hal.Buffer) {
		if b != nil {
			d.device.DestroyBuffer(b)
		}
	}

	destroyBuf(bufs.MatmulParams)
	destroyBuf(bufs.FDParams)
	destroyBuf(bufs.Coeffs)
	destroyBuf(bufs.Values)
	destroyBuf(bufs.Out)
	destroyBuf(bufs.Staging)

	// Zero out all fields to prevent accidental reuse.
	*bufs = Buffers{}
}

// CreateBasisBuffer uploads the truncated basis matrix to the GPU. The
// matrix depends only on (order, resolution), so one buffer is shared by
// every chunk of a bake; the caller releases it with DestroyBasisBuffer
// after the last chunk.
func (d *Dispatcher) CreateBasisBuffer(geom hermite.Geometry, basisData []float32, nCoeffs int) (hal.Buffer, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return nil, fmt.Errorf("bake compute: dispatcher not initialized, call Init() first")
	}
	if want := geom.TotalDirs() * nCoeffs; len(basisData) != want {
		return nil, fmt.Errorf("bake compute: basis length %d, want %d", len(basisData), want)
	}

	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "bake_basis",
		Size:  uint64(len(basisData)) * 4,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("bake compute: create bake_basis buffer: %w", err)
	}
	d.queue.WriteBuffer(buf, 0, floatsToBytes(basisData))
	return buf, nil
}

// DestroyBasisBuffer releases a buffer created by CreateBasisBuffer.
// Safe to call with nil.
func (d *Dispatcher) DestroyBasisBuffer(buf hal.Buffer) {
	if buf != nil {
		d.device.DestroyBuffer(buf)
	}
}

// dispatchResources tracks per-chunk GPU resources for cleanup.
type dispatchResources struct {
	device     hal.Device
	bindGroups []hal.BindGroup
	cmdBuf     hal.CommandBuffer
	fence      hal.Fence
}

func (r *dispatchResources) cleanup() {
	if r.fence != nil {
		r.device.DestroyFence(r.fence)
	}
	if r.cmdBuf != nil {
		r.device.FreeCommandBuffer(r.cmdBuf)
	}
	for _, g := range r.bindGroups {
		r.device.DestroyBindGroup(g)
	}
}

// BakeChunk runs both passes for one chunk of glyphs and writes the
// finished texels into dst as 4 floats per texel in (val, du, dv, dudv)
// order.
//
// coeffs holds glyphs*nCoeffs floats, basisBuf comes from
// CreateBasisBuffer, and dst must hold glyphs*geom.TexelsPerGlyph()*4
// floats. The call blocks until the GPU finishes and the readback
// completes; all chunk buffers are released before it returns, on success
// and on error. The shared basis buffer is left alone.
func (d *Dispatcher) BakeChunk(geom hermite.Geometry, glyphs int, coeffs []float32, basisBuf hal.Buffer, nCoeffs int, dst []float32) error {
	if glyphs <= 0 {
		return fmt.Errorf("bake compute: chunk must have at least one glyph, got %d", glyphs)
	}
	if want := glyphs * nCoeffs; len(coeffs) != want {
		return fmt.Errorf("bake compute: coeffs length %d, want %d", len(coeffs), want)
	}
	if basisBuf == nil {
		return fmt.Errorf("bake compute: nil basis buffer")
	}
	if want := glyphs * geom.TexelsPerGlyph() * 4; len(dst) != want {
		return fmt.Errorf("bake compute: dst length %d, want %d", len(dst), want)
	}

	bufs, err := d.AllocateBuffers(geom, glyphs, nCoeffs)
	if err != nil {
		return err
	}
	defer d.DestroyBuffers(bufs)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.initialized {
		return fmt.Errorf("bake compute: dispatcher not initialized, call Init() first")
	}

	totalValues := uint32(glyphs * geom.TotalDirs())
	totalTexels := uint32(glyphs * geom.TexelsPerGlyph())

	// Upload uniforms and chunk inputs.
	mp := matmulParams{
		GlyphCount: uint32(glyphs),
		TotalDirs:  uint32(geom.TotalDirs()),
		NCoeffs:    uint32(nCoeffs),
	}
	fp := fdParams{
		GlyphCount:   uint32(glyphs),
		SizeInternal: uint32(geom.InternalSize),
		OutSize:      uint32(geom.OutSize),
		Start:        uint32(geom.Start),
		TotalTexels:  totalTexels,
	}
	d.queue.WriteBuffer(bufs.MatmulParams, 0, mp.toBytes())
	d.queue.WriteBuffer(bufs.FDParams, 0, fp.toBytes())
	d.queue.WriteBuffer(bufs.Coeffs, 0, floatsToBytes(coeffs))

	res := &dispatchResources{device: d.device}
	defer res.cleanup()

	outBytes := uint64(totalTexels) * 16
	if err := d.encodePasses(res, bufs, basisBuf, totalValues, totalTexels, outBytes); err != nil {
		return err
	}

	if err := d.submitAndWait(res); err != nil {
		return err
	}

	// Blocking readback from the staging buffer into caller storage.
	raw := make([]byte, outBytes)
	if err := d.queue.ReadBuffer(bufs.Staging, 0, raw); err != nil {
		return fmt.Errorf("bake compute: readback: %w", err)
	}
	bytesToFloats(dst, raw)

	slogger().Debug("bake compute: chunk complete",
		"glyphs", glyphs,
		"texels", totalTexels)
	return nil
}

// encodePasses records the matmul and finite-diff passes plus the readback
// copy into one command buffer.
func (d *Dispatcher) encodePasses(res *dispatchResources, bufs *Buffers, basisBuf hal.Buffer, totalValues, totalTexels uint32, outBytes uint64) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "bake_chunk",
	})
	if err != nil {
		return fmt.Errorf("bake compute: create command encoder: %w", err)
	}

	if err := encoder.BeginEncoding("bake_chunk"); err != nil {
		return fmt.Errorf("bake compute: begin encoding: %w", err)
	}

	entry := func(binding uint32, buf hal.Buffer) gputypes.BindGroupEntry {
		return gputypes.BindGroupEntry{
			Binding: binding,
			Resource: gputypes.BufferBinding{
				Buffer: buf.NativeHandle(),
				Offset: 0,
				Size:   0, // 0 = entire buffer
			},
		}
	}

	stages := [StageCount]struct {
		stage    Stage
		elements uint32
		entries  []gputypes.BindGroupEntry
	}{
		{StageMatmul, totalValues, []gputypes.BindGroupEntry{
			entry(0, bufs.MatmulParams),
			entry(1, bufs.Coeffs),
			entry(2, basisBuf),
			entry(3, bufs.Values),
		}},
		{StageFiniteDiff, totalTexels, []gputypes.BindGroupEntry{
			entry(0, bufs.FDParams),
			entry(1, bufs.Values),
			entry(2, bufs.Out),
		}},
	}

	for _, sd := range stages {
		wgCount := workgroupCount(sd.elements)
		if wgCount == 0 {
			continue
		}

		bg, bgErr := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("bake_%s_bg", sd.stage),
			Layout:  d.bgLayouts[sd.stage],
			Entries: sd.entries,
		})
		if bgErr != nil {
			encoder.DiscardEncoding()
			return fmt.Errorf("bake compute: create bind group for %s: %w", sd.stage, bgErr)
		}
		res.bindGroups = append(res.bindGroups, bg)

		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{
			Label: fmt.Sprintf("bake_%s", sd.stage),
		})
		pass.SetPipeline(d.pipelines[sd.stage])
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(wgCount, 1, 1)
		pass.End()

		slogger().Debug("bake compute: dispatched stage",
			"stage", sd.stage.String(),
			"elements", sd.elements,
			"workgroups", wgCount)
	}

	encoder.CopyBufferToBuffer(bufs.Out, bufs.Staging, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: outBytes},
	})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("bake compute: end encoding: %w", err)
	}
	res.cmdBuf = cmdBuf
	return nil
}

// submitAndWait submits the command buffer and waits for GPU completion.
func (d *Dispatcher) submitAndWait(res *dispatchResources) error {
	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("bake compute: create fence: %w", err)
	}
	res.fence = fence

	if err := d.queue.Submit([]hal.CommandBuffer{res.cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("bake compute: submit: %w", err)
	}

	ok, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("bake compute: wait for GPU: %w", err)
	}
	if !ok {
		return fmt.Errorf("bake compute: GPU timeout after %v", fenceTimeout)
	}
	return nil
}

// floatsToBytes serializes f32 data in little-endian byte order.
func floatsToBytes(src []float32) []byte {
	buf := make([]byte, len(src)*4)
	for i, v := range src {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// bytesToFloats deserializes little-endian f32 data into dst.
func bytesToFloats(dst []float32, src []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
}

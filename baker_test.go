// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shglyph

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/shglyph/basis"
)

// failAcquire replaces the device source so the GPU path is forced down
// the unavailable branch.
func failAcquire(b *Baker) {
	b.acquire = func() (hal.Device, hal.Queue, error) {
		return nil, nil, errors.New("forced acquisition failure")
	}
}

// testCoeffs builds a deterministic coefficient array.
func testCoeffs(glyphs, nCoeffs int) []float32 {
	coeffs := make([]float32, glyphs*nCoeffs)
	for i := range coeffs {
		coeffs[i] = float32(i%7) - 3 + 0.25*float32(i%3)
	}
	return coeffs
}

func TestBakeCPUConstantGlyph(t *testing.T) {
	// A single order-0 glyph with coefficient 1.0: every value texel is
	// Y00 = 1/(2*sqrt(pi)) and all derivatives are exactly zero.
	b := NewBaker()
	defer b.Close()

	geom, _ := NewGeometry(8)
	lut, err := NewLUT(geom, ChunkPlan{1}, false)
	if err != nil {
		t.Fatalf("NewLUT failed: %v", err)
	}

	if err := b.BakeCPU([]float32{1.0}, 1, 0, lut); err != nil {
		t.Fatalf("BakeCPU failed: %v", err)
	}
	if !lut.Chunks[0].Updated {
		t.Error("chunk not marked updated")
	}

	want := float32(1.0 / (2.0 * math.Sqrt(math.Pi)))
	rec, _ := lut.GlyphRecords(0)
	for i := 0; i < len(rec); i += 4 {
		if math.Abs(float64(rec[i]-want)) > 1e-6 {
			t.Fatalf("texel %d: value = %v, want %v", i/4, rec[i], want)
		}
		if rec[i+1] != 0 || rec[i+2] != 0 || rec[i+3] != 0 {
			t.Fatalf("texel %d: derivatives (%v, %v, %v), want zero",
				i/4, rec[i+1], rec[i+2], rec[i+3])
		}
	}
}

func TestChunkingEquivalence(t *testing.T) {
	// Chunk boundaries must not perturb results: one chunk of 10 equals
	// two chunks of 5, bit for bit.
	b := NewBaker()
	defer b.Close()

	const glyphs, nCoeffs, maxOrder = 10, 6, 2
	geom, _ := NewGeometry(4)
	coeffs := testCoeffs(glyphs, nCoeffs)

	one, err := NewLUT(geom, ChunkPlan{10}, false)
	if err != nil {
		t.Fatalf("NewLUT failed: %v", err)
	}
	two, err := NewLUT(geom, ChunkPlan{5, 5}, false)
	if err != nil {
		t.Fatalf("NewLUT failed: %v", err)
	}

	if err := b.BakeCPU(coeffs, nCoeffs, maxOrder, one); err != nil {
		t.Fatalf("single-chunk bake failed: %v", err)
	}
	if err := b.BakeCPU(coeffs, nCoeffs, maxOrder, two); err != nil {
		t.Fatalf("two-chunk bake failed: %v", err)
	}

	for g := 0; g < glyphs; g++ {
		a, _ := one.GlyphRecords(g)
		bb, _ := two.GlyphRecords(g)
		for i := range a {
			if a[i] != bb[i] {
				t.Fatalf("glyph %d record %d differs: %v vs %v", g, i, a[i], bb[i])
			}
		}
	}
}

func TestHalfPrecisionNarrowing(t *testing.T) {
	// Half output equals the full-precision result rounded, never a
	// separately computed value.
	b := NewBaker()
	defer b.Close()

	const glyphs, nCoeffs, maxOrder = 4, 6, 2
	geom, _ := NewGeometry(4)
	coeffs := testCoeffs(glyphs, nCoeffs)

	full, err := NewLUT(geom, ChunkPlan{2, 2}, false)
	if err != nil {
		t.Fatalf("NewLUT failed: %v", err)
	}
	half, err := NewLUT(geom, ChunkPlan{2, 2}, true)
	if err != nil {
		t.Fatalf("NewLUT failed: %v", err)
	}

	if err := b.BakeCPU(coeffs, nCoeffs, maxOrder, full); err != nil {
		t.Fatalf("full bake failed: %v", err)
	}
	if err := b.BakeCPU(coeffs, nCoeffs, maxOrder, half); err != nil {
		t.Fatalf("half bake failed: %v", err)
	}

	for g := 0; g < glyphs; g++ {
		f, _ := full.GlyphRecords(g)
		h, _ := half.GlyphRecordsHalf(g)
		for i := range f {
			if h[i] != Float32ToHalf(f[i]) {
				t.Fatalf("glyph %d record %d: half 0x%04x, want 0x%04x",
					g, i, h[i], Float32ToHalf(f[i]))
			}
		}
	}
}

func TestBakeGPUUnavailable(t *testing.T) {
	// A failed device acquisition reports ErrGPUUnavailable without
	// creating any GPU state, and the outcome is sticky.
	b := NewBaker()
	defer b.Close()
	failAcquire(b)

	geom, _ := NewGeometry(4)
	lut, _ := NewLUT(geom, ChunkPlan{1}, false)
	coeffs := []float32{1.0}

	err := b.BakeGPU(coeffs, 1, 0, lut)
	if !errors.Is(err, ErrGPUUnavailable) {
		t.Fatalf("BakeGPU error = %v, want ErrGPUUnavailable", err)
	}
	if b.dispatcher != nil {
		t.Error("dispatcher created despite acquisition failure")
	}
	if lut.Chunks[0].Updated {
		t.Error("chunk marked updated on failure")
	}

	// Second attempt returns the latched failure without re-probing.
	b.acquire = func() (hal.Device, hal.Queue, error) {
		t.Error("acquire re-invoked after latched failure")
		return nil, nil, nil
	}
	if err := b.BakeGPU(coeffs, 1, 0, lut); !errors.Is(err, ErrGPUUnavailable) {
		t.Fatalf("second BakeGPU error = %v, want ErrGPUUnavailable", err)
	}
}

func TestBakeFallsBackToCPU(t *testing.T) {
	b := NewBaker()
	defer b.Close()
	failAcquire(b)

	geom, _ := NewGeometry(8)
	lut, _ := NewLUT(geom, ChunkPlan{1}, false)

	if err := b.Bake([]float32{1.0}, 1, 0, lut); err != nil {
		t.Fatalf("Bake failed: %v", err)
	}
	if !lut.Chunks[0].Updated {
		t.Fatal("fallback did not populate the chunk")
	}

	want := float32(1.0 / (2.0 * math.Sqrt(math.Pi)))
	rec, _ := lut.GlyphRecords(0)
	if math.Abs(float64(rec[0]-want)) > 1e-6 {
		t.Errorf("fallback value = %v, want %v", rec[0], want)
	}
}

func TestBakeValidation(t *testing.T) {
	b := NewBaker()
	defer b.Close()
	failAcquire(b)

	geom, _ := NewGeometry(4)
	lut, _ := NewLUT(geom, ChunkPlan{2}, false)

	// Preconditions fail fast and never report GPU unavailability.
	cases := []struct {
		name     string
		coeffs   []float32
		nCoeffs  int
		maxOrder int
		dst      *LUT
	}{
		{"nil dst", testCoeffs(2, 6), 6, 2, nil},
		{"zero nCoeffs", testCoeffs(2, 6), 0, 2, lut},
		{"negative order", testCoeffs(2, 6), 6, -2, lut},
		{"too many coeffs for order", testCoeffs(2, 6), 6, 0, lut},
		{"ragged coeffs", testCoeffs(2, 6)[:11], 6, 2, lut},
		{"plan mismatch", testCoeffs(3, 6), 6, 2, lut},
	}
	for _, tc := range cases {
		err := b.Bake(tc.coeffs, tc.nCoeffs, tc.maxOrder, tc.dst)
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if errors.Is(err, ErrGPUUnavailable) {
			t.Errorf("%s: precondition reported as GPU unavailability: %v", tc.name, err)
		}
	}

	// Odd orders are rounded down by the basis, so 6 coefficients at
	// declared order 3 still validate (order 3 has the order-2 count).
	if err := b.BakeCPU(testCoeffs(2, 6), 6, 3, lut); err != nil {
		t.Errorf("order 3 with 6 coefficients rejected: %v", err)
	}
}

func TestTruncatedBasisDropsHighOrderTerms(t *testing.T) {
	// Supplying fewer coefficients than the basis has columns drops the
	// extra basis columns: an order-2 bake with only the order-0
	// coefficient equals an order-0 bake with the same coefficient.
	b := NewBaker()
	defer b.Close()

	geom, _ := NewGeometry(4)
	full, _ := NewLUT(geom, ChunkPlan{1}, false)
	trunc, _ := NewLUT(geom, ChunkPlan{1}, false)

	if err := b.BakeCPU([]float32{0.75}, 1, 0, full); err != nil {
		t.Fatalf("order-0 bake failed: %v", err)
	}
	if err := b.BakeCPU([]float32{0.75}, 1, 2, trunc); err != nil {
		t.Fatalf("truncated order-2 bake failed: %v", err)
	}

	a, _ := full.GlyphRecords(0)
	bb, _ := trunc.GlyphRecords(0)
	for i := range a {
		if a[i] != bb[i] {
			t.Fatalf("record %d differs: %v vs %v", i, a[i], bb[i])
		}
	}
}

func TestBakerClosed(t *testing.T) {
	b := NewBaker()
	b.Close()
	b.Close() // double close is safe

	geom, _ := NewGeometry(4)
	lut, _ := NewLUT(geom, ChunkPlan{1}, false)

	if err := b.Bake([]float32{1.0}, 1, 0, lut); !errors.Is(err, ErrClosed) {
		t.Errorf("Bake on closed baker = %v, want ErrClosed", err)
	}
	if err := b.SetDeviceProvider(struct{}{}); !errors.Is(err, ErrClosed) {
		t.Errorf("SetDeviceProvider on closed baker = %v, want ErrClosed", err)
	}
}

// countingEvaluator wraps the default evaluator and counts invocations.
func countingEvaluator(calls *int) basis.Evaluator {
	return func(dirs []basis.Direction, maxOrder int) []float32 {
		*calls++
		return basis.Descoteaux(dirs, maxOrder)
	}
}

func TestBakerCachesBasis(t *testing.T) {
	calls := 0
	b := NewBaker(WithEvaluator(countingEvaluator(&calls)))
	defer b.Close()

	geom, _ := NewGeometry(4)
	lut1, _ := NewLUT(geom, ChunkPlan{1}, false)
	lut2, _ := NewLUT(geom, ChunkPlan{1}, false)

	if err := b.BakeCPU([]float32{1.0}, 1, 0, lut1); err != nil {
		t.Fatalf("first bake failed: %v", err)
	}
	if err := b.BakeCPU([]float32{1.0}, 1, 0, lut2); err != nil {
		t.Fatalf("second bake failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("evaluator ran %d times, want 1 (cached)", calls)
	}
}

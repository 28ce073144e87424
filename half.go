// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package shglyph

import "math"

// Float32ToHalf converts f to IEEE 754 binary16 with round-to-nearest-even.
// Values beyond the half range become infinities, NaN stays NaN, and
// magnitudes below the smallest subnormal round to signed zero.
func Float32ToHalf(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23) & 0xff
	mant := b & 0x7fffff

	if exp == 0xff {
		if mant != 0 {
			return sign | 0x7e00 // quiet NaN
		}
		return sign | 0x7c00 // Inf
	}

	e := exp - 127 + 15
	if e >= 0x1f {
		return sign | 0x7c00
	}

	if e <= 0 {
		// Half subnormal or zero.
		if e < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - e)
		v := mant >> shift
		rem := mant & ((uint32(1) << shift) - 1)
		halfway := uint32(1) << (shift - 1)
		if rem > halfway || (rem == halfway && v&1 == 1) {
			v++
		}
		return sign | uint16(v)
	}

	// Normal: a mantissa round-up may carry into the exponent, which is
	// the correct result, including overflow to infinity.
	v := uint32(e)<<10 | mant>>13
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && v&1 == 1) {
		v++
	}
	if v >= 0x7c00 {
		v = 0x7c00
	}
	return sign | uint16(v)
}

// HalfToFloat32 converts an IEEE 754 binary16 value to float32.
// The conversion is exact: every half value is representable in float32.
func HalfToFloat32(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)

	switch {
	case exp == 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Normalize the subnormal.
		e := uint32(127 - 15 + 1)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)

	case exp == 0x1f:
		if mant != 0 {
			return math.Float32frombits(sign | 0x7fc00000)
		}
		return math.Float32frombits(sign | 0x7f800000)

	default:
		return math.Float32frombits(sign | (exp-15+127)<<23 | mant<<13)
	}
}

// narrowHalf converts src into dst element-wise. Narrowing happens after
// the full-precision result exists; the half output is always the rounded
// full-precision value, never a separately computed one.
func narrowHalf(dst []uint16, src []float32) {
	for i, v := range src {
		dst[i] = Float32ToHalf(v)
	}
}

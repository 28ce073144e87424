// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package basis

import (
	"math"
)

// CoeffCount returns the number of basis coefficients for a symmetric
// (even-order) real SH basis of maximum order maxOrder:
// (maxOrder+1)(maxOrder+2)/2. Odd orders round down to the preceding even
// order, matching the diffusion-imaging convention where antipodally
// symmetric signals carry no odd-order energy.
func CoeffCount(maxOrder int) int {
	l := maxOrder &^ 1
	return (l + 1) * (l + 2) / 2
}

// Descoteaux is the default Evaluator: the real, symmetric SH basis used
// for diffusion ODF glyphs. For each even order l in [0, maxOrder] the
// basis carries 2l+1 functions, m = -l..l, ordered m-ascending:
//
//	m < 0:  sqrt(2) * K(l,|m|) * sin(|m| phi) * P_l^{|m|}(cos theta)
//	m = 0:  K(l,0) * P_l(cos theta)
//	m > 0:  sqrt(2) * K(l,m)   * cos(m phi)   * P_l^m(cos theta)
//
// with K(l,m) = sqrt((2l+1)/(4 pi) * (l-m)!/(l+m)!). Evaluation runs in
// float64 and narrows once at the end, so results are bit-identical across
// invocations and platforms with IEEE arithmetic.
func Descoteaux(dirs []Direction, maxOrder int) []float32 {
	cols := CoeffCount(maxOrder)
	out := make([]float32, len(dirs)*cols)

	// Legendre values for one direction, indexed [l][m], even l only.
	plm := make([][]float64, maxOrder+1)
	for l := 0; l <= maxOrder; l += 2 {
		plm[l] = make([]float64, l+1)
	}

	for i, d := range dirs {
		cosTheta := float64(d.Z)
		phi := math.Atan2(float64(d.Y), float64(d.X))

		for m := 0; m <= maxOrder; m++ {
			legendreColumn(plm, cosTheta, m, maxOrder)
		}

		row := out[i*cols : (i+1)*cols]
		c := 0
		for l := 0; l <= maxOrder; l += 2 {
			for m := -l; m <= l; m++ {
				am := m
				if am < 0 {
					am = -am
				}
				v := shNorm(l, am) * plm[l][am]
				switch {
				case m < 0:
					v *= math.Sqrt2 * math.Sin(float64(am)*phi)
				case m > 0:
					v *= math.Sqrt2 * math.Cos(float64(am)*phi)
				}
				row[c] = float32(v)
				c++
			}
		}
	}
	return out
}

// legendreColumn fills plm[l][m] for fixed m and all even l in [m, maxOrder]
// using the standard stable recurrences: the diagonal term P_m^m, the
// off-diagonal P_{m+1}^m, then the three-term upward recurrence in l. Odd-l
// intermediates are computed but only stored for even l.
func legendreColumn(plm [][]float64, x float64, m, maxOrder int) {
	if m > maxOrder {
		return
	}

	// P_m^m = (-1)^m (2m-1)!! (1-x^2)^{m/2}
	pmm := 1.0
	if m > 0 {
		somx2 := math.Sqrt((1 - x) * (1 + x))
		fact := 1.0
		for i := 0; i < m; i++ {
			pmm *= -fact * somx2
			fact += 2
		}
	}
	if m%2 == 0 {
		plm[m][m] = pmm
	}
	if m == maxOrder {
		return
	}

	// P_{m+1}^m = x (2m+1) P_m^m
	pmmp1 := x * float64(2*m+1) * pmm
	if (m+1)%2 == 0 && m+1 <= maxOrder {
		plm[m+1][m] = pmmp1
	}

	for l := m + 2; l <= maxOrder; l++ {
		pll := (x*float64(2*l-1)*pmmp1 - float64(l+m-1)*pmm) / float64(l-m)
		pmm = pmmp1
		pmmp1 = pll
		if l%2 == 0 {
			plm[l][m] = pll
		}
	}
}

// shNorm returns K(l,m) = sqrt((2l+1)/(4 pi) * (l-m)!/(l+m)!).
// The factorial ratio is accumulated directly to avoid overflow for the
// orders used in practice (l <= 16).
func shNorm(l, m int) float64 {
	ratio := 1.0
	for k := l - m + 1; k <= l+m; k++ {
		ratio /= float64(k)
	}
	return math.Sqrt(float64(2*l+1) / (4 * math.Pi) * ratio)
}

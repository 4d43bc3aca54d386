// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gaussnewton

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/leastsq/hessian"
)

// DoglegStep follows the path from the origin to the Cauchy point 𝐩ᶜ and then on to
// the Gauss-Newton point 𝐩ᴳᴺ = -𝐇⁻¹𝐠, returning where it leaves the region:
//
//  1. ‖𝐩ᴳᴺ‖ ≤ Δ: the Gauss-Newton point
//  2. ‖𝐩ᶜ‖ ≥ Δ: the steepest descent step of length Δ
//  3. otherwise: 𝐩ᶜ + β(𝐩ᴳᴺ - 𝐩ᶜ) with ‖𝐩‖ = Δ
//
// When 𝐇 is not positive definite the Gauss-Newton point is meaningless and the
// Cauchy step is used; without positive curvature along 𝐠 it spans the whole region.
type DoglegStep struct {
	gradientDirection
	gn       []float64 // 𝐩ᴳᴺ
	diff     []float64 // 𝐩ᴳᴺ - 𝐩ᶜ
	pd       bool
	distGN   float64 // ‖𝐩ᴳᴺ‖
	distC    float64 // ‖𝐩ᶜ‖ without region
	gTgn     float64 // 𝐠ᵀ𝐩ᴳᴺ
	gnToCauc float64 // ‖𝐩ᴳᴺ - 𝐩ᶜ‖

	predicted, length float64
}

func (d *DoglegStep) Init(n int) {
	d.init(n)
	if len(d.gn) != n {
		d.gn = make([]float64, n)
		d.diff = make([]float64, n)
	}
}

func (d *DoglegStep) InitializeUpdate(g []float64, h hessian.Math) {
	d.update(g, h)

	d.pd = d.gBg > 0 && h.InitializeSolver() && h.Solve(g, d.gn)
	if d.pd {
		floats.Scale(-1, d.gn)
		d.distGN = floats.Norm(d.gn, 2)
		d.gTgn = floats.Dot(g, d.gn)
		d.pd = d.gTgn < 0 && !math.IsInf(d.distGN, 0) && !math.IsNaN(d.distGN)
	}
	if d.pd {
		d.distC = d.gnorm / d.gBg
		// 𝐩ᴳᴺ - 𝐩ᶜ = 𝐩ᴳᴺ + ‖𝐩ᶜ‖𝐝
		floats.AddScaledTo(d.diff, d.gn, d.distC, d.dir)
		d.gnToCauc = floats.Norm(d.diff, 2)
	}
}

// IsPositiveDefinite reports whether the last model had a Gauss-Newton point.
func (d *DoglegStep) IsPositiveDefinite() bool { return d.pd }

func (d *DoglegStep) ComputeUpdate(p []float64, radius float64) {
	switch {
	case !d.pd:
		d.length, d.predicted = d.cauchy(p, radius)
	case d.distGN <= radius:
		copy(p, d.gn)
		d.length = d.distGN
		// 𝐇𝐩ᴳᴺ = -𝐠
		d.predicted = -0.5 * d.gTgn
	case d.distC >= radius:
		d.length, d.predicted = d.cauchy(p, radius)
	default:
		beta := fractionCauchyToGN(d.distC, d.distGN, d.gnToCauc, radius)
		// 𝐩 = (1-β)𝐩ᶜ + β𝐩ᴳᴺ
		floats.ScaleTo(p, -(1-beta)*d.distC, d.dir)
		floats.AddScaled(p, beta, d.gn)
		d.length = radius

		// 𝐠ᵀ𝐩ᶜ = -‖𝐩ᶜ‖‖𝐠‖, 𝐩ᶜᵀ𝐇𝐩ᶜ = ‖𝐩ᶜ‖²𝐝ᵀ𝐇𝐝, 𝐩ᶜᵀ𝐇𝐩ᴳᴺ = -𝐠ᵀ𝐩ᶜ, 𝐩ᴳᴺᵀ𝐇𝐩ᴳᴺ = -𝐠ᵀ𝐩ᴳᴺ
		a := 1 - beta
		gTpc := -d.distC * d.gnorm
		gTp := a*gTpc + beta*d.gTgn
		pHp := a*a*d.distC*d.distC*d.gBg - 2*a*beta*gTpc - beta*beta*d.gTgn
		d.predicted = -gTp - 0.5*pHp
	}
}

func (d *DoglegStep) PredictedReduction() float64 { return d.predicted }

func (d *DoglegStep) StepLength() float64 { return d.length }

// fractionCauchyToGN returns β such that the point at β along the segment from the
// Cauchy point (distance lengthPtoC from the origin) to the Gauss-Newton point
// (distance lengthPtoGN, segment length lengthCtoGN) lies at distance region.
// It solves the triangle formed by the origin and both points with the law of cosines.
func fractionCauchyToGN(lengthPtoC, lengthPtoGN, lengthCtoGN, region float64) float64 {
	a, b, c := lengthPtoGN, lengthPtoC, lengthCtoGN
	cosineA := (a*a - b*b - c*c) / (-2 * b * c)
	cosineA = math.Max(-1, math.Min(1, cosineA))
	angleA := math.Acos(cosineA)

	// Law of sines for the angle opposite of b in the triangle with sides (region, b, x).
	sinB := math.Min(1, b*math.Sin(angleA)/region)
	angleB := math.Asin(sinB)
	angleC := math.Pi - angleA - angleB

	x := region * math.Sin(angleC) / math.Sin(angleA)
	if math.IsNaN(x) || math.Sin(angleA) == 0 {
		// Collinear points: the boundary lies (region - b) further along the segment.
		x = region - b
		if cosineA > 0 {
			x = region + b
		}
	}
	return math.Max(0, math.Min(1, x/c))
}

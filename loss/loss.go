// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package loss maps raw residuals through robust M-estimators before they reach
// the Gauss-Newton model.
//
// For a loss ρ the cost is ∑ρ(rᵢ). Linearizing at the current residuals gives the
// iteratively reweighted model with weights wᵢ = ρ′(rᵢ)/rᵢ:
//
//	𝐠 = 𝐉ᵀ𝐖𝐫   𝐇 ≈ 𝐉ᵀ𝐖𝐉
//
// The squared loss ρ(r) = ½r² is the identity case with wᵢ = 1.
package loss

import (
	"math"

	"github.com/viterin/vek"
)

// Function is a robust loss over a residual vector.
type Function interface {
	// Cost returns ∑ρ(rᵢ).
	Cost(r []float64) float64
	// Weights writes wᵢ = ρ′(rᵢ)/rᵢ into w, with wᵢ = ρ″(0) at rᵢ = 0.
	Weights(r, w []float64)
	// Fixate is called with the residuals at every new linearization point.
	// It returns true when the cost definition changed, so that the caller
	// must re-evaluate the cost at the current point.
	Fixate(r []float64) bool
}

// Squared is the least-squares loss ρ(r) = ½r².
type Squared struct{}

func (Squared) Cost(r []float64) float64 {
	if len(r) == 0 {
		return 0
	}
	return 0.5 * vek.Dot(r, r)
}

func (Squared) Weights(r, w []float64) {
	for i := range r {
		w[i] = 1
	}
}

func (Squared) Fixate([]float64) bool { return false }

// Huber is quadratic for |r| ≤ T and linear beyond:
//
//	ρ(r) = ½r²          |r| ≤ T
//	ρ(r) = T(|r| - ½T)  |r| > T
type Huber struct {
	T float64
}

func (l Huber) Cost(r []float64) (sum float64) {
	for _, v := range r {
		if a := math.Abs(v); a <= l.T {
			sum += 0.5 * v * v
		} else {
			sum += l.T * (a - 0.5*l.T)
		}
	}
	return
}

func (l Huber) Weights(r, w []float64) {
	for i, v := range r {
		if a := math.Abs(v); a <= l.T {
			w[i] = 1
		} else {
			w[i] = l.T / a
		}
	}
}

func (Huber) Fixate([]float64) bool { return false }

// HuberSmooth is the pseudo-Huber loss, a smooth approximation of Huber:
//
//	ρ(r) = T²(√(1+(r/T)²) - 1)
type HuberSmooth struct {
	T float64
}

func (l HuberSmooth) Cost(r []float64) (sum float64) {
	t2 := l.T * l.T
	for _, v := range r {
		q := v / l.T
		sum += t2 * (math.Sqrt(1+q*q) - 1)
	}
	return
}

func (l HuberSmooth) Weights(r, w []float64) {
	for i, v := range r {
		q := v / l.T
		w[i] = 1 / math.Sqrt(1+q*q)
	}
}

func (HuberSmooth) Fixate([]float64) bool { return false }

// Cauchy is the Lorentzian loss ρ(r) = ½T² log(1+(r/T)²).
type Cauchy struct {
	T float64
}

func (l Cauchy) Cost(r []float64) (sum float64) {
	t2 := l.T * l.T
	for _, v := range r {
		q := v / l.T
		sum += 0.5 * t2 * math.Log1p(q*q)
	}
	return
}

func (l Cauchy) Weights(r, w []float64) {
	for i, v := range r {
		q := v / l.T
		w[i] = 1 / (1 + q*q)
	}
}

func (Cauchy) Fixate([]float64) bool { return false }

// Tukey is the biweight loss. Residuals beyond T have no influence:
//
//	ρ(r) = T²/6 (1 - (1-(r/T)²)³)  |r| ≤ T
//	ρ(r) = T²/6                    |r| > T
type Tukey struct {
	T float64
}

func (l Tukey) Cost(r []float64) (sum float64) {
	c := l.T * l.T / 6
	for _, v := range r {
		if math.Abs(v) <= l.T {
			q := v / l.T
			u := 1 - q*q
			sum += c * (1 - u*u*u)
		} else {
			sum += c
		}
	}
	return
}

func (l Tukey) Weights(r, w []float64) {
	for i, v := range r {
		if math.Abs(v) <= l.T {
			q := v / l.T
			u := 1 - q*q
			w[i] = u * u
		} else {
			w[i] = 0
		}
	}
}

func (Tukey) Fixate([]float64) bool { return false }

// IRLS is an iteratively reweighted least-squares loss with caller supplied weights.
// The cost is ½∑wᵢrᵢ² where the weights are recomputed by Weigh at every Fixate and
// held constant in between, so that candidate steps are compared under the same weights.
type IRLS struct {
	// Weigh writes the weight of every residual into w.
	Weigh func(r, w []float64)

	weights []float64
	scratch []float64
}

// NewIRLS creates an IRLS loss from a weighting callback.
func NewIRLS(weigh func(r, w []float64)) *IRLS {
	return &IRLS{Weigh: weigh}
}

func (l *IRLS) Cost(r []float64) float64 {
	if len(r) == 0 {
		return 0
	}
	if len(l.weights) != len(r) {
		return Squared{}.Cost(r)
	}
	l.scratch = append(l.scratch[:0], r...)
	vek.Mul_Inplace(l.scratch, l.weights)
	return 0.5 * vek.Dot(l.scratch, r)
}

func (l *IRLS) Weights(r, w []float64) {
	if len(l.weights) != len(r) {
		Squared{}.Weights(r, w)
		return
	}
	copy(w, l.weights)
}

func (l *IRLS) Fixate(r []float64) bool {
	if cap(l.weights) < len(r) {
		l.weights = make([]float64, len(r))
	}
	l.weights = l.weights[:len(r)]
	l.Weigh(r, l.weights)
	return true
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hessian computes, approximates and solves with the Hessian 𝐇 of a
// Gauss-Newton style problem. Three forms are provided:
//
//   - LeastSquares: the dense squared Jacobian 𝐇 = 𝐉ᵀ𝐉
//   - BFGS: a rank-2 updated approximation for general minimization
//   - Schur: the block form [𝐀 𝐁; 𝐁ᵀ 𝐃] of a Jacobian split in two parameter groups
//
// All storage is allocated by Init so that the per-iteration calls do not allocate.
package hessian

// Math is the strategy a solver uses to manipulate its Hessian.
type Math interface {
	// Init allocates storage for n parameters.
	Init(n int)
	// InnerVectorHessian returns 𝐯ᵀ𝐇𝐯.
	InnerVectorHessian(v []float64) float64
	// ExtractDiagonals copies the diagonal of 𝐇 into diag.
	ExtractDiagonals(diag []float64)
	// SetDiagonals overwrites the diagonal of 𝐇 with diag.
	SetDiagonals(diag []float64)
	// DivideRowsCols scales 𝐇ᵢⱼ ← 𝐇ᵢⱼ / (sᵢ sⱼ).
	DivideRowsCols(scaling []float64)
	// InitializeSolver factorizes the current 𝐇.
	// It returns false when 𝐇 is not positive definite.
	InitializeSolver() bool
	// Solve computes step = 𝐇⁻¹ rhs using the last factorization.
	// It returns false when the system is singular or ill-conditioned.
	Solve(rhs, step []float64) bool
}

// MaxDiagonalMagnitude returns max|diagᵢ|.
func MaxDiagonalMagnitude(diag []float64) (m float64) {
	for _, v := range diag {
		if v < 0 {
			v = -v
		}
		if v > m {
			m = v
		}
	}
	return
}

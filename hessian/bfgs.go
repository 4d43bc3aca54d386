// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hessian

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// BFGS approximates the Hessian 𝐁 of a general cost function from the observed
// changes in location 𝐬 = 𝐱ₖ₊₁ - 𝐱ₖ and gradient 𝐲 = 𝐠ₖ₊₁ - 𝐠ₖ:
//
//	𝐁ₖ₊₁ = 𝐁ₖ + 𝐲𝐲ᵀ/𝐲ᵀ𝐬 - 𝐁ₖ𝐬𝐬ᵀ𝐁ₖ/𝐬ᵀ𝐁ₖ𝐬
//
// The update is a rank-2 correction applied in O(n²).
// It preserves positive definiteness in exact arithmetic when 𝐲ᵀ𝐬 > 0,
// but a drifting approximation may lose it, which InitializeSolver reports.
type BFGS struct {
	// The first accepted update rescales the identity by 𝐲ᵀ𝐲/𝐲ᵀ𝐬 unless disabled.
	NoInitialScaling bool

	first    bool
	h        *mat.SymDense
	chol     mat.Cholesky
	pd       bool
	s, y, hs *mat.VecDense
	rhs, sol *mat.VecDense
}

func NewBFGS() *BFGS {
	return &BFGS{}
}

func (b *BFGS) Init(n int) {
	if b.h == nil || b.h.SymmetricDim() != n {
		b.h = mat.NewSymDense(n, nil)
		b.s = mat.NewVecDense(n, nil)
		b.y = mat.NewVecDense(n, nil)
		b.hs = mat.NewVecDense(n, nil)
		b.rhs = mat.NewVecDense(n, nil)
		b.sol = mat.NewVecDense(n, nil)
	}
	b.Reset()
}

// Reset restores the identity approximation.
func (b *BFGS) Reset() {
	symIdentity(b.h, 1)
	b.first = !b.NoInitialScaling
	b.pd = false
}

// Hessian exposes the current approximation.
func (b *BFGS) Hessian() *mat.SymDense {
	return b.h
}

// SetHessian replaces the current approximation with m.
func (b *BFGS) SetHessian(m mat.Symmetric) {
	b.h.CopySym(m)
	b.first = false
	b.pd = false
}

// Update applies the BFGS correction for step s and gradient change y.
// The update is skipped, returning false, when the curvature condition
// 𝐬ᵀ𝐲 > ε‖𝐲‖² does not hold.
func (b *BFGS) Update(s, y []float64) bool {
	sy := floats.Dot(s, y)
	yy := floats.Dot(y, y)
	if sy <= epsilon*yy || sy <= 0 {
		return false
	}

	copy(b.s.RawVector().Data, s)
	copy(b.y.RawVector().Data, y)

	if b.first {
		// Nocedal & Wright (2006), eq. 6.20
		symIdentity(b.h, yy/sy)
		b.first = false
	}

	b.hs.MulVec(b.h, b.s)
	sBs := mat.Dot(b.s, b.hs)
	if sBs <= 0 || math.IsNaN(sBs) {
		return false
	}

	b.h.SymRankOne(b.h, 1/sy, b.y)
	b.h.SymRankOne(b.h, -1/sBs, b.hs)
	return true
}

func (b *BFGS) InnerVectorHessian(v []float64) float64 {
	return symInner(b.h, v)
}

func (b *BFGS) ExtractDiagonals(diag []float64) {
	symDiagonal(b.h, diag)
}

func (b *BFGS) SetDiagonals(diag []float64) {
	symSetDiagonal(b.h, diag)
}

func (b *BFGS) DivideRowsCols(scaling []float64) {
	symDivide(b.h, scaling)
}

func (b *BFGS) InitializeSolver() bool {
	b.pd = b.chol.Factorize(b.h)
	return b.pd
}

func (b *BFGS) Solve(rhs, step []float64) bool {
	if !b.pd {
		return false
	}
	copy(b.rhs.RawVector().Data, rhs)
	if err := b.chol.SolveVecTo(b.sol, b.rhs); err != nil {
		return false
	}
	copy(step, b.sol.RawVector().Data)
	return true
}

var epsilon = math.Nextafter(1, 2) - 1

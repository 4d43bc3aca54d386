// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hessian

import "gonum.org/v1/gonum/mat"

// LeastSquares approximates the Hessian of ½‖𝐫(𝐱)‖² with the squared Jacobian 𝐇 = 𝐉ᵀ𝐉.
// The approximation is always positive semi-definite.
type LeastSquares struct {
	solver   Factorizer
	analyzed bool
	h        *mat.SymDense
	rhs, sol *mat.VecDense
}

// NewLeastSquares creates the dense form solved with f.
// A nil f uses a DenseCholesky.
func NewLeastSquares(f Factorizer) *LeastSquares {
	if f == nil {
		f = &DenseCholesky{}
	}
	return &LeastSquares{solver: f}
}

func (ls *LeastSquares) Init(n int) {
	if ls.h == nil || ls.h.SymmetricDim() != n {
		ls.h = mat.NewSymDense(n, nil)
		ls.rhs = mat.NewVecDense(n, nil)
		ls.sol = mat.NewVecDense(n, nil)
		ls.analyzed = false
	} else {
		ls.h.Zero()
	}
}

// Hessian exposes the current matrix.
func (ls *LeastSquares) Hessian() *mat.SymDense {
	return ls.h
}

// Update computes 𝐇 = 𝐉ᵀ𝐉 from an m×n Jacobian.
func (ls *LeastSquares) Update(jac *mat.Dense) {
	ls.h.SymOuterK(1, jac.T())
}

// Gradient computes 𝐠 = 𝐉ᵀ𝐫.
func (ls *LeastSquares) Gradient(jac *mat.Dense, r, g []float64) {
	mulTransVec(jac, r, g)
}

func (ls *LeastSquares) InnerVectorHessian(v []float64) float64 {
	return symInner(ls.h, v)
}

func (ls *LeastSquares) ExtractDiagonals(diag []float64) {
	symDiagonal(ls.h, diag)
}

func (ls *LeastSquares) SetDiagonals(diag []float64) {
	symSetDiagonal(ls.h, diag)
}

func (ls *LeastSquares) DivideRowsCols(scaling []float64) {
	symDivide(ls.h, scaling)
}

func (ls *LeastSquares) InitializeSolver() bool {
	if !ls.analyzed {
		ls.solver.Analyze(ls.h)
		ls.analyzed = true
	}
	return ls.solver.Factorize(ls.h)
}

func (ls *LeastSquares) Solve(rhs, step []float64) bool {
	return solveWith(ls.solver, ls.rhs, ls.sol, rhs, step)
}

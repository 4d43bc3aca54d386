// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hessian

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Schur is the block form of 𝐇 = 𝐉ᵀ𝐉 for a Jacobian split into two parameter groups 𝐉 = [𝐋 𝐑]:
//
//	𝐇 = ⎡ 𝐀  𝐁 ⎤ = ⎡ 𝐋ᵀ𝐋  𝐋ᵀ𝐑 ⎤
//	    ⎣ 𝐁ᵀ 𝐃 ⎦   ⎣ 𝐑ᵀ𝐋  𝐑ᵀ𝐑 ⎦
//
// The system 𝐇𝐱 = 𝐛 is solved by eliminating the left block:
//
//  1. 𝐲 = 𝐀⁻¹𝐛₁
//  2. 𝐃′ = 𝐃 - 𝐁ᵀ𝐀⁻¹𝐁 and 𝐛₂′ = 𝐛₂ - 𝐁ᵀ𝐲
//  3. 𝐱₂ = 𝐃′⁻¹𝐛₂′
//  4. 𝐱₁ = 𝐀⁻¹(𝐛₁ - 𝐁𝐱₂)
//
// The full n×n matrix is never formed. Both factorizers are structure locked
// by the first InitializeSolver: only numeric values change afterwards.
type Schur struct {
	solverA, solverD Factorizer
	locked           bool

	n1, n2 int
	a, d   *mat.SymDense
	b      *mat.Dense
	ainvB  *mat.Dense    // 𝐀⁻¹𝐁
	btAB   *mat.Dense    // 𝐁ᵀ𝐀⁻¹𝐁
	dp     *mat.SymDense // 𝐃′

	b1, y, t1 *mat.VecDense // n1
	b2, t2    *mat.VecDense // n2
	x1        *mat.VecDense // n1
	x2        *mat.VecDense // n2
}

// NewSchur creates the block form where fa factorizes 𝐀 and fd factorizes 𝐃′.
// Nil factorizers default to DenseCholesky.
func NewSchur(fa, fd Factorizer) *Schur {
	if fa == nil {
		fa = &DenseCholesky{}
	}
	if fd == nil {
		fd = &DenseCholesky{}
	}
	return &Schur{solverA: fa, solverD: fd}
}

// InitBlocks allocates storage for left and right parameter groups.
func (s *Schur) InitBlocks(left, right int) {
	if s.a != nil && s.n1 == left && s.n2 == right {
		s.a.Zero()
		s.d.Zero()
		s.b.Zero()
		return
	}
	s.n1, s.n2 = left, right
	s.a = mat.NewSymDense(left, nil)
	s.d = mat.NewSymDense(right, nil)
	s.b = mat.NewDense(left, right, nil)
	s.ainvB = mat.NewDense(left, right, nil)
	s.btAB = mat.NewDense(right, right, nil)
	s.dp = mat.NewSymDense(right, nil)
	s.b1 = mat.NewVecDense(left, nil)
	s.y = mat.NewVecDense(left, nil)
	s.t1 = mat.NewVecDense(left, nil)
	s.x1 = mat.NewVecDense(left, nil)
	s.b2 = mat.NewVecDense(right, nil)
	s.t2 = mat.NewVecDense(right, nil)
	s.x2 = mat.NewVecDense(right, nil)
	s.locked = false
}

// Init requires the split to be set by InitBlocks first.
func (s *Schur) Init(n int) {
	if s.a == nil || n != s.n1+s.n2 {
		panic("hessian: schur blocks must be initialized by InitBlocks")
	}
}

// Blocks exposes 𝐀, 𝐁 and 𝐃.
func (s *Schur) Blocks() (a *mat.SymDense, b *mat.Dense, d *mat.SymDense) {
	return s.a, s.b, s.d
}

// Update computes 𝐀 = 𝐋ᵀ𝐋, 𝐁 = 𝐋ᵀ𝐑 and 𝐃 = 𝐑ᵀ𝐑.
func (s *Schur) Update(left, right *mat.Dense) {
	s.a.SymOuterK(1, left.T())
	s.d.SymOuterK(1, right.T())
	s.b.Mul(left.T(), right)
}

// Gradient computes 𝐠 = [𝐋ᵀ𝐫; 𝐑ᵀ𝐫].
func (s *Schur) Gradient(left, right *mat.Dense, r, g []float64) {
	mulTransVec(left, r, g[:s.n1])
	mulTransVec(right, r, g[s.n1:s.n1+s.n2])
}

func (s *Schur) InnerVectorHessian(v []float64) float64 {
	v1, v2 := v[:s.n1], v[s.n1:s.n1+s.n2]
	raw := s.b.RawMatrix()
	cross := 0.0
	for i, vi := range v1 {
		cross += vi * floats.Dot(raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols], v2)
	}
	return symInner(s.a, v1) + 2*cross + symInner(s.d, v2)
}

func (s *Schur) ExtractDiagonals(diag []float64) {
	symDiagonal(s.a, diag[:s.n1])
	symDiagonal(s.d, diag[s.n1:])
}

func (s *Schur) SetDiagonals(diag []float64) {
	symSetDiagonal(s.a, diag[:s.n1])
	symSetDiagonal(s.d, diag[s.n1:])
}

func (s *Schur) DivideRowsCols(scaling []float64) {
	s1, s2 := scaling[:s.n1], scaling[s.n1:]
	symDivide(s.a, s1)
	symDivide(s.d, s2)
	raw := s.b.RawMatrix()
	for i, si := range s1 {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			row[j] /= si * s2[j]
		}
	}
}

func (s *Schur) InitializeSolver() bool {
	if !s.locked {
		s.solverA.Analyze(s.a)
	}
	if !s.solverA.Factorize(s.a) {
		return false
	}
	if err := s.solverA.SolveTo(s.ainvB, s.b); err != nil {
		return false
	}

	s.btAB.Mul(s.b.T(), s.ainvB)
	raw, t := s.dp.RawSymmetric(), s.btAB.RawMatrix()
	for i := 0; i < s.n2; i++ {
		for j := i; j < s.n2; j++ {
			// symmetrize to absorb round-off in 𝐁ᵀ𝐀⁻¹𝐁
			v := 0.5 * (t.Data[i*t.Stride+j] + t.Data[j*t.Stride+i])
			raw.Data[i*raw.Stride+j] = s.d.At(i, j) - v
		}
	}

	if !s.locked {
		s.solverD.Analyze(s.dp)
		s.locked = true
	}
	return s.solverD.Factorize(s.dp)
}

func (s *Schur) Solve(rhs, step []float64) bool {
	n1, n2 := s.n1, s.n2
	if len(rhs) < n1+n2 || len(step) < n1+n2 {
		panic("bound check error")
	}
	copy(s.b1.RawVector().Data, rhs[:n1])
	copy(s.b2.RawVector().Data, rhs[n1:n1+n2])

	// 𝐲 = 𝐀⁻¹𝐛₁
	if err := s.solverA.SolveVecTo(s.y, s.b1); err != nil {
		return false
	}
	// 𝐛₂′ = 𝐛₂ - 𝐁ᵀ𝐲
	s.t2.MulVec(s.b.T(), s.y)
	s.t2.SubVec(s.b2, s.t2)
	// 𝐱₂ = 𝐃′⁻¹𝐛₂′
	if err := s.solverD.SolveVecTo(s.x2, s.t2); err != nil {
		return false
	}
	// 𝐱₁ = 𝐀⁻¹(𝐛₁ - 𝐁𝐱₂)
	s.t1.MulVec(s.b, s.x2)
	s.t1.SubVec(s.b1, s.t1)
	if err := s.solverA.SolveVecTo(s.x1, s.t1); err != nil {
		return false
	}

	x1, x2 := s.x1.RawVector().Data, s.x2.RawVector().Data
	if floats.HasNaN(x1) || floats.HasNaN(x2) {
		return false
	}
	copy(step[:n1], x1)
	copy(step[n1:], x2)
	return true
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hessian

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Kernels over the upper triangle of a mat.SymDense.
// They work on the raw storage so that no temporary is allocated.

// symInner returns 𝐯ᵀ𝐒𝐯.
func symInner(s *mat.SymDense, v []float64) (sum float64) {
	raw := s.RawSymmetric()
	n := raw.N
	if len(v) < n {
		panic("bound check error")
	}
	for i := 0; i < n; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+n]
		sum += v[i] * (row[i]*v[i] + 2*floats.Dot(row[i+1:], v[i+1:n]))
	}
	return
}

func symDiagonal(s *mat.SymDense, diag []float64) {
	raw := s.RawSymmetric()
	for i := 0; i < raw.N; i++ {
		diag[i] = raw.Data[i*raw.Stride+i]
	}
}

func symSetDiagonal(s *mat.SymDense, diag []float64) {
	raw := s.RawSymmetric()
	for i := 0; i < raw.N; i++ {
		raw.Data[i*raw.Stride+i] = diag[i]
	}
}

// symDivide scales 𝐒ᵢⱼ ← 𝐒ᵢⱼ / (sᵢ sⱼ).
func symDivide(s *mat.SymDense, scaling []float64) {
	raw := s.RawSymmetric()
	n := raw.N
	if len(scaling) < n {
		panic("bound check error")
	}
	for i := 0; i < n; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+n]
		si := scaling[i]
		for j := i; j < n; j++ {
			row[j] /= si * scaling[j]
		}
	}
}

func symIdentity(s *mat.SymDense, v float64) {
	raw := s.RawSymmetric()
	for i := 0; i < raw.N; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.N]
		for j := i; j < raw.N; j++ {
			row[j] = 0
		}
		row[i] = v
	}
}

// mulTransVec computes 𝐠 = 𝐉ᵀ𝐫 row by row.
func mulTransVec(jac *mat.Dense, r, g []float64) {
	raw := jac.RawMatrix()
	if len(r) < raw.Rows || len(g) < raw.Cols {
		panic("bound check error")
	}
	g = g[:raw.Cols]
	for j := range g {
		g[j] = 0
	}
	for i := 0; i < raw.Rows; i++ {
		if ri := r[i]; ri != 0 {
			floats.AddScaled(g, ri, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols])
		}
	}
}

// solveWith runs a factorizer on plain slices through preallocated vectors.
func solveWith(f Factorizer, rhs, sol *mat.VecDense, in, out []float64) bool {
	copy(rhs.RawVector().Data, in)
	if err := f.SolveVecTo(sol, rhs); err != nil {
		return false
	}
	data := sol.RawVector().Data
	if floats.HasNaN(data) {
		return false
	}
	copy(out, data)
	return true
}

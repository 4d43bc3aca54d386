// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optim

import "gonum.org/v1/gonum/mat"

// FunctionNtoM computes the residuals 𝐫(𝐱) : ℝⁿ → ℝᵐ of a least-squares problem.
type FunctionNtoM interface {
	NumInputs() int
	NumOutputs() int
	// Process writes the m residuals at x into y.
	Process(x, y []float64)
}

// FunctionNtoMxN computes the dense Jacobian 𝐉(𝐱) : ℝⁿ → ℝᵐˣⁿ of a FunctionNtoM.
type FunctionNtoMxN interface {
	NumInputs() int
	NumOutputs() int
	// Process writes the m×n Jacobian at x into jac.
	Process(x []float64, jac *mat.Dense)
}

// FunctionSchurJacobian computes a Jacobian split column-wise into two blocks
// 𝐉 = [𝐋 𝐑] where 𝐋 spans the first NumLeft parameters and 𝐑 the remaining NumRight.
type FunctionSchurJacobian interface {
	NumLeft() int
	NumRight() int
	NumOutputs() int
	// Process writes the m×NumLeft block into left and the m×NumRight block into right.
	Process(x []float64, left, right *mat.Dense)
}

// FunctionNtoS computes a scalar cost 𝒇(𝐱) : ℝⁿ → ℝ.
type FunctionNtoS interface {
	NumInputs() int
	Process(x []float64) float64
}

// FunctionNtoN computes the gradient 𝒇′(𝐱) : ℝⁿ → ℝⁿ of a FunctionNtoS.
type FunctionNtoN interface {
	NumInputs() int
	// Process writes the gradient at x into g.
	Process(x, g []float64)
}

// ResidualFunc adapts a closure to FunctionNtoM.
type ResidualFunc struct {
	N, M int
	Func func(x, y []float64)
}

func (f ResidualFunc) NumInputs() int         { return f.N }
func (f ResidualFunc) NumOutputs() int        { return f.M }
func (f ResidualFunc) Process(x, y []float64) { f.Func(x, y) }

// JacobianFunc adapts a closure to FunctionNtoMxN.
type JacobianFunc struct {
	N, M int
	Func func(x []float64, jac *mat.Dense)
}

func (f JacobianFunc) NumInputs() int                      { return f.N }
func (f JacobianFunc) NumOutputs() int                     { return f.M }
func (f JacobianFunc) Process(x []float64, jac *mat.Dense) { f.Func(x, jac) }

// SchurJacobianFunc adapts a closure to FunctionSchurJacobian.
type SchurJacobianFunc struct {
	Left, Right, M int
	Func           func(x []float64, left, right *mat.Dense)
}

func (f SchurJacobianFunc) NumLeft() int    { return f.Left }
func (f SchurJacobianFunc) NumRight() int   { return f.Right }
func (f SchurJacobianFunc) NumOutputs() int { return f.M }
func (f SchurJacobianFunc) Process(x []float64, left, right *mat.Dense) {
	f.Func(x, left, right)
}

// CostFunc adapts a closure to FunctionNtoS.
type CostFunc struct {
	N    int
	Func func(x []float64) float64
}

func (f CostFunc) NumInputs() int                { return f.N }
func (f CostFunc) Process(x []float64) float64 { return f.Func(x) }

// GradientFunc adapts a closure to FunctionNtoN.
type GradientFunc struct {
	N    int
	Func func(x, g []float64)
}

func (f GradientFunc) NumInputs() int         { return f.N }
func (f GradientFunc) Process(x, g []float64) { f.Func(x, g) }

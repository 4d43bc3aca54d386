// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gaussnewton

import (
	"github.com/viterin/vek"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/leastsq/hessian"
	"github.com/curioloop/leastsq/loss"
	"github.com/curioloop/leastsq/optim"
)

// objective evaluates the cost and the local quadratic model of one problem kind.
type objective interface {
	numParams() int
	// init allocates storage and binds the Hessian.
	init()
	cost(x []float64) float64
	// derivatives writes the gradient at x into g and refreshes the Hessian.
	// It returns true when the cost definition changed and f(x) must be recomputed.
	derivatives(x, g []float64) bool
}

// lossy objectives accept a robust loss.
type lossy interface {
	setLoss(l loss.Function)
}

// residuals holds the weighted residual vector shared by the least-squares objectives.
type residuals struct {
	fn   optim.FunctionNtoM
	loss loss.Function
	r, w []float64
}

func (o *residuals) alloc() {
	m := o.fn.NumOutputs()
	if len(o.r) != m {
		o.r = make([]float64, m)
		o.w = make([]float64, m)
	}
}

func (o *residuals) setLoss(l loss.Function) {
	o.loss = l
}

func (o *residuals) cost(x []float64) float64 {
	o.fn.Process(x, o.r)
	return o.loss.Cost(o.r)
}

// weigh evaluates the residuals at x and turns them into √𝐖𝐫.
// It returns the row scaling √𝐖 (nil for the squared loss) and whether the loss was re-fixated.
func (o *residuals) weigh(x []float64) (sqrtW []float64, changed bool) {
	o.fn.Process(x, o.r)
	changed = o.loss.Fixate(o.r)
	if _, ok := o.loss.(loss.Squared); ok {
		return nil, changed
	}
	o.loss.Weights(o.r, o.w)
	vek.Sqrt_Inplace(o.w)
	vek.Mul_Inplace(o.r, o.w)
	return o.w, changed
}

// scaleRows multiplies the i-th row of m by wᵢ.
func scaleRows(m *mat.Dense, w []float64) {
	if w == nil {
		return
	}
	raw := m.RawMatrix()
	for i, wi := range w {
		floats.Scale(wi, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols])
	}
}

// leastSquares is ½Σρ(rᵢ) with a dense Jacobian and 𝐇 = 𝐉ᵀ𝐖𝐉.
type leastSquares struct {
	residuals
	jac optim.FunctionNtoMxN
	h   *hessian.LeastSquares
	J   *mat.Dense
}

func (o *leastSquares) numParams() int { return o.fn.NumInputs() }

func (o *leastSquares) init() {
	o.alloc()
	n, m := o.fn.NumInputs(), o.fn.NumOutputs()
	if r, c := dims(o.J); r != m || c != n {
		o.J = mat.NewDense(m, n, nil)
	}
	o.h.Init(n)
}

func (o *leastSquares) derivatives(x, g []float64) bool {
	w, changed := o.weigh(x)
	o.jac.Process(x, o.J)
	scaleRows(o.J, w)
	o.h.Update(o.J)
	o.h.Gradient(o.J, o.r, g)
	return changed
}

// schurLeastSquares is ½Σρ(rᵢ) with a Jacobian split into left and right parameter groups.
type schurLeastSquares struct {
	residuals
	jac         optim.FunctionSchurJacobian
	h           *hessian.Schur
	left, right *mat.Dense
}

func (o *schurLeastSquares) numParams() int { return o.jac.NumLeft() + o.jac.NumRight() }

func (o *schurLeastSquares) init() {
	o.alloc()
	m, nl, nr := o.jac.NumOutputs(), o.jac.NumLeft(), o.jac.NumRight()
	if r, c := dims(o.left); r != m || c != nl {
		o.left = mat.NewDense(m, nl, nil)
	}
	if r, c := dims(o.right); r != m || c != nr {
		o.right = mat.NewDense(m, nr, nil)
	}
	o.h.InitBlocks(nl, nr)
	o.h.Init(nl + nr)
}

func (o *schurLeastSquares) derivatives(x, g []float64) bool {
	w, changed := o.weigh(x)
	o.jac.Process(x, o.left, o.right)
	scaleRows(o.left, w)
	scaleRows(o.right, w)
	o.h.Update(o.left, o.right)
	o.h.Gradient(o.left, o.right, o.r, g)
	return changed
}

// minimization is a general cost function with a BFGS Hessian approximation
// refreshed from the change of location and gradient between evaluations.
type minimization struct {
	fn    optim.FunctionNtoS
	grad  optim.FunctionNtoN
	h     *hessian.BFGS
	first bool

	xPrev, gPrev, s, y []float64
}

func (o *minimization) numParams() int { return o.fn.NumInputs() }

func (o *minimization) init() {
	n := o.fn.NumInputs()
	if len(o.xPrev) != n {
		o.xPrev = make([]float64, n)
		o.gPrev = make([]float64, n)
		o.s = make([]float64, n)
		o.y = make([]float64, n)
	}
	o.h.Init(n)
	o.first = true
}

func (o *minimization) cost(x []float64) float64 {
	return o.fn.Process(x)
}

func (o *minimization) derivatives(x, g []float64) bool {
	o.grad.Process(x, g)
	if !o.first {
		floats.SubTo(o.s, x, o.xPrev)
		floats.SubTo(o.y, g, o.gPrev)
		o.h.Update(o.s, o.y)
	}
	o.first = false
	copy(o.xPrev, x)
	copy(o.gPrev, g)
	return false
}

func dims(m *mat.Dense) (r, c int) {
	if m == nil {
		return -1, -1
	}
	return m.Dims()
}

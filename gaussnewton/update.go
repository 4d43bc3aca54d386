// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gaussnewton

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/leastsq/hessian"
)

// ParameterUpdate selects a step inside the trust region of the quadratic model
//
//	m(𝐩) = f + 𝐠ᵀ𝐩 + ½𝐩ᵀ𝐇𝐩
type ParameterUpdate interface {
	// Init allocates storage for n parameters.
	Init(n int)
	// InitializeUpdate binds the gradient and Hessian of the current location.
	// Both stay valid until the next call.
	InitializeUpdate(g []float64, h hessian.Math)
	// ComputeUpdate writes a step with ‖𝐩‖ ≤ radius into p.
	// An infinite radius asks for the unconstrained step.
	ComputeUpdate(p []float64, radius float64)
	// PredictedReduction returns m(0) - m(𝐩) of the last step.
	PredictedReduction() float64
	// StepLength returns ‖𝐩‖ of the last step.
	StepLength() float64
}

// gradientDirection caches the steepest descent quantities of the current model.
type gradientDirection struct {
	dir   []float64 // 𝐠/‖𝐠‖
	gnorm float64   // ‖𝐠‖
	gBg   float64   // 𝐝ᵀ𝐇𝐝 with 𝐝 = 𝐠/‖𝐠‖
}

func (d *gradientDirection) init(n int) {
	if len(d.dir) != n {
		d.dir = make([]float64, n)
	}
}

func (d *gradientDirection) update(g []float64, h hessian.Math) {
	d.gnorm = floats.Norm(g, 2)
	if d.gnorm == 0 {
		clear(d.dir)
		d.gBg = 0
		return
	}
	floats.ScaleTo(d.dir, 1/d.gnorm, g)
	d.gBg = h.InnerVectorHessian(d.dir)
}

// cauchy writes the minimizer of the model along -𝐠 inside radius.
// Without positive curvature the step goes to the boundary.
func (d *gradientDirection) cauchy(p []float64, radius float64) (dist, predicted float64) {
	if d.gBg > 0 {
		dist = math.Min(d.gnorm/d.gBg, radius)
	} else {
		dist = radius
	}
	floats.ScaleTo(p, -dist, d.dir)
	return dist, dist*d.gnorm - 0.5*dist*dist*d.gBg
}

// CauchyStep moves along the steepest descent direction to the minimum of the
// model, truncated by the region.
type CauchyStep struct {
	gradientDirection
	predicted, length float64
}

func (c *CauchyStep) Init(n int) {
	c.init(n)
}

func (c *CauchyStep) InitializeUpdate(g []float64, h hessian.Math) {
	c.update(g, h)
}

func (c *CauchyStep) ComputeUpdate(p []float64, radius float64) {
	c.length, c.predicted = c.cauchy(p, radius)
}

func (c *CauchyStep) PredictedReduction() float64 { return c.predicted }

func (c *CauchyStep) StepLength() float64 { return c.length }

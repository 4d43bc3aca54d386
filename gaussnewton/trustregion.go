// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gaussnewton

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/leastsq/hessian"
	"github.com/curioloop/leastsq/loss"
	"github.com/curioloop/leastsq/optim"
)

// TrustRegion minimizes the quadratic model inside a region of radius Δ
// that grows and shrinks with the agreement between predicted and actual reduction.
//
// # Reference:
//
//   - Nocedal & Wright (2006), Numerical Optimization, chapter 4
//   - Madsen, Nielsen & Tingleff (2004), Methods for Non-Linear Least Squares Problems
type TrustRegion struct {
	core
	cfg    ConfigTrustRegion
	update ParameterUpdate

	radius     float64
	rejections int

	lastRadius, lastStep float64
}

// NewTrustRegion creates a trust-region solver over the Hessian h.
// A nil update is selected by cfg.Update.
func NewTrustRegion(cfg ConfigTrustRegion, update ParameterUpdate, h hessian.Math) (*TrustRegion, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("hessian is required: %w", optim.ErrConfig)
	}
	if update == nil {
		switch cfg.Update {
		case UpdateCauchy:
			update = &CauchyStep{}
		default:
			update = &DoglegStep{}
		}
	}
	tr := &TrustRegion{cfg: cfg, update: update}
	tr.core = core{cfg: cfg.ConfigGaussNewton, h: h, loss: loss.Squared{}}
	return tr, nil
}

// NewLeastSquaresTrustRegion creates a trust-region solver for a dense least-squares problem.
func NewLeastSquaresTrustRegion(cfg ConfigTrustRegion) (*TrustRegion, error) {
	return NewTrustRegion(cfg, nil, hessian.NewLeastSquares(nil))
}

// NewSchurTrustRegion creates a trust-region solver for a least-squares problem
// solved by Schur complement. Nil factorizers default to dense Cholesky.
func NewSchurTrustRegion(cfg ConfigTrustRegion, fa, fd hessian.Factorizer) (*TrustRegion, error) {
	return NewTrustRegion(cfg, nil, hessian.NewSchur(fa, fd))
}

// NewMinimizeTrustRegion creates a trust-region solver for a general cost function
// with a BFGS Hessian approximation.
func NewMinimizeTrustRegion(cfg ConfigTrustRegion) (*TrustRegion, error) {
	return NewTrustRegion(cfg, nil, hessian.NewBFGS())
}

func (t *TrustRegion) Initialize(x0 []float64, ftol, gtol float64) error {
	if err := t.initialize(x0, ftol, gtol); err != nil {
		return err
	}
	t.update.Init(t.n)
	t.radius = t.cfg.RegionInitial
	t.rejections = 0
	t.lastRadius, t.lastStep = 0, 0
	return nil
}

func (t *TrustRegion) Iterate() (bool, error) {
	return t.iterate(t)
}

// Fit initializes the solver with the configured tolerances and iterates at most maxIterations times.
func (t *TrustRegion) Fit(x0 []float64, maxIterations int) (optim.Result, error) {
	if err := t.Initialize(x0, t.cfg.FTol, t.cfg.GTol); err != nil {
		return optim.Result{}, err
	}
	return optim.Process(t, maxIterations)
}

// Radius returns the current region radius, negative while still to be selected.
func (t *TrustRegion) Radius() float64 { return t.radius }

func (t *TrustRegion) name() string { return "trust region" }

func (t *TrustRegion) derivativesUpdated() {
	t.update.InitializeUpdate(t.g, t.h)
}

func (t *TrustRegion) computeStep() (bool, error) {
	switch t.radius {
	case RegionUnconstrained:
		t.update.ComputeUpdate(t.p, math.Inf(1))
		t.radius = t.selectRadius(t.update.StepLength())
		if t.radius != t.update.StepLength() {
			t.update.ComputeUpdate(t.p, t.radius)
		}
	case RegionCauchy:
		dist := math.Inf(1)
		if gBg := t.h.InnerVectorHessian(t.g); gBg > 0 {
			dist = floats.Dot(t.g, t.g) / gBg * floats.Norm(t.g, 2)
		}
		t.radius = t.selectRadius(10 * dist)
		t.update.ComputeUpdate(t.p, t.radius)
	default:
		t.update.ComputeUpdate(t.p, t.radius)
	}

	predicted := t.update.PredictedReduction()
	t.lastRadius, t.lastStep = t.radius, t.update.StepLength()
	fxCandidate := t.candidate()
	if math.IsNaN(fxCandidate) {
		return false, t.fail("candidate function value is NaN")
	}
	return t.considerCandidate(fxCandidate, predicted, t.lastStep)
}

// selectRadius turns an automatically selected length into a usable radius.
func (t *TrustRegion) selectRadius(length float64) float64 {
	if math.IsInf(length, 0) || math.IsNaN(length) || length <= 0 {
		length = 1
	}
	return math.Min(length, t.cfg.RegionMaximum)
}

// considerCandidate updates the radius from the reduction ratio and accepts the
// candidate when it decreases the function value.
func (t *TrustRegion) considerCandidate(fxCandidate, predicted, stepLength float64) (bool, error) {
	actual := t.fx - fxCandidate
	if actual == 0 || predicted == 0 {
		if t.logger.Enabled(optim.LogTrace) {
			t.logger.Logf("  candidate: no reduction left (actual %.3e, predicted %.3e)\n", actual, predicted)
		}
		return true, nil
	}

	ratio := actual / predicted
	switch {
	case fxCandidate > t.fx || ratio < 0.25:
		t.radius *= 0.5
	case ratio > 0.75:
		t.radius = math.Min(math.Max(3*stepLength, t.radius), t.cfg.RegionMaximum)
	}

	if fxCandidate < t.fx && ratio > 0 {
		if t.logger.Enabled(optim.LogTrace) {
			t.logger.Logf("  accepted: f = %.6e ratio = %.3e step = %.3e region = %.3e\n",
				fxCandidate, ratio, stepLength, t.radius)
		}
		t.rejections = 0
		return t.accept(fxCandidate), nil
	}

	if t.logger.Enabled(optim.LogTrace) {
		t.logger.Logf("  rejected: f = %.6e ratio = %.3e step = %.3e region = %.3e\n",
			fxCandidate, ratio, stepLength, t.radius)
	}
	t.rejections++
	switch {
	case !(t.radius > 0) || math.IsInf(t.radius, 0):
		return false, t.fail(fmt.Sprintf("region radius became %g", t.radius))
	case t.rejections >= t.cfg.MaxRejections:
		return false, t.fail(fmt.Sprintf("%d consecutive candidates rejected", t.rejections))
	}
	return false, nil
}

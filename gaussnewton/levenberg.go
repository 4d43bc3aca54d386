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

// LevenbergMarquardt solves the damped system (𝐇 + μ𝐃)𝐩 = -𝐠 and adapts μ
// from the gain ratio of each candidate.
//
// # Reference:
//
//   - Madsen, Nielsen & Tingleff (2004), Methods for Non-Linear Least Squares Problems, section 3.2
//   - Nielsen (1999), Damping Parameter in Marquardt's Method
type LevenbergMarquardt struct {
	core
	cfg ConfigLevenbergMarquardt

	damp, nu   float64
	minDamp    float64
	solveFails int

	diagOrig, diagDamped []float64

	// damping when the last candidate was proposed
	lastDampBefore float64
}

// NewLevenbergMarquardt creates a Levenberg-Marquardt solver over the Hessian h.
func NewLevenbergMarquardt(cfg ConfigLevenbergMarquardt, h hessian.Math) (*LevenbergMarquardt, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("hessian is required: %w", optim.ErrConfig)
	}
	lm := &LevenbergMarquardt{cfg: cfg}
	lm.core = core{cfg: cfg.ConfigGaussNewton, h: h, loss: loss.Squared{}}
	return lm, nil
}

// DefaultConfigSchurLevenbergMarquardt damps with the Hessian diagonal,
// which keeps the parameter groups of a Schur problem on their own scale.
func DefaultConfigSchurLevenbergMarquardt() ConfigLevenbergMarquardt {
	cfg := DefaultConfigLevenbergMarquardt()
	cfg.DampingMixture = 1
	return cfg
}

// NewLeastSquaresLevenbergMarquardt creates a solver for a dense least-squares problem.
func NewLeastSquaresLevenbergMarquardt(cfg ConfigLevenbergMarquardt) (*LevenbergMarquardt, error) {
	return NewLevenbergMarquardt(cfg, hessian.NewLeastSquares(nil))
}

// NewSchurLevenbergMarquardt creates a solver for a least-squares problem solved by
// Schur complement. Nil factorizers default to dense Cholesky.
func NewSchurLevenbergMarquardt(cfg ConfigLevenbergMarquardt, fa, fd hessian.Factorizer) (*LevenbergMarquardt, error) {
	return NewLevenbergMarquardt(cfg, hessian.NewSchur(fa, fd))
}

func (lm *LevenbergMarquardt) Initialize(x0 []float64, ftol, gtol float64) error {
	if err := lm.initialize(x0, ftol, gtol); err != nil {
		return err
	}
	if len(lm.diagOrig) != lm.n {
		lm.diagOrig = make([]float64, lm.n)
		lm.diagDamped = make([]float64, lm.n)
	}
	lm.damp = lm.cfg.DampingInitial
	lm.nu = 2
	lm.minDamp = 0
	lm.solveFails = 0
	lm.lastDampBefore = lm.damp
	return nil
}

func (lm *LevenbergMarquardt) Iterate() (bool, error) {
	return lm.iterate(lm)
}

// Fit initializes the solver with the configured tolerances and iterates at most maxIterations times.
func (lm *LevenbergMarquardt) Fit(x0 []float64, maxIterations int) (optim.Result, error) {
	if err := lm.Initialize(x0, lm.cfg.FTol, lm.cfg.GTol); err != nil {
		return optim.Result{}, err
	}
	return optim.Process(lm, maxIterations)
}

// Damping returns the current damping parameter μ.
func (lm *LevenbergMarquardt) Damping() float64 { return lm.damp }

func (lm *LevenbergMarquardt) name() string { return "levenberg-marquardt" }

func (lm *LevenbergMarquardt) derivativesUpdated() {
	lm.h.ExtractDiagonals(lm.diagOrig)
	lm.minDamp = lm.cfg.DampingFloor * hessian.MaxDiagonalMagnitude(lm.diagOrig)
	lm.damp = math.Max(lm.damp, lm.minDamp)
	lm.solveFails = 0
}

func (lm *LevenbergMarquardt) computeStep() (bool, error) {
	lm.lastDampBefore = lm.damp

	mix := lm.cfg.DampingMixture
	for i, v := range lm.diagOrig {
		vc := math.Max(lm.cfg.DiagonalMin, math.Min(lm.cfg.DiagonalMax, v))
		lm.diagDamped[i] = v + lm.damp*((1-mix)+mix*vc)
	}
	lm.h.SetDiagonals(lm.diagDamped)
	solved := lm.h.InitializeSolver() && lm.h.Solve(lm.g, lm.p)
	lm.h.SetDiagonals(lm.diagOrig)

	if !solved {
		lm.solveFails++
		if lm.solveFails >= lm.cfg.MaxSolveRetries {
			return false, lm.fail(fmt.Sprintf("damped system unsolvable after %d attempts", lm.solveFails))
		}
		lm.damp = math.Max(10*lm.damp, lm.minDamp)
		if lm.logger.Enabled(optim.LogTrace) {
			lm.logger.Logf("  solve failed: damping = %.3e\n", lm.damp)
		}
		return false, nil
	}
	lm.solveFails = 0
	floats.Scale(-1, lm.p)

	// m(0) - m(𝐩) = ½(𝐩ᵀ𝚫𝐩 - 𝐠ᵀ𝐩) where 𝚫 is the added damping, since (𝐇 + 𝚫)𝐩 = -𝐠
	predicted := -floats.Dot(lm.g, lm.p)
	for i, p := range lm.p {
		predicted += (lm.diagDamped[i] - lm.diagOrig[i]) * p * p
	}
	predicted *= 0.5

	fxCandidate := lm.candidate()
	if math.IsNaN(fxCandidate) {
		return false, lm.fail("candidate function value is NaN")
	}

	actual := lm.fx - fxCandidate
	if actual == 0 || predicted == 0 {
		if lm.logger.Enabled(optim.LogTrace) {
			lm.logger.Logf("  candidate: no reduction left (actual %.3e, predicted %.3e)\n", actual, predicted)
		}
		return true, nil
	}

	if predicted > 0 && actual > 0 {
		ratio := actual / predicted
		lm.damp *= math.Max(1.0/3.0, 1-math.Pow(2*ratio-1, 3))
		lm.damp = math.Max(lm.damp, lm.minDamp)
		lm.nu = 2
		if lm.logger.Enabled(optim.LogTrace) {
			lm.logger.Logf("  accepted: f = %.6e ratio = %.3e damping = %.3e\n", fxCandidate, ratio, lm.damp)
		}
		return lm.accept(fxCandidate), nil
	}

	lm.damp *= lm.nu
	lm.nu *= 2
	if lm.logger.Enabled(optim.LogTrace) {
		lm.logger.Logf("  rejected: f = %.6e damping = %.3e\n", fxCandidate, lm.damp)
	}
	if optim.Uncountable(lm.damp) {
		return false, lm.fail("damping parameter is not finite")
	}
	return false, nil
}

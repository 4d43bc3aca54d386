// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package quasinewton minimizes smooth functions with the BFGS method,
// using a Moré-Thuente line search along the quasi-Newton direction.
package quasinewton

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/leastsq/linesearch"
	"github.com/curioloop/leastsq/numdiff"
	"github.com/curioloop/leastsq/optim"
)

// unboundedStep is the step limit of a search when the function has no known minimum.
const unboundedStep = 1e20

// BFGS keeps an approximation 𝐁 of the inverse Hessian and searches along 𝐩 = -𝐁𝐠.
// After each line search the approximation is corrected in O(n²):
//
//	𝐁ₖ₊₁ = 𝐁ₖ + (𝐬ᵀ𝐲 + 𝐲ᵀ𝐁ₖ𝐲)𝐬𝐬ᵀ/(𝐬ᵀ𝐲)² - (𝐁ₖ𝐲𝐬ᵀ + 𝐬𝐲ᵀ𝐁ₖ)/𝐬ᵀ𝐲
//
// Every Iterate call evaluates the function and its gradient once.
//
// # Reference:
//
//   - Nocedal & Wright (2006), Numerical Optimization, chapter 6
type BFGS struct {
	cfg    Config
	fn     optim.FunctionNtoS
	grad   optim.FunctionNtoN
	logger *optim.Logger

	ftol, gtol float64
	n          int

	x, g           []float64
	xTrial, gTrial []float64
	p              []float64
	fx             float64

	inv    *mat.SymDense // 𝐁
	gv, pv *mat.VecDense // 𝐠 copy and view of 𝐩
	s, y   *mat.VecDense
	by     *mat.VecDense // 𝐁𝐲
	scaled bool          // 𝐁 rescaled before the first correction

	search    linesearch.Search
	searching bool
	stp, gp   float64 // trial step and 𝐠ᵀ𝐩 at its origin
	stp0      float64 // initial step of the current search
	evals     int     // evaluations of the current search
	retries   int
	first     bool

	iterations  int
	initialized bool
	converged   bool
	updated     bool
	failure     error
}

func New(cfg Config) (*BFGS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BFGS{cfg: cfg}, nil
}

// SetFunction binds the cost function. A nil grad is replaced by a forward difference approximation.
func (b *BFGS) SetFunction(fn optim.FunctionNtoS, grad optim.FunctionNtoN) (err error) {
	switch {
	case fn == nil:
		err = fmt.Errorf("cost function is required: %w", optim.ErrConfig)
	case fn.NumInputs() <= 0:
		err = fmt.Errorf("cost dimension must greater than 0: %w", optim.ErrDimension)
	case grad != nil && grad.NumInputs() != fn.NumInputs():
		err = fmt.Errorf("gradient dimension %d, cost dimension %d: %w", grad.NumInputs(), fn.NumInputs(), optim.ErrDimension)
	}
	if err != nil {
		return
	}
	if grad == nil {
		grad = numdiff.NewGradient(fn, numdiff.Forward)
	}
	b.fn, b.grad = fn, grad
	b.initialized = false
	return
}

func (b *BFGS) SetVerbose(logger *optim.Logger) {
	b.logger = logger
}

func (b *BFGS) Initialize(x0 []float64, ftol, gtol float64) (err error) {
	switch {
	case b.fn == nil:
		err = fmt.Errorf("function is not set: %w", optim.ErrConfig)
	case len(x0) != b.fn.NumInputs():
		err = fmt.Errorf("x0 has %d parameters, function needs %d: %w", len(x0), b.fn.NumInputs(), optim.ErrDimension)
	case !(ftol >= 0 && ftol < 1):
		err = fmt.Errorf("ftol must in range [0, 1): %w", optim.ErrConfig)
	case !(gtol >= 0):
		err = fmt.Errorf("gtol must not less than 0: %w", optim.ErrConfig)
	}
	if err != nil {
		return
	}

	b.initialized = false
	b.ftol, b.gtol = ftol, gtol
	if b.n = len(x0); len(b.x) != b.n {
		b.x = make([]float64, b.n)
		b.g = make([]float64, b.n)
		b.xTrial = make([]float64, b.n)
		b.gTrial = make([]float64, b.n)
		b.p = make([]float64, b.n)
		b.inv = mat.NewSymDense(b.n, nil)
		b.s = mat.NewVecDense(b.n, nil)
		b.y = mat.NewVecDense(b.n, nil)
		b.by = mat.NewVecDense(b.n, nil)
		b.gv = mat.NewVecDense(b.n, nil)
		b.pv = mat.NewVecDense(b.n, b.p)
	}
	copy(b.x, x0)
	identity(b.inv, 1)
	b.scaled = false

	b.search.Tol = b.cfg.LineSearch
	b.searching = false
	b.first = true
	b.retries = 0
	b.iterations = 0
	b.converged, b.updated = false, false
	b.failure = nil

	b.fx = b.fn.Process(b.x)
	b.grad.Process(b.x, b.g)
	if optim.Uncountable(b.fx) || optim.Uncountable(optim.NormInf(b.g)) {
		return optim.Fail("function value or gradient at x0 is not finite", 0, b.fx, b.g)
	}
	b.initialized = true
	return
}

func (b *BFGS) Iterate() (bool, error) {
	switch {
	case !b.initialized:
		return false, optim.ErrNotInitialized
	case b.failure != nil:
		return false, b.failure
	case b.converged:
		b.updated = false
		return true, nil
	}
	b.updated = false

	if !b.searching {
		if optim.NormInf(b.g) <= b.gtol {
			return b.finish("gradient test satisfied")
		}
		if err := b.startSearch(); err != nil {
			return b.abort(err)
		}
	}

	floats.AddScaledTo(b.xTrial, b.x, b.stp, b.p)
	fTrial := b.fn.Process(b.xTrial)
	b.grad.Process(b.xTrial, b.gTrial)
	b.evals++

	if optim.Uncountable(fTrial) || optim.Uncountable(optim.NormInf(b.gTrial)) {
		// Step too long to evaluate: restart closer.
		return false, b.retry("non-finite function value", true)
	}

	stp, task := b.search.Iterate(fTrial, floats.Dot(b.gTrial, b.p))
	decreased := fTrial < b.fx
	switch {
	case task.Converged() || (task.Warned() && decreased):
		return b.accept(fTrial)
	case task.Pending() && b.evals < b.cfg.MaxLineSearch:
		b.stp = stp
		return false, nil
	case decreased:
		return b.accept(fTrial)
	}
	return false, b.retry(task.String(), false)
}

// startSearch computes the search direction and starts a line search along it.
func (b *BFGS) startSearch() error {
	b.direction()
	if b.gp >= 0 {
		// 𝐁 lost positive definiteness: restart from a scaled identity.
		diag := 0.0
		for i := 0; i < b.n; i++ {
			diag = math.Max(diag, math.Abs(b.inv.At(i, i)))
		}
		if !(diag > 0) || math.IsInf(diag, 0) {
			diag = 1
		}
		identity(b.inv, diag)
		b.direction()
		if b.gp >= 0 {
			return optim.Fail("no descent direction", b.iterations, b.fx, b.g)
		}
		if b.logger.Enabled(optim.LogTrace) {
			b.logger.Logf("  inverse hessian reset to %.3e·I\n", diag)
		}
	}

	stpMax := unboundedStep
	if !math.IsInf(b.cfg.FMin, -1) {
		// The sufficient decrease line reaches fmin there.
		stpMax = (b.cfg.FMin - b.fx) / (b.cfg.LineSearch.Alpha * b.gp)
	}
	if !(stpMax > 0) {
		return optim.Fail("function value below the known minimum", b.iterations, b.fx, b.g)
	}

	if b.retries == 0 {
		b.stp0 = 1
		if b.first {
			b.stp0 = 1 / floats.Norm(b.p, 2)
		}
	}
	b.stp0 = math.Min(b.stp0, stpMax)

	b.search.Tol.Lower = 0
	b.search.Tol.Upper = stpMax
	stp, task := b.search.Start(b.fx, b.gp, b.stp0)
	if task.Failed() {
		return optim.Fail("line search: "+task.String(), b.iterations, b.fx, b.g)
	}
	b.stp = stp
	b.evals = 0
	b.searching = true
	return nil
}

// direction computes 𝐩 = -𝐁𝐠 and 𝐠ᵀ𝐩.
func (b *BFGS) direction() {
	copy(b.gv.RawVector().Data, b.g)
	b.pv.MulVec(b.inv, b.gv)
	b.pv.ScaleVec(-1, b.pv)
	b.gp = floats.Dot(b.g, b.p)
}

// retry restarts a failed search with half the initial step.
// Only the first search of a run may be retried unless forced.
// A forced retry after a non-finite trial also stays below that trial.
func (b *BFGS) retry(reason string, force bool) error {
	b.searching = false
	if b.retries < b.cfg.MaxRetries && (b.first || force) {
		b.retries++
		if force {
			b.stp0 = math.Min(b.stp0, b.stp)
		}
		b.stp0 *= 0.5
		if b.logger.Enabled(optim.LogTrace) {
			b.logger.Logf("  line search failed (%s): retry with step %.3e\n", reason, b.stp0)
		}
		return nil
	}
	_, err := b.abort(optim.Fail("line search: "+reason, b.iterations, b.fx, b.g))
	return err
}

// accept moves to the trial point and corrects the inverse Hessian.
func (b *BFGS) accept(fTrial float64) (bool, error) {
	sv, yv := b.s.RawVector().Data, b.y.RawVector().Data
	floats.SubTo(sv, b.xTrial, b.x)
	floats.SubTo(yv, b.gTrial, b.g)

	fPrev := b.fx
	b.x, b.xTrial = b.xTrial, b.x
	b.g, b.gTrial = b.gTrial, b.g
	b.fx = fTrial
	b.updated = true
	b.searching = false
	b.first = false
	b.retries = 0
	b.iterations++

	if sy := floats.Dot(sv, yv); sy > 0 {
		if !b.scaled {
			// Nocedal & Wright (2006), eq. 6.20
			identity(b.inv, sy/floats.Dot(yv, yv))
			b.scaled = true
		}
		b.by.MulVec(b.inv, b.y)
		yBy := mat.Dot(b.y, b.by)
		b.inv.SymRankOne(b.inv, (sy+yBy)/(sy*sy), b.s)
		b.inv.RankTwo(b.inv, -1/sy, b.by, b.s)
	}

	if b.logger.Enabled(optim.LogEval) {
		b.logger.Logf("iter %4d: f = %.6e |g| = %.6e step = %.3e\n", b.iterations, b.fx, optim.NormInf(b.g), b.stp)
	}
	if b.logger.Enabled(optim.LogVerbose) {
		b.logger.Vector("x", b.x)
		b.logger.Vector("g", b.g)
	}

	switch {
	case b.ftol*fPrev >= fPrev-b.fx:
		return b.finish("function test satisfied")
	case optim.NormInf(b.g) <= b.gtol:
		return b.finish("gradient test satisfied")
	case b.fx <= b.cfg.FMin:
		return b.finish("known minimum reached")
	}
	return false, nil
}

func (b *BFGS) finish(reason string) (bool, error) {
	b.converged = true
	if b.logger.Enabled(optim.LogLast) {
		b.logger.Logf("bfgs: %s after %d iterations, f = %.6e\n", reason, b.iterations, b.fx)
	}
	return true, nil
}

func (b *BFGS) abort(err error) (bool, error) {
	b.failure = err
	if b.logger.Enabled(optim.LogLast) {
		b.logger.Logf("bfgs: %v\n", err)
	}
	return false, err
}

// Fit initializes the solver with the configured tolerances and iterates at most maxIterations times.
func (b *BFGS) Fit(x0 []float64, maxIterations int) (optim.Result, error) {
	if err := b.Initialize(x0, b.cfg.FTol, b.cfg.GTol); err != nil {
		return optim.Result{}, err
	}
	return optim.Process(b, maxIterations)
}

func (b *BFGS) IsConverged() bool { return b.converged }

func (b *BFGS) IsUpdated() bool { return b.updated }

// Parameters returns the current parameters, which must not be modified.
func (b *BFGS) Parameters() []float64 { return b.x }

func (b *BFGS) FunctionValue() float64 { return b.fx }

// Iterations counts the completed line searches.
func (b *BFGS) Iterations() int { return b.iterations }

// InverseHessian exposes the current approximation 𝐁.
func (b *BFGS) InverseHessian() *mat.SymDense { return b.inv }

func identity(s *mat.SymDense, v float64) {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				s.SetSym(i, j, v)
			} else {
				s.SetSym(i, j, 0)
			}
		}
	}
}

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
	"github.com/curioloop/leastsq/numdiff"
	"github.com/curioloop/leastsq/optim"
)

// stepper is implemented by the concrete solvers built on core.
type stepper interface {
	// derivativesUpdated prepares the step selection after the gradient and Hessian changed.
	derivativesUpdated()
	// computeStep proposes one candidate and accepts or rejects it.
	computeStep() (converged bool, err error)
	name() string
}

// core is the Gauss-Newton state machine shared by TrustRegion and LevenbergMarquardt.
//
// Each Iterate call either evaluates the derivatives and proposes a step, or
// proposes another step with the derivatives of the current 𝐱.
// Only accepted candidates change 𝐱.
type core struct {
	cfg    ConfigGaussNewton
	h      hessian.Math
	obj    objective
	loss   loss.Function
	logger *optim.Logger

	ftol, gtol float64
	n          int
	x, xNext   []float64
	p, g       []float64
	scaling    []float64
	fx         float64

	mode        Mode
	initialized bool
	updated     bool
	failure     error

	fullSteps, selectSteps int
}

func (c *core) SetVerbose(logger *optim.Logger) {
	c.logger = logger
}

// SetFunction binds a least-squares problem with residual function fn.
// A nil jac is replaced by a forward difference approximation.
// The Hessian must be a *hessian.LeastSquares.
func (c *core) SetFunction(fn optim.FunctionNtoM, jac optim.FunctionNtoMxN) (err error) {
	h, ok := c.h.(*hessian.LeastSquares)
	switch {
	case !ok:
		err = fmt.Errorf("dense least-squares requires hessian.LeastSquares, got %T: %w", c.h, optim.ErrConfig)
	case fn == nil:
		err = fmt.Errorf("residual function is required: %w", optim.ErrConfig)
	case fn.NumInputs() <= 0 || fn.NumOutputs() <= 0:
		err = fmt.Errorf("residual dimensions must greater than 0: %w", optim.ErrDimension)
	case jac != nil && (jac.NumInputs() != fn.NumInputs() || jac.NumOutputs() != fn.NumOutputs()):
		err = fmt.Errorf("jacobian is %d×%d, residuals need %d×%d: %w",
			jac.NumOutputs(), jac.NumInputs(), fn.NumOutputs(), fn.NumInputs(), optim.ErrDimension)
	}
	if err != nil {
		return
	}
	if jac == nil {
		jac = numdiff.NewJacobian(fn, numdiff.Forward)
	}
	c.bind(&leastSquares{residuals: residuals{fn: fn, loss: c.loss}, jac: jac, h: h})
	return
}

// SetSchurFunction binds a least-squares problem whose parameters are split in a
// left group (the first jac.NumLeft() entries) and a right group.
// A nil jac is not supported since the split must be known.
// The Hessian must be a *hessian.Schur.
func (c *core) SetSchurFunction(fn optim.FunctionNtoM, jac optim.FunctionSchurJacobian) (err error) {
	h, ok := c.h.(*hessian.Schur)
	switch {
	case !ok:
		err = fmt.Errorf("schur least-squares requires hessian.Schur, got %T: %w", c.h, optim.ErrConfig)
	case fn == nil || jac == nil:
		err = fmt.Errorf("residual function and jacobian are required: %w", optim.ErrConfig)
	case jac.NumLeft() <= 0 || jac.NumRight() <= 0:
		err = fmt.Errorf("both parameter groups must be non-empty: %w", optim.ErrDimension)
	case fn.NumInputs() != jac.NumLeft()+jac.NumRight() || fn.NumOutputs() != jac.NumOutputs():
		err = fmt.Errorf("jacobian blocks do not match residual dimensions: %w", optim.ErrDimension)
	}
	if err != nil {
		return
	}
	c.bind(&schurLeastSquares{residuals: residuals{fn: fn, loss: c.loss}, jac: jac, h: h})
	return
}

// SetCostFunction binds a minimization problem.
// A nil grad is replaced by a forward difference approximation.
// The Hessian must be a *hessian.BFGS, and Hessian scaling is not supported.
func (c *core) SetCostFunction(fn optim.FunctionNtoS, grad optim.FunctionNtoN) (err error) {
	h, ok := c.h.(*hessian.BFGS)
	switch {
	case !ok:
		err = fmt.Errorf("minimization requires hessian.BFGS, got %T: %w", c.h, optim.ErrConfig)
	case fn == nil:
		err = fmt.Errorf("cost function is required: %w", optim.ErrConfig)
	case fn.NumInputs() <= 0:
		err = fmt.Errorf("cost dimension must greater than 0: %w", optim.ErrDimension)
	case grad != nil && grad.NumInputs() != fn.NumInputs():
		err = fmt.Errorf("gradient dimension %d, cost dimension %d: %w", grad.NumInputs(), fn.NumInputs(), optim.ErrDimension)
	case c.cfg.HessianScaling:
		err = fmt.Errorf("hessian scaling corrupts the BFGS approximation: %w", optim.ErrConfig)
	}
	if err != nil {
		return
	}
	if grad == nil {
		grad = numdiff.NewGradient(fn, numdiff.Forward)
	}
	c.bind(&minimization{fn: fn, grad: grad, h: h})
	return
}

// SetLoss replaces the squared loss of a least-squares problem with l.
// It may be called before or after the function is bound.
func (c *core) SetLoss(l loss.Function) error {
	if l == nil {
		l = loss.Squared{}
	}
	if c.obj != nil {
		o, ok := c.obj.(lossy)
		if !ok {
			return fmt.Errorf("robust loss requires a least-squares function: %w", optim.ErrConfig)
		}
		o.setLoss(l)
	}
	c.loss = l
	c.initialized = false
	return nil
}

func (c *core) bind(obj objective) {
	c.obj = obj
	c.initialized = false
}

// initialize seeds the search at x0.
func (c *core) initialize(x0 []float64, ftol, gtol float64) (err error) {
	switch {
	case c.obj == nil:
		err = fmt.Errorf("function is not set: %w", optim.ErrConfig)
	case len(x0) != c.obj.numParams():
		err = fmt.Errorf("x0 has %d parameters, function needs %d: %w", len(x0), c.obj.numParams(), optim.ErrDimension)
	case !(ftol >= 0 && ftol < 1):
		err = fmt.Errorf("ftol must in range [0, 1): %w", optim.ErrConfig)
	case !(gtol >= 0):
		err = fmt.Errorf("gtol must not less than 0: %w", optim.ErrConfig)
	}
	if err != nil {
		return
	}

	c.initialized = false
	c.ftol, c.gtol = ftol, gtol
	if c.n = len(x0); len(c.x) != c.n {
		c.x = make([]float64, c.n)
		c.xNext = make([]float64, c.n)
		c.p = make([]float64, c.n)
		c.g = make([]float64, c.n)
		c.scaling = make([]float64, c.n)
	} else {
		clear(c.xNext)
		clear(c.p)
		clear(c.g)
	}
	copy(c.x, x0)
	for i := range c.scaling {
		c.scaling[i] = 1
	}
	c.obj.init()

	c.mode = ComputeDerivatives
	c.updated = false
	c.failure = nil
	c.fullSteps, c.selectSteps = 0, 0

	if c.fx = c.obj.cost(c.x); optim.Uncountable(c.fx) {
		return optim.Fail("function value at x0 is not finite", 0, c.fx, nil)
	}
	c.initialized = true
	return
}

func (c *core) iterate(s stepper) (converged bool, err error) {
	switch {
	case !c.initialized:
		return false, optim.ErrNotInitialized
	case c.failure != nil:
		return false, c.failure
	case c.mode == Converged:
		c.updated = false
		return true, nil
	}

	c.updated = false
	if c.mode == ComputeDerivatives {
		c.fullSteps++
		if converged, err = c.updateDerivatives(); err == nil && !converged {
			s.derivativesUpdated()
			c.mode = DetermineStep
		}
	}
	if err == nil && !converged {
		c.selectSteps++
		converged, err = s.computeStep()
	}

	switch {
	case err != nil:
		c.failure = err
		if c.logger.Enabled(optim.LogLast) {
			c.logger.Logf("%s: %v\n", s.name(), err)
		}
	case converged:
		c.mode = Converged
		if c.logger.Enabled(optim.LogLast) {
			c.logger.Logf("%s: converged after %d steps, f = %.6e\n", s.name(), c.fullSteps, c.fx)
		}
	}
	return
}

// updateDerivatives evaluates the gradient and Hessian at 𝐱 and runs the g-test.
func (c *core) updateDerivatives() (bool, error) {
	if c.obj.derivatives(c.x, c.g) {
		c.fx = c.obj.cost(c.x)
	}
	if optim.Uncountable(c.fx) || optim.Uncountable(optim.NormInf(c.g)) {
		return false, optim.Fail("function value or gradient is not finite", c.fullSteps, c.fx, c.g)
	}

	if c.cfg.HessianScaling {
		c.h.ExtractDiagonals(c.scaling)
		for i, d := range c.scaling {
			c.scaling[i] = math.Max(c.cfg.ScalingMin, math.Min(c.cfg.ScalingMax, math.Sqrt(math.Abs(d))))
		}
		floats.Div(c.g, c.scaling)
		c.h.DivideRowsCols(c.scaling)
	}
	gnorm := optim.NormInf(c.g)

	if c.logger.Enabled(optim.LogEval) {
		c.logger.Logf("step %4d: f = %.6e |g| = %.6e\n", c.fullSteps, c.fx, gnorm)
	}
	if c.logger.Enabled(optim.LogVerbose) {
		c.logger.Vector("x", c.x)
		c.logger.Vector("g", c.g)
	}

	// With scaling enabled the test runs on the scaled gradient.
	return gnorm <= c.gtol, nil
}

// candidate builds 𝐱 + 𝐩 in xNext, undoing the Hessian scaling on 𝐩, and returns its cost.
func (c *core) candidate() float64 {
	if c.cfg.HessianScaling {
		floats.Div(c.p, c.scaling)
	}
	floats.AddTo(c.xNext, c.x, c.p)
	return c.obj.cost(c.xNext)
}

// accept makes the candidate the current state and returns the f-test result.
func (c *core) accept(fxCandidate float64) bool {
	converged := c.ftol*c.fx >= c.fx-fxCandidate
	c.x, c.xNext = c.xNext, c.x
	c.fx = fxCandidate
	c.updated = true
	c.mode = ComputeDerivatives
	return converged
}

func (c *core) fail(reason string) error {
	return optim.Fail(reason, c.fullSteps, c.fx, c.g)
}

// Mode reports the state of the iteration.
func (c *core) Mode() Mode { return c.mode }

func (c *core) IsConverged() bool { return c.mode == Converged }

func (c *core) IsUpdated() bool { return c.updated }

// Parameters returns the current parameters, which must not be modified.
func (c *core) Parameters() []float64 { return c.x }

func (c *core) FunctionValue() float64 { return c.fx }

// Gradient returns the (possibly scaled) gradient at the current parameters.
func (c *core) Gradient() []float64 { return c.g }

// TotalFullSteps counts the derivative evaluations.
func (c *core) TotalFullSteps() int { return c.fullSteps }

// TotalSelectSteps counts the proposed candidates.
func (c *core) TotalSelectSteps() int { return c.selectSteps }

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gaussnewton

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/leastsq/loss"
	"github.com/curioloop/leastsq/optim"
)

func TestLevenbergMarquardtLine(t *testing.T) {
	line := newLine(-2.1, 1.3, 20)
	for _, mix := range []float64{0, 0.5, 1} {
		cfg := DefaultConfigLevenbergMarquardt()
		cfg.DampingMixture = mix
		cfg.GTol = 1e-10
		lm, err := NewLeastSquaresLevenbergMarquardt(cfg)
		require.NoError(t, err)
		require.NoError(t, lm.SetFunction(line.function(), line.derivative()))

		res, err := lm.Fit([]float64{-1.5, 0.9}, 100)
		require.NoError(t, err)
		assert.True(t, res.Converged, "mixture %g", mix)
		assert.InDeltaSlice(t, []float64{-2.1, 1.3}, res.X, 1e-6, "mixture %g", mix)
	}
}

func TestLevenbergMarquardtRosenbrock(t *testing.T) {
	cfg := DefaultConfigLevenbergMarquardt()
	cfg.DampingInitial = 10
	lm, err := NewLeastSquaresLevenbergMarquardt(cfg)
	require.NoError(t, err)
	require.NoError(t, lm.SetFunction(rosenbrock, rosenbrockJacobian))
	require.NoError(t, lm.Initialize([]float64{-1.2, 1}, 1e-14, 1e-10))

	prev := lm.FunctionValue()
	converged := false
	for i := 0; i < 500 && !converged; i++ {
		converged, err = lm.Iterate()
		require.NoError(t, err)
		switch {
		case converged:
		case lm.IsUpdated():
			assert.Less(t, lm.FunctionValue(), prev)
			assert.LessOrEqual(t, lm.Damping(), 2*lm.lastDampBefore)
			assert.Equal(t, 2.0, lm.nu)
			prev = lm.FunctionValue()
		default:
			assert.Greater(t, lm.Damping(), lm.lastDampBefore, "damping must grow on rejection")
			assert.Equal(t, prev, lm.FunctionValue())
		}
		assert.GreaterOrEqual(t, lm.Damping(), lm.minDamp)
	}
	require.True(t, converged)
	assert.InDeltaSlice(t, []float64{1, 1}, lm.Parameters(), 1e-6)
}

func TestLevenbergMarquardtDampingShrinks(t *testing.T) {
	// A linear problem is modelled exactly: the gain ratio is one and μ shrinks by three.
	fn := optim.ResidualFunc{N: 2, M: 3, Func: func(x, r []float64) {
		r[0] = x[0] - 1
		r[1] = x[1] + 2
		r[2] = x[0] + x[1]
	}}
	cfg := DefaultConfigLevenbergMarquardt()
	cfg.DampingInitial = 1
	lm, err := NewLeastSquaresLevenbergMarquardt(cfg)
	require.NoError(t, err)
	require.NoError(t, lm.SetFunction(fn, nil))
	require.NoError(t, lm.Initialize([]float64{5, 5}, 0, 1e-6))

	_, err = lm.Iterate()
	require.NoError(t, err)
	require.True(t, lm.IsUpdated())
	assert.InDelta(t, 1.0/3.0, lm.Damping(), 1e-6)
}

func TestLevenbergMarquardtRestoresDiagonal(t *testing.T) {
	line := newLine(3, -1, 8)
	lm, err := NewLeastSquaresLevenbergMarquardt(DefaultConfigLevenbergMarquardt())
	require.NoError(t, err)
	require.NoError(t, lm.SetFunction(line.function(), line.derivative()))
	require.NoError(t, lm.Initialize([]float64{2, -2}, 1e-12, 1e-12))
	_, err = lm.Iterate()
	require.NoError(t, err)

	diag := make([]float64, 2)
	lm.h.ExtractDiagonals(diag)
	assert.Equal(t, lm.diagOrig, diag)
}

func TestLevenbergMarquardtSingular(t *testing.T) {
	// The second parameter never enters the residuals, so 𝐇 is singular
	// and the floor on μ keeps the damped system solvable.
	fn := optim.ResidualFunc{N: 2, M: 2, Func: func(x, r []float64) {
		r[0] = x[0] - 4
		r[1] = 2 * (x[0] - 4)
	}}
	jac := optim.JacobianFunc{N: 2, M: 2, Func: func(x []float64, jac *mat.Dense) {
		jac.Set(0, 0, 1)
		jac.Set(1, 0, 2)
		jac.Set(0, 1, 0)
		jac.Set(1, 1, 0)
	}}
	cfg := DefaultConfigLevenbergMarquardt()
	cfg.GTol = 1e-9
	lm, err := NewLeastSquaresLevenbergMarquardt(cfg)
	require.NoError(t, err)
	require.NoError(t, lm.SetFunction(fn, jac))

	res, err := lm.Fit([]float64{0, 7}, 100)
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.InDelta(t, 4, res.X[0], 1e-8)
	assert.Equal(t, 7.0, res.X[1])
}

func TestLevenbergMarquardtUnsolvable(t *testing.T) {
	// Without a damping floor the damped system of a rank deficient 𝐇 is too
	// ill-conditioned to solve for the first retries.
	fn := optim.ResidualFunc{N: 2, M: 1, Func: func(x, r []float64) { r[0] = x[0] - 4 }}
	jac := optim.JacobianFunc{N: 2, M: 1, Func: func(x []float64, jac *mat.Dense) {
		jac.Set(0, 0, 1)
		jac.Set(0, 1, 0)
	}}
	cfg := DefaultConfigLevenbergMarquardt()
	cfg.DampingInitial = 1e-300
	cfg.DampingFloor = 0
	cfg.MaxSolveRetries = 5
	lm, err := NewLeastSquaresLevenbergMarquardt(cfg)
	require.NoError(t, err)
	require.NoError(t, lm.SetFunction(fn, jac))
	require.NoError(t, lm.Initialize([]float64{0, 0}, 1e-12, 1e-12))

	for i := 1; i < cfg.MaxSolveRetries; i++ {
		converged, err := lm.Iterate()
		require.NoError(t, err)
		require.False(t, converged)
		assert.Equal(t, DetermineStep, lm.Mode())
		assert.InEpsilon(t, 1e-300*math.Pow(10, float64(i)), lm.Damping(), 1e-9)
	}
	_, err = lm.Iterate()
	require.ErrorIs(t, err, optim.ErrOptimizationFailed)
	assert.Equal(t, 1, lm.TotalFullSteps())
	assert.Equal(t, cfg.MaxSolveRetries, lm.TotalSelectSteps())
}

// regression samples y = 2x + 1 on x = 0, 0.1, …, 4.9 with small noise,
// replacing every fifth sample with an outlier.
func regression() (xs, ys []float64) {
	offsets := []float64{40, 35, -30, 45, 38, -20, 50, 33, -28, 42}
	xs = make([]float64, 50)
	ys = make([]float64, 50)
	for i := range xs {
		xs[i] = 0.1 * float64(i)
		ys[i] = 2*xs[i] + 1 + 0.1*math.Sin(float64(i))
		if i%5 == 3 {
			ys[i] += offsets[i/5]
		}
	}
	return
}

func fitRegression(t *testing.T, l loss.Function) []float64 {
	xs, ys := regression()
	fn := optim.ResidualFunc{N: 2, M: len(xs), Func: func(p, r []float64) {
		for i := range r {
			r[i] = p[0]*xs[i] + p[1] - ys[i]
		}
	}}
	jac := optim.JacobianFunc{N: 2, M: len(xs), Func: func(p []float64, jac *mat.Dense) {
		for i := range xs {
			jac.Set(i, 0, xs[i])
			jac.Set(i, 1, 1)
		}
	}}

	cfg := DefaultConfigLevenbergMarquardt()
	cfg.GTol = 1e-10
	lm, err := NewLeastSquaresLevenbergMarquardt(cfg)
	require.NoError(t, err)
	require.NoError(t, lm.SetLoss(l))
	require.NoError(t, lm.SetFunction(fn, jac))
	res, err := lm.Fit([]float64{0, 0}, 500)
	require.NoError(t, err)
	return res.X
}

func regressionError(p []float64) float64 {
	return math.Abs(p[0]-2) + math.Abs(p[1]-1)
}

func TestLevenbergMarquardtRobustLoss(t *testing.T) {
	squared := regressionError(fitRegression(t, nil))
	huber := regressionError(fitRegression(t, loss.Huber{T: 0.5}))
	cauchy := regressionError(fitRegression(t, loss.Cauchy{T: 0.5}))
	t.Logf("error: squared %.4f, huber %.4f, cauchy %.4f", squared, huber, cauchy)

	assert.Less(t, huber, 0.25)
	assert.Less(t, cauchy, 0.25)
	assert.Greater(t, squared, 4*huber)
}

func TestLineOutliers(t *testing.T) {
	// 20 points around the line of (-2.1, 1.3): inliers with σ = 0.5,
	// every fourth point a gross outlier with σ = 30.
	rnd := rand.New(rand.NewPCG(2024, 7))
	line := newLine(-2.1, 1.3, 20)
	for i := range line.xs {
		sigma := 0.5
		if i%4 == 1 {
			sigma = 30
		}
		line.xs[i] += sigma * rnd.NormFloat64()
		line.ys[i] += sigma * rnd.NormFloat64()
	}

	fit := func(l loss.Function) float64 {
		cfg := DefaultConfigLevenbergMarquardt()
		cfg.GTol = 1e-10
		lm, err := NewLeastSquaresLevenbergMarquardt(cfg)
		require.NoError(t, err)
		require.NoError(t, lm.SetLoss(l))
		require.NoError(t, lm.SetFunction(line.function(), line.derivative()))
		res, err := lm.Fit([]float64{-1.5, 0.9}, 500)
		require.NoError(t, err)
		return math.Hypot(res.X[0]+2.1, res.X[1]-1.3)
	}
	squared := fit(nil)
	huber := fit(loss.Huber{T: 0.5})
	t.Logf("error: squared %.4f, huber %.4f", squared, huber)
	assert.Less(t, huber, squared)
}

func TestLevenbergMarquardtIRLS(t *testing.T) {
	// weights of an L1 fit
	l1 := loss.NewIRLS(func(r, w []float64) {
		for i, v := range r {
			w[i] = 1 / math.Max(math.Abs(v), 0.05)
		}
	})
	squared := regressionError(fitRegression(t, nil))
	irls := regressionError(fitRegression(t, l1))
	assert.Less(t, irls, 0.5)
	assert.Greater(t, squared, 2*irls)
}

func TestSetLossAfterFunction(t *testing.T) {
	line := newLine(-2.1, 1.3, 20)
	lm, err := NewLeastSquaresLevenbergMarquardt(DefaultConfigLevenbergMarquardt())
	require.NoError(t, err)
	require.NoError(t, lm.SetFunction(line.function(), line.derivative()))
	require.NoError(t, lm.Initialize([]float64{-1.5, 0.9}, 1e-12, 1e-12))
	squared := lm.FunctionValue()

	require.NoError(t, lm.SetLoss(loss.Huber{T: 0.01}))
	_, err = lm.Iterate()
	require.ErrorIs(t, err, optim.ErrNotInitialized)

	require.NoError(t, lm.Initialize([]float64{-1.5, 0.9}, 1e-12, 1e-12))
	assert.Less(t, lm.FunctionValue(), squared)
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package linesearch

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSearch(s *Search, phi, der func(float64) float64, stp float64, maxIter int) (float64, Task) {
	stp, task := s.Start(phi(0), der(0), stp)
	for ; maxIter > 0 && task.Pending(); maxIter-- {
		stp, task = s.Iterate(phi(stp), der(stp))
		if math.IsInf(stp, 0) {
			return math.NaN(), Warn
		}
	}
	if maxIter == 0 {
		panic("STP NOT CONVERGE")
	}
	return stp, task
}

func wolfeConditionHold(s, c1, c2 float64, phi, der func(float64) float64) bool {
	phi0, der0 := phi(0), der(0)
	phi1, der1 := phi(s), der(s)
	if phi1 > phi0+c1*s*der0 {
		return false
	}
	return math.Abs(der1) <= math.Abs(c2*der0)
}

// Case Sources : scipy/optimize/tests/test_linesearch.py
func TestSearchWolfe(t *testing.T) {

	FGs := [][2]func(float64) float64{
		{
			func(s float64) float64 { return -s - math.Pow(s, 3) + math.Pow(s, 4) },
			func(s float64) float64 { return -1 - 3*math.Pow(s, 2) + 4*math.Pow(s, 3) },
		},
		{
			func(s float64) float64 { return math.Exp(-4*s) + math.Pow(s, 2) },
			func(s float64) float64 { return -4*math.Exp(-4*s) + 2*s },
		},
		{
			func(s float64) float64 { return -math.Sin(10 * s) },
			func(s float64) float64 { return -10 * math.Cos(10*s) },
		},
	}

	const c1, c2 = 1e-4, 0.9
	for _, fg := range FGs {
		phi, der := fg[0], fg[1]
		for i := 0; i < 3; i++ {
			phi0, der0 := phi(0), der(0)
			oldPhi0 := rand.Float64()
			alpha1 := math.Min(1, 1.01*2*(phi0-oldPhi0)/der0)
			if alpha1 < 0 {
				alpha1 = 1
			}
			s := Search{Tol: Tol{Alpha: c1, Beta: c2, Eps: 1e-14, Lower: 1e-8, Upper: 50}}
			stp, task := runSearch(&s, phi, der, alpha1, 100)
			require.True(t, task.Converged(), "task %v", task)
			require.True(t, wolfeConditionHold(stp, c1, c2, phi, der), "step %g", stp)
		}
	}
}

func TestSearchInputErrors(t *testing.T) {
	phi := func(s float64) float64 { return (s - 1) * (s - 1) }
	der := func(s float64) float64 { return 2 * (s - 1) }
	tol := Tol{Alpha: 1e-4, Beta: 0.9, Eps: 0.1, Lower: 0, Upper: 10}

	cases := []struct {
		tol  Tol
		g0   float64
		stp  float64
		want Task
	}{
		{tol, der(0), 11, ErrOverUpper},
		{tol, 1, 1, ErrNegInitG},
		{Tol{Alpha: -1, Beta: 0.9, Upper: 10}, der(0), 1, ErrNegAlpha},
		{Tol{Alpha: 1e-4, Beta: -1, Upper: 10}, der(0), 1, ErrNegBeta},
		{Tol{Alpha: 1e-4, Beta: 0.9, Eps: -1, Upper: 10}, der(0), 1, ErrNegEps},
		{Tol{Alpha: 1e-4, Beta: 0.9, Lower: 2, Upper: 1}, der(0), 1, ErrOverLower},
	}
	for _, c := range cases {
		s := Search{Tol: c.tol}
		_, task := s.Start(phi(0), c.g0, c.stp)
		assert.Equal(t, c.want, task)
		assert.True(t, task.Failed())
		assert.NotEqual(t, "unknown", task.String())
	}
}

func TestSearchStepBound(t *testing.T) {
	// Unbounded below: the search stops at the upper bound with a decrease.
	phi := func(s float64) float64 { return -s }
	der := func(float64) float64 { return -1 }
	s := Search{Tol: Tol{Alpha: 1e-4, Beta: 0.9, Eps: 0.1, Upper: 5}}
	stp, task := runSearch(&s, phi, der, 1, 100)
	assert.Equal(t, WarnReachMax, task)
	assert.True(t, task.Warned())
	assert.Equal(t, 5.0, stp)
}

func TestSearchQuadraticExact(t *testing.T) {
	// The minimizer of a quadratic satisfies the curvature condition for any beta.
	phi := func(s float64) float64 { return (s - 0.3) * (s - 0.3) }
	der := func(s float64) float64 { return 2 * (s - 0.3) }
	s := Search{Tol: Tol{Alpha: 1e-4, Beta: 0.1, Eps: 1e-10, Upper: 100}}
	stp, task := runSearch(&s, phi, der, 1, 100)
	require.True(t, task.Converged())
	assert.InDelta(t, 0.3, stp, 0.3*0.1)
}

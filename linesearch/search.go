// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linesearch finds a step along a descent direction that satisfies the
// strong Wolfe conditions with the Moré-Thuente algorithm.
//
// The search is driven by reverse communication: the caller evaluates the
// function and its directional derivative wherever the search asks,
// so that it can reuse the evaluation for its own bookkeeping.
//
// # Reference:
//
//   - Moré & Thuente (1994), Line search algorithms with guaranteed sufficient decrease.
//     ACM Transactions on Mathematical Software 20(3), 286-307
//   - MINPACK-2 dcsrch / dcstep
package linesearch

import (
	"math"
)

const (
	p5         = 0.5
	p66        = 0.66
	xTrapLower = 1.1
	xTrapUpper = 4.0
)

const (
	stageArmijo = 1
	stageWolfe  = 2
)

// Task is the state reported to the caller after each call.
type Task int

const (
	Start Task = 0
	Conv  Task = 1 << (4 + iota)
	FG
	Error
	Warn
)

const (
	ErrOverLower = Error | (1 + iota)
	ErrOverUpper
	ErrNegInitG
	ErrNegAlpha
	ErrNegBeta
	ErrNegEps
	ErrLower
	ErrUpper
	WarnRoundErr = Warn | (1 + iota)
	WarnReachEps
	WarnReachMax
	WarnReachMin
)

// Converged reports a step satisfying both Wolfe conditions.
func (t Task) Converged() bool { return t == Conv }

// Pending reports that the search waits for f and g at the returned step.
func (t Task) Pending() bool { return t == FG }

func (t Task) Failed() bool { return t&Error != 0 }

func (t Task) Warned() bool { return t&Warn != 0 }

func (t Task) String() string {
	switch t {
	case Start:
		return "start"
	case Conv:
		return "converged"
	case FG:
		return "evaluate"
	case ErrOverLower:
		return "error: step below lower bound"
	case ErrOverUpper:
		return "error: step above upper bound"
	case ErrNegInitG:
		return "error: initial derivative is not negative"
	case ErrNegAlpha:
		return "error: alpha is negative"
	case ErrNegBeta:
		return "error: beta is negative"
	case ErrNegEps:
		return "error: eps is negative"
	case ErrLower:
		return "error: lower bound is negative"
	case ErrUpper:
		return "error: upper bound is less than lower bound"
	case WarnRoundErr:
		return "warning: rounding errors prevent progress"
	case WarnReachEps:
		return "warning: interval width below eps"
	case WarnReachMax:
		return "warning: step at upper bound"
	case WarnReachMin:
		return "warning: step at lower bound"
	}
	return "unknown"
}

// Tol configures the search.
type Tol struct {
	// Alpha is a non-negative tolerance for the sufficient decrease condition.
	Alpha float64 `yaml:"alpha"`
	// Beta is a non-negative tolerance for the curvature condition.
	Beta float64 `yaml:"beta"`
	// Eps is a non-negative relative tolerance for an acceptable step.
	// The search exits with a warning if the relative width of the bracket is less than Eps.
	Eps float64 `yaml:"eps"`
	// Lower is a non-negative lower bounds for the step.
	Lower float64 `yaml:"lower"`
	// Upper is a non-negative upper bounds for the step.
	Upper float64 `yaml:"upper"`
}

// point is a trial step with its function value and derivative.
type point struct {
	stp, f, g float64
}

// Search finds a step λ that satisfies:
//   - sufficient decrease condition: f(λ) ≤ f(0) + ɑλf′(0)
//   - curvature condition: |f′(λ)| ≤ β|f′(0)|
//
// Each call updates an interval with endpoints x and y. The interval is initially
// chosen so that it contains a minimizer of the modified function
//
//	ψ(λ) = f(λ) - f(0) - ɑλf′(0)
//
// If ψ(λ) ≤ 0 and f′(λ) ≥ 0 for some step, then the interval is chosen so that it contains a minimizer of f.
//
// If no step satisfies both conditions the search stops with a warning,
// and the step only satisfies the sufficient decrease condition.
type Search struct {
	Tol Tol

	bracket  bool
	stage    int
	f0, g0   float64
	x, y     point
	width    [2]float64
	min, max float64
	stp      float64
}

// Start begins a search from f(0) = f0 and f′(0) = g0 with the initial estimate stp > 0.
// It returns the step at which f must be evaluated together with FG, or an Error task.
func (s *Search) Start(f0, g0, stp float64) (float64, Task) {
	tol := s.Tol
	var task Task
	switch {
	case stp < tol.Lower:
		task = ErrOverLower
	case stp > tol.Upper:
		task = ErrOverUpper
	case g0 >= 0:
		task = ErrNegInitG
	case tol.Alpha < 0:
		task = ErrNegAlpha
	case tol.Beta < 0:
		task = ErrNegBeta
	case tol.Eps < 0:
		task = ErrNegEps
	case tol.Lower < 0:
		task = ErrLower
	case tol.Upper < tol.Lower:
		task = ErrUpper
	}
	if task != Start {
		return stp, task
	}

	s.bracket = false
	s.stage = stageArmijo
	s.f0, s.g0 = f0, g0
	s.width[0] = tol.Upper - tol.Lower
	s.width[1] = s.width[0] / p5

	s.x = point{0, f0, g0}
	s.y = point{0, f0, g0}
	s.min = 0
	s.max = stp + xTrapUpper*stp
	s.stp = stp
	return stp, FG
}

// Iterate consumes f and g at the step last returned and proposes the next one.
func (s *Search) Iterate(f, g float64) (float64, Task) {
	tol := s.Tol
	stp := s.stp

	gTest := tol.Alpha * s.g0
	fTest := s.f0 + stp*gTest

	var task Task
	switch {
	case s.bracket && (stp <= s.min || stp >= s.max):
		task = WarnRoundErr
	case s.bracket && (s.max-s.min) <= tol.Eps*s.max:
		task = WarnReachEps
	case stp == tol.Upper && f <= fTest && g <= gTest:
		task = WarnReachMax
	case stp == tol.Lower && (f > fTest || g >= gTest):
		task = WarnReachMin
	case f <= fTest && math.Abs(g) <= tol.Beta*(-s.g0):
		task = Conv
	}
	if task != Start {
		return stp, task
	}

	if s.stage == stageArmijo && f <= fTest && g >= 0 {
		s.stage = stageWolfe
	}

	if s.stage == stageArmijo && f <= s.x.f && f > fTest {
		// Use the modified function ψ until a step with ψ ≤ 0 and f′ ≥ 0 is found.
		mod := func(p point) point { return point{p.stp, p.f - p.stp*gTest, p.g - gTest} }
		unmod := func(p point) point { return point{p.stp, p.f + p.stp*gTest, p.g + gTest} }
		x, y := mod(s.x), mod(s.y)
		stp = s.safeguard(&x, &y, mod(point{stp, f, g}))
		s.x, s.y = unmod(x), unmod(y)
	} else {
		stp = s.safeguard(&s.x, &s.y, point{stp, f, g})
	}

	// Decide if a bisection step is needed.
	if s.bracket {
		if math.Abs(s.y.stp-s.x.stp) >= p66*s.width[1] {
			stp = s.x.stp + p5*(s.y.stp-s.x.stp)
		}
		s.width[1] = s.width[0]
		s.width[0] = math.Abs(s.y.stp - s.x.stp)
	}

	if s.bracket {
		s.min = math.Min(s.x.stp, s.y.stp)
		s.max = math.Max(s.x.stp, s.y.stp)
	} else {
		s.min = stp + xTrapLower*(stp-s.x.stp)
		s.max = stp + xTrapUpper*(stp-s.x.stp)
	}

	stp = math.Min(math.Max(stp, tol.Lower), tol.Upper)

	if s.bracket && (stp <= s.min || stp >= s.max || s.max-s.min <= tol.Eps*s.max) {
		stp = s.x.stp
	}

	s.stp = stp
	return stp, FG
}

// safeguard computes the next trial step from the trial point t and updates
// the interval [x, y] known to contain a step satisfying both conditions.
//
// x holds the step with the least function value and its derivative is
// negative in the direction of t. When bracketed, t lies strictly between x and y.
func (s *Search) safeguard(x, y *point, t point) float64 {
	sgnd := t.g * (x.g / math.Abs(x.g))

	var stpf float64
	switch {
	case t.f > x.f:
		// A higher function value: the minimum is bracketed.
		// Take the cubic step if it is closer to x than the quadratic step,
		// otherwise the average of both.
		stpc := cubicMin(*x, t, t.stp < x.stp)
		stpq := x.stp + ((x.g/((x.f-t.f)/(t.stp-x.stp)+x.g))/2)*(t.stp-x.stp)
		if math.Abs(stpc-x.stp) < math.Abs(stpq-x.stp) {
			stpf = stpc
		} else {
			stpf = stpc + (stpq-stpc)/2
		}
		s.bracket = true

	case sgnd < 0:
		// A lower function value and derivatives of opposite sign: the minimum is bracketed.
		// Take the cubic step if it is farther from t than the secant step.
		stpc := cubicFrom(t, *x)
		stpq := t.stp + (t.g/(t.g-x.g))*(x.stp-t.stp)
		if math.Abs(stpc-t.stp) > math.Abs(stpq-t.stp) {
			stpf = stpc
		} else {
			stpf = stpq
		}
		s.bracket = true

	case math.Abs(t.g) < math.Abs(x.g):
		// A lower function value, derivatives of the same sign and a decreasing derivative.
		// The cubic step is used only if the cubic tends to infinity in the direction
		// of the step or its minimum lies beyond t.
		theta := 3*(x.f-t.f)/(t.stp-x.stp) + x.g + t.g
		sc := math.Max(math.Max(math.Abs(theta), math.Abs(x.g)), math.Abs(t.g))
		// gamma = 0 only arises if the cubic does not tend to infinity in the direction of the step.
		gamma := sc * math.Sqrt(math.Max(0, (theta/sc)*(theta/sc)-(x.g/sc)*(t.g/sc)))
		if t.stp > x.stp {
			gamma = -gamma
		}
		p := (gamma - t.g) + theta
		q := (gamma + (x.g - t.g)) + gamma
		r := p / q
		var stpc float64
		switch {
		case r < 0 && gamma != 0:
			stpc = t.stp + r*(x.stp-t.stp)
		case t.stp > x.stp:
			stpc = s.max
		default:
			stpc = s.min
		}
		stpq := t.stp + (t.g/(t.g-x.g))*(x.stp-t.stp)
		if s.bracket {
			// Take the step closer to t, kept inside the bracket.
			if math.Abs(stpc-t.stp) < math.Abs(stpq-t.stp) {
				stpf = stpc
			} else {
				stpf = stpq
			}
			if t.stp > x.stp {
				stpf = math.Min(t.stp+p66*(y.stp-t.stp), stpf)
			} else {
				stpf = math.Max(t.stp+p66*(y.stp-t.stp), stpf)
			}
		} else {
			// Take the step farther from t, kept inside the extrapolation range.
			if math.Abs(stpc-t.stp) > math.Abs(stpq-t.stp) {
				stpf = stpc
			} else {
				stpf = stpq
			}
			stpf = math.Max(s.min, math.Min(s.max, stpf))
		}

	default:
		// A lower function value, derivatives of the same sign and a non-decreasing derivative.
		// Without a bracket the step goes to the end of the extrapolation range.
		switch {
		case s.bracket:
			stpf = cubicFrom(t, *y)
		case t.stp > x.stp:
			stpf = s.max
		default:
			stpf = s.min
		}
	}

	// Update the interval which contains a minimizer.
	if t.f > x.f {
		*y = t
	} else {
		if sgnd < 0 {
			*y = *x
		}
		*x = t
	}
	return stpf
}

// cubicMin returns the minimizer of the cubic interpolating a and b, measured from a.
func cubicMin(a, b point, flip bool) float64 {
	theta := 3*(a.f-b.f)/(b.stp-a.stp) + a.g + b.g
	sc := math.Max(math.Max(math.Abs(theta), math.Abs(a.g)), math.Abs(b.g))
	gamma := sc * math.Sqrt(math.Max(0, (theta/sc)*(theta/sc)-(a.g/sc)*(b.g/sc)))
	if flip {
		gamma = -gamma
	}
	p := (gamma - a.g) + theta
	q := ((gamma - a.g) + gamma) + b.g
	return a.stp + p/q*(b.stp-a.stp)
}

// cubicFrom returns the minimizer of the cubic interpolating t and o, measured from t.
func cubicFrom(t, o point) float64 {
	theta := 3*(o.f-t.f)/(t.stp-o.stp) + o.g + t.g
	sc := math.Max(math.Max(math.Abs(theta), math.Abs(o.g)), math.Abs(t.g))
	gamma := sc * math.Sqrt(math.Max(0, (theta/sc)*(theta/sc)-(o.g/sc)*(t.g/sc)))
	if t.stp > o.stp {
		gamma = -gamma
	}
	p := (gamma - t.g) + theta
	q := ((gamma - t.g) + gamma) + o.g
	return t.stp + p/q*(o.stp-t.stp)
}

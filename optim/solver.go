// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optim

import "fmt"

// Solver is the iteration contract shared by every optimizer of this module.
//
// Initialize allocates all working storage, so that the repeated Iterate calls
// do not allocate. A solver is not safe for concurrent use; create one per goroutine.
type Solver interface {
	// Initialize seeds the search at x0 with the relative function tolerance ftol
	// (0 ≤ ftol < 1) and the absolute gradient tolerance gtol (gtol ≥ 0).
	Initialize(x0 []float64, ftol, gtol float64) error
	// Iterate performs one step of the search. It returns true once converged;
	// subsequent calls are no-ops returning true. A non-nil error is fatal.
	Iterate() (bool, error)
	IsConverged() bool
	// IsUpdated reports whether the last Iterate call changed the parameters.
	IsUpdated() bool
	Parameters() []float64
	FunctionValue() float64
	SetVerbose(logger *Logger)
}

// Result summarizes a Process run.
type Result struct {
	Converged  bool
	Iterations int
	F          float64
	X          []float64
}

// Process drives s until it converges, fails or maxIterations Iterate calls were made.
// The solver must already be initialized.
func Process(s Solver, maxIterations int) (res Result, err error) {
	if maxIterations <= 0 {
		return res, fmt.Errorf("max iteration must greater than 0: %w", ErrConfig)
	}
	for res.Iterations < maxIterations {
		res.Iterations++
		var done bool
		if done, err = s.Iterate(); err != nil {
			break
		}
		if done {
			break
		}
	}
	res.Converged = s.IsConverged()
	res.F = s.FunctionValue()
	res.X = s.Parameters()
	return
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package quasinewton

import (
	"errors"
	"fmt"
	"math"

	"github.com/curioloop/leastsq/linesearch"
	"github.com/curioloop/leastsq/optim"
)

// Config configures BFGS.
type Config struct {
	// Relative tolerance on the function value: ftol·f(𝐱ₖ) ≥ f(𝐱ₖ) - f(𝐱ₖ₊₁)
	FTol float64 `yaml:"ftol"`
	// Absolute tolerance on the gradient: ‖𝐠‖∞ ≤ gtol
	GTol float64 `yaml:"gtol"`
	// Known lower bound of the function, used to bound the step. -Inf when unknown.
	FMin float64 `yaml:"fmin"`
	// Line search tolerances. Lower and Upper are selected per search.
	LineSearch linesearch.Tol `yaml:"line_search"`
	// Maximum function evaluations of one line search.
	MaxLineSearch int `yaml:"max_line_search"`
	// Maximum restarts of a failed line search with a halved initial step.
	MaxRetries int `yaml:"max_retries"`
}

func DefaultConfig() Config {
	return Config{
		FTol: 1e-12,
		GTol: 1e-12,
		FMin: math.Inf(-1),
		LineSearch: linesearch.Tol{
			Alpha: 1e-4,
			Beta:  0.9,
			Eps:   0.1,
		},
		MaxLineSearch: 50,
		MaxRetries:    10,
	}
}

func (c Config) Validate() (err error) {
	switch {
	case !(c.FTol >= 0 && c.FTol < 1):
		err = errors.New("ftol must in range [0, 1)")
	case !(c.GTol >= 0):
		err = errors.New("gtol must not less than 0")
	case math.IsNaN(c.FMin) || math.IsInf(c.FMin, 1):
		err = errors.New("fmin must be finite or -Inf")
	case !(c.LineSearch.Alpha > 0 && c.LineSearch.Alpha < c.LineSearch.Beta && c.LineSearch.Beta < 1):
		err = errors.New("line search tolerances must satisfy 0 < alpha < beta < 1")
	case !(c.LineSearch.Eps >= 0):
		err = errors.New("line search eps must not less than 0")
	case c.MaxLineSearch <= 0:
		err = errors.New("max line search must greater than 0")
	case c.MaxRetries < 0:
		err = errors.New("max retries must not less than 0")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", optim.ErrConfig, err)
	}
	return
}

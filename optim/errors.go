// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package optim

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrConfig signifies an invalid configuration detected at setup time.
	ErrConfig = errors.New("optim: invalid configuration")

	// ErrDimension signifies mismatched function, derivative or parameter dimensions.
	// It also matches ErrConfig.
	ErrDimension = fmt.Errorf("%w: dimension mismatch", ErrConfig)

	// ErrOptimizationFailed signifies a fatal numerical failure of the current solve.
	// The caller must restart from a different starting point.
	ErrOptimizationFailed = errors.New("optim: optimization failed")

	// ErrNotInitialized signifies Iterate was called before Initialize.
	ErrNotInitialized = errors.New("optim: solver not initialized")
)

// FailureError is returned by Iterate when the search cannot make progress.
// It carries the last known state for diagnosis.
type FailureError struct {
	Reason    string
	Iteration int
	F         float64 // Last accepted function value.
	GradNorm  float64 // Infinity norm of the last gradient.
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("optim: optimization failed at iteration %d: %s (f=%g, |g|=%g)",
		e.Iteration, e.Reason, e.F, e.GradNorm)
}

func (e *FailureError) Is(target error) bool {
	return target == ErrOptimizationFailed
}

// Fail builds a FailureError from the given state.
func Fail(reason string, iter int, f float64, g []float64) *FailureError {
	return &FailureError{Reason: reason, Iteration: iter, F: f, GradNorm: NormInf(g)}
}

// NormInf returns max|vᵢ|, or NaN if v contains NaN.
func NormInf(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if math.IsNaN(x) {
			return math.NaN()
		}
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}

// Uncountable reports whether v is NaN or ±Inf.
func Uncountable(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gaussnewton

// Mode is the state of the Gauss-Newton iteration.
//
//	ComputeDerivatives ──▶ DetermineStep ──▶ ComputeDerivatives ···
//	        │                    │
//	        └──────────▶ Converged ◀──────┘
type Mode int

const (
	// ComputeDerivatives evaluates the gradient and Hessian at 𝐱.
	ComputeDerivatives Mode = iota
	// DetermineStep proposes candidates until one is accepted.
	// The gradient and Hessian are valid for the current 𝐱.
	DetermineStep
	// Converged is terminal.
	Converged
)

func (m Mode) String() string {
	switch m {
	case ComputeDerivatives:
		return "ComputeDerivatives"
	case DetermineStep:
		return "DetermineStep"
	case Converged:
		return "Converged"
	}
	return "Unknown"
}

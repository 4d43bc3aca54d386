// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gaussnewton

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/curioloop/leastsq/optim"
)

// Sentinel values of ConfigTrustRegion.RegionInitial.
const (
	// RegionUnconstrained takes an unconstrained first step and adopts its length as the radius.
	RegionUnconstrained = -1.0
	// RegionCauchy sets the radius to ten times the unconstrained Cauchy step length.
	RegionCauchy = -2.0
)

// ConfigGaussNewton holds the settings shared by all Gauss-Newton solvers.
type ConfigGaussNewton struct {
	// Relative tolerance on the function value: ftol·f(𝐱ₖ) ≥ f(𝐱ₖ) - f(𝐱ₖ₊₁)
	FTol float64 `yaml:"ftol"`
	// Absolute tolerance on the gradient: ‖𝐠‖∞ ≤ gtol
	GTol float64 `yaml:"gtol"`
	// Scale the problem by 𝐬 = √|𝚍𝚒𝚊𝚐(𝐇)| before computing a step.
	HessianScaling bool `yaml:"hessian_scaling"`
	// Bounds applied to every scaling factor.
	ScalingMin float64 `yaml:"scaling_min"`
	ScalingMax float64 `yaml:"scaling_max"`
}

func DefaultConfigGaussNewton() ConfigGaussNewton {
	return ConfigGaussNewton{
		FTol:       1e-12,
		GTol:       1e-12,
		ScalingMin: 1e-5,
		ScalingMax: 1e5,
	}
}

func (c ConfigGaussNewton) Validate() (err error) {
	switch {
	case !(c.FTol >= 0 && c.FTol < 1):
		err = errors.New("ftol must in range [0, 1)")
	case !(c.GTol >= 0):
		err = errors.New("gtol must not less than 0")
	case c.HessianScaling && !(c.ScalingMin > 0):
		err = errors.New("scaling minimum must greater than 0")
	case c.HessianScaling && !(c.ScalingMax >= c.ScalingMin):
		err = errors.New("scaling maximum must not less than minimum")
	}
	return wrapConfig(err)
}

// UpdateKind selects the parameter update of a trust-region solver.
type UpdateKind int

const (
	UpdateDogleg UpdateKind = iota
	UpdateCauchy
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateDogleg:
		return "dogleg"
	case UpdateCauchy:
		return "cauchy"
	}
	return fmt.Sprintf("UpdateKind(%d)", int(k))
}

func (k UpdateKind) MarshalText() ([]byte, error) {
	if k != UpdateDogleg && k != UpdateCauchy {
		return nil, fmt.Errorf("unknown update kind %d: %w", int(k), optim.ErrConfig)
	}
	return []byte(k.String()), nil
}

func (k *UpdateKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "dogleg":
		*k = UpdateDogleg
	case "cauchy":
		*k = UpdateCauchy
	default:
		return fmt.Errorf("unknown update kind %q: %w", string(b), optim.ErrConfig)
	}
	return nil
}

// ConfigTrustRegion configures TrustRegion.
type ConfigTrustRegion struct {
	ConfigGaussNewton `yaml:",inline"`
	// Initial radius: a positive number, RegionUnconstrained or RegionCauchy.
	RegionInitial float64 `yaml:"region_initial"`
	// Upper bound of the radius.
	RegionMaximum float64 `yaml:"region_maximum"`
	// Parameter update used when none is injected.
	Update UpdateKind `yaml:"update"`
	// Consecutive rejected candidates tolerated before the search fails.
	MaxRejections int `yaml:"max_rejections"`
}

func DefaultConfigTrustRegion() ConfigTrustRegion {
	return ConfigTrustRegion{
		ConfigGaussNewton: DefaultConfigGaussNewton(),
		RegionInitial:     RegionUnconstrained,
		RegionMaximum:     math.MaxFloat64,
		Update:            UpdateDogleg,
		MaxRejections:     200,
	}
}

func (c ConfigTrustRegion) Validate() error {
	if err := c.ConfigGaussNewton.Validate(); err != nil {
		return err
	}
	var err error
	switch {
	case !(c.RegionInitial > 0) && c.RegionInitial != RegionUnconstrained && c.RegionInitial != RegionCauchy:
		err = errors.New("initial region must greater than 0 or be one of the auto-select sentinels")
	case math.IsInf(c.RegionInitial, 0):
		err = errors.New("initial region must be finite")
	case !(c.RegionMaximum > 0):
		err = errors.New("maximum region must greater than 0")
	case c.RegionInitial > c.RegionMaximum:
		err = errors.New("initial region must not greater than maximum region")
	case c.Update != UpdateDogleg && c.Update != UpdateCauchy:
		err = errors.New("unknown parameter update")
	case c.MaxRejections <= 0:
		err = errors.New("max rejections must greater than 0")
	}
	return wrapConfig(err)
}

// ConfigLevenbergMarquardt configures LevenbergMarquardt.
//
// The damped diagonal is hᵢᵢ + μ((1-mix) + mix·𝚌𝚕𝚊𝚖𝚙(hᵢᵢ, DiagonalMin, DiagonalMax)),
// so mix = 0 solves (𝐇 + μ𝐈)𝐩 = -𝐠 and mix = 1 solves (𝐇 + μ𝚍𝚒𝚊𝚐(𝐇))𝐩 = -𝐠.
type ConfigLevenbergMarquardt struct {
	ConfigGaussNewton `yaml:",inline"`
	DampingInitial    float64 `yaml:"damping_initial"`
	DampingMixture    float64 `yaml:"damping_mixture"`
	DiagonalMin       float64 `yaml:"diagonal_min"`
	DiagonalMax       float64 `yaml:"diagonal_max"`
	// μ is kept above DampingFloor·max|hᵢᵢ|.
	DampingFloor float64 `yaml:"damping_floor"`
	// Consecutive failed linear solves tolerated before the search fails.
	MaxSolveRetries int `yaml:"max_solve_retries"`
}

func DefaultConfigLevenbergMarquardt() ConfigLevenbergMarquardt {
	return ConfigLevenbergMarquardt{
		ConfigGaussNewton: DefaultConfigGaussNewton(),
		DampingInitial:    1e-3,
		DampingMixture:    0,
		DiagonalMin:       1e-6,
		DiagonalMax:       1e6,
		DampingFloor:      1e-12,
		MaxSolveRetries:   20,
	}
}

func (c ConfigLevenbergMarquardt) Validate() error {
	if err := c.ConfigGaussNewton.Validate(); err != nil {
		return err
	}
	var err error
	switch {
	case !(c.DampingInitial > 0) || math.IsInf(c.DampingInitial, 0):
		err = errors.New("initial damping must greater than 0")
	case !(c.DampingMixture >= 0 && c.DampingMixture <= 1):
		err = errors.New("damping mixture must in range [0, 1]")
	case !(c.DiagonalMin > 0) || !(c.DiagonalMax >= c.DiagonalMin):
		err = errors.New("diagonal clamp range error")
	case !(c.DampingFloor >= 0):
		err = errors.New("damping floor must not less than 0")
	case c.MaxSolveRetries <= 0:
		err = errors.New("max solve retries must greater than 0")
	}
	return wrapConfig(err)
}

func wrapConfig(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", optim.ErrConfig, err)
}

// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loss

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/curioloop/leastsq/optim"
)

// Type selects a loss function.
type Type int

const (
	TypeSquared Type = iota
	TypeHuber
	TypeHuberSmooth
	TypeCauchy
	TypeTukey
	TypeIRLS
)

var typeNames = [...]string{"squared", "huber", "huber_smooth", "cauchy", "tukey", "irls"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

func (t Type) MarshalText() ([]byte, error) {
	if t < 0 || int(t) >= len(typeNames) {
		return nil, fmt.Errorf("unknown loss type %d: %w", int(t), optim.ErrConfig)
	}
	return []byte(typeNames[t]), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range typeNames {
		if n == name {
			*t = Type(i)
			return nil
		}
	}
	return fmt.Errorf("unknown loss type %q: %w", name, optim.ErrConfig)
}

// Config describes a loss function with its tunable threshold.
type Config struct {
	Type      Type    `yaml:"type"`
	Parameter float64 `yaml:"parameter"`
}

func (c Config) Validate() (err error) {
	switch {
	case c.Type < TypeSquared || c.Type > TypeIRLS:
		err = errors.New("unknown loss type")
	case c.Type != TypeSquared && c.Type != TypeIRLS &&
		(!(c.Parameter > 0) || math.IsInf(c.Parameter, 0)):
		err = errors.New("loss parameter must greater than 0")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", optim.ErrConfig, err)
	}
	return
}

// New creates the loss described by cfg.
// The IRLS type requires the weighting callback weigh; other types ignore it.
func New(cfg Config, weigh func(r, w []float64)) (Function, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypeHuber:
		return Huber{T: cfg.Parameter}, nil
	case TypeHuberSmooth:
		return HuberSmooth{T: cfg.Parameter}, nil
	case TypeCauchy:
		return Cauchy{T: cfg.Parameter}, nil
	case TypeTukey:
		return Tukey{T: cfg.Parameter}, nil
	case TypeIRLS:
		if weigh == nil {
			return nil, fmt.Errorf("irls loss requires a weighting function: %w", optim.ErrConfig)
		}
		return NewIRLS(weigh), nil
	default:
		return Squared{}, nil
	}
}

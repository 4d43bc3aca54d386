// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package loss

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/leastsq/optim"
)

func TestWeightsMatchDerivative(t *testing.T) {
	losses := []Function{
		Squared{},
		Huber{T: 0.7},
		HuberSmooth{T: 0.7},
		Cauchy{T: 0.7},
		Tukey{T: 2.5},
	}
	residuals := []float64{-3, -1.2, -0.4, 0.05, 0.3, 0.69, 1.1, 2.4}

	const h = 1e-6
	for _, l := range losses {
		w := make([]float64, len(residuals))
		l.Weights(residuals, w)
		for i, r := range residuals {
			// ρ′(r) by central difference
			d := (l.Cost([]float64{r + h}) - l.Cost([]float64{r - h})) / (2 * h)
			assert.InDelta(t, d, w[i]*r, 1e-6, "%T at r=%g", l, r)
			assert.GreaterOrEqual(t, w[i], 0.0)
			assert.LessOrEqual(t, w[i], 1.0+1e-12)
		}

		// Weight at zero is the curvature at the origin.
		w0 := []float64{math.NaN()}
		l.Weights([]float64{0}, w0)
		assert.Equal(t, 1.0, w0[0], "%T", l)
		assert.False(t, l.Fixate(residuals))
	}
}

func TestCost(t *testing.T) {
	r := []float64{0.5, -2, 4}
	assert.InDelta(t, 0.5*(0.25+4+16), Squared{}.Cost(r), 1e-15)
	assert.Zero(t, Squared{}.Cost(nil))
	assert.InDelta(t, 0.125+1*(2-0.5)+1*(4-0.5), Huber{T: 1}.Cost(r), 1e-15)
	// Tukey saturates beyond the threshold.
	assert.InDelta(t, 1.0/6*2+(1-math.Pow(0.75, 3))/6, Tukey{T: 1}.Cost(r), 1e-15)
	// Robust losses agree with the squared loss for small residuals.
	small := []float64{1e-4, -2e-4}
	for _, l := range []Function{Huber{T: 1}, HuberSmooth{T: 1}, Cauchy{T: 1}, Tukey{T: 1}} {
		assert.InEpsilon(t, Squared{}.Cost(small), l.Cost(small), 1e-6, "%T", l)
	}
}

func TestIRLS(t *testing.T) {
	calls := 0
	l := NewIRLS(func(r, w []float64) {
		calls++
		for i, v := range r {
			w[i] = 1 / (1 + math.Abs(v))
		}
	})

	r := []float64{1, -3}
	// Before fixation the loss is squared.
	assert.Equal(t, Squared{}.Cost(r), l.Cost(r))

	require.True(t, l.Fixate(r))
	assert.Equal(t, 1, calls)
	w := make([]float64, 2)
	l.Weights(r, w)
	assert.Equal(t, []float64{0.5, 0.25}, w)
	assert.InDelta(t, 0.5*(0.5*1+0.25*9), l.Cost(r), 1e-15)

	// Weights stay fixed between fixations.
	other := []float64{2, 2}
	assert.InDelta(t, 0.5*(0.5*4+0.25*4), l.Cost(other), 1e-15)
}

func TestConfig(t *testing.T) {
	var cfg Config
	doc := "type: huber\nparameter: 1.5\n"
	require.NoError(t, optim.DecodeYAML(strings.NewReader(doc), &cfg))
	assert.Equal(t, TypeHuber, cfg.Type)

	l, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, Huber{T: 1.5}, l)

	for typ, want := range map[Type]Function{
		TypeSquared:     Squared{},
		TypeHuberSmooth: HuberSmooth{T: 2},
		TypeCauchy:      Cauchy{T: 2},
		TypeTukey:       Tukey{T: 2},
	} {
		l, err := New(Config{Type: typ, Parameter: 2}, nil)
		require.NoError(t, err)
		assert.Equal(t, want, l)

		text, err := typ.MarshalText()
		require.NoError(t, err)
		var back Type
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, typ, back)
	}

	l, err = New(Config{Type: TypeIRLS}, func(r, w []float64) {})
	require.NoError(t, err)
	assert.IsType(t, &IRLS{}, l)
}

func TestConfigErrors(t *testing.T) {
	cases := []Config{
		{Type: TypeHuber},
		{Type: TypeCauchy, Parameter: -1},
		{Type: TypeTukey, Parameter: math.Inf(1)},
		{Type: Type(42)},
	}
	for _, c := range cases {
		_, err := New(c, nil)
		assert.True(t, errors.Is(err, optim.ErrConfig), "%+v", c)
	}

	_, err := New(Config{Type: TypeIRLS}, nil)
	assert.ErrorIs(t, err, optim.ErrConfig)

	var typ Type
	assert.ErrorIs(t, typ.UnmarshalText([]byte("l1")), optim.ErrConfig)
	_, err = Type(-1).MarshalText()
	assert.ErrorIs(t, err, optim.ErrConfig)
	assert.Equal(t, "Type(42)", Type(42).String())

	var cfg Config
	err = optim.DecodeYAML(strings.NewReader("type: huber\nthreshold: 1\n"), &cfg)
	assert.ErrorIs(t, err, optim.ErrConfig)
}

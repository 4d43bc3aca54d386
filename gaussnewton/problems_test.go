// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gaussnewton

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/leastsq/optim"
)

// lineDistance measures the distance of points to the line whose closest point
// to the origin is (p₀, p₁).
type lineDistance struct {
	xs, ys []float64
}

// newLine samples n points on the line tangent to the circle through (x, y).
func newLine(x, y float64, n int) lineDistance {
	rho := math.Hypot(x, y)
	dx, dy := -y/rho, x/rho
	l := lineDistance{xs: make([]float64, n), ys: make([]float64, n)}
	for i := range l.xs {
		t := 0.5 * float64(i-n/2)
		l.xs[i] = x + t*dx
		l.ys[i] = y + t*dy
	}
	return l
}

func (l lineDistance) residuals(p, r []float64) {
	rho := math.Hypot(p[0], p[1])
	for i := range l.xs {
		r[i] = (l.xs[i]*p[0]+l.ys[i]*p[1])/rho - rho
	}
}

func (l lineDistance) jacobian(p []float64, jac *mat.Dense) {
	rho := math.Hypot(p[0], p[1])
	rho3 := rho * rho * rho
	for i := range l.xs {
		dot := l.xs[i]*p[0] + l.ys[i]*p[1]
		jac.Set(i, 0, l.xs[i]/rho-dot*p[0]/rho3-p[0]/rho)
		jac.Set(i, 1, l.ys[i]/rho-dot*p[1]/rho3-p[1]/rho)
	}
}

func (l lineDistance) function() optim.ResidualFunc {
	return optim.ResidualFunc{N: 2, M: len(l.xs), Func: l.residuals}
}

func (l lineDistance) derivative() optim.JacobianFunc {
	return optim.JacobianFunc{N: 2, M: len(l.xs), Func: l.jacobian}
}

// rosenbrock is the Rosenbrock function written as residuals [10(x₁-x₀²), 1-x₀].
var rosenbrock = optim.ResidualFunc{N: 2, M: 2, Func: func(x, r []float64) {
	r[0] = 10 * (x[1] - x[0]*x[0])
	r[1] = 1 - x[0]
}}

var rosenbrockJacobian = optim.JacobianFunc{N: 2, M: 2, Func: func(x []float64, jac *mat.Dense) {
	jac.Set(0, 0, -20*x[0])
	jac.Set(0, 1, 10)
	jac.Set(1, 0, -1)
	jac.Set(1, 1, 0)
}}

// bearings is a planar bundle adjustment: every camera (x, y, θ) measures the
// bearing of every landmark (x, y). Landmarks form the left parameter group.
//
// The scene is only known up to a similarity transform. Anchoring adds prior
// residuals on the pose of camera 0 and the x coordinate of camera 1, which
// removes the gauge freedom.
type bearings struct {
	landmarks, cameras int
	observed           []float64
	anchor             []float64
}

func (b *bearings) numLeft() int  { return 2 * b.landmarks }
func (b *bearings) numRight() int { return 3 * b.cameras }
func (b *bearings) numObs() int   { return b.landmarks*b.cameras + len(b.anchor) }

const anchorWeight = 10

// anchored fixes the gauge at the given parameters.
func (b *bearings) anchored(x []float64) *bearings {
	k := b.numLeft()
	b.anchor = []float64{x[k], x[k+1], x[k+2], x[k+3]}
	return b
}

func (b *bearings) predict(x []float64, r []float64) {
	cams := x[b.numLeft():]
	for c := 0; c < b.cameras; c++ {
		cx, cy, ct := cams[3*c], cams[3*c+1], cams[3*c+2]
		for l := 0; l < b.landmarks; l++ {
			r[c*b.landmarks+l] = math.Atan2(x[2*l+1]-cy, x[2*l]-cx) - ct
		}
	}
}

func (b *bearings) residuals(x, r []float64) {
	obs := len(b.observed)
	b.predict(x, r)
	for i := 0; i < obs; i++ {
		r[i] = wrapAngle(r[i] - b.observed[i])
	}
	k := b.numLeft()
	for i, v := range b.anchor {
		r[obs+i] = anchorWeight * (x[k+i] - v)
	}
	if len(b.anchor) > 0 {
		r[obs+2] = anchorWeight * wrapAngle(x[k+2]-b.anchor[2])
	}
}

func (b *bearings) jacobian(x []float64, left, right *mat.Dense) {
	left.Zero()
	right.Zero()
	cams := x[b.numLeft():]
	for c := 0; c < b.cameras; c++ {
		cx, cy := cams[3*c], cams[3*c+1]
		for l := 0; l < b.landmarks; l++ {
			i := c*b.landmarks + l
			dx, dy := x[2*l]-cx, x[2*l+1]-cy
			q := dx*dx + dy*dy
			left.Set(i, 2*l, -dy/q)
			left.Set(i, 2*l+1, dx/q)
			right.Set(i, 3*c, dy/q)
			right.Set(i, 3*c+1, -dx/q)
			right.Set(i, 3*c+2, -1)
		}
	}
	obs := len(b.observed)
	for i := range b.anchor {
		right.Set(obs+i, i, anchorWeight)
	}
}

func (b *bearings) function() optim.ResidualFunc {
	return optim.ResidualFunc{N: b.numLeft() + b.numRight(), M: b.numObs(), Func: b.residuals}
}

func (b *bearings) derivative() optim.SchurJacobianFunc {
	return optim.SchurJacobianFunc{Left: b.numLeft(), Right: b.numRight(), M: b.numObs(), Func: b.jacobian}
}

// newBearings places cameras on a circle of radius 200 looking at landmarks spread
// over [-50, 50]², and returns the scene with the true and perturbed parameters.
func newBearings(rnd *rand.Rand, landmarks, cameras int) (b *bearings, truth, x0 []float64) {
	b = &bearings{landmarks: landmarks, cameras: cameras}
	truth = make([]float64, b.numLeft()+b.numRight())
	for l := 0; l < landmarks; l++ {
		truth[2*l] = -50 + 100*rnd.Float64()
		truth[2*l+1] = -50 + 100*rnd.Float64()
	}
	for c := 0; c < cameras; c++ {
		a := 2 * math.Pi * float64(c) / float64(cameras)
		k := b.numLeft() + 3*c
		truth[k] = 200 * math.Cos(a)
		truth[k+1] = 200 * math.Sin(a)
		truth[k+2] = wrapAngle(a + math.Pi + 0.1*rnd.NormFloat64())
	}
	b.observed = make([]float64, b.numObs())
	b.predict(truth, b.observed)

	x0 = make([]float64, len(truth))
	copy(x0, truth)
	for i := 0; i < b.numLeft(); i++ {
		x0[i] += 5 * rnd.NormFloat64()
	}
	for c := 0; c < cameras; c++ {
		k := b.numLeft() + 3*c
		x0[k] += 5 * rnd.NormFloat64()
		x0[k+1] += 5 * rnd.NormFloat64()
		x0[k+2] = wrapAngle(x0[k+2] + 0.02*rnd.NormFloat64())
	}
	return
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

package numdiff

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/leastsq/optim"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// Scheme estimates derivatives by finite differences.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type Scheme struct {
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = eps * sign(x0) * max(1, abs(x0)).
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	RelStep float64
	// Absolute step size to use. RelStep is used when AbsStep is not provided.
	AbsStep float64

	h          []float64
	x          []float64
	f0, f1, f2 []float64
}

func (s *Scheme) prepare(n, m int) {
	if len(s.h) != n {
		s.h = make([]float64, n)
		s.x = make([]float64, n)
	}
	if len(s.f0) != m {
		s.f0 = make([]float64, m)
		s.f1 = make([]float64, m)
		s.f2 = make([]float64, m)
	}
}

func (s *Scheme) steps(x0 []float64) {
	h := s.h
	if len(h) != len(x0) {
		panic("bound check error")
	}

	var eps float64
	switch s.Method {
	case Forward:
		eps = sqrtEps
	case Central:
		eps = cubeEps
	default:
		panic("unknown method")
	}

	for i, v := range x0 {
		var d float64
		switch {
		case s.AbsStep != 0:
			d = s.AbsStep
		case s.RelStep != 0:
			d = math.Copysign(s.RelStep, v) * math.Abs(v)
		}
		if d == 0 || (v+d)-v == 0 {
			d = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
		if s.Method == Central {
			d = math.Abs(d)
		}
		h[i] = d
	}
}

// derive writes ∂fⱼ/∂xᵢ to df[j*stride+i] for an n→m function.
// x0 is left untouched.
func (s *Scheme) derive(fun func(x, y []float64), m int, x0, df []float64, stride int) {
	n := len(x0)
	s.prepare(n, m)
	s.steps(x0)

	x, f0, f1, f2 := s.x, s.f0, s.f1, s.f2
	copy(x, x0)
	if s.Method == Forward {
		fun(x, f0)
	}
	for i, h := range s.h {
		t := x[i]
		if s.Method == Forward {
			x[i] = t + h
			fun(x, f1)
			d := 1.0 / ((t + h) - t)
			for j := range f0 {
				df[j*stride+i] = (f1[j] - f0[j]) * d
			}
		} else {
			x[i] = t - h
			fun(x, f1)
			x[i] = t + h
			fun(x, f2)
			d := 1.0 / (2 * h)
			for j := range f1 {
				df[j*stride+i] = (f2[j] - f1[j]) * d
			}
		}
		x[i] = t
	}
}

// Jacobian estimates the dense Jacobian of F.
type Jacobian struct {
	F optim.FunctionNtoM
	Scheme
}

func NewJacobian(f optim.FunctionNtoM, method Method) *Jacobian {
	return &Jacobian{F: f, Scheme: Scheme{Method: method}}
}

func (j *Jacobian) NumInputs() int  { return j.F.NumInputs() }
func (j *Jacobian) NumOutputs() int { return j.F.NumOutputs() }

func (j *Jacobian) Process(x []float64, jac *mat.Dense) {
	raw := jac.RawMatrix()
	if raw.Rows != j.F.NumOutputs() || raw.Cols != len(x) {
		panic("bound check error")
	}
	j.derive(j.F.Process, raw.Rows, x, raw.Data, raw.Stride)
}

// SchurJacobian estimates the Jacobian of F split after the first Left parameters.
type SchurJacobian struct {
	F    optim.FunctionNtoM
	Left int
	Scheme
	full *mat.Dense
}

func NewSchurJacobian(f optim.FunctionNtoM, left int, method Method) *SchurJacobian {
	return &SchurJacobian{F: f, Left: left, Scheme: Scheme{Method: method}}
}

func (j *SchurJacobian) NumLeft() int    { return j.Left }
func (j *SchurJacobian) NumRight() int   { return j.F.NumInputs() - j.Left }
func (j *SchurJacobian) NumOutputs() int { return j.F.NumOutputs() }

func (j *SchurJacobian) Process(x []float64, left, right *mat.Dense) {
	m, n := j.F.NumOutputs(), len(x)
	if j.full == nil {
		j.full = mat.NewDense(m, n, nil)
	} else if r, c := j.full.Dims(); r != m || c != n {
		j.full = mat.NewDense(m, n, nil)
	}
	raw := j.full.RawMatrix()
	j.derive(j.F.Process, m, x, raw.Data, raw.Stride)
	left.Copy(j.full.Slice(0, m, 0, j.Left))
	right.Copy(j.full.Slice(0, m, j.Left, n))
}

// Gradient estimates the gradient of the scalar function F.
type Gradient struct {
	F optim.FunctionNtoS
	Scheme
	eval func(x, y []float64)
}

func NewGradient(f optim.FunctionNtoS, method Method) *Gradient {
	return &Gradient{F: f, Scheme: Scheme{Method: method}}
}

func (g *Gradient) NumInputs() int { return g.F.NumInputs() }

func (g *Gradient) Process(x, grad []float64) {
	if len(grad) != len(x) {
		panic("bound check error")
	}
	if g.eval == nil {
		g.eval = func(x, y []float64) { y[0] = g.F.Process(x) }
	}
	g.derive(g.eval, 1, x, grad, len(x))
}

package systems

import (
	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// ChanBratu is the Bratu-like boundary value problem
//
//	u'' + alpha * N(u) = 0,  u(0) = u(1) = beta
//
// with N(x) = 1 + (x + a*x^2) / (1 + b*x^2), discretized by second-order
// central differences on N interior mesh points. Continuation in alpha
// runs into a fold as the source term saturates.
type ChanBratu struct {
	N    int
	A, B float64
	Beta float64
}

func NewChanBratu(n int) *ChanBratu {
	return &ChanBratu{N: n, A: 0.5, B: 0.01, Beta: 0.01}
}

func (c *ChanBratu) source(x float64) float64 {
	return 1 + (x+c.A*x*x)/(1+c.B*x*x)
}

func (c *ChanBratu) sourceDeriv(x float64) float64 {
	den := 1 + c.B*x*x
	return ((1+2*c.A*x)*den - (x+c.A*x*x)*2*c.B*x) / (den * den)
}

// InitialState is the flat start of the lower branch.
func (c *ChanBratu) InitialState() vec.Dense {
	u := make(vec.Dense, c.N)
	for i := range u {
		u[i] = c.Beta
	}
	return u
}

func (c *ChanBratu) F(uv vec.Vector, alpha float64) vec.Vector {
	u := uv.(vec.Dense)
	n := c.N
	h := 1 / float64(n+1)
	h2 := h * h
	out := make(vec.Dense, n)
	for i := 0; i < n; i++ {
		left, right := c.Beta, c.Beta
		if i > 0 {
			left = u[i-1]
		}
		if i < n-1 {
			right = u[i+1]
		}
		out[i] = (left-2*u[i]+right)/h2 + alpha*c.source(u[i])
	}
	return out
}

func (c *ChanBratu) J(uv vec.Vector, alpha float64) linsolve.Op {
	u := uv.(vec.Dense)
	n := c.N
	h := 1 / float64(n+1)
	h2 := h * h
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, -2/h2+alpha*c.sourceDeriv(u[i]))
		if i > 0 {
			m.Set(i, i-1, 1/h2)
		}
		if i < n-1 {
			m.Set(i, i+1, 1/h2)
		}
	}
	return linsolve.MatOp{M: m}
}

func (c *ChanBratu) DpF(uv vec.Vector, alpha float64) vec.Vector {
	u := uv.(vec.Dense)
	out := make(vec.Dense, c.N)
	for i := range out {
		out[i] = c.source(u[i])
	}
	return out
}

// Problem records the mid-domain value, which traces the fold cleanly.
func (c *ChanBratu) Problem() cont.Problem {
	return cont.Problem{
		F:   c.F,
		J:   c.J,
		DpF: c.DpF,
		PrintSolution: func(u vec.Vector, p float64) float64 {
			d := u.(vec.Dense)
			return d[len(d)/2]
		},
	}
}

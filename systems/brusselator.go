package systems

import (
	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// Brusselator1D is the reaction-diffusion Brusselator on [0, 1] with N
// interior mesh points and Dirichlet boundary values pinned at the
// homogeneous equilibrium:
//
//	u_t = D1/l^2 u'' + u^2 v - (B+1) u + A
//	v_t = D2/l^2 v'' + B u - u^2 v
//
// The continuation parameter is the domain length l. The state is the
// flat vector (u_1..u_N, v_1..v_N). Growing l destabilizes successive
// spatial modes through Hopf bifurcations, all at the same frequency.
type Brusselator1D struct {
	N      int
	A, B   float64
	D1, D2 float64
}

func NewBrusselator1D(n int) *Brusselator1D {
	return &Brusselator1D{N: n, A: 2, B: 5.45, D1: 0.008, D2: 0.004}
}

// Equilibrium is the homogeneous steady state (A, B/A) at every mesh
// point; it solves F exactly for every l.
func (br *Brusselator1D) Equilibrium() vec.Dense {
	n := br.N
	y := make(vec.Dense, 2*n)
	for i := 0; i < n; i++ {
		y[i] = br.A
		y[n+i] = br.B / br.A
	}
	return y
}

func (br *Brusselator1D) F(yv vec.Vector, l float64) vec.Vector {
	y := yv.(vec.Dense)
	n := br.N
	h := 1 / float64(n+1)
	cu := br.D1 / (l * l * h * h)
	cv := br.D2 / (l * l * h * h)
	ub, vb := br.A, br.B/br.A

	out := make(vec.Dense, 2*n)
	for i := 0; i < n; i++ {
		ul, ur, vl, vr := ub, ub, vb, vb
		if i > 0 {
			ul, vl = y[i-1], y[n+i-1]
		}
		if i < n-1 {
			ur, vr = y[i+1], y[n+i+1]
		}
		u, v := y[i], y[n+i]
		out[i] = cu*(ul-2*u+ur) + u*u*v - (br.B+1)*u + br.A
		out[n+i] = cv*(vl-2*v+vr) + br.B*u - u*u*v
	}
	return out
}

func (br *Brusselator1D) J(yv vec.Vector, l float64) linsolve.Op {
	y := yv.(vec.Dense)
	n := br.N
	h := 1 / float64(n+1)
	cu := br.D1 / (l * l * h * h)
	cv := br.D2 / (l * l * h * h)

	m := mat.NewDense(2*n, 2*n, nil)
	for i := 0; i < n; i++ {
		u, v := y[i], y[n+i]

		m.Set(i, i, -2*cu+2*u*v-(br.B+1))
		m.Set(i, n+i, u*u)
		m.Set(n+i, i, br.B-2*u*v)
		m.Set(n+i, n+i, -2*cv-u*u)

		if i > 0 {
			m.Set(i, i-1, cu)
			m.Set(n+i, n+i-1, cv)
		}
		if i < n-1 {
			m.Set(i, i+1, cu)
			m.Set(n+i, n+i+1, cv)
		}
	}
	return linsolve.MatOp{M: m}
}

// DpF differentiates the diffusion scaling in l.
func (br *Brusselator1D) DpF(yv vec.Vector, l float64) vec.Vector {
	y := yv.(vec.Dense)
	n := br.N
	h := 1 / float64(n+1)
	// d/dl of c = D/(l^2 h^2) is -2c/l.
	cu := -2 * br.D1 / (l * l * l * h * h)
	cv := -2 * br.D2 / (l * l * l * h * h)
	ub, vb := br.A, br.B/br.A

	out := make(vec.Dense, 2*n)
	for i := 0; i < n; i++ {
		ul, ur, vl, vr := ub, ub, vb, vb
		if i > 0 {
			ul, vl = y[i-1], y[n+i-1]
		}
		if i < n-1 {
			ur, vr = y[i+1], y[n+i+1]
		}
		out[i] = cu * (ul - 2*y[i] + ur)
		out[n+i] = cv * (vl - 2*y[n+i] + vr)
	}
	return out
}

// Problem records the state norm; on the trivial branch it stays at the
// equilibrium level while the spectrum does the interesting work.
func (br *Brusselator1D) Problem() cont.Problem {
	return cont.Problem{
		F:   br.F,
		J:   br.J,
		DpF: br.DpF,
	}
}

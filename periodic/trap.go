package periodic

import (
	"math"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// TrapProblem discretizes a periodic orbit with M time slices and an
// implicit trapezoidal rule between consecutive slices, closed
// cyclically. The unknown is the flat vector (x_1, ..., x_M, T) with T
// the period; the phase constraint <x_1 - UHopf, Phi> = 0 kills the time
// shift invariance.
type TrapProblem struct {
	// F and J are the vector field and its Jacobian.
	F func(x vec.Vector, p float64) vec.Vector
	J func(x vec.Vector, p float64) linsolve.Op
	// UHopf is the reference state (typically the equilibrium the orbit
	// bifurcated from) and Phi the phase direction.
	UHopf vec.Dense
	Phi   vec.Dense
	// M is the number of time slices.
	M int
	// Solver inverts the (I - h/2 J) factors of the monodromy. Nil means
	// dense LU.
	Solver linsolve.Solver
}

// N is the state dimension.
func (tp *TrapProblem) N() int { return len(tp.UHopf) }

// Dim is the length of the flat unknown.
func (tp *TrapProblem) Dim() int { return tp.N()*tp.M + 1 }

// slice returns the i-th time slice of the unknown, 0-based, as a view.
func (tp *TrapProblem) slice(y vec.Dense, i int) vec.Dense {
	n := tp.N()
	return y[i*n : (i+1)*n]
}

// Period reads the trailing period entry.
func (tp *TrapProblem) Period(y vec.Dense) float64 { return y[len(y)-1] }

// Residual evaluates the M cyclic trapezoidal constraints and the phase
// condition at (y, p).
func (tp *TrapProblem) Residual(yv vec.Vector, p float64) vec.Vector {
	y := yv.(vec.Dense)
	n, m := tp.N(), tp.M
	T := tp.Period(y)
	h := T / float64(m)

	out := make(vec.Dense, tp.Dim())
	fs := make([]vec.Dense, m)
	for i := 0; i < m; i++ {
		fs[i] = tp.F(tp.slice(y, i), p).(vec.Dense)
	}
	for i := 0; i < m; i++ {
		xi := tp.slice(y, i)
		xn := tp.slice(y, (i+1)%m)
		row := out[i*n : (i+1)*n]
		for k := 0; k < n; k++ {
			row[k] = xn[k] - xi[k] - h/2*(fs[i][k]+fs[(i+1)%m][k])
		}
	}

	x0 := tp.slice(y, 0)
	phase := 0.0
	for k := 0; k < n; k++ {
		phase += (x0[k] - tp.UHopf[k]) * tp.Phi[k]
	}
	out[n*m] = phase
	return out
}

// JacVecAt returns the Jacobian of the residual at (y, p) as a
// matrix-free operator on increments (dx_1, ..., dx_M, dT).
func (tp *TrapProblem) JacVecAt(yv vec.Vector, p float64) linsolve.Op {
	y := yv.(vec.Dense)
	n, m := tp.N(), tp.M
	T := tp.Period(y)
	h := T / float64(m)

	fs := make([]vec.Dense, m)
	js := make([]linsolve.Op, m)
	for i := 0; i < m; i++ {
		fs[i] = tp.F(tp.slice(y, i), p).(vec.Dense)
		js[i] = tp.J(tp.slice(y, i), p)
	}

	return linsolve.FuncOp(func(dyv vec.Vector) vec.Vector {
		dy := dyv.(vec.Dense)
		dT := dy[len(dy)-1]
		out := make(vec.Dense, tp.Dim())

		jdx := make([]vec.Dense, m)
		for i := 0; i < m; i++ {
			jdx[i] = js[i].Apply(tp.slice(dy, i)).(vec.Dense)
		}
		for i := 0; i < m; i++ {
			next := (i + 1) % m
			dxi := tp.slice(dy, i)
			dxn := tp.slice(dy, next)
			row := out[i*n : (i+1)*n]
			for k := 0; k < n; k++ {
				row[k] = dxn[k] - dxi[k] -
					h/2*(jdx[i][k]+jdx[next][k]) -
					dT/(2*float64(m))*(fs[i][k]+fs[next][k])
			}
		}

		phase := 0.0
		dx0 := tp.slice(dy, 0)
		for k := 0; k < n; k++ {
			phase += dx0[k] * tp.Phi[k]
		}
		out[n*m] = phase
		return out
	})
}

// Monodromy is the linearized return map of the discretized orbit,
//
//	prod_i (I - h/2 J(x_{i+1}))^-1 (I + h/2 J(x_i)),
//
// applied factor by factor through the linear solver, never assembled.
func (tp *TrapProblem) Monodromy(yv vec.Vector, p float64) linsolve.Op {
	y := yv.(vec.Dense)
	m := tp.M
	T := tp.Period(y)
	h := T / float64(m)
	solver := tp.Solver
	if solver == nil {
		solver = linsolve.LU{}
	}

	js := make([]linsolve.Op, m)
	for i := 0; i < m; i++ {
		js[i] = tp.J(tp.slice(y, i), p)
	}

	return linsolve.FuncOp(func(vv vec.Vector) vec.Vector {
		w := vv.Clone()
		for i := 0; i < m; i++ {
			next := (i + 1) % m
			// rhs = (I + h/2 J(x_i)) w
			rhs := js[i].Apply(w)
			rhs.Scale(h / 2)
			rhs.Axpy(1, w)
			// w = (I - h/2 J(x_{i+1}))^-1 rhs
			lhs := linsolve.ShiftedOp{A0: 1, A1: -h / 2, A: js[next]}
			sol, _, err := solver.Solve(lhs, rhs)
			if err != nil {
				// Poisoned result; Floquet callers surface it through
				// the eigensolver failing on NaNs.
				sol = rhs.Zero()
				sol.Scale(math.NaN())
			}
			w = sol
		}
		return w
	})
}

// Floquet computes the Floquet multipliers of the orbit, ordered by
// modulus.
func (tp *TrapProblem) Floquet(yv vec.Vector, p float64, eig linsolve.EigenSolver, nev int) ([]complex128, error) {
	if eig == nil {
		eig = linsolve.DenseEigen{Dim: tp.N()}
	}
	res, err := eig.Eigen(tp.Monodromy(yv, p), nev, linsolve.LargestModulus)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// ContProblem adapts the discretized orbit to the continuation engine.
// PrintSolution records the orbit amplitude in the first state component.
func (tp *TrapProblem) ContProblem() cont.Problem {
	return cont.Problem{
		F: tp.Residual,
		J: tp.JacVecAt,
		PrintSolution: func(u vec.Vector, p float64) float64 {
			return tp.Amplitude(u.(vec.Dense))
		},
	}
}

// Amplitude measures the peak-to-peak excursion of the first state
// component over the slices.
func (tp *TrapProblem) Amplitude(y vec.Dense) float64 {
	n, m := tp.N(), tp.M
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < m; i++ {
		v := y[i*n]
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return hi - lo
}

// GuessFromHopf builds the initial orbit for a Hopf point with frequency
// omega and eigenpair (vr, vi): M slices of the linearized ellipse of the
// given amplitude around the equilibrium, with period 2*pi/omega. The
// returned phase direction is vi, which is orthogonal to the first slice's
// offset amplitude*vr whenever vr and vi are orthogonal; the guess then
// satisfies the phase constraint exactly. With vi nil the direction is vr
// itself, parallel to that offset.
func GuessFromHopf(uHopf, vr, vi vec.Dense, omega, amplitude float64, m int) (y vec.Dense, phi vec.Dense) {
	n := len(uHopf)
	y = make(vec.Dense, n*m+1)
	for i := 0; i < m; i++ {
		s := 2 * math.Pi * float64(i) / float64(m)
		xi := y[i*n : (i+1)*n]
		for k := 0; k < n; k++ {
			xi[k] = uHopf[k] + amplitude*(math.Cos(s)*vr[k])
			if vi != nil {
				xi[k] -= amplitude * math.Sin(s) * vi[k]
			}
		}
	}
	y[n*m] = 2 * math.Pi / omega

	phi = make(vec.Dense, n)
	if vi != nil {
		// x_1 - uHopf is amplitude*vr; vi is orthogonal to it for a
		// normalized eigenpair.
		copy(phi, vi)
	} else {
		copy(phi, vr)
	}
	return y, phi
}

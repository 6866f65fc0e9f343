package periodic

import (
	"math"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/flow"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// ShootingProblem represents a periodic orbit by M flow segments: the
// unknown (x_1, ..., x_M, T) must satisfy
//
//	phi^{ds_i * T}(x_i) = x_{i+1 mod M}   for all i
//	s(x_1) = 0
//
// where ds_i are the partition fractions (uniform by default) and s the
// phase section.
type ShootingProblem struct {
	// Field is the vector field; Stepper integrates it.
	Field   flow.Field
	Stepper flow.Stepper
	// M is the number of shooting segments.
	M int
	// Fractions partitions [0,1] into segment lengths; nil means uniform.
	Fractions []float64
	// Section is the phase condition hyperplane through the orbit.
	Section flow.Section
	// Dt is the integration step. Zero means |T|/(200*M), i.e. 200 steps
	// per segment of a uniform partition.
	Dt float64
	// Eps overrides the flow Jacobian difference step.
	Eps float64
}

func (sp *ShootingProblem) fractions() []float64 {
	if sp.Fractions != nil {
		return sp.Fractions
	}
	f := make([]float64, sp.M)
	for i := range f {
		f[i] = 1 / float64(sp.M)
	}
	return f
}

func (sp *ShootingProblem) dt(T float64) float64 {
	if sp.Dt != 0 {
		return sp.Dt
	}
	return math.Abs(T) / (200 * float64(sp.M))
}

// N is the state dimension.
func (sp *ShootingProblem) N() int { return len(sp.Section.Normal) }

// Dim is the length of the flat unknown.
func (sp *ShootingProblem) Dim() int { return sp.N()*sp.M + 1 }

func (sp *ShootingProblem) slice(y vec.Dense, i int) vec.Dense {
	n := sp.N()
	return y[i*n : (i+1)*n]
}

// Period reads the trailing period entry.
func (sp *ShootingProblem) Period(y vec.Dense) float64 { return y[len(y)-1] }

// Residual evaluates the shooting constraints at (y, p).
func (sp *ShootingProblem) Residual(yv vec.Vector, p float64) vec.Vector {
	y := yv.(vec.Dense)
	n, m := sp.N(), sp.M
	T := sp.Period(y)
	fr := sp.fractions()

	out := make(vec.Dense, sp.Dim())
	for i := 0; i < m; i++ {
		xi := sp.slice(y, i)
		xn := sp.slice(y, (i+1)%m)
		end := flow.Flow(sp.Field, sp.Stepper, xi, p, fr[i]*T, sp.dt(T))
		row := out[i*n : (i+1)*n]
		for k := 0; k < n; k++ {
			row[k] = end[k] - xn[k]
		}
	}
	out[n*m] = sp.Section.Value(sp.slice(y, 0))
	return out
}

// JacVecAt applies the shooting Jacobian by differencing the flow maps
// segment by segment; the dT column comes from the field at the segment
// endpoints.
func (sp *ShootingProblem) JacVecAt(yv vec.Vector, p float64) linsolve.Op {
	y := yv.(vec.Dense)
	n, m := sp.N(), sp.M
	T := sp.Period(y)
	fr := sp.fractions()

	return linsolve.FuncOp(func(dyv vec.Vector) vec.Vector {
		dy := dyv.(vec.Dense)
		dT := dy[len(dy)-1]
		out := make(vec.Dense, sp.Dim())

		for i := 0; i < m; i++ {
			xi := sp.slice(y, i)
			dxi := sp.slice(dy, i)
			dxn := sp.slice(dy, (i+1)%m)
			row := out[i*n : (i+1)*n]

			// d/dx phi^{fr_i T}(x_i) dx_i
			mdx := flow.JacVec(sp.Field, sp.Stepper, xi, p, fr[i]*T, sp.dt(T), dxi, sp.Eps)
			// d/dT phi^{fr_i T}(x_i) dT = fr_i f(phi^{fr_i T}(x_i)) dT
			end := flow.Flow(sp.Field, sp.Stepper, xi, p, fr[i]*T, sp.dt(T))
			fe := sp.Field(end, p, 0)

			for k := 0; k < n; k++ {
				row[k] = mdx[k] + fr[i]*dT*fe[k] - dxn[k]
			}
		}

		out[n*m] = sp.Section.Normal.Dot(sp.slice(dy, 0))
		return out
	})
}

// Monodromy composes the segment flow Jacobians M_M ... M_1, matrix-free.
func (sp *ShootingProblem) Monodromy(yv vec.Vector, p float64) linsolve.Op {
	y := yv.(vec.Dense)
	T := sp.Period(y)
	fr := sp.fractions()

	return linsolve.FuncOp(func(vv vec.Vector) vec.Vector {
		w := vv.Clone().(vec.Dense)
		for i := 0; i < sp.M; i++ {
			w = flow.JacVec(sp.Field, sp.Stepper, sp.slice(y, i), p, fr[i]*T, sp.dt(T), w, sp.Eps)
		}
		return w
	})
}

// Floquet computes the Floquet multipliers, ordered by modulus.
func (sp *ShootingProblem) Floquet(yv vec.Vector, p float64, eig linsolve.EigenSolver, nev int) ([]complex128, error) {
	if eig == nil {
		eig = linsolve.DenseEigen{Dim: sp.N()}
	}
	res, err := eig.Eigen(sp.Monodromy(yv, p), nev, linsolve.LargestModulus)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// ContProblem adapts the shooting functional to the continuation engine.
func (sp *ShootingProblem) ContProblem() cont.Problem {
	return cont.Problem{
		F: sp.Residual,
		J: sp.JacVecAt,
		PrintSolution: func(u vec.Vector, p float64) float64 {
			y := u.(vec.Dense)
			return sp.slice(y, 0).Norm()
		},
	}
}

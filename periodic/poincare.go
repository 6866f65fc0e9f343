package periodic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/flow"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// PoincareProblem represents a periodic orbit by its intersections with M
// hyperplane sections. Each unknown lives in the (N-1)-dimensional section
// coordinates; the constraint is that the first return from section i
// lands on the recorded point of section i+1. The period is a by-product
// of the return times, not an unknown.
type PoincareProblem struct {
	Field   flow.Field
	Stepper flow.Stepper
	// Sections are the M hyperplanes, traversed in order.
	Sections []flow.Section
	// Direction restricts accepted crossings (+1, -1, 0); the first
	// strict crossing in the accepted direction wins.
	Direction int
	// Dt is the integration step; TMax the horizon per return. Zero
	// means 1e-2 and 100.
	Dt, TMax float64
	// Eps overrides the finite-difference step of the return-map
	// Jacobian.
	Eps float64

	bases []*mat.Dense
}

func (pp *PoincareProblem) dt() float64 {
	if pp.Dt != 0 {
		return pp.Dt
	}
	return 1e-2
}

func (pp *PoincareProblem) tMax() float64 {
	if pp.TMax != 0 {
		return pp.TMax
	}
	return 100
}

// N is the full state dimension.
func (pp *PoincareProblem) N() int { return len(pp.Sections[0].Normal) }

// M is the number of sections.
func (pp *PoincareProblem) M() int { return len(pp.Sections) }

// Dim is the length of the flat unknown: M points of dimension N-1.
func (pp *PoincareProblem) Dim() int { return pp.M() * (pp.N() - 1) }

// basis returns an orthonormal basis of section i's tangent space. It is
// built by Gram-Schmidt over the coordinate axes, skipping the axis most
// aligned with the normal, so the orientation is deterministic: for an
// axis-aligned normal the basis is the remaining coordinate axes.
func (pp *PoincareProblem) basis(i int) *mat.Dense {
	if pp.bases == nil {
		pp.bases = make([]*mat.Dense, pp.M())
	}
	if pp.bases[i] != nil {
		return pp.bases[i]
	}
	n := pp.N()
	nor := pp.Sections[i].Normal.Clone().(vec.Dense)
	nor.Scale(1 / math.Sqrt(nor.Dot(nor)))

	skip := 0
	for k := 1; k < n; k++ {
		if math.Abs(nor[k]) > math.Abs(nor[skip]) {
			skip = k
		}
	}

	b := mat.NewDense(n, n-1, nil)
	cols := make([]vec.Dense, 0, n-1)
	for j := 0; j < n; j++ {
		if j == skip {
			continue
		}
		v := make(vec.Dense, n)
		v[j] = 1
		v.Axpy(-nor[j], nor)
		for _, c := range cols {
			v.Axpy(-v.Dot(c), c)
		}
		v.Scale(1 / math.Sqrt(v.Dot(v)))
		for k := 0; k < n; k++ {
			b.Set(k, len(cols), v[k])
		}
		cols = append(cols, v)
	}
	pp.bases[i] = b
	return b
}

// Lift maps section coordinates xi into the full state space:
// E_i(xi) = c_i + B_i xi.
func (pp *PoincareProblem) Lift(i int, xi vec.Dense) vec.Dense {
	n := pp.N()
	out := make(vec.Dense, n)
	copy(out, pp.Sections[i].Center)
	b := pp.basis(i)
	for k := 0; k < n; k++ {
		for j := 0; j < n-1; j++ {
			out[k] += b.At(k, j) * xi[j]
		}
	}
	return out
}

// Restrict projects a full state near section i into its coordinates:
// R_i(x) = B_i' (x - c_i).
func (pp *PoincareProblem) Restrict(i int, x vec.Dense) vec.Dense {
	n := pp.N()
	d := x.Clone().(vec.Dense)
	d.Axpy(-1, pp.Sections[i].Center)
	b := pp.basis(i)
	out := make(vec.Dense, n-1)
	for j := 0; j < n-1; j++ {
		for k := 0; k < n; k++ {
			out[j] += b.At(k, j) * d[k]
		}
	}
	return out
}

func (pp *PoincareProblem) sliceXi(y vec.Dense, i int) vec.Dense {
	w := pp.N() - 1
	return y[i*w : (i+1)*w]
}

// returnMap flows the lifted point of section i to its first hit on
// section i+1 (mod M), reporting the hit and the travel time.
func (pp *PoincareProblem) returnMap(i int, xi vec.Dense, p float64) (vec.Dense, float64, error) {
	next := (i + 1) % pp.M()
	x := pp.Lift(i, xi)
	hit, t, err := flow.FirstCrossing(pp.Field, pp.Stepper, x, p, pp.dt(), pp.tMax(), 1e-12, pp.Sections[next], pp.Direction)
	if err != nil {
		return nil, 0, fmt.Errorf("poincare return %d->%d: %w", i, next, err)
	}
	return hit, t, nil
}

// Residual evaluates R_{i+1}(Pi_i(E_i(xi_i))) - xi_{i+1} for all i. A
// failed return poisons the residual with a large value so Newton backs
// off rather than crashing.
func (pp *PoincareProblem) Residual(yv vec.Vector, p float64) vec.Vector {
	y := yv.(vec.Dense)
	m, w := pp.M(), pp.N()-1
	out := make(vec.Dense, pp.Dim())
	for i := 0; i < m; i++ {
		next := (i + 1) % m
		hit, _, err := pp.returnMap(i, pp.sliceXi(y, i), p)
		row := out[i*w : (i+1)*w]
		if err != nil {
			for k := range row {
				row[k] = 1e6
			}
			continue
		}
		r := pp.Restrict(next, hit)
		xin := pp.sliceXi(y, next)
		for k := 0; k < w; k++ {
			row[k] = r[k] - xin[k]
		}
	}
	return out
}

// PeriodOf sums the return times around the cycle.
func (pp *PoincareProblem) PeriodOf(yv vec.Vector, p float64) (float64, error) {
	y := yv.(vec.Dense)
	total := 0.0
	for i := 0; i < pp.M(); i++ {
		_, t, err := pp.returnMap(i, pp.sliceXi(y, i), p)
		if err != nil {
			return 0, err
		}
		total += t
	}
	return total, nil
}

// JacVecAt differences the residual directly; each return map is smooth
// in the section coordinates away from tangencies.
func (pp *PoincareProblem) JacVecAt(yv vec.Vector, p float64) linsolve.Op {
	eps := pp.Eps
	if eps == 0 {
		eps = 1e-7
	}
	f := func(u vec.Vector) vec.Vector { return pp.Residual(u, p) }
	return linsolve.FuncOp(func(dy vec.Vector) vec.Vector {
		return linsolve.FDJacVec(f, yv, dy, eps)
	})
}

// Monodromy is the derivative of the full cycle of Poincare maps at the
// first section, an operator on the (N-1)-dimensional section space.
func (pp *PoincareProblem) Monodromy(yv vec.Vector, p float64) linsolve.Op {
	y := yv.(vec.Dense)
	eps := pp.Eps
	if eps == 0 {
		eps = 1e-7
	}
	full := func(xi vec.Dense) (vec.Dense, error) {
		cur := xi
		for i := 0; i < pp.M(); i++ {
			hit, _, err := pp.returnMap(i, cur, p)
			if err != nil {
				return nil, err
			}
			cur = pp.Restrict((i+1)%pp.M(), hit)
		}
		return cur, nil
	}
	xi0 := pp.sliceXi(y, 0)
	base, baseErr := full(xi0)

	return linsolve.FuncOp(func(vv vec.Vector) vec.Vector {
		v := vv.(vec.Dense)
		if baseErr != nil {
			out := v.Zero()
			return out
		}
		h := eps * (1 + xi0.Norm())
		xp := xi0.Clone().(vec.Dense)
		xp.Axpy(h, v)
		pert, err := full(xp)
		if err != nil {
			return v.Zero()
		}
		out := pert.Clone().(vec.Dense)
		out.Axpy(-1, base)
		out.Scale(1 / h)
		return out
	})
}

// Floquet computes the nontrivial Floquet multipliers from the Poincare
// monodromy; the trivial unit multiplier is projected out by the section
// reduction itself.
func (pp *PoincareProblem) Floquet(yv vec.Vector, p float64, eig linsolve.EigenSolver, nev int) ([]complex128, error) {
	if eig == nil {
		eig = linsolve.DenseEigen{Dim: pp.N() - 1}
	}
	res, err := eig.Eigen(pp.Monodromy(yv, p), nev, linsolve.LargestModulus)
	if err != nil {
		return nil, err
	}
	return res.Values, nil
}

// ContProblem adapts the Poincare functional to the continuation engine.
func (pp *PoincareProblem) ContProblem() cont.Problem {
	return cont.Problem{
		F: pp.Residual,
		J: pp.JacVecAt,
		PrintSolution: func(u vec.Vector, p float64) float64 {
			return u.Norm()
		},
	}
}

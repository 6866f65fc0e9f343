package extended

import (
	"context"
	"fmt"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/newton"
	"github.com/numkit/palc/vec"
)

// FoldProblem is the minimally augmented defining system for a fold: find
// (x, p, v) with
//
//	F(x, p)    = 0
//	J(x, p) v  = 0
//	<v, v0>    = 1
//
// The second derivative of F enters the Jacobian of the system; supply D2F
// or let the finite-difference fallback act on the Jacobian-vector product.
type FoldProblem struct {
	F func(x vec.Vector, p float64) vec.Vector
	J func(x vec.Vector, p float64) linsolve.Op
	// DpF falls back to a scale-aware finite difference when nil.
	DpF func(x vec.Vector, p float64) vec.Vector
	// D2F(x, p)(v1, v2) falls back to differencing J*v2 along v1 when nil.
	D2F func(x vec.Vector, p float64, v1, v2 vec.Vector) vec.Vector
	// V0 is the reference direction normalizing the null vector. It is
	// usually the eigenvector guess at the detected fold.
	V0 vec.Vector
	// Eps overrides the finite-difference base step.
	Eps float64
}

func (fp *FoldProblem) jacVec(x vec.Vector, p float64, v vec.Vector) vec.Vector {
	return fp.J(x, p).Apply(v)
}

func (fp *FoldProblem) d2f(x vec.Vector, p float64, v1, v2 vec.Vector) vec.Vector {
	if fp.D2F != nil {
		return fp.D2F(x, p, v1, v2)
	}
	jv := func(y, w vec.Vector) vec.Vector { return fp.jacVec(y, p, w) }
	return linsolve.FDBilinear(jv, x, v1, v2, fp.Eps)
}

func (fp *FoldProblem) dpF(x vec.Vector, p float64) vec.Vector {
	if fp.DpF != nil {
		return fp.DpF(x, p)
	}
	return linsolve.FDParamDeriv(fp.F, x, p, fp.Eps)
}

// dpJacVec differences J(x, p)v in the parameter.
func (fp *FoldProblem) dpJacVec(x vec.Vector, p float64, v vec.Vector) vec.Vector {
	eps := fp.Eps
	if eps == 0 {
		eps = linsolve.DefaultFDEps
	}
	h := eps * (1 + abs(p))
	out := fp.jacVec(x, p+h, v)
	out.Axpy(-1, fp.jacVec(x, p, v))
	out.Scale(1 / h)
	return out
}

// unknown layout: {x, [p], v}
func foldUnknown(x vec.Vector, p float64, v vec.Vector) vec.Stacked {
	return vec.Stacked{x.Clone(), vec.Dense{p}, v.Clone()}
}

func splitFold(y vec.Stacked) (x vec.Vector, p float64, v vec.Vector) {
	return y[0], y[1].(vec.Dense)[0], y[2]
}

// Residual evaluates the defining system at y = {x, [p], v}.
func (fp *FoldProblem) Residual(y vec.Stacked) vec.Stacked {
	x, p, v := splitFold(y)
	return vec.Stacked{
		fp.F(x, p),
		fp.jacVec(x, p, v),
		vec.Dense{v.Dot(fp.V0) - 1},
	}
}

// NewtonFold refines a fold guess (x0, p0) with null direction v0 to a
// genuine fold point. It returns the refined state, parameter and null
// vector together with the Newton result.
func NewtonFold(fp *FoldProblem, x0 vec.Vector, p0 float64, par newton.Params, opts *newton.Options) (vec.Vector, float64, vec.Vector, *newton.Result, error) {
	if fp.V0 == nil {
		return nil, 0, nil, nil, fmt.Errorf("extended: fold problem needs a reference direction V0")
	}
	template := foldUnknown(x0, p0, fp.V0)

	f := func(u vec.Vector) vec.Vector {
		y := unflatten(u.(vec.Dense), template)
		return flatten(fp.Residual(y))
	}
	jac := func(u vec.Vector) linsolve.Op {
		y := unflatten(u.(vec.Dense), template)
		x, p, v := splitFold(y)
		return flatOp{inner: foldJacobianOp(fp, x, p, v), template: template}
	}

	res, err := newton.Solve(f, jac, flatten(template), par, opts)
	if err != nil {
		return nil, 0, nil, res, err
	}
	y := unflatten(res.X.(vec.Dense), template)
	x, p, v := splitFold(y)
	return x, p, v, res, nil
}

// foldJacobianOp is the matrix-free derivative of the fold system,
//
//	[ J           dpF        0   ]
//	[ d2F(.,v)    dp(Jv)     J   ]
//	[ 0           0          v0' ]
//
// applied to increments dy = {dx, [dp], dv} and returning rows in the
// residual order {F, Jv, phase}.
func foldJacobianOp(fp *FoldProblem, x vec.Vector, p float64, v vec.Vector) linsolve.Op {
	return linsolve.FuncOp(func(dyv vec.Vector) vec.Vector {
		dx, dp, dv := splitFold(dyv.(vec.Stacked))

		r1 := fp.jacVec(x, p, dx)
		r1.Axpy(dp, fp.dpF(x, p))

		r2 := fp.d2f(x, p, dx, v)
		r2.Axpy(dp, fp.dpJacVec(x, p, v))
		r2.Axpy(1, fp.jacVec(x, p, dv))

		return vec.Stacked{r1, r2, vec.Dense{dv.Dot(fp.V0)}}
	})
}

// ContinuationFold traces a curve of folds in a second parameter q. The
// two-parameter field f2 fixes q per continuation step; the fold system in
// (x, p, v) is the continued unknown.
func ContinuationFold(ctx context.Context,
	f2 func(x vec.Vector, p, q float64) vec.Vector,
	j2 func(x vec.Vector, p, q float64) linsolve.Op,
	x0 vec.Vector, p0 float64, v0 vec.Vector, q0 float64,
	par cont.Params, pred cont.Predictor,
) (*cont.Branch, *vec.Pair, *vec.Pair, error) {

	template := foldUnknown(x0, p0, v0)

	at := func(q float64) *FoldProblem {
		return &FoldProblem{
			F:  func(x vec.Vector, p float64) vec.Vector { return f2(x, p, q) },
			J:  func(x vec.Vector, p float64) linsolve.Op { return j2(x, p, q) },
			V0: v0,
		}
	}

	prob := cont.Problem{
		F: func(u vec.Vector, q float64) vec.Vector {
			y := unflatten(u.(vec.Dense), template)
			return flatten(at(q).Residual(y))
		},
		J: func(u vec.Vector, q float64) linsolve.Op {
			y := unflatten(u.(vec.Dense), template)
			x, p, v := splitFold(y)
			return flatOp{inner: foldJacobianOp(at(q), x, p, v), template: template}
		},
		PrintSolution: func(u vec.Vector, q float64) float64 {
			y := unflatten(u.(vec.Dense), template)
			_, p, _ := splitFold(y)
			return p // the fold curve is (q, p)
		},
	}

	return cont.Run(ctx, prob, flatten(template), q0, par, pred)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

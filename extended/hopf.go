package extended

import (
	"context"
	"fmt"
	"math"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/newton"
	"github.com/numkit/palc/vec"
)

// HopfProblem is the defining system for a Hopf point: find
// (x, p, vr, vi, w) with
//
//	F(x, p)          = 0
//	J(x, p) vr + w vi = 0
//	J(x, p) vi - w vr = 0
//	<vr,vr> + <vi,vi> = 1
//	<vr,vi>           = 0
//
// so that vr + i*vi is the eigenvector of the crossing pair +-i*w.
type HopfProblem struct {
	F   func(x vec.Vector, p float64) vec.Vector
	J   func(x vec.Vector, p float64) linsolve.Op
	DpF func(x vec.Vector, p float64) vec.Vector
	D2F func(x vec.Vector, p float64, v1, v2 vec.Vector) vec.Vector
	Eps float64
}

func (hp *HopfProblem) fold() *FoldProblem {
	return &FoldProblem{F: hp.F, J: hp.J, DpF: hp.DpF, D2F: hp.D2F, Eps: hp.Eps}
}

// unknown layout: {x, [p], vr, vi, [w]}
func hopfUnknown(x vec.Vector, p float64, vr, vi vec.Vector, w float64) vec.Stacked {
	return vec.Stacked{x.Clone(), vec.Dense{p}, vr.Clone(), vi.Clone(), vec.Dense{w}}
}

func splitHopf(y vec.Stacked) (x vec.Vector, p float64, vr, vi vec.Vector, w float64) {
	return y[0], y[1].(vec.Dense)[0], y[2], y[3], y[4].(vec.Dense)[0]
}

// Residual evaluates the defining system at y = {x, [p], vr, vi, [w]}.
func (hp *HopfProblem) Residual(y vec.Stacked) vec.Stacked {
	x, p, vr, vi, w := splitHopf(y)
	j := hp.J(x, p)

	r2 := j.Apply(vr)
	r2.Axpy(w, vi)

	r3 := j.Apply(vi)
	r3.Axpy(-w, vr)

	return vec.Stacked{
		hp.F(x, p),
		r2,
		r3,
		vec.Dense{vr.Dot(vr) + vi.Dot(vi) - 1},
		vec.Dense{vr.Dot(vi)},
	}
}

// hopfJacobianOp is the matrix-free derivative of the Hopf system at
// (x, p, vr, vi, w), rows in residual order.
func hopfJacobianOp(hp *HopfProblem, x vec.Vector, p float64, vr, vi vec.Vector, w float64) linsolve.Op {
	fp := hp.fold()
	return linsolve.FuncOp(func(dyv vec.Vector) vec.Vector {
		dx, dp, dvr, dvi, dw := splitHopf(dyv.(vec.Stacked))
		j := hp.J(x, p)

		r1 := j.Apply(dx)
		r1.Axpy(dp, fp.dpF(x, p))

		r2 := fp.d2f(x, p, dx, vr)
		r2.Axpy(dp, fp.dpJacVec(x, p, vr))
		r2.Axpy(1, j.Apply(dvr))
		r2.Axpy(w, dvi)
		r2.Axpy(dw, vi)

		r3 := fp.d2f(x, p, dx, vi)
		r3.Axpy(dp, fp.dpJacVec(x, p, vi))
		r3.Axpy(1, j.Apply(dvi))
		r3.Axpy(-w, dvr)
		r3.Axpy(-dw, vr)

		r4 := vec.Dense{2*vr.Dot(dvr) + 2*vi.Dot(dvi)}
		r5 := vec.Dense{vi.Dot(dvr) + vr.Dot(dvi)}

		return vec.Stacked{r1, r2, r3, r4, r5}
	})
}

// NewtonHopf refines a Hopf guess to a genuine Hopf point. The eigenpair
// guess (vr0, vi0) is normalized before the solve.
func NewtonHopf(hp *HopfProblem, x0 vec.Vector, p0 float64, vr0, vi0 vec.Vector, w0 float64, par newton.Params, opts *newton.Options) (vec.Vector, float64, vec.Vector, vec.Vector, float64, *newton.Result, error) {
	if vr0 == nil || vi0 == nil {
		return nil, 0, nil, nil, 0, nil, fmt.Errorf("extended: hopf problem needs an eigenpair guess")
	}
	vr := vr0.Clone()
	vi := vi0.Clone()
	nrm := vr.Dot(vr) + vi.Dot(vi)
	if nrm > 0 {
		s := 1 / math.Sqrt(nrm)
		vr.Scale(s)
		vi.Scale(s)
	}

	template := hopfUnknown(x0, p0, vr, vi, w0)
	f := func(u vec.Vector) vec.Vector {
		y := unflatten(u.(vec.Dense), template)
		return flatten(hp.Residual(y))
	}
	jac := func(u vec.Vector) linsolve.Op {
		y := unflatten(u.(vec.Dense), template)
		x, p, yr, yi, w := splitHopf(y)
		return flatOp{inner: hopfJacobianOp(hp, x, p, yr, yi, w), template: template}
	}

	res, err := newton.Solve(f, jac, flatten(template), par, opts)
	if err != nil {
		return nil, 0, nil, nil, 0, res, err
	}
	y := unflatten(res.X.(vec.Dense), template)
	x, p, yr, yi, w := splitHopf(y)
	return x, p, yr, yi, w, res, nil
}

// ContinuationHopf traces a curve of Hopf points in a second parameter q.
func ContinuationHopf(ctx context.Context,
	f2 func(x vec.Vector, p, q float64) vec.Vector,
	j2 func(x vec.Vector, p, q float64) linsolve.Op,
	x0 vec.Vector, p0 float64, vr0, vi0 vec.Vector, w0 float64, q0 float64,
	par cont.Params, pred cont.Predictor,
) (*cont.Branch, *vec.Pair, *vec.Pair, error) {

	template := hopfUnknown(x0, p0, vr0, vi0, w0)

	at := func(q float64) *HopfProblem {
		return &HopfProblem{
			F: func(x vec.Vector, p float64) vec.Vector { return f2(x, p, q) },
			J: func(x vec.Vector, p float64) linsolve.Op { return j2(x, p, q) },
		}
	}

	prob := cont.Problem{
		F: func(u vec.Vector, q float64) vec.Vector {
			y := unflatten(u.(vec.Dense), template)
			return flatten(at(q).Residual(y))
		},
		J: func(u vec.Vector, q float64) linsolve.Op {
			y := unflatten(u.(vec.Dense), template)
			x, p, vr, vi, w := splitHopf(y)
			return flatOp{inner: hopfJacobianOp(at(q), x, p, vr, vi, w), template: template}
		},
		PrintSolution: func(u vec.Vector, q float64) float64 {
			y := unflatten(u.(vec.Dense), template)
			_, p, _, _, _ := splitHopf(y)
			return p
		},
	}

	return cont.Run(ctx, prob, flatten(template), q0, par, pred)
}

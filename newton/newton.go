package newton

import (
	"errors"
	"fmt"

	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// ErrLinearSolve wraps a failed linear solve inside an iteration. Newton
// surfaces it; running out of iterations is not an error, it is a
// non-converged Result.
var ErrLinearSolve = errors.New("newton: linear solve failed")

// Params configures the corrector.
type Params struct {
	// Tol is the residual norm target.
	Tol float64
	// MaxIter caps Newton iterations.
	MaxIter int
	// Alpha is the initial damping factor applied to the update.
	Alpha float64
	// AlphaMin bounds the line-search backtracking.
	AlphaMin float64
	// LineSearch enables backtracking when the residual would grow.
	LineSearch bool
	// Solver solves J d = F each iteration.
	Solver linsolve.Solver
}

// DefaultParams returns the corrector defaults: tol 1e-10, 25 iterations,
// full steps, dense LU.
func DefaultParams() Params {
	return Params{
		Tol:      1e-10,
		MaxIter:  25,
		Alpha:    1.0,
		AlphaMin: 1.0 / 32,
		Solver:   linsolve.LU{},
	}
}

func (p Params) filled() Params {
	if p.Tol == 0 {
		p.Tol = 1e-10
	}
	if p.MaxIter == 0 {
		p.MaxIter = 25
	}
	if p.Alpha == 0 {
		p.Alpha = 1.0
	}
	if p.AlphaMin == 0 {
		p.AlphaMin = 1.0 / 32
	}
	if p.Solver == nil {
		p.Solver = linsolve.LU{}
	}
	return p
}

// CallbackInfo is handed to the per-iteration callback.
type CallbackInfo struct {
	X        vec.Vector
	F        vec.Vector
	Residual float64
	Iter     int
}

// Options carries the optional hooks.
type Options struct {
	// Callback runs after each iteration; returning false aborts cleanly.
	Callback func(CallbackInfo) bool
	// Norm overrides the residual norm (default is the vector's own Norm).
	Norm func(vec.Vector) float64
}

// Result reports the corrector outcome. A Result with Converged == false
// and a nil error means the iteration budget ran out or a callback aborted.
type Result struct {
	X          vec.Vector
	Residuals  []float64
	Converged  bool
	Aborted    bool
	Iterations int
}

// Solve runs damped Newton on f from x0. jac returns the Jacobian operator
// at a point; pass nil to fall back to a finite-difference Jacobian (dense
// states only).
func Solve(f func(vec.Vector) vec.Vector, jac func(vec.Vector) linsolve.Op, x0 vec.Vector, p Params, opts *Options) (*Result, error) {
	p = p.filled()
	if opts == nil {
		opts = &Options{}
	}
	norm := opts.Norm
	if norm == nil {
		norm = vec.Vector.Norm
	}
	if jac == nil {
		jac = func(x vec.Vector) linsolve.Op {
			return linsolve.MatOp{M: linsolve.FDJacobian(f, x.(vec.Dense), 0)}
		}
	}

	x := x0.Clone()
	fx := f(x)
	res := norm(fx)
	out := &Result{X: x, Residuals: []float64{res}}

	for it := 1; it <= p.MaxIter; it++ {
		if res <= p.Tol {
			out.Converged = true
			return out, nil
		}

		d, _, err := p.Solver.Solve(jac(x), fx)
		if err != nil {
			return out, fmt.Errorf("%w: %w", ErrLinearSolve, err)
		}

		alpha := p.Alpha
		xTrial := x.Clone()
		xTrial.Axpy(-alpha, d)
		fTrial := f(xTrial)
		resTrial := norm(fTrial)

		if p.LineSearch {
			for resTrial > res && alpha > p.AlphaMin {
				alpha /= 2
				xTrial = x.Clone()
				xTrial.Axpy(-alpha, d)
				fTrial = f(xTrial)
				resTrial = norm(fTrial)
			}
		}

		x, fx, res = xTrial, fTrial, resTrial
		out.X = x
		out.Residuals = append(out.Residuals, res)
		out.Iterations = it

		if opts.Callback != nil && !opts.Callback(CallbackInfo{X: x, F: fx, Residual: res, Iter: it}) {
			out.Aborted = true
			out.Converged = res <= p.Tol
			return out, nil
		}
	}

	out.Converged = res <= p.Tol
	return out, nil
}

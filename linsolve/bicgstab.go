package linsolve

import (
	"fmt"
	"math"

	"github.com/numkit/palc/vec"
)

// BiCGStab is the matrix-free Krylov solver: BiConjugate Gradient
// Stabilized for general nonsymmetric operators. It needs only Op.Apply,
// so it works for shooting Jacobians and other operators that are never
// assembled.
type BiCGStab struct {
	// Tol is the relative residual target |r| <= Tol*|b|. Zero means 1e-10.
	Tol float64
	// MaxIter caps the iterations. Zero means 2*n.
	MaxIter int
	// Precond, when non-nil, applies an approximate inverse of the
	// operator (right preconditioning).
	Precond func(v vec.Vector) vec.Vector
}

func (s BiCGStab) prec(v vec.Vector) vec.Vector {
	if s.Precond == nil {
		return v.Clone()
	}
	return s.Precond(v)
}

func (s BiCGStab) Solve(op Op, rhs vec.Vector) (vec.Vector, int, error) {
	tol := s.Tol
	if tol == 0 {
		tol = 1e-10
	}
	maxIter := s.MaxIter
	if maxIter == 0 {
		maxIter = 2 * rhs.Len()
	}

	bnorm := rhs.Norm()
	if bnorm == 0 {
		return rhs.Zero(), 0, nil
	}

	x := rhs.Zero()
	r := rhs.Clone()
	rt := r.Clone()
	p := rhs.Zero()
	v := rhs.Zero()

	rho, alpha, omega := 1.0, 1.0, 1.0

	for it := 1; it <= maxIter; it++ {
		rho1 := rt.Dot(r)
		if rho1 == 0 {
			return x, it, fmt.Errorf("bicgstab (rho=0 at iter %d): %w", it, ErrKrylovBreakdown)
		}
		beta := (rho1 / rho) * (alpha / omega)
		// p = r + beta*(p - omega*v)
		p.Axpy(-omega, v)
		p.Axpby(1, r, beta)

		ph := s.prec(p)
		v = op.Apply(ph)
		den := rt.Dot(v)
		if den == 0 {
			return x, it, fmt.Errorf("bicgstab (rt,v)=0 at iter %d: %w", it, ErrKrylovBreakdown)
		}
		alpha = rho1 / den

		// s = r - alpha*v, reusing r as scratch
		r.Axpy(-alpha, v)
		if r.Norm() <= tol*bnorm {
			x.Axpy(alpha, ph)
			return x, it, nil
		}

		sh := s.prec(r)
		t := op.Apply(sh)
		tt := t.Dot(t)
		if tt == 0 {
			return x, it, fmt.Errorf("bicgstab (t,t)=0 at iter %d: %w", it, ErrKrylovBreakdown)
		}
		omega = t.Dot(r) / tt
		if math.Abs(omega) < 1e-300 {
			return x, it, fmt.Errorf("bicgstab (omega=0 at iter %d): %w", it, ErrKrylovBreakdown)
		}

		x.Axpy(alpha, ph)
		x.Axpy(omega, sh)

		// r = s - omega*t
		r.Axpy(-omega, t)
		if r.Norm() <= tol*bnorm {
			return x, it, nil
		}
		rho = rho1
	}
	return x, maxIter, fmt.Errorf("bicgstab after %d iterations: %w", maxIter, ErrNoConvergence)
}

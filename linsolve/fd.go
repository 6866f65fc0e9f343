package linsolve

import (
	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/vec"
)

// DefaultFDEps is the base finite-difference step. Parameter derivatives
// scale it by 1+|p| so large parameter values do not starve the difference.
const DefaultFDEps = 1e-8

// FDJacobian assembles the Jacobian of f at x by forward differences, one
// column per entry. Dense states only; it is the fallback when the user
// supplies no Jacobian.
func FDJacobian(f func(vec.Vector) vec.Vector, x vec.Dense, eps float64) *mat.Dense {
	if eps == 0 {
		eps = DefaultFDEps
	}
	n := len(x)
	f0 := f(x).(vec.Dense)
	j := mat.NewDense(len(f0), n, nil)
	xp := x.Clone().(vec.Dense)
	for k := 0; k < n; k++ {
		h := eps * (1 + absf(x[k]))
		xp[k] = x[k] + h
		fk := f(xp).(vec.Dense)
		for i := range f0 {
			j.Set(i, k, (fk[i]-f0[i])/h)
		}
		xp[k] = x[k]
	}
	return j
}

// FDJacVec approximates J(x)*v by a forward difference along v.
func FDJacVec(f func(vec.Vector) vec.Vector, x, v vec.Vector, eps float64) vec.Vector {
	if eps == 0 {
		eps = DefaultFDEps
	}
	h := eps * (1 + x.Norm())
	xp := x.Clone()
	xp.Axpy(h, v)
	out := f(xp)
	out.Axpy(-1, f(x))
	out.Scale(1 / h)
	return out
}

// FDParamDeriv approximates dF/dp at (x, p). The step is eps*(1+|p|).
func FDParamDeriv(f func(x vec.Vector, p float64) vec.Vector, x vec.Vector, p, eps float64) vec.Vector {
	if eps == 0 {
		eps = DefaultFDEps
	}
	h := eps * (1 + absf(p))
	out := f(x, p+h)
	out.Axpy(-1, f(x, p))
	out.Scale(1 / h)
	return out
}

// FDBilinear approximates the second derivative d2F(x)(v1, v2) from the
// Jacobian-vector action: (J(x+h*v1) - J(x))*v2 / h.
func FDBilinear(jacVec func(x, v vec.Vector) vec.Vector, x, v1, v2 vec.Vector, eps float64) vec.Vector {
	if eps == 0 {
		eps = DefaultFDEps
	}
	h := eps * (1 + x.Norm())
	xp := x.Clone()
	xp.Axpy(h, v1)
	out := jacVec(xp, v2)
	out.Axpy(-1, jacVec(x, v2))
	out.Scale(1 / h)
	return out
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

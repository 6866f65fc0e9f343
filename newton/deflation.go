package newton

import (
	"math"

	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// Deflation is the multiplicative deflation operator
//
//	M(x) = 1 + shift * prod_i <x-x_i, x-x_i>^(-power)
//
// Solving M(x)*F(x) = 0 instead of F(x) = 0 turns every recorded root x_i
// into a repeller, so repeated Newton runs land on distinct solutions.
type Deflation struct {
	// Power is the deflation exponent. Zero means 1.
	Power float64
	// Shift keeps M bounded away from zero far from the roots. Zero means 1.
	Shift float64

	roots []vec.Vector
}

// NewDeflation returns an operator with the first known root recorded.
func NewDeflation(power, shift float64, root vec.Vector) *Deflation {
	d := &Deflation{Power: power, Shift: shift}
	d.Push(root)
	return d
}

// Push records a further root to deflate.
func (d *Deflation) Push(root vec.Vector) { d.roots = append(d.roots, root.Clone()) }

// Pop removes the most recently recorded root.
func (d *Deflation) Pop() {
	if len(d.roots) > 0 {
		d.roots = d.roots[:len(d.roots)-1]
	}
}

func (d *Deflation) Len() int            { return len(d.roots) }
func (d *Deflation) At(i int) vec.Vector { return d.roots[i] }

func (d *Deflation) power() float64 {
	if d.Power == 0 {
		return 1
	}
	return d.Power
}

func (d *Deflation) shift() float64 {
	if d.Shift == 0 {
		return 1
	}
	return d.Shift
}

// Eval computes M(x).
func (d *Deflation) Eval(x vec.Vector) float64 {
	prod := 1.0
	for _, r := range d.roots {
		diff := x.Clone()
		diff.Axpy(-1, r)
		prod /= pow(diff.Dot(diff), d.power())
	}
	return 1 + d.shift()*prod
}

// Grad computes the gradient of M at x.
func (d *Deflation) Grad(x vec.Vector) vec.Vector {
	g := x.Zero()
	if len(d.roots) == 0 {
		return g
	}
	m := d.Eval(x) - 1 // shift * prod
	p := d.power()
	for _, r := range d.roots {
		diff := x.Clone()
		diff.Axpy(-1, r)
		// d/dx of <diff,diff>^-p contributes -2p*diff/<diff,diff> times
		// the full product.
		g.Axpy(-2*p*m/diff.Dot(diff), diff)
	}
	return g
}

type deflatedOp struct {
	m    float64
	grad vec.Vector
	fx   vec.Vector
	j    linsolve.Op
}

// Apply computes (M*J + F*gradM') v, the Jacobian of M(x)F(x).
func (o deflatedOp) Apply(v vec.Vector) vec.Vector {
	out := o.j.Apply(v)
	out.Scale(o.m)
	out.Axpy(o.grad.Dot(v), o.fx)
	return out
}

// SolveDeflated runs Newton on the deflated residual M(x)*F(x). The
// Jacobian of the deflated system is applied matrix-free as a rank-one
// update of the user Jacobian, so any solver strategy works unchanged.
func SolveDeflated(f func(vec.Vector) vec.Vector, jac func(vec.Vector) linsolve.Op, defl *Deflation, x0 vec.Vector, p Params, opts *Options) (*Result, error) {
	if jac == nil {
		jac = func(x vec.Vector) linsolve.Op {
			return linsolve.MatOp{M: linsolve.FDJacobian(f, x.(vec.Dense), 0)}
		}
	}
	fd := func(x vec.Vector) vec.Vector {
		out := f(x)
		out.Scale(defl.Eval(x))
		return out
	}
	jd := func(x vec.Vector) linsolve.Op {
		return deflatedOp{
			m:    defl.Eval(x),
			grad: defl.Grad(x),
			fx:   f(x),
			j:    jac(x),
		}
	}
	return Solve(fd, jd, x0, p, opts)
}

func pow(base, exp float64) float64 {
	if exp == 1 {
		return base
	}
	return math.Pow(base, exp)
}

package systems

import (
	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// Cubic is the scalar nullcline F(x, r) = r + x - x^3, the smallest system
// with folds: the branch turns at r = +-2/(3*sqrt(3)).
type Cubic struct{}

func NewCubic() *Cubic { return &Cubic{} }

func (c *Cubic) F(u vec.Vector, p float64) vec.Vector {
	x := u.(vec.Dense)[0]
	return vec.Dense{p + x - x*x*x}
}

func (c *Cubic) J(u vec.Vector, p float64) linsolve.Op {
	x := u.(vec.Dense)[0]
	return linsolve.FuncOp(func(v vec.Vector) vec.Vector {
		return vec.Dense{(1 - 3*x*x) * v.(vec.Dense)[0]}
	})
}

func (c *Cubic) DpF(u vec.Vector, p float64) vec.Vector {
	return vec.Dense{1}
}

// Problem bundles the system for the continuation engine, recording the
// state value itself on the branch.
func (c *Cubic) Problem() cont.Problem {
	return cont.Problem{
		F:   c.F,
		J:   c.J,
		DpF: c.DpF,
		PrintSolution: func(u vec.Vector, p float64) float64 {
			return u.(vec.Dense)[0]
		},
	}
}

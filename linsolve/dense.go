package linsolve

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/vec"
)

// Solver solves op * x = rhs. Implementations report the iteration count
// they spent (1 for direct methods).
type Solver interface {
	Solve(op Op, rhs vec.Vector) (x vec.Vector, iters int, err error)
}

// LU is the direct dense solver. It materializes the operator and
// factorizes with partial pivoting. Suited to problems small enough to
// assemble; use BiCGStab for matrix-free operators.
type LU struct{}

func (LU) Solve(op Op, rhs vec.Vector) (vec.Vector, int, error) {
	b, ok := rhs.(vec.Dense)
	if !ok {
		return nil, 0, fmt.Errorf("lu solve: %w", ErrNotMaterializable)
	}
	n := len(b)
	a := Materialize(op, n)

	var lu mat.LU
	lu.Factorize(a)
	if lu.Cond() > 1e15 {
		return nil, 0, fmt.Errorf("lu solve (cond %.2e): %w", lu.Cond(), ErrSingular)
	}

	x := make(vec.Dense, n)
	if err := lu.SolveVecTo(mat.NewVecDense(n, x), false, mat.NewVecDense(n, b)); err != nil {
		return nil, 0, fmt.Errorf("lu solve: %w", ErrSingular)
	}
	return x, 1, nil
}

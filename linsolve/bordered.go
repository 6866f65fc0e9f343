package linsolve

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/vec"
)

// BorderedSolver solves the augmented system that the arclength constraint
// adjoins to the Jacobian:
//
//	[ J           dFdp    ] [x]   [r]
//	[ xiU*gradG'  xiP*dpg ] [y] = [n]
//
// gradG is typically the state component of the previous tangent and dpg
// its parameter component; xiU and xiP carry the theta weights.
type BorderedSolver interface {
	SolveBordered(j Op, dFdp, gradG vec.Vector, dpg float64, r vec.Vector, n float64, xiU, xiP float64) (x vec.Vector, y float64, err error)
}

// Bordering eliminates the border with two inner solves against J:
// x1 = J\r, x2 = J\dFdp, then back-substitutes the scalar. It is the
// default strategy; it only needs a solver for J itself.
type Bordering struct {
	Inner Solver
	// Eps is the underflow threshold for the scalar denominator.
	// Zero means 1e-12.
	Eps float64
}

func (b Bordering) SolveBordered(j Op, dFdp, gradG vec.Vector, dpg float64, r vec.Vector, n float64, xiU, xiP float64) (vec.Vector, float64, error) {
	eps := b.Eps
	if eps == 0 {
		eps = 1e-12
	}
	x1, _, err := b.Inner.Solve(j, r)
	if err != nil {
		return nil, 0, fmt.Errorf("bordering first solve: %w", err)
	}
	x2, _, err := b.Inner.Solve(j, dFdp)
	if err != nil {
		return nil, 0, fmt.Errorf("bordering second solve: %w", err)
	}

	den := xiP*dpg - xiU*gradG.Dot(x2)
	if math.Abs(den) < eps {
		return nil, 0, fmt.Errorf("bordering denominator %.3e: %w", den, ErrBorderedSingular)
	}
	y := (n - xiU*gradG.Dot(x1)) / den
	x1.Axpy(-y, x2)
	return x1, y, nil
}

// FullMatrix assembles the (N+1)-by-(N+1) matrix and hands it to a direct
// factorization. Only valid when J materializes and the state is dense.
type FullMatrix struct{}

func (FullMatrix) SolveBordered(j Op, dFdp, gradG vec.Vector, dpg float64, r vec.Vector, n float64, xiU, xiP float64) (vec.Vector, float64, error) {
	rd, ok := r.(vec.Dense)
	if !ok {
		return nil, 0, fmt.Errorf("full-matrix bordered: %w", ErrNotMaterializable)
	}
	nn := len(rd)
	jm := Materialize(j, nn)
	fp := dFdp.(vec.Dense)
	gg := gradG.(vec.Dense)

	a := mat.NewDense(nn+1, nn+1, nil)
	a.Slice(0, nn, 0, nn).(*mat.Dense).Copy(jm)
	for i := 0; i < nn; i++ {
		a.Set(i, nn, fp[i])
		a.Set(nn, i, xiU*gg[i])
	}
	a.Set(nn, nn, xiP*dpg)

	rhs := make(vec.Dense, nn+1)
	copy(rhs, rd)
	rhs[nn] = n

	sol, _, err := LU{}.Solve(MatOp{M: a}, rhs)
	if err != nil {
		return nil, 0, fmt.Errorf("full-matrix bordered: %w", err)
	}
	sd := sol.(vec.Dense)
	return sd[:nn], sd[nn], nil
}

// borderedOp is the augmented operator applied to a bordered pair, for the
// matrix-free strategy.
type borderedOp struct {
	j          Op
	dFdp       vec.Vector
	gradG      vec.Vector
	dpg        float64
	xiU, xiP   float64
}

func (b borderedOp) Apply(v vec.Vector) vec.Vector {
	z := v.(*vec.Pair)
	u := b.j.Apply(z.U)
	u.Axpy(z.P, b.dFdp)
	return &vec.Pair{
		U: u,
		P: b.xiU*b.gradG.Dot(z.U) + b.xiP*b.dpg*z.P,
	}
}

// MatrixFree applies the augmented operator through a Krylov method.
// Neither J nor the border is ever assembled.
type MatrixFree struct {
	Krylov BiCGStab
}

func (m MatrixFree) SolveBordered(j Op, dFdp, gradG vec.Vector, dpg float64, r vec.Vector, n float64, xiU, xiP float64) (vec.Vector, float64, error) {
	op := borderedOp{j: j, dFdp: dFdp, gradG: gradG, dpg: dpg, xiU: xiU, xiP: xiP}
	rhs := &vec.Pair{U: r.Clone(), P: n}
	sol, _, err := m.Krylov.Solve(op, rhs)
	if err != nil {
		return nil, 0, fmt.Errorf("matrix-free bordered: %w", err)
	}
	z := sol.(*vec.Pair)
	return z.U, z.P, nil
}

package cont

import (
	"fmt"

	"github.com/numkit/palc/vec"
)

// Predictor produces the initial guess for the next point on the branch
// and the tangent update rule after a successful correction.
type Predictor interface {
	// Predict extrapolates from the confirmed point along the branch.
	Predict(it *Iterator) *vec.Pair
	// Tangent computes the new tangent at zNew after a successful step.
	Tangent(it *Iterator, zNew *vec.Pair) (*vec.Pair, error)
}

// Natural is parameter continuation: the guess keeps the state and bumps
// the parameter by ds. It cannot traverse folds; the corrector runs at
// fixed parameter.
type Natural struct{}

func (Natural) Predict(it *Iterator) *vec.Pair {
	z := it.state.Z.Copy()
	z.P += it.state.Ds
	return z
}

func (Natural) Tangent(it *Iterator, zNew *vec.Pair) (*vec.Pair, error) {
	tau := zNew.Copy()
	tau.Axpy(-1, it.state.Z)
	return tau, nil
}

// Secant extrapolates along the normalized secant of the last two points.
// The workhorse predictor: cheap and fold-capable.
type Secant struct{}

func (Secant) Predict(it *Iterator) *vec.Pair {
	z := it.state.Z.Copy()
	z.Axpy(it.state.Ds, it.state.Tau)
	return z
}

func (Secant) Tangent(it *Iterator, zNew *vec.Pair) (*vec.Pair, error) {
	tau := zNew.Copy()
	tau.Axpy(-1, it.state.Z)
	n := it.metric().Norm(tau)
	if n == 0 {
		return nil, fmt.Errorf("cont: secant tangent degenerate (zero step)")
	}
	s := 1.0
	if it.state.Ds < 0 {
		s = -1
	}
	tau.Scale(s / n)
	return tau, nil
}

// BorderedPredictor computes the true branch tangent by solving the
// augmented system with right-hand side (0, 1) at the new point. More
// expensive than Secant, sharper near sharp turns.
type BorderedPredictor struct{}

func (BorderedPredictor) Predict(it *Iterator) *vec.Pair {
	z := it.state.Z.Copy()
	z.Axpy(it.state.Ds, it.state.Tau)
	return z
}

func (BorderedPredictor) Tangent(it *Iterator, zNew *vec.Pair) (*vec.Pair, error) {
	tauOld := it.state.Tau
	j := it.jac(zNew.U, zNew.P)
	dFdp := it.dpF(zNew.U, zNew.P)
	xiU, xiP := it.xi()

	zero := zNew.U.Zero()
	tu, tp, err := it.bordered().SolveBordered(j, dFdp, tauOld.U, tauOld.P, zero, 1, xiU, xiP)
	if err != nil {
		return nil, fmt.Errorf("cont: bordered tangent: %w", err)
	}
	tau := &vec.Pair{U: tu, P: tp}
	// Orient along the previous tangent. The full theta product decides:
	// the parameter component alone flips sign legitimately at folds.
	m := it.metric()
	if m.Dot(tau, tauOld) < 0 {
		tau.Scale(-1)
	}
	m.Normalize(tau)
	return tau, nil
}

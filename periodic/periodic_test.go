package periodic

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/flow"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/newton"
	"github.com/numkit/palc/vec"
)

// Supercritical oscillator: r' = p*r - r^3, theta' = 1. The limit cycle
// has radius sqrt(p), period 2*pi, and nontrivial Floquet multiplier
// exp(-4*pi*p).
func radial(u vec.Vector, p float64) vec.Vector {
	d := u.(vec.Dense)
	x, y := d[0], d[1]
	r2 := x*x + y*y
	return vec.Dense{(p-r2)*x - y, x + (p-r2)*y}
}

func radialJac(u vec.Vector, p float64) linsolve.Op {
	d := u.(vec.Dense)
	x, y := d[0], d[1]
	return linsolve.FuncOp(func(w vec.Vector) vec.Vector {
		e := w.(vec.Dense)
		return vec.Dense{
			(p-3*x*x-y*y)*e[0] + (-1-2*x*y)*e[1],
			(1-2*x*y)*e[0] + (p-x*x-3*y*y)*e[1],
		}
	})
}

func radialField(x vec.Dense, p float64, t float64) vec.Dense {
	return radial(x, p).(vec.Dense)
}

func TestGuessFromHopf(t *testing.T) {
	u0 := vec.Dense{0, 0}
	vr := vec.Dense{1, 0}
	vi := vec.Dense{0, -1}
	y, phi := GuessFromHopf(u0, vr, vi, 2.0, 0.5, 8)

	require.Len(t, y, 2*8+1)
	assert.InDelta(t, math.Pi, y[len(y)-1], 1e-12, "period 2*pi/omega")
	// First slice sits at amplitude along vr.
	assert.InDelta(t, 0.5, y[0], 1e-12)
	assert.InDelta(t, 0, y[1], 1e-12)
	// Quarter turn later the orbit points along -vi.
	assert.InDelta(t, 0, y[2*2], 1e-9)
	assert.InDelta(t, 0.5, y[2*2+1], 1e-9)
	// The phase constraint holds at the guess.
	dot := 0.0
	for k := 0; k < 2; k++ {
		dot += (y[k] - u0[k]) * phi[k]
	}
	assert.InDelta(t, 0, dot, 1e-12)
}

func newTrap(m int) *TrapProblem {
	return &TrapProblem{
		F:     radial,
		J:     radialJac,
		UHopf: vec.Dense{0, 0},
		Phi:   nil, // set per test from the guess
		M:     m,
	}
}

func TestTrapNewtonConverges(t *testing.T) {
	p := 0.5
	m := 51
	y0, phi := GuessFromHopf(vec.Dense{0, 0}, vec.Dense{1, 0}, vec.Dense{0, -1}, 1.0, 0.6, m)

	tp := newTrap(m)
	tp.Phi = phi

	np := newton.DefaultParams()
	np.Tol = 1e-9
	np.MaxIter = 20
	res, err := newton.Solve(
		func(y vec.Vector) vec.Vector { return tp.Residual(y, p) },
		func(y vec.Vector) linsolve.Op { return tp.JacVecAt(y, p) },
		y0, np, nil)
	require.NoError(t, err)
	require.True(t, res.Converged, "residuals %v", res.Residuals)
	assert.Less(t, res.Iterations, 10)

	y := res.X.(vec.Dense)
	assert.InDelta(t, 2*math.Pi, tp.Period(y), 0.05, "discrete period")
	// Peak-to-peak amplitude of x over the cycle is 2*sqrt(p).
	assert.InDelta(t, 2*math.Sqrt(p), tp.Amplitude(y), 0.05)
}

func TestTrapFloquet(t *testing.T) {
	p := 0.5
	m := 51
	y0, phi := GuessFromHopf(vec.Dense{0, 0}, vec.Dense{1, 0}, vec.Dense{0, -1}, 1.0, 0.6, m)
	tp := newTrap(m)
	tp.Phi = phi

	np := newton.DefaultParams()
	np.Tol = 1e-9
	res, err := newton.Solve(
		func(y vec.Vector) vec.Vector { return tp.Residual(y, p) },
		func(y vec.Vector) linsolve.Op { return tp.JacVecAt(y, p) },
		y0, np, nil)
	require.NoError(t, err)
	require.True(t, res.Converged)

	mults, err := tp.Floquet(res.X, p, nil, 0)
	require.NoError(t, err)
	require.Len(t, mults, 2)

	// Trivial multiplier on the unit circle, nontrivial deep inside.
	assert.InDelta(t, 1, cmplx.Abs(mults[0]), 0.02)
	assert.InDelta(t, math.Exp(-4*math.Pi*p), cmplx.Abs(mults[1]), 0.01)
}

func shootingAt() *ShootingProblem {
	return &ShootingProblem{
		Field:   radialField,
		Stepper: flow.NewRK4(),
		M:       1,
		Section: flow.Section{Normal: vec.Dense{0, 1}, Center: vec.Dense{0, 0}},
		Dt:      0.01,
	}
}

func TestShootingNewtonConverges(t *testing.T) {
	p := 0.5
	sp := shootingAt()

	y0 := vec.Dense{0.6, 0, 6.0} // (x1, T)
	np := newton.DefaultParams()
	np.Tol = 1e-10
	np.MaxIter = 30
	res, err := newton.Solve(
		func(y vec.Vector) vec.Vector { return sp.Residual(y, p) },
		func(y vec.Vector) linsolve.Op { return sp.JacVecAt(y, p) },
		y0, np, nil)
	require.NoError(t, err)
	require.True(t, res.Converged, "residuals %v", res.Residuals)

	y := res.X.(vec.Dense)
	assert.InDelta(t, math.Sqrt(p), math.Abs(y[0]), 1e-6)
	assert.InDelta(t, 0, y[1], 1e-8)
	assert.InDelta(t, 2*math.Pi, sp.Period(y), 1e-5)

	// The converged cycle is invariant under the time-T flow.
	x1 := vec.Dense{y[0], y[1]}
	back := flow.Flow(sp.Field, sp.Stepper, x1, p, sp.Period(y), sp.Dt)
	back.Axpy(-1, x1)
	assert.Less(t, back.Norm(), 1e-7)
}

func TestShootingFloquet(t *testing.T) {
	p := 0.5
	sp := shootingAt()
	y := vec.Dense{math.Sqrt(p), 0, 2 * math.Pi}

	mults, err := sp.Floquet(y, p, nil, 0)
	require.NoError(t, err)
	require.Len(t, mults, 2)
	assert.InDelta(t, 1, cmplx.Abs(mults[0]), 1e-3)
	assert.InDelta(t, math.Exp(-4*math.Pi*p), cmplx.Abs(mults[1]), 1e-3)
}

// Subcritical-supercritical oscillator r' = p*r + r^3 - r^5: the two
// cycle branches meet in a fold of cycles at p = -1/4, r^2 = 1/2.
func foldField(x vec.Dense, p float64, t float64) vec.Dense {
	r2 := x[0]*x[0] + x[1]*x[1]
	a := p + r2 - r2*r2
	return vec.Dense{a*x[0] - x[1], x[0] + a*x[1]}
}

func TestShootingCycleFold(t *testing.T) {
	sp := &ShootingProblem{
		Field:   foldField,
		Stepper: flow.NewRK4(),
		M:       1,
		Section: flow.Section{Normal: vec.Dense{0, 1}, Center: vec.Dense{0, 0}},
		Dt:      0.01,
	}

	detector := &CycleDetector{Prob: sp, Margin: 5e-3}
	prob := sp.ContProblem()
	prob.FinaliseSolution = detector.Hook()

	// Outer stable cycle at p = -0.1: r^2 = (1 + sqrt(0.6))/2.
	r0 := math.Sqrt((1 + math.Sqrt(0.6)) / 2)
	y0 := vec.Dense{r0, 0, 2 * math.Pi}

	par := cont.DefaultParams()
	par.Ds = -0.005
	par.DsMin = 1e-5
	par.DsMax = 0.01
	// Stop on the inner branch before the cycle collapses into the
	// equilibrium at p = 0.
	par.PMin = -0.3
	par.PMax = -0.02
	par.MaxSteps = 400
	par.DetectFold = true
	par.Newton.Tol = 1e-9
	par.SaveSolEvery = 1

	br, _, _, err := cont.Run(context.Background(), prob, y0, -0.1, par, cont.Secant{})
	require.NoError(t, err)
	require.NotEmpty(t, br.FoldPoints, "no fold of cycles detected")

	foldP := br.FoldPoints[0].Param
	assert.InDelta(t, -0.25, foldP, 5e-3)

	// A Floquet multiplier crosses +1 at the fold.
	require.NotEmpty(t, br.BifPoints, "no multiplier crossing flagged")
	assert.Equal(t, cont.BifFold, br.BifPoints[0].Type)
	assert.InDelta(t, -0.25, br.BifPoints[0].Param, 0.02)

	// Every confirmed cycle is invariant under its time-T flow.
	for _, sol := range br.Solutions {
		y := sol.U.(vec.Dense)
		x1 := vec.Dense{y[0], y[1]}
		T := y[len(y)-1]
		back := flow.Flow(sp.Field, sp.Stepper, x1, sol.Param, T, sp.Dt)
		back.Axpy(-1, x1)
		assert.Less(t, back.Norm(), 1e-6, "cycle at p=%g drifted", sol.Param)
	}
}

func TestPoincareFixedPoint(t *testing.T) {
	p := 0.5
	pp := &PoincareProblem{
		Field:     radialField,
		Stepper:   flow.NewRK4(),
		// Counterclockwise orbits cross x2 = 0 upward only at x1 > 0, so
		// the directional crossing picks the full return, not the
		// half-turn antipode.
		Sections:  []flow.Section{{Normal: vec.Dense{0, 1}, Center: vec.Dense{0, 0}}},
		Direction: +1,
		Dt:        0.01,
	}

	// One section in 2D: the unknown is a single coordinate along the
	// section, with fixed point at distance sqrt(p) from the center.
	np := newton.DefaultParams()
	np.Tol = 1e-9
	np.MaxIter = 30
	res, err := newton.Solve(
		func(y vec.Vector) vec.Vector { return pp.Residual(y, p) },
		func(y vec.Vector) linsolve.Op { return pp.JacVecAt(y, p) },
		vec.Dense{0.6}, np, nil)
	require.NoError(t, err)
	require.True(t, res.Converged, "residuals %v", res.Residuals)

	xi := res.X.(vec.Dense)
	assert.InDelta(t, math.Sqrt(p), math.Abs(xi[0]), 1e-6)

	// The period is recovered as the return time.
	T, err := pp.PeriodOf(res.X, p)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Pi, T, 1e-4)

	// The nontrivial multiplier comes out of the reduced monodromy.
	mults, err := pp.Floquet(res.X, p, nil, 0)
	require.NoError(t, err)
	require.Len(t, mults, 1)
	assert.InDelta(t, math.Exp(-4*math.Pi*p), cmplx.Abs(mults[0]), 1e-3)
}

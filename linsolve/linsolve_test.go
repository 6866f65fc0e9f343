package linsolve

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/vec"
)

func testMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		4, 1, 0,
		1, 3, 1,
		0, 1, 2,
	})
}

func TestLUSolve(t *testing.T) {
	a := testMatrix()
	want := vec.Dense{1, -2, 3}
	rhs := MatOp{M: a}.Apply(want)

	x, iters, err := LU{}.Solve(MatOp{M: a}, rhs)
	require.NoError(t, err)
	assert.Equal(t, 1, iters)
	for i := range want {
		assert.InDelta(t, want[i], x.(vec.Dense)[i], 1e-12)
	}
}

func TestBiCGStabMatchesDirect(t *testing.T) {
	a := testMatrix()
	want := vec.Dense{0.5, 2, -1}
	rhs := MatOp{M: a}.Apply(want)

	x, _, err := BiCGStab{Tol: 1e-12, MaxIter: 100}.Solve(MatOp{M: a}, rhs)
	require.NoError(t, err)
	for i := range want {
		assert.InDelta(t, want[i], x.(vec.Dense)[i], 1e-8)
	}
}

func TestShiftedOp(t *testing.T) {
	a := testMatrix()
	s := ShiftedOp{A0: 2, A1: -1, A: MatOp{M: a}}

	v := vec.Dense{1, 1, 1}
	got := s.Apply(v).(vec.Dense)
	// (2I - A)v
	av := MatOp{M: a}.Apply(v).(vec.Dense)
	for i := range v {
		assert.InDelta(t, 2*v[i]-av[i], got[i], 1e-14)
	}

	m := s.Matrix()
	require.NotNil(t, m)
	got2 := MatOp{M: m}.Apply(v).(vec.Dense)
	for i := range v {
		assert.InDelta(t, got[i], got2[i], 1e-14)
	}
}

func TestDenseEigenOrdering(t *testing.T) {
	// Diagonal with known spectrum.
	a := mat.NewDense(3, 3, []float64{
		-5, 0, 0,
		0, 2, 0,
		0, 0, 0.5,
	})

	eig, err := DenseEigen{}.Eigen(MatOp{M: a}, 3, LargestReal)
	require.NoError(t, err)
	assert.InDelta(t, 2, real(eig.Values[0]), 1e-12)
	assert.InDelta(t, 0.5, real(eig.Values[1]), 1e-12)
	assert.InDelta(t, -5, real(eig.Values[2]), 1e-12)

	eig, err = DenseEigen{}.Eigen(MatOp{M: a}, 2, LargestModulus)
	require.NoError(t, err)
	require.Len(t, eig.Values, 2)
	assert.InDelta(t, -5, real(eig.Values[0]), 1e-12)
	assert.InDelta(t, 2, real(eig.Values[1]), 1e-12)
}

func TestFDJacobian(t *testing.T) {
	f := func(x vec.Vector) vec.Vector {
		d := x.(vec.Dense)
		return vec.Dense{d[0] * d[0], d[0] * d[1]}
	}
	x := vec.Dense{2, 3}
	j := FDJacobian(f, x, 0)

	assert.InDelta(t, 4, j.At(0, 0), 1e-6)
	assert.InDelta(t, 0, j.At(0, 1), 1e-6)
	assert.InDelta(t, 3, j.At(1, 0), 1e-6)
	assert.InDelta(t, 2, j.At(1, 1), 1e-6)
}

func TestFDParamDerivScaleAware(t *testing.T) {
	f := func(x vec.Vector, p float64) vec.Vector {
		d := x.(vec.Dense)
		return vec.Dense{p * p * d[0]}
	}
	// Large p would defeat a fixed 1e-8 step; the scaled step keeps the
	// difference well conditioned.
	p := 1e6
	got := FDParamDeriv(f, vec.Dense{1}, p, 0).(vec.Dense)
	assert.InEpsilon(t, 2*p, got[0], 1e-5)
}

func testBorderedCase(t *testing.T, bs BorderedSolver) {
	t.Helper()
	j := MatOp{M: testMatrix()}
	dFdp := vec.Dense{1, 0, 1}
	gradG := vec.Dense{0.2, 0.1, 0}
	dpg := 0.7
	xiU, xiP := 0.3, 0.7

	// Build the rhs from a known solution.
	xw := vec.Dense{1, 2, -1}
	yw := 0.5
	r := j.Apply(xw).(vec.Dense)
	r.Axpy(yw, dFdp)
	n := xiU*gradG.Dot(xw) + xiP*dpg*yw

	x, y, err := bs.SolveBordered(j, dFdp, gradG, dpg, r, n, xiU, xiP)
	require.NoError(t, err)
	assert.InDelta(t, yw, y, 1e-8)
	for i := range xw {
		assert.InDelta(t, xw[i], x.(vec.Dense)[i], 1e-8)
	}
}

func TestBorderedStrategiesAgree(t *testing.T) {
	t.Run("bordering", func(t *testing.T) {
		testBorderedCase(t, Bordering{Inner: LU{}})
	})
	t.Run("full-matrix", func(t *testing.T) {
		testBorderedCase(t, FullMatrix{})
	})
	t.Run("matrix-free", func(t *testing.T) {
		testBorderedCase(t, MatrixFree{Krylov: BiCGStab{Tol: 1e-12, MaxIter: 200}})
	})
}

func TestBorderingSingular(t *testing.T) {
	// J v = dFdp makes the elimination denominator vanish when the border
	// row is orthogonal to everything but v.
	j := MatOp{M: mat.NewDense(2, 2, []float64{1, 0, 0, 1})}
	dFdp := vec.Dense{1, 0}
	gradG := vec.Dense{1, 0}
	// xiP*dpg - xiU*<gradG, J\dFdp> = 1*1 - 1*1 = 0
	_, _, err := Bordering{Inner: LU{}}.SolveBordered(j, dFdp, gradG, 1, vec.Dense{0, 0}, 0, 1, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBorderedSingular))
}

func TestBiCGStabZeroRHS(t *testing.T) {
	x, iters, err := BiCGStab{}.Solve(MatOp{M: testMatrix()}, vec.Dense{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0, iters)
	assert.Equal(t, 0.0, math.Abs(x.Norm()))
}

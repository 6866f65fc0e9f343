package linsolve

import (
	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/vec"
)

// Op is the action of a linear operator (typically a Jacobian) on a vector.
// Apply must not retain or mutate its argument.
type Op interface {
	Apply(v vec.Vector) vec.Vector
}

// Materializer is implemented by operators that can assemble themselves as a
// dense matrix. Direct solvers and the full-matrix bordered strategy need it;
// everything else works from Apply alone.
type Materializer interface {
	Matrix() *mat.Dense
}

// FuncOp adapts a plain function to Op.
type FuncOp func(v vec.Vector) vec.Vector

func (f FuncOp) Apply(v vec.Vector) vec.Vector { return f(v) }

// MatOp wraps a dense matrix as an operator over vec.Dense.
type MatOp struct {
	M *mat.Dense
}

func (m MatOp) Apply(v vec.Vector) vec.Vector {
	d := v.(vec.Dense)
	out := make(vec.Dense, m.M.RawMatrix().Rows)
	y := mat.NewVecDense(len(out), out)
	y.MulVec(m.M, mat.NewVecDense(len(d), d))
	return out
}

func (m MatOp) Matrix() *mat.Dense { return m.M }

// ShiftedOp represents a0*I + a1*A. Solvers accept it like any other
// operator; the dense solver assembles the shifted matrix when A
// materializes. The trapezoidal monodromy uses it for its (I - h/2 J)
// factors.
type ShiftedOp struct {
	A0, A1 float64
	A      Op
}

func (s ShiftedOp) Apply(v vec.Vector) vec.Vector {
	w := s.A.Apply(v)
	w.Scale(s.A1)
	w.Axpy(s.A0, v)
	return w
}

func (s ShiftedOp) Matrix() *mat.Dense {
	m, ok := s.A.(Materializer)
	if !ok {
		return nil
	}
	am := m.Matrix()
	n, c := am.Dims()
	out := mat.NewDense(n, c, nil)
	out.Scale(s.A1, am)
	for i := 0; i < n; i++ {
		out.Set(i, i, out.At(i, i)+s.A0)
	}
	return out
}

// Materialize assembles op as a dense n-by-n matrix, through Materializer
// when available and by applying op to the coordinate basis otherwise.
// The basis sweep requires the operator to act on vec.Dense.
func Materialize(op Op, n int) *mat.Dense {
	if m, ok := op.(Materializer); ok {
		if am := m.Matrix(); am != nil {
			return am
		}
	}
	out := mat.NewDense(n, n, nil)
	e := make(vec.Dense, n)
	for j := 0; j < n; j++ {
		e[j] = 1
		col := op.Apply(e).(vec.Dense)
		for i := 0; i < n; i++ {
			out.Set(i, j, col[i])
		}
		e[j] = 0
	}
	return out
}

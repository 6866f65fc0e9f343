package linsolve

import (
	"cmp"
	"fmt"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Which selects the eigenvalue ordering of interest.
type Which int

const (
	// LargestReal orders by real part, descending. Used for equilibria,
	// where instability means an eigenvalue in the right half plane.
	LargestReal Which = iota
	// LargestModulus orders by modulus, descending. Used for Floquet
	// multipliers, where instability means leaving the unit circle.
	LargestModulus
)

// Eig holds the outcome of an eigendecomposition. Values are sorted
// according to the Which passed to the solver; Vectors, when requested,
// has its columns in the same order.
type Eig struct {
	Values  []complex128
	Vectors *mat.CDense
}

// EigenSolver computes nev eigenvalues of an operator. Implementations may
// return more than nev values; they must never return fewer without error.
type EigenSolver interface {
	Eigen(op Op, nev int, which Which) (*Eig, error)
}

// DenseEigen is the direct eigensolver: it materializes the operator and
// runs the full QR algorithm. All eigenvalues are computed; nev only
// truncates the result.
type DenseEigen struct {
	// Vectors requests right eigenvectors alongside the values.
	Vectors bool
	// Dim is required for operators that do not materialize, so the basis
	// sweep knows the size. Ignored when the operator has a matrix form.
	Dim int
}

func (s DenseEigen) Eigen(op Op, nev int, which Which) (*Eig, error) {
	n := s.Dim
	if m, ok := op.(Materializer); ok {
		if am := m.Matrix(); am != nil {
			n, _ = am.Dims()
		}
	}
	if n == 0 {
		return nil, fmt.Errorf("dense eigen: %w", ErrNotMaterializable)
	}
	a := Materialize(op, n)

	kind := mat.EigenNone
	if s.Vectors {
		kind = mat.EigenRight
	}
	var eig mat.Eigen
	if ok := eig.Factorize(a, kind); !ok {
		return nil, fmt.Errorf("dense eigen: %w", ErrEigenFailure)
	}

	vals := eig.Values(nil)
	order := make([]int, len(vals))
	for i := range order {
		order[i] = i
	}
	key := func(i int) float64 {
		if which == LargestModulus {
			return cmplx.Abs(vals[i])
		}
		return real(vals[i])
	}
	slices.SortStableFunc(order, func(i, j int) int {
		return cmp.Compare(key(j), key(i))
	})

	if nev <= 0 || nev > len(vals) {
		nev = len(vals)
	}
	out := &Eig{Values: make([]complex128, nev)}
	for k := 0; k < nev; k++ {
		out.Values[k] = vals[order[k]]
	}

	if s.Vectors {
		var vecs mat.CDense
		eig.VectorsTo(&vecs)
		out.Vectors = mat.NewCDense(n, nev, nil)
		for k := 0; k < nev; k++ {
			for i := 0; i < n; i++ {
				out.Vectors.Set(i, k, vecs.At(i, order[k]))
			}
		}
	}
	return out, nil
}

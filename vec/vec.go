package vec

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Vector is the algebra the continuation engine needs from a state type.
// Implementations are free to keep their data anywhere (dense slice, sparse
// structure, device memory); the engine never indexes into a Vector, it only
// combines them through these operations.
//
// Scale, Axpy and Axpby mutate the receiver. Clone and Zero allocate.
type Vector interface {
	Len() int
	Clone() Vector
	// Zero returns a new zero vector with the shape of the receiver.
	Zero() Vector
	// Scale sets v = a*v.
	Scale(a float64)
	// Axpy sets v = v + a*x.
	Axpy(a float64, x Vector)
	// Axpby sets v = a*x + b*v.
	Axpby(a float64, x Vector, b float64)
	Dot(x Vector) float64
	// Norm is the infinity norm for the built-in types.
	Norm() float64
}

// Dense is a vector backed by a plain float64 slice.
type Dense []float64

// NewDense returns a zeroed Dense of length n.
func NewDense(n int) Dense { return make(Dense, n) }

func (d Dense) Len() int { return len(d) }

func (d Dense) Clone() Vector {
	c := make(Dense, len(d))
	copy(c, d)
	return c
}

func (d Dense) Zero() Vector { return make(Dense, len(d)) }

func (d Dense) Scale(a float64) { floats.Scale(a, d) }

func (d Dense) Axpy(a float64, x Vector) {
	floats.AddScaled(d, a, x.(Dense))
}

func (d Dense) Axpby(a float64, x Vector, b float64) {
	xs := x.(Dense)
	for i := range d {
		d[i] = a*xs[i] + b*d[i]
	}
}

func (d Dense) Dot(x Vector) float64 { return floats.Dot(d, x.(Dense)) }

func (d Dense) Norm() float64 {
	return floats.Norm(d, math.Inf(1))
}

// IsValid reports whether the vector is free of NaN and Inf entries.
func (d Dense) IsValid() bool {
	for _, v := range d {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

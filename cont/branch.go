package cont

import (
	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/vec"
)

// BifType labels the kind of a special point on a branch.
type BifType int

const (
	BifNone BifType = iota
	// BifFold is a parameter turning point (real eigenvalue through zero).
	BifFold
	// BifHopf is a complex pair crossing the imaginary axis.
	BifHopf
	// BifBP is a branch point (simple real eigenvalue crossing).
	BifBP
	// BifNS is a Neimark-Sacker point (Floquet pair leaving the unit circle).
	BifNS
	// BifPD is a period doubling (Floquet multiplier through -1).
	BifPD
	// BifND is an unclassified change of the unstable dimension.
	BifND
)

func (t BifType) String() string {
	switch t {
	case BifFold:
		return "fold"
	case BifHopf:
		return "hopf"
	case BifBP:
		return "bp"
	case BifNS:
		return "ns"
	case BifPD:
		return "pd"
	case BifND:
		return "nd"
	}
	return "none"
}

// BifStatus tracks the lifecycle of a detected point.
type BifStatus int

const (
	// StatusGuess marks first detection from a sign change.
	StatusGuess BifStatus = iota
	// StatusConverged marks successful bisection refinement.
	StatusConverged
	// StatusNotConverged marks a failed refinement; the guess is retained.
	StatusNotConverged
)

func (s BifStatus) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusNotConverged:
		return "not-converged"
	}
	return "guess"
}

// BifPoint records a special point.
type BifPoint struct {
	Type     BifType
	// Idx is the branch index of the confirmed point after the change.
	Idx      int
	Param    float64
	Norm     float64
	PrintSol float64
	U        vec.Vector
	Tau      *vec.Pair
	// IndBif is the index of the crossing eigenvalue in the snapshot.
	IndBif   int
	Step     int
	Status   BifStatus
	// Delta is (change in n_unstable, change in n_imag) across the point.
	Delta    [2]int
}

// Point is one summary row of a branch.
type Point struct {
	Step        int
	Param       float64
	PrintSol    float64
	Norm        float64
	NewtonIters int
	// Ds is the step used to reach this point.
	Ds    float64
	Theta float64

	NUnstable int
	NImag     int
	Stable    bool
}

// EigSnapshot stores a spectrum tagged by the step it was computed at.
type EigSnapshot struct {
	Step    int
	Values  []complex128
	Vectors *mat.CDense
}

// Solution is a full saved state.
type Solution struct {
	Step  int
	Param float64
	U     vec.Vector
}

// Branch is the record of a continuation run. Entries are appended
// strictly in step order by the iterator; it is never mutated afterwards.
type Branch struct {
	Points     []Point
	Eigen      []EigSnapshot
	BifPoints  []BifPoint
	FoldPoints []BifPoint
	Solutions  []Solution
}

// Len reports the number of confirmed points.
func (b *Branch) Len() int { return len(b.Points) }

// Last returns the most recent confirmed point, or nil on an empty branch.
func (b *Branch) Last() *Point {
	if len(b.Points) == 0 {
		return nil
	}
	return &b.Points[len(b.Points)-1]
}

// Params collects the parameter column, in step order.
func (b *Branch) Params() []float64 {
	out := make([]float64, len(b.Points))
	for i, pt := range b.Points {
		out[i] = pt.Param
	}
	return out
}

// PrintSols collects the printSolution column, in step order.
func (b *Branch) PrintSols() []float64 {
	out := make([]float64, len(b.Points))
	for i, pt := range b.Points {
		out[i] = pt.PrintSol
	}
	return out
}

package periodic

import (
	"math/cmplx"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// monodromer is satisfied by all three periodic-orbit problems.
type monodromer interface {
	Floquet(y vec.Vector, p float64, eig linsolve.EigenSolver, nev int) ([]complex128, error)
}

// CycleDetector watches the Floquet multipliers along a cycle branch and
// flags crossings of the unit circle: +1 fold of cycle, -1 period
// doubling, complex pair Neimark-Sacker. Attach it to the continuation
// through Hook.
type CycleDetector struct {
	Prob monodromer
	Eig  linsolve.EigenSolver
	Nev  int
	// Margin is the unit-circle tolerance; it also masks the trivial
	// multiplier. Zero means 1e-3.
	Margin float64
	// Next chains a user FinaliseSolution after detection.
	Next func(z, tau *vec.Pair, step int, br *cont.Branch) bool

	prevN  int
	prevNi int
	begun  bool
}

func (cd *CycleDetector) margin() float64 {
	if cd.Margin == 0 {
		return 1e-3
	}
	return cd.Margin
}

// Hook returns a FinaliseSolution callback performing the detection. It
// appends Floquet snapshots and detected cycle bifurcations to the branch.
func (cd *CycleDetector) Hook() func(z, tau *vec.Pair, step int, br *cont.Branch) bool {
	return func(z, tau *vec.Pair, step int, br *cont.Branch) bool {
		mults, err := cd.Prob.Floquet(z.U, z.P, cd.Eig, cd.Nev)
		if err == nil {
			br.Eigen = append(br.Eigen, cont.EigSnapshot{Step: step, Values: mults})
			n, ni := cont.CountUnstableFloquet(mults, cd.margin())
			if cd.begun && n != cd.prevN {
				mu := crossingMultiplier(mults, cd.margin(), n > cd.prevN)
				br.BifPoints = append(br.BifPoints, cont.BifPoint{
					Type:     cont.ClassifyFloquet(mu),
					Idx:      len(br.Points) - 1,
					Param:    z.P,
					Norm:     z.U.Norm(),
					U:        z.U.Clone(),
					Tau:      tau.Copy(),
					Step:     step,
					Status:   cont.StatusGuess,
					Delta:    [2]int{n - cd.prevN, ni - cd.prevNi},
				})
			}
			cd.prevN = n
			cd.prevNi = ni
			cd.begun = true
		}
		if cd.Next != nil {
			return cd.Next(z, tau, step, br)
		}
		return true
	}
}

// crossingMultiplier picks the multiplier nearest the unit circle on the
// side the count moved to.
func crossingMultiplier(mults []complex128, margin float64, increased bool) complex128 {
	best := complex(1, 0)
	bestDist := -1.0
	for _, mu := range mults {
		a := cmplx.Abs(mu)
		outside := a > 1+margin
		if outside != increased {
			continue
		}
		d := a - 1
		if d < 0 {
			d = -d
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = mu, d
		}
	}
	return best
}

package cont

import (
	"math"

	"github.com/numkit/palc/vec"
)

// detectFold flags the middle of the last three confirmed points when the
// parameter is not monotone across them. The fold location is sharpened by
// quadratic interpolation of p against arclength.
func (it *Iterator) detectFold() {
	n := len(it.branch.Points)
	if n < 3 {
		return
	}
	p1 := it.branch.Points[n-3].Param
	p2 := it.branch.Points[n-2].Param
	p3 := it.branch.Points[n-1].Param
	if (p2-p1)*(p3-p2) >= 0 {
		return
	}
	mid := &it.branch.Points[n-2]
	if len(it.branch.FoldPoints) > 0 &&
		it.branch.FoldPoints[len(it.branch.FoldPoints)-1].Step == mid.Step {
		return
	}

	pStar, ok := quadVertex(it.arcs[n-3], p1, it.arcs[n-2], p2, it.arcs[n-1], p3)
	if !ok {
		pStar = p2
	}

	fold := BifPoint{
		Type:     BifFold,
		Idx:      n - 2,
		Param:    pStar,
		Norm:     mid.Norm,
		PrintSol: mid.PrintSol,
		U:        it.state.Z.U.Clone(),
		Tau:      it.state.Tau.Copy(),
		Step:     mid.Step,
		Status:   StatusGuess,
	}
	it.branch.FoldPoints = append(it.branch.FoldPoints, fold)
	it.logf("fold detected near p=%.8f (step %d)\n", pStar, mid.Step)
}

// quadVertex interpolates the parabola through (s1,p1), (s2,p2), (s3,p3)
// and evaluates it at its turning point.
func quadVertex(s1, p1, s2, p2, s3, p3 float64) (float64, bool) {
	d1 := (p2 - p1) / (s2 - s1)
	d2 := (p3 - p2) / (s3 - s2)
	a := (d2 - d1) / (s3 - s1)
	if a == 0 {
		return 0, false
	}
	sv := (s1+s2)/2 - d1/(2*a)
	if sv < s1 || sv > s3 {
		return 0, false
	}
	return p1 + d1*(sv-s1) + a*(sv-s1)*(sv-s2), true
}

// handleBifurcation builds a guess point from the instability jump and,
// at detection level 2, refines it by bisection in arclength.
func (it *Iterator) handleBifurcation(zPrev, tauPrev *vec.Pair, dsUsed float64) {
	dU := it.state.NUnstable - it.state.NUnstablePrev
	dI := it.state.NImag - it.state.NImagPrev
	z := it.state.Z

	bp := BifPoint{
		Type:     Classify(dU, dI),
		Idx:      len(it.branch.Points) - 1,
		Param:    z.P,
		Norm:     z.U.Norm(),
		PrintSol: it.printSol(z.U, z.P),
		U:        z.U.Clone(),
		Tau:      it.state.Tau.Copy(),
		IndBif:   crossingIndex(it.state.Eigvals),
		Step:     it.state.Step,
		Status:   StatusGuess,
		Delta:    [2]int{dU, dI},
	}
	it.logf("bifurcation (%s) detected at p=%.8f, delta=(%d,%d)\n", bp.Type, z.P, dU, dI)

	if it.par.DetectBifurcation >= 2 {
		it.bisect(&bp, zPrev, tauPrev, dsUsed)
	}
	it.branch.BifPoints = append(it.branch.BifPoints, bp)
}

// bisect halves the arclength interval between the last two confirmed
// points, re-correcting at each midpoint and tracking on which side of the
// instability change it lands. It stops when the interval is below
// dsMinBisection or at the step cap; the point counts as converged only if
// the interval collapsed and the landing side alternated at least
// nInversion/2 times. On success the iterator state is moved onto the
// refined point.
func (it *Iterator) bisect(bp *BifPoint, zPrev, tauPrev *vec.Pair, dsUsed float64) {
	it.bisecting = true
	defer func() { it.bisecting = false }()

	savedZ, savedTau, savedDs := it.state.Z, it.state.Tau, it.state.Ds

	nBefore := it.state.NUnstablePrev
	// Bisect the magnitude; sgn restores the travel direction.
	sgn := sign(dsUsed)
	lo, hi := 0.0, math.Abs(dsUsed)

	best := it.state.Z
	bestVals := it.state.Eigvals
	bestN, bestNi := it.state.NUnstable, it.state.NImag

	prevAfter := true
	inversions := 0

	for steps := 0; steps < it.par.MaxBisectionSteps &&
		hi-lo > it.par.DsMinBisection; steps++ {

		mid := (lo + hi) / 2
		ds := sgn * mid

		it.state.Z, it.state.Tau, it.state.Ds = zPrev, tauPrev, ds
		zPred := zPrev.Copy()
		zPred.Axpy(ds, tauPrev)
		zMid, _, conv, _, err := it.correct(zPred)
		if err != nil || !conv {
			// Shrink toward the confirmed side and keep going.
			hi = mid
			continue
		}

		vals, _, eerr := it.spectrum(zMid)
		if eerr != nil {
			break
		}
		n, ni := CountUnstable(vals, it.par.PrecisionStability)

		after := n != nBefore
		if after != prevAfter {
			inversions++
		}
		prevAfter = after

		if after {
			hi = mid
			best, bestVals, bestN, bestNi = zMid, vals, n, ni
		} else {
			lo = mid
		}
	}

	it.state.Z, it.state.Tau, it.state.Ds = savedZ, savedTau, savedDs

	// Converged means the interval collapsed and the sides alternated at
	// least nInversion/2 times, guarding against a spurious crossing.
	if hi-lo <= it.par.DsMinBisection && inversions >= it.par.NInversion/2 {
		bp.Status = StatusConverged
		bp.Param = best.P
		bp.Norm = best.U.Norm()
		bp.PrintSol = it.printSol(best.U, best.P)
		bp.U = best.U.Clone()
		bp.IndBif = crossingIndex(bestVals)
		// Resume the continuation from the refined point.
		it.state.Z = best
		it.state.Eigvals = bestVals
		it.state.NUnstable = bestN
		it.state.NImag = bestNi
		it.logf("bisection converged at p=%.10f\n", best.P)
	} else {
		bp.Status = StatusNotConverged
		it.logf("bisection did not converge, keeping guess at p=%.10f\n", bp.Param)
	}
}

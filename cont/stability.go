package cont

import (
	"math"
	"math/cmplx"
)

// CountUnstable counts eigenvalues with real part above the stability
// threshold, and among those the ones with nonzero imaginary part.
func CountUnstable(vals []complex128, precision float64) (nUnstable, nImag int) {
	for _, v := range vals {
		if real(v) > precision {
			nUnstable++
			if math.Abs(imag(v)) > 0 {
				nImag++
			}
		}
	}
	return nUnstable, nImag
}

// CountUnstableFloquet counts Floquet multipliers outside the unit circle.
// The margin plays the role the real-part threshold plays for equilibria.
func CountUnstableFloquet(mults []complex128, margin float64) (nUnstable, nImag int) {
	for _, v := range mults {
		if cmplx.Abs(v) > 1+margin {
			nUnstable++
			if math.Abs(imag(v)) > 0 {
				nImag++
			}
		}
	}
	return nUnstable, nImag
}

// Classify maps the jump in (n_unstable, n_imag) across a detected point to
// a bifurcation type. It is a pure function of the two deltas.
func Classify(dnUnstable, dnImag int) BifType {
	switch {
	case absInt(dnUnstable) == 1 && dnImag == 0:
		return BifBP
	case absInt(dnUnstable) == 2 && absInt(dnImag) == 2:
		return BifHopf
	default:
		return BifND
	}
}

// ClassifyFloquet maps a Floquet multiplier crossing to a cycle
// bifurcation: +1 fold of cycle, -1 period doubling, complex pair
// Neimark-Sacker.
func ClassifyFloquet(crossing complex128) BifType {
	const imagTol = 1e-8
	if math.Abs(imag(crossing)) > imagTol {
		return BifNS
	}
	if real(crossing) < 0 {
		return BifPD
	}
	return BifFold
}

// crossingIndex picks the eigenvalue closest to the stability boundary,
// the most likely crossing candidate after a sign change.
func crossingIndex(vals []complex128) int {
	best, bestAbs := 0, math.Inf(1)
	for i, v := range vals {
		if a := math.Abs(real(v)); a < bestAbs {
			best, bestAbs = i, a
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

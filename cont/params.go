package cont

import (
	"errors"
	"fmt"
	"math"

	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/newton"
)

// ErrInvalidConfig indicates continuation parameters that fail their
// invariants. It is raised at construction and is fatal.
var ErrInvalidConfig = errors.New("cont: invalid continuation parameters")

// Params is the immutable configuration of a continuation run.
type Params struct {
	// DsMin and DsMax bound the arclength step; Ds is the initial signed
	// step, |Ds| must lie in [DsMin, DsMax].
	DsMin, DsMax, Ds float64

	// Theta weights the state against the parameter in the arclength
	// metric, in (0,1).
	Theta float64
	// DoArcLengthScaling retunes Theta when the tangent becomes parameter
	// dominated, using GGoal, GMax and ThetaMin.
	DoArcLengthScaling   bool
	GGoal, GMax, ThetaMin float64
	// TangentExponent is applied to |tau_p| in the scaling trigger.
	TangentExponent float64

	// PMin and PMax bound the continuation parameter; leaving the interval
	// terminates the run cleanly.
	PMin, PMax float64
	// MaxSteps caps the number of continuation steps.
	MaxSteps int

	// Newton configures the corrector.
	Newton newton.Params
	// Bordered selects the strategy for the augmented linear system.
	// Nil means Bordering over the Newton solver.
	Bordered linsolve.BorderedSolver
	// Eigen computes spectra for stability; nil disables eigen bookkeeping
	// regardless of ComputeEigenValues.
	Eigen linsolve.EigenSolver

	// DetectFold marks parameter turning points.
	DetectFold bool
	// DetectBifurcation: 0 off, 1 flag sign changes, 2 also bisect.
	DetectBifurcation int
	// PrecisionStability is the real-part threshold below which an
	// eigenvalue counts as stable.
	PrecisionStability float64

	// DsMinBisection, NInversion (even) and MaxBisectionSteps drive the
	// bisection localizer.
	DsMinBisection    float64
	NInversion        int
	MaxBisectionSteps int

	// ComputeEigenValues enables the stability tracker.
	ComputeEigenValues bool
	// Nev is the number of requested eigenvalues (0 means all, for the
	// dense solver).
	Nev int
	// SaveEigEvery spaces eigen snapshots; step 0 is always computed.
	SaveEigEvery int
	// SaveEigenvectors stores eigenvectors in the snapshots.
	SaveEigenvectors bool
	// SaveSolEvery spaces full solution saves (0 disables).
	SaveSolEvery int
	// PlotEvery spaces PlotSolution callbacks (0 disables).
	PlotEvery int

	// A is the step-adaptation aggressiveness.
	A float64
	// FinDiffEps is the base step of the finite-difference fallbacks.
	FinDiffEps float64
}

// DefaultParams returns a working configuration for a continuation in
// [-1, 1] with step 0.01.
func DefaultParams() Params {
	return Params{
		DsMin:              1e-4,
		DsMax:              0.1,
		Ds:                 0.01,
		Theta:              0.5,
		GGoal:              0.5,
		GMax:               0.8,
		ThetaMin:           1e-3,
		TangentExponent:    1,
		PMin:               -1,
		PMax:               1,
		MaxSteps:           400,
		Newton:             newton.DefaultParams(),
		PrecisionStability: 1e-10,
		DsMinBisection:     1e-9,
		NInversion:         2,
		MaxBisectionSteps:  25,
		Nev:                0,
		SaveEigEvery:       1,
		A:                  0.5,
		FinDiffEps:         linsolve.DefaultFDEps,
	}
}

// Check validates the parameter invariants.
func (p Params) Check() error {
	fail := func(format string, a ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, a...))
	}
	if p.DsMin <= 0 || p.DsMax <= 0 || p.DsMax < p.DsMin {
		return fail("need 0 < dsMin <= dsMax, got [%g, %g]", p.DsMin, p.DsMax)
	}
	ads := math.Abs(p.Ds)
	if ads < p.DsMin || ads > p.DsMax {
		return fail("|ds| = %g outside [%g, %g]", ads, p.DsMin, p.DsMax)
	}
	if p.Theta <= 0 || p.Theta >= 1 {
		return fail("theta = %g outside (0,1)", p.Theta)
	}
	if p.PMin > p.PMax {
		return fail("pMin %g > pMax %g", p.PMin, p.PMax)
	}
	if p.MaxSteps <= 0 {
		return fail("maxSteps = %d", p.MaxSteps)
	}
	if p.NInversion%2 != 0 {
		return fail("nInversion = %d must be even", p.NInversion)
	}
	if p.DetectBifurcation < 0 || p.DetectBifurcation > 2 {
		return fail("detectBifurcation = %d outside {0,1,2}", p.DetectBifurcation)
	}
	if p.DsMinBisection <= 0 && p.DetectBifurcation == 2 {
		return fail("dsMinBisection must be positive for bisection")
	}
	return nil
}

func (p Params) clampDs(ds float64) float64 {
	s := 1.0
	if ds < 0 {
		s = -1
	}
	return s * math.Min(math.Max(math.Abs(ds), p.DsMin), p.DsMax)
}

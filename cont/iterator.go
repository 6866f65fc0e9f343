package cont

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/newton"
	"github.com/numkit/palc/vec"
)

// ErrNoConvergence indicates the corrector failed with the step already at
// its minimum, or the initial bootstrap failed.
var ErrNoConvergence = errors.New("cont: corrector did not converge")

// StopReason records why a run ended.
type StopReason int

const (
	StopNone StopReason = iota
	// StopMaxSteps: the step budget ran out.
	StopMaxSteps
	// StopBoundary: the parameter left [pMin, pMax]. Clean termination.
	StopBoundary
	// StopUserAbort: a callback returned false. Clean termination.
	StopUserAbort
	// StopNewtonFailure: the corrector failed at ds = dsMin.
	StopNewtonFailure
	// StopError: a non-recoverable error surfaced; see Iterator.Err.
	StopError
)

func (r StopReason) String() string {
	switch r {
	case StopMaxSteps:
		return "max steps"
	case StopBoundary:
		return "parameter boundary"
	case StopUserAbort:
		return "user abort"
	case StopNewtonFailure:
		return "newton failure at dsMin"
	case StopError:
		return "error"
	}
	return "running"
}

// Problem bundles the user-supplied functions. Only F is mandatory; the
// Jacobian and parameter derivative fall back to finite differences.
type Problem struct {
	// F evaluates the residual at (u, p). Out of place.
	F func(u vec.Vector, p float64) vec.Vector
	// J returns the Jacobian operator at (u, p). Nil enables the dense
	// finite-difference fallback.
	J func(u vec.Vector, p float64) linsolve.Op
	// DpF returns dF/dp. Nil enables the scale-aware finite difference.
	DpF func(u vec.Vector, p float64) vec.Vector
	// DotU replaces the default <x,y>/len state product of the arclength
	// metric.
	DotU func(x, y vec.Vector) float64
	// PrintSolution reduces a solution to the scalar recorded on the
	// branch. Nil records the state norm.
	PrintSolution func(u vec.Vector, p float64) float64
	// PlotSolution is called every PlotEvery confirmed steps.
	PlotSolution func(u vec.Vector, p float64)
	// FinaliseSolution runs after each confirmed step; returning false
	// stops the run.
	FinaliseSolution func(z, tau *vec.Pair, step int, br *Branch) bool
	// NewtonCallback is forwarded to every corrector iteration.
	NewtonCallback func(info newton.CallbackInfo) bool
}

// IterState is the mutable state of the running iterator. It is owned
// exclusively by the iterator; snapshots handed out are live views.
type IterState struct {
	ZPred  *vec.Pair
	TauNew *vec.Pair
	// Z and Tau are the last confirmed point and its unit tangent.
	Z   *vec.Pair
	Tau *vec.Pair

	Converged bool
	ItNumber  int
	Step      int
	Ds        float64
	Theta     float64
	Stop      StopReason

	NUnstable     int
	NUnstablePrev int
	NImag         int
	NImagPrev     int
	Eigvals       []complex128
	Eigvecs       *mat.CDense
}

// Iterator drives predictor, corrector, stability bookkeeping and
// bifurcation detection, one confirmed branch point per Next call.
// It is single-threaded; nothing in it blocks.
type Iterator struct {
	prob Problem
	par  Params
	pred Predictor

	state  IterState
	branch *Branch
	// arcs accumulates arclength per confirmed point, for fold
	// interpolation.
	arcs []float64

	// Verbosity: 0 silent, 1 run summary, 2 per step. Out defaults to
	// stdout. Bisection forces silence.
	Verbosity int
	Out       io.Writer

	uLen      int
	nev       int
	bisecting bool
	done      bool
	err       error
}

// New validates the configuration, converges the initial point at p0 and
// bootstraps the first tangent from a small natural step.
func New(prob Problem, x0 vec.Vector, p0 float64, par Params, pred Predictor) (*Iterator, error) {
	if prob.F == nil {
		return nil, fmt.Errorf("%w: missing F", ErrInvalidConfig)
	}
	if err := par.Check(); err != nil {
		return nil, err
	}
	if pred == nil {
		pred = Secant{}
	}

	it := &Iterator{
		prob:   prob,
		par:    par,
		pred:   pred,
		branch: &Branch{},
		Out:    os.Stdout,
		uLen:   x0.Len(),
		nev:    par.Nev,
	}
	it.state.Ds = par.Ds
	it.state.Theta = par.Theta
	it.state.NUnstable = -1
	it.state.NUnstablePrev = -1

	// Bootstrap: converge at p0, then at p0 + ds/50, and take the secant.
	r0, err := it.solveFixed(x0, p0)
	if err != nil || !r0.Converged {
		return nil, fmt.Errorf("failed to converge initial guess at p=%g: %w", p0, errOr(err, ErrNoConvergence))
	}
	z0 := &vec.Pair{U: r0.X, P: p0}

	p1 := p0 + par.Ds/50
	r1, err := it.solveFixed(r0.X, p1)
	if err != nil || !r1.Converged {
		return nil, fmt.Errorf("failed to converge initial guess at p=%g: %w", p1, errOr(err, ErrNoConvergence))
	}
	z1 := &vec.Pair{U: r1.X, P: p1}

	// Secant tangent, oriented so that z + ds*tau travels forward
	// (tau carries sign(ds), like the Secant update rule).
	tau := z1.Copy()
	tau.Axpy(-1, z0)
	if it.metric().Normalize(tau) == 0 {
		// Degenerate secant (branch locally parameter-independent): fall
		// back to the pure parameter direction.
		tau = &vec.Pair{U: x0.Zero(), P: 1}
		it.metric().Normalize(tau)
	} else {
		tau.Scale(sign(par.Ds))
	}

	it.state.Z = z0
	it.state.Tau = tau

	// Step 0 always gets a spectrum.
	it.updateStability()
	it.record(r0.Iterations)

	return it, nil
}

// State returns the live iteration state.
func (it *Iterator) State() *IterState { return &it.state }

// Branch returns the record built so far.
func (it *Iterator) Branch() *Branch { return it.branch }

// Err reports the terminal error, if the run stopped on one.
func (it *Iterator) Err() error { return it.err }

func (it *Iterator) metric() vec.ThetaMetric {
	return vec.ThetaMetric{Theta: it.state.Theta, DotU: it.prob.DotU}
}

func (it *Iterator) xi() (xiU, xiP float64) {
	return it.state.Theta / float64(it.uLen), 1 - it.state.Theta
}

func (it *Iterator) bordered() linsolve.BorderedSolver {
	if it.par.Bordered != nil {
		return it.par.Bordered
	}
	return linsolve.Bordering{Inner: it.newtonSolver()}
}

func (it *Iterator) newtonSolver() linsolve.Solver {
	if it.par.Newton.Solver != nil {
		return it.par.Newton.Solver
	}
	return linsolve.LU{}
}

func (it *Iterator) jac(u vec.Vector, p float64) linsolve.Op {
	if it.prob.J != nil {
		return it.prob.J(u, p)
	}
	f := func(x vec.Vector) vec.Vector { return it.prob.F(x, p) }
	return linsolve.MatOp{M: linsolve.FDJacobian(f, u.(vec.Dense), it.par.FinDiffEps)}
}

func (it *Iterator) dpF(u vec.Vector, p float64) vec.Vector {
	if it.prob.DpF != nil {
		return it.prob.DpF(u, p)
	}
	return linsolve.FDParamDeriv(it.prob.F, u, p, it.par.FinDiffEps)
}

func (it *Iterator) printSol(u vec.Vector, p float64) float64 {
	if it.prob.PrintSolution != nil {
		return it.prob.PrintSolution(u, p)
	}
	return u.Norm()
}

func (it *Iterator) logf(format string, a ...any) {
	if it.Verbosity >= 2 && !it.bisecting {
		fmt.Fprintf(it.Out, format, a...)
	}
}

// Next advances the continuation by one confirmed step. It returns false
// when the run is over; consult State().Stop and Err() for the cause.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if it.state.Step >= it.par.MaxSteps {
		return it.stop(StopMaxSteps, nil)
	}

	zNew, iters, ok := it.attemptStep()
	if !ok {
		return false
	}

	// 3. Tangent update, then shift the confirmed point.
	tauNew, err := it.pred.Tangent(it, zNew)
	if err != nil {
		return it.stop(StopError, err)
	}
	it.state.TauNew = tauNew
	zPrev := it.state.Z
	tauPrev := it.state.Tau
	dsUsed := it.state.Ds
	it.state.Z = zNew
	it.state.Tau = tauNew
	it.state.Step++
	it.state.ItNumber = iters
	it.state.Converged = true

	// 4. Stability bookkeeping.
	if it.eigenDue() {
		it.updateStability()
	}
	it.record(iters)
	it.logf("step %4d  p=%+.6f  ds=%+.2e  it=%d  unstable=%d\n",
		it.state.Step, zNew.P, dsUsed, iters, it.state.NUnstable)

	// 5. Fold detection over the last three confirmed points.
	if it.par.DetectFold {
		it.detectFold()
	}

	// 6. Bifurcation detection on a change of the unstable dimension.
	if it.par.DetectBifurcation >= 1 &&
		it.state.NUnstablePrev >= 0 && it.state.NUnstable >= 0 &&
		it.state.NUnstable != it.state.NUnstablePrev {
		it.handleBifurcation(zPrev, tauPrev, dsUsed)
	}

	// Callbacks.
	if it.par.PlotEvery > 0 && it.prob.PlotSolution != nil && it.state.Step%it.par.PlotEvery == 0 {
		it.prob.PlotSolution(it.state.Z.U, it.state.Z.P)
	}
	if it.prob.FinaliseSolution != nil &&
		!it.prob.FinaliseSolution(it.state.Z, it.state.Tau, it.state.Step, it.branch) {
		return it.stop(StopUserAbort, nil)
	}

	// 7. Step and angle control.
	it.adaptStep(iters)
	it.rescaleTheta()

	// 8. Boundary halt.
	if it.state.Z.P < it.par.PMin || it.state.Z.P > it.par.PMax {
		return it.stop(StopBoundary, nil)
	}
	return true
}

// attemptStep runs predictor and corrector, halving ds on failure until it
// converges or bottoms out at dsMin.
func (it *Iterator) attemptStep() (*vec.Pair, int, bool) {
	for {
		zPred := it.pred.Predict(it)
		it.state.ZPred = zPred

		var (
			zNew    *vec.Pair
			iters   int
			conv    bool
			aborted bool
			err     error
		)
		if _, natural := it.pred.(Natural); natural {
			r, nerr := it.solveFixed(zPred.U, zPred.P)
			err = nerr
			if r != nil {
				zNew = &vec.Pair{U: r.X, P: zPred.P}
				iters, conv, aborted = r.Iterations, r.Converged, r.Aborted
			}
		} else {
			zNew, iters, conv, aborted, err = it.correct(zPred)
		}
		if aborted {
			it.stop(StopUserAbort, nil)
			return nil, 0, false
		}

		if conv && err == nil {
			return zNew, iters, true
		}

		// Convergence and linear-solve failures (a singular bordered
		// system included) are recoverable: halve ds and retry.
		if math.Abs(it.state.Ds) <= it.par.DsMin {
			if err == nil {
				err = ErrNoConvergence
			}
			it.stop(StopNewtonFailure, fmt.Errorf("step %d at dsMin=%g: %w", it.state.Step, it.par.DsMin, err))
			return nil, 0, false
		}
		it.state.Ds = it.par.clampDs(it.state.Ds / 2)
		it.logf("step %4d  corrector failed, retrying with ds=%+.2e\n", it.state.Step, it.state.Ds)
	}
}

// correct solves the extended system F(x,p) = 0, N(x,p) = 0 with the
// bordered strategy, starting from the prediction.
func (it *Iterator) correct(zPred *vec.Pair) (z *vec.Pair, iters int, conv, aborted bool, err error) {
	np := it.par.Newton
	tol := np.Tol
	if tol == 0 {
		tol = 1e-10
	}
	maxIter := np.MaxIter
	if maxIter == 0 {
		maxIter = 25
	}
	alpha0 := np.Alpha
	if alpha0 == 0 {
		alpha0 = 1
	}

	m := it.metric()
	zOld, tau, ds := it.state.Z, it.state.Tau, it.state.Ds

	constraint := func(z *vec.Pair) float64 {
		diff := z.Copy()
		diff.Axpy(-1, zOld)
		return m.Dot(diff, tau) - ds
	}
	resOf := func(fx vec.Vector, n float64) float64 {
		return math.Max(fx.Norm(), math.Abs(n))
	}

	z = zPred.Copy()
	fx := it.prob.F(z.U, z.P)
	n := constraint(z)
	res := resOf(fx, n)

	for k := 1; k <= maxIter; k++ {
		if res <= tol {
			return z, k - 1, true, false, nil
		}

		j := it.jac(z.U, z.P)
		dp := it.dpF(z.U, z.P)
		xiU, xiP := it.xi()
		du, dpp, serr := it.bordered().SolveBordered(j, dp, tau.U, tau.P, fx, n, xiU, xiP)
		if serr != nil {
			return z, k, false, false, serr
		}

		alpha := alpha0
		trial := z.Copy()
		trial.U.Axpy(-alpha, du)
		trial.P -= alpha * dpp
		fT := it.prob.F(trial.U, trial.P)
		nT := constraint(trial)
		resT := resOf(fT, nT)

		if np.LineSearch {
			for resT > res && alpha > np.AlphaMin {
				alpha /= 2
				trial = z.Copy()
				trial.U.Axpy(-alpha, du)
				trial.P -= alpha * dpp
				fT = it.prob.F(trial.U, trial.P)
				nT = constraint(trial)
				resT = resOf(fT, nT)
			}
		}

		z, fx, n, res = trial, fT, nT, resT
		if it.prob.NewtonCallback != nil &&
			!it.prob.NewtonCallback(newton.CallbackInfo{X: z, F: fx, Residual: res, Iter: k}) {
			return z, k, res <= tol, true, nil
		}
	}
	return z, maxIter, res <= tol, false, nil
}

// solveFixed runs plain Newton in u at a frozen parameter value.
func (it *Iterator) solveFixed(u0 vec.Vector, p float64) (*newton.Result, error) {
	f := func(x vec.Vector) vec.Vector { return it.prob.F(x, p) }
	var jac func(vec.Vector) linsolve.Op
	if it.prob.J != nil {
		jac = func(x vec.Vector) linsolve.Op { return it.prob.J(x, p) }
	}
	var opts *newton.Options
	if it.prob.NewtonCallback != nil {
		opts = &newton.Options{Callback: it.prob.NewtonCallback}
	}
	return newton.Solve(f, jac, u0, it.par.Newton, opts)
}

func (it *Iterator) eigenDue() bool {
	if !it.par.ComputeEigenValues || it.par.Eigen == nil {
		return false
	}
	every := it.par.SaveEigEvery
	if every <= 0 {
		every = 1
	}
	return it.state.Step%every == 0
}

// updateStability recomputes the spectrum at the confirmed point and
// shifts the (n_unstable, n_imag) pair. Eigen failure is recorded, not
// fatal: the counters go to -1 and detection is suppressed at this step.
func (it *Iterator) updateStability() {
	if !it.par.ComputeEigenValues || it.par.Eigen == nil {
		return
	}
	vals, vecs, err := it.spectrum(it.state.Z)
	it.state.NUnstablePrev = it.state.NUnstable
	it.state.NImagPrev = it.state.NImag
	if err != nil {
		it.state.NUnstable = -1
		it.state.NImag = -1
		it.state.Eigvals = nil
		it.state.Eigvecs = nil
		it.branch.Eigen = append(it.branch.Eigen, EigSnapshot{Step: it.state.Step})
		return
	}
	nU, nI := CountUnstable(vals, it.par.PrecisionStability)
	it.state.NUnstable = nU
	it.state.NImag = nI
	it.state.Eigvals = vals
	it.state.Eigvecs = vecs

	snap := EigSnapshot{Step: it.state.Step, Values: vals}
	if it.par.SaveEigenvectors {
		snap.Vectors = vecs
	}
	it.branch.Eigen = append(it.branch.Eigen, snap)
}

// spectrum asks the eigensolver for nev eigenvalues, growing the request
// whenever everything returned is unstable, so at least one stable
// eigenvalue anchors the count.
func (it *Iterator) spectrum(z *vec.Pair) ([]complex128, *mat.CDense, error) {
	j := it.jac(z.U, z.P)
	nev := it.nev
	for {
		eig, err := it.par.Eigen.Eigen(j, nev, linsolve.LargestReal)
		if err != nil {
			return nil, nil, err
		}
		nU, _ := CountUnstable(eig.Values, it.par.PrecisionStability)
		if nev > 0 && nev < it.uLen && nU == len(eig.Values) {
			nev = minInt(2*nev+2, it.uLen)
			it.nev = nev
			continue
		}
		return eig.Values, eig.Vectors, nil
	}
}

func (it *Iterator) record(iters int) {
	z := it.state.Z
	pt := Point{
		Step:        it.state.Step,
		Param:       z.P,
		PrintSol:    it.printSol(z.U, z.P),
		Norm:        z.U.Norm(),
		NewtonIters: iters,
		Ds:          it.state.Ds,
		Theta:       it.state.Theta,
		NUnstable:   it.state.NUnstable,
		NImag:       it.state.NImag,
		Stable:      it.state.NUnstable == 0,
	}
	it.branch.Points = append(it.branch.Points, pt)

	arc := 0.0
	if len(it.arcs) > 0 {
		arc = it.arcs[len(it.arcs)-1] + math.Abs(it.state.Ds)
	}
	it.arcs = append(it.arcs, arc)

	if it.par.SaveSolEvery > 0 && it.state.Step%it.par.SaveSolEvery == 0 {
		it.branch.Solutions = append(it.branch.Solutions, Solution{
			Step:  it.state.Step,
			Param: z.P,
			U:     z.U.Clone(),
		})
	}
}

// adaptStep grows the step after an easy correction, per the
// aggressiveness parameter.
func (it *Iterator) adaptStep(iters int) {
	if it.par.A == 0 {
		return
	}
	nmax := float64(it.par.Newton.MaxIter)
	if nmax == 0 {
		nmax = 25
	}
	fac := (nmax - float64(iters)) / nmax
	it.state.Ds = it.par.clampDs(it.state.Ds * (1 + it.par.A*fac*fac))
}

// rescaleTheta retunes the metric weight when the tangent becomes
// parameter dominated.
func (it *Iterator) rescaleTheta() {
	if !it.par.DoArcLengthScaling {
		return
	}
	tp := math.Abs(it.state.Tau.P)
	exp := it.par.TangentExponent
	if exp == 0 {
		exp = 1
	}
	if math.Pow(tp, exp)*it.state.Theta <= it.par.GMax || tp == 0 || tp >= 1 {
		return
	}
	g := it.par.GGoal
	theta := g / tp * math.Sqrt((1-g*g)/(1-tp*tp))
	it.state.Theta = math.Max(it.par.ThetaMin, math.Min(theta, 1-1e-3))
}

func (it *Iterator) stop(reason StopReason, err error) bool {
	it.done = true
	it.state.Stop = reason
	it.err = err
	if it.Verbosity >= 1 && !it.bisecting {
		fmt.Fprintf(it.Out, "continuation stopped after %d steps: %s\n", it.state.Step, reason)
	}
	return false
}

// Run drives an iterator to completion. The context is checked between
// steps; cancellation counts as a user abort and returns the partial
// branch.
func Run(ctx context.Context, prob Problem, x0 vec.Vector, p0 float64, par Params, pred Predictor) (*Branch, *vec.Pair, *vec.Pair, error) {
	it, err := New(prob, x0, p0, par, pred)
	if err != nil {
		return nil, nil, nil, err
	}
	for it.Next() {
		select {
		case <-ctx.Done():
			it.stop(StopUserAbort, nil)
		default:
		}
	}
	return it.branch, it.state.Z, it.state.Tau, it.err
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func errOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

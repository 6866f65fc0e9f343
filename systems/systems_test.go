package systems

import (
	"context"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/newton"
	"github.com/numkit/palc/periodic"
	"github.com/numkit/palc/vec"
)

func TestCubicBranch(t *testing.T) {
	g := NewWithT(t)

	c := NewCubic()
	par := cont.DefaultParams()
	par.Ds = -0.01
	par.DsMin = 1e-5
	par.DsMax = 0.02
	par.PMin = -1
	par.PMax = 4.1
	par.MaxSteps = 1500
	par.DetectFold = true

	br, _, _, err := cont.Run(context.Background(), c.Problem(), vec.Dense{0.8}, 1.0, par, cont.Secant{})
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(br.FoldPoints).NotTo(BeEmpty())

	fold := 2 / (3 * math.Sqrt(3))
	found := false
	for _, fp := range br.FoldPoints {
		if math.Abs(fp.Param-fold) < 1e-4 {
			found = true
		}
	}
	g.Expect(found).To(BeTrue(), "no fold near %.4f in %+v", fold, br.FoldPoints)
}

// The Chan problem folds back as the source term saturates.
func TestChanFold(t *testing.T) {
	g := NewWithT(t)

	c := NewChanBratu(30)
	par := cont.DefaultParams()
	par.Ds = 0.01
	par.DsMin = 1e-5
	par.DsMax = 0.05
	par.PMin = 0
	par.PMax = 4.1
	par.MaxSteps = 300
	par.DetectFold = true
	par.Newton.MaxIter = 30

	// The upper branch eventually outruns Newton; the fold is recorded
	// long before, so the terminal error does not matter here.
	br, _, _, _ := cont.Run(context.Background(), c.Problem(), c.InitialState(), 3.0, par, cont.Secant{})
	g.Expect(br).NotTo(BeNil())
	g.Expect(br.Points).NotTo(BeEmpty())
	g.Expect(br.FoldPoints).NotTo(BeEmpty(), "no fold detected")

	inRange := false
	for _, fp := range br.FoldPoints {
		if fp.Param > 2 && fp.Param < 4 {
			inRange = true
		}
	}
	g.Expect(inRange).To(BeTrue(), "fold outside (2,4): %+v", br.FoldPoints)
}

// brusselatorHopfs continues the trivial branch in the domain length and
// returns the branch; Hopf points appear where successive spatial modes
// lose stability.
func brusselatorHopfs(t *testing.T, n int, lMax float64) (*Brusselator1D, *cont.Branch) {
	t.Helper()
	br := NewBrusselator1D(n)

	par := cont.DefaultParams()
	par.Ds = 0.01
	par.DsMin = 1e-5
	par.DsMax = 0.03
	par.PMin = 0.2
	par.PMax = lMax
	par.MaxSteps = 400
	par.ComputeEigenValues = true
	par.Eigen = linsolve.DenseEigen{Vectors: true}
	par.SaveEigenvectors = true
	par.DetectBifurcation = 2
	par.DsMinBisection = 1e-6
	par.MaxBisectionSteps = 30
	par.Newton.Tol = 1e-9

	branch, _, _, err := cont.Run(context.Background(), br.Problem(), br.Equilibrium(), 0.3, par, cont.Secant{})
	if err != nil {
		t.Fatalf("brusselator continuation: %v", err)
	}
	return br, branch
}

// hopfOmega reads the crossing frequency out of the eigen snapshot at the
// bifurcation step: the pair closest to the imaginary axis.
func hopfOmega(branch *cont.Branch, bp cont.BifPoint) float64 {
	for _, snap := range branch.Eigen {
		if snap.Step != bp.Step {
			continue
		}
		best, bestRe := 0.0, math.Inf(1)
		for _, v := range snap.Values {
			if im := math.Abs(imag(v)); im > 0 && math.Abs(real(v)) < bestRe {
				bestRe = math.Abs(real(v))
				best = im
			}
		}
		return best
	}
	return 0
}

// The linearization at the homogeneous state destabilizes mode k at
// l_k = k*pi*sqrt((D1+D2)/(B-1-A^2)), all with frequency
// omega = sqrt(det) = 2.14 for the default coefficients.
func TestBrusselatorHopfLadder(t *testing.T) {
	if testing.Short() {
		t.Skip("dense eigensolves along a long branch")
	}
	g := NewWithT(t)

	_, branch := brusselatorHopfs(t, 40, 1.9)

	hopfs := make([]cont.BifPoint, 0)
	for _, bp := range branch.BifPoints {
		if bp.Type == cont.BifHopf {
			hopfs = append(hopfs, bp)
		}
	}
	g.Expect(len(hopfs)).To(BeNumerically(">=", 3), "hopf ladder: %+v", branch.BifPoints)

	l1 := math.Pi * math.Sqrt((0.008+0.004)/(5.45-1-4))
	g.Expect(hopfs[0].Param).To(BeNumerically("~", l1, 0.03))
	g.Expect(hopfs[0].Status).To(Equal(cont.StatusConverged))

	omega := hopfOmega(branch, hopfs[0])
	g.Expect(omega).To(BeNumerically("~", 2.14, 0.05))
}

// A periodic orbit grows out of the first Hopf point; the trapezoidal
// functional must converge onto it with the period the eigenvalues
// predict.
func TestBrusselatorOrbitFromHopf(t *testing.T) {
	if testing.Short() {
		t.Skip("dense factorization of the full orbit system")
	}
	g := NewWithT(t)

	brus, branch := brusselatorHopfs(t, 16, 0.7)

	var hopf *cont.BifPoint
	for i := range branch.BifPoints {
		if branch.BifPoints[i].Type == cont.BifHopf {
			hopf = &branch.BifPoints[i]
			break
		}
	}
	g.Expect(hopf).NotTo(BeNil(), "no hopf before l=0.7: %+v", branch.BifPoints)

	// Eigenpair of the crossing at the detection step.
	var vr, vi vec.Dense
	omega := hopfOmega(branch, *hopf)
	for _, snap := range branch.Eigen {
		if snap.Step != hopf.Step || snap.Vectors == nil {
			continue
		}
		rows, _ := snap.Vectors.Dims()
		vr = make(vec.Dense, rows)
		vi = make(vec.Dense, rows)
		for k := 0; k < rows; k++ {
			w := snap.Vectors.At(k, hopf.IndBif)
			vr[k] = real(w)
			vi[k] = imag(w)
		}
	}
	g.Expect(vr).NotTo(BeNil())
	g.Expect(omega).To(BeNumerically(">", 0))

	// Rescale the eigenpair to unit sup norm so the amplitude is a state
	// amplitude, not a unit-2-norm artifact.
	scale := vr.Norm()
	if n := vi.Norm(); n > scale {
		scale = n
	}
	vr.Scale(1 / scale)
	vi.Scale(1 / scale)

	const m = 21
	tp := &periodic.TrapProblem{
		F:     brus.F,
		J:     brus.J,
		UHopf: brus.Equilibrium(),
		M:     m,
	}
	np := newton.DefaultParams()
	np.Tol = 1e-8
	np.MaxIter = 40
	np.LineSearch = true

	// The criticality side is not part of the claim: the orbit lives on
	// whichever side of the Hopf point the equilibrium is unstable on for
	// this mode; try both.
	var y vec.Dense
	for _, l := range []float64{hopf.Param + 0.05, hopf.Param - 0.05} {
		y0, phi := periodic.GuessFromHopf(brus.Equilibrium(), vr, vi, omega, 1.0, m)
		tp.Phi = phi
		res, err := newton.Solve(
			func(yv vec.Vector) vec.Vector { return tp.Residual(yv, l) },
			func(yv vec.Vector) linsolve.Op { return tp.JacVecAt(yv, l) },
			y0, np, nil)
		if err == nil && res.Converged && tp.Amplitude(res.X.(vec.Dense)) > 0.05 {
			y = res.X.(vec.Dense)
			break
		}
	}
	g.Expect(y).NotTo(BeNil(), "no periodic orbit on either side of the Hopf point")
	g.Expect(tp.Period(y)).To(BeNumerically("~", 2*math.Pi/omega, 0.4))
}

package newton

import (
	"math"
	"testing"

	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/vec"
)

// Roots of x^2 - 4 at +-2.
func quad(x vec.Vector) vec.Vector {
	d := x.(vec.Dense)
	return vec.Dense{d[0]*d[0] - 4}
}

func quadJac(x vec.Vector) linsolve.Op {
	d := x.(vec.Dense)
	return linsolve.FuncOp(func(v vec.Vector) vec.Vector {
		return vec.Dense{2 * d[0] * v.(vec.Dense)[0]}
	})
}

func TestNewtonQuadratic(t *testing.T) {
	res, err := Solve(quad, quadJac, vec.Dense{3}, DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Fatalf("did not converge, residuals %v", res.Residuals)
	}
	if got := res.X.(vec.Dense)[0]; math.Abs(got-2) > 1e-8 {
		t.Errorf("root = %f, want 2", got)
	}
	if res.Iterations == 0 || res.Iterations > 10 {
		t.Errorf("iterations = %d", res.Iterations)
	}
	// Residual history is monotone for this convex problem.
	for i := 1; i < len(res.Residuals); i++ {
		if res.Residuals[i] > res.Residuals[i-1] {
			t.Errorf("residual grew at %d: %v", i, res.Residuals)
		}
	}
}

func TestNewtonFDJacobianFallback(t *testing.T) {
	res, err := Solve(quad, nil, vec.Dense{1.5}, DefaultParams(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Fatal("fd fallback did not converge")
	}
	if got := res.X.(vec.Dense)[0]; math.Abs(got-2) > 1e-6 {
		t.Errorf("root = %f, want 2", got)
	}
}

func TestNewtonMaxIterNoError(t *testing.T) {
	p := DefaultParams()
	p.MaxIter = 2
	p.Tol = 1e-14
	res, err := Solve(quad, quadJac, vec.Dense{50}, p, nil)
	if err != nil {
		t.Fatalf("iteration cap must not be an error: %v", err)
	}
	if res.Converged {
		t.Fatal("cannot converge from 50 in 2 iterations")
	}
	if res.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", res.Iterations)
	}
}

func TestNewtonCallbackAbort(t *testing.T) {
	calls := 0
	opts := &Options{Callback: func(info CallbackInfo) bool {
		calls++
		return false
	}}
	res, err := Solve(quad, quadJac, vec.Dense{3}, DefaultParams(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Aborted {
		t.Fatal("expected aborted result")
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}

func TestNewtonLineSearch(t *testing.T) {
	// atan has a basin where full Newton overshoots; damping recovers.
	f := func(x vec.Vector) vec.Vector {
		return vec.Dense{math.Atan(x.(vec.Dense)[0])}
	}
	j := func(x vec.Vector) linsolve.Op {
		d := x.(vec.Dense)
		return linsolve.FuncOp(func(v vec.Vector) vec.Vector {
			return vec.Dense{v.(vec.Dense)[0] / (1 + d[0]*d[0])}
		})
	}
	p := DefaultParams()
	p.LineSearch = true
	p.MaxIter = 60
	res, err := Solve(f, j, vec.Dense{2}, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Converged {
		t.Fatalf("line-search newton did not converge: %v", res.Residuals)
	}
	if got := res.X.(vec.Dense)[0]; math.Abs(got) > 1e-8 {
		t.Errorf("root = %f, want 0", got)
	}
}

func TestDeflationFindsSecondRoot(t *testing.T) {
	// Converge to +2 first, deflate it, start from the same side and land
	// on -2.
	first, err := Solve(quad, quadJac, vec.Dense{3}, DefaultParams(), nil)
	if err != nil || !first.Converged {
		t.Fatal("first root failed")
	}

	defl := NewDeflation(2, 1, first.X)
	p := DefaultParams()
	p.LineSearch = true
	p.MaxIter = 100
	second, err := SolveDeflated(quad, quadJac, defl, vec.Dense{3}, p, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Converged {
		t.Fatalf("deflated newton did not converge: %v", second.Residuals)
	}
	if got := second.X.(vec.Dense)[0]; math.Abs(got+2) > 1e-6 {
		t.Errorf("deflated root = %f, want -2", got)
	}
}

func TestDeflationStack(t *testing.T) {
	d := NewDeflation(1, 1, vec.Dense{1})
	d.Push(vec.Dense{2})
	if d.Len() != 2 {
		t.Fatalf("len = %d", d.Len())
	}
	d.Pop()
	if d.Len() != 1 {
		t.Fatalf("len after pop = %d", d.Len())
	}
	// Far from the root M tends to 1 + shift/dist^2p.
	if m := d.Eval(vec.Dense{100}); m < 1 || m > 1.01 {
		t.Errorf("M far from root = %f", m)
	}
	// Near the root M blows up.
	if m := d.Eval(vec.Dense{1.001}); m < 1e5 {
		t.Errorf("M near root = %f, want large", m)
	}
}

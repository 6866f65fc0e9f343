package vec

import (
	"math"
	"testing"
)

func TestDenseOps(t *testing.T) {
	x := Dense{1, 2, 3}
	y := Dense{4, 5, 6}

	y.Axpy(2, x)
	want := Dense{6, 9, 12}
	for i := range want {
		if math.Abs(y[i]-want[i]) > 1e-14 {
			t.Errorf("axpy[%d] = %f, want %f", i, y[i], want[i])
		}
	}

	y.Axpby(1, x, -1)
	want = Dense{-5, -7, -9}
	for i := range want {
		if math.Abs(y[i]-want[i]) > 1e-14 {
			t.Errorf("axpby[%d] = %f, want %f", i, y[i], want[i])
		}
	}

	if n := x.Norm(); n != 3 {
		t.Errorf("inf norm = %f, want 3", n)
	}
	if d := x.Dot(Dense{1, 1, 1}); d != 6 {
		t.Errorf("dot = %f, want 6", d)
	}
}

func TestDenseCloneIndependent(t *testing.T) {
	x := Dense{1, 2}
	c := x.Clone().(Dense)
	c[0] = 99
	if x[0] != 1 {
		t.Fatal("clone shares backing array")
	}
}

func TestPairArithmetic(t *testing.T) {
	a := &Pair{U: Dense{1, 0}, P: 2}
	b := &Pair{U: Dense{0, 1}, P: 3}

	a.Axpy(2, b)
	if a.P != 8 {
		t.Errorf("p after axpy = %f, want 8", a.P)
	}
	u := a.U.(Dense)
	if u[0] != 1 || u[1] != 2 {
		t.Errorf("u after axpy = %v, want [1 2]", u)
	}

	if got := a.Norm(); got != 8 {
		t.Errorf("pair norm = %f, want 8 (max of component norms)", got)
	}
	if got := a.Len(); got != 3 {
		t.Errorf("pair len = %d, want 3", got)
	}
}

func TestThetaMetric(t *testing.T) {
	m := ThetaMetric{Theta: 0.5}
	z := &Pair{U: Dense{2, 2, 2, 2}, P: 3}

	// 0.5/4 * 16 + 0.5 * 9 = 2 + 4.5
	if got := m.Dot(z, z); math.Abs(got-6.5) > 1e-14 {
		t.Errorf("theta dot = %f, want 6.5", got)
	}

	n := m.Normalize(z)
	if math.Abs(n-math.Sqrt(6.5)) > 1e-14 {
		t.Errorf("pre-normalization norm = %f", n)
	}
	if got := m.Norm(z); math.Abs(got-1) > 1e-12 {
		t.Errorf("normalized theta norm = %f, want 1", got)
	}
}

func TestThetaMetricCustomDot(t *testing.T) {
	m := ThetaMetric{
		Theta: 0.5,
		DotU:  func(x, y Vector) float64 { return 2 * x.Dot(y) },
	}
	z := &Pair{U: Dense{1}, P: 0}
	if got := m.Dot(z, z); math.Abs(got-1) > 1e-14 {
		t.Errorf("custom dot = %f, want 1", got)
	}
}

func TestStacked(t *testing.T) {
	s := Stacked{Dense{1, 2}, Dense{3}}
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	w := s.Clone().(Stacked)
	w.Scale(2)
	if s[0].(Dense)[0] != 1 {
		t.Fatal("clone shares storage")
	}
	if got := w.Dot(w); math.Abs(got-56) > 1e-14 {
		t.Errorf("dot = %f, want 56", got)
	}
	if got := w.Norm(); got != 6 {
		t.Errorf("norm = %f, want 6", got)
	}
}

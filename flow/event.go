package flow

import (
	"errors"
	"fmt"

	"github.com/numkit/palc/vec"
)

// ErrNoCrossing indicates no section crossing within the time horizon.
var ErrNoCrossing = errors.New("flow: no section crossing before the horizon")

// Section is an affine hyperplane {x : <Normal, x - Center> = 0} used for
// Poincare maps and phase conditions.
type Section struct {
	Normal vec.Dense
	Center vec.Dense
}

// Value is the signed distance function of the section.
func (s Section) Value(x vec.Dense) float64 {
	d := x.Clone().(vec.Dense)
	d.Axpy(-1, s.Center)
	return s.Normal.Dot(d)
}

// Project drops the component of x along the normal, keeping the point on
// the section.
func (s Section) Project(x vec.Dense) vec.Dense {
	n2 := s.Normal.Dot(s.Normal)
	out := x.Clone().(vec.Dense)
	out.Axpy(-s.Value(x)/n2, s.Normal)
	return out
}

// FirstCrossing integrates the field from x until the trajectory first
// strictly crosses the section, then bisects the bracketing step down to
// tTol. Direction +1 accepts only negative-to-positive crossings, -1 the
// opposite, 0 either. The first strict crossing wins: a trajectory that
// starts on the section must leave it before a crossing is reported.
func FirstCrossing(f Field, st Stepper, x vec.Dense, p float64, dt, tMax, tTol float64, sec Section, direction int) (vec.Dense, float64, error) {
	if tTol <= 0 {
		tTol = 1e-10
	}
	y := x.Clone().(vec.Dense)
	t := 0.0
	v := sec.Value(y)
	armed := v != 0

	for t < tMax {
		yNext := st.Step(f, y, p, t, dt)
		vNext := sec.Value(yNext)

		if !armed {
			// Starting on the section: wait until we are strictly off it.
			armed = vNext != 0
		} else if v*vNext < 0 && directionOK(v, direction) {
			xc, tc := bisectCrossing(f, st, y, p, t, dt, v, sec, tTol)
			return xc, tc, nil
		}

		y, v = yNext, vNext
		t += dt
	}
	return nil, 0, fmt.Errorf("after t=%g: %w", tMax, ErrNoCrossing)
}

func directionOK(before float64, direction int) bool {
	switch direction {
	case +1:
		return before < 0
	case -1:
		return before > 0
	}
	return true
}

// bisectCrossing refines the crossing time inside [t, t+dt], where the
// section value changes sign.
func bisectCrossing(f Field, st Stepper, y vec.Dense, p, t, dt, vLeft float64, sec Section, tTol float64) (vec.Dense, float64) {
	lo, hi := 0.0, dt
	for hi-lo > tTol {
		mid := (lo + hi) / 2
		ym := st.Step(f, y, p, t, mid)
		if vm := sec.Value(ym); vm == 0 {
			return ym, t + mid
		} else if (vm < 0) == (vLeft < 0) {
			lo = mid
		} else {
			hi = mid
		}
	}
	xc := st.Step(f, y, p, t, hi)
	return xc, t + hi
}

package flow

import (
	"errors"
	"fmt"

	"github.com/numkit/palc/vec"
)

// Field is an autonomous vector field dx/dt = f(x, p) with a scalar
// parameter. The time argument is carried for forced systems; autonomous
// fields ignore it.
type Field func(x vec.Dense, p float64, t float64) vec.Dense

// Stepper advances a state by one time step.
type Stepper interface {
	Step(f Field, x vec.Dense, p float64, t, dt float64) vec.Dense
}

// AdaptiveStepper additionally estimates the local error and proposes the
// next step size.
type AdaptiveStepper interface {
	Stepper
	StepAdaptive(f Field, x vec.Dense, p float64, t, dt, tol float64) (vec.Dense, float64, error)
}

// ErrStepTooSmall indicates adaptive stepping collapsed below its floor.
var ErrStepTooSmall = errors.New("flow: adaptive step below minimum")

// Flow integrates the field from x over [0, T] with a fixed-step method,
// shortening the last step to land exactly on T. Negative T integrates
// backwards.
func Flow(f Field, st Stepper, x vec.Dense, p, T, dt float64) vec.Dense {
	if T == 0 {
		return x.Clone().(vec.Dense)
	}
	if (T < 0) != (dt < 0) {
		dt = -dt
	}
	y := x.Clone().(vec.Dense)
	t := 0.0
	for {
		remaining := T - t
		if remaining == 0 {
			return y
		}
		step := dt
		if (step > 0 && step > remaining) || (step < 0 && step < remaining) {
			step = remaining
		}
		y = st.Step(f, y, p, t, step)
		t += step
	}
}

// FlowAdaptive integrates with error control, for stiff stretches where a
// fixed step wastes work or loses the orbit.
func FlowAdaptive(f Field, st AdaptiveStepper, x vec.Dense, p, T, tol float64) (vec.Dense, error) {
	if T == 0 {
		return x.Clone().(vec.Dense), nil
	}
	const minStep = 1e-12
	y := x.Clone().(vec.Dense)
	t := 0.0
	dt := T / 100
	for (T > 0 && t < T) || (T < 0 && t > T) {
		if abs(dt) < minStep {
			return y, fmt.Errorf("at t=%g: %w", t, ErrStepTooSmall)
		}
		step := dt
		if (step > 0 && t+step > T) || (step < 0 && t+step < T) {
			step = T - t
		}
		next, dtNew, err := st.StepAdaptive(f, y, p, t, step, tol)
		if err != nil {
			return y, err
		}
		y = next
		t += step
		dt = dtNew
	}
	return y, nil
}

// JacVec approximates the derivative of the time-T flow map along v by a
// forward difference: (phi(x + h v) - phi(x)) / h.
func JacVec(f Field, st Stepper, x vec.Dense, p, T, dt float64, v vec.Dense, eps float64) vec.Dense {
	if eps == 0 {
		eps = 1e-7
	}
	h := eps * (1 + x.Norm())
	xp := x.Clone().(vec.Dense)
	xp.Axpy(h, v)
	out := Flow(f, st, xp, p, T, dt)
	out.Axpy(-1, Flow(f, st, x, p, T, dt))
	out.Scale(1 / h)
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

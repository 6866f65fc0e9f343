package flow

import "github.com/numkit/palc/vec"

// RK4 is the classical fourth-order Runge-Kutta stepper.
type RK4 struct {
	scratch vec.Dense
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.scratch) != n {
		r.scratch = make(vec.Dense, n)
	}
}

func (r *RK4) Step(f Field, x vec.Dense, p float64, t, dt float64) vec.Dense {
	n := len(x)
	r.ensureScratch(n)

	k1 := f(x, p, t)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*k1[i]
	}
	k2 := f(r.scratch, p, t+dt*0.5)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*0.5*k2[i]
	}
	k3 := f(r.scratch, p, t+dt*0.5)

	for i := 0; i < n; i++ {
		r.scratch[i] = x[i] + dt*k3[i]
	}
	k4 := f(r.scratch, p, t+dt)

	result := make(vec.Dense, n)
	dt6 := dt / 6.0
	for i := 0; i < n; i++ {
		result[i] = x[i] + dt6*(k1[i]+2*k2[i]+2*k3[i]+k4[i])
	}
	return result
}

// Package flow provides the time integration the shooting functionals are
// built on: fixed-step RK4, adaptive Dormand-Prince RK45, flow maps and
// their directional derivatives, and section-crossing detection for
// Poincare maps.
package flow

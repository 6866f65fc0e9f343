// Package cont implements pseudo-arclength continuation of parameter
// dependent equations F(x, p) = 0, with stability tracking and bifurcation
// detection.
//
//   - [Params]: immutable run configuration
//   - [Problem]: the user functions (F mandatory, the rest optional)
//   - [Iterator]: the step-wise state machine; [Run] drives it to the end
//   - [Natural], [Secant], [BorderedPredictor]: predictor strategies
//   - [Branch], [BifPoint]: the append-only run record
//
// A minimal run:
//
//	prob := cont.Problem{F: f, J: j}
//	par := cont.DefaultParams()
//	br, z, tau, err := cont.Run(ctx, prob, x0, p0, par, cont.Secant{})
//
// The iterator recovers from corrector failures by halving the arclength
// step; it stops cleanly at the parameter boundary, on the step budget, or
// when a callback returns false. Bifurcations are detected from jumps in
// the number of unstable eigenvalues and localized by bisection in
// arclength when DetectBifurcation is 2.
//
// # Thread safety
//
// An Iterator is NOT safe for concurrent use. It owns its IterState
// exclusively and appends to its Branch in strict step order.
package cont

// Package periodic provides the extended functionals that turn a periodic
// orbit into a zero-finding problem the continuation engine can drive:
//
//   - [TrapProblem]: implicit trapezoidal finite differences over M slices
//   - [ShootingProblem]: standard single/multiple shooting on a flow
//   - [PoincareProblem]: shooting between hyperplane sections, one
//     dimension smaller per section, period as a by-product
//
// Each exposes a residual, a matrix-free Jacobian action, a monodromy
// operator for Floquet analysis, and an adapter to [cont.Problem].
// [GuessFromHopf] seeds the first orbit from a Hopf point;
// [CycleDetector] watches the multipliers along a branch for fold of
// cycle, period doubling, and Neimark-Sacker crossings.
package periodic

// Package linsolve provides the linear algebra the continuation engine
// consumes: operator abstraction, direct and Krylov solvers, the dense
// eigensolver, finite-difference fallbacks, and the bordered solvers for
// the arclength-augmented system.
//
//   - [Op]: action of a Jacobian on a vector; [Materializer] for assembly
//   - [LU]: direct dense solver on gonum
//   - [BiCGStab]: matrix-free Krylov solver
//   - [DenseEigen]: full eigendecomposition, ordered by [Which]
//   - [Bordering], [FullMatrix], [MatrixFree]: the three bordered strategies
//
// Users plug their own [Solver] or [EigenSolver] when the built-in dense
// ones do not fit (sparse factorizations, Arnoldi solvers, GPU backends).
package linsolve

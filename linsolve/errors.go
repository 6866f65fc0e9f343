package linsolve

import "errors"

// Domain errors for linear and eigen solves.
var (
	// ErrBorderedSingular indicates the bordering denominator underflowed.
	ErrBorderedSingular = errors.New("linsolve: bordered system singular")

	// ErrNotMaterializable indicates a direct solver was handed an operator
	// with no matrix form and no dense action to sweep.
	ErrNotMaterializable = errors.New("linsolve: operator cannot be materialized")

	// ErrSingular indicates the factorization found the matrix singular.
	ErrSingular = errors.New("linsolve: matrix is singular to working precision")

	// ErrKrylovBreakdown indicates a breakdown (rho or omega vanished) in
	// the BiCGStab recurrence.
	ErrKrylovBreakdown = errors.New("linsolve: krylov method breakdown")

	// ErrNoConvergence indicates the iterative method hit its iteration cap.
	ErrNoConvergence = errors.New("linsolve: iteration limit reached")

	// ErrEigenFailure indicates the eigensolver did not converge.
	ErrEigenFailure = errors.New("linsolve: eigendecomposition failed")
)

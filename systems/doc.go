// Package systems provides the example problems the demo CLI and the
// end-to-end tests drive:
//
//   - [Cubic]: scalar nullcline with two folds
//   - [ChanBratu]: Bratu-like boundary value problem with a fold
//   - [Brusselator1D]: reaction-diffusion system with a ladder of Hopf
//     points in the domain length
package systems

// Package extended implements the defining systems that pin codimension-1
// bifurcations as regular solutions of a larger problem: [FoldProblem] and
// [HopfProblem], with Newton refiners ([NewtonFold], [NewtonHopf]) and
// two-parameter continuation of the located points ([ContinuationFold],
// [ContinuationHopf]).
package extended

// Package viz renders continuation branches in the terminal: static
// diagrams via asciigraph and a live bubbletea view for watching a run.
package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/numkit/palc/cont"
)

// BranchASCII plots printSolution against the step index and annotates the
// special points underneath.
func BranchASCII(br *cont.Branch, width, height int) string {
	if br == nil || len(br.Points) == 0 {
		return "(empty branch)"
	}
	graph := asciigraph.Plot(br.PrintSols(),
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption(fmt.Sprintf("printsol over %d steps, p in [%.4g, %.4g]",
			br.Len(), minOf(br.Params()), maxOf(br.Params()))),
	)

	var b strings.Builder
	b.WriteString(graph)
	b.WriteString("\n")
	for _, fp := range br.FoldPoints {
		fmt.Fprintf(&b, "  fold  p=%.6g  step %d  (%s)\n", fp.Param, fp.Step, fp.Status)
	}
	for _, bp := range br.BifPoints {
		fmt.Fprintf(&b, "  %-5s p=%.6g  step %d  (%s)\n", bp.Type, bp.Param, bp.Step, bp.Status)
	}
	return b.String()
}

// EigenASCII plots the real part of the k-th eigenvalue along the branch,
// one point per snapshot; handy for watching a pair walk across the axis.
func EigenASCII(br *cont.Branch, k, width, height int) string {
	if len(br.Eigen) == 0 {
		return "(no eigen snapshots)"
	}
	series := make([]float64, 0, len(br.Eigen))
	for _, snap := range br.Eigen {
		if k < len(snap.Values) {
			series = append(series, real(snap.Values[k]))
		}
	}
	if len(series) == 0 {
		return "(no eigen snapshots)"
	}
	return asciigraph.Plot(series,
		asciigraph.Width(width),
		asciigraph.Height(height),
		asciigraph.Caption(fmt.Sprintf("Re(lambda_%d) along the branch", k)),
	)
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	return m
}

package storage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/vec"
)

func sampleBranch() *cont.Branch {
	return &cont.Branch{
		Points: []cont.Point{
			{Step: 0, Param: 1.0, PrintSol: 0.8, Norm: 0.8, Ds: -0.01, Theta: 0.5, Stable: true},
			{Step: 1, Param: 0.99, PrintSol: 0.81, Norm: 0.81, NewtonIters: 2, Ds: -0.01, Theta: 0.5, Stable: true},
		},
		FoldPoints: []cont.BifPoint{
			{Type: cont.BifFold, Param: 0.3849, Step: 1, Status: cont.StatusGuess},
		},
		Solutions: []cont.Solution{
			{Step: 0, Param: 1.0, U: vec.Dense{0.8}},
			{Step: 1, Param: 0.99, U: vec.Dense{0.81}},
		},
	}
}

func TestSaveAndList(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	id, err := st.Save("fold", sampleBranch())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := st.List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "fold", runs[0].System)
	assert.Equal(t, 2, runs[0].Steps)
	require.Len(t, runs[0].FoldPoints, 1)
	assert.Equal(t, "fold", runs[0].FoldPoints[0].Type)
	assert.Equal(t, "guess", runs[0].FoldPoints[0].Status)
}

func TestBranchCSV(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	require.NoError(t, st.Init())

	id, err := st.Save("fold", sampleBranch())
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, id, "branch.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 points
	assert.Equal(t, "step", rows[0][0])
	assert.Equal(t, "1", rows[2][0])
}

func TestSolutionsRoundTrip(t *testing.T) {
	st := New(t.TempDir())
	require.NoError(t, st.Init())

	id, err := st.Save("fold", sampleBranch())
	require.NoError(t, err)

	recs, err := st.LoadSolutions(id)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 0.8, recs[0].U[0])
	assert.Equal(t, 0.99, recs[1].Param)
}

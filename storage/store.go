// Package storage persists continuation branches: one directory per run
// with a JSON summary (metadata, bifurcation and fold points) and a CSV of
// the branch rows, plus the saved solutions as JSON records {u, p, step}.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/vec"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

// BranchMetadata is the JSON summary of a saved run.
type BranchMetadata struct {
	ID        string    `json:"id"`
	System    string    `json:"system"`
	Timestamp time.Time `json:"timestamp"`
	Steps     int       `json:"steps"`

	BifPoints  []PointMetadata `json:"bif_points"`
	FoldPoints []PointMetadata `json:"fold_points"`
}

// PointMetadata summarizes a special point.
type PointMetadata struct {
	Type   string  `json:"type"`
	Status string  `json:"status"`
	Param  float64 `json:"param"`
	Step   int     `json:"step"`
}

// SolutionRecord is one saved solution in solutions.json.
type SolutionRecord struct {
	Step  int       `json:"step"`
	Param float64   `json:"p"`
	U     []float64 `json:"u"`
}

func points(in []cont.BifPoint) []PointMetadata {
	out := make([]PointMetadata, len(in))
	for i, bp := range in {
		out[i] = PointMetadata{
			Type:   bp.Type.String(),
			Status: bp.Status.String(),
			Param:  bp.Param,
			Step:   bp.Step,
		}
	}
	return out
}

// Save writes a branch under a fresh run directory and returns the run ID.
func (s *Store) Save(system string, br *cont.Branch) (string, error) {
	runID := fmt.Sprintf("%s_%d", system, time.Now().UnixNano())
	runDir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := BranchMetadata{
		ID:         runID,
		System:     system,
		Timestamp:  time.Now(),
		Steps:      br.Len(),
		BifPoints:  points(br.BifPoints),
		FoldPoints: points(br.FoldPoints),
	}
	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()
	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "branch.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()
	w := csv.NewWriter(csvFile)
	defer w.Flush()

	header := []string{"step", "p", "printsol", "norm", "newton_iters", "ds", "theta", "n_unstable", "n_imag", "stable"}
	if err := w.Write(header); err != nil {
		return "", err
	}
	for _, pt := range br.Points {
		row := []string{
			strconv.Itoa(pt.Step),
			strconv.FormatFloat(pt.Param, 'g', 12, 64),
			strconv.FormatFloat(pt.PrintSol, 'g', 12, 64),
			strconv.FormatFloat(pt.Norm, 'g', 12, 64),
			strconv.Itoa(pt.NewtonIters),
			strconv.FormatFloat(pt.Ds, 'g', 8, 64),
			strconv.FormatFloat(pt.Theta, 'g', 8, 64),
			strconv.Itoa(pt.NUnstable),
			strconv.Itoa(pt.NImag),
			strconv.FormatBool(pt.Stable),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	if len(br.Solutions) > 0 {
		if err := s.saveSolutions(runDir, br.Solutions); err != nil {
			return "", err
		}
	}
	return runID, nil
}

func (s *Store) saveSolutions(runDir string, sols []cont.Solution) error {
	recs := make([]SolutionRecord, 0, len(sols))
	for _, sol := range sols {
		d, ok := sol.U.(vec.Dense)
		if !ok {
			// Non-dense states need a user serializer; skip them rather
			// than guess a layout.
			continue
		}
		recs = append(recs, SolutionRecord{Step: sol.Step, Param: sol.Param, U: d})
	}
	f, err := os.Create(filepath.Join(runDir, "solutions.json"))
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(recs)
}

// List returns the metadata of every saved run, newest first.
func (s *Store) List() ([]BranchMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	out := make([]BranchMetadata, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, e.Name(), "metadata.json"))
		if err != nil {
			continue
		}
		var meta BranchMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// LoadSolutions reads back the saved solutions of a run.
func (s *Store) LoadSolutions(runID string) ([]SolutionRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "solutions.json"))
	if err != nil {
		return nil, err
	}
	var recs []SolutionRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

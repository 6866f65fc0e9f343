package viz

import (
	"strings"
	"testing"

	"github.com/numkit/palc/cont"
)

func demoBranch() *cont.Branch {
	br := &cont.Branch{}
	for i := 0; i < 20; i++ {
		br.Points = append(br.Points, cont.Point{
			Step:     i,
			Param:    1 - 0.01*float64(i),
			PrintSol: 0.8 + 0.02*float64(i),
		})
	}
	br.FoldPoints = append(br.FoldPoints, cont.BifPoint{
		Type: cont.BifFold, Param: 0.3849, Step: 10, Status: cont.StatusGuess,
	})
	br.Eigen = append(br.Eigen,
		cont.EigSnapshot{Step: 0, Values: []complex128{complex(-1, 0)}},
		cont.EigSnapshot{Step: 1, Values: []complex128{complex(-0.5, 0)}},
	)
	return br
}

func TestBranchASCII(t *testing.T) {
	out := BranchASCII(demoBranch(), 40, 8)
	if !strings.Contains(out, "fold") {
		t.Errorf("fold annotation missing:\n%s", out)
	}
	if !strings.Contains(out, "20 steps") {
		t.Errorf("caption missing:\n%s", out)
	}
}

func TestBranchASCIIEmpty(t *testing.T) {
	if out := BranchASCII(&cont.Branch{}, 40, 8); !strings.Contains(out, "empty") {
		t.Errorf("empty branch output: %q", out)
	}
}

func TestEigenASCII(t *testing.T) {
	out := EigenASCII(demoBranch(), 0, 40, 6)
	if !strings.Contains(out, "Re(lambda_0)") {
		t.Errorf("caption missing:\n%s", out)
	}
	if out := EigenASCII(&cont.Branch{}, 0, 40, 6); !strings.Contains(out, "no eigen") {
		t.Errorf("empty snapshot output: %q", out)
	}
}

func TestLiveModelUpdates(t *testing.T) {
	ch := make(chan Snapshot, 2)
	m := NewLive("fold", ch)

	ch <- Snapshot{Step: 1, Param: 0.99, PrintSol: 0.82, Event: "fold near p=0.3849"}
	next, _ := m.Update(Snapshot{Step: 1, Param: 0.99, PrintSol: 0.82, Event: "fold near p=0.3849"})
	lm := next.(LiveModel)
	if len(lm.series) != 1 || len(lm.events) != 1 {
		t.Fatalf("series %d events %d", len(lm.series), len(lm.events))
	}

	next, _ = lm.Update(Snapshot{Done: true, Stop: "parameter boundary"})
	lm = next.(LiveModel)
	if !lm.done {
		t.Fatal("done flag not set")
	}
	if !strings.Contains(lm.View(), "parameter boundary") {
		t.Error("stop reason missing from view")
	}
}

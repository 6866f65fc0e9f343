package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/numkit/palc/config"
	"github.com/numkit/palc/cont"
	"github.com/numkit/palc/linsolve"
	"github.com/numkit/palc/storage"
	"github.com/numkit/palc/systems"
	"github.com/numkit/palc/vec"
	"github.com/numkit/palc/viz"
)

var (
	dataDir    string
	configFile string
	live       bool
	save       bool
	verbosity  int

	ds       float64
	dsMin    float64
	dsMax    float64
	pMin     float64
	pMax     float64
	maxSteps int
	mesh     int
)

func main() {
	root := &cobra.Command{
		Use:   "palc",
		Short: "Trace solution branches of the bundled example systems",
		Long: "palc runs pseudo-arclength continuation on the example systems,\n" +
			"detecting folds and Hopf points along the way.",
	}
	root.PersistentFlags().StringVar(&dataDir, "data", "palc-data", "directory for saved branches")
	root.PersistentFlags().StringVar(&configFile, "config", "", "YAML preset overriding the builtin")
	root.PersistentFlags().BoolVar(&live, "live", false, "watch the run in a live view")
	root.PersistentFlags().BoolVar(&save, "save", false, "persist the branch when done")
	root.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 1, "0 silent, 1 summary, 2 per step")
	root.PersistentFlags().Float64Var(&ds, "ds", 0, "initial signed arclength step")
	root.PersistentFlags().Float64Var(&dsMin, "ds-min", 0, "minimum arclength step")
	root.PersistentFlags().Float64Var(&dsMax, "ds-max", 0, "maximum arclength step")
	root.PersistentFlags().Float64Var(&pMin, "p-min", 0, "lower parameter bound")
	root.PersistentFlags().Float64Var(&pMax, "p-max", 0, "upper parameter bound")
	root.PersistentFlags().IntVar(&maxSteps, "max-steps", 0, "step budget")
	root.PersistentFlags().IntVar(&mesh, "mesh", 0, "mesh points for the PDE systems")

	for _, name := range config.Names() {
		name := name
		root.AddCommand(&cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Continue the %q example", name),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runExample(name)
			},
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns()
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadPreset(name string) (config.Preset, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.Builtin(name)
}

func applyFlags(preset *config.Preset) {
	if ds != 0 {
		preset.Ds = ds
	}
	if dsMin != 0 {
		preset.DsMin = dsMin
	}
	if dsMax != 0 {
		preset.DsMax = dsMax
	}
	if pMin != 0 {
		preset.PMin = pMin
	}
	if pMax != 0 {
		preset.PMax = pMax
	}
	if maxSteps != 0 {
		preset.MaxSteps = maxSteps
	}
	if mesh != 0 {
		preset.MeshPoints = mesh
	}
}

// buildProblem instantiates the example system a preset names.
func buildProblem(preset config.Preset) (cont.Problem, vec.Vector, error) {
	switch preset.System {
	case "fold":
		c := systems.NewCubic()
		return c.Problem(), vec.Dense{0.8}, nil
	case "chan":
		n := preset.MeshPoints
		if n == 0 {
			n = 100
		}
		c := systems.NewChanBratu(n)
		return c.Problem(), c.InitialState(), nil
	case "brusselator":
		n := preset.MeshPoints
		if n == 0 {
			n = 60
		}
		b := systems.NewBrusselator1D(n)
		return b.Problem(), b.Equilibrium(), nil
	}
	return cont.Problem{}, nil, fmt.Errorf("unknown system %q", preset.System)
}

func runExample(name string) error {
	preset, err := loadPreset(name)
	if err != nil {
		return err
	}
	applyFlags(&preset)

	prob, x0, err := buildProblem(preset)
	if err != nil {
		return err
	}
	par := preset.Params()
	if par.ComputeEigenValues {
		par.Eigen = linsolve.DenseEigen{}
	}

	it, err := cont.New(prob, x0, preset.P0, par, cont.Secant{})
	if err != nil {
		return err
	}
	it.Verbosity = verbosity

	var br *cont.Branch
	if live {
		br, err = runLive(preset.System, it)
	} else {
		for it.Next() {
		}
		br = it.Branch()
		err = it.Err()
	}

	fmt.Println(viz.BranchASCII(br, 80, 20))
	fmt.Printf("stopped: %s\n", it.State().Stop)

	if save {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		id, err := st.Save(preset.System, br)
		if err != nil {
			return err
		}
		fmt.Printf("saved as %s\n", id)
	}
	return err
}

// runLive drives the iterator while a bubbletea view consumes snapshots.
func runLive(system string, it *cont.Iterator) (*cont.Branch, error) {
	it.Verbosity = 0
	updates := make(chan viz.Snapshot, 64)
	prog := tea.NewProgram(viz.NewLive(system, updates))

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(updates)
		nFolds, nBifs := 0, 0
		for it.Next() {
			st := it.State()
			br := it.Branch()
			snap := viz.Snapshot{
				Step:      st.Step,
				Param:     st.Z.P,
				PrintSol:  br.Last().PrintSol,
				Ds:        st.Ds,
				Iters:     st.ItNumber,
				NUnstable: st.NUnstable,
			}
			if len(br.FoldPoints) > nFolds {
				nFolds = len(br.FoldPoints)
				fp := br.FoldPoints[nFolds-1]
				snap.Event = fmt.Sprintf("fold near p=%.6g", fp.Param)
			}
			if len(br.BifPoints) > nBifs {
				nBifs = len(br.BifPoints)
				bp := br.BifPoints[nBifs-1]
				snap.Event = fmt.Sprintf("%s at p=%.6g (%s)", bp.Type, bp.Param, bp.Status)
			}
			// Drop frames rather than block when the viewer is gone or
			// behind; the branch record keeps everything.
			select {
			case updates <- snap:
			default:
			}
		}
		select {
		case updates <- viz.Snapshot{Done: true, Stop: it.State().Stop.String()}:
		default:
		}
	}()

	_, runErr := prog.Run()
	// The driving goroutine owns the iterator; wait for it before reading
	// the branch back.
	<-done
	if runErr != nil {
		return it.Branch(), runErr
	}
	return it.Branch(), it.Err()
}

func listRuns() error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYSTEM\tSTEPS\tFOLDS\tBIFS\tWHEN")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.System, r.Steps, len(r.FoldPoints), len(r.BifPoints),
			r.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

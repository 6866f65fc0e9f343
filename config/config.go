package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/numkit/palc/cont"
)

// Preset is the on-disk description of a continuation run: which example
// system, from where, and with what parameters. Zero-valued fields keep
// the engine defaults, except that PMin and PMax are applied as a pair
// whenever either of them is nonzero.
type Preset struct {
	System string  `yaml:"system"`
	P0     float64 `yaml:"p0"`

	Ds    float64 `yaml:"ds"`
	DsMin float64 `yaml:"ds_min"`
	DsMax float64 `yaml:"ds_max"`
	Theta float64 `yaml:"theta"`
	PMin  float64 `yaml:"p_min"`
	PMax  float64 `yaml:"p_max"`

	MaxSteps          int     `yaml:"max_steps"`
	NewtonTol         float64 `yaml:"newton_tol"`
	NewtonMaxIter     int     `yaml:"newton_max_iter"`
	DetectFold        bool    `yaml:"detect_fold"`
	DetectBifurcation int     `yaml:"detect_bifurcation"`
	ComputeEigen      bool    `yaml:"compute_eigen"`
	SaveEigEvery      int     `yaml:"save_eig_every"`
	SaveSolEvery      int     `yaml:"save_sol_every"`
	Aggressiveness    float64 `yaml:"aggressiveness"`

	MeshPoints int `yaml:"mesh_points"`
}

// Builtin presets, keyed by the names the CLI accepts.
var builtins = map[string]Preset{
	"fold": {
		System: "fold", P0: 1.0,
		Ds: -0.01, DsMin: 1e-5, DsMax: 0.02,
		PMin: -1, PMax: 4.1, MaxSteps: 1500,
		DetectFold: true,
	},
	"chan": {
		System: "chan", P0: 3.0,
		Ds: 0.01, DsMin: 1e-5, DsMax: 0.05,
		PMin: 0, PMax: 4.1, MaxSteps: 300,
		DetectFold: true, MeshPoints: 100,
	},
	"brusselator": {
		System: "brusselator", P0: 0.3,
		Ds: 0.01, DsMin: 1e-5, DsMax: 0.03,
		PMin: 0.2, PMax: 1.9, MaxSteps: 400,
		ComputeEigen: true, DetectBifurcation: 2,
		MeshPoints: 60,
	},
}

// Builtin returns a named preset.
func Builtin(name string) (Preset, error) {
	p, ok := builtins[name]
	if !ok {
		return Preset{}, fmt.Errorf("config: unknown preset %q", name)
	}
	return p, nil
}

// Names lists the builtin preset names.
func Names() []string {
	return []string{"fold", "chan", "brusselator"}
}

// Load reads a preset from a YAML file, starting from the named builtin
// when the file sets `system` to one.
func Load(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, err
	}
	var probe struct {
		System string `yaml:"system"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return Preset{}, err
	}
	p := Preset{}
	if base, ok := builtins[probe.System]; ok {
		p = base
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, err
	}
	return p, nil
}

// Save writes the preset as YAML.
func Save(path string, p Preset) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Params translates the preset into engine parameters, layered over the
// defaults.
func (p Preset) Params() cont.Params {
	par := cont.DefaultParams()
	if p.Ds != 0 {
		par.Ds = p.Ds
	}
	if p.DsMin != 0 {
		par.DsMin = p.DsMin
	}
	if p.DsMax != 0 {
		par.DsMax = p.DsMax
	}
	if p.Theta != 0 {
		par.Theta = p.Theta
	}
	if p.PMin != 0 || p.PMax != 0 {
		par.PMin, par.PMax = p.PMin, p.PMax
	}
	if p.MaxSteps != 0 {
		par.MaxSteps = p.MaxSteps
	}
	if p.NewtonTol != 0 {
		par.Newton.Tol = p.NewtonTol
	}
	if p.NewtonMaxIter != 0 {
		par.Newton.MaxIter = p.NewtonMaxIter
	}
	if p.SaveEigEvery != 0 {
		par.SaveEigEvery = p.SaveEigEvery
	}
	if p.SaveSolEvery != 0 {
		par.SaveSolEvery = p.SaveSolEvery
	}
	if p.Aggressiveness != 0 {
		par.A = p.Aggressiveness
	}
	par.DetectFold = p.DetectFold
	par.DetectBifurcation = p.DetectBifurcation
	par.ComputeEigenValues = p.ComputeEigen
	return par
}

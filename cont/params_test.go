package cont

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsCheck(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
		ok     bool
	}{
		{"defaults", func(p *Params) {}, true},
		{"dsmax below dsmin", func(p *Params) { p.DsMax = p.DsMin / 2 }, false},
		{"ds above dsmax", func(p *Params) { p.Ds = p.DsMax * 2 }, false},
		{"ds below dsmin", func(p *Params) { p.Ds = p.DsMin / 2 }, false},
		{"negative ds in range", func(p *Params) { p.Ds = -p.DsMin }, true},
		{"theta zero", func(p *Params) { p.Theta = 0 }, false},
		{"theta one", func(p *Params) { p.Theta = 1 }, false},
		{"pmin above pmax", func(p *Params) { p.PMin = 2; p.PMax = 1 }, false},
		{"odd nInversion", func(p *Params) { p.NInversion = 3 }, false},
		{"detect level 3", func(p *Params) { p.DetectBifurcation = 3 }, false},
		{"no bisection floor", func(p *Params) { p.DetectBifurcation = 2; p.DsMinBisection = 0 }, false},
		{"zero maxsteps", func(p *Params) { p.MaxSteps = 0 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			tc.mutate(&p)
			err := p.Check()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
			}
		})
	}
}

func TestClampDs(t *testing.T) {
	p := DefaultParams()
	p.DsMin, p.DsMax = 0.01, 0.1

	assert.Equal(t, 0.1, p.clampDs(0.5))
	assert.Equal(t, -0.1, p.clampDs(-0.5))
	assert.Equal(t, 0.01, p.clampDs(0.001))
	assert.Equal(t, -0.01, p.clampDs(-0.001))
	assert.Equal(t, 0.05, p.clampDs(0.05))
}

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/massdiff"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	acceptors, err := cfg.Acceptors()
	require.NoError(t, err)
	require.Len(t, acceptors, 1)
	assert.Equal(t, "5ppmAroundZero", acceptors[0].Name())

	p, err := cfg.SearchParams()
	require.NoError(t, err)
	assert.Equal(t, massdiff.PPMTolerance(20), p.FragmentTolerance)

	d, err := cfg.DigestParams(core.DefaultModDatabase())
	require.NoError(t, err)
	require.Len(t, d.FixedMods, 1)
	assert.Equal(t, byte('C'), d.FixedMods[0].Residue)
}

func TestDecodeOverridesDefaults(t *testing.T) {
	input := `
workers: 3
search:
  engine: classic
  acceptors:
    - "open OpenSearch"
    - "notched dot 5 ppm 0,1.0029"
  fragment_tolerance: "0.02 Da"
  add_comp_ions: true
  dissociation: ETD
digest:
  protease: lys-c
  variable_mods: ["Phospho@S", "Phospho@T"]
index:
  codec: lz4
filter:
  top_n: 150
`
	cfg, err := Decode(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "classic", cfg.Search.Engine)
	assert.Equal(t, 7, cfg.Digest.MinLength, "unset keys keep their defaults")

	acceptors, err := cfg.Acceptors()
	require.NoError(t, err)
	require.Len(t, acceptors, 2)
	assert.Equal(t, 2, acceptors[1].NumNotches())

	p, err := cfg.SearchParams()
	require.NoError(t, err)
	assert.Equal(t, massdiff.AbsoluteTolerance(0.02), p.FragmentTolerance)
	assert.Equal(t, core.ETD, p.Dissociation)
	assert.True(t, p.AddCompIons)
	assert.Equal(t, 3, p.Workers)

	ic, err := cfg.IndexConfig()
	require.NoError(t, err)
	assert.Equal(t, core.ETD, ic.Dissociation)
	assert.Equal(t, 3, ic.Workers)

	d, err := cfg.DigestParams(core.DefaultModDatabase())
	require.NoError(t, err)
	assert.Len(t, d.VariableMods, 2)

	assert.Equal(t, 150, cfg.FilterConfig().TopN)
}

func TestDecodeEmpty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown key", "search:\n  engine: modern\n  colour: red\n"},
		{"unknown engine", "search:\n  engine: quantum\n"},
		{"two acceptors for modern", "search:\n  acceptors: [\"a OpenSearch\", \"b OpenSearch\"]\n"},
		{"bad acceptor", "search:\n  acceptors: [\"a sideways 5\"]\n"},
		{"bad tolerance", "search:\n  fragment_tolerance: \"20 furlongs\"\n"},
		{"bad dissociation", "search:\n  dissociation: laser\n"},
		{"bad charges", "search:\n  min_charge: 3\n  max_charge: 2\n"},
		{"bad protease", "digest:\n  protease: pepsin-x\n"},
		{"unknown mod", "digest:\n  fixed_mods: [\"Nonsense@C\"]\n"},
		{"bad lengths", "digest:\n  min_length: 10\n  max_length: 5\n"},
		{"bad codec", "index:\n  codec: brotli\n"},
		{"bad bins", "index:\n  bins_per_dalton: 0\n"},
		{"bad filter", "filter:\n  intensity_cutoff: 120\n"},
		{"negative workers", "workers: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Search.Engine = "classic"
	cfg.Filter.TopN = 200

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))

	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.Equal(t, buf.String(), cfg.String())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

// Package config loads search parameter files. A file only needs the keys it
// changes; everything else keeps its default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/digest"
	"github.com/ChrisMcGann/DBSearch/pkg/filter"
	"github.com/ChrisMcGann/DBSearch/pkg/index"
	"github.com/ChrisMcGann/DBSearch/pkg/massdiff"
	"github.com/ChrisMcGann/DBSearch/pkg/search"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the parameter file.
type Config struct {
	Workers int          `yaml:"workers"`
	Search  SearchConfig `yaml:"search"`
	Digest  DigestConfig `yaml:"digest"`
	Index   IndexConfig  `yaml:"index"`
	Filter  FilterConfig `yaml:"filter"`
}

// SearchConfig selects the engine and its scoring.
type SearchConfig struct {
	Engine             string   `yaml:"engine"` // classic or modern
	Acceptors          []string `yaml:"acceptors"`
	FragmentTolerance  string   `yaml:"fragment_tolerance"`
	ScoreCutoff        float64  `yaml:"score_cutoff"`
	AddCompIons        bool     `yaml:"add_comp_ions"`
	ReportAllAmbiguity bool     `yaml:"report_all_ambiguity"`
	Dissociation       string   `yaml:"dissociation"`
	MinCharge          int      `yaml:"min_charge"`
	MaxCharge          int      `yaml:"max_charge"`
}

// DigestConfig controls in-silico digestion.
type DigestConfig struct {
	Protease                  string   `yaml:"protease"`
	MissedCleavages           int      `yaml:"missed_cleavages"`
	MinLength                 int      `yaml:"min_length"`
	MaxLength                 int      `yaml:"max_length"`
	CleaveInitiatorMethionine bool     `yaml:"cleave_initiator_methionine"`
	FixedMods                 []string `yaml:"fixed_mods"`
	VariableMods              []string `yaml:"variable_mods"`
	MaxModsPerPeptide         int      `yaml:"max_mods_per_peptide"`
	MaxIsoforms               int      `yaml:"max_isoforms"`
	Decoys                    bool     `yaml:"decoys"`
}

// IndexConfig controls the fragment index.
type IndexConfig struct {
	BinsPerDalton   int     `yaml:"bins_per_dalton"`
	MaxFragmentMass float64 `yaml:"max_fragment_mass"`
	Deduplicate     bool    `yaml:"deduplicate"`
	Codec           string  `yaml:"codec"`
}

// FilterConfig mirrors filter.Config.
type FilterConfig struct {
	TopN            int     `yaml:"top_n"`
	IntensityCutoff float64 `yaml:"intensity_cutoff"`
	MinMZ           float64 `yaml:"min_mz"`
	MaxMZ           float64 `yaml:"max_mz"`
	TopNPerWindow   int     `yaml:"top_n_per_window"`
	WindowWidth     float64 `yaml:"window_width"`
}

// Default returns the built-in parameters.
func Default() *Config {
	sp := search.DefaultParams()
	dp := digest.DefaultParams()
	ic := index.DefaultConfig()
	return &Config{
		Search: SearchConfig{
			Engine:             "modern",
			Acceptors:          []string{"5ppmAroundZero ppmAroundZero 5"},
			FragmentTolerance:  sp.FragmentTolerance.String(),
			ScoreCutoff:        sp.ScoreCutoff,
			ReportAllAmbiguity: sp.ReportAllAmbiguity,
			Dissociation:       sp.Dissociation.String(),
			MinCharge:          2,
			MaxCharge:          4,
		},
		Digest: DigestConfig{
			Protease:                  dp.Protease.Name,
			MissedCleavages:           dp.MaxMissedCleavages,
			MinLength:                 dp.MinLength,
			MaxLength:                 dp.MaxLength,
			CleaveInitiatorMethionine: dp.CleaveInitiatorMethionine,
			FixedMods:                 []string{"Carbamidomethyl@C"},
			VariableMods:              []string{"Oxidation@M"},
			MaxModsPerPeptide:         dp.MaxModsPerPeptide,
			MaxIsoforms:               dp.MaxIsoforms,
			Decoys:                    true,
		},
		Index: IndexConfig{
			BinsPerDalton:   ic.BinsPerDalton,
			MaxFragmentMass: ic.MaxFragmentMass,
			Deduplicate:     ic.Deduplicate,
			Codec:           string(index.CodecZstd),
		},
	}
}

// Load reads a parameter file over the defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads YAML over the defaults and validates the result. Unknown keys
// are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode writes cfg as YAML.
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// String returns the YAML form, used to record parameters next to results.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := c.Encode(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// Validate checks every section.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Search.Engine) {
	case "classic", "modern":
	default:
		return invalid("unknown engine '%s' (want classic or modern)", c.Search.Engine)
	}
	if len(c.Search.Acceptors) == 0 {
		return invalid("at least one acceptor is required")
	}
	if strings.EqualFold(c.Search.Engine, "modern") && len(c.Search.Acceptors) != 1 {
		return invalid("modern search takes exactly one acceptor, got %d", len(c.Search.Acceptors))
	}
	if _, err := c.Acceptors(); err != nil {
		return invalid("%v", err)
	}
	if _, err := c.SearchParams(); err != nil {
		return invalid("%v", err)
	}
	if c.Search.MinCharge < 1 || c.Search.MaxCharge < c.Search.MinCharge {
		return invalid("charge range %d..%d", c.Search.MinCharge, c.Search.MaxCharge)
	}
	if c.Workers < 0 {
		return invalid("workers must not be negative")
	}
	if _, err := c.DigestParams(core.DefaultModDatabase()); err != nil {
		return invalid("%v", err)
	}
	if c.Index.BinsPerDalton < 1 || c.Index.MaxFragmentMass <= 0 {
		return invalid("index needs positive bins per dalton and maximum fragment mass")
	}
	if _, err := index.ParseCodec(c.Index.Codec); err != nil {
		return invalid("%v", err)
	}
	f := c.FilterConfig()
	if err := f.Validate(); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// Acceptors parses the configured precursor acceptors.
func (c *Config) Acceptors() ([]massdiff.Acceptor, error) {
	out := make([]massdiff.Acceptor, 0, len(c.Search.Acceptors))
	for _, text := range c.Search.Acceptors {
		a, err := massdiff.Parse(text)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// SearchParams converts the search section. Progress and Logger are left for
// the caller.
func (c *Config) SearchParams() (search.Params, error) {
	p := search.DefaultParams()
	tol, err := massdiff.ParseTolerance(c.Search.FragmentTolerance)
	if err != nil {
		return p, err
	}
	d, err := core.ParseDissociationType(c.Search.Dissociation)
	if err != nil {
		return p, err
	}
	p.FragmentTolerance = tol
	p.ScoreCutoff = c.Search.ScoreCutoff
	p.AddCompIons = c.Search.AddCompIons
	p.ReportAllAmbiguity = c.Search.ReportAllAmbiguity
	p.Dissociation = d
	if c.Workers > 0 {
		p.Workers = c.Workers
	}
	return p, nil
}

// DigestParams converts the digest section, resolving modification names
// through modDB.
func (c *Config) DigestParams(modDB *core.ModDatabase) (digest.Params, error) {
	p := digest.DefaultParams()
	protease, err := digest.ParseProtease(c.Digest.Protease)
	if err != nil {
		return p, err
	}
	p.Protease = protease
	p.MaxMissedCleavages = c.Digest.MissedCleavages
	p.MinLength = c.Digest.MinLength
	p.MaxLength = c.Digest.MaxLength
	p.CleaveInitiatorMethionine = c.Digest.CleaveInitiatorMethionine
	p.MaxModsPerPeptide = c.Digest.MaxModsPerPeptide
	p.MaxIsoforms = c.Digest.MaxIsoforms

	if p.FixedMods, err = siteMods(modDB, c.Digest.FixedMods); err != nil {
		return p, err
	}
	if p.VariableMods, err = siteMods(modDB, c.Digest.VariableMods); err != nil {
		return p, err
	}
	return p, p.Validate()
}

func siteMods(modDB *core.ModDatabase, specs []string) ([]core.SiteMod, error) {
	out := make([]core.SiteMod, 0, len(specs))
	for _, s := range specs {
		m, err := modDB.ParseSiteMod(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// IndexConfig converts the index section.
func (c *Config) IndexConfig() (index.Config, error) {
	cfg := index.DefaultConfig()
	d, err := core.ParseDissociationType(c.Search.Dissociation)
	if err != nil {
		return cfg, err
	}
	cfg.BinsPerDalton = c.Index.BinsPerDalton
	cfg.MaxFragmentMass = c.Index.MaxFragmentMass
	cfg.Deduplicate = c.Index.Deduplicate
	cfg.Dissociation = d
	if c.Workers > 0 {
		cfg.Workers = c.Workers
	}
	return cfg, nil
}

// FilterConfig converts the filter section.
func (c *Config) FilterConfig() filter.Config {
	return filter.Config{
		TopN:            c.Filter.TopN,
		IntensityCutoff: c.Filter.IntensityCutoff,
		MinMZ:           c.Filter.MinMZ,
		MaxMZ:           c.Filter.MaxMZ,
		TopNPerWindow:   c.Filter.TopNPerWindow,
		WindowWidth:     c.Filter.WindowWidth,
	}
}

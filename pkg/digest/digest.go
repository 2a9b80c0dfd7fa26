package digest

import (
	"fmt"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

// Params controls digestion and modification enumeration.
type Params struct {
	Protease           Protease
	MaxMissedCleavages int
	MinLength          int
	MaxLength          int
	// CleaveInitiatorMethionine also emits N-terminal peptides without a leading M.
	CleaveInitiatorMethionine bool
	FixedMods                 []core.SiteMod
	VariableMods              []core.SiteMod
	MaxModsPerPeptide         int
	// MaxIsoforms caps the variable modification forms of one base sequence.
	MaxIsoforms int
}

// DefaultParams returns a tryptic digestion with carbamidomethyl cysteine and
// variable methionine oxidation.
func DefaultParams() Params {
	return Params{
		Protease:                  Trypsin(),
		MaxMissedCleavages:        2,
		MinLength:                 7,
		MaxLength:                 50,
		CleaveInitiatorMethionine: true,
		FixedMods:                 []core.SiteMod{{Name: "Carbamidomethyl", Mass: 57.021464, Residue: 'C'}},
		VariableMods:              []core.SiteMod{{Name: "Oxidation", Mass: 15.994915, Residue: 'M'}},
		MaxModsPerPeptide:         2,
		MaxIsoforms:               1024,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	if p.Protease.cleavesAfter == nil {
		return fmt.Errorf("no protease configured")
	}
	if p.MaxMissedCleavages < 0 {
		return fmt.Errorf("max missed cleavages must not be negative")
	}
	if p.MinLength < 1 || p.MaxLength < p.MinLength {
		return fmt.Errorf("invalid peptide length range %d..%d", p.MinLength, p.MaxLength)
	}
	if p.MaxModsPerPeptide < 0 || p.MaxIsoforms < 1 {
		return fmt.Errorf("invalid modification limits")
	}
	return nil
}

// Database is a digestible protein list. It is read-only after construction and
// safe for concurrent Digest calls.
type Database struct {
	Proteins []Protein
	params   Params
}

// NewDatabase builds a database over proteins, appending a reversed decoy for
// each target when decoys is true.
func NewDatabase(proteins []Protein, params Params, decoys bool) (*Database, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid digestion parameters: %w", err)
	}

	all := make([]Protein, 0, 2*len(proteins))
	all = append(all, proteins...)
	if decoys {
		for _, p := range proteins {
			if !p.Decoy {
				all = append(all, Reverse(p))
			}
		}
	}
	return &Database{Proteins: all, params: params}, nil
}

// Len returns the number of proteins, targets and decoys.
func (db *Database) Len() int {
	return len(db.Proteins)
}

// Digest appends every modified peptide of protein i to dst.
func (db *Database) Digest(i int, dst []*core.Peptide) []*core.Peptide {
	prot := &db.Proteins[i]
	seq := prot.Sequence
	sites := db.params.Protease.sites(seq)

	emit := func(begin, end int) {
		length := end - begin
		if length < db.params.MinLength || length > db.params.MaxLength {
			return
		}
		sub := seq[begin:end]
		for j := 0; j < len(sub); j++ {
			if !core.IsKnownResidue(sub[j]) {
				return
			}
		}
		dst = db.isoforms(dst, prot, sub, begin+1)
	}

	for k := 0; k < len(sites)-1; k++ {
		for missed := 0; missed <= db.params.MaxMissedCleavages && k+missed+1 < len(sites); missed++ {
			end := sites[k+missed+1]
			emit(sites[k], end)
			if k == 0 && db.params.CleaveInitiatorMethionine && len(seq) > 0 && seq[0] == 'M' && end > 1 {
				emit(1, end)
			}
		}
	}
	return dst
}

type modSite struct {
	position int
	mod      core.SiteMod
}

// isoforms appends every variable-mod arrangement of sequence, fixed mods
// always applied. Arrangements are enumerated in a fixed order.
func (db *Database) isoforms(dst []*core.Peptide, prot *Protein, sequence string, start int) []*core.Peptide {
	n := len(sequence)
	fixed := make([]core.Modification, 0, 4)
	fixedAt := make(map[int]bool)
	for _, m := range db.params.FixedMods {
		for _, pos := range positions(m.Residue, sequence) {
			if fixedAt[pos] {
				continue
			}
			fixedAt[pos] = true
			fixed = append(fixed, core.Modification{Mass: m.Mass, Position: pos, Name: m.Name})
		}
	}

	var candidates []modSite
	for pos := -1; pos <= n; pos++ {
		if fixedAt[pos] {
			continue
		}
		for _, m := range db.params.VariableMods {
			if siteMatches(m.Residue, sequence, pos) {
				candidates = append(candidates, modSite{position: pos, mod: m})
			}
		}
	}

	produced := 0
	chosen := make([]core.Modification, 0, db.params.MaxModsPerPeptide)
	var walk func(from int, lastPos int)
	walk = func(from int, lastPos int) {
		if produced >= db.params.MaxIsoforms {
			return
		}
		mods := append(append(make([]core.Modification, 0, len(fixed)+len(chosen)), fixed...), chosen...)
		dst = append(dst, core.NewPeptide(sequence, mods, prot.Accession, start, prot.Decoy))
		produced++

		if len(chosen) == db.params.MaxModsPerPeptide {
			return
		}
		for c := from; c < len(candidates); c++ {
			site := candidates[c]
			if site.position == lastPos {
				continue
			}
			chosen = append(chosen, core.Modification{Mass: site.mod.Mass, Position: site.position, Name: site.mod.Name})
			walk(c+1, site.position)
			chosen = chosen[:len(chosen)-1]
		}
	}
	walk(0, -2)
	return dst
}

// positions returns where a site mod applies in sequence.
func positions(residue byte, sequence string) []int {
	var out []int
	for pos := -1; pos <= len(sequence); pos++ {
		if siteMatches(residue, sequence, pos) {
			out = append(out, pos)
		}
	}
	return out
}

func siteMatches(residue byte, sequence string, pos int) bool {
	switch {
	case pos < 0:
		return residue == core.NTerm
	case pos >= len(sequence):
		return residue == core.CTerm
	default:
		return sequence[pos] == residue
	}
}

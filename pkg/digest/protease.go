package digest

import (
	"fmt"
	"strings"
)

// Protease describes where an enzyme cuts.
type Protease struct {
	Name string
	// cleavesAfter reports whether the bond between seq[i] and seq[i+1] is cut.
	cleavesAfter func(seq string, i int) bool
}

func residueRule(residues string, blockedByProline bool) func(string, int) bool {
	return func(seq string, i int) bool {
		if strings.IndexByte(residues, seq[i]) < 0 {
			return false
		}
		return !blockedByProline || i+1 >= len(seq) || seq[i+1] != 'P'
	}
}

var proteases = map[string]Protease{
	"trypsin":      {Name: "trypsin", cleavesAfter: residueRule("KR", true)},
	"trypsin/p":    {Name: "trypsin/p", cleavesAfter: residueRule("KR", false)},
	"lys-c":        {Name: "Lys-C", cleavesAfter: residueRule("K", true)},
	"lys-c/p":      {Name: "Lys-C/P", cleavesAfter: residueRule("K", false)},
	"arg-c":        {Name: "Arg-C", cleavesAfter: residueRule("R", true)},
	"chymotrypsin": {Name: "chymotrypsin", cleavesAfter: residueRule("FYWL", true)},
	"glu-c":        {Name: "Glu-C", cleavesAfter: residueRule("E", true)},
	"asp-n": {Name: "Asp-N", cleavesAfter: func(seq string, i int) bool {
		return i+1 < len(seq) && seq[i+1] == 'D'
	}},
}

// ParseProtease looks up a protease by name, case-insensitively.
func ParseProtease(name string) (Protease, error) {
	p, ok := proteases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Protease{}, fmt.Errorf("unknown protease '%s'", name)
	}
	return p, nil
}

// Trypsin cuts after K or R unless followed by P.
func Trypsin() Protease {
	return proteases["trypsin"]
}

// sites returns the cut positions of seq including both ends: peptide k spans
// seq[sites[k]:sites[k+1]].
func (p Protease) sites(seq string) []int {
	sites := []int{0}
	for i := 0; i < len(seq)-1; i++ {
		if p.cleavesAfter(seq, i) {
			sites = append(sites, i+1)
		}
	}
	return append(sites, len(seq))
}

package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// DissociationType selects which fragment ion series are generated.
type DissociationType int

const (
	HCD DissociationType = iota
	CID
	ETD
	EThcD
)

func (d DissociationType) String() string {
	switch d {
	case HCD:
		return "HCD"
	case CID:
		return "CID"
	case ETD:
		return "ETD"
	case EThcD:
		return "EThcD"
	default:
		return fmt.Sprintf("DissociationType(%d)", int(d))
	}
}

// ParseDissociationType parses a dissociation name, case-insensitively.
func ParseDissociationType(s string) (DissociationType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HCD", "":
		return HCD, nil
	case "CID":
		return CID, nil
	case "ETD":
		return ETD, nil
	case "ETHCD":
		return EThcD, nil
	default:
		return HCD, fmt.Errorf("unknown dissociation type '%s'", s)
	}
}

// ProductTypes returns the ion series produced by this dissociation type.
func (d DissociationType) ProductTypes() []ProductType {
	switch d {
	case ETD:
		return []ProductType{IonC, IonZDot}
	case EThcD:
		return []ProductType{IonB, IonY, IonC, IonZDot}
	default:
		return []ProductType{IonB, IonY}
	}
}

// ComplementaryShifts returns the neutral mass shifts s such that a fragment of
// mass m has a complementary partner at precursorMass + s - m.
func (d DissociationType) ComplementaryShifts() []float64 {
	switch d {
	case ETD:
		return []float64{ProtonMass}
	case EThcD:
		return []float64{0, ProtonMass}
	default:
		return []float64{0}
	}
}

// ProductType identifies a fragment ion series.
type ProductType byte

const (
	IonB    ProductType = 'b'
	IonY    ProductType = 'y'
	IonC    ProductType = 'c'
	IonZDot ProductType = 'z'
)

// nTerminal reports whether the series carries the peptide N-terminus.
func (t ProductType) nTerminal() bool {
	return t == IonB || t == IonC
}

// massShift is added to the summed residue masses of the fragment.
func (t ProductType) massShift() float64 {
	switch t {
	case IonC:
		return MassAmmonia
	case IonY:
		return MassWater
	case IonZDot:
		return MassWater - MassAmmonia + MassH
	default:
		return 0
	}
}

// Product is one theoretical fragment of a peptide.
type Product struct {
	Type        ProductType
	Number      int // residues counted from the fragment's own terminus
	NeutralMass float64
}

func (p Product) String() string {
	return fmt.Sprintf("%c%d", p.Type, p.Number)
}

// MatchedIon pairs a theoretical product with the experimental peak that explains it.
type MatchedIon struct {
	Product   Product
	MZ        float64
	Intensity float64
	Charge    int
}

// Peptide is one candidate: a base sequence with one specific modification
// assignment. Peptides are immutable once built; Index is assigned exactly once
// when a mass-sorted candidate list is frozen.
type Peptide struct {
	Sequence string
	Mods     []Modification // sorted by position
	Protein  string
	Start    int // one-based residue in Protein
	Decoy    bool
	Index    int

	mass         float64
	fullSequence string
	nTerm        []float64 // nTerm[i]: residues 0..i plus their mods
	cTerm        []float64 // cTerm[i]: the last i+1 residues plus their mods
}

// NewPeptide builds a candidate and precomputes its cumulative fragment masses.
func NewPeptide(sequence string, mods []Modification, protein string, start int, decoy bool) *Peptide {
	sorted := slices.Clone(mods)
	slices.SortStableFunc(sorted, func(a, b Modification) int {
		return cmp.Compare(a.Position, b.Position)
	})

	p := &Peptide{
		Sequence: sequence,
		Mods:     sorted,
		Protein:  protein,
		Start:    start,
		Decoy:    decoy,
		Index:    -1,
		mass:     CalculateNeutralMass(sequence, sorted),
	}
	for i := 0; i < len(sequence); i++ {
		if !IsKnownResidue(sequence[i]) {
			p.mass = residueMass[sequence[i]]
		}
	}
	p.fullSequence = p.buildFullSequence()
	p.buildTerminalMasses()
	return p
}

// MonoisotopicMass returns the neutral monoisotopic precursor mass.
func (p *Peptide) MonoisotopicMass() float64 {
	return p.mass
}

// FullSequence returns the structural identity of the peptide: the sequence with
// modifications written in place. Two candidates with the same full sequence are
// interchangeable regardless of the protein they came from.
func (p *Peptide) FullSequence() string {
	return p.fullSequence
}

// WithIndex returns a copy of p frozen at position i of a candidate list. The
// copy shares p's immutable mass arrays.
func (p *Peptide) WithIndex(i int) *Peptide {
	c := *p
	c.Index = i
	return &c
}

// Len returns the number of residues.
func (p *Peptide) Len() int {
	return len(p.Sequence)
}

func (p *Peptide) buildFullSequence() string {
	if len(p.Mods) == 0 {
		return p.Sequence
	}

	var b strings.Builder
	label := func(m Modification) string {
		if m.Name != "" {
			return "[" + m.Name + "]"
		}
		return fmt.Sprintf("[%+.4f]", m.Mass)
	}

	for _, m := range p.Mods {
		if m.Position < 0 {
			b.WriteString(label(m))
			b.WriteByte('-')
		}
	}
	for i := 0; i < len(p.Sequence); i++ {
		b.WriteByte(p.Sequence[i])
		for _, m := range p.Mods {
			if m.Position == i {
				b.WriteString(label(m))
			}
		}
	}
	for _, m := range p.Mods {
		if m.Position >= len(p.Sequence) {
			b.WriteByte('-')
			b.WriteString(label(m))
		}
	}
	return b.String()
}

func (p *Peptide) buildTerminalMasses() {
	n := len(p.Sequence)
	if n < 2 {
		return
	}

	perResidue := make([]float64, n)
	for i := 0; i < n; i++ {
		perResidue[i] = residueMass[p.Sequence[i]]
	}
	for _, m := range p.Mods {
		switch {
		case m.Position < 0:
			perResidue[0] += m.Mass
		case m.Position >= n:
			perResidue[n-1] += m.Mass
		default:
			perResidue[m.Position] += m.Mass
		}
	}

	p.nTerm = make([]float64, n-1)
	p.cTerm = make([]float64, n-1)
	sum := 0.0
	for i := 0; i < n-1; i++ {
		sum += perResidue[i]
		p.nTerm[i] = sum
	}
	sum = 0
	for i := 0; i < n-1; i++ {
		sum += perResidue[n-1-i]
		p.cTerm[i] = sum
	}
}

// Fragment appends the theoretical products of the peptide for the given
// dissociation type to dst, sorted by neutral mass.
func (p *Peptide) Fragment(d DissociationType, dst []Product) []Product {
	dst = dst[:0]
	for _, t := range d.ProductTypes() {
		cumulative := p.cTerm
		if t.nTerminal() {
			cumulative = p.nTerm
		}
		shift := t.massShift()
		for i, m := range cumulative {
			number := i + 1
			// electron-based dissociation does not cleave N-terminal to proline
			if t == IonC && p.Sequence[number] == 'P' {
				continue
			}
			if t == IonZDot && p.Sequence[len(p.Sequence)-number] == 'P' {
				continue
			}
			dst = append(dst, Product{Type: t, Number: number, NeutralMass: m + shift})
		}
	}
	SortProducts(dst)
	return dst
}

// SortProducts orders products by mass, breaking ties by series and number so
// the order is fully deterministic.
func SortProducts(products []Product) {
	slices.SortFunc(products, func(a, b Product) int {
		if c := cmp.Compare(a.NeutralMass, b.NeutralMass); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Number, b.Number)
	})
}

// Compare orders peptides by mass, then structural identity, then origin. It is
// the total order used to freeze mass-sorted candidate lists.
func Compare(a, b *Peptide) int {
	if c := cmp.Compare(a.mass, b.mass); c != 0 {
		return c
	}
	if c := strings.Compare(a.fullSequence, b.fullSequence); c != 0 {
		return c
	}
	return CompareOrigin(a, b)
}

// CompareOrigin orders two peptides by the protein they were digested from.
func CompareOrigin(a, b *Peptide) int {
	if c := strings.Compare(a.Protein, b.Protein); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	switch {
	case a.Decoy == b.Decoy:
		return 0
	case !a.Decoy:
		return -1
	default:
		return 1
	}
}

// Package writer flattens search results into records shared by the output
// formats.
package writer

import (
	"strings"

	"github.com/rs/xid"

	"github.com/ChrisMcGann/DBSearch/pkg/psm"
	"github.com/ChrisMcGann/DBSearch/pkg/scan"
)

// NewRunID returns a sortable identifier for one search run.
func NewRunID() string {
	return xid.New().String()
}

// Candidate is one tied best peptide of a record.
type Candidate struct {
	FullSequence string   `json:"full_sequence"`
	BaseSequence string   `json:"base_sequence"`
	Protein      string   `json:"protein"`
	Start        int      `json:"start"`
	Decoy        bool     `json:"decoy"`
	Notch        int      `json:"notch"`
	PeptideMass  float64  `json:"peptide_mass"`
	MassError    float64  `json:"mass_error"`
	MatchedIons  []string `json:"matched_ions,omitempty"`
}

// Record is the best match of one scan.
type Record struct {
	Search        string      `json:"search"`
	ScanIndex     int         `json:"scan_index"`
	Title         string      `json:"title"`
	ScanNumber    int         `json:"scan_number,omitempty"`
	Charge        int         `json:"charge"`
	PrecursorMZ   float64     `json:"precursor_mz"`
	PrecursorMass float64     `json:"precursor_mass"`
	RetentionTime *float64    `json:"retention_time,omitempty"`
	Score         float64     `json:"score"`
	RunnerUp      float64     `json:"runner_up"`
	DeltaScore    float64     `json:"delta_score"`
	Candidates    []Candidate `json:"candidates"`

	// Fragments are kept for formats that store the query peaks.
	FragmentMasses []float64 `json:"-"`
	Intensities    []float64 `json:"-"`
}

// Decoy reports whether the first tied candidate is a decoy.
func (r *Record) Decoy() bool {
	return len(r.Candidates) > 0 && r.Candidates[0].Decoy
}

// Records flattens a result table in scan order under the given search
// identifier. cutoff feeds the delta score.
func Records(search string, t *psm.Table, scans *scan.List, cutoff float64) []Record {
	matches := t.Matches()
	out := make([]Record, 0, len(matches))
	for _, m := range matches {
		out = append(out, NewRecord(search, scans.At(m.ScanIndex), m, cutoff))
	}
	return out
}

// NewRecord flattens one match.
func NewRecord(search string, s *scan.WithMass, m *psm.SpectralMatch, cutoff float64) Record {
	r := Record{
		Search:         search,
		ScanIndex:      m.ScanIndex,
		Title:          s.Spectrum.Name(),
		ScanNumber:     s.Spectrum.ScanNumber,
		Charge:         s.Charge,
		PrecursorMZ:    s.PrecursorMZ,
		PrecursorMass:  s.PrecursorMass,
		RetentionTime:  s.Spectrum.RetentionTime,
		Score:          m.Score,
		RunnerUp:       m.RunnerUp,
		DeltaScore:     m.DeltaScore(cutoff),
		FragmentMasses: s.FragmentMasses,
		Intensities:    s.Intensities,
	}
	for _, c := range m.Best() {
		p := c.Peptide
		ions := make([]string, len(c.Matched))
		for i, ion := range c.Matched {
			ions[i] = ion.Product.String()
		}
		r.Candidates = append(r.Candidates, Candidate{
			FullSequence: p.FullSequence(),
			BaseSequence: p.Sequence,
			Protein:      p.Protein,
			Start:        p.Start,
			Decoy:        p.Decoy,
			Notch:        c.Notch,
			PeptideMass:  p.MonoisotopicMass(),
			MassError:    s.PrecursorMass - p.MonoisotopicMass(),
			MatchedIons:  ions,
		})
	}
	return r
}

// Proteins joins the distinct proteins of the tied candidates.
func (r *Record) Proteins() string {
	var seen []string
	for _, c := range r.Candidates {
		dup := false
		for _, s := range seen {
			if s == c.Protein {
				dup = true
				break
			}
		}
		if !dup {
			seen = append(seen, c.Protein)
		}
	}
	return strings.Join(seen, ";")
}

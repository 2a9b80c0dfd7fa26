// Package psm keeps the best peptide-spectrum matches per scan.
//
// Every submission goes through one merge rule. A score beating the best by more
// than the table tolerance replaces the tied set and demotes the old best to
// runner-up. A score within tolerance of the best joins the tied set when
// ambiguity is reported. Anything else can only raise the runner-up. The rule is
// order independent, so tables filled by any number of workers in any order end
// up identical.
package psm

import (
	"cmp"
	"math"
	"slices"
	"strings"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

// ScoreTolerance is the default tolerance under which two scores are equal.
const ScoreTolerance = 1e-9

// Candidate is one peptide explaining a scan under a notch.
type Candidate struct {
	Notch   int
	Peptide *core.Peptide
	Matched []core.MatchedIon
}

// sameIdentity reports whether a and b are the same structural candidate.
func sameIdentity(a, b Candidate) bool {
	return a.Notch == b.Notch && a.Peptide.Decoy == b.Peptide.Decoy && a.Peptide.FullSequence() == b.Peptide.FullSequence()
}

func compareCandidates(a, b Candidate) int {
	if c := strings.Compare(a.Peptide.FullSequence(), b.Peptide.FullSequence()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Notch, b.Notch); c != 0 {
		return c
	}
	return core.CompareOrigin(a.Peptide, b.Peptide)
}

// SpectralMatch is the result for one scan.
type SpectralMatch struct {
	ScanIndex int
	Score     float64
	RunnerUp  float64

	// tied is non-empty and ordered by compareCandidates.
	tied []Candidate
}

func newMatch(scan int, c Candidate, score float64) *SpectralMatch {
	return &SpectralMatch{ScanIndex: scan, Score: score, tied: []Candidate{c}}
}

// Best returns the tied best candidates ordered by full sequence, notch and origin.
func (m *SpectralMatch) Best() []Candidate {
	return slices.Clone(m.tied)
}

// First returns the first tied candidate.
func (m *SpectralMatch) First() Candidate {
	return m.tied[0]
}

// DeltaScore is the margin of the best score over the runner-up or the cutoff,
// whichever is higher.
func (m *SpectralMatch) DeltaScore(cutoff float64) float64 {
	return m.Score - math.Max(m.RunnerUp, cutoff)
}

// add applies the merge rule.
func (m *SpectralMatch) add(c Candidate, score float64, ambiguity bool, eps float64) {
	switch {
	case score-m.Score > eps:
		if m.Score > m.RunnerUp {
			m.RunnerUp = m.Score
		}
		m.Score = score
		m.tied = append(m.tied[:0], c)

	case math.Abs(score-m.Score) <= eps:
		if !m.retain(c, ambiguity) && score-m.RunnerUp > eps {
			m.RunnerUp = score
		}

	case score-m.RunnerUp > eps:
		m.RunnerUp = score
	}
}

// retain handles a tie with the best score. A candidate already in the tied set
// only updates the kept instance. A new candidate joins the set when ambiguity is
// reported; otherwise the single best is whichever orders first, and the loser
// falls through to the runner-up rule.
func (m *SpectralMatch) retain(c Candidate, ambiguity bool) bool {
	for i, t := range m.tied {
		if sameIdentity(t, c) {
			if core.CompareOrigin(c.Peptide, t.Peptide) < 0 {
				m.tied[i] = c
				slices.SortFunc(m.tied, compareCandidates)
			}
			return true
		}
	}

	if ambiguity {
		i, _ := slices.BinarySearchFunc(m.tied, c, compareCandidates)
		m.tied = slices.Insert(m.tied, i, c)
		return true
	}

	if compareCandidates(c, m.tied[0]) < 0 {
		m.tied[0] = c
	}
	return false
}

// merge folds other into m as if its submissions had been made on m.
func (m *SpectralMatch) merge(other *SpectralMatch, ambiguity bool, eps float64) {
	for _, c := range other.tied {
		m.add(c, other.Score, ambiguity, eps)
	}
	if other.RunnerUp-m.RunnerUp > eps {
		m.RunnerUp = other.RunnerUp
	}
}

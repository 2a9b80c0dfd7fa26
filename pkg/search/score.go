package search

import (
	"cmp"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sort"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/massdiff"
	"github.com/ChrisMcGann/DBSearch/pkg/scan"
)

// peaks is the experimental side of matching: ascending neutral masses with
// parallel intensities.
type peaks struct {
	masses      []float64
	intensities []float64
	tic         float64
}

// experimental returns the peak view of every scan.
func experimental(scans *scan.List, p *Params) []peaks {
	out := make([]peaks, scans.Len())
	for i, s := range scans.Scans() {
		out[i] = viewOf(s, p)
	}
	return out
}

// viewOf returns the peaks of s. With complementary ions the peaks mirrored
// through the precursor mass are merged in.
func viewOf(s *scan.WithMass, p *Params) peaks {
	if !p.AddCompIons {
		return peaks{masses: s.FragmentMasses, intensities: s.Intensities, tic: s.TotalIonCurrent}
	}

	type peak struct{ mass, intensity float64 }
	shifts := p.Dissociation.ComplementaryShifts()
	all := make([]peak, 0, len(s.FragmentMasses)*(1+len(shifts)))
	for j, m := range s.FragmentMasses {
		all = append(all, peak{m, s.Intensities[j]})
		for _, shift := range shifts {
			if mirrored := s.PrecursorMass + shift - m; mirrored > 0 {
				all = append(all, peak{mirrored, s.Intensities[j]})
			}
		}
	}
	slices.SortStableFunc(all, func(a, b peak) int {
		return cmp.Compare(a.mass, b.mass)
	})

	v := peaks{
		masses:      make([]float64, len(all)),
		intensities: make([]float64, len(all)),
		tic:         s.TotalIonCurrent,
	}
	for j, pk := range all {
		v.masses[j] = pk.mass
		v.intensities[j] = pk.intensity
	}
	return v
}

// matchIons appends to dst every product that has an experimental peak within
// tol, using the closest peak. Products are visited in order, so the result and
// any score summed over it are deterministic.
func matchIons(dst []core.MatchedIon, pk peaks, products []core.Product, tol massdiff.Tolerance) []core.MatchedIon {
	dst = dst[:0]
	if len(pk.masses) == 0 {
		return dst
	}
	for _, prod := range products {
		t := prod.NeutralMass
		i := sort.SearchFloat64s(pk.masses, t)
		best := -1
		switch {
		case i == len(pk.masses):
			best = i - 1
		case i == 0:
			best = 0
		case t-pk.masses[i-1] <= pk.masses[i]-t:
			best = i - 1
		default:
			best = i
		}
		if !tol.Within(pk.masses[best], t) {
			continue
		}
		dst = append(dst, core.MatchedIon{
			Product:   prod,
			MZ:        core.ToMZ(pk.masses[best], 1),
			Intensity: pk.intensities[best],
			Charge:    1,
		})
	}
	return dst
}

// morpheusScore counts matched ions plus the fraction of total ion current they
// explain.
func morpheusScore(matched []core.MatchedIon, tic float64) float64 {
	score := 0.0
	for _, m := range matched {
		score++
		if tic > 0 {
			score += m.Intensity / tic
		}
	}
	return score
}

// Score matches a peptide against one scan and returns the Morpheus score with
// the matched ions.
func Score(pep *core.Peptide, s *scan.WithMass, p Params) (float64, []core.MatchedIon) {
	pk := viewOf(s, &p)
	matched := matchIons(nil, pk, pep.Fragment(p.Dissociation, nil), p.FragmentTolerance)
	return morpheusScore(matched, pk.tic), matched
}

// recoverAllocation turns a runtime panic in a worker, such as a failed scoring
// buffer allocation, into an error so partial results stay usable.
func recoverAllocation(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(runtime.Error); ok {
			*err = fmt.Errorf("search worker: %w", errors.Join(errAllocation, e))
			return
		}
		panic(r)
	}
}

var errAllocation = errors.New("allocation failure")

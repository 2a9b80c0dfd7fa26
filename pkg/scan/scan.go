// Package scan pairs experimental spectra with assumed precursor charges and
// keeps them ordered by assumed precursor mass.
package scan

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

// ErrNotMassSorted is returned when scans are not in non-decreasing mass order.
var ErrNotMassSorted = errors.New("scans are not sorted by precursor mass")

// WithMass is one spectrum under one precursor charge hypothesis. Fragment peaks
// are treated as singly charged and converted to neutral masses.
type WithMass struct {
	Spectrum      *core.Spectrum
	Charge        int
	PrecursorMZ   float64
	PrecursorMass float64
	// FragmentMasses are ascending neutral masses; Intensities is parallel.
	FragmentMasses []float64
	Intensities    []float64

	TotalIonCurrent float64
	// Index is the position in the owning List.
	Index int
}

// New builds a scan hypothesis for spectrum at the given charge.
func New(spectrum *core.Spectrum, charge int) *WithMass {
	peaks := spectrum.Peaks
	if !spectrum.ArePeaksSorted() {
		peaks = append([]core.Peak(nil), peaks...)
		sort.Slice(peaks, func(i, j int) bool { return peaks[i].MZ < peaks[j].MZ })
	}

	s := &WithMass{
		Spectrum:       spectrum,
		Charge:         charge,
		PrecursorMZ:    spectrum.PrecursorMZ,
		PrecursorMass:  core.ToMass(spectrum.PrecursorMZ, charge),
		FragmentMasses: make([]float64, 0, len(peaks)),
		Intensities:    make([]float64, 0, len(peaks)),
		Index:          -1,
	}
	for _, p := range peaks {
		if p.Intensity <= 0 {
			continue
		}
		s.FragmentMasses = append(s.FragmentMasses, core.ToMass(p.MZ, 1))
		s.Intensities = append(s.Intensities, p.Intensity)
		s.TotalIonCurrent += p.Intensity
	}
	return s
}

// Hypotheses returns one scan per plausible charge: the spectrum's own charge
// when known, otherwise every charge in [minCharge, maxCharge].
func Hypotheses(spectrum *core.Spectrum, minCharge, maxCharge int) []*WithMass {
	if spectrum.Charge > 0 {
		return []*WithMass{New(spectrum, spectrum.Charge)}
	}
	out := make([]*WithMass, 0, maxCharge-minCharge+1)
	for z := minCharge; z <= maxCharge; z++ {
		out = append(out, New(spectrum, z))
	}
	return out
}

// List is an immutable, mass-sorted slice of scans.
type List struct {
	scans  []*WithMass
	masses []float64
}

// NewList sorts scans by precursor mass, assigns their Index and validates the
// order once. Scans with a non-finite mass are rejected.
func NewList(scans []*WithMass) (*List, error) {
	sorted := append([]*WithMass(nil), scans...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PrecursorMass < sorted[j].PrecursorMass
	})
	return FromSorted(sorted)
}

// FromSorted wraps scans already ordered by precursor mass.
func FromSorted(scans []*WithMass) (*List, error) {
	l := &List{scans: scans, masses: make([]float64, len(scans))}
	for i, s := range scans {
		if math.IsNaN(s.PrecursorMass) || math.IsInf(s.PrecursorMass, 0) {
			return nil, fmt.Errorf("scan %d: invalid precursor mass %v", i, s.PrecursorMass)
		}
		if i > 0 && s.PrecursorMass < l.masses[i-1] {
			return nil, fmt.Errorf("%w: scan %d (%.6f) follows %.6f", ErrNotMassSorted, i, s.PrecursorMass, l.masses[i-1])
		}
		s.Index = i
		l.masses[i] = s.PrecursorMass
	}
	return l, nil
}

// Len returns the number of scans.
func (l *List) Len() int { return len(l.scans) }

// At returns scan i.
func (l *List) At(i int) *WithMass { return l.scans[i] }

// Scans returns the underlying slice. Callers must not modify it.
func (l *List) Scans() []*WithMass { return l.scans }

// Masses returns the ascending precursor masses.
func (l *List) Masses() []float64 { return l.masses }

// Range returns the half-open index range of scans whose mass lies in the closed
// interval [lo, hi].
func (l *List) Range(lo, hi float64) (start, end int) {
	start = sort.SearchFloat64s(l.masses, lo)
	end = start
	for end < len(l.masses) && l.masses[end] <= hi {
		end++
	}
	return start, end
}

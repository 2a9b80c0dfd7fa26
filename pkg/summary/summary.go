// Package summary computes descriptive score statistics over stored search
// results.
package summary

import (
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ChrisMcGann/DBSearch/pkg/writer"
)

// Scores describes one score distribution.
type Scores struct {
	N      int
	Mean   float64
	StdDev float64
	Median float64
	Min    float64
	Max    float64
}

func describe(x []float64) Scores {
	if len(x) == 0 {
		return Scores{}
	}
	sorted := slices.Clone(x)
	slices.Sort(sorted)
	s := Scores{
		N:      len(sorted),
		Mean:   stat.Mean(sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
	}
	if len(sorted) > 1 {
		s.StdDev = stat.StdDev(sorted, nil)
	}
	return s
}

// Summary describes one search.
type Summary struct {
	Search    string
	PSMs      int
	Ambiguous int // records with more than one tied candidate
	Target    Scores
	Decoy     Scores
	// Notches counts records by the notch of their first candidate.
	Notches map[int]int
}

// Summarize computes the summary of records.
func Summarize(search string, records []writer.Record) Summary {
	s := Summary{
		Search:  search,
		PSMs:    len(records),
		Notches: make(map[int]int),
	}

	var targets, decoys []float64
	for i := range records {
		r := &records[i]
		if len(r.Candidates) > 1 {
			s.Ambiguous++
		}
		if len(r.Candidates) > 0 {
			s.Notches[r.Candidates[0].Notch]++
		}
		if r.Decoy() {
			decoys = append(decoys, r.Score)
		} else {
			targets = append(targets, r.Score)
		}
	}
	s.Target = describe(targets)
	s.Decoy = describe(decoys)

	return s
}

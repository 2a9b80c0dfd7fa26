// Package search scores candidate peptides against scans. Classic visits every
// candidate and finds acceptable scans by precursor mass; Modern visits every
// scan and finds candidates through the fragment index. Both feed psm tables
// through the same merge rule and agree on the best match per scan.
package search

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/massdiff"
	"github.com/ChrisMcGann/DBSearch/pkg/progress"
	"github.com/ChrisMcGann/DBSearch/pkg/psm"
)

// Params configures both search engines.
type Params struct {
	FragmentTolerance massdiff.Tolerance
	// ScoreCutoff is the lowest score submitted to the result table.
	ScoreCutoff float64
	// AddCompIons also matches complementary fragments mirrored through the
	// precursor mass.
	AddCompIons        bool
	ReportAllAmbiguity bool
	Dissociation       core.DissociationType
	Workers            int
	// ScoreTolerance is the merge tolerance; zero means psm.ScoreTolerance.
	ScoreTolerance float64

	Progress progress.Func
	Logger   *slog.Logger
}

// DefaultParams returns 20 ppm fragment matching with a score cutoff of 5.
func DefaultParams() Params {
	return Params{
		FragmentTolerance:  massdiff.PPMTolerance(20),
		ScoreCutoff:        5,
		ReportAllAmbiguity: true,
		Dissociation:       core.HCD,
		Workers:            runtime.GOMAXPROCS(0),
	}
}

func (p *Params) fill() error {
	if p.FragmentTolerance.Value < 0 {
		return fmt.Errorf("%w: negative fragment tolerance", massdiff.ErrInvalidTolerance)
	}
	if p.Workers <= 0 {
		p.Workers = runtime.GOMAXPROCS(0)
	}
	if p.ScoreTolerance <= 0 {
		p.ScoreTolerance = psm.ScoreTolerance
	}
	if p.Logger == nil {
		p.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return nil
}

func (p *Params) newTable(numScans int, name string) *psm.Table {
	return psm.NewTable(numScans,
		psm.WithName(name),
		psm.WithAmbiguity(p.ReportAllAmbiguity),
		psm.WithTolerance(p.ScoreTolerance),
	)
}

// maxIntensityScore bounds the intensity part of a score. Products of one ion
// series pick distinct peaks, so a series explains at most the total ion current,
// but different series may share a peak. Complementary ions repeat every peak
// once per shift. Holds while the fragment tolerance is narrower than half the
// lightest residue.
func (p *Params) maxIntensityScore() float64 {
	perSeries := 1
	if p.AddCompIons {
		perSeries += len(p.Dissociation.ComplementaryShifts())
	}
	return float64(len(p.Dissociation.ProductTypes()) * perSeries)
}

package search

import (
	"context"
	"errors"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/index"
	"github.com/ChrisMcGann/DBSearch/pkg/massdiff"
	"github.com/ChrisMcGann/DBSearch/pkg/progress"
	"github.com/ChrisMcGann/DBSearch/pkg/psm"
	"github.com/ChrisMcGann/DBSearch/pkg/scan"
)

// Classic scores every candidate of src against every scan whose precursor mass
// one of the acceptors allows, returning one table per acceptor.
//
// Workers take partitions of src round-robin and keep private partial tables
// that are merged once per worker. Cancelling ctx stops every worker before its
// next partition; the tables then hold a valid partial result and the error is
// nil.
func Classic(ctx context.Context, src index.Source, scans *scan.List, acceptors []massdiff.Acceptor, p Params) ([]*psm.Table, error) {
	if len(acceptors) == 0 {
		return nil, errors.New("classic search needs at least one acceptor")
	}
	if err := p.fill(); err != nil {
		return nil, err
	}
	log := p.Logger

	tables := make([]*psm.Table, len(acceptors))
	for i, a := range acceptors {
		tables[i] = p.newTable(scans.Len(), a.Name())
	}
	if scans.Len() == 0 || src.Len() == 0 {
		return tables, nil
	}

	views := experimental(scans, &p)
	n := src.Len()
	workers := min(p.Workers, n)
	tracker := progress.NewTracker("classic search", n, p.Progress)
	log.Info("starting classic search", "partitions", n, "scans", scans.Len(), "acceptors", len(acceptors), "workers", workers)

	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		g.Go(func() (err error) {
			partials := make([]*psm.Partial, len(tables))
			for i, t := range tables {
				partials[i] = t.NewPartial()
			}
			defer func() {
				for i, t := range tables {
					t.Merge(partials[i])
				}
			}()
			defer recoverAllocation(&err)

			var (
				peptides []*core.Peptide
				products []core.Product
				matched  []core.MatchedIon
			)
			for part := w; part < n; part += workers {
				if ctx.Err() != nil {
					return nil
				}
				peptides = src.Digest(part, peptides[:0])
				for _, pep := range peptides {
					mass := pep.MonoisotopicMass()
					if math.IsNaN(mass) {
						continue
					}
					products = pep.Fragment(p.Dissociation, products)

					for a, acceptor := range acceptors {
						for _, iv := range acceptor.IntervalsFromTheoretical(mass) {
							start, end := scans.Range(iv.Min, iv.Max)
							for s := start; s < end; s++ {
								matched = matchIons(matched, views[s], products, p.FragmentTolerance)
								score := morpheusScore(matched, views[s].tic)
								if score < p.ScoreCutoff {
									continue
								}
								partials[a].Submit(s, psm.Candidate{
									Notch:   iv.Notch,
									Peptide: pep,
									Matched: slices.Clone(matched),
								}, score)
							}
						}
					}
				}
				tracker.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		log.Warn("classic search cancelled, results are partial")
	}
	return tables, err
}

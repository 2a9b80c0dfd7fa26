package search

import (
	"cmp"
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

// Modern searches every scan against the fragment index in two passes.
//
// The rough pass counts, per candidate, the experimental peaks that fall into one
// of its fragment bins, restricted to candidates whose precursor mass the acceptor
// may allow. A candidate is kept the moment its count reaches the rough cutoff
// and the acceptor accepts its exact mass. The fine pass rescores kept candidates
// exactly, highest count first, and stops once no remaining count could reach the
// best exact score. Counters saturate at 255; saturated candidates are always
// rescored. The best match is exact; the runner-up may be too low.
//
// Scans are dealt round-robin to workers, each owning one counter per candidate
// for its lifetime. Cancelling ctx stops every worker before its next scan; the
// table then holds a valid partial result and the error is nil.
func Modern(ctx context.Context, idx *index.Index, scans *scan.List, acceptor massdiff.Acceptor, p Params) (*psm.Table, error) {
	if idx == nil || acceptor == nil {
		return nil, errors.New("modern search needs an index and an acceptor")
	}
	if err := p.fill(); err != nil {
		return nil, err
	}
	log := p.Logger
	if p.Dissociation != idx.Dissociation {
		log.Warn("index was built for a different dissociation type, using the index's",
			"index", idx.Dissociation, "requested", p.Dissociation)
		p.Dissociation = idx.Dissociation
	}

	table := p.newTable(scans.Len(), acceptor.Name())
	n := scans.Len()
	if n == 0 || len(idx.Peptides) == 0 {
		return table, nil
	}

	views := experimental(scans, &p)
	workers := min(p.Workers, n)
	tracker := progress.NewTracker("modern search", n, p.Progress)
	roughCutoff := p.roughCutoff()
	log.Info("starting modern search", "scans", n, "candidates", len(idx.Peptides), "workers", workers, "rough_cutoff", roughCutoff)

	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		g.Go(func() (err error) {
			defer recoverAllocation(&err)

			m := &modernWorker{
				idx:         idx,
				acceptor:    acceptor,
				p:           &p,
				table:       table,
				roughCutoff: roughCutoff,
				counts:      make([]uint8, len(idx.Peptides)),
			}
			for s := w; s < n; s += workers {
				if ctx.Err() != nil {
					return nil
				}
				m.search(scans.At(s), views[s])
				tracker.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	if ctx.Err() != nil {
		log.Warn("modern search cancelled, results are partial")
	}
	return table, err
}

// roughCutoff is the lowest peak count a candidate scoring at least ScoreCutoff
// can have, clamped to the counter range.
func (p *Params) roughCutoff() uint8 {
	c := math.Ceil(p.ScoreCutoff - p.maxIntensityScore())
	return uint8(max(1, min(c, math.MaxUint8)))
}

type modernWorker struct {
	idx         *index.Index
	acceptor    massdiff.Acceptor
	p           *Params
	table       *psm.Table
	roughCutoff uint8

	// counts is indexed by candidate and cleared per scan.
	counts   []uint8
	kept     []int32
	products []core.Product
	matched  []core.MatchedIon
}

func (m *modernWorker) search(s *scan.WithMass, pk peaks) {
	clear(m.counts)
	m.kept = m.kept[:0]

	lo, hi := bounds(m.acceptor.IntervalsFromObserved(s.PrecursorMass))
	if lo > hi {
		return
	}
	m.rough(s, pk, lo, hi)
	m.fine(s, pk)
}

// bounds returns the hull of intervals widened by a few ulps; exact acceptance is
// checked per candidate.
func bounds(intervals []massdiff.AllowedInterval) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, iv := range intervals {
		lo = min(lo, iv.Min)
		hi = max(hi, iv.Max)
	}
	return lo - slack(lo), hi + slack(hi)
}

func slack(m float64) float64 {
	if math.IsInf(m, 0) {
		return 0
	}
	return 1e-12 * max(1, math.Abs(m))
}

func (m *modernWorker) rough(s *scan.WithMass, pk peaks, lo, hi float64) {
	idx := m.idx
	bpd := float64(idx.BinsPerDalton)
	lastBin := idx.NumBins() - 1

	for _, e := range pk.masses {
		r := m.p.FragmentTolerance.Inverse(e)
		first := max(0, int(math.Floor(r.Min*bpd)))
		last := min(lastBin, int(math.Ceil(r.Max*bpd)))
		for b := first; b <= last; b++ {
			start, end := idx.MassRange(b, lo, hi)
			for _, id := range idx.Bin(b)[start:end] {
				c := m.counts[id]
				if c == math.MaxUint8 {
					continue
				}
				c++
				m.counts[id] = c
				if c != m.roughCutoff {
					continue
				}
				if _, ok := m.acceptor.Accepts(s.PrecursorMass, idx.Mass(id)); ok {
					m.kept = append(m.kept, id)
				}
			}
		}
	}
}

func (m *modernWorker) fine(s *scan.WithMass, pk peaks) {
	slices.SortFunc(m.kept, func(a, b int32) int {
		if c := cmp.Compare(m.counts[b], m.counts[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})

	eps := m.p.ScoreTolerance
	ceiling := m.p.maxIntensityScore()
	best := math.Inf(-1)
	for _, id := range m.kept {
		// a saturated counter no longer bounds the match count
		if c := m.counts[id]; c < math.MaxUint8 && float64(c)+ceiling < best-eps {
			break
		}

		pep := m.idx.Peptides[id]
		m.products = pep.Fragment(m.idx.Dissociation, m.products)
		m.matched = matchIons(m.matched, pk, m.products, m.p.FragmentTolerance)
		score := morpheusScore(m.matched, pk.tic)
		if score < m.p.ScoreCutoff {
			continue
		}

		notch, _ := m.acceptor.Accepts(s.PrecursorMass, pep.MonoisotopicMass())
		m.table.Submit(s.Index, psm.Candidate{
			Notch:   notch,
			Peptide: pep,
			Matched: slices.Clone(m.matched),
		}, score)
		best = max(best, score)
	}
}

// Package index builds the mass-sorted candidate list and the fragment index
// over it.
//
// Candidates are deduplicated by structural identity, sorted by precursor mass
// and numbered 0..N-1. Every theoretical fragment of every candidate is then
// discretized into a bin, and each bin lists the candidates that produced it.
// Candidates are appended in index order, so every bin is non-decreasing and a
// precursor mass window inside a bin can be located by binary search.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/progress"
)

// ErrConfigTooLarge is returned when the fragment bin array cannot be allocated.
var ErrConfigTooLarge = errors.New("configuration too large: lower the maximum fragment mass or use classic search")

const (
	// DefaultBinsPerDalton gives a bin width of 0.001 Da.
	DefaultBinsPerDalton = 1000

	DefaultMaxFragmentMass = 30000.0

	// DefaultMaxBins bounds the offsets array at 1 GiB.
	DefaultMaxBins = 1 << 28
)

// Source produces candidate peptides partition by partition. Digest must be safe
// for concurrent calls with distinct i.
type Source interface {
	Len() int
	Digest(i int, dst []*core.Peptide) []*core.Peptide
}

// Partitions is a Source over pre-built peptides.
type Partitions [][]*core.Peptide

func (p Partitions) Len() int { return len(p) }

func (p Partitions) Digest(i int, dst []*core.Peptide) []*core.Peptide {
	return append(dst, p[i]...)
}

// Config controls index construction.
type Config struct {
	BinsPerDalton   int
	MaxFragmentMass float64
	// Deduplicate keeps one candidate per structural identity.
	Deduplicate  bool
	Workers      int
	Dissociation core.DissociationType
	MaxBins      int
	Progress     progress.Func
	Logger       *slog.Logger
}

// DefaultConfig returns the default index configuration.
func DefaultConfig() Config {
	return Config{
		BinsPerDalton:   DefaultBinsPerDalton,
		MaxFragmentMass: DefaultMaxFragmentMass,
		Deduplicate:     true,
		Workers:         runtime.GOMAXPROCS(0),
		Dissociation:    core.HCD,
		MaxBins:         DefaultMaxBins,
	}
}

func (c *Config) fill() {
	if c.BinsPerDalton <= 0 {
		c.BinsPerDalton = DefaultBinsPerDalton
	}
	if c.MaxFragmentMass <= 0 {
		c.MaxFragmentMass = DefaultMaxFragmentMass
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.MaxBins <= 0 {
		c.MaxBins = DefaultMaxBins
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}

// Index is the mass-sorted candidate list and its fragment index. It is
// immutable after Build or Load and safe for concurrent readers.
type Index struct {
	// Peptides is non-decreasing by monoisotopic mass; Peptides[i].Index == i.
	Peptides []*core.Peptide

	BinsPerDalton   int
	MaxFragmentMass float64
	Dissociation    core.DissociationType

	masses   []float64
	offsets  []uint32
	postings []int32
}

// Build digests src and constructs the index. Cancelling ctx stops digestion at
// the next partition and indexes whatever was collected; it is not an error.
func Build(ctx context.Context, src Source, cfg Config) (*Index, error) {
	cfg.fill()
	log := cfg.Logger

	numBins, err := binCount(cfg)
	if err != nil {
		return nil, err
	}

	peptides, err := collect(ctx, src, cfg)
	if err != nil {
		return nil, err
	}
	log.Info("digestion complete", "candidates", len(peptides), "partitions", src.Len(), "deduplicate", cfg.Deduplicate)

	slices.SortFunc(peptides, core.Compare)
	for i, p := range peptides {
		peptides[i] = p.WithIndex(i)
	}

	idx := &Index{
		Peptides:        peptides,
		BinsPerDalton:   cfg.BinsPerDalton,
		MaxFragmentMass: cfg.MaxFragmentMass,
		Dissociation:    cfg.Dissociation,
		masses:          make([]float64, len(peptides)),
	}
	for i, p := range peptides {
		idx.masses[i] = p.MonoisotopicMass()
	}

	if err := idx.fillBins(numBins, cfg); err != nil {
		return nil, err
	}
	log.Info("fragment index built", "bins", numBins, "postings", len(idx.postings))
	return idx, nil
}

func binCount(cfg Config) (int, error) {
	bins := math.Ceil(cfg.MaxFragmentMass)*float64(cfg.BinsPerDalton) + 1
	if bins > float64(cfg.MaxBins) || bins > math.MaxInt32 {
		return 0, fmt.Errorf("%w (%.0f fragment bins for %.0f Da at %d bins/Da)", ErrConfigTooLarge, bins, cfg.MaxFragmentMass, cfg.BinsPerDalton)
	}
	return int(bins), nil
}

// collect digests every partition across cfg.Workers goroutines, taking
// partitions round-robin.
func collect(ctx context.Context, src Source, cfg Config) ([]*core.Peptide, error) {
	n := src.Len()
	workers := min(cfg.Workers, max(n, 1))
	tracker := progress.NewTracker("digest", n, cfg.Progress)

	var unique *uniqueSet
	if cfg.Deduplicate {
		unique = newUniqueSet()
	}
	all := &appendSet{}

	g := new(errgroup.Group)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			var buf []*core.Peptide
			var mine []*core.Peptide
			local := make(map[string]*core.Peptide)

			for i := w; i < n; i += workers {
				if ctx.Err() != nil {
					break
				}
				buf = src.Digest(i, buf[:0])
				clear(local)
				for _, p := range buf {
					if math.IsNaN(p.MonoisotopicMass()) {
						continue
					}
					if unique == nil {
						mine = append(mine, p)
						continue
					}
					key := identity(p)
					if prev, ok := local[key]; ok && core.CompareOrigin(prev, p) <= 0 {
						continue
					}
					local[key] = p
				}
				for key, p := range local {
					unique.add(key, p)
				}
				tracker.Add(1)
			}

			if unique == nil {
				all.append(mine)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if unique != nil {
		return unique.peptides(), nil
	}
	return all.peptides, nil
}

// fillBins allocates the CSR bin arrays and fills them in candidate order.
func (idx *Index) fillBins(numBins int, cfg Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(runtime.Error); ok {
				err = fmt.Errorf("%w: %v", ErrConfigTooLarge, e)
				return
			}
			panic(r)
		}
	}()

	counts := make([]uint32, numBins+1)
	tracker := progress.NewTracker("index", 2*len(idx.Peptides), cfg.Progress)
	var products []core.Product

	total := 0
	for _, p := range idx.Peptides {
		products = p.Fragment(idx.Dissociation, products)
		for _, prod := range products {
			if bin, ok := idx.bin(prod.NeutralMass); ok {
				counts[bin+1]++
				total++
			}
		}
		tracker.Add(1)
	}
	if uint64(total) > math.MaxUint32 {
		return fmt.Errorf("%w: %d fragment postings", ErrConfigTooLarge, total)
	}
	for b := 1; b <= numBins; b++ {
		counts[b] += counts[b-1]
	}

	idx.offsets = counts
	idx.postings = make([]int32, total)
	cursor := slices.Clone(counts[:numBins])
	for i, p := range idx.Peptides {
		products = p.Fragment(idx.Dissociation, products)
		for _, prod := range products {
			if bin, ok := idx.bin(prod.NeutralMass); ok {
				idx.postings[cursor[bin]] = int32(i)
				cursor[bin]++
			}
		}
		tracker.Add(1)
	}
	return nil
}

// bin discretizes a fragment mass; masses outside (0, MaxFragmentMass) have no bin.
func (idx *Index) bin(mass float64) (int, bool) {
	if mass <= 0 || mass >= idx.MaxFragmentMass {
		return 0, false
	}
	return int(math.Round(mass * float64(idx.BinsPerDalton))), true
}

// NumBins returns the number of fragment bins.
func (idx *Index) NumBins() int {
	return len(idx.offsets) - 1
}

// NumPostings returns the total number of bin entries.
func (idx *Index) NumPostings() int {
	return len(idx.postings)
}

// Bin returns the candidate indices of bin b in non-decreasing order. The slice
// must not be modified.
func (idx *Index) Bin(b int) []int32 {
	return idx.postings[idx.offsets[b]:idx.offsets[b+1]]
}

// Mass returns the precursor mass of candidate i.
func (idx *Index) Mass(i int32) float64 {
	return idx.masses[i]
}

// MassRange returns the sub-range [start, end) of Bin(b) whose candidates have a
// precursor mass in the closed interval [lo, hi].
func (idx *Index) MassRange(b int, lo, hi float64) (start, end int) {
	ids := idx.Bin(b)
	start = sort.Search(len(ids), func(i int) bool { return idx.masses[ids[i]] >= lo })
	end = start + sort.Search(len(ids)-start, func(i int) bool { return idx.masses[ids[start+i]] > hi })
	return start, end
}

// CandidateRange returns the half-open range of candidates with a precursor mass
// in [lo, hi].
func (idx *Index) CandidateRange(lo, hi float64) (start, end int) {
	start = sort.SearchFloat64s(idx.masses, lo)
	end = start + sort.Search(len(idx.masses)-start, func(i int) bool { return idx.masses[start+i] > hi })
	return start, end
}

// Partitions splits the candidate list into chunks of at most size peptides so
// exhaustive search can run over exactly the indexed candidates.
func (idx *Index) Partitions(size int) Partitions {
	if size <= 0 {
		size = 1
	}
	var parts Partitions
	for start := 0; start < len(idx.Peptides); start += size {
		parts = append(parts, idx.Peptides[start:min(start+size, len(idx.Peptides))])
	}
	return parts
}

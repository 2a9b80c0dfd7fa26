package psm

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Option configures a Table.
type Option func(*options)

type options struct {
	name      string
	ambiguity bool
	eps       float64
}

// WithName labels the table, usually with the acceptor name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithAmbiguity keeps every candidate tied with the best score instead of one.
func WithAmbiguity(report bool) Option {
	return func(o *options) { o.ambiguity = report }
}

// WithTolerance sets the tolerance under which scores are equal.
func WithTolerance(eps float64) Option {
	return func(o *options) { o.eps = eps }
}

type slot struct {
	mu    sync.Mutex
	match *SpectralMatch
}

// Table holds one lazily created SpectralMatch per scan. Submissions to different
// scans never contend.
type Table struct {
	opts    options
	slots   []slot
	mergeMu sync.Mutex
}

// NewTable returns an empty table for numScans scans.
func NewTable(numScans int, opts ...Option) *Table {
	o := options{ambiguity: true, eps: ScoreTolerance}
	for _, opt := range opts {
		opt(&o)
	}
	return &Table{opts: o, slots: make([]slot, numScans)}
}

// Name returns the table label.
func (t *Table) Name() string { return t.opts.name }

// Len returns the number of scan slots.
func (t *Table) Len() int { return len(t.slots) }

// Submit merges a scored candidate into the scan's slot.
func (t *Table) Submit(scan int, c Candidate, score float64) {
	s := &t.slots[scan]
	s.mu.Lock()
	if s.match == nil {
		s.match = newMatch(scan, c, score)
	} else {
		s.match.add(c, score, t.opts.ambiguity, t.opts.eps)
	}
	s.mu.Unlock()
}

// Get returns the match for scan, or nil when nothing was accepted. It must not
// race with Submit or Merge on the same scan.
func (t *Table) Get(scan int) *SpectralMatch {
	return t.slots[scan].match
}

// Matches returns the non-nil matches in scan order.
func (t *Table) Matches() []*SpectralMatch {
	var out []*SpectralMatch
	for i := range t.slots {
		if m := t.slots[i].match; m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Partial is a private, single-goroutine accumulator that is merged into its
// Table once.
type Partial struct {
	opts    options
	matches map[int]*SpectralMatch
	touched *roaring.Bitmap
}

// NewPartial returns an empty accumulator with the table's options.
func (t *Table) NewPartial() *Partial {
	return &Partial{
		opts:    t.opts,
		matches: make(map[int]*SpectralMatch),
		touched: roaring.New(),
	}
}

// Submit merges a scored candidate into the partial result.
func (p *Partial) Submit(scan int, c Candidate, score float64) {
	if m, ok := p.matches[scan]; ok {
		m.add(c, score, p.opts.ambiguity, p.opts.eps)
		return
	}
	p.matches[scan] = newMatch(scan, c, score)
	p.touched.Add(uint32(scan))
}

// Len returns the number of scans with a match.
func (p *Partial) Len() int {
	return int(p.touched.GetCardinality())
}

// Merge folds p into t under a single table-wide critical section. p must not be
// used afterwards.
func (t *Table) Merge(p *Partial) {
	t.mergeMu.Lock()
	defer t.mergeMu.Unlock()

	it := p.touched.Iterator()
	for it.HasNext() {
		scan := int(it.Next())
		m := p.matches[scan]
		s := &t.slots[scan]
		s.mu.Lock()
		if s.match == nil {
			s.match = m
		} else {
			s.match.merge(m, t.opts.ambiguity, t.opts.eps)
		}
		s.mu.Unlock()
	}
	p.matches = nil
	p.touched.Clear()
}

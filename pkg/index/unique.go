package index

import (
	"sync"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

// identity is the deduplication key: targets and decoys never collapse.
func identity(p *core.Peptide) string {
	if p.Decoy {
		return "decoy:" + p.FullSequence()
	}
	return p.FullSequence()
}

// uniqueSet keeps one peptide per identity. Lookups of identities already seen
// take no lock; inserts re-check under the mutex. When two origins compete the
// one ordering first by core.CompareOrigin wins regardless of arrival order.
type uniqueSet struct {
	seen sync.Map // identity -> *core.Peptide
	mu   sync.Mutex
}

func newUniqueSet() *uniqueSet {
	return &uniqueSet{}
}

func (u *uniqueSet) add(key string, p *core.Peptide) bool {
	if prev, ok := u.seen.Load(key); ok && core.CompareOrigin(prev.(*core.Peptide), p) <= 0 {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if prev, ok := u.seen.Load(key); ok && core.CompareOrigin(prev.(*core.Peptide), p) <= 0 {
		return false
	}
	u.seen.Store(key, p)
	return true
}

func (u *uniqueSet) peptides() []*core.Peptide {
	var out []*core.Peptide
	u.seen.Range(func(_, v any) bool {
		out = append(out, v.(*core.Peptide))
		return true
	})
	return out
}

// appendSet collects per-worker slices when deduplication is off.
type appendSet struct {
	mu       sync.Mutex
	peptides []*core.Peptide
}

func (a *appendSet) append(ps []*core.Peptide) {
	a.mu.Lock()
	a.peptides = append(a.peptides, ps...)
	a.mu.Unlock()
}

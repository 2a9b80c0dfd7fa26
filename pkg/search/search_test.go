package search

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/digest"
	"github.com/ChrisMcGann/DBSearch/pkg/index"
	"github.com/ChrisMcGann/DBSearch/pkg/massdiff"
	"github.com/ChrisMcGann/DBSearch/pkg/progress"
	"github.com/ChrisMcGann/DBSearch/pkg/psm"
	"github.com/ChrisMcGann/DBSearch/pkg/scan"
)

type fixture struct {
	db      *digest.Database
	idx     *index.Index
	scans   *scan.List
	planted map[int]string // scan index -> full sequence
}

func randomProteins(rng *rand.Rand, n int) []digest.Protein {
	const residues = "ACDEFGHIKLMNPQRSTVWY"
	proteins := make([]digest.Protein, n)
	for i := range proteins {
		var b strings.Builder
		length := 100 + rng.Intn(150)
		for j := 0; j < length; j++ {
			b.WriteByte(residues[rng.Intn(len(residues))])
		}
		proteins[i] = digest.Protein{Accession: fmt.Sprintf("PROT%03d", i), Sequence: b.String()}
	}
	return proteins
}

// spectrumFor builds a singly charged fragment spectrum containing every b and
// y ion of pep plus noise.
func spectrumFor(rng *rand.Rand, pep *core.Peptide, charge int) *core.Spectrum {
	spec := &core.Spectrum{
		PrecursorMZ: core.ToMZ(pep.MonoisotopicMass(), charge),
		Charge:      charge,
		Title:       pep.FullSequence(),
	}
	for _, prod := range pep.Fragment(core.HCD, nil) {
		spec.Peaks = append(spec.Peaks, core.Peak{MZ: core.ToMZ(prod.NeutralMass, 1), Intensity: 100 + float64(rng.Intn(100))})
	}
	for i := 0; i < 30; i++ {
		spec.Peaks = append(spec.Peaks, core.Peak{MZ: 100 + rng.Float64()*1800, Intensity: 5 + float64(rng.Intn(40))})
	}
	spec.SortPeaks()
	return spec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	rng := rand.New(rand.NewSource(11))

	params := digest.DefaultParams()
	params.MaxMissedCleavages = 0
	params.MaxLength = 20
	db, err := digest.NewDatabase(randomProteins(rng, 40), params, true)
	require.NoError(t, err)

	cfg := index.DefaultConfig()
	cfg.MaxFragmentMass = 4000
	cfg.Workers = 4
	idx, err := index.Build(context.Background(), db, cfg)
	require.NoError(t, err)
	require.Greater(t, len(idx.Peptides), 100)

	var raw []*scan.WithMass
	var sequences []string
	for i := 0; i < len(idx.Peptides); i += len(idx.Peptides) / 60 {
		pep := idx.Peptides[i]
		raw = append(raw, scan.New(spectrumFor(rng, pep, 2), 2))
		sequences = append(sequences, pep.FullSequence())
	}
	for i := 0; i < 15; i++ {
		noise := &core.Spectrum{PrecursorMZ: 400 + rng.Float64()*800, Charge: 2}
		for j := 0; j < 40; j++ {
			noise.Peaks = append(noise.Peaks, core.Peak{MZ: 100 + rng.Float64()*1500, Intensity: 10 + float64(rng.Intn(90))})
		}
		noise.SortPeaks()
		raw = append(raw, scan.New(noise, 2))
		sequences = append(sequences, "")
	}

	byScan := make(map[*scan.WithMass]string, len(raw))
	for i, s := range raw {
		byScan[s] = sequences[i]
	}
	scans, err := scan.NewList(raw)
	require.NoError(t, err)

	planted := make(map[int]string)
	for i, s := range scans.Scans() {
		if seq := byScan[s]; seq != "" {
			planted[i] = seq
		}
	}
	return &fixture{db: db, idx: idx, scans: scans, planted: planted}
}

func testParams(workers int) Params {
	p := DefaultParams()
	p.FragmentTolerance = massdiff.PPMTolerance(10)
	p.Workers = workers
	return p
}

var matchComparer = cmp.Options{
	cmp.AllowUnexported(psm.SpectralMatch{}),
	cmp.Comparer(func(a, b *core.Peptide) bool {
		return a.FullSequence() == b.FullSequence() && a.Protein == b.Protein && a.Start == b.Start && a.Decoy == b.Decoy
	}),
}

func bestSequences(m *psm.SpectralMatch) []string {
	var out []string
	for _, c := range m.Best() {
		out = append(out, c.Peptide.FullSequence()+"@"+c.Peptide.Protein)
	}
	return out
}

func TestClassicFindsPlantedPeptides(t *testing.T) {
	f := newFixture(t)
	acceptor := massdiff.SinglePpmAroundZero(10)

	tables, err := Classic(context.Background(), f.db, f.scans, []massdiff.Acceptor{acceptor}, testParams(4))
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, acceptor.Name(), tables[0].Name())

	for i, seq := range f.planted {
		m := tables[0].Get(i)
		require.NotNil(t, m, "scan %d (%s)", i, seq)
		var found bool
		for _, c := range m.Best() {
			found = found || c.Peptide.FullSequence() == seq
		}
		assert.True(t, found, "scan %d: want %s among %v", i, seq, bestSequences(m))
		assert.GreaterOrEqual(t, m.Score, 12.0)
	}
}

func TestClassicAndModernAgree(t *testing.T) {
	f := newFixture(t)
	acceptor := massdiff.SinglePpmAroundZero(10)

	cfg := index.DefaultConfig()
	cfg.MaxFragmentMass = 4000
	cfg.Workers = 4
	cfg.Dissociation = core.EThcD
	ethcd, err := index.Build(context.Background(), f.db, cfg)
	require.NoError(t, err)

	tests := []struct {
		name         string
		idx          *index.Index
		dissociation core.DissociationType
		compIons     bool
	}{
		{"HCD", f.idx, core.HCD, false},
		{"HCD with complementary ions", f.idx, core.HCD, true},
		{"EThcD", ethcd, core.EThcD, false},
		{"EThcD with complementary ions", ethcd, core.EThcD, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams(4)
			p.Dissociation = tt.dissociation
			p.AddCompIons = tt.compIons
			assertAgree(t, f.db, tt.idx, f.scans, acceptor, p)
		})
	}
}

// assertAgree runs both engines and checks they report the same best match for
// every scan.
func assertAgree(t *testing.T, src index.Source, idx *index.Index, scans *scan.List, acceptor massdiff.Acceptor, p Params) {
	t.Helper()

	tables, err := Classic(context.Background(), src, scans, []massdiff.Acceptor{acceptor}, p)
	require.NoError(t, err)
	modern, err := Modern(context.Background(), idx, scans, acceptor, p)
	require.NoError(t, err)

	classic := tables[0]
	for i := 0; i < scans.Len(); i++ {
		c, m := classic.Get(i), modern.Get(i)
		if c == nil {
			assert.Nil(t, m, "scan %d: modern found a match classic did not", i)
			continue
		}
		require.NotNil(t, m, "scan %d: modern missed %v (score %.3f)", i, bestSequences(c), c.Score)
		assert.InDelta(t, c.Score, m.Score, psm.ScoreTolerance, "scan %d", i)
		assert.Equal(t, bestSequences(c), bestSequences(m), "scan %d", i)
		assert.LessOrEqual(t, m.RunnerUp, c.RunnerUp+psm.ScoreTolerance, "modern runner-up never exceeds the exact one")
	}
}

func TestModernCountsPeakSharedAcrossSeries(t *testing.T) {
	// b1 (147.068) and y1 (147.053) of FGE both match one peak
	pep := core.NewPeptide("FGE", nil, "P1", 1, false)
	s := &scan.WithMass{
		PrecursorMass:   pep.MonoisotopicMass(),
		Charge:          1,
		FragmentMasses:  []float64{147.06},
		Intensities:     []float64{100},
		TotalIonCurrent: 100,
	}
	scans, err := scan.FromSorted([]*scan.WithMass{s})
	require.NoError(t, err)

	src := index.Partitions{{pep}}
	cfg := index.DefaultConfig()
	cfg.MaxFragmentMass = 2000
	idx, err := index.Build(context.Background(), src, cfg)
	require.NoError(t, err)

	p := testParams(1)
	p.FragmentTolerance = massdiff.AbsoluteTolerance(0.05)
	p.ScoreCutoff = 3.5

	score, matched := Score(pep, s, p)
	require.Len(t, matched, 2)
	require.InDelta(t, 4.0, score, 1e-9)

	assertAgree(t, src, idx, scans, massdiff.SingleAbsoluteAroundZero(0.5), p)
}

func TestModernRescoresSaturatedCandidates(t *testing.T) {
	// 276 EThcD products saturate the rough counters; the decoy copy has the
	// same products and must tie with the target
	seq := strings.Repeat("ACDEFGHIKLMNQRSTVWY", 4)[:70]
	target := core.NewPeptide(seq, nil, "P1", 1, false)
	decoy := core.NewPeptide(seq, nil, "P1", 1, true)

	s := &scan.WithMass{PrecursorMass: target.MonoisotopicMass(), Charge: 3}
	for _, prod := range target.Fragment(core.EThcD, nil) {
		s.FragmentMasses = append(s.FragmentMasses, prod.NeutralMass)
		s.Intensities = append(s.Intensities, 1)
		s.TotalIonCurrent++
	}
	require.Greater(t, len(s.FragmentMasses), 255)
	scans, err := scan.FromSorted([]*scan.WithMass{s})
	require.NoError(t, err)

	src := index.Partitions{{target, decoy}}
	cfg := index.DefaultConfig()
	cfg.BinsPerDalton = 100
	cfg.MaxFragmentMass = 10000
	cfg.Dissociation = core.EThcD
	idx, err := index.Build(context.Background(), src, cfg)
	require.NoError(t, err)
	require.Len(t, idx.Peptides, 2)

	p := testParams(1)
	p.Dissociation = core.EThcD
	acceptor := massdiff.SinglePpmAroundZero(10)

	modern, err := Modern(context.Background(), idx, scans, acceptor, p)
	require.NoError(t, err)
	require.NotNil(t, modern.Get(0))
	assert.Len(t, modern.Get(0).Best(), 2)
	assert.Greater(t, modern.Get(0).Score, 255.0+p.maxIntensityScore())

	assertAgree(t, src, idx, scans, acceptor, p)
}

func TestMaxIntensityScore(t *testing.T) {
	tests := []struct {
		dissociation core.DissociationType
		compIons     bool
		want         float64
	}{
		{core.HCD, false, 2},
		{core.HCD, true, 4},
		{core.ETD, true, 4},
		{core.EThcD, false, 4},
		{core.EThcD, true, 12},
	}

	for _, tt := range tests {
		p := Params{Dissociation: tt.dissociation, AddCompIons: tt.compIons}
		assert.Equal(t, tt.want, p.maxIntensityScore(), "%s comp=%v", tt.dissociation, tt.compIons)
	}

	p := Params{Dissociation: core.HCD, ScoreCutoff: 3.5}
	assert.Equal(t, uint8(2), p.roughCutoff())
	p.ScoreCutoff = 0
	assert.Equal(t, uint8(1), p.roughCutoff())
}

func TestClassicOverIndexedCandidates(t *testing.T) {
	f := newFixture(t)
	acceptors := []massdiff.Acceptor{massdiff.SinglePpmAroundZero(10)}

	fromDigest, err := Classic(context.Background(), f.db, f.scans, acceptors, testParams(4))
	require.NoError(t, err)
	fromIndex, err := Classic(context.Background(), f.idx.Partitions(50), f.scans, acceptors, testParams(4))
	require.NoError(t, err)

	if diff := cmp.Diff(fromDigest[0].Matches(), fromIndex[0].Matches(), matchComparer); diff != "" {
		t.Errorf("deduplicated candidates change the result (-digest +index):\n%s", diff)
	}
}

func TestDeterministicAcrossWorkerCounts(t *testing.T) {
	f := newFixture(t)
	acceptors := []massdiff.Acceptor{
		massdiff.SinglePpmAroundZero(10),
		massdiff.NewDot("3mm", []float64{0, 1.0029, 2.0052}, massdiff.PPMTolerance(10)),
	}

	var classicRef, modernRef []*psm.SpectralMatch
	for _, workers := range []int{1, 2, 8} {
		tables, err := Classic(context.Background(), f.db, f.scans, acceptors, testParams(workers))
		require.NoError(t, err)
		modern, err := Modern(context.Background(), f.idx, f.scans, acceptors[1], testParams(workers))
		require.NoError(t, err)

		classic := append(tables[0].Matches(), tables[1].Matches()...)
		if classicRef == nil {
			classicRef, modernRef = classic, modern.Matches()
			require.NotEmpty(t, classicRef)
			continue
		}
		if diff := cmp.Diff(classicRef, classic, matchComparer); diff != "" {
			t.Errorf("classic with %d workers differs (-want +got):\n%s", workers, diff)
		}
		if diff := cmp.Diff(modernRef, modern.Matches(), matchComparer); diff != "" {
			t.Errorf("modern with %d workers differs (-want +got):\n%s", workers, diff)
		}
	}
}

func TestCancellationYieldsSubset(t *testing.T) {
	f := newFixture(t)
	acceptor := massdiff.SinglePpmAroundZero(10)

	fullClassic, err := Classic(context.Background(), f.db, f.scans, []massdiff.Acceptor{acceptor}, testParams(2))
	require.NoError(t, err)
	fullModern, err := Modern(context.Background(), f.idx, f.scans, acceptor, testParams(2))
	require.NoError(t, err)

	cancelAt := func(pct int) (context.Context, progress.Func) {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		return ctx, func(r progress.Report) {
			if r.Percent >= pct {
				cancel()
			}
		}
	}

	ctx, fn := cancelAt(20)
	p := testParams(2)
	p.Progress = fn
	partial, err := Classic(ctx, f.db, f.scans, []massdiff.Acceptor{acceptor}, p)
	require.NoError(t, err, "cancellation is not an error")
	require.Less(t, len(partial[0].Matches()), len(fullClassic[0].Matches()))
	for _, m := range partial[0].Matches() {
		full := fullClassic[0].Get(m.ScanIndex)
		require.NotNil(t, full)
		assert.LessOrEqual(t, m.Score, full.Score)
	}

	ctx, fn = cancelAt(20)
	p.Progress = fn
	partialModern, err := Modern(ctx, f.idx, f.scans, acceptor, p)
	require.NoError(t, err)
	require.Less(t, len(partialModern.Matches()), len(fullModern.Matches()))
	for _, m := range partialModern.Matches() {
		if diff := cmp.Diff(fullModern.Get(m.ScanIndex), m, matchComparer); diff != "" {
			t.Errorf("scan %d: a finished scan must equal the uninterrupted result:\n%s", m.ScanIndex, diff)
		}
	}
}

func TestIntervalMaximumIsIncluded(t *testing.T) {
	pep := core.NewPeptide("PEPTIDEKR", nil, "P1", 1, false)
	acceptor := massdiff.SingleAbsoluteAroundZero(0.5)
	iv := acceptor.IntervalsFromTheoretical(pep.MonoisotopicMass())[0]

	s := &scan.WithMass{PrecursorMass: iv.Max, Charge: 2}
	for _, prod := range pep.Fragment(core.HCD, nil) {
		s.FragmentMasses = append(s.FragmentMasses, prod.NeutralMass)
		s.Intensities = append(s.Intensities, 10)
		s.TotalIonCurrent += 10
	}
	scans, err := scan.FromSorted([]*scan.WithMass{s})
	require.NoError(t, err)

	src := index.Partitions{{pep}}
	tables, err := Classic(context.Background(), src, scans, []massdiff.Acceptor{acceptor}, testParams(1))
	require.NoError(t, err)
	require.NotNil(t, tables[0].Get(0), "classic must include a scan at the interval maximum")

	cfg := index.DefaultConfig()
	cfg.MaxFragmentMass = 2000
	idx, err := index.Build(context.Background(), src, cfg)
	require.NoError(t, err)
	modern, err := Modern(context.Background(), idx, scans, acceptor, testParams(1))
	require.NoError(t, err)
	require.NotNil(t, modern.Get(0), "modern must include a scan at the interval maximum")
	assert.Equal(t, tables[0].Get(0).Score, modern.Get(0).Score)
}

func TestOpenSearchAcceptsShiftedPrecursor(t *testing.T) {
	pep := core.NewPeptide("ELVISLIVESK", nil, "P1", 1, false)
	s := &scan.WithMass{PrecursorMass: pep.MonoisotopicMass() + 79.966, Charge: 2}
	for _, prod := range pep.Fragment(core.HCD, nil) {
		s.FragmentMasses = append(s.FragmentMasses, prod.NeutralMass)
		s.Intensities = append(s.Intensities, 1)
		s.TotalIonCurrent++
	}
	scans, err := scan.FromSorted([]*scan.WithMass{s})
	require.NoError(t, err)

	cfg := index.DefaultConfig()
	cfg.MaxFragmentMass = 2000
	idx, err := index.Build(context.Background(), index.Partitions{{pep}}, cfg)
	require.NoError(t, err)

	narrow, err := Modern(context.Background(), idx, scans, massdiff.SinglePpmAroundZero(10), testParams(1))
	require.NoError(t, err)
	assert.Nil(t, narrow.Get(0))

	open, err := Modern(context.Background(), idx, scans, massdiff.Open{}, testParams(1))
	require.NoError(t, err)
	require.NotNil(t, open.Get(0))
	assert.Equal(t, 0, open.Get(0).First().Notch)
	assert.Equal(t, 20.0+1.0, open.Get(0).Score)
}

func TestScore(t *testing.T) {
	pep := core.NewPeptide("PEPTIDE", nil, "P1", 1, false)
	products := pep.Fragment(core.HCD, nil)

	s := &scan.WithMass{PrecursorMass: pep.MonoisotopicMass()}
	// only the y ions
	for _, prod := range products {
		if prod.Type == core.IonY {
			s.FragmentMasses = append(s.FragmentMasses, prod.NeutralMass)
			s.Intensities = append(s.Intensities, 5)
			s.TotalIonCurrent += 5
		}
	}

	p := testParams(1)
	score, matched := Score(pep, s, p)
	assert.Len(t, matched, 6)
	assert.InDelta(t, 7.0, score, 1e-9)

	p.AddCompIons = true
	score, matched = Score(pep, s, p)
	assert.Len(t, matched, 12, "b ions match the mirrored y ions")
	assert.InDelta(t, 14.0, score, 1e-9)
}

func TestInvalidArguments(t *testing.T) {
	scans, err := scan.NewList(nil)
	require.NoError(t, err)

	_, err = Classic(context.Background(), index.Partitions{}, scans, nil, testParams(1))
	assert.Error(t, err)

	_, err = Modern(context.Background(), nil, scans, massdiff.Open{}, testParams(1))
	assert.Error(t, err)
}

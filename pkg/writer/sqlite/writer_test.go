package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/DBSearch/pkg/writer"
)

func record(search string, scanIndex int, score float64, decoy bool) writer.Record {
	rt := 12.5
	return writer.Record{
		Search:         search,
		ScanIndex:      scanIndex,
		Title:          "scan",
		ScanNumber:     scanIndex + 100,
		Charge:         2,
		PrecursorMZ:    500.25,
		PrecursorMass:  998.4854,
		RetentionTime:  &rt,
		Score:          score,
		RunnerUp:       score - 2,
		DeltaScore:     2,
		FragmentMasses: []float64{100.5, 200.25},
		Intensities:    []float64{10, 20},
		Candidates: []writer.Candidate{
			{FullSequence: "PEPTIDEK", BaseSequence: "PEPTIDEK", Protein: "P1", Start: 4, Decoy: decoy, PeptideMass: 998.48, MassError: 0.0054, MatchedIons: []string{"b2", "y1"}},
			{FullSequence: "PEPTLDEK", BaseSequence: "PEPTLDEK", Protein: "P2", Start: 9, Decoy: decoy, Notch: 1},
		},
	}
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	w, err := NewWriter(path)
	require.NoError(t, err)

	search := Search{ID: writer.NewRunID(), Engine: "modern", Acceptor: "5ppmAroundZero", Notches: 1, Database: "db.fasta", Spectra: "run.mgf", Params: "{}"}
	require.NoError(t, w.WriteSearch(search))

	first := record(search.ID, 0, 12, false)
	second := record(search.ID, 3, 7, true)
	second.RetentionTime = nil
	require.NoError(t, w.WriteRecord(&second))
	require.NoError(t, w.WriteRecord(&first))
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close(), "finalize is idempotent")

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	searches, err := r.Searches()
	require.NoError(t, err)
	require.Equal(t, []Search{search}, searches)

	records, err := r.Records(search.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, first, records[0], "records come back in scan order")
	assert.Nil(t, records[1].RetentionTime)
	assert.True(t, records[1].Decoy())
	assert.Equal(t, 7.0, records[1].Score)
}

func TestAppendSecondSearch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	for _, engine := range []string{"classic", "modern"} {
		w, err := NewWriter(path)
		require.NoError(t, err)
		id := writer.NewRunID()
		require.NoError(t, w.WriteSearch(Search{ID: id, Engine: engine}))
		rec := record(id, 0, 9, false)
		require.NoError(t, w.WriteRecord(&rec))
		require.NoError(t, w.Finalize())
	}

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	searches, err := r.Searches()
	require.NoError(t, err)
	require.Len(t, searches, 2)
	assert.Equal(t, "classic", searches[0].Engine)
	assert.Equal(t, "modern", searches[1].Engine)

	for _, s := range searches {
		records, err := r.Records(s.ID)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}

func TestFloatBlobs(t *testing.T) {
	values := []float64{0, -1.5, 1e300}
	got, err := decodeFloat64(encodeFloat64(values))
	require.NoError(t, err)
	assert.Equal(t, values, got)

	_, err = decodeFloat64([]byte{1, 2, 3})
	assert.Error(t, err)
}

package digest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/DBSearch/pkg/core"
)

const testFasta = `>sp|P00001|TEST1_HUMAN First protein
MPEPTIDEKAAAAAAARPEPTIDEK
>sp|P00002|TEST2_HUMAN Second
; a comment
GGGGGGGKPGGGGGGGR
>plain
XXXKAAAAAAAK
`

func TestReadFasta(t *testing.T) {
	proteins, err := ReadAll(strings.NewReader(testFasta))
	require.NoError(t, err)
	require.Len(t, proteins, 3)

	assert.Equal(t, "P00001", proteins[0].Accession)
	assert.Equal(t, "sp|P00001|TEST1_HUMAN First protein", proteins[0].Header)
	assert.Equal(t, "MPEPTIDEKAAAAAAARPEPTIDEK", proteins[0].Sequence)
	assert.Equal(t, "P00002", proteins[1].Accession)
	assert.Equal(t, "GGGGGGGKPGGGGGGGR", proteins[1].Sequence)
	assert.Equal(t, "plain", proteins[2].Accession)
}

func TestReadFastaSequenceBeforeHeader(t *testing.T) {
	_, err := ReadAll(strings.NewReader("PEPTIDE\n>p\nK\n"))
	assert.Error(t, err)
}

func TestReverse(t *testing.T) {
	d := Reverse(Protein{Accession: "P1", Sequence: "MABCD"})
	assert.Equal(t, "MDCBA", d.Sequence)
	assert.Equal(t, "DECOY_P1", d.Accession)
	assert.True(t, d.Decoy)

	d = Reverse(Protein{Accession: "P2", Sequence: "ABCD"})
	assert.Equal(t, "DCBA", d.Sequence)
}

func TestProteaseSites(t *testing.T) {
	tests := []struct {
		protease string
		seq      string
		want     []int
	}{
		{"trypsin", "AAKPAAKAAR", []int{0, 7, 10}},
		{"trypsin/p", "AAKPAAKAAR", []int{0, 3, 7, 10}},
		{"lys-c", "AAKAARAAK", []int{0, 3, 9}},
		{"asp-n", "AADAAD", []int{0, 2, 5, 6}},
	}

	for _, tt := range tests {
		t.Run(tt.protease, func(t *testing.T) {
			p, err := ParseProtease(tt.protease)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.sites(tt.seq))
		})
	}

	_, err := ParseProtease("pepsin")
	assert.Error(t, err)
}

func sequences(peptides []*core.Peptide) []string {
	var out []string
	for _, p := range peptides {
		out = append(out, p.FullSequence())
	}
	return out
}

func TestDigestMissedCleavages(t *testing.T) {
	params := DefaultParams()
	params.FixedMods = nil
	params.VariableMods = nil
	params.MinLength = 3
	params.MaxMissedCleavages = 1

	db, err := NewDatabase([]Protein{{Accession: "P1", Sequence: "MPEPTIDEKAAAAAAARPEPTIDEK"}}, params, false)
	require.NoError(t, err)

	got := sequences(db.Digest(0, nil))
	assert.Equal(t, []string{
		"MPEPTIDEK",
		"PEPTIDEK",
		"MPEPTIDEKAAAAAAARPEPTIDEK",
		"PEPTIDEKAAAAAAARPEPTIDEK",
		"AAAAAAARPEPTIDEK",
	}, got)
}

func TestDigestSkipsUnknownResidues(t *testing.T) {
	params := DefaultParams()
	params.MinLength = 3
	db, err := NewDatabase([]Protein{{Accession: "P1", Sequence: "XXXKAAAAAAAK"}}, params, false)
	require.NoError(t, err)

	for _, p := range db.Digest(0, nil) {
		assert.NotContains(t, p.Sequence, "X")
	}
}

func TestDigestModifications(t *testing.T) {
	params := DefaultParams()
	params.MinLength = 3
	params.MaxMissedCleavages = 0

	db, err := NewDatabase([]Protein{{Accession: "P1", Sequence: "ACMMK"}}, params, false)
	require.NoError(t, err)

	got := sequences(db.Digest(0, nil))
	assert.Equal(t, []string{
		"AC[Carbamidomethyl]MMK",
		"AC[Carbamidomethyl]M[Oxidation]MK",
		"AC[Carbamidomethyl]M[Oxidation]M[Oxidation]K",
		"AC[Carbamidomethyl]MM[Oxidation]K",
	}, got)
}

func TestDigestIsoformCap(t *testing.T) {
	params := DefaultParams()
	params.MinLength = 3
	params.MaxIsoforms = 2

	db, err := NewDatabase([]Protein{{Accession: "P1", Sequence: "AMMMK"}}, params, false)
	require.NoError(t, err)
	assert.Len(t, db.Digest(0, nil), 2)
}

func TestDatabaseDecoys(t *testing.T) {
	params := DefaultParams()
	params.MinLength = 3
	db, err := NewDatabase([]Protein{{Accession: "P1", Sequence: "PEPTIDEKAAAR"}}, params, true)
	require.NoError(t, err)
	require.Equal(t, 2, db.Len())

	decoys := db.Digest(1, nil)
	require.NotEmpty(t, decoys)
	for _, p := range decoys {
		assert.True(t, p.Decoy)
		assert.Equal(t, "DECOY_P1", p.Protein)
	}
}

func TestParamsValidate(t *testing.T) {
	params := DefaultParams()
	params.MinLength = 10
	params.MaxLength = 5
	_, err := NewDatabase(nil, params, false)
	assert.Error(t, err)

	_, err = NewDatabase(nil, Params{}, false)
	assert.Error(t, err)
}

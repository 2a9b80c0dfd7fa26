// Package digest turns protein sequences into candidate peptides: FASTA reading,
// protease digestion, modification isoforms and reversed decoys.
package digest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Protein is one database entry.
type Protein struct {
	Accession string
	Header    string
	Sequence  string
	Decoy     bool
}

// Reader provides streaming access to FASTA files
type Reader struct {
	scanner *bufio.Scanner
	lineNum int
	header  string
	current *Protein
	err     error
}

// NewReader creates a new FASTA reader
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	return &Reader{scanner: scanner}
}

// Next advances to the next protein. Returns false when no more proteins or error.
func (r *Reader) Next() bool {
	r.current = nil

	var seq strings.Builder
	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, ">") {
			if r.header != "" {
				r.current = newProtein(r.header, seq.String())
				r.header = line[1:]
				return true
			}
			r.header = line[1:]
			continue
		}

		if r.header == "" {
			r.err = fmt.Errorf("line %d: sequence before first header", r.lineNum)
			return false
		}
		seq.WriteString(strings.ToUpper(line))
	}

	if err := r.scanner.Err(); err != nil {
		r.err = err
		return false
	}

	if r.header != "" {
		r.current = newProtein(r.header, seq.String())
		r.header = ""
		return true
	}
	return false
}

// Protein returns the current protein
func (r *Reader) Protein() *Protein {
	return r.current
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// ReadAll reads every protein from r.
func ReadAll(r io.Reader) ([]Protein, error) {
	reader := NewReader(r)
	var proteins []Protein
	for reader.Next() {
		proteins = append(proteins, *reader.Protein())
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("reading fasta: %w", err)
	}
	return proteins, nil
}

func newProtein(header, sequence string) *Protein {
	return &Protein{
		Accession: accession(header),
		Header:    header,
		Sequence:  strings.TrimSuffix(sequence, "*"),
	}
}

// accession extracts "P12345" from UniProt style "sp|P12345|NAME_HUMAN ..." headers
// and falls back to the first word.
func accession(header string) string {
	first := header
	if i := strings.IndexAny(header, " \t"); i >= 0 {
		first = header[:i]
	}
	if parts := strings.Split(first, "|"); len(parts) >= 3 {
		return parts[1]
	}
	return first
}

// Reverse returns the decoy of p: the sequence reversed with an initiator
// methionine kept in place.
func Reverse(p Protein) Protein {
	seq := []byte(p.Sequence)
	start := 0
	if len(seq) > 0 && seq[0] == 'M' {
		start = 1
	}
	for i, j := start, len(seq)-1; i < j; i, j = i+1, j-1 {
		seq[i], seq[j] = seq[j], seq[i]
	}
	return Protein{
		Accession: DecoyPrefix + p.Accession,
		Header:    DecoyPrefix + p.Header,
		Sequence:  string(seq),
		Decoy:     true,
	}
}

// DecoyPrefix marks decoy accessions.
const DecoyPrefix = "DECOY_"

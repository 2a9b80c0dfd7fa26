package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ChrisMcGann/DBSearch/pkg/writer"
)

// Reader reads back result files written by Writer
type Reader struct {
	db *sql.DB
}

// Open opens a result file read-only
func Open(path string) (*Reader, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &Reader{db: db}, nil
}

// Searches lists the runs stored in the file in insertion order
func (r *Reader) Searches() ([]Search, error) {
	rows, err := r.db.Query(`
		SELECT SearchId, Engine, Acceptor, NumNotches, DatabasePath, SpectraPath, Params
		FROM SearchTable ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query searches: %w", err)
	}
	defer rows.Close()

	var out []Search
	for rows.Next() {
		var s Search
		if err := rows.Scan(&s.ID, &s.Engine, &s.Acceptor, &s.Notches, &s.Database, &s.Spectra, &s.Params); err != nil {
			return nil, fmt.Errorf("failed to scan search: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Records returns the matches of one search in scan order, with candidates
func (r *Reader) Records(searchID string) ([]writer.Record, error) {
	rows, err := r.db.Query(`
		SELECT PsmId, ScanIndex, Title, ScanNumber, Charge, PrecursorMZ,
			PrecursorMass, RetentionTime, Score, RunnerUp, DeltaScore,
			blobMass, blobIntensity
		FROM PsmTable WHERE SearchId = ? ORDER BY ScanIndex
	`, searchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query psms: %w", err)
	}

	var (
		out []writer.Record
		ids []int64
	)
	for rows.Next() {
		var (
			rec          writer.Record
			id           int64
			rt           sql.NullFloat64
			masses, ints []byte
		)
		if err := rows.Scan(&id, &rec.ScanIndex, &rec.Title, &rec.ScanNumber, &rec.Charge,
			&rec.PrecursorMZ, &rec.PrecursorMass, &rt, &rec.Score, &rec.RunnerUp,
			&rec.DeltaScore, &masses, &ints); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan psm: %w", err)
		}
		rec.Search = searchID
		if rt.Valid {
			v := rt.Float64
			rec.RetentionTime = &v
		}
		if rec.FragmentMasses, err = decodeFloat64(masses); err != nil {
			rows.Close()
			return nil, fmt.Errorf("psm %d: %w", id, err)
		}
		if rec.Intensities, err = decodeFloat64(ints); err != nil {
			rows.Close()
			return nil, fmt.Errorf("psm %d: %w", id, err)
		}
		out = append(out, rec)
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	stmt, err := r.db.Prepare(`
		SELECT FullSequence, BaseSequence, Protein, Start, Decoy, Notch,
			PeptideMass, MassError, MatchedIons
		FROM CandidateTable WHERE PsmId = ? ORDER BY Rank
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare candidate query: %w", err)
	}
	defer stmt.Close()

	for i, id := range ids {
		cands, err := r.candidates(stmt, id)
		if err != nil {
			return nil, err
		}
		out[i].Candidates = cands
	}
	return out, nil
}

func (r *Reader) candidates(stmt *sql.Stmt, psmID int64) ([]writer.Candidate, error) {
	rows, err := stmt.Query(psmID)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates of psm %d: %w", psmID, err)
	}
	defer rows.Close()

	var out []writer.Candidate
	for rows.Next() {
		var (
			c    writer.Candidate
			ions string
		)
		if err := rows.Scan(&c.FullSequence, &c.BaseSequence, &c.Protein, &c.Start, &c.Decoy,
			&c.Notch, &c.PeptideMass, &c.MassError, &ions); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if ions != "" {
			c.MatchedIons = strings.Split(ions, ",")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close closes the database
func (r *Reader) Close() error {
	return r.db.Close()
}

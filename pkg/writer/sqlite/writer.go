// Package sqlite stores peptide-spectrum matches in SQLite result files
package sqlite

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ChrisMcGann/DBSearch/pkg/writer"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	// Date format for SearchTable
	searchDateFormat = time.RFC3339

	schemaVersion = 1
)

// Search describes one search run stored in the file.
type Search struct {
	ID       string
	Engine   string // classic or modern
	Acceptor string
	Notches  int
	Database string
	Spectra  string
	Params   string // serialized parameters
}

// Writer handles writing search results to SQLite database files
type Writer struct {
	db         *sql.DB
	tx         *sql.Tx
	outputPath string
	searchStmt *sql.Stmt
	psmStmt    *sql.Stmt
	candStmt   *sql.Stmt
	psmID      int64
	closed     bool
}

// NewWriter creates a new SQLite writer
func NewWriter(outputPath string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:         db,
		outputPath: outputPath,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := db.QueryRow(`SELECT COALESCE(MAX(PsmId), 0) FROM PsmTable`).Scan(&w.psmID); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read psm ids: %w", err)
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS SearchTable (
		SearchId TEXT PRIMARY KEY,
		Engine TEXT,
		Acceptor TEXT,
		NumNotches INTEGER,
		DatabasePath TEXT,
		SpectraPath TEXT,
		Params TEXT,
		CreationDate TEXT
	);

	CREATE TABLE IF NOT EXISTS PsmTable (
		PsmId INTEGER PRIMARY KEY,
		SearchId TEXT REFERENCES SearchTable(SearchId),
		ScanIndex INTEGER,
		Title TEXT,
		ScanNumber INTEGER,
		Charge INTEGER,
		PrecursorMZ DOUBLE,
		PrecursorMass DOUBLE,
		RetentionTime DOUBLE,
		Score DOUBLE,
		RunnerUp DOUBLE,
		DeltaScore DOUBLE,
		NumTied INTEGER,
		Decoy BOOL,
		blobMass BLOB,
		blobIntensity BLOB
	);

	CREATE TABLE IF NOT EXISTS CandidateTable (
		PsmId INTEGER REFERENCES PsmTable(PsmId),
		Rank INTEGER,
		FullSequence TEXT,
		BaseSequence TEXT,
		Protein TEXT,
		Start INTEGER,
		Decoy BOOL,
		Notch INTEGER,
		PeptideMass DOUBLE,
		MassError DOUBLE,
		MatchedIons TEXT
	);

	CREATE INDEX IF NOT EXISTS PsmBySearch ON PsmTable(SearchId);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		LastModifiedDate TEXT,
		Description TEXT
	);
	`

	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements opens the write transaction and prepares the inserts
func (w *Writer) prepareStatements() error {
	var err error

	w.tx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	w.searchStmt, err = w.tx.Prepare(`
		INSERT INTO SearchTable (
			SearchId, Engine, Acceptor, NumNotches, DatabasePath,
			SpectraPath, Params, CreationDate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		return fmt.Errorf("failed to prepare search statement: %w", err)
	}

	w.psmStmt, err = w.tx.Prepare(`
		INSERT INTO PsmTable (
			PsmId, SearchId, ScanIndex, Title, ScanNumber, Charge,
			PrecursorMZ, PrecursorMass, RetentionTime, Score, RunnerUp,
			DeltaScore, NumTied, Decoy, blobMass, blobIntensity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		return fmt.Errorf("failed to prepare psm statement: %w", err)
	}

	w.candStmt, err = w.tx.Prepare(`
		INSERT INTO CandidateTable (
			PsmId, Rank, FullSequence, BaseSequence, Protein, Start,
			Decoy, Notch, PeptideMass, MassError, MatchedIons
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		return fmt.Errorf("failed to prepare candidate statement: %w", err)
	}

	return nil
}

// WriteSearch records a search run. Records written afterwards reference it
// through their Search field.
func (w *Writer) WriteSearch(s Search) error {
	_, err := w.searchStmt.Exec(
		s.ID,
		s.Engine,
		s.Acceptor,
		s.Notches,
		s.Database,
		s.Spectra,
		s.Params,
		time.Now().UTC().Format(searchDateFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to insert search %s: %w", s.ID, err)
	}
	return nil
}

// WriteRecord writes one scan's best match and its tied candidates
func (w *Writer) WriteRecord(r *writer.Record) error {
	w.psmID++

	// Handle optional retention time
	var rt interface{} = nil
	if r.RetentionTime != nil {
		rt = *r.RetentionTime
	}

	_, err := w.psmStmt.Exec(
		w.psmID,
		r.Search,
		r.ScanIndex,
		r.Title,
		r.ScanNumber,
		r.Charge,
		r.PrecursorMZ,
		r.PrecursorMass,
		rt,
		r.Score,
		r.RunnerUp,
		r.DeltaScore,
		len(r.Candidates),
		r.Decoy(),
		encodeFloat64(r.FragmentMasses),
		encodeFloat64(r.Intensities),
	)
	if err != nil {
		return fmt.Errorf("failed to insert psm for %s: %w", r.Title, err)
	}

	for rank, c := range r.Candidates {
		_, err := w.candStmt.Exec(
			w.psmID,
			rank,
			c.FullSequence,
			c.BaseSequence,
			c.Protein,
			c.Start,
			c.Decoy,
			c.Notch,
			c.PeptideMass,
			c.MassError,
			strings.Join(c.MatchedIons, ","),
		)
		if err != nil {
			return fmt.Errorf("failed to insert candidate %s: %w", c.FullSequence, err)
		}
	}

	return nil
}

// encodeFloat64 encodes values as a little-endian float64 blob
func encodeFloat64(values []float64) []byte {
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

// decodeFloat64 reverses encodeFloat64
func decodeFloat64(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 8", len(buf))
	}
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return out, nil
}

// Finalize writes the header, commits and closes the database
func (w *Writer) Finalize() error {
	if w.closed {
		return nil
	}
	w.closed = true

	// Close prepared statements
	w.searchStmt.Close()
	w.psmStmt.Close()
	w.candStmt.Close()

	now := time.Now().Format(headerDateFormat)
	_, err := w.tx.Exec(`DELETE FROM HeaderTable`)
	if err == nil {
		_, err = w.tx.Exec(`
			INSERT INTO HeaderTable (version, CreationDate, LastModifiedDate, Description)
			VALUES (?, ?, ?, ?)
		`, schemaVersion, now, now, "peptide-spectrum matches")
	}
	if err != nil {
		w.tx.Rollback()
		w.db.Close()
		return fmt.Errorf("failed to insert header: %w", err)
	}

	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to commit results: %w", err)
	}

	// Close database
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Close closes the database connection (alias for Finalize)
func (w *Writer) Close() error {
	return w.Finalize()
}

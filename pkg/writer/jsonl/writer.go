// Package jsonl writes search results as newline-delimited JSON, optionally
// gzip compressed.
package jsonl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/ChrisMcGann/DBSearch/pkg/writer"
)

// Writer encodes one record per line.
type Writer struct {
	file *os.File
	gz   *gzip.Writer
	buf  *bufio.Writer
	enc  *json.Encoder
}

// NewWriter creates path. Paths ending in ".gz" are gzip compressed.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	w := &Writer{file: f}
	var out io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(f)
		out = w.gz
	}
	w.buf = bufio.NewWriter(out)
	w.enc = json.NewEncoder(w.buf)
	return w, nil
}

// WriteRecord appends one record.
func (w *Writer) WriteRecord(r *writer.Record) error {
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode %s: %w", r.Title, err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.buf.Flush()
	if w.gz != nil {
		if cerr := w.gz.Close(); err == nil {
			err = cerr
		}
	}
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	if err != nil {
		return fmt.Errorf("failed to close results: %w", err)
	}
	return nil
}

// ReadAll decodes every record of a file written by Writer.
func ReadAll(path string) ([]writer.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var in io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer gz.Close()
		in = gz
	}

	var out []writer.Record
	dec := json.NewDecoder(in)
	for {
		var r writer.Record
		if err := dec.Decode(&r); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(out), err)
		}
		out = append(out, r)
	}
}

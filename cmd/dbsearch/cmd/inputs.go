package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ChrisMcGann/DBSearch/pkg/config"
	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/digest"
	"github.com/ChrisMcGann/DBSearch/pkg/filter"
	"github.com/ChrisMcGann/DBSearch/pkg/index"
	"github.com/ChrisMcGann/DBSearch/pkg/logging"
	"github.com/ChrisMcGann/DBSearch/pkg/reader/mgf"
	"github.com/ChrisMcGann/DBSearch/pkg/reader/msp"
	"github.com/ChrisMcGann/DBSearch/pkg/scan"
)

// spectrumReader is the common shape of the spectrum readers.
type spectrumReader interface {
	Next() bool
	Spectrum() *core.Spectrum
	Err() error
}

// detectFormat returns the spectrum format from an explicit name or the file
// extension.
func detectFormat(path, format string) (string, error) {
	if format == "" {
		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".mgf":
			format = "mgf"
		case ".msp":
			format = "msp"
		default:
			return "", fmt.Errorf("cannot auto-detect format from extension '%s', please specify --from", ext)
		}
	}

	format = strings.ToLower(format)
	if format != "mgf" && format != "msp" {
		return "", fmt.Errorf("invalid spectra format '%s', must be mgf or msp", format)
	}
	return format, nil
}

// readSpectra loads, cleans and filters every spectrum of path. Spectra that
// fail filtering or validation are skipped with a warning.
func readSpectra(path, format string, modDB *core.ModDatabase, filterConfig filter.Config, log *logging.Logger) ([]*core.Spectrum, int, error) {
	format, err := detectFormat(path, format)
	if err != nil {
		return nil, 0, err
	}

	inFile, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open spectra file: %w", err)
	}
	defer inFile.Close()

	var reader spectrumReader
	switch format {
	case "mgf":
		reader = mgf.NewReader(inFile)
	case "msp":
		reader = msp.NewReader(inFile, modDB)
	}

	var (
		spectra []*core.Spectrum
		skipped int
	)
	for reader.Next() {
		spec := reader.Spectrum()
		spec.SourceFile = path

		// Remove zero intensity peaks
		filter.RemoveZeroIntensityPeaks(spec)

		// Apply filters
		if err := filterConfig.Apply(spec); err != nil {
			log.Warn("failed to filter spectrum", "spectrum", spec.Name(), "error", err)
			skipped++
			continue
		}

		// Validate spectrum
		if err := spec.Validate(); err != nil {
			log.Warn("invalid spectrum", "spectrum", spec.Name(), "error", err)
			skipped++
			continue
		}

		spectra = append(spectra, spec)
	}

	if err := reader.Err(); err != nil {
		return nil, 0, fmt.Errorf("error reading spectra file: %w", err)
	}
	return spectra, skipped, nil
}

// buildScans expands spectra into charge hypotheses sorted by precursor mass.
func buildScans(spectra []*core.Spectrum, cfg *config.Config) (*scan.List, error) {
	var scans []*scan.WithMass
	for _, spec := range spectra {
		scans = append(scans, scan.Hypotheses(spec, cfg.Search.MinCharge, cfg.Search.MaxCharge)...)
	}
	return scan.NewList(scans)
}

// loadDatabase reads a FASTA file into a digestible database.
func loadDatabase(path string, cfg *config.Config, modDB *core.ModDatabase) (*digest.Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open protein database: %w", err)
	}
	defer f.Close()

	proteins, err := digest.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	params, err := cfg.DigestParams(modDB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return digest.NewDatabase(proteins, params, cfg.Digest.Decoys)
}

// buildIndex digests the database and builds its fragment index.
func buildIndex(ctx context.Context, db *digest.Database, cfg *config.Config, log *logging.Logger) (*index.Index, error) {
	icfg, err := cfg.IndexConfig()
	if err != nil {
		return nil, err
	}
	icfg.Logger = log.Logger
	icfg.Progress = log.Progress(progressInterval)
	return index.Build(ctx, db, icfg)
}

// loadIndex reads a saved index.
func loadIndex(path string) (*index.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer f.Close()

	idx, err := index.Load(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return idx, nil
}

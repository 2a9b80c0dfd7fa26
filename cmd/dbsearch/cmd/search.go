package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/DBSearch/pkg/config"
	"github.com/ChrisMcGann/DBSearch/pkg/index"
	"github.com/ChrisMcGann/DBSearch/pkg/logging"
	"github.com/ChrisMcGann/DBSearch/pkg/massdiff"
	"github.com/ChrisMcGann/DBSearch/pkg/psm"
	"github.com/ChrisMcGann/DBSearch/pkg/scan"
	"github.com/ChrisMcGann/DBSearch/pkg/search"
	"github.com/ChrisMcGann/DBSearch/pkg/writer"
	"github.com/ChrisMcGann/DBSearch/pkg/writer/jsonl"
	"github.com/ChrisMcGann/DBSearch/pkg/writer/sqlite"
)

// classicPartitionSize is the number of indexed candidates per classic work unit.
const classicPartitionSize = 512

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search spectra against a protein database",
	Long: `Search MGF or MSP spectra against a FASTA database or a saved index and write
the best peptide-spectrum matches to a SQLite database.

Precursor acceptors:
  <name> ppmAroundZero <tol>           single window in ppm
  <name> daltonsAroundZero <tol>       single window in Daltons
  <name> dot <tol> <ppm|da> <shifts>   one window per mass shift (notch)
  <name> interval [min;max],...        mass difference ranges
  <name> OpenSearch                    accept any precursor mass

Examples:
  # Index-accelerated search with a 10 ppm precursor window
  dbsearch search --fasta human.fasta --spectra run1.mgf --out run1.db -a "10ppm ppmAroundZero 10"

  # Exhaustive search under two acceptors at once, reusing a saved index
  dbsearch search --index human.idx --spectra run1.mgf --out run1.db --engine classic \
    -a "5ppm ppmAroundZero 5" -a "isotopes dot 5 ppm 0,1.0029,2.0058"

Interrupting a search (Ctrl-C) stops it early and still writes the partial
results.`,
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	if (fastaFile == "") == (indexFile == "") {
		return fmt.Errorf("exactly one of --fasta or --index is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger()
	if err != nil {
		return err
	}
	modDB, err := loadModDatabase()
	if err != nil {
		return err
	}
	params, err := cfg.SearchParams()
	if err != nil {
		return err
	}
	params.Logger = log.Logger
	params.Progress = log.Progress(progressInterval)
	acceptorList, err := cfg.Acceptors()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Spectra
	spectra, skipped, err := readSpectra(spectraFile, spectraFormat, modDB, cfg.FilterConfig(), log)
	if err != nil {
		return err
	}
	scans, err := buildScans(spectra, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("Searching %s: %d spectra, %d charge hypotheses\n", spectraFile, len(spectra), scans.Len())
	if skipped > 0 {
		fmt.Printf("Skipped: %d spectra (validation errors)\n", skipped)
	}

	// Candidates
	candidateSource := fastaFile
	var idx *index.Index
	if indexFile != "" {
		candidateSource = indexFile
		if idx, err = loadIndex(indexFile); err != nil {
			return err
		}
		if idx.Dissociation != params.Dissociation {
			log.Warn("index dissociation type overrides the configured one",
				"index", idx.Dissociation, "configured", params.Dissociation)
			params.Dissociation = idx.Dissociation
		}
	}

	engineName := strings.ToLower(cfg.Search.Engine)
	start := time.Now()
	var tables []*psm.Table
	switch engineName {
	case "classic":
		var src index.Source
		if idx != nil {
			src = idx.Partitions(classicPartitionSize)
		} else {
			db, err := loadDatabase(fastaFile, cfg, modDB)
			if err != nil {
				return err
			}
			src = db
		}
		tables, err = search.Classic(ctx, src, scans, acceptorList, params)

	case "modern":
		if idx == nil {
			db, err := loadDatabase(fastaFile, cfg, modDB)
			if err != nil {
				return err
			}
			built := time.Now()
			idx, err = buildIndex(ctx, db, cfg, log)
			log.LogIndexBuilt(ctx, lenOrZero(idx), postingsOrZero(idx), time.Since(built), err)
			if err != nil {
				return fmt.Errorf("failed to build index: %w", err)
			}
		}
		var table *psm.Table
		table, err = search.Modern(ctx, idx, scans, acceptorList[0], params)
		if table != nil {
			tables = []*psm.Table{table}
		}
	}
	if err != nil {
		log.LogSearch(ctx, engineName, scans.Len(), 0, time.Since(start), err)
		return fmt.Errorf("%s search failed: %w", engineName, err)
	}

	canceled := ctx.Err() != nil
	if canceled {
		log.LogCanceled(ctx, engineName+" search")
	}

	written, err := writeResults(ctx, cfg, engineName, candidateSource, tables, acceptorList, scans, params.ScoreCutoff, log, time.Since(start))
	if err != nil {
		return err
	}

	fmt.Printf("\nSearch complete!\n")
	if canceled {
		fmt.Printf("Interrupted: results are partial\n")
	}
	for i, t := range tables {
		fmt.Printf("%s: %d matched spectra\n", t.Name(), written[i])
	}
	fmt.Printf("Output: %s\n", outputFile)
	if jsonlFile != "" {
		fmt.Printf("JSON lines: %s\n", jsonlFile)
	}
	return nil
}

// writeResults stores every table as one search run and returns the number of
// records written per table.
func writeResults(ctx context.Context, cfg *config.Config, engineName, candidateSource string, tables []*psm.Table,
	acceptorList []massdiff.Acceptor, scans *scan.List, cutoff float64, log *logging.Logger, elapsed time.Duration) ([]int, error) {

	db, err := sqlite.NewWriter(outputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create output database: %w", err)
	}
	defer db.Close()

	var lines *jsonl.Writer
	if jsonlFile != "" {
		if lines, err = jsonl.NewWriter(jsonlFile); err != nil {
			return nil, err
		}
		defer lines.Close()
	}

	written := make([]int, len(tables))
	for i, t := range tables {
		run := sqlite.Search{
			ID:       writer.NewRunID(),
			Engine:   engineName,
			Acceptor: t.Name(),
			Notches:  acceptorList[i].NumNotches(),
			Database: candidateSource,
			Spectra:  spectraFile,
			Params:   cfg.String(),
		}
		if err := db.WriteSearch(run); err != nil {
			return nil, err
		}

		records := writer.Records(run.ID, t, scans, cutoff)
		for j := range records {
			if err := db.WriteRecord(&records[j]); err != nil {
				return nil, err
			}
			if lines != nil {
				if err := lines.WriteRecord(&records[j]); err != nil {
					return nil, err
				}
			}
		}
		written[i] = len(records)
		log.LogSearch(ctx, t.Name(), scans.Len(), len(records), elapsed, nil)
	}

	if err := db.Finalize(); err != nil {
		return nil, err
	}
	if lines != nil {
		if err := lines.Close(); err != nil {
			return nil, err
		}
	}
	return written, nil
}

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/DBSearch/pkg/index"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and save a fragment index from a protein database",
	Long: `Digest a FASTA protein database and save the mass-sorted candidate list and
its fragment index for reuse by later searches.

Examples:
  # Index a tryptic digest with decoys
  dbsearch index --fasta human.fasta --out human.idx

  # Settings from a parameter file, uncompressed
  dbsearch index --config params.yaml --fasta human.fasta --out human.idx --codec none`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
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
	codec, err := index.ParseCodec(cfg.Index.Codec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := loadDatabase(fastaFile, cfg, modDB)
	if err != nil {
		return err
	}
	fmt.Printf("Indexing %s (%d proteins including decoys)...\n", fastaFile, db.Len())

	start := time.Now()
	idx, err := buildIndex(ctx, db, cfg, log)
	log.LogIndexBuilt(ctx, lenOrZero(idx), postingsOrZero(idx), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	if ctx.Err() != nil {
		// partial indexes are never saved
		log.LogCanceled(ctx, "index")
		return fmt.Errorf("indexing interrupted, %s not written", outputFile)
	}

	out, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	w := bufio.NewWriter(out)
	if err := index.Save(w, idx, codec); err != nil {
		out.Close()
		return fmt.Errorf("failed to save index: %w", err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("failed to save index: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}

	fmt.Printf("\nIndexing complete!\n")
	fmt.Printf("Candidates: %d\n", len(idx.Peptides))
	fmt.Printf("Fragment bins: %d (%d postings)\n", idx.NumBins(), idx.NumPostings())
	fmt.Printf("Output: %s\n", outputFile)
	return nil
}

func lenOrZero(idx *index.Index) int {
	if idx == nil {
		return 0
	}
	return len(idx.Peptides)
}

func postingsOrZero(idx *index.Index) int {
	if idx == nil {
		return 0
	}
	return idx.NumPostings()
}

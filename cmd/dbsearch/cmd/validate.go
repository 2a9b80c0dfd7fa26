package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/DBSearch/pkg/config"
	"github.com/ChrisMcGann/DBSearch/pkg/digest"
	"github.com/ChrisMcGann/DBSearch/pkg/filter"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate input file format and contents",
	Long: `Validate that an input file is properly formatted. The file type is taken from
the extension: .mgf and .msp spectra, .fasta/.fa protein databases, .yaml/.yml
parameter files and .idx saved indexes.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mgf", ".msp":
		return validateSpectra(path)
	case ".fasta", ".fa", ".faa":
		return validateFasta(path)
	case ".yaml", ".yml":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: valid parameter file (%s engine, %d acceptors)\n", path, cfg.Search.Engine, len(cfg.Search.Acceptors))
		return nil
	case ".idx":
		idx, err := loadIndex(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s: valid index (%d candidates, %d bins, %d postings, %s)\n",
			path, len(idx.Peptides), idx.NumBins(), idx.NumPostings(), idx.Dissociation)
		return nil
	default:
		return fmt.Errorf("cannot validate files with extension '%s'", ext)
	}
}

func validateSpectra(path string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	modDB, err := loadModDatabase()
	if err != nil {
		return err
	}

	spectra, invalid, err := readSpectra(path, "", modDB, filter.Config{}, log)
	if err != nil {
		return err
	}

	charged := 0
	for _, s := range spectra {
		if s.Charge > 0 {
			charged++
		}
	}
	fmt.Printf("%s: %d valid spectra, %d with a precursor charge\n", path, len(spectra), charged)
	if invalid > 0 {
		return fmt.Errorf("%d invalid spectra", invalid)
	}
	return nil
}

func validateFasta(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open protein database: %w", err)
	}
	defer f.Close()

	proteins, err := digest.ReadAll(f)
	if err != nil {
		return err
	}

	residues, decoys := 0, 0
	for _, p := range proteins {
		residues += len(p.Sequence)
		if p.Decoy {
			decoys++
		}
	}
	fmt.Printf("%s: %d proteins (%d decoys), %d residues\n", path, len(proteins), decoys, residues)
	if len(proteins) == 0 {
		return fmt.Errorf("no proteins found")
	}
	return nil
}

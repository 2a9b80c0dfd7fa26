// Package cmd provides CLI command implementations
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/DBSearch/pkg/config"
	"github.com/ChrisMcGann/DBSearch/pkg/core"
	"github.com/ChrisMcGann/DBSearch/pkg/logging"
)

const progressInterval = 5 * time.Second

var (
	// Global flags
	configFile string
	logLevel   string
	logFormat  string
	threads    int
	modsCSV    string

	// Flags for index and search commands
	fastaFile       string
	indexFile       string
	spectraFile     string
	spectraFormat   string
	outputFile      string
	jsonlFile       string
	engine          string
	acceptors       []string
	fragmentTol     string
	scoreCutoff     float64
	compIons        bool
	noAmbiguity     bool
	dissociation    string
	protease        string
	missedCleavages int
	noDecoys        bool
	codec           string
	topN            int
	cutoffPercent   float64
	minCharge       int
	maxCharge       int
)

var rootCmd = &cobra.Command{
	Use:   "dbsearch",
	Short: "DBSearch - peptide database search engine",
	Long: `DBSearch identifies peptides in tandem mass spectra by searching them against
a protein database.

Two engines are available and report the same best match per spectrum:
- classic: scores every digested peptide against every spectrum whose precursor
  mass it explains, under one or more precursor acceptors
- modern: builds a fragment index and searches each spectrum in two passes

Results are written to a SQLite database and optionally to JSON lines.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(summarizeCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "YAML parameter file (flags override its values)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	pf.IntVar(&threads, "threads", 0, "Number of worker threads (0 = all cores)")
	pf.StringVar(&modsCSV, "mods", "", "Extra modification CSV (default: unimod_custom.csv when present)")

	for _, c := range []*cobra.Command{indexCmd, searchCmd} {
		f := c.Flags()
		f.StringVar(&fastaFile, "fasta", "", "Protein database in FASTA format")
		f.StringVar(&dissociation, "dissociation", "HCD", "Dissociation type: HCD, CID, ETD, EThcD")
		f.StringVar(&protease, "protease", "trypsin", "Protease used for in-silico digestion")
		f.IntVar(&missedCleavages, "missed-cleavages", 2, "Maximum missed cleavages")
		f.BoolVar(&noDecoys, "no-decoys", false, "Do not append reversed decoy proteins")
	}

	indexCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Output index file (required)")
	indexCmd.Flags().StringVar(&codec, "codec", "zstd", "Index compression: none, zstd, lz4")
	indexCmd.MarkFlagRequired("fasta")
	indexCmd.MarkFlagRequired("out")

	sf := searchCmd.Flags()
	sf.StringVar(&indexFile, "index", "", "Prebuilt index file (instead of --fasta)")
	sf.StringVarP(&spectraFile, "spectra", "s", "", "Query spectra, MGF or MSP (required)")
	sf.StringVarP(&spectraFormat, "from", "f", "", "Spectra format: mgf, msp (auto-detect if not specified)")
	sf.StringVarP(&outputFile, "out", "o", "", "Output results database (required)")
	sf.StringVar(&jsonlFile, "jsonl", "", "Also write results as JSON lines (.gz to compress)")
	sf.StringVarP(&engine, "engine", "e", "modern", "Search engine: classic or modern")
	sf.StringArrayVarP(&acceptors, "acceptor", "a", nil, "Precursor acceptor, e.g. '5ppm ppmAroundZero 5' (repeatable for classic)")
	sf.StringVar(&fragmentTol, "fragment-tolerance", "20 ppm", "Fragment tolerance, e.g. '20 ppm' or '0.02 Da'")
	sf.Float64Var(&scoreCutoff, "score-cutoff", 5, "Lowest score reported")
	sf.BoolVar(&compIons, "comp-ions", false, "Also match complementary fragment ions")
	sf.BoolVar(&noAmbiguity, "no-ambiguity", false, "Report a single best peptide per spectrum")
	sf.IntVar(&topN, "top-n", 0, "Keep only top N most intense peaks (0 = no limit)")
	sf.Float64Var(&cutoffPercent, "cutoff", 0, "Intensity cutoff as % of base peak (0 = no cutoff)")
	sf.IntVar(&minCharge, "min-charge", 2, "Lowest charge tried when a spectrum has none")
	sf.IntVar(&maxCharge, "max-charge", 4, "Highest charge tried when a spectrum has none")
	searchCmd.MarkFlagRequired("spectra")
	searchCmd.MarkFlagRequired("out")
}

// loadConfig reads the parameter file, if any, and applies explicitly set flags
// over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}

	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}
	if changed("threads") {
		cfg.Workers = threads
	}
	if changed("dissociation") {
		cfg.Search.Dissociation = dissociation
	}
	if changed("protease") {
		cfg.Digest.Protease = protease
	}
	if changed("missed-cleavages") {
		cfg.Digest.MissedCleavages = missedCleavages
	}
	if changed("no-decoys") {
		cfg.Digest.Decoys = !noDecoys
	}
	if changed("codec") {
		cfg.Index.Codec = codec
	}
	if changed("engine") {
		cfg.Search.Engine = engine
	}
	if changed("acceptor") {
		cfg.Search.Acceptors = acceptors
	}
	if changed("fragment-tolerance") {
		cfg.Search.FragmentTolerance = fragmentTol
	}
	if changed("score-cutoff") {
		cfg.Search.ScoreCutoff = scoreCutoff
	}
	if changed("comp-ions") {
		cfg.Search.AddCompIons = compIons
	}
	if changed("no-ambiguity") {
		cfg.Search.ReportAllAmbiguity = !noAmbiguity
	}
	if changed("top-n") {
		cfg.Filter.TopN = topN
	}
	if changed("cutoff") {
		cfg.Filter.IntensityCutoff = cutoffPercent
	}
	if changed("min-charge") {
		cfg.Search.MinCharge = minCharge
	}
	if changed("max-charge") {
		cfg.Search.MaxCharge = maxCharge
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger() (*logging.Logger, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, logFormat, level)
}

// loadModDatabase returns the built-in modifications plus any custom CSV.
func loadModDatabase() (*core.ModDatabase, error) {
	modDB := core.DefaultModDatabase()

	path := modsCSV
	if path == "" {
		// Load custom modifications from unimod_custom.csv if it exists
		if _, err := os.Stat("unimod_custom.csv"); err != nil {
			return modDB, nil
		}
		path = "unimod_custom.csv"
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open modification CSV: %w", err)
	}
	defer f.Close()
	if err := modDB.LoadFromCSV(f); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return modDB, nil
}

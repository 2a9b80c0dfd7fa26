package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ChrisMcGann/DBSearch/pkg/summary"
	"github.com/ChrisMcGann/DBSearch/pkg/writer"
	"github.com/ChrisMcGann/DBSearch/pkg/writer/jsonl"
	"github.com/ChrisMcGann/DBSearch/pkg/writer/sqlite"
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize [file]",
	Short: "Summarize search results",
	Long: `Print summary statistics about a results database or JSON lines file: match
counts, target and decoy score distributions, ambiguity and notch usage.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", path)
	}

	var summaries []summary.Summary
	if strings.HasSuffix(path, ".jsonl") || strings.HasSuffix(path, ".jsonl.gz") {
		records, err := jsonl.ReadAll(path)
		if err != nil {
			return err
		}
		bySearch := make(map[string][]writer.Record)
		var order []string
		for _, r := range records {
			if _, ok := bySearch[r.Search]; !ok {
				order = append(order, r.Search)
			}
			bySearch[r.Search] = append(bySearch[r.Search], r)
		}
		for _, s := range order {
			summaries = append(summaries, summary.Summarize(s, bySearch[s]))
		}
	} else {
		db, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		searches, err := db.Searches()
		if err != nil {
			return err
		}
		for _, s := range searches {
			records, err := db.Records(s.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Search %s: %s engine, acceptor %s, %d notches\n", s.ID, s.Engine, s.Acceptor, s.Notches)
			summaries = append(summaries, summary.Summarize(s.ID, records))
		}
	}

	if len(summaries) == 0 {
		fmt.Printf("%s: no searches found\n", path)
		return nil
	}
	printSummaries(summaries)
	return nil
}

func printSummaries(summaries []summary.Summary) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSEARCH\tPSMS\tAMBIGUOUS\tTARGETS\tDECOYS\tTARGET MEAN\tTARGET SD\tTARGET MEDIAN\tDECOY MEAN\tMAX")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			s.Search, s.PSMs, s.Ambiguous, s.Target.N, s.Decoy.N,
			s.Target.Mean, s.Target.StdDev, s.Target.Median, s.Decoy.Mean, max(s.Target.Max, s.Decoy.Max))
	}
	tw.Flush()

	for _, s := range summaries {
		if len(s.Notches) < 2 {
			continue
		}
		notches := make([]int, 0, len(s.Notches))
		for n := range s.Notches {
			notches = append(notches, n)
		}
		slices.Sort(notches)
		fmt.Printf("%s notches:", s.Search)
		for _, n := range notches {
			fmt.Printf(" %d=%d", n, s.Notches[n])
		}
		fmt.Println()
	}
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"skim.fyi/skim/internal/cli"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := pool.QueryCorpusStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stats query failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode stats: %v\n", err)
			return 1
		}
		return 0
	}

	totals := [][]string{
		{"raw_records", strconv.FormatInt(stats.RawRecords, 10)},
		{"structured_records", strconv.FormatInt(stats.StructuredRecords, 10)},
		{"dedup_events", strconv.FormatInt(stats.DedupEvents, 10)},
		{"running_ingest_runs", strconv.FormatInt(stats.RunningRuns, 10)},
	}
	if stats.LastRecordAt != nil {
		totals = append(totals, []string{"last_record_at", formatUTCTimestampPtr(stats.LastRecordAt)})
	}
	if err := writeTable([]string{"METRIC", "VALUE"}, totals); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render stats: %v\n", err)
		return 1
	}

	if len(stats.Sources) > 0 {
		fmt.Println()
		rows := make([][]string, 0, len(stats.Sources))
		for _, source := range stats.Sources {
			rows = append(rows, []string{
				source.Source,
				strconv.FormatInt(source.RawRecords, 10),
				strconv.FormatInt(source.Structured, 10),
			})
		}
		if err := writeTable([]string{"SOURCE", "RAW", "STRUCTURED"}, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render source counts: %v\n", err)
			return 1
		}
	}

	if len(stats.Decisions) > 0 {
		fmt.Println()
		decisions := make([]string, 0, len(stats.Decisions))
		for decision := range stats.Decisions {
			decisions = append(decisions, decision)
		}
		sort.Strings(decisions)

		rows := make([][]string, 0, len(decisions))
		for _, decision := range decisions {
			rows = append(rows, []string{decision, strconv.FormatInt(stats.Decisions[decision], 10)})
		}
		if err := writeTable([]string{"DECISION", "COUNT"}, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render decision counts: %v\n", err)
			return 1
		}
	}

	return 0
}

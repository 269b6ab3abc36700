package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"skim.fyi/skim/internal/cli"
	"skim.fyi/skim/internal/db"
	"skim.fyi/skim/internal/globaltime"
)

func runRecords(args []string) int {
	fs := flag.NewFlagSet("records", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	source := fs.String("source", "", "Filter by source")
	recordType := fs.String("type", "", "Filter by record type")
	fromDate := fs.String("from", "", "Start date YYYY-MM-DD (defaults to 7 days ago)")
	toDate := fs.String("to", "", "End date YYYY-MM-DD (defaults to today)")
	limit := fs.Int("limit", 50, "Maximum rows to return")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "records does not accept positional arguments")
		return 2
	}
	if *limit < 1 || *limit > 500 {
		fmt.Fprintln(os.Stderr, "--limit must be between 1 and 500")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	now := globaltime.UTC()
	fromDay := now.AddDate(0, 0, -7)
	if strings.TrimSpace(*fromDate) != "" {
		fromDay, err = parseUTCDate(*fromDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --from: %v\n", err)
			return 2
		}
	}
	toDay := now
	if strings.TrimSpace(*toDate) != "" {
		toDay, err = parseUTCDate(*toDate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --to: %v\n", err)
			return 2
		}
	}

	fromStart, _ := utcDayBounds(fromDay)
	_, toEnd := utcDayBounds(toDay)
	if toEnd.Before(fromStart) {
		fmt.Fprintln(os.Stderr, "--from must be <= --to")
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	items, err := pool.ListStructuredRecords(ctx, db.RecordListOptions{
		Source: strings.TrimSpace(strings.ToLower(*source)),
		Type:   strings.TrimSpace(strings.ToLower(*recordType)),
		From:   fromStart,
		To:     toEnd,
		Limit:  *limit,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Records query failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(items); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode records: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			strconv.FormatInt(item.StructuredRecordID, 10),
			item.Type,
			item.Source,
			truncateForTable(item.Title, 80),
			pointerStringOrEmpty(item.SourceURL),
			formatUTCTimestampPtr(item.PublishedAt),
			formatUTCTimestamp(item.CreatedAt),
		})
	}

	if err := writeTable([]string{"ID", "TYPE", "SOURCE", "TITLE", "URL", "PUBLISHED", "CREATED"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render records: %v\n", err)
		return 1
	}

	fmt.Printf("total=%d from=%s to=%s\n", len(items), fromStart.Format("2006-01-02"), toDay.Format("2006-01-02"))
	return 0
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"skim.fyi/skim/internal/audit"
	"skim.fyi/skim/internal/cli"
	"skim.fyi/skim/internal/db"
	"skim.fyi/skim/internal/logging"
)

func runAudit(args []string) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
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
		fmt.Fprintln(os.Stderr, "audit does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	auditor := audit.NewAuditor(db.NewStore(pool), logger)
	report, err := auditor.Report(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Audit failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			return 1
		}
	} else if err := printAuditTable(report); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
		return 1
	}

	if report.Health == audit.HealthCritical {
		return 1
	}
	return 0
}

func printAuditTable(report audit.Report) error {
	rows := [][]string{
		{"total_raw_records", strconv.FormatInt(report.TotalRawRecords, 10)},
		{"total_structured_records", strconv.FormatInt(report.TotalStructuredRecords, 10)},
		{"unlinked_raw_records", strconv.FormatInt(report.UnlinkedRawRecords, 10)},
		{"structured_missing_raw", strconv.FormatInt(report.StructuredMissingRaw, 10)},
		{"broken_links", strconv.FormatInt(report.BrokenLinks, 10)},
		{"orphaned_raw_records", strconv.FormatInt(report.OrphanedRawRecords, 10)},
		{"linkage", fmt.Sprintf("%.4f", report.Linkage)},
		{"health", string(report.Health)},
	}
	if err := writeTable([]string{"METRIC", "VALUE"}, rows); err != nil {
		return err
	}

	for _, recommendation := range report.Recommendations {
		fmt.Printf("recommendation: %s\n", recommendation)
	}
	return nil
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"skim.fyi/skim/internal/audit"
	"skim.fyi/skim/internal/cli"
	"skim.fyi/skim/internal/db"
	"skim.fyi/skim/internal/logging"
)

func runRepair(args []string) int {
	fs := flag.NewFlagSet("repair", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "repair does not accept positional arguments")
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

	repaired, err := auditor.Repair(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Repair failed: %v\n", err)
		return 1
	}

	report, err := auditor.Report(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Post-repair audit failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{
			"repaired_links": repaired,
			"report":         report,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode report: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("repaired_links=%d\n", repaired)
	if err := printAuditTable(report); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
		return 1
	}
	return 0
}

package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "fetch":
		return runFetch(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "audit":
		return runAudit(args[1:])
	case "repair":
		return runRepair(args[1:])
	case "stats":
		return runStats(args[1:])
	case "records":
		return runRecords(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "skim CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  skim <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest    Ingest one candidate payload through the dedup pipeline")
	fmt.Fprintln(os.Stderr, "  fetch     Fetch a web page and ingest its readable content")
	fmt.Fprintln(os.Stderr, "  validate  Validate candidate JSON files against the v1 schema")
	fmt.Fprintln(os.Stderr, "  audit     Report raw/structured record integrity")
	fmt.Fprintln(os.Stderr, "  repair    Null-fill missing raw-to-structured links")
	fmt.Fprintln(os.Stderr, "  stats     Show corpus totals and dedup decision counts")
	fmt.Fprintln(os.Stderr, "  records   List structured records")
	fmt.Fprintln(os.Stderr, "  serve     Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"skim <command> -h\" for command-specific flags.")
}

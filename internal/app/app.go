// Package app implements the investing-agent CLI commands.
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
	case "serve":
		return runServe(args[1:])
	case "worker":
		return runWorker(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "themes":
		return runThemes(args[1:])
	case "jobs":
		return runJobs(args[1:])
	case "merge":
		return runMerge(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "investing-agent CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  investing-agent <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health   Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  serve    Start the Echo API server")
	fmt.Fprintln(os.Stderr, "  worker   Start the ingest worker pool")
	fmt.Fprintln(os.Stderr, "  ingest   Enqueue a local document for ingestion")
	fmt.Fprintln(os.Stderr, "  themes   List themes with narrative counts")
	fmt.Fprintln(os.Stderr, "  jobs     Inspect or requeue ingest jobs")
	fmt.Fprintln(os.Stderr, "  merge    Suggest or execute theme merges")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"investing-agent <command> -h\" for command-specific flags.")
}

package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AmberYZ/investing-agent/internal/cli"
)

func runJobs(args []string) int {
	if len(args) == 0 {
		printJobsUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printJobsUsage()
		return 0
	case "list":
		return runJobsList(args[1:])
	case "requeue":
		return runJobsRequeue(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown jobs action: %s\n\n", args[0])
		printJobsUsage()
		return 2
	}
}

func printJobsUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  investing-agent jobs list [--status queued|processing|done|error] [--limit N]")
	fmt.Fprintln(os.Stderr, "  investing-agent jobs requeue")
}

func runJobsList(args []string) int {
	fs := flag.NewFlagSet("jobs list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	status := fs.String("status", "", "Filter by job status")
	limit := fs.Int("limit", 50, "Maximum jobs to print")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be positive")
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

	jobs, err := pool.ListIngestJobs(ctx, strings.TrimSpace(strings.ToLower(*status)), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query jobs: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(jobs); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(job.JobID, 10),
			truncateForTable(job.Filename, 40),
			job.Status,
			job.EnqueuedAt.UTC().Format(time.RFC3339),
			formatUTCTimestampPtr(job.FinishedAt),
			truncateForTable(pointerStringOrEmpty(job.Error), 60),
		})
	}
	if err := writeTable([]string{"ID", "FILENAME", "STATUS", "ENQUEUED", "FINISHED", "ERROR"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print table: %v\n", err)
		return 1
	}
	return 0
}

func runJobsRequeue(args []string) int {
	fs := flag.NewFlagSet("jobs requeue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	requeued, err := pool.RequeueErroredJobs(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to requeue jobs: %v\n", err)
		return 1
	}

	fmt.Printf("requeued %d errored job(s)\n", requeued)
	return 0
}

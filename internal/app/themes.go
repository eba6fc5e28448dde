package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/AmberYZ/investing-agent/internal/cli"
)

func runThemes(args []string) int {
	fs := flag.NewFlagSet("themes", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	limit := fs.Int("limit", 50, "Maximum themes to print")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "themes does not accept positional arguments")
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

	themes, err := pool.ListThemesWithCounts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query themes: %v\n", err)
		return 1
	}
	if len(themes) > *limit {
		themes = themes[:*limit]
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(themes); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(themes))
	for _, t := range themes {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			truncateForTable(t.Label, 48),
			strconv.Itoa(t.NarrativeCount),
			strconv.Itoa(t.EvidenceCount),
		})
	}
	if err := writeTable([]string{"ID", "LABEL", "NARRATIVES", "EVIDENCE"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print table: %v\n", err)
		return 1
	}
	return 0
}

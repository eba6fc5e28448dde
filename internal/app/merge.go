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
	"github.com/AmberYZ/investing-agent/internal/logging"
	"github.com/AmberYZ/investing-agent/internal/merge"
)

func runMerge(args []string) int {
	if len(args) == 0 {
		printMergeUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "-h", "--help":
		printMergeUsage()
		return 0
	case "suggest":
		return runMergeSuggest(args[1:])
	case "run":
		return runMergeRun(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown merge action: %s\n\n", args[0])
		printMergeUsage()
		return 2
	}
}

func printMergeUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  investing-agent merge suggest [--apply]")
	fmt.Fprintln(os.Stderr, "  investing-agent merge run --source <theme_id> --target <theme_id>")
}

// runMergeSuggest discovers merge candidates. With --apply it also folds
// each group into its canonical theme.
func runMergeSuggest(args []string) int {
	fs := flag.NewFlagSet("merge suggest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	apply := fs.Bool("apply", false, "Execute the suggested merges")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure embeddings: %v\n", err)
		return 1
	}

	finder, err := buildMergeFinder(pool, embedder, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure merge discovery: %v\n", err)
		return 1
	}

	sets, err := finder.FindMergeSets(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Merge discovery failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(sets); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		rows := make([][]string, 0, len(sets))
		for _, set := range sets {
			rows = append(rows, []string{
				strconv.FormatInt(set.CanonicalID, 10),
				formatIDList(set.ThemeIDs),
				truncateForTable(strings.Join(set.Labels, " | "), 80),
			})
		}
		if err := writeTable([]string{"CANONICAL", "THEMES", "LABELS"}, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print table: %v\n", err)
			return 1
		}
	}

	if !*apply {
		return 0
	}

	executor := merge.NewExecutor(pool, logger)
	merged := 0
	for _, set := range sets {
		for _, themeID := range set.ThemeIDs {
			if themeID == set.CanonicalID {
				continue
			}
			moved, err := executor.Merge(ctx, themeID, set.CanonicalID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Failed to merge theme %d into %d: %v\n", themeID, set.CanonicalID, err)
				return 1
			}
			fmt.Printf("merged theme %d into %d (%d narratives moved)\n", themeID, set.CanonicalID, moved)
			merged++
		}
	}
	fmt.Printf("executed %d merge(s) across %d group(s)\n", merged, len(sets))
	return 0
}

func runMergeRun(args []string) int {
	fs := flag.NewFlagSet("merge run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	sourceID := fs.Int64("source", 0, "Theme to fold in (deleted after the merge)")
	targetID := fs.Int64("target", 0, "Theme that absorbs the source")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *sourceID <= 0 || *targetID <= 0 {
		fmt.Fprintln(os.Stderr, "--source and --target are required and must be positive")
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

	executor := merge.NewExecutor(pool, logger)
	moved, err := executor.Merge(ctx, *sourceID, *targetID)
	if err != nil {
		if errors.Is(err, merge.ErrThemeNotFound) {
			fmt.Fprintln(os.Stderr, "Source or target theme not found")
			return 1
		}
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
		return 1
	}

	fmt.Printf("merged theme %d into %d (%d narratives moved)\n", *sourceID, *targetID, moved)
	return 0
}

func formatIDList(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}

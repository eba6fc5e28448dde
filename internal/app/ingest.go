package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AmberYZ/investing-agent/internal/cli"
	"github.com/AmberYZ/investing-agent/internal/globaltime"
	"github.com/AmberYZ/investing-agent/internal/storage"
)

// runIngest stores a local file in blob storage and enqueues one ingest job
// for the worker pool.
func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	filePath := fs.String("file", "", "Path to the document to ingest")
	filename := fs.String("filename", "", "Stored filename (defaults to the file's base name)")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "ingest does not accept positional arguments")
		return 2
	}
	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return 2
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", *filePath, err)
		return 1
	}
	if len(data) == 0 {
		fmt.Fprintf(os.Stderr, "%s is empty\n", *filePath)
		return 2
	}

	name := *filename
	if name == "" {
		name = filepath.Base(*filePath)
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	blobs, err := storage.NewLocal(cfg.StorageDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open blob storage: %v\n", err)
		return 1
	}

	key := fmt.Sprintf("uploads/%d_%s", globaltime.UTC().UnixNano(), name)
	uri, err := blobs.Put(ctx, key, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to store document: %v\n", err)
		return 1
	}

	documentID, jobID, err := pool.CreateDocumentWithJob(ctx, name, uri, int64(len(data)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to enqueue ingest job: %v\n", err)
		return 1
	}

	fmt.Printf("queued: document_id=%d job_id=%d filename=%s size=%d\n", documentID, jobID, name, len(data))
	return 0
}

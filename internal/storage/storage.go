// Package storage abstracts where uploaded research documents live. Jobs
// reference documents by URI so the worker can fetch them regardless of
// which backend accepted the upload.
package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("storage: object not found")

// Store reads and writes document blobs addressed by URI.
type Store interface {
	// Put stores data under key and returns the URI to fetch it by.
	Put(ctx context.Context, key string, data []byte) (string, error)

	// Get fetches the blob a previous Put returned the URI for.
	Get(ctx context.Context, uri string) ([]byte, error)
}

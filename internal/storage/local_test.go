package storage

import (
	"context"
	"errors"
	"testing"
)

func TestLocal_PutAndGetRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}

	uri, err := store.Put(context.Background(), "uploads/report.txt", []byte("byd keeps winning"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	data, err := store.Get(context.Background(), uri)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "byd keeps winning" {
		t.Fatalf("round trip mismatch: %q", data)
	}
}

func TestLocal_GetMissingObject(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}

	uri, err := store.Put(context.Background(), "exists.txt", []byte("x"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	missing := uri[:len(uri)-len("exists.txt")] + "missing.txt"
	if _, err := store.Get(context.Background(), missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing object: got %v, want ErrNotFound", err)
	}
}

func TestLocal_RejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}

	if _, err := store.Put(context.Background(), "../outside.txt", []byte("x")); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
	if _, err := store.Get(context.Background(), "file:///etc/passwd"); err == nil {
		t.Fatalf("expected out-of-dir uri to be rejected")
	}
}

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local stores blobs on the filesystem under a base directory and addresses
// them with file:// URIs.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("local storage dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	absolute, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve storage dir: %w", err)
	}
	return &Local{dir: absolute}, nil
}

func (l *Local) Put(_ context.Context, key string, data []byte) (string, error) {
	path, err := l.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write object: %w", err)
	}
	return "file://" + path, nil
}

func (l *Local) Get(_ context.Context, uri string) ([]byte, error) {
	path, err := l.pathFromURI(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (l *Local) resolve(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	path := filepath.Join(l.dir, filepath.Clean(key))
	if !strings.HasPrefix(path, l.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key %q escapes the storage dir", key)
	}
	return path, nil
}

func (l *Local) pathFromURI(uri string) (string, error) {
	if !strings.HasPrefix(uri, "file://") {
		return "", fmt.Errorf("unsupported storage uri %q", uri)
	}
	path := strings.TrimPrefix(uri, "file://")
	if !strings.HasPrefix(path, l.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("storage uri %q is outside the storage dir", uri)
	}
	return path, nil
}

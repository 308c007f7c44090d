package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilePublisher writes the artifact to a single path using a temp-file-then-
// rename in the destination directory, so a reader never observes a
// half-written file. Its version handle is derived from the written bytes and
// can be recomputed from the file alone.
type FilePublisher struct {
	path string
}

// NewFilePublisher creates a file publisher for path, creating parent
// directories as needed.
func NewFilePublisher(path string) (*FilePublisher, error) {
	if path == "" {
		return nil, fmt.Errorf("publish path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create publish directory: %w", err)
		}
	}
	return &FilePublisher{path: path}, nil
}

func fileHandle(data []byte) VersionHandle {
	sum := sha256.Sum256(data)
	return VersionHandle("file:" + hex.EncodeToString(sum[:])[:12])
}

// Publish replaces the destination atomically. The temp file lives in the
// destination directory so the final rename never crosses filesystems.
func (p *FilePublisher) Publish(ctx context.Context, data []byte) (VersionHandle, error) {
	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, ".tools-*.yaml")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to replace %s: %w", p.path, err)
	}
	return fileHandle(data), nil
}

// Current recomputes the handle from the current file contents.
func (p *FilePublisher) Current(ctx context.Context) (VersionHandle, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read published artifact: %w", err)
	}
	return fileHandle(data), nil
}

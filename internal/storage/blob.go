package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// BlobStore is the boundary to binary file storage. Save returns an opaque
// storage ref that the caller persists alongside the entity; the ref carries
// no meaning outside this package.
type BlobStore interface {
	Save(ctx context.Context, fileName string, content io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
}

// DiskBlobStore stores blobs under a root directory. Refs are
// two-level relative paths derived from a fresh UUID.
type DiskBlobStore struct {
	root string
}

// NewDiskBlobStore ensures the root directory exists and returns the store.
func NewDiskBlobStore(root string) (*DiskBlobStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &DiskBlobStore{root: root}, nil
}

// Save writes the content to disk and returns the new ref.
func (s *DiskBlobStore) Save(_ context.Context, fileName string, content io.Reader) (string, error) {
	id := uuid.NewString()
	ref := filepath.Join(id[:2], id+sanitizedExt(fileName))

	path := filepath.Join(s.root, ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close blob: %w", err)
	}
	return ref, nil
}

// Delete removes the blob for ref. Missing blobs are not an error.
func (s *DiskBlobStore) Delete(_ context.Context, ref string) error {
	if ref == "" || strings.Contains(ref, "..") {
		return fmt.Errorf("invalid blob ref %q", ref)
	}
	err := os.Remove(filepath.Join(s.root, ref))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func sanitizedExt(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}

// Package chunkstore provides concrete aggregation.ChunkStore adapters
// (component C5's chunk-storage collaborator, spec.md §6), grounded on the
// teacher's internal/storage multi-backend design.
package chunkstore

import (
	"context"
	"os"
	"path/filepath"

	"github.com/arx-os/datakernel-cube/pkg/cubeerr"
)

// FileChunkStore persists one file per chunk storage key under a root
// directory, grounded on internal/storage/local.go's LocalBackend.
type FileChunkStore struct {
	root string
}

// NewFileChunkStore returns a FileChunkStore rooted at root, creating the
// directory if it doesn't exist.
func NewFileChunkStore(root string) (*FileChunkStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "resolving chunk store root", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, cubeerr.Wrap(cubeerr.KindStore, "creating chunk store root", err)
	}
	return &FileChunkStore{root: absRoot}, nil
}

func (f *FileChunkStore) path(key string) string {
	return filepath.Join(f.root, filepath.FromSlash(key))
}

// Put writes data to key's file, creating parent directories as needed.
func (f *FileChunkStore) Put(_ context.Context, key string, data []byte) error {
	path := f.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cubeerr.Wrap(cubeerr.KindStore, "creating chunk directory", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return cubeerr.Wrap(cubeerr.KindStore, "writing chunk file", err)
	}
	return nil
}

// Get reads key's file back.
func (f *FileChunkStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cubeerr.New(cubeerr.KindStore, "chunk not found: "+key)
		}
		return nil, cubeerr.Wrap(cubeerr.KindStore, "reading chunk file", err)
	}
	return data, nil
}

// Delete removes key's file. Deleting an already-absent key is not an
// error, matching the idempotent-retire contract consolidation's Commit
// relies on.
func (f *FileChunkStore) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return cubeerr.Wrap(cubeerr.KindStore, "deleting chunk file", err)
	}
	return nil
}

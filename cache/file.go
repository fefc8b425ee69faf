package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/spf13/afero"

	"mediaanalyzer/models"
)

// FileStore keeps the snapshot in a single file on an afero filesystem.
// Writes replace the file atomically so readers never observe a partial snapshot.
type FileStore struct {
	fs   afero.Fs
	path string
}

// NewFileStore creates a store for path on the given filesystem
func NewFileStore(fsys afero.Fs, path string) *FileStore {
	return &FileStore{fs: fsys, path: path}
}

// NewOSFileStore creates a store backed by the real filesystem
func NewOSFileStore(path string) *FileStore {
	return NewFileStore(afero.NewOsFs(), path)
}

// NewMemoryStore creates a store backed by an in-memory filesystem
func NewMemoryStore() *FileStore {
	return NewFileStore(afero.NewMemMapFs(), "media_cache.json")
}

// Name implements Store
func (s *FileStore) Name() string {
	if _, ok := s.fs.(*afero.MemMapFs); ok {
		return "memory"
	}
	return "file"
}

// Path returns the snapshot location
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store
func (s *FileStore) Load(_ context.Context) (models.Collection, error) {
	data, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read cache file %s: %w", s.path, err)
	}
	return Decode(data)
}

// Save implements Store
func (s *FileStore) Save(_ context.Context, c models.Collection) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}

	if _, ok := s.fs.(*afero.OsFs); ok {
		// temp file, fsync, rename
		if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write cache file %s: %w", s.path, err)
		}
		return nil
	}
	return s.replace(data)
}

// replace writes through a temp file in the same directory and renames it over the target
func (s *FileStore) replace(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file %s: %w", s.path, err)
	}
	return nil
}

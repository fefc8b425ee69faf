package cache

import (
	"context"
	"errors"
	"fmt"

	"mediaanalyzer/models"
	"mediaanalyzer/repository"
)

// DefaultSnapshotKey is the row key used for the media collection
const DefaultSnapshotKey = "media"

// SQLiteStore keeps the snapshot as a row in the cache_snapshots table
type SQLiteStore struct {
	repo *repository.SnapshotRepository
	key  string
}

// NewSQLiteStore creates a store on top of a snapshot repository
func NewSQLiteStore(repo *repository.SnapshotRepository, key string) *SQLiteStore {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &SQLiteStore{repo: repo, key: key}
}

// Name implements Store
func (s *SQLiteStore) Name() string { return "sqlite" }

// Load implements Store
func (s *SQLiteStore) Load(_ context.Context) (models.Collection, error) {
	snap, err := s.repo.Get(s.key)
	if err != nil {
		if errors.Is(err, repository.ErrSnapshotNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return Decode(snap.Payload)
}

// Save implements Store
func (s *SQLiteStore) Save(_ context.Context, c models.Collection) error {
	data, err := Encode(c)
	if err != nil {
		return err
	}
	return s.repo.Put(s.key, data)
}

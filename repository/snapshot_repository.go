// Package repository provides data access layer for the media application.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mediaanalyzer/database"
)

// ErrSnapshotNotFound is returned when no snapshot is stored under a key
var ErrSnapshotNotFound = errors.New("snapshot not found")

const timeLayout = "2006-01-02 15:04:05"

// Snapshot is a stored cache payload
type Snapshot struct {
	Key       string
	Payload   []byte
	UpdatedAt time.Time
}

// SnapshotRepository handles database operations for cache snapshots
type SnapshotRepository struct {
	db *database.DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Get retrieves the snapshot stored under key
func (r *SnapshotRepository) Get(key string) (*Snapshot, error) {
	query := `SELECT key, payload, updated_at FROM cache_snapshots WHERE key = ?`

	var snap Snapshot
	var updatedAt sql.NullTime
	err := r.db.QueryRow(query, key).Scan(&snap.Key, &snap.Payload, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %q: %w", key, ErrSnapshotNotFound)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if updatedAt.Valid {
		snap.UpdatedAt = updatedAt.Time
	}
	return &snap, nil
}

// Put inserts or replaces the snapshot stored under key
func (r *SnapshotRepository) Put(key string, payload []byte) error {
	query := `
		INSERT INTO cache_snapshots (key, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`

	if _, err := r.db.Exec(query, key, payload, time.Now().UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot stored under key
func (r *SnapshotRepository) Delete(key string) error {
	result, err := r.db.Exec(`DELETE FROM cache_snapshots WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("snapshot %q: %w", key, ErrSnapshotNotFound)
	}
	return nil
}

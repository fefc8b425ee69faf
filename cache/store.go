// Package cache persists the normalized media collection between requests.
//
// A Store holds exactly one snapshot. Snapshots never expire; they are
// replaced by the next successful rebuild or removed out of band.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mediaanalyzer/models"
)

var (
	// ErrNotFound means no snapshot has been stored yet.
	ErrNotFound = errors.New("cache snapshot not found")
	// ErrCorrupt means a snapshot exists but cannot be decoded.
	ErrCorrupt = errors.New("cache snapshot is corrupt")
)

// Store loads and saves the cached collection
type Store interface {
	// Load returns the stored collection, ErrNotFound, ErrCorrupt, or a read error.
	Load(ctx context.Context) (models.Collection, error)
	// Save replaces the stored collection.
	Save(ctx context.Context, c models.Collection) error
	// Name identifies the backend in logs and metrics.
	Name() string
}

// Encode serializes a collection in the wire format shared with the HTTP API
func Encode(c models.Collection) ([]byte, error) {
	if c == nil {
		c = models.Collection{}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode collection: %w", err)
	}
	return data, nil
}

// Decode parses a stored snapshot. Any parse failure is reported as ErrCorrupt.
func Decode(data []byte) (models.Collection, error) {
	var c models.Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if c == nil {
		// a literal "null" is not a collection
		return nil, fmt.Errorf("%w: snapshot is null", ErrCorrupt)
	}
	return c, nil
}

package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mediaanalyzer/database"
	"mediaanalyzer/logger"
	"mediaanalyzer/models"
)

// RefreshEventRepository handles refresh event data operations
type RefreshEventRepository struct {
	db *database.DB
}

// NewRefreshEventRepository creates a new refresh event repository
func NewRefreshEventRepository(db *database.DB) *RefreshEventRepository {
	return &RefreshEventRepository{db: db}
}

// Create adds a new refresh event
func (r *RefreshEventRepository) Create(eventType models.RefreshEventType, message string, details interface{}) error {
	var detailsJSON sql.NullString
	if details != nil {
		detailsBytes, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
		detailsJSON = sql.NullString{String: string(detailsBytes), Valid: true}
	}

	query := `INSERT INTO refresh_events (type, message, details, created_at) VALUES (?, ?, ?, ?)`
	_, err := r.db.Exec(query, string(eventType), message, detailsJSON, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to create refresh event: %w", err)
	}

	return nil
}

// GetRecent returns the most recent events, newest first
func (r *RefreshEventRepository) GetRecent(limit int) ([]models.RefreshEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, type, message, details, created_at
			  FROM refresh_events
			  ORDER BY created_at DESC, id DESC
			  LIMIT ?`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh events: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			l := logger.WithComponent("repository")
			l.Warn().Err(cerr).Msg("failed to close rows")
		}
	}()

	events := []models.RefreshEvent{}
	for rows.Next() {
		var event models.RefreshEvent
		var details sql.NullString
		var createdAt sql.NullTime

		if err := rows.Scan(&event.ID, &event.Type, &event.Message, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan refresh event: %w", err)
		}

		if details.Valid {
			event.Details = details.String
		}

		if createdAt.Valid {
			event.CreatedAt = createdAt.Time
		}

		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refresh events: %w", err)
	}

	return events, nil
}

// GetStatistics returns aggregate statistics over the refresh history
func (r *RefreshEventRepository) GetStatistics() (*models.RefreshStats, error) {
	stats := &models.RefreshStats{}

	counts := []struct {
		eventType models.RefreshEventType
		dst       *int
	}{
		{models.EventRefreshStarted, &stats.TotalRefreshes},
		{models.EventRefreshFailed, &stats.TotalFailures},
		{models.EventCacheWriteFailed, &stats.CacheWriteErrors},
	}
	for _, c := range counts {
		err := r.db.QueryRow(`SELECT COUNT(*) FROM refresh_events WHERE type = ?`, c.eventType).Scan(c.dst)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s events: %w", c.eventType, err)
		}
	}

	var lastSuccess sql.NullTime
	var lastSuccessDetails sql.NullString
	err := r.db.QueryRow(`SELECT created_at, details FROM refresh_events WHERE type = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		models.EventRefreshCompleted).Scan(&lastSuccess, &lastSuccessDetails)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last success: %w", err)
	}
	if lastSuccess.Valid {
		stats.LastSuccessTime = lastSuccess.Time.Format(time.RFC3339)
	}
	if lastSuccessDetails.Valid {
		var details map[string]interface{}
		if err := json.Unmarshal([]byte(lastSuccessDetails.String), &details); err == nil {
			if n, ok := details["records"].(float64); ok {
				stats.LastRecordCount = int(n)
			}
		}
	}

	var lastFailure sql.NullTime
	err = r.db.QueryRow(`SELECT created_at FROM refresh_events WHERE type = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		models.EventRefreshFailed).Scan(&lastFailure)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get last failure: %w", err)
	}
	if lastFailure.Valid {
		stats.LastFailureTime = lastFailure.Time.Format(time.RFC3339)
	}

	// Average duration from completed refresh details
	rows, err := r.db.Query(`SELECT details FROM refresh_events WHERE type = ? AND details IS NOT NULL`,
		models.EventRefreshCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to query refresh details: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			l := logger.WithComponent("repository")
			l.Warn().Err(cerr).Msg("failed to close rows")
		}
	}()

	var total float64
	var n int
	for rows.Next() {
		var detailsJSON string
		if err := rows.Scan(&detailsJSON); err != nil {
			continue
		}

		var details map[string]interface{}
		if err := json.Unmarshal([]byte(detailsJSON), &details); err != nil {
			continue
		}

		if secs, ok := details["duration_seconds"].(float64); ok {
			total += secs
			n++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating refresh details: %w", err)
	}
	if n > 0 {
		stats.AvgDurationSecs = total / float64(n)
	}

	return stats, nil
}

// DeleteOldEvents removes events older than the specified duration
func (r *RefreshEventRepository) DeleteOldEvents(olderThan time.Duration) error {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `DELETE FROM refresh_events WHERE created_at < ?`
	_, err := r.db.Exec(query, cutoff.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to delete old events: %w", err)
	}
	return nil
}

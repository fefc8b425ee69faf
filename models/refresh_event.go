package models

import "time"

// RefreshEventType represents the type of refresh event
type RefreshEventType string

const (
	EventRefreshStarted   RefreshEventType = "refresh_started"
	EventRefreshCompleted RefreshEventType = "refresh_completed"
	EventRefreshFailed    RefreshEventType = "refresh_failed"
	EventCacheWriteFailed RefreshEventType = "cache_write_failed"
)

// RefreshEvent represents one step of a catalog rebuild
type RefreshEvent struct {
	ID        int              `json:"id"`
	Type      RefreshEventType `json:"type"`
	Message   string           `json:"message"`
	Details   string           `json:"details,omitempty"` // JSON string for additional data
	CreatedAt time.Time        `json:"created_at"`
}

// RefreshStats summarizes the refresh history
type RefreshStats struct {
	TotalRefreshes   int     `json:"total_refreshes"`
	TotalFailures    int     `json:"total_failures"`
	CacheWriteErrors int     `json:"cache_write_errors"`
	LastSuccessTime  string  `json:"last_success_time,omitempty"`
	LastFailureTime  string  `json:"last_failure_time,omitempty"`
	LastRecordCount  int     `json:"last_record_count"`
	AvgDurationSecs  float64 `json:"avg_duration_seconds,omitempty"`
}

// RefreshHistoryResponse is the payload of the refresh history endpoint
type RefreshHistoryResponse struct {
	Events     []RefreshEvent `json:"events"`
	Statistics *RefreshStats  `json:"statistics"`
}

// LibrarySummary aggregates a collection the way the dashboard summarizes it
type LibrarySummary struct {
	TotalItems         int            `json:"total_items"`
	TotalSizeGiB       float64        `json:"total_size_gib"`
	TotalDurationHours float64        `json:"total_duration_hours"`
	TotalMinutes       float64        `json:"total_minutes"`
	AvgEfficiency      float64        `json:"avg_efficiency_mb_per_hour"`
	ByResolution       map[string]int `json:"by_resolution"`
	ResolutionOrder    []string       `json:"resolution_order"` // groups present, largest first
	ByVideoCodec       map[string]int `json:"by_video_codec"`
	ByType             map[string]int `json:"by_type"`
	ByHDR              map[string]int `json:"by_hdr"`
}

// Package services provides external service integrations.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaanalyzer/logger"
	"mediaanalyzer/metrics"
)

// DefaultPageSize is the number of items requested per /Items call
const DefaultPageSize = 500

// DetailFields are the extra item fields the normalizer consumes
var DetailFields = []string{"MediaSources", "MediaStreams", "Path", "SeriesName", "SeasonName", "IndexNumber"}

// JellyfinService handles interactions with a Jellyfin-compatible media server
type JellyfinService struct {
	baseURL  string
	apiKey   string
	client   *http.Client
	pageSize int
	logger   zerolog.Logger
}

// User is an identity returned by /Users
type User struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// CatalogItem is the subset of a media server item consumed by the analyzer.
// Pointer fields are optional upstream; nil means the field was absent.
type CatalogItem struct {
	ID           string        `json:"Id"`
	Name         string        `json:"Name"`
	Type         string        `json:"Type"`
	Path         string        `json:"Path"`
	LocationType string        `json:"LocationType"`
	RunTimeTicks *int64        `json:"RunTimeTicks"`
	MediaSources []MediaSource `json:"MediaSources"`
	MediaStreams []MediaStream `json:"MediaStreams"`
	SeriesName   string        `json:"SeriesName"`
	SeasonName   string        `json:"SeasonName"`
	IndexNumber  *int          `json:"IndexNumber"`
}

// MediaSource describes one physical source of an item
type MediaSource struct {
	Container *string `json:"Container"`
	Size      *int64  `json:"Size"`
}

// MediaStream describes a video, audio or subtitle stream
type MediaStream struct {
	Type           string   `json:"Type"`
	Codec          *string  `json:"Codec"`
	Width          *int     `json:"Width"`
	Height         *int     `json:"Height"`
	RealFrameRate  *float64 `json:"RealFrameRate"`
	VideoRangeType *string  `json:"VideoRangeType"`
	ColorPrimaries *string  `json:"ColorPrimaries"`
	IsInterlaced   *bool    `json:"IsInterlaced"`
	BitRate        *int64   `json:"BitRate"`
	Channels       *int     `json:"Channels"`
	SampleRate     *int     `json:"SampleRate"`
}

// ItemsResponse is one page of /Items
type ItemsResponse struct {
	Items            []CatalogItem `json:"Items"`
	TotalRecordCount int           `json:"TotalRecordCount"`
}

// ItemQuery holds the filter parameters of a catalog listing
type ItemQuery struct {
	UserID              string
	IncludeItemTypes    []string
	Recursive           bool
	Fields              []string
	CollapseBoxSetItems bool
}

// MediaItemQuery returns the query listing every movie and episode for a user
func MediaItemQuery(userID string) ItemQuery {
	return ItemQuery{
		UserID:           userID,
		IncludeItemTypes: []string{"Movie", "Episode"},
		Recursive:        true,
		Fields:           DetailFields,
	}
}

// Option configures a JellyfinService
type Option func(*JellyfinService)

// WithTimeout bounds each upstream request. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *JellyfinService) { s.client.Timeout = d }
}

// WithPageSize overrides the /Items page size
func WithPageSize(n int) Option {
	return func(s *JellyfinService) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewJellyfinService creates a new media server client
func NewJellyfinService(baseURL, apiKey string, opts ...Option) *JellyfinService {
	s := &JellyfinService{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		client:   &http.Client{},
		pageSize: DefaultPageSize,
		logger:   logger.WithComponent("jellyfin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListUsers returns the identities configured on the media server
func (j *JellyfinService) ListUsers(ctx context.Context) ([]User, error) {
	params := url.Values{}
	params.Set("api_key", j.apiKey)

	var users []User
	err := j.getJSON(ctx, "users", "/Users", params, &users)
	metrics.IncUpstreamRequest("users", err)
	if err != nil {
		return nil, err
	}
	return users, nil
}

// ResolveUserID returns the ID of the first user on the media server
func (j *JellyfinService) ResolveUserID(ctx context.Context) (string, error) {
	users, err := j.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", ErrEmptyIdentitySet
	}
	return users[0].ID, nil
}

// FetchAllItems pages through /Items until the catalog is exhausted.
// A page shorter than the page size, an empty page, or reaching the reported
// TotalRecordCount ends the loop. Any failure discards everything fetched so far.
func (j *JellyfinService) FetchAllItems(ctx context.Context, q ItemQuery) ([]CatalogItem, error) {
	var all []CatalogItem
	start := 0
	for {
		params := j.itemParams(q)
		params.Set("StartIndex", strconv.Itoa(start))
		params.Set("Limit", strconv.Itoa(j.pageSize))

		var page ItemsResponse
		err := j.getJSON(ctx, "items", "/Items", params, &page)
		metrics.IncUpstreamRequest("items", err)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Items...)
		j.logger.Debug().
			Int("start_index", start).
			Int("page_items", len(page.Items)).
			Int("total", len(all)).
			Msg("fetched catalog page")

		if len(page.Items) == 0 || len(page.Items) < j.pageSize {
			break
		}
		if page.TotalRecordCount > 0 && len(all) >= page.TotalRecordCount {
			break
		}
		start += j.pageSize
	}
	return all, nil
}

func (j *JellyfinService) itemParams(q ItemQuery) url.Values {
	params := url.Values{}
	params.Set("api_key", j.apiKey)
	if q.UserID != "" {
		params.Set("userId", q.UserID)
	}
	if len(q.IncludeItemTypes) > 0 {
		params.Set("IncludeItemTypes", strings.Join(q.IncludeItemTypes, ","))
	}
	params.Set("Recursive", strconv.FormatBool(q.Recursive))
	if len(q.Fields) > 0 {
		params.Set("Fields", strings.Join(q.Fields, ","))
	}
	params.Set("CollapseBoxSetItems", strconv.FormatBool(q.CollapseBoxSetItems))
	return params
}

func (j *JellyfinService) getJSON(ctx context.Context, op, path string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s%s?%s", j.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &UpstreamError{Operation: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return &UpstreamError{Operation: op, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			j.logger.Warn().Err(err).Msg("failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Operation: op, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Operation: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

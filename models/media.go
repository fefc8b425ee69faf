// Package models defines the data structures used throughout the application.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// MediaType is the normalized item type exposed to clients
type MediaType string

// Media type constants
const (
	MediaTypeMovie   MediaType = "Movie"
	MediaTypeEpisode MediaType = "Episode"
)

// ScanType describes how a video stream is scanned
type ScanType string

// Scan type constants
const (
	ScanProgressive ScanType = "Progressive"
	ScanInterlaced  ScanType = "Interlaced"
	ScanUnknown     ScanType = "Unknown"
)

// ScanTypeFromFlag maps an optional interlaced flag to a scan type.
// A nil flag means the upstream did not report it.
func ScanTypeFromFlag(interlaced *bool) ScanType {
	switch {
	case interlaced == nil:
		return ScanUnknown
	case *interlaced:
		return ScanInterlaced
	default:
		return ScanProgressive
	}
}

// Sentinel strings used on the wire in place of numbers
const (
	Unknown = "Unknown"
	None    = "None"
)

// FrameRate is a frame rate that renders as "Unknown" when not reported
type FrameRate struct {
	Value float64
	Known bool
}

// KnownFrameRate returns a frame rate with a reported value
func KnownFrameRate(v float64) FrameRate {
	return FrameRate{Value: v, Known: true}
}

// MarshalJSON implements json.Marshaler
func (f FrameRate) MarshalJSON() ([]byte, error) {
	if !f.Known {
		return json.Marshal(Unknown)
	}
	return json.Marshal(f.Value)
}

// UnmarshalJSON implements json.Unmarshaler. null reads as unknown.
func (f *FrameRate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = FrameRate{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != Unknown {
			return fmt.Errorf("invalid frame rate %q", s)
		}
		*f = FrameRate{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid frame rate: %w", err)
	}
	*f = KnownFrameRate(v)
	return nil
}

func (f FrameRate) String() string {
	if !f.Known {
		return Unknown
	}
	return strconv.FormatFloat(f.Value, 'f', -1, 64)
}

// SampleRate is an audio sample rate in Hz, or a label when there is no number.
// Label is "None" when the item has no audio and "Unknown" when the first
// audio stream does not report a rate.
type SampleRate struct {
	Hz    int
	Label string
}

// MarshalJSON implements json.Marshaler
func (s SampleRate) MarshalJSON() ([]byte, error) {
	if s.Label != "" {
		return json.Marshal(s.Label)
	}
	return json.Marshal(s.Hz)
}

// UnmarshalJSON implements json.Unmarshaler
func (s *SampleRate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = SampleRate{Label: Unknown}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var label string
		if err := json.Unmarshal(data, &label); err != nil {
			return err
		}
		if label != Unknown && label != None {
			return fmt.Errorf("invalid sample rate %q", label)
		}
		*s = SampleRate{Label: label}
		return nil
	}
	var hz int
	if err := json.Unmarshal(data, &hz); err != nil {
		return fmt.Errorf("invalid sample rate: %w", err)
	}
	*s = SampleRate{Hz: hz}
	return nil
}

func (s SampleRate) String() string {
	if s.Label != "" {
		return s.Label
	}
	return strconv.Itoa(s.Hz)
}

// MediaRecord is one normalized movie or episode. JSON keys are the wire format
// of both the API response and the cache snapshot.
type MediaRecord struct {
	Name          string    `json:"name"`
	Type          MediaType `json:"type"`
	SeriesName    string    `json:"series_name"`
	SeasonName    string    `json:"season_name"`
	EpisodeNumber *int      `json:"episode_number"`
	Path          string    `json:"path"`

	Container        string     `json:"container"`
	VideoCodec       string     `json:"video_codec"`
	VideoBitrateKbps int64      `json:"video_bitrate_kbps"`
	FrameRate        FrameRate  `json:"frame_rate"`
	HDRInfo          string     `json:"hdr_info"`
	ColorGamut       string     `json:"color_gamut"`
	ScanType         ScanType   `json:"scan_type"`
	AudioCodec       string     `json:"audio_codec"`
	AudioBitrateKbps int64      `json:"audio_bitrate_kbps"`
	AudioSampleRate  SampleRate `json:"audio_sample_rate"`
	AudioChannels    int        `json:"audio_channels"`
	AudioTrackCount  int        `json:"audio_track_count"`
	Resolution       string     `json:"resolution"`

	DurationMin         float64 `json:"duration_min"`
	SizeMB              float64 `json:"size_mb"`
	EfficiencyMBPerHour float64 `json:"efficiency_mb_per_hour"`
}

// Collection is the ordered set of records served and cached as one payload
type Collection []MediaRecord

package analyzer

import (
	"slices"
	"strconv"
	"strings"

	"mediaanalyzer/models"
)

// Filter narrows a collection. Empty fields match everything.
type Filter struct {
	Search           string
	VideoCodecs      []string
	ResolutionGroups []string
	Types            []string
}

// IsZero reports whether the filter matches every record
func (f Filter) IsZero() bool {
	return f.Search == "" && len(f.VideoCodecs) == 0 && len(f.ResolutionGroups) == 0 && len(f.Types) == 0
}

// ApplyFilters returns the records matching every set criterion, in order.
// Search is a case-insensitive substring match against any field value.
func ApplyFilters(c models.Collection, f Filter) models.Collection {
	if f.IsZero() {
		return c
	}
	term := strings.ToLower(f.Search)

	out := make(models.Collection, 0, len(c))
	for _, rec := range c {
		if term != "" && !matchesSearch(rec, term) {
			continue
		}
		if len(f.VideoCodecs) > 0 && !slices.Contains(f.VideoCodecs, rec.VideoCodec) {
			continue
		}
		if len(f.ResolutionGroups) > 0 && !slices.Contains(f.ResolutionGroups, CategorizeResolution(rec.Resolution)) {
			continue
		}
		if len(f.Types) > 0 && !slices.Contains(f.Types, string(rec.Type)) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func matchesSearch(rec models.MediaRecord, term string) bool {
	for _, v := range fieldValues(rec) {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

// fieldValues renders every field the way it appears in the JSON payload
func fieldValues(rec models.MediaRecord) []string {
	episode := "null"
	if rec.EpisodeNumber != nil {
		episode = strconv.Itoa(*rec.EpisodeNumber)
	}
	return []string{
		rec.Name,
		string(rec.Type),
		rec.SeriesName,
		rec.SeasonName,
		episode,
		rec.Path,
		rec.Container,
		rec.VideoCodec,
		strconv.FormatInt(rec.VideoBitrateKbps, 10),
		rec.FrameRate.String(),
		rec.HDRInfo,
		rec.ColorGamut,
		string(rec.ScanType),
		rec.AudioCodec,
		strconv.FormatInt(rec.AudioBitrateKbps, 10),
		rec.AudioSampleRate.String(),
		strconv.Itoa(rec.AudioChannels),
		strconv.Itoa(rec.AudioTrackCount),
		rec.Resolution,
		formatFloat(rec.DurationMin),
		formatFloat(rec.SizeMB),
		formatFloat(rec.EfficiencyMBPerHour),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

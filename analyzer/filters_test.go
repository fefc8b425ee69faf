package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mediaanalyzer/models"
)

func filterFixture() models.Collection {
	ep := 42
	return models.Collection{
		{Name: "Arrival", Type: models.MediaTypeMovie, Path: "/m/arrival.mkv", VideoCodec: "HEVC",
			Resolution: "3840x2160", FrameRate: models.KnownFrameRate(23.98)},
		{Name: "Pilot", Type: models.MediaTypeEpisode, SeriesName: "Severance", EpisodeNumber: &ep,
			Path: "/tv/sev/s01e07.mkv", VideoCodec: "H264", Resolution: "1920x1080"},
		{Name: "Home", Type: models.MediaTypeMovie, Path: "/m/home.mp4", VideoCodec: "H264",
			Resolution: "720x480", AudioCodec: "AAC"},
	}
}

func names(c models.Collection) []string {
	out := make([]string, 0, len(c))
	for _, rec := range c {
		out = append(out, rec.Name)
	}
	return out
}

func TestApplyFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "no filter", filter: Filter{}, want: []string{"Arrival", "Pilot", "Home"}},
		{name: "search name case insensitive", filter: Filter{Search: "ARRIV"}, want: []string{"Arrival"}},
		{name: "search series", filter: Filter{Search: "sever"}, want: []string{"Pilot"}},
		{name: "search path", filter: Filter{Search: "/m/"}, want: []string{"Arrival", "Home"}},
		{name: "search number", filter: Filter{Search: "23.98"}, want: []string{"Arrival"}},
		{name: "search episode number", filter: Filter{Search: "42"}, want: []string{"Pilot"}},
		{name: "search audio codec", filter: Filter{Search: "aac"}, want: []string{"Home"}},
		{name: "video codec", filter: Filter{VideoCodecs: []string{"H264"}}, want: []string{"Pilot", "Home"}},
		{name: "resolution group", filter: Filter{ResolutionGroups: []string{Res4K, Res480p}}, want: []string{"Arrival", "Home"}},
		{name: "type", filter: Filter{Types: []string{"Episode"}}, want: []string{"Pilot"}},
		{name: "combined", filter: Filter{VideoCodecs: []string{"H264"}, Types: []string{"Movie"}}, want: []string{"Home"}},
		{name: "no match", filter: Filter{Search: "nothing-here"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(ApplyFilters(filterFixture(), tt.filter)))
		})
	}
}

func TestFilter_IsZero(t *testing.T) {
	assert.True(t, Filter{}.IsZero())
	assert.False(t, Filter{Search: "x"}.IsZero())
	assert.False(t, Filter{Types: []string{"Movie"}}.IsZero())
}

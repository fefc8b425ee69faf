// Package analyzer turns raw catalog items into normalized media records and
// serves them through the cache.
package analyzer

import (
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"mediaanalyzer/models"
	"mediaanalyzer/services"
)

const (
	ticksPerSecond = 10_000_000
	bytesPerMiB    = 1024 * 1024

	streamVideo = "Video"
	streamAudio = "Audio"

	defaultHDR = "SDR"
)

// Normalize maps one catalog item to a flat record
func Normalize(item services.CatalogItem) models.MediaRecord {
	itemType := item.Type
	if itemType == "" {
		itemType = models.Unknown
	}
	if itemType == "Video" {
		itemType = string(models.MediaTypeMovie)
	}

	rec := models.MediaRecord{
		Name: orUnknown(item.Name),
		Type: models.MediaType(itemType),
		Path: orUnknown(item.Path),
	}
	if rec.Type == models.MediaTypeEpisode {
		rec.SeriesName = item.SeriesName
		rec.SeasonName = item.SeasonName
		rec.EpisodeNumber = item.IndexNumber
	}

	// Only the first media source counts
	rec.Container = models.Unknown
	var sizeMB float64
	if len(item.MediaSources) > 0 {
		src := item.MediaSources[0]
		if src.Container != nil {
			rec.Container = *src.Container
		}
		if src.Size != nil {
			sizeMB = float64(*src.Size) / bytesPerMiB
		}
	}

	var durationMin float64
	if item.RunTimeTicks != nil {
		durationMin = float64(*item.RunTimeTicks) / ticksPerSecond / 60
	}

	var efficiency float64
	if durationMin > 0 {
		efficiency = sizeMB / (durationMin / 60)
	}

	rec.DurationMin = round2(durationMin)
	rec.SizeMB = round2(sizeMB)
	rec.EfficiencyMBPerHour = round2(efficiency)

	applyVideo(&rec, firstVideo(item.MediaStreams))
	applyAudio(&rec, audioStreams(item.MediaStreams))
	return rec
}

// NormalizeAll normalizes items concurrently, preserving input order
func NormalizeAll(items []services.CatalogItem) models.Collection {
	if len(items) == 0 {
		return models.Collection{}
	}
	mapper := iter.Mapper[services.CatalogItem, models.MediaRecord]{
		MaxGoroutines: runtime.GOMAXPROCS(0),
	}
	return mapper.Map(items, func(item *services.CatalogItem) models.MediaRecord {
		return Normalize(*item)
	})
}

func firstVideo(streams []services.MediaStream) *services.MediaStream {
	for i := range streams {
		if streams[i].Type == streamVideo {
			return &streams[i]
		}
	}
	return nil
}

func audioStreams(streams []services.MediaStream) []services.MediaStream {
	var audio []services.MediaStream
	for _, s := range streams {
		if s.Type == streamAudio {
			audio = append(audio, s)
		}
	}
	return audio
}

func applyVideo(rec *models.MediaRecord, v *services.MediaStream) {
	rec.VideoCodec = models.Unknown
	rec.HDRInfo = defaultHDR
	rec.ColorGamut = models.Unknown
	rec.ScanType = models.ScanUnknown
	rec.Resolution = "?x?"
	if v == nil {
		return
	}

	if v.Codec != nil {
		rec.VideoCodec = strings.ToUpper(*v.Codec)
	}
	rec.Resolution = fmt.Sprintf("%sx%s", dimension(v.Width), dimension(v.Height))
	if v.RealFrameRate != nil && *v.RealFrameRate != 0 {
		rec.FrameRate = models.KnownFrameRate(round2(*v.RealFrameRate))
	}
	if v.VideoRangeType != nil {
		rec.HDRInfo = *v.VideoRangeType
	}
	if v.ColorPrimaries != nil {
		rec.ColorGamut = *v.ColorPrimaries
	}
	rec.ScanType = models.ScanTypeFromFlag(v.IsInterlaced)
	if v.BitRate != nil {
		rec.VideoBitrateKbps = roundKbps(*v.BitRate)
	}
}

func applyAudio(rec *models.MediaRecord, audio []services.MediaStream) {
	rec.AudioTrackCount = len(audio)
	if len(audio) == 0 {
		rec.AudioCodec = models.None
		rec.AudioSampleRate = models.SampleRate{Label: models.None}
		return
	}

	var codecs []string
	seen := make(map[string]bool)
	var bits int64
	for _, a := range audio {
		codec := models.Unknown
		if a.Codec != nil {
			codec = strings.ToUpper(*a.Codec)
		}
		if !seen[codec] {
			seen[codec] = true
			codecs = append(codecs, codec)
		}
		if a.Channels != nil && *a.Channels > rec.AudioChannels {
			rec.AudioChannels = *a.Channels
		}
		if a.BitRate != nil {
			bits += *a.BitRate
		}
	}
	rec.AudioCodec = strings.Join(codecs, ", ")
	rec.AudioBitrateKbps = roundKbps(bits)

	if rate := audio[0].SampleRate; rate != nil {
		rec.AudioSampleRate = models.SampleRate{Hz: *rate}
	} else {
		rec.AudioSampleRate = models.SampleRate{Label: models.Unknown}
	}
}

func dimension(v *int) string {
	if v == nil {
		return "?"
	}
	return strconv.Itoa(*v)
}

func orUnknown(s string) string {
	if s == "" {
		return models.Unknown
	}
	return s
}

// roundKbps converts bits per second to kilobits, halves to even
func roundKbps(bits int64) int64 {
	return int64(math.RoundToEven(float64(bits) / 1000))
}

// round2 rounds to two decimal places on the exact value, halves to even.
// Scaling by 100 first would push values stored just below a midpoint over it.
func round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}

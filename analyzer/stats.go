package analyzer

import (
	"math"
	"strconv"
	"strings"

	"mediaanalyzer/models"
)

// Resolution groups, largest first
const (
	Res8K      = "8K"
	Res5K      = "5K"
	Res4K      = "4K / UHD"
	Res2K      = "2K / 1440p"
	Res1080p   = "Full HD / 1080p"
	Res720p    = "HD / 720p"
	Res576p    = "SD / 576p"
	Res540p    = "SD / 540p"
	Res480p    = "SD / 480p"
	Res404p    = "SD / 404p"
	Res384p    = "SD / 384p"
	Res360p    = "360p"
	Res240p    = "240p"
	Res144p    = "144p"
	ResUnknown = models.Unknown
)

// ResolutionGroups lists every group in display order
var ResolutionGroups = []string{
	Res8K, Res5K, Res4K, Res2K, Res1080p, Res720p, Res576p, Res540p,
	Res480p, Res404p, Res384p, Res360p, Res240p, Res144p, ResUnknown,
}

// exact sizes override the threshold table
var exactResolutions = map[[2]int]string{
	{7680, 4320}: Res8K,
	{5120, 2880}: Res5K,
	{3840, 2160}: Res4K,
	{4096, 2160}: Res4K,
	{2560, 1440}: Res2K,
	{2048, 1080}: Res2K,
	{1920, 1080}: Res1080p,
	{1920, 1088}: Res1080p,
	{1920, 1072}: Res1080p,
	{1920, 1078}: Res1080p,
	{1280, 720}:  Res720p,
	{854, 480}:   Res480p,
	{720, 480}:   Res480p,
	{640, 360}:   Res360p,
}

// first match wins
var resolutionThresholds = []struct {
	maxWidth, maxHeight int
	group               string
}{
	{256, 144, Res144p},
	{426, 240, Res240p},
	{640, 360, Res360p},
	{682, 384, Res384p},
	{720, 404, Res404p},
	{854, 480, Res480p},
	{960, 544, Res540p},
	{1024, 576, Res576p},
	{1280, 962, Res720p},
	{2560, 1440, Res1080p},
	{4096, 3072, Res4K},
	{8192, 6144, Res8K},
}

// CategorizeResolution maps a "WxH" string to a named group.
// Orientation is ignored: the larger side is treated as the width.
func CategorizeResolution(resolution string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(resolution)), "x")
	if len(parts) != 2 {
		return ResUnknown
	}
	w, okW := leadingInt(parts[0])
	h, okH := leadingInt(parts[1])
	if !okW || !okH || w <= 0 || h <= 0 {
		return ResUnknown
	}

	width, height := max(w, h), min(w, h)
	if group, ok := exactResolutions[[2]int{width, height}]; ok {
		return group
	}
	for _, t := range resolutionThresholds {
		if width <= t.maxWidth && height <= t.maxHeight {
			return t.group
		}
	}
	return ResUnknown
}

// leadingInt parses the optionally signed run of digits at the start of s
func leadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Summarize computes library totals and breakdowns over a collection
func Summarize(c models.Collection) models.LibrarySummary {
	summary := models.LibrarySummary{
		TotalItems:   len(c),
		ByResolution: make(map[string]int),
		ByVideoCodec: make(map[string]int),
		ByType:       make(map[string]int),
		ByHDR:        make(map[string]int),
	}

	var sizeMB, minutes, efficiency float64
	for _, rec := range c {
		sizeMB += rec.SizeMB
		minutes += rec.DurationMin
		efficiency += rec.EfficiencyMBPerHour

		summary.ByResolution[CategorizeResolution(rec.Resolution)]++
		summary.ByVideoCodec[rec.VideoCodec]++
		summary.ByType[string(rec.Type)]++
		summary.ByHDR[rec.HDRInfo]++
	}

	summary.ResolutionOrder = make([]string, 0, len(summary.ByResolution))
	for _, group := range ResolutionGroups {
		if summary.ByResolution[group] > 0 {
			summary.ResolutionOrder = append(summary.ResolutionOrder, group)
		}
	}

	summary.TotalSizeGiB = round2(sizeMB / 1024)
	summary.TotalMinutes = math.Round(minutes)
	summary.TotalDurationHours = math.Round(summary.TotalMinutes/60*10) / 10
	if len(c) > 0 {
		summary.AvgEfficiency = round2(efficiency / float64(len(c)))
	}
	return summary
}

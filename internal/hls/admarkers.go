package hls

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/streamwatch/streamwatch/internal/models"
)

// Regular expressions for ad marker tags.
var (
	daterangeIDRegex    = regexp.MustCompile(`ID="([^"]+)"`)
	daterangeClassRegex = regexp.MustCompile(`CLASS="([^"]+)"`)
	startDateRegex      = regexp.MustCompile(`START-DATE="([^"]+)"`)
	durationAttrRegex   = regexp.MustCompile(`DURATION=([0-9.]+)`)
	cueOutValueRegex    = regexp.MustCompile(`CUE-OUT:([0-9.]+)`)
)

// DetectAdMarkers scans playlist content for ad insertion signals:
// #EXT-X-DATERANGE tags, #EXT-X-CUE-OUT / #EXT-X-CUE-IN splice points, and
// bandwidth reservation markers.
func DetectAdMarkers(content string, now time.Time) []models.AdMarker {
	var markers []models.AdMarker

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, "#EXT-X-DATERANGE"):
			markers = append(markers, parseDateRange(line, now))
		case strings.HasPrefix(line, "#EXT-X-CUE-OUT"):
			markers = append(markers, parseCueOut(line, now))
		case strings.HasPrefix(line, "#EXT-X-CUE-IN"):
			markers = append(markers, models.AdMarker{
				Timestamp: now,
				Type:      "splice_null",
				Metadata:  map[string]any{"direction": "in", "line": line},
			})
		case strings.Contains(strings.ToUpper(line), "BANDWIDTH-RESERVATION"):
			markers = append(markers, models.AdMarker{
				Timestamp: now,
				Type:      "bandwidth_reservation",
				Metadata:  map[string]any{"line": line},
			})
		}
	}

	return markers
}

func parseDateRange(line string, now time.Time) models.AdMarker {
	metadata := make(map[string]any)

	if m := daterangeIDRegex.FindStringSubmatch(line); m != nil {
		metadata["id"] = m[1]
	}
	if m := daterangeClassRegex.FindStringSubmatch(line); m != nil {
		metadata["class"] = m[1]
	}

	timestamp := now
	if m := startDateRegex.FindStringSubmatch(line); m != nil {
		if t, err := time.Parse(time.RFC3339, m[1]); err == nil {
			timestamp = t
		}
	}

	var duration float64
	if m := durationAttrRegex.FindStringSubmatch(line); m != nil {
		duration, _ = strconv.ParseFloat(m[1], 64)
	}

	return models.AdMarker{
		Timestamp: timestamp,
		Type:      "ad_insertion",
		Duration:  duration,
		Metadata:  metadata,
	}
}

func parseCueOut(line string, now time.Time) models.AdMarker {
	var duration float64
	if m := durationAttrRegex.FindStringSubmatch(line); m != nil {
		duration, _ = strconv.ParseFloat(m[1], 64)
	} else if m := cueOutValueRegex.FindStringSubmatch(line); m != nil {
		// Short form: #EXT-X-CUE-OUT:30
		duration, _ = strconv.ParseFloat(m[1], 64)
	}

	return models.AdMarker{
		Timestamp: now,
		Type:      "splice_null",
		Duration:  duration,
		Metadata:  map[string]any{"direction": "out", "line": line},
	}
}

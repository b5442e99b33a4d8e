// Package hls provides tolerant HLS playlist parsing for monitoring
// purposes, plus a strict validation pass for defect reporting.
//
// The tolerant parser never fails: it extracts whatever variants and
// segments it can recognize and skips everything else, because a monitoring
// probe must keep observing a stream whose packager emits sloppy manifests.
package hls

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/streamwatch/streamwatch/internal/models"
)

// Manifest is the result of parsing one playlist.
type Manifest struct {
	// Variants are the #EXT-X-STREAM-INF entries of a master playlist.
	Variants []models.VariantStream
	// Segments are the absolute URIs of #EXTINF media segments.
	Segments []string
}

// IsMaster reports whether the playlist is a master playlist: it declares
// variants and carries no media segments of its own.
func (m *Manifest) IsMaster() bool {
	return len(m.Segments) == 0 && len(m.Variants) > 0
}

// BestVariant returns the variant with the highest declared bandwidth, or
// nil when the manifest has none.
func (m *Manifest) BestVariant() *models.VariantStream {
	if len(m.Variants) == 0 {
		return nil
	}
	best := &m.Variants[0]
	for i := range m.Variants[1:] {
		v := &m.Variants[i+1]
		if v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	return best
}

// Regular expressions for #EXT-X-STREAM-INF attributes.
var (
	bandwidthRegex  = regexp.MustCompile(`BANDWIDTH=(\d+)`)
	resolutionRegex = regexp.MustCompile(`RESOLUTION=(\d+x\d+)`)
	codecsRegex     = regexp.MustCompile(`CODECS="([^"]+)"`)
	frameRateRegex  = regexp.MustCompile(`FRAME-RATE=([0-9.]+)`)
)

// Parse extracts variant streams and media segment URIs from playlist
// content. Relative URIs are resolved against baseURL. Lines that are not
// recognized are skipped.
func Parse(content, baseURL string) Manifest {
	lines := strings.Split(content, "\n")
	var manifest Manifest

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			if uri, ok := uriAfter(lines, i); ok {
				variant := parseStreamInf(line)
				variant.URI = resolveURI(baseURL, uri)
				manifest.Variants = append(manifest.Variants, variant)
				i++
			}
		case strings.HasPrefix(line, "#EXTINF:"):
			if uri, ok := uriAfter(lines, i); ok {
				manifest.Segments = append(manifest.Segments, resolveURI(baseURL, uri))
				i++
			}
		}
	}

	return manifest
}

// uriAfter returns the next line if it is a URI line (non-empty, not a tag).
func uriAfter(lines []string, i int) (string, bool) {
	if i+1 >= len(lines) {
		return "", false
	}
	uri := strings.TrimSpace(lines[i+1])
	if uri == "" || strings.HasPrefix(uri, "#") {
		return "", false
	}
	return uri, true
}

// parseStreamInf extracts the attributes of one #EXT-X-STREAM-INF line.
// Unparseable attributes are left at their zero values.
func parseStreamInf(line string) models.VariantStream {
	var v models.VariantStream

	if m := bandwidthRegex.FindStringSubmatch(line); m != nil {
		if bw, err := strconv.Atoi(m[1]); err == nil {
			v.Bandwidth = bw
		}
	}
	if m := resolutionRegex.FindStringSubmatch(line); m != nil {
		v.Resolution = m[1]
	}
	if m := codecsRegex.FindStringSubmatch(line); m != nil {
		v.Codecs = m[1]
	}
	if m := frameRateRegex.FindStringSubmatch(line); m != nil {
		if fps, err := strconv.ParseFloat(m[1], 64); err == nil {
			v.FrameRate = fps
		}
	}

	return v
}

// resolveURI resolves a possibly-relative playlist URI against the playlist
// URL. On any parse failure the raw URI is returned unchanged.
func resolveURI(baseURL, uri string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return uri
	}
	ref, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return base.ResolveReference(ref).String()
}

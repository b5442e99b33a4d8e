package hls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=1000000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000,RESOLUTION=1280x720,FRAME-RATE=29.970
high/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:100
#EXTINF:6.000,
seg100.ts
#EXTINF:6.000,
seg101.ts
#EXTINF:5.800,
https://cdn.example.com/abs/seg102.ts
`

func TestParse_MasterPlaylist(t *testing.T) {
	m := Parse(masterPlaylist, "http://example.com/master.m3u8")

	require.Len(t, m.Variants, 2)
	assert.True(t, m.IsMaster())
	assert.Empty(t, m.Segments)

	assert.Equal(t, 1000000, m.Variants[0].Bandwidth)
	assert.Equal(t, "640x360", m.Variants[0].Resolution)
	assert.Equal(t, "avc1.4d401e,mp4a.40.2", m.Variants[0].Codecs)
	assert.Equal(t, "http://example.com/low/index.m3u8", m.Variants[0].URI)

	assert.Equal(t, 3000000, m.Variants[1].Bandwidth)
	assert.InDelta(t, 29.97, m.Variants[1].FrameRate, 1e-9)
	assert.Equal(t, "http://example.com/high/index.m3u8", m.Variants[1].URI)
}

func TestParse_MediaPlaylist(t *testing.T) {
	m := Parse(mediaPlaylist, "http://example.com/hls/index.m3u8")

	assert.False(t, m.IsMaster())
	assert.Empty(t, m.Variants)
	require.Len(t, m.Segments, 3)
	assert.Equal(t, "http://example.com/hls/seg100.ts", m.Segments[0])
	assert.Equal(t, "http://example.com/hls/seg101.ts", m.Segments[1])
	// Absolute URIs pass through untouched.
	assert.Equal(t, "https://cdn.example.com/abs/seg102.ts", m.Segments[2])
}

func TestParse_BestVariant(t *testing.T) {
	m := Parse(masterPlaylist, "http://example.com/master.m3u8")

	best := m.BestVariant()
	require.NotNil(t, best)
	assert.Equal(t, 3000000, best.Bandwidth)
	assert.Equal(t, "1280x720", best.Resolution)
}

func TestParse_BestVariantEmpty(t *testing.T) {
	m := Parse(mediaPlaylist, "http://example.com/index.m3u8")
	assert.Nil(t, m.BestVariant())
}

func TestParse_MalformedContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"garbage", "not a playlist\nat all"},
		{"tag without uri", "#EXT-X-STREAM-INF:BANDWIDTH=1000000\n#EXT-X-ENDLIST"},
		{"extinf at EOF", "#EXTM3U\n#EXTINF:6.0,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Parse(tt.content, "http://example.com/x.m3u8")
			assert.Empty(t, m.Variants)
			assert.Empty(t, m.Segments)
		})
	}
}

func TestParse_SkipsBlankURILines(t *testing.T) {
	content := "#EXTM3U\n#EXTINF:6.0,\n\nseg.ts\n"
	m := Parse(content, "http://example.com/x.m3u8")
	// Blank line after EXTINF means no URI is attributed to the tag.
	assert.Empty(t, m.Segments)
}

func TestDetectAdMarkers_DateRange(t *testing.T) {
	content := `#EXTM3U
#EXT-X-DATERANGE:ID="ad-1",CLASS="AD",START-DATE="2026-03-01T12:00:00Z",DURATION=30.0
#EXTINF:6.0,
seg.ts
`
	now := time.Now().UTC()
	markers := DetectAdMarkers(content, now)

	require.Len(t, markers, 1)
	assert.Equal(t, "ad_insertion", markers[0].Type)
	assert.InDelta(t, 30.0, markers[0].Duration, 1e-9)
	assert.Equal(t, "ad-1", markers[0].Metadata["id"])
	assert.Equal(t, "AD", markers[0].Metadata["class"])
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), markers[0].Timestamp)
}

func TestDetectAdMarkers_CueOutIn(t *testing.T) {
	content := "#EXT-X-CUE-OUT:30\n#EXTINF:6.0,\nseg.ts\n#EXT-X-CUE-IN\n"
	now := time.Now().UTC()
	markers := DetectAdMarkers(content, now)

	require.Len(t, markers, 2)
	assert.Equal(t, "splice_null", markers[0].Type)
	assert.InDelta(t, 30.0, markers[0].Duration, 1e-9)
	assert.Equal(t, "out", markers[0].Metadata["direction"])

	assert.Equal(t, "splice_null", markers[1].Type)
	assert.Equal(t, "in", markers[1].Metadata["direction"])
}

func TestDetectAdMarkers_CueOutDurationAttr(t *testing.T) {
	markers := DetectAdMarkers(`#EXT-X-CUE-OUT:DURATION=15.5`, time.Now())
	require.Len(t, markers, 1)
	assert.InDelta(t, 15.5, markers[0].Duration, 1e-9)
}

func TestDetectAdMarkers_BandwidthReservation(t *testing.T) {
	markers := DetectAdMarkers("#EXT-X-COM-BANDWIDTH-RESERVATION:rate=500000", time.Now())
	require.Len(t, markers, 1)
	assert.Equal(t, "bandwidth_reservation", markers[0].Type)
}

func TestDetectAdMarkers_None(t *testing.T) {
	assert.Empty(t, DetectAdMarkers(mediaPlaylist, time.Now()))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate([]byte(mediaPlaylist)))
	assert.Error(t, Validate([]byte("definitely not a playlist")))
}

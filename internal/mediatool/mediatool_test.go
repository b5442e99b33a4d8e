package mediatool

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/config"
)

const ebur128Stderr = `[Parsed_ebur128_0 @ 0x5602] t: 1.0     TARGET:-23 LUFS    M: -18.3 S: -19.1     I: -18.9 LUFS       LRA:   0.0 LU
[Parsed_ebur128_0 @ 0x5602] t: 2.0     TARGET:-23 LUFS    M: -17.8 S: -18.5     I: -18.2 LUFS       LRA:   0.3 LU
[Parsed_ebur128_0 @ 0x5602] Summary:
  Integrated loudness:
    I:         -18.2 LUFS
`

const volumedetectStderr = `[Parsed_volumedetect_0 @ 0x5602] n_samples: 288000
[Parsed_volumedetect_0 @ 0x5602] mean_volume: -21.4 dB
[Parsed_volumedetect_0 @ 0x5602] max_volume: -4.2 dB
`

func TestParseLoudnessOutput_EBUR128(t *testing.T) {
	data := ParseLoudnessOutput(ebur128Stderr)
	require.NotNil(t, data)

	require.NotNil(t, data.MomentaryLUFS)
	assert.InDelta(t, -17.8, *data.MomentaryLUFS, 1e-9)
	require.NotNil(t, data.ShorttermLUFS)
	assert.InDelta(t, -18.5, *data.ShorttermLUFS, 1e-9)
	require.NotNil(t, data.IntegratedLUFS)
	// Last occurrence wins, including the summary block.
	assert.InDelta(t, -18.2, *data.IntegratedLUFS, 1e-9)
	assert.False(t, data.IsApproximation)
}

func TestParseLoudnessOutput_VolumedetectFallback(t *testing.T) {
	data := ParseLoudnessOutput(volumedetectStderr)
	require.NotNil(t, data)

	require.NotNil(t, data.RMSDB)
	assert.InDelta(t, -21.4, *data.RMSDB, 1e-9)
	assert.True(t, data.IsApproximation)
	assert.Nil(t, data.IntegratedLUFS)
}

func TestParseLoudnessOutput_Empty(t *testing.T) {
	assert.Nil(t, ParseLoudnessOutput("frame=  100 fps= 50"))
	assert.Nil(t, ParseLoudnessOutput(""))
}

func newMissingTool() *Tool {
	return New(config.MediaConfig{
		FFmpegPath:      "/nonexistent/ffmpeg",
		FFprobePath:     "/nonexistent/ffprobe",
		ProbeTimeout:    time.Second,
		LoudnessTimeout: time.Second,
	}, slog.New(slog.DiscardHandler))
}

func TestProbeDuration_MissingTool(t *testing.T) {
	tool := newMissingTool()
	_, err := tool.ProbeDuration(context.Background(), "segment.ts")
	assert.Error(t, err)
}

func TestMeasureLoudness_MissingTool(t *testing.T) {
	tool := newMissingTool()
	_, err := tool.MeasureLoudness(context.Background(), "segment.ts")
	assert.Error(t, err)
}

func TestNew_DefaultsToPathLookup(t *testing.T) {
	tool := New(config.MediaConfig{ProbeTimeout: time.Second, LoudnessTimeout: time.Second},
		slog.New(slog.DiscardHandler))
	assert.Equal(t, "ffmpeg", tool.FFmpegPath())
}

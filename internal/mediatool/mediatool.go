// Package mediatool wraps the external ffmpeg/ffprobe binaries for duration
// probing and EBU R128 loudness measurement. The tools are optional
// collaborators: every call tolerates their absence and returns a usable
// fallback.
package mediatool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
)

// Loudness stderr fields emitted by the ebur128 filter.
var (
	momentaryRegex  = regexp.MustCompile(`M:\s*(-?[0-9.]+)`)
	shorttermRegex  = regexp.MustCompile(`S:\s*(-?[0-9.]+)`)
	integratedRegex = regexp.MustCompile(`I:\s*(-?[0-9.]+)\s*LUFS`)
	meanVolumeRegex = regexp.MustCompile(`mean_volume:\s*(-?[0-9.]+)\s*dB`)
)

// Tool invokes ffmpeg and ffprobe with configured timeouts.
type Tool struct {
	ffmpeg          string
	ffprobe         string
	probeTimeout    time.Duration
	loudnessTimeout time.Duration
	logger          *slog.Logger
}

// New creates a Tool from the media configuration. Empty paths resolve
// through PATH at invocation time.
func New(cfg config.MediaConfig, logger *slog.Logger) *Tool {
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := cfg.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Tool{
		ffmpeg:          ffmpeg,
		ffprobe:         ffprobe,
		probeTimeout:    cfg.ProbeTimeout,
		loudnessTimeout: cfg.LoudnessTimeout,
		logger:          observability.WithComponent(logger, "mediatool"),
	}
}

// FFmpegPath returns the resolved ffmpeg command.
func (t *Tool) FFmpegPath() string { return t.ffmpeg }

// ProbeDuration returns the container duration of the file in seconds.
// Any failure (missing tool, timeout, unparseable output) returns an error;
// the caller decides the fallback.
func (t *Tool) ProbeDuration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("ffprobe reported non-positive duration %f", duration)
	}
	return duration, nil
}

// MeasureLoudness runs the ebur128 filter over the file and extracts
// momentary, short-term and integrated LUFS. When ebur128 yields nothing it
// falls back to volumedetect mean volume as an RMS approximation.
func (t *Tool) MeasureLoudness(ctx context.Context, path string) (*models.LoudnessData, error) {
	ctx, cancel := context.WithTimeout(ctx, t.loudnessTimeout)
	defer cancel()

	stderr, err := t.runFFmpeg(ctx, "-i", path, "-af", "ebur128", "-f", "null", "-")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg ebur128: %w", err)
	}

	data := &models.LoudnessData{Timestamp: time.Now().UTC()}
	found := false

	// The filter logs a line per window; the last match is the most recent.
	if v, ok := lastMatch(momentaryRegex, stderr); ok {
		data.MomentaryLUFS = &v
		found = true
	}
	if v, ok := lastMatch(shorttermRegex, stderr); ok {
		data.ShorttermLUFS = &v
		found = true
	}
	if v, ok := lastMatch(integratedRegex, stderr); ok {
		data.IntegratedLUFS = &v
		found = true
	}

	if found {
		return data, nil
	}

	// No loudness stats, likely an audio-less or very short segment. Try
	// volumedetect for a rough RMS figure.
	stderr, err = t.runFFmpeg(ctx, "-i", path, "-af", "volumedetect", "-f", "null", "-")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg volumedetect: %w", err)
	}
	if v, ok := lastMatch(meanVolumeRegex, stderr); ok {
		data.RMSDB = &v
		data.IsApproximation = true
		return data, nil
	}

	return nil, fmt.Errorf("no loudness information in ffmpeg output")
}

func (t *Tool) runFFmpeg(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, t.ffmpeg, append([]string{"-hide_banner", "-nostats"}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// ffmpeg with -f null - exits zero on success; the stats live in stderr.
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return stderr.String(), nil
}

func lastMatch(re *regexp.Regexp, s string) (float64, bool) {
	matches := re.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseLoudnessOutput extracts loudness fields from raw ebur128 stderr text.
// Exposed for parsing captured output without invoking the tool.
func ParseLoudnessOutput(stderr string) *models.LoudnessData {
	data := &models.LoudnessData{Timestamp: time.Now().UTC()}
	found := false

	if v, ok := lastMatch(momentaryRegex, stderr); ok {
		data.MomentaryLUFS = &v
		found = true
	}
	if v, ok := lastMatch(shorttermRegex, stderr); ok {
		data.ShorttermLUFS = &v
		found = true
	}
	if v, ok := lastMatch(integratedRegex, stderr); ok {
		data.IntegratedLUFS = &v
		found = true
	}
	if v, ok := lastMatch(meanVolumeRegex, stderr); ok {
		data.RMSDB = &v
		if !found {
			data.IsApproximation = true
		}
		found = true
	}

	if !found {
		return nil
	}
	return data
}

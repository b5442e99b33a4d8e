// Package health computes the composite 0-100 stream health score.
package health

import (
	"fmt"

	"github.com/streamwatch/streamwatch/internal/models"
)

// Inputs are the observed factors the score is computed from.
type Inputs struct {
	ErrorRate        float64 // percentage of failed requests in the last hour
	ContinuityErrors int64
	SyncErrors       int64
	TransportErrors  int64
	TTFBAvg          float64 // milliseconds, over the rolling window
	DownloadRatio    float64 // mean throughput / mean bitrate, capped at 2.0
	ManifestErrors   int
}

// Penalty caps per factor.
const (
	maxErrorRatePenalty  = 30
	maxContinuityPenalty = 20
	maxSyncPenalty       = 25
	maxTransportPenalty  = 15
	maxTTFBPenalty       = 10
	maxRatioPenalty      = 15
	maxManifestPenalty   = 10
)

// Compute derives the health score. Starts at 100 and subtracts capped
// per-factor penalties; the result is clamped to [0,100]. The returned
// Factors map records each applied penalty for operator display.
func Compute(in Inputs) models.HealthScore {
	score := 100
	factors := make(map[string]string)

	if in.ErrorRate > 0 {
		p := minInt(maxErrorRatePenalty, int(in.ErrorRate*10))
		score -= p
		factors["error_rate"] = fmt.Sprintf("-%d (rate: %.1f%%)", p, in.ErrorRate)
	}

	if in.ContinuityErrors > 0 {
		p := minInt(maxContinuityPenalty, int(in.ContinuityErrors)*2)
		score -= p
		factors["continuity_errors"] = fmt.Sprintf("-%d (count: %d)", p, in.ContinuityErrors)
	}

	if in.SyncErrors > 0 {
		p := minInt(maxSyncPenalty, int(in.SyncErrors)*5)
		score -= p
		factors["sync_errors"] = fmt.Sprintf("-%d (count: %d)", p, in.SyncErrors)
	}

	if in.TransportErrors > 0 {
		p := minInt(maxTransportPenalty, int(in.TransportErrors)*3)
		score -= p
		factors["transport_errors"] = fmt.Sprintf("-%d (count: %d)", p, in.TransportErrors)
	}

	if in.TTFBAvg > 500 {
		p := minInt(maxTTFBPenalty, int((in.TTFBAvg-500)/100))
		score -= p
		factors["high_ttfb"] = fmt.Sprintf("-%d (avg: %.0fms)", p, in.TTFBAvg)
	}

	if in.DownloadRatio < 1.0 {
		p := minInt(maxRatioPenalty, int((1.0-in.DownloadRatio)*30))
		score -= p
		factors["slow_download"] = fmt.Sprintf("-%d (ratio: %.2fx)", p, in.DownloadRatio)
	}

	if in.ManifestErrors > 0 {
		p := minInt(maxManifestPenalty, in.ManifestErrors*5)
		score -= p
		factors["manifest_errors"] = fmt.Sprintf("-%d (count: %d)", p, in.ManifestErrors)
	}

	if score < 0 {
		score = 0
	}

	return models.HealthScore{
		Score:   score,
		Color:   colorFor(score),
		Factors: factors,
	}
}

func colorFor(score int) models.HealthColor {
	switch {
	case score >= 80:
		return models.HealthGreen
	case score >= 50:
		return models.HealthYellow
	default:
		return models.HealthRed
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
